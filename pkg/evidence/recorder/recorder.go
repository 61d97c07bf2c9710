package recorder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mercator-hq/warden/pkg/evidence"
)

// Config contains configuration for the evidence recorder.
type Config struct {
	// Enabled enables evidence recording.
	Enabled bool

	// AsyncBuffer is the size of the async write channel buffer.
	// Default: 1000
	AsyncBuffer int

	// WriteTimeout is the timeout for writing evidence to storage.
	// Default: 5 seconds
	WriteTimeout time.Duration

	// HashRequest enables hashing of request bodies.
	// Default: true
	HashRequest bool

	// HashResponse enables hashing of response bodies.
	// Default: true
	HashResponse bool

	// RedactAPIKeys enables API key redaction.
	// Default: true
	RedactAPIKeys bool

	// MaxFieldLength is the maximum length for text fields before truncation.
	// Default: 500
	MaxFieldLength int
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:        true,
		AsyncBuffer:    1000,
		WriteTimeout:   5 * time.Second,
		HashRequest:    true,
		HashResponse:   true,
		RedactAPIKeys:  true,
		MaxFieldLength: 500,
	}
}

// RequestInfo carries everything the recorder needs at the moment the
// request side of a transaction has been inspected.
type RequestInfo struct {
	RequestID   string
	SessionID   string
	Method      string
	Path        string
	RequestLine string
	Headers     map[string]string
	Body        []byte

	ClientIP string
	UserID   string
	APIKey   string

	RiskScore      int
	SignatureTypes []string

	Timestamp time.Time
}

// Decision carries the engine's verdict for the request phase.
type Decision struct {
	// Decision is "allow", "block", or "edit".
	Decision      string
	BlockReason   string
	MatchedRules  []evidence.MatchedRuleRecord
	PolicyVersion string
	VersionInfo   *evidence.PolicyVersionInfo
}

// ResponseInfo carries the response half of a transaction, including
// every mutation the mediator applied on the way through.
type ResponseInfo struct {
	RequestID string

	Status    int
	Synthetic bool
	Body      []byte

	HeaderActions []evidence.HeaderActionRecord
	StreamEdits   []evidence.StreamEditRecord

	RequestBytes  int64
	ResponseBytes int64
	BytesEdited   int64

	OriginLatency time.Duration
	OriginCalled  time.Time
	Timestamp     time.Time

	Err       error
	ErrorType string
}

// Recorder records evidence for inspected transactions. It creates
// evidence records asynchronously to avoid blocking the proxy's serving
// goroutines.
type Recorder struct {
	storage    evidence.Storage
	config     *Config
	recordChan chan *evidence.EvidenceRecord
	wg         sync.WaitGroup
	done       chan struct{}
	logger     *slog.Logger

	// pendingRecords tracks partial evidence records that are waiting for response data
	pendingRecords sync.Map // map[requestID]*evidence.EvidenceRecord
}

// NewRecorder creates a new evidence recorder with the provided storage backend and configuration.
func NewRecorder(storage evidence.Storage, config *Config) *Recorder {
	if config == nil {
		config = DefaultConfig()
	}

	r := &Recorder{
		storage:    storage,
		config:     config,
		recordChan: make(chan *evidence.EvidenceRecord, config.AsyncBuffer),
		done:       make(chan struct{}),
		logger:     slog.Default().With("component", "evidence.recorder"),
	}

	// Start background worker to drain channel
	r.wg.Add(1)
	go r.worker()

	r.logger.Info("evidence recorder initialized",
		"async_buffer", config.AsyncBuffer,
		"write_timeout", config.WriteTimeout,
		"hash_request", config.HashRequest,
		"hash_response", config.HashResponse,
	)

	return r
}

// RecordRequest creates an evidence record from the inspected request and
// the engine's verdict, and parks it until the response arrives.
//
// This method returns immediately and does not block on storage writes.
func (r *Recorder) RecordRequest(ctx context.Context, req *RequestInfo, decision *Decision) error {
	if !r.config.Enabled {
		return nil
	}

	record := r.createEvidenceRecord(req, decision)

	// Store in pending map (will be updated when response arrives)
	r.pendingRecords.Store(req.RequestID, record)

	r.logger.Debug("evidence record created (awaiting response)",
		"record_id", record.ID,
		"request_id", record.RequestID,
		"policy_decision", record.PolicyDecision,
	)

	return nil
}

// RecordResponse updates an evidence record with response data and enqueues it for async writing.
//
// This method returns immediately and does not block on storage writes.
func (r *Recorder) RecordResponse(ctx context.Context, resp *ResponseInfo) error {
	if !r.config.Enabled {
		return nil
	}

	// Retrieve pending record
	value, ok := r.pendingRecords.LoadAndDelete(resp.RequestID)
	if !ok {
		r.logger.Warn("no pending evidence record found for response",
			"request_id", resp.RequestID,
		)
		return nil
	}

	record := value.(*evidence.EvidenceRecord)

	// Update record with response data
	r.updateEvidenceWithResponse(record, resp)

	// Enqueue for async writing
	select {
	case r.recordChan <- record:
		r.logger.Debug("evidence record enqueued for writing",
			"record_id", record.ID,
			"request_id", record.RequestID,
		)
	case <-time.After(r.config.WriteTimeout):
		r.logger.Error("evidence record channel full, dropping record",
			"record_id", record.ID,
			"request_id", record.RequestID,
			"channel_capacity", r.config.AsyncBuffer,
		)
		return evidence.NewRecorderError(record.ID, context.DeadlineExceeded)
	case <-r.done:
		r.logger.Warn("recorder shutting down, dropping record",
			"record_id", record.ID,
			"request_id", record.RequestID,
		)
		return evidence.NewRecorderError(record.ID, context.Canceled)
	}

	return nil
}

// Close gracefully shuts down the recorder by draining the async channel and
// waiting for all pending writes to complete.
func (r *Recorder) Close() error {
	r.logger.Info("shutting down evidence recorder")

	// Signal shutdown
	close(r.done)

	// Wait for worker to finish draining channel
	r.wg.Wait()

	r.logger.Info("evidence recorder shut down complete")
	return nil
}

// worker is the background goroutine that drains the evidence channel and
// writes records to storage.
func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case record := <-r.recordChan:
			r.writeRecord(record)

		case <-r.done:
			// Drain remaining records from channel before exit
			r.logger.Info("draining evidence channel before shutdown",
				"pending_count", len(r.recordChan),
			)

			for {
				select {
				case record := <-r.recordChan:
					r.writeRecord(record)
				default:
					// Channel is empty, we can exit
					r.logger.Info("evidence channel drained")
					return
				}
			}
		}
	}
}

// writeRecord writes a single evidence record to storage.
func (r *Recorder) writeRecord(record *evidence.EvidenceRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	start := time.Now()

	err := r.storage.Store(ctx, record)
	if err != nil {
		r.logger.Error("failed to store evidence record",
			"record_id", record.ID,
			"request_id", record.RequestID,
			"error", err,
		)
		return
	}

	duration := time.Since(start)

	r.logger.Info("evidence recorded",
		"record_id", record.ID,
		"request_id", record.RequestID,
		"policy_decision", record.PolicyDecision,
		"duration_ms", duration.Milliseconds(),
	)

	// Warn if write was slow
	if duration > r.config.WriteTimeout/2 {
		r.logger.Warn("slow evidence write",
			"record_id", record.ID,
			"duration_ms", duration.Milliseconds(),
			"threshold_ms", (r.config.WriteTimeout / 2).Milliseconds(),
		)
	}
}

// createEvidenceRecord creates an evidence record from the request info and verdict.
func (r *Recorder) createEvidenceRecord(req *RequestInfo, decision *Decision) *evidence.EvidenceRecord {
	now := time.Now()

	requestTime := req.Timestamp
	if requestTime.IsZero() {
		requestTime = now
	}

	record := &evidence.EvidenceRecord{
		ID:        uuid.New().String(),
		RequestID: req.RequestID,
		SessionID: req.SessionID,

		// Timestamps
		RequestTime:    requestTime,
		PolicyEvalTime: now, // Approximate policy eval time
		RecordedTime:   now,

		// Request metadata
		RequestMethod:  req.Method,
		RequestPath:    req.Path,
		RequestLine:    req.RequestLine,
		RequestHeaders: req.Headers,

		// Inspection results
		RiskScore:          req.RiskScore,
		SignaturesDetected: len(req.SignatureTypes) > 0,
		SignatureTypes:     req.SignatureTypes,
	}

	// Hash request body if configured
	if r.config.HashRequest {
		record.RequestHash = HashContent(req.Body)
	}

	// Extract policy decision
	r.extractPolicyDecision(record, decision)

	// Extract user/API key
	record.UserID = req.UserID
	if r.config.RedactAPIKeys {
		record.APIKey = RedactAPIKey(req.APIKey)
	} else {
		record.APIKey = req.APIKey
	}
	record.IPAddress = req.ClientIP

	return record
}

// updateEvidenceWithResponse updates an evidence record with response data.
func (r *Recorder) updateEvidenceWithResponse(record *evidence.EvidenceRecord, resp *ResponseInfo) {
	// Update timestamps
	record.ResponseTime = resp.Timestamp
	if record.ResponseTime.IsZero() {
		record.ResponseTime = time.Now()
	}
	record.OriginCallTime = resp.OriginCalled
	record.RecordedTime = time.Now()

	// Hash response body if configured
	if r.config.HashResponse {
		record.ResponseHash = HashContent(resp.Body)
	}

	// Update response metadata
	record.ResponseStatus = resp.Status
	record.SyntheticResponse = resp.Synthetic
	record.ResponseContent = TruncateString(string(resp.Body), r.config.MaxFieldLength)

	// Applied mutations
	record.HeaderActions = resp.HeaderActions
	record.StreamEdits = resp.StreamEdits

	// Byte accounting
	record.RequestBytes = resp.RequestBytes
	record.ResponseBytes = resp.ResponseBytes
	record.BytesEdited = resp.BytesEdited

	// Origin info
	record.OriginLatency = resp.OriginLatency

	// Extract error info
	if resp.Err != nil {
		record.Error = resp.Err.Error()
		record.ErrorType = resp.ErrorType
		if record.ErrorType == "" {
			record.ErrorType = "error"
		}
	}
}

// extractPolicyDecision extracts policy decision data from the verdict.
func (r *Recorder) extractPolicyDecision(record *evidence.EvidenceRecord, decision *Decision) {
	if decision == nil {
		record.PolicyDecision = "allow"
		return
	}

	record.PolicyDecision = decision.Decision
	record.BlockReason = decision.BlockReason
	record.MatchedRules = decision.MatchedRules
	record.PolicyVersion = decision.PolicyVersion
	record.PolicyVersionInfo = decision.VersionInfo
	if record.PolicyVersion == "" {
		record.PolicyVersion = "unknown"
	}
}
