package recorder

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mercator-hq/warden/pkg/evidence"
	"github.com/mercator-hq/warden/pkg/evidence/storage"
)

func sampleRequest() *RequestInfo {
	return &RequestInfo{
		RequestID:   "req-123",
		SessionID:   "sess-7",
		Method:      "POST",
		Path:        "/api/items",
		RequestLine: "POST /api/items HTTP/1.1",
		Headers:     map[string]string{"user-agent": "test-agent/1.0"},
		Body:        []byte(`{"name":"widget"}`),
		ClientIP:    "203.0.113.9",
		UserID:      "user-1",
		APIKey:      "sk-test-key-123456",
		Timestamp:   time.Now(),
	}
}

func sampleResponse() *ResponseInfo {
	return &ResponseInfo{
		RequestID:     "req-123",
		Status:        200,
		Body:          []byte(`{"ok":true}`),
		RequestBytes:  17,
		ResponseBytes: 11,
		OriginLatency: 42 * time.Millisecond,
		Timestamp:     time.Now(),
	}
}

func waitForCount(t *testing.T, store evidence.Storage, want int64) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		count, _ := store.Count(context.Background(), &evidence.Query{})
		if count >= want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %d stored records (have %d)", want, count)
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

// TestRecorder_FullTransaction tests the request/response two-phase record flow.
func TestRecorder_FullTransaction(t *testing.T) {
	store := storage.NewMemoryStorage()
	rec := NewRecorder(store, nil)
	defer rec.Close()

	ctx := context.Background()

	decision := &Decision{
		Decision:     "allow",
		MatchedRules: []evidence.MatchedRuleRecord{
			{PolicyID: "waf-core", RuleID: "allow-api", Action: "allow", EvaluationTime: time.Millisecond},
		},
		PolicyVersion: "abc123",
	}

	if err := rec.RecordRequest(ctx, sampleRequest(), decision); err != nil {
		t.Fatalf("RecordRequest() failed: %v", err)
	}
	if err := rec.RecordResponse(ctx, sampleResponse()); err != nil {
		t.Fatalf("RecordResponse() failed: %v", err)
	}

	waitForCount(t, store, 1)

	results, err := store.Query(ctx, &evidence.Query{})
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	record := results[0]

	if record.RequestID != "req-123" {
		t.Errorf("Expected RequestID 'req-123', got '%s'", record.RequestID)
	}
	if record.SessionID != "sess-7" {
		t.Errorf("Expected SessionID 'sess-7', got '%s'", record.SessionID)
	}
	if record.RequestPath != "/api/items" {
		t.Errorf("Expected path '/api/items', got '%s'", record.RequestPath)
	}
	if record.IPAddress != "203.0.113.9" {
		t.Errorf("Expected client IP '203.0.113.9', got '%s'", record.IPAddress)
	}
	if record.ResponseStatus != 200 {
		t.Errorf("Expected ResponseStatus 200, got %d", record.ResponseStatus)
	}
	if record.ResponseBytes != 11 {
		t.Errorf("Expected ResponseBytes 11, got %d", record.ResponseBytes)
	}
	if record.PolicyDecision != "allow" {
		t.Errorf("Expected decision 'allow', got '%s'", record.PolicyDecision)
	}
	if record.PolicyVersion != "abc123" {
		t.Errorf("Expected policy version 'abc123', got '%s'", record.PolicyVersion)
	}
	if len(record.MatchedRules) != 1 {
		t.Errorf("Expected 1 matched rule, got %d", len(record.MatchedRules))
	}
}

// TestRecorder_BlockedTransaction records a synthetic-response verdict with
// the mutations the mediator applied.
func TestRecorder_BlockedTransaction(t *testing.T) {
	store := storage.NewMemoryStorage()
	rec := NewRecorder(store, nil)
	defer rec.Close()

	ctx := context.Background()

	req := sampleRequest()
	req.SignatureTypes = []string{"sqli"}
	req.RiskScore = 9

	decision := &Decision{
		Decision:    "block",
		BlockReason: "sqli signature in body",
	}
	if err := rec.RecordRequest(ctx, req, decision); err != nil {
		t.Fatalf("RecordRequest() failed: %v", err)
	}

	resp := sampleResponse()
	resp.Status = 403
	resp.Synthetic = true
	resp.Body = []byte("blocked")
	resp.HeaderActions = []evidence.HeaderActionRecord{
		{Direction: "response", Action: "SET", Name: "X-Blocked", Value: "yes"},
	}
	if err := rec.RecordResponse(ctx, resp); err != nil {
		t.Fatalf("RecordResponse() failed: %v", err)
	}

	waitForCount(t, store, 1)

	results, _ := store.Query(ctx, &evidence.Query{})
	record := results[0]

	if !record.SignaturesDetected || len(record.SignatureTypes) != 1 {
		t.Errorf("Expected sqli signature recorded, got %+v", record.SignatureTypes)
	}
	if !record.SyntheticResponse {
		t.Error("Expected synthetic response flag")
	}
	if record.BlockReason == "" {
		t.Error("Expected block reason to be recorded")
	}
	if len(record.HeaderActions) != 1 || record.HeaderActions[0].Name != "X-Blocked" {
		t.Errorf("Expected X-Blocked header action, got %+v", record.HeaderActions)
	}
}

// TestRecorder_HashingEnabled tests that request/response hashing works.
func TestRecorder_HashingEnabled(t *testing.T) {
	store := storage.NewMemoryStorage()
	config := DefaultConfig()
	config.HashRequest = true
	config.HashResponse = true

	rec := NewRecorder(store, config)
	defer rec.Close()

	ctx := context.Background()
	if err := rec.RecordRequest(ctx, sampleRequest(), nil); err != nil {
		t.Fatalf("RecordRequest() failed: %v", err)
	}
	if err := rec.RecordResponse(ctx, sampleResponse()); err != nil {
		t.Fatalf("RecordResponse() failed: %v", err)
	}

	waitForCount(t, store, 1)

	results, _ := store.Query(ctx, &evidence.Query{})
	record := results[0]

	if record.RequestHash == "" {
		t.Error("Expected request hash to be set")
	}
	if record.ResponseHash == "" {
		t.Error("Expected response hash to be set")
	}
	if record.RequestHash == record.ResponseHash {
		t.Error("Request and response hashes should differ for different bodies")
	}
}

// TestRecorder_APIKeyRedaction verifies keys never land in plaintext.
func TestRecorder_APIKeyRedaction(t *testing.T) {
	store := storage.NewMemoryStorage()
	config := DefaultConfig()
	config.RedactAPIKeys = true

	rec := NewRecorder(store, config)
	defer rec.Close()

	ctx := context.Background()
	if err := rec.RecordRequest(ctx, sampleRequest(), nil); err != nil {
		t.Fatalf("RecordRequest() failed: %v", err)
	}
	if err := rec.RecordResponse(ctx, sampleResponse()); err != nil {
		t.Fatalf("RecordResponse() failed: %v", err)
	}

	waitForCount(t, store, 1)

	results, _ := store.Query(ctx, &evidence.Query{})
	record := results[0]

	if strings.Contains(record.APIKey, "sk-test-key") {
		t.Errorf("API key stored in plaintext: %s", record.APIKey)
	}
	if !strings.HasPrefix(record.APIKey, "sha256:") {
		t.Errorf("Expected hashed API key, got %s", record.APIKey)
	}
}

// TestRecorder_ResponseWithoutRequest logs a warning but does not fail.
func TestRecorder_ResponseWithoutRequest(t *testing.T) {
	store := storage.NewMemoryStorage()
	rec := NewRecorder(store, nil)
	defer rec.Close()

	resp := sampleResponse()
	resp.RequestID = "never-seen"
	if err := rec.RecordResponse(context.Background(), resp); err != nil {
		t.Fatalf("RecordResponse() should not fail for unknown request: %v", err)
	}

	count, _ := store.Count(context.Background(), &evidence.Query{})
	if count != 0 {
		t.Errorf("Expected no stored records, got %d", count)
	}
}

// TestRecorder_Disabled records nothing when disabled.
func TestRecorder_Disabled(t *testing.T) {
	store := storage.NewMemoryStorage()
	config := DefaultConfig()
	config.Enabled = false

	rec := NewRecorder(store, config)
	defer rec.Close()

	ctx := context.Background()
	if err := rec.RecordRequest(ctx, sampleRequest(), nil); err != nil {
		t.Fatalf("RecordRequest() failed: %v", err)
	}
	if err := rec.RecordResponse(ctx, sampleResponse()); err != nil {
		t.Fatalf("RecordResponse() failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	count, _ := store.Count(ctx, &evidence.Query{})
	if count != 0 {
		t.Errorf("Expected no records when disabled, got %d", count)
	}
}

// TestRecorder_ErrorClassification records transaction errors.
func TestRecorder_ErrorClassification(t *testing.T) {
	store := storage.NewMemoryStorage()
	rec := NewRecorder(store, nil)
	defer rec.Close()

	ctx := context.Background()
	if err := rec.RecordRequest(ctx, sampleRequest(), nil); err != nil {
		t.Fatalf("RecordRequest() failed: %v", err)
	}

	resp := sampleResponse()
	resp.Status = 502
	resp.Err = errors.New("origin unreachable")
	resp.ErrorType = "origin"
	if err := rec.RecordResponse(ctx, resp); err != nil {
		t.Fatalf("RecordResponse() failed: %v", err)
	}

	waitForCount(t, store, 1)

	results, _ := store.Query(ctx, &evidence.Query{})
	record := results[0]
	if record.Error != "origin unreachable" || record.ErrorType != "origin" {
		t.Errorf("Error not recorded: %q / %q", record.Error, record.ErrorType)
	}
}
