package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/mercator-hq/warden/pkg/evidence"
)

// CSVExporter exports evidence records to CSV format.
type CSVExporter struct {
	// IncludeHeader includes a header row with column names.
	IncludeHeader bool
}

// NewCSVExporter creates a new CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{
		IncludeHeader: includeHeader,
	}
}

// Export writes evidence records to the provided writer in CSV format.
// The CSV format flattens nested structures (JSON arrays become comma-separated strings).
func (e *CSVExporter) Export(ctx context.Context, records []*evidence.EvidenceRecord, w io.Writer) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	// Write header row if configured
	if e.IncludeHeader {
		header := e.getHeaderRow()
		if err := writer.Write(header); err != nil {
			return evidence.NewExportError("csv", len(records), err)
		}
	}

	// Write data rows
	for _, record := range records {
		row, err := e.recordToRow(record)
		if err != nil {
			return evidence.NewExportError("csv", len(records), err)
		}
		if err := writer.Write(row); err != nil {
			return evidence.NewExportError("csv", len(records), err)
		}
	}

	return nil
}

// ExportStream exports evidence records from a channel to CSV format.
// This is memory-efficient for large result sets as it streams records
// one at a time instead of loading all records in memory.
//
// The CSV writer flushes periodically to provide progress feedback
// for long-running exports.
func (e *CSVExporter) ExportStream(ctx context.Context, recordsCh <-chan *evidence.EvidenceRecord, w io.Writer) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	// Write header if configured
	if e.IncludeHeader {
		header := e.getHeaderRow()
		if err := writer.Write(header); err != nil {
			return evidence.NewExportError("csv", 0, err)
		}
	}

	recordCount := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case record, ok := <-recordsCh:
			if !ok {
				// Channel closed - flush and return
				writer.Flush()
				if err := writer.Error(); err != nil {
					return evidence.NewExportError("csv", recordCount, err)
				}
				return nil
			}

			// Convert record to CSV row
			row, err := e.recordToRow(record)
			if err != nil {
				return evidence.NewExportError("csv", recordCount, err)
			}

			// Write row
			if err := writer.Write(row); err != nil {
				return evidence.NewExportError("csv", recordCount, err)
			}

			recordCount++

			// Flush periodically (every 100 records)
			// This provides progress feedback for long exports
			if recordCount%100 == 0 {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return evidence.NewExportError("csv", recordCount, err)
				}
			}
		}
	}
}

// getHeaderRow returns the CSV header row.
func (e *CSVExporter) getHeaderRow() []string {
	return []string{
		"id", "request_id", "session_id",
		"request_time", "policy_eval_time", "origin_call_time", "response_time", "recorded_time",
		"request_hash", "request_method", "request_path", "request_line", "request_headers",
		"risk_score", "signatures_detected", "signature_types",
		"policy_decision", "matched_rules", "block_reason", "policy_version",
		"header_actions", "stream_edits", "synthetic_response",
		"response_hash", "response_status",
		"response_content",
		"request_bytes", "response_bytes", "bytes_edited",
		"origin_latency_ms",
		"user_id", "api_key", "ip_address",
		"error", "error_type",
	}
}

// recordToRow converts an evidence record to a CSV row.
func (e *CSVExporter) recordToRow(record *evidence.EvidenceRecord) ([]string, error) {
	// Helper function to format timestamps
	formatTime := func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format(time.RFC3339)
	}

	// Helper function to format JSON fields
	formatJSON := func(v interface{}) string {
		data, _ := json.Marshal(v)
		return string(data)
	}

	row := []string{
		record.ID,
		record.RequestID,
		record.SessionID,
		formatTime(record.RequestTime),
		formatTime(record.PolicyEvalTime),
		formatTime(record.OriginCallTime),
		formatTime(record.ResponseTime),
		formatTime(record.RecordedTime),
		record.RequestHash,
		record.RequestMethod,
		record.RequestPath,
		record.RequestLine,
		formatJSON(record.RequestHeaders),
		fmt.Sprintf("%d", record.RiskScore),
		fmt.Sprintf("%t", record.SignaturesDetected),
		formatJSON(record.SignatureTypes),
		record.PolicyDecision,
		formatJSON(record.MatchedRules),
		record.BlockReason,
		record.PolicyVersion,
		formatJSON(record.HeaderActions),
		formatJSON(record.StreamEdits),
		fmt.Sprintf("%t", record.SyntheticResponse),
		record.ResponseHash,
		fmt.Sprintf("%d", record.ResponseStatus),
		record.ResponseContent,
		fmt.Sprintf("%d", record.RequestBytes),
		fmt.Sprintf("%d", record.ResponseBytes),
		fmt.Sprintf("%d", record.BytesEdited),
		fmt.Sprintf("%d", record.OriginLatency.Milliseconds()),
		record.UserID,
		record.APIKey,
		record.IPAddress,
		record.Error,
		record.ErrorType,
	}

	return row, nil
}
