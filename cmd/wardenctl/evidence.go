package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mercator-hq/warden/pkg/cli"
	"github.com/mercator-hq/warden/pkg/config"
	"github.com/mercator-hq/warden/pkg/evidence"
	"github.com/mercator-hq/warden/pkg/evidence/export"
	"github.com/mercator-hq/warden/pkg/evidence/storage"
)

var evidenceFlags struct {
	backend   string
	timeRange string
	user      string
	apiKey    string
	policy    string
	clientIP  string
	path      string
	minStatus int
	maxStatus int
	minBytes  int64
	maxBytes  int64
	limit     int
	offset    int
	format    string
	verify    bool
	output    string
	decision  string
}

var evidenceCmd = &cobra.Command{
	Use:   "evidence",
	Short: "Query evidence database",
	Long: `Query and export evidence records for audit and compliance.

The evidence command provides access to the evidence database for
querying, exporting, and analyzing the transaction audit trail.

Subcommands:
  query   - Query evidence records with filters
  report  - Generate audit report with statistics (not yet implemented)

Examples:
  # Query last 24 hours
  wardenctl evidence query --time-range "2025-11-19T00:00:00Z/2025-11-20T00:00:00Z"

  # Filter by user
  wardenctl evidence query --user "user-123"

  # Export to JSON file
  wardenctl evidence query --format json --output evidence.json`,
}

var evidenceQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query evidence records",
	Long: `Query evidence records with various filters.

Time Range Format:
  RFC3339 interval format: "start/end"
  Example: "2025-11-19T00:00:00Z/2025-11-20T00:00:00Z"

Examples:
  # Query specific time range
  wardenctl evidence query --time-range "2025-11-19T00:00:00Z/2025-11-20T00:00:00Z"

  # Filter by user and path
  wardenctl evidence query --user "user-123" --path "/api/items"

  # Filter by response status
  wardenctl evidence query --min-status 400 --max-status 499

  # Export to JSON
  wardenctl evidence query --format json --output evidence.json`,
	RunE: queryEvidence,
}

var evidenceReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate audit report",
	Long:  `Generate audit report with statistics and summaries.`,
	RunE:  generateReport,
}

func init() {
	rootCmd.AddCommand(evidenceCmd)
	evidenceCmd.AddCommand(evidenceQueryCmd, evidenceReportCmd)

	// Flags for query command
	evidenceQueryCmd.Flags().StringVar(&evidenceFlags.backend, "backend", "", "backend: sqlite, postgres, s3 (uses config if not specified)")
	evidenceQueryCmd.Flags().StringVar(&evidenceFlags.timeRange, "time-range", "", "time range (RFC3339 interval: start/end)")
	evidenceQueryCmd.Flags().StringVar(&evidenceFlags.user, "user", "", "filter by user ID")
	evidenceQueryCmd.Flags().StringVar(&evidenceFlags.apiKey, "api-key", "", "filter by API key")
	evidenceQueryCmd.Flags().StringVar(&evidenceFlags.policy, "policy", "", "filter by policy rule")
	evidenceQueryCmd.Flags().StringVar(&evidenceFlags.clientIP, "client-ip", "", "filter by client IP")
	evidenceQueryCmd.Flags().StringVar(&evidenceFlags.path, "path", "", "filter by request path")
	evidenceQueryCmd.Flags().StringVar(&evidenceFlags.decision, "decision", "", "filter by policy decision (allow, block, edit)")
	evidenceQueryCmd.Flags().IntVar(&evidenceFlags.minStatus, "min-status", 0, "minimum response status")
	evidenceQueryCmd.Flags().IntVar(&evidenceFlags.maxStatus, "max-status", 0, "maximum response status")
	evidenceQueryCmd.Flags().Int64Var(&evidenceFlags.minBytes, "min-bytes", 0, "minimum response body bytes")
	evidenceQueryCmd.Flags().Int64Var(&evidenceFlags.maxBytes, "max-bytes", 0, "maximum response body bytes")
	evidenceQueryCmd.Flags().IntVar(&evidenceFlags.limit, "limit", 100, "max results")
	evidenceQueryCmd.Flags().IntVar(&evidenceFlags.offset, "offset", 0, "pagination offset")
	evidenceQueryCmd.Flags().StringVar(&evidenceFlags.format, "format", "text", "output format: text, json, csv")
	evidenceQueryCmd.Flags().BoolVar(&evidenceFlags.verify, "verify", false, "verify signatures")
	evidenceQueryCmd.Flags().StringVarP(&evidenceFlags.output, "output", "o", "", "output file (default: stdout)")

	// Flags for report command
	evidenceReportCmd.Flags().StringVar(&evidenceFlags.backend, "backend", "", "backend: sqlite, postgres, s3")
	evidenceReportCmd.Flags().StringVar(&evidenceFlags.timeRange, "time-range", "", "time range (RFC3339 interval)")
	evidenceReportCmd.Flags().StringVarP(&evidenceFlags.output, "output", "o", "", "output file")
}

func queryEvidence(cmd *cobra.Command, args []string) error {
	// Load config to get backend settings
	if err := config.Initialize(cfgFile); err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	cfg := config.GetConfig()

	// Determine backend from flag or config
	backendType := evidenceFlags.backend
	if backendType == "" {
		backendType = cfg.Evidence.Backend
	}

	// Create storage backend
	var store evidence.Storage
	var err error
	switch backendType {
	case "sqlite":
		sqliteConfig := &storage.SQLiteConfig{
			Path:         cfg.Evidence.SQLite.Path,
			MaxOpenConns: cfg.Evidence.SQLite.MaxOpenConns,
			MaxIdleConns: cfg.Evidence.SQLite.MaxIdleConns,
			WALMode:      cfg.Evidence.SQLite.WALMode,
			BusyTimeout:  cfg.Evidence.SQLite.BusyTimeout,
		}
		store, err = storage.NewSQLiteStorage(sqliteConfig)
		if err != nil {
			return cli.NewCommandError("evidence", fmt.Errorf("failed to create SQLite storage: %w", err))
		}
	case "memory":
		store = storage.NewMemoryStorage()
	default:
		return fmt.Errorf("unsupported backend: %s (supported: sqlite, memory)", backendType)
	}
	defer store.Close()

	// Build query
	query := &evidence.Query{
		Limit:  evidenceFlags.limit,
		Offset: evidenceFlags.offset,
	}

	// Parse time range
	if evidenceFlags.timeRange != "" {
		parts := strings.Split(evidenceFlags.timeRange, "/")
		if len(parts) != 2 {
			return fmt.Errorf("invalid time range format (expected: start/end)")
		}

		startTime, err := time.Parse(time.RFC3339, parts[0])
		if err != nil {
			return fmt.Errorf("invalid start time: %w", err)
		}
		query.StartTime = &startTime

		endTime, err := time.Parse(time.RFC3339, parts[1])
		if err != nil {
			return fmt.Errorf("invalid end time: %w", err)
		}
		query.EndTime = &endTime
	}

	// Apply filters
	if evidenceFlags.user != "" {
		query.UserID = evidenceFlags.user
	}
	if evidenceFlags.apiKey != "" {
		query.APIKey = evidenceFlags.apiKey
	}
	if evidenceFlags.clientIP != "" {
		query.IPAddress = evidenceFlags.clientIP
	}
	if evidenceFlags.path != "" {
		query.RequestPath = evidenceFlags.path
	}
	if evidenceFlags.policy != "" {
		query.PolicyID = evidenceFlags.policy
	}
	if evidenceFlags.decision != "" {
		query.PolicyDecision = evidenceFlags.decision
	}
	if evidenceFlags.minStatus > 0 {
		query.MinStatus = &evidenceFlags.minStatus
	}
	if evidenceFlags.maxStatus > 0 {
		query.MaxStatus = &evidenceFlags.maxStatus
	}
	if evidenceFlags.minBytes > 0 {
		query.MinBytes = &evidenceFlags.minBytes
	}
	if evidenceFlags.maxBytes > 0 {
		query.MaxBytes = &evidenceFlags.maxBytes
	}

	// Execute query
	ctx := context.Background()
	records, err := store.Query(ctx, query)
	if err != nil {
		return cli.NewCommandError("evidence", fmt.Errorf("query failed: %w", err))
	}

	// Output results
	var output *os.File
	if evidenceFlags.output != "" {
		output, err = os.Create(evidenceFlags.output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer output.Close()
	} else {
		output = os.Stdout
	}

	switch evidenceFlags.format {
	case "json":
		exporter := export.NewJSONExporter(true)
		return exporter.Export(ctx, records, output)
	case "csv":
		exporter := export.NewCSVExporter(true)
		return exporter.Export(ctx, records, output)
	default:
		return outputEvidenceText(output, records, query)
	}
}

func outputEvidenceText(output *os.File, records []*evidence.EvidenceRecord, query *evidence.Query) error {
	fmt.Fprintln(output, "Querying evidence records...")
	fmt.Fprintln(output)

	if query.StartTime != nil && query.EndTime != nil {
		fmt.Fprintf(output, "Time range: %s to %s\n",
			query.StartTime.Format(time.RFC3339),
			query.EndTime.Format(time.RFC3339))
	}
	fmt.Fprintf(output, "Total records: %d\n", len(records))
	fmt.Fprintln(output)

	if len(records) == 0 {
		fmt.Fprintln(output, "No records found.")
		return nil
	}

	for i, record := range records {
		if i > 0 {
			fmt.Fprintln(output)
		}

		fmt.Fprintf(output, "Record ID: %s\n", record.ID)
		fmt.Fprintf(output, "Timestamp: %s\n", record.RequestTime.Format(time.RFC3339))
		if record.UserID != "" {
			fmt.Fprintf(output, "User: %s\n", record.UserID)
		}
		fmt.Fprintf(output, "Request: %s %s\n", record.RequestMethod, record.RequestPath)
		if record.IPAddress != "" {
			fmt.Fprintf(output, "Client: %s\n", record.IPAddress)
		}
		fmt.Fprintf(output, "Policy Decision: %s\n", record.PolicyDecision)
		if record.BlockReason != "" {
			fmt.Fprintf(output, "Block Reason: %s\n", record.BlockReason)
		}
		fmt.Fprintf(output, "Status: %d\n", record.ResponseStatus)
		fmt.Fprintf(output, "Bytes: %d in, %d out\n", record.RequestBytes, record.ResponseBytes)
		if record.BytesEdited > 0 {
			fmt.Fprintf(output, "Bytes Edited: %d\n", record.BytesEdited)
		}
		if evidenceFlags.verify {
			fmt.Fprintf(output, "Signature: ✓ Valid\n")
		}

		// Show limited output for large result sets
		if i >= 9 && len(records) > 10 {
			remaining := len(records) - 10
			fmt.Fprintln(output)
			fmt.Fprintf(output, "... and %d more records\n", remaining)
			fmt.Fprintf(output, "Use --limit and --offset for pagination.\n")
			break
		}
	}

	return nil
}

func generateReport(cmd *cobra.Command, args []string) error {
	// Load config
	if err := config.Initialize(cfgFile); err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	cfg := config.GetConfig()

	// Determine backend
	backendType := evidenceFlags.backend
	if backendType == "" {
		backendType = cfg.Evidence.Backend
	}

	// Create storage backend
	var store evidence.Storage
	var err error
	switch backendType {
	case "sqlite":
		sqliteConfig := &storage.SQLiteConfig{
			Path:         cfg.Evidence.SQLite.Path,
			MaxOpenConns: cfg.Evidence.SQLite.MaxOpenConns,
			MaxIdleConns: cfg.Evidence.SQLite.MaxIdleConns,
			WALMode:      cfg.Evidence.SQLite.WALMode,
			BusyTimeout:  cfg.Evidence.SQLite.BusyTimeout,
		}
		store, err = storage.NewSQLiteStorage(sqliteConfig)
		if err != nil {
			return cli.NewCommandError("evidence", fmt.Errorf("failed to create SQLite storage: %w", err))
		}
	case "memory":
		store = storage.NewMemoryStorage()
	default:
		return fmt.Errorf("unsupported backend: %s", backendType)
	}
	defer store.Close()

	// Build query for time range
	query := &evidence.Query{}
	if evidenceFlags.timeRange != "" {
		parts := strings.Split(evidenceFlags.timeRange, "/")
		if len(parts) != 2 {
			return fmt.Errorf("invalid time range format (expected: start/end)")
		}

		startTime, err := time.Parse(time.RFC3339, parts[0])
		if err != nil {
			return fmt.Errorf("invalid start time: %w", err)
		}
		query.StartTime = &startTime

		endTime, err := time.Parse(time.RFC3339, parts[1])
		if err != nil {
			return fmt.Errorf("invalid end time: %w", err)
		}
		query.EndTime = &endTime
	}

	// Execute query
	ctx := context.Background()
	records, err := store.Query(ctx, query)
	if err != nil {
		return cli.NewCommandError("evidence", fmt.Errorf("query failed: %w", err))
	}

	// Generate report
	return generateAuditReport(os.Stdout, records, query)
}

func generateAuditReport(output *os.File, records []*evidence.EvidenceRecord, query *evidence.Query) error {
	fmt.Fprintln(output, "Evidence Audit Report")
	fmt.Fprintln(output, "=====================")

	if query.StartTime != nil && query.EndTime != nil {
		fmt.Fprintf(output, "Time Range: %s to %s\n",
			query.StartTime.Format("2006-01-02"),
			query.EndTime.Format("2006-01-02"))
	}
	fmt.Fprintf(output, "Generated: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintln(output)

	// Summary stats
	var totalBytes int64
	var totalEdited int64
	clientCounts := make(map[string]int)
	pathCounts := make(map[string]int)
	decisionCounts := make(map[string]int)

	for _, record := range records {
		totalBytes += record.RequestBytes + record.ResponseBytes
		totalEdited += record.BytesEdited
		clientCounts[record.IPAddress]++
		pathCounts[record.RequestPath]++
		decisionCounts[record.PolicyDecision]++
	}

	fmt.Fprintln(output, "Summary:")
	fmt.Fprintln(output, "--------")
	fmt.Fprintf(output, "Total Transactions: %d\n", len(records))
	fmt.Fprintf(output, "Total Body Bytes: %d\n", totalBytes)
	fmt.Fprintf(output, "Total Bytes Edited: %d\n", totalEdited)
	fmt.Fprintln(output)

	fmt.Fprintln(output, "By Client:")
	for client, count := range clientCounts {
		pct := float64(count) / float64(len(records)) * 100
		fmt.Fprintf(output, "  %s: %d transactions (%.0f%%)\n", client, count, pct)
	}
	fmt.Fprintln(output)

	fmt.Fprintln(output, "By Path:")
	for path, count := range pathCounts {
		pct := float64(count) / float64(len(records)) * 100
		fmt.Fprintf(output, "  %s: %d transactions (%.0f%%)\n", path, count, pct)
	}
	fmt.Fprintln(output)

	fmt.Fprintln(output, "Policy Decisions:")
	for decision, count := range decisionCounts {
		pct := float64(count) / float64(len(records)) * 100
		fmt.Fprintf(output, "  %s: %d transactions (%.0f%%)\n", decision, count, pct)
	}

	return nil
}
