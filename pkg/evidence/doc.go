// Package evidence provides comprehensive evidence generation and storage for
// the gateway's inspected traffic. It records every transaction as an immutable
// evidence record for compliance, audit, and forensics.
//
// # Architecture
//
// The evidence system consists of three layers:
//
//  1. Evidence Recorder - Creates evidence records from transaction events
//  2. Storage Backend - Persists evidence records (SQLite, PostgreSQL, S3)
//  3. Query Engine - Retrieves and filters evidence records
//
// # Evidence Records
//
// Each evidence record captures:
//   - Request metadata (method, path, headers, client IP, session)
//   - Inspection results (attack signatures, risk score)
//   - Policy decisions (matched rules, actions taken)
//   - Applied mutations (header actions, stream edits, synthetic response)
//   - Cryptographic hashes (SHA-256 of request/response bodies)
//   - Timestamps (request, policy eval, origin call, response)
//   - Error information (if the transaction failed)
//
// # Recording Flow
//
// Evidence is recorded asynchronously to avoid blocking the proxy's
// serving goroutines:
//
//	Transaction Events → Engine Verdict
//	     ↓
//	Evidence Recorder (async)
//	     ↓
//	Build Evidence Record
//	     ↓
//	Hash Request/Response
//	     ↓
//	Storage Backend (SQLite)
//	     ↓
//	Write to Database (WAL mode)
//
// # Basic Usage
//
//	// Initialize storage backend
//	storage, err := storage.NewSQLiteStorage(&storage.SQLiteConfig{
//	    Path: "data/evidence.db",
//	    WALMode: true,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer storage.Close()
//
//	// Create evidence recorder
//	recorder := recorder.NewRecorder(storage, &recorder.Config{
//	    Enabled: true,
//	    AsyncBuffer: 1000,
//	    HashRequest: true,
//	    HashResponse: true,
//	})
//	defer recorder.Close()
//
//	// Record evidence (async, non-blocking)
//	recorder.RecordRequest(ctx, requestInfo, decision)
//	recorder.RecordResponse(ctx, responseInfo)
//
// # Querying Evidence
//
//	// Build query
//	query := &evidence.Query{
//	    StartTime: &startTime,
//	    EndTime: &endTime,
//	    UserID: "user-123",
//	    PolicyDecision: "block",
//	    Limit: 100,
//	}
//
//	// Execute query
//	records, err := storage.Query(ctx, query)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Export to JSON
//	exporter := export.NewJSONExporter(true) // pretty-print
//	exporter.Export(ctx, records, os.Stdout)
//
// # Retention Policies
//
// Evidence can be automatically pruned based on age:
//
//	// Create retention pruner
//	pruner := retention.NewPruner(storage, &retention.Config{
//	    RetentionDays: 90,
//	    PruneSchedule: "0 3 * * *", // Daily at 3 AM
//	    ArchiveBeforeDelete: true,
//	})
//
//	// Start background pruning
//	pruner.Start(ctx)
//	defer pruner.Stop()
//
// # Performance
//
// The evidence system is designed for high throughput:
//   - Async recording: >1000 writes/sec, <5ms per record
//   - Indexed queries: <100ms for typical queries
//   - WAL mode: Concurrent reads/writes without blocking
//   - Prepared statements: Reduced query overhead
//
// # Thread Safety
//
// All evidence types are safe for concurrent use:
//   - Recorder: Thread-safe async channel
//   - Storage: Thread-safe with connection pooling
//   - Query: Stateless, can be executed concurrently
//
// # Storage Backends
//
// The evidence system supports multiple storage backends via the Storage interface:
//   - SQLite (MVP): Single-node, embedded database
//   - PostgreSQL (Phase 2): High-volume production deployments
//   - S3 (Phase 2): Long-term archival storage
//
// Custom storage backends can be implemented by satisfying the Storage interface.
package evidence
