// Package server assembles and runs the gateway process.
//
// This package ties together the host proxy (proxycap/httphost), the
// mediation plugin (mediator), the rules-engine lifecycle (enginemgr +
// policy), client quotas (limits), and observability, and provides
// server lifecycle management including start, shutdown, and health
// checks.
//
// # Architecture
//
// The server package is the top-level orchestrator that:
//   - Parses the upstream origin and builds the httphost adapter
//   - Loads the first engine generation through the engine manager
//   - Registers the mediation plugin on the host's hook surface
//   - Chains middleware for cross-cutting concerns
//   - Configures TLS termination
//   - Manages graceful shutdown (drain exchanges, stop the control
//     channel, drain the dispatcher, close engine generations)
//
// # Basic Usage
//
//	cfg, err := config.LoadConfigWithEnvOverrides("warden.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	srv, err := server.NewServer(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Start(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
//
// # Routes
//
// The server exposes:
//
//   - /healthz - Liveness probe (always 200)
//   - /readyz  - Readiness probe (engine generation loaded)
//   - /metrics - Prometheus exposition (when enabled)
//   - everything else - inspected traffic forwarded to the origin
//
// # Middleware Chain
//
// Requests pass through (innermost to outermost): Timeout, CORS,
// Limits, RequestID, Logging, Recovery. Inside the chain, the host
// adapter drives the mediation plugin's hook events; the rules engine's
// verdicts come back as header rewrites, body edits, or a synthetic
// error response.
//
// # Engine Reloads
//
// A cron-scheduled control channel watches the engine config file and
// starts a new engine generation on change. Sessions holding an older
// generation keep it until they close; idle generations are collected.
package server
