// Package dispatch decouples the proxy's I/O threads from the rules
// engine: every notification destined for the engine is enqueued here
// and run on a small fixed worker pool, never synchronously on the
// calling goroutine. A per-transaction mailbox guarantees at most one
// notification runs for a given transaction at a time, preserving
// arrival order without holding up workers on unrelated transactions.
package dispatch
