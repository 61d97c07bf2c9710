// Package mediator is the event plugin at the center of the gateway: it
// receives the host proxy's hook events, reconstructs headers through
// the reparser, runs bodies through the per-direction stream filters,
// carries rules-engine notifications across the dispatcher, and commits
// synthetic error responses at the send-response-headers commit point.
//
// One Plugin serves the whole process. Per-connection state lives in a
// session context attached to the host's session handle; per-exchange
// state in a transaction context attached to the host's transaction
// handle.
package mediator
