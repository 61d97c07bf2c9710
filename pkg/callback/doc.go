// Package callback defines the server callback surface: the fixed set of
// calls an engine makes back into the mediator to shape a transaction's
// outcome (queue a header mutation, request a synthetic error response,
// queue a body edit). transaction.Context implements Surface; nothing
// outside pkg/transaction needs to know how those calls are satisfied.
package callback
