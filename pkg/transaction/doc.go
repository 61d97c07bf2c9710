// Package transaction implements the per-exchange context: the two
// stream filters, the header-action list, the pending synthetic error
// response, and the header-direction and error-response state machines.
// Context implements callback.Surface; it is the one place in the
// mediator that actually mutates transaction state in response to an
// engine call.
package transaction
