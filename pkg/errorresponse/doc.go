// Package errorresponse builds the synthetic error response a transaction
// commits at the proxy's send-response-headers event when the engine has
// requested a status other than the origin's. It never runs more than
// once per transaction; the caller enforces that via the transaction's
// error-response state machine.
package errorresponse
