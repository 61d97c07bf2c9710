// Package httphost adapts Go's net/http server into the proxycap
// capability set: each accepted connection becomes a session, each
// request/response exchange a transaction, and the registered handler's
// hooks fire in the host event order the mediator expects.
package httphost
