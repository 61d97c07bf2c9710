// Package rulesengine defines the narrow interface through which the
// mediator drives an external rules engine. Nothing in this package (or
// in any package that imports only this one) knows a rule language: the
// mediator treats the engine as an opaque collaborator reached through
// this interface and the callback.Surface it is handed in return.
//
// A concrete engine lives outside this package tree; pkg/policy provides
// one grounded in a real policy evaluator for exercising the mediator
// end-to-end, but the mediator never imports pkg/policy directly.
package rulesengine
