// Package proxycap defines the host proxy capability set the mediator
// consumes: event hooks, header marshal access, start-line accessors,
// the transforming body pipe, the error-body slot, and the
// continue-vs-error re-enable decision. Any host that exposes these
// capabilities can carry the mediator; pkg/proxycap/httphost is the
// net/http reference implementation.
package proxycap
