// Package policy is the reference rules engine shipped with the
// gateway: an adapter that drives the MPL interpreter engine from the
// mediator's notification stream and issues its verdicts back through
// the mediator's callback surface.
//
// The mediator itself never imports this package; it only knows the
// narrow rulesengine interfaces. This package exists so the repository
// has a real engine on the other side of that boundary — policies are
// loaded from a file or git source by policy/manager, evaluated by
// policy/engine, and enriched with attack-signature scans from
// processing/content.
package policy
