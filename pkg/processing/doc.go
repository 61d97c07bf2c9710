// Package processing defines the inspected-transaction types the policy
// engine evaluates: the request and response views assembled from the
// mediator's notifications, enriched with attack-signature analysis
// from processing/content.
package processing
