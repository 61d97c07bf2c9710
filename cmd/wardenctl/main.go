// Warden is a web application firewall gateway: a reverse proxy that
// runs a configurable rules engine over every HTTP exchange.
//
// It mediates between the host proxy's event stream and the rules
// engine, providing:
//   - Header inspection and rewriting in both directions
//   - Streaming body inspection with in-flight byte-range edits
//   - Synthetic error responses for blocked transactions
//   - Cryptographic evidence generation for audit trails
//   - Client rate limits and request budgets
//
// Usage:
//
//	# Start the gateway with an engine config
//	wardenctl run rules.yaml
//
//	# Start with a custom gateway configuration file
//	wardenctl run --config /path/to/warden.yaml rules.yaml
//
//	# Show version information
//	wardenctl version
//
//	# Validate policy files
//	wardenctl lint --file policies.yaml
//
//	# Run policy tests
//	wardenctl test --policy policies.yaml --tests policy_tests.yaml
//
//	# Query the evidence database
//	wardenctl evidence query --time-range "2025-11-19T00:00:00Z/2025-11-20T00:00:00Z"
package main

func main() {
	Execute()
}
