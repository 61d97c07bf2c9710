// Package content provides attack-signature scanning for request and
// response content: SQL injection, cross-site scripting, and path
// traversal.
//
// The analyzer is regex-based and deliberately conservative. It is a
// helper for the reference rules engine's body matchers, not a
// replacement for the rules engine itself: the engine decides what to do
// with a match; this package only reports where signatures appear.
//
// # Usage
//
//	analyzer := content.NewAnalyzer(&cfg.Processing.Content)
//	analysis, _ := analyzer.Analyze(body)
//	if analysis.Detected() {
//	    // analysis.Types() is e.g. ["sqli", "xss"]
//	}
//
// Each class (SQLi, XSS, Traversal) can be toggled and extended with
// custom patterns through configuration; a severity threshold filters
// out low-confidence built-ins. Scanning is capped at MaxScanBytes so
// unbounded bodies cannot pin the analyzer.
package content
