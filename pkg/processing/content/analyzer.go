package content

import (
	"regexp"
	"sync"

	"github.com/mercator-hq/warden/pkg/config"
)

// signature is one built-in detection pattern.
type signature struct {
	name     string
	severity string
	re       *regexp.Regexp
}

// Built-in signature sets. Patterns are deliberately conservative: they
// catch the common encodings of each attack class without attempting to
// out-guess a full rules engine, which remains the authority on verdicts.
var (
	sqliSignatures = []signature{
		{"union-select", "high", regexp.MustCompile(`(?i)\bunion\b[\s/*]+\bselect\b`)},
		{"or-true", "medium", regexp.MustCompile(`(?i)['"]\s*(or|and)\s+['"]?\d+['"]?\s*=\s*['"]?\d+`)},
		{"comment-terminator", "medium", regexp.MustCompile(`(?i)(--|#|/\*)\s*$|;\s*--`)},
		{"stacked-query", "high", regexp.MustCompile(`(?i);\s*(drop|delete|insert|update|create|alter)\b`)},
		{"sleep-benchmark", "high", regexp.MustCompile(`(?i)\b(sleep|benchmark|pg_sleep|waitfor\s+delay)\s*\(`)},
		{"information-schema", "medium", regexp.MustCompile(`(?i)\binformation_schema\b`)},
	}

	xssSignatures = []signature{
		{"script-tag", "high", regexp.MustCompile(`(?i)<\s*script[^>]*>`)},
		{"event-handler", "medium", regexp.MustCompile(`(?i)\bon(load|error|click|mouseover|focus|submit)\s*=`)},
		{"javascript-uri", "high", regexp.MustCompile(`(?i)javascript\s*:`)},
		{"iframe-embed", "medium", regexp.MustCompile(`(?i)<\s*(iframe|embed|object)[^>]*>`)},
		{"img-src-expr", "medium", regexp.MustCompile(`(?i)<\s*img[^>]+src\s*=\s*["']?\s*(javascript|data):`)},
	}

	traversalSignatures = []signature{
		{"dot-dot-slash", "high", regexp.MustCompile(`(\.\./|\.\.\\){2,}|(^|[/\\])\.\.($|[/\\])`)},
		{"encoded-traversal", "high", regexp.MustCompile(`(?i)(%2e%2e|%252e%252e)(%2f|%5c|/|\\)`)},
		{"etc-passwd", "high", regexp.MustCompile(`(?i)(^|[/\\])etc[/\\]passwd\b`)},
		{"windows-system", "medium", regexp.MustCompile(`(?i)(^|[/\\])(windows|winnt)[/\\]system32\b`)},
	}
)

// Analyzer scans request and response content for attack signatures.
// Built-in patterns cover the common encodings of each class; additional
// patterns come from configuration.
type Analyzer struct {
	config *config.ContentConfig

	// Compiled extra patterns, per class
	extraSQLi      []*regexp.Regexp
	extraXSS       []*regexp.Regexp
	extraTraversal []*regexp.Regexp

	// mu protects the analyzer for concurrent access
	mu sync.RWMutex
}

// NewAnalyzer creates a new content analyzer with the given configuration.
func NewAnalyzer(cfg *config.ContentConfig) *Analyzer {
	a := &Analyzer{config: cfg}
	a.extraSQLi = compileExtra(cfg.SQLi.Patterns)
	a.extraXSS = compileExtra(cfg.XSS.Patterns)
	a.extraTraversal = compileExtra(cfg.Traversal.Patterns)
	return a
}

func compileExtra(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			// An unparseable configured pattern is skipped; validation
			// should have caught it upstream.
			continue
		}
		out = append(out, re)
	}
	return out
}

// Analyze scans content for every enabled signature class.
func (a *Analyzer) Analyze(content []byte) (*Analysis, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	analysis := &Analysis{}
	if len(content) == 0 {
		return analysis, nil
	}

	scan := content
	if a.config.MaxScanBytes > 0 && len(scan) > a.config.MaxScanBytes {
		scan = scan[:a.config.MaxScanBytes]
	}
	analysis.ScannedBytes = len(scan)

	if a.config.SQLi.Enabled {
		analysis.SQLi = scanClass(scan, sqliSignatures, a.extraSQLi, a.config.SQLi.SeverityThreshold)
	}
	if a.config.XSS.Enabled {
		analysis.XSS = scanClass(scan, xssSignatures, a.extraXSS, a.config.XSS.SeverityThreshold)
	}
	if a.config.Traversal.Enabled {
		analysis.Traversal = scanClass(scan, traversalSignatures, a.extraTraversal, a.config.Traversal.SeverityThreshold)
	}

	return analysis, nil
}

// AnalyzeString is a convenience wrapper for string content.
func (a *Analyzer) AnalyzeString(content string) (*Analysis, error) {
	return a.Analyze([]byte(content))
}

var severityRank = map[string]int{"low": 1, "medium": 2, "high": 3}

// scanClass runs one class's built-in and configured patterns over the
// content, dropping matches below the severity threshold.
func scanClass(content []byte, builtin []signature, extra []*regexp.Regexp, threshold string) *SignatureMatch {
	minRank := severityRank[threshold]
	result := &SignatureMatch{}

	for _, sig := range builtin {
		if severityRank[sig.severity] < minRank {
			continue
		}
		loc := sig.re.FindIndex(content)
		if loc == nil {
			continue
		}
		result.Matched = true
		result.MatchCount++
		if severityRank[sig.severity] > severityRank[result.Severity] {
			result.Severity = sig.severity
		}
		result.Locations = append(result.Locations, MatchLocation{
			Pattern:  sig.name,
			Start:    loc[0],
			End:      loc[1],
			Severity: sig.severity,
		})
	}

	// Configured patterns count as high severity: an operator added them
	// deliberately.
	for i, re := range extra {
		loc := re.FindIndex(content)
		if loc == nil {
			continue
		}
		result.Matched = true
		result.MatchCount++
		result.Severity = "high"
		result.Locations = append(result.Locations, MatchLocation{
			Pattern:  "custom-" + string(rune('0'+i%10)),
			Start:    loc[0],
			End:      loc[1],
			Severity: "high",
		})
	}

	return result
}
