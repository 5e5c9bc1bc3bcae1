// Package semantics holds the single shared list of failure-indicator
// phrases consulted by the Callback Reconciler before it accepts a
// completion outcome at face value (spec §4.5 step 5).
package semantics

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// FailureIndicators are case-insensitive substrings whose presence in a
// completion result downgrades the outcome to a SemanticFailure instead of
// a straight completed transition. Ordering is not significant; evaluation
// stops at first match.
var FailureIndicators = []string{
	"couldn't find",
	"could not find",
	"doesn't exist",
	"does not exist",
	"failed to",
	"unable to",
	"no such file",
	"error:",
	"task incomplete",
	"no corresponding file",
	"invalid reference",
	"cannot locate",
	"not found",
	"i apologize, but i",
	"i'm unable",
}

// normalize lowercases and replaces curly quotes with straight ones so the
// scan isn't defeated by smart-quote substitution performed by upstream
// text editors or LLM output formatting.
func normalize(s string) string {
	s = norm.NFKC.String(s)
	replacer := strings.NewReplacer(
		"‘", "'", "’", "'",
		"“", "\"", "”", "\"",
	)
	return strings.ToLower(replacer.Replace(s))
}

// ScanResult reports whether a failure indicator was found, and which one.
type ScanResult struct {
	Matched   bool
	Indicator string
}

// Scan checks text against FailureIndicators and returns the first match.
func Scan(text string) ScanResult {
	normalized := normalize(text)
	for _, indicator := range FailureIndicators {
		if strings.Contains(normalized, indicator) {
			return ScanResult{Matched: true, Indicator: indicator}
		}
	}
	return ScanResult{}
}
