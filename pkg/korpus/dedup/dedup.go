// Package dedup flags candidate titles that fuzzily duplicate titles the
// run has already accepted or titles already present in the destination
// index.
package dedup

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Engine performs two-pass approximate title matching. The threshold is the
// minimum similarity ratio in (0,1] at which two titles count as the same
// topic; nearer 1.0 is stricter.
type Engine struct {
	threshold float64
}

// New creates an Engine with the given similarity threshold.
func New(threshold float64) *Engine {
	return &Engine{threshold: threshold}
}

// Threshold returns the configured similarity threshold.
func (e *Engine) Threshold() float64 { return e.threshold }

// Ratio returns the normalized edit similarity of two titles in [0,1].
// Titles are case-folded first, so "Berlin" and "berlin" score 1.0.
func Ratio(a, b string) float64 {
	a = strings.ToLower(a)
	b = strings.ToLower(b)
	if a == b {
		return 1.0
	}

	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}
	if longest == 0 {
		return 1.0
	}

	dist := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(dist)/float64(longest)
}

// IsDuplicate checks the candidate against the current run's accepted
// titles first, then against the snapshot of titles already in the index.
// The first match found wins; since duplicates are rejected either way,
// iteration order only affects which matched title gets logged. Titles
// indexed by other writers after the snapshot was taken are not visible --
// a known limitation of the single-writer model.
func (e *Engine) IsDuplicate(candidate string, inFlight, existing map[string]struct{}) (bool, string) {
	for _, set := range []map[string]struct{}{inFlight, existing} {
		for title := range set {
			if Ratio(candidate, title) >= e.threshold {
				return true, title
			}
		}
	}
	return false, ""
}
