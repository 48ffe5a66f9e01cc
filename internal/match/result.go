package match

import "path/filepath"

// Result holds the matches of one file. Exactly one of Rows or Lines is
// populated, depending on Fallback.
type Result struct {
	Path         string
	Column       string
	Terms        []string
	Headers      []string
	Rows         []Row
	Lines        []Line
	MatchedTerms []string
	Fallback     bool
}

// Name returns the base file name.
func (r *Result) Name() string {
	return filepath.Base(r.Path)
}

// Count returns the number of matched rows or lines.
func (r *Result) Count() int {
	if r.Fallback {
		return len(r.Lines)
	}
	return len(r.Rows)
}

// Total sums Count across results.
func Total(results []*Result) int {
	n := 0
	for _, r := range results {
		n += r.Count()
	}
	return n
}
