// Package match filters loaded tables and plain-text files by a set of
// case-insensitive substring terms.
package match

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"github.com/JonMunkholm/colsearch/internal/tabular"
)

// Mode combines per-term results.
type Mode string

const (
	// ModeAny keeps a row when at least one term matches.
	ModeAny Mode = "any"
	// ModeAll keeps a row only when every term matches the same cell.
	ModeAll Mode = "all"
)

// cancelCheckInterval is how many rows are matched between context checks.
const cancelCheckInterval = 4096

// ParseMode accepts "any" or "all" (case-insensitive). Empty means any.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeAny:
		return ModeAny, nil
	case ModeAll:
		return ModeAll, nil
	default:
		return "", fmt.Errorf("unknown match mode %q (want any or all)", s)
	}
}

// ColumnNotFoundError reports a target column missing from a file's header.
type ColumnNotFoundError struct {
	Path    string
	Column  string
	Headers []string
}

func (e *ColumnNotFoundError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("column %q not found in %s", e.Column, e.Path)
	}
	return fmt.Sprintf("column %q not found", e.Column)
}

// Row is one matched source row.
type Row struct {
	// Index is the 0-based position among the file's data rows.
	Index        int
	Values       []string
	Value        string
	MatchedTerms []string
}

// NormalizeTerms trims terms, drops blanks, and removes case-insensitive
// duplicates keeping the first spelling.
func NormalizeTerms(terms []string) []string {
	fold := cases.Fold()
	seen := make(map[string]bool, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		key := fold.String(t)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}

// Matcher tests values against a fixed term list.
// A Matcher is not safe for concurrent use.
type Matcher struct {
	mode   Mode
	terms  []string
	folded []string
	fold   cases.Caser
}

// NewMatcher builds a matcher for terms under mode. Terms are used as given;
// callers normalize them first.
func NewMatcher(terms []string, mode Mode) *Matcher {
	m := &Matcher{
		mode:   mode,
		terms:  terms,
		folded: make([]string, len(terms)),
		fold:   cases.Fold(),
	}
	for i, t := range terms {
		m.folded[i] = m.fold.String(t)
	}
	return m
}

// Terms returns the matcher's term list.
func (m *Matcher) Terms() []string { return m.terms }

// Mode returns the combination mode.
func (m *Matcher) Mode() Mode { return m.mode }

// Match returns the terms found in value, in term order. Blank values never
// match.
func (m *Matcher) Match(value string) []string {
	if strings.TrimSpace(value) == "" || len(m.terms) == 0 {
		return nil
	}
	v := m.fold.String(value)

	var matched []string
	for i, t := range m.folded {
		if t != "" && strings.Contains(v, t) {
			matched = append(matched, m.terms[i])
		}
	}
	return matched
}

// Accepts reports whether a set of matched terms satisfies the mode.
func (m *Matcher) Accepts(matched []string) bool {
	if m.mode == ModeAll {
		return len(matched) > 0 && len(matched) == len(m.terms)
	}
	return len(matched) > 0
}

// Rows returns the rows whose value in column satisfies terms under mode,
// plus the union of terms that matched any returned row.
func Rows(headers []string, rows [][]string, column string, terms []string, mode Mode) ([]Row, []string, error) {
	return RowsContext(context.Background(), headers, rows, column, terms, mode)
}

// RowsContext is Rows with cancellation checked every few thousand rows.
func RowsContext(ctx context.Context, headers []string, rows [][]string, column string, terms []string, mode Mode) ([]Row, []string, error) {
	col := tabular.ColumnIndex(headers, column)
	if col < 0 {
		return nil, nil, &ColumnNotFoundError{Column: column, Headers: headers}
	}

	m := NewMatcher(terms, mode)
	used := newTermSet(terms)

	var out []Row
	for i, row := range rows {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
		}

		value := tabular.Cell(row, col)
		matched := m.Match(value)
		if !m.Accepts(matched) {
			continue
		}
		used.add(matched)
		out = append(out, Row{
			Index:        i,
			Values:       row,
			Value:        value,
			MatchedTerms: matched,
		})
	}
	return out, used.list(), nil
}

// termSet collects matched terms and reports them in input order.
type termSet struct {
	order []string
	hit   map[string]bool
}

func newTermSet(order []string) *termSet {
	return &termSet{order: order, hit: make(map[string]bool, len(order))}
}

func (s *termSet) add(terms []string) {
	for _, t := range terms {
		s.hit[t] = true
	}
}

func (s *termSet) list() []string {
	var out []string
	for _, t := range s.order {
		if s.hit[t] {
			out = append(out, t)
		}
	}
	return out
}
