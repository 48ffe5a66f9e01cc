package zipstate

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/JonMunkholm/colsearch/internal/match"
	"github.com/JonMunkholm/colsearch/internal/tabular"
)

// Normalize reduces a raw cell to a five-digit zip code.
//
// ZIP+4 values keep their first five digits, nine-digit values are treated as
// ZIP+4 without the dash, and three- or four-digit values (leading zeros lost
// by a spreadsheet) are left-padded. Anything else is rejected.
func Normalize(raw string) (string, bool) {
	s := tabular.CleanCell(raw)
	s = strings.TrimSuffix(s, ".0")

	if i := strings.IndexByte(s, '-'); i >= 0 {
		plus4 := strings.TrimSpace(s[i+1:])
		if !allDigits(plus4) || len(plus4) != 4 {
			return "", false
		}
		s = strings.TrimSpace(s[:i])
		if len(s) != 5 {
			return "", false
		}
	}

	if !allDigits(s) {
		return "", false
	}
	switch len(s) {
	case 5:
		return s, true
	case 9:
		return s[:5], true
	case 3, 4:
		return strings.Repeat("0", 5-len(s)) + s, true
	default:
		return "", false
	}
}

// Lookup returns the state code for a zip code, or false when the value is
// not a zip code or falls in an unassigned range.
func Lookup(raw string) (string, bool) {
	zip, ok := Normalize(raw)
	if !ok {
		return "", false
	}
	n, err := strconv.Atoi(zip)
	if err != nil {
		return "", false
	}

	i := sort.Search(len(ranges), func(i int) bool { return ranges[i].hi >= n })
	if i < len(ranges) && ranges[i].lo <= n {
		return ranges[i].state, true
	}
	return "", false
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// StateCount is one heatmap cell.
type StateCount struct {
	State string `json:"state"`
	Count int    `json:"count"`
}

// Heatmap counts zip codes per state.
type Heatmap struct {
	Counts    map[string]int `json:"counts"`
	Unmatched int            `json:"unmatched"`
	Total     int            `json:"total"`
}

// NewHeatmap counts values. Blank values are ignored; values with no state
// are counted as unmatched.
func NewHeatmap(values []string) *Heatmap {
	h := &Heatmap{Counts: make(map[string]int)}
	for _, v := range values {
		h.Add(v)
	}
	return h
}

// Add counts a single value.
func (h *Heatmap) Add(v string) {
	if strings.TrimSpace(v) == "" {
		return
	}
	h.Total++
	if state, ok := Lookup(v); ok {
		h.Counts[state]++
		return
	}
	h.Unmatched++
}

// Sorted returns the per-state counts, highest first, ties by state code.
func (h *Heatmap) Sorted() []StateCount {
	out := make([]StateCount, 0, len(h.Counts))
	for s, c := range h.Counts {
		out = append(out, StateCount{State: s, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].State < out[j].State
	})
	return out
}

// Max returns the largest per-state count.
func (h *Heatmap) Max() int {
	m := 0
	for _, c := range h.Counts {
		if c > m {
			m = c
		}
	}
	return m
}

// Intensity scales a state's count to 0-100 relative to the busiest state.
func (h *Heatmap) Intensity(state string) int {
	m := h.Max()
	if m == 0 {
		return 0
	}
	return h.Counts[state] * 100 / m
}

// HeatmapFile loads a tabular file and counts the zip codes in column.
func HeatmapFile(path, column string, opts tabular.SniffOptions) (*Heatmap, error) {
	f, err := tabular.LoadPath(path, opts)
	if err != nil {
		return nil, err
	}

	col := tabular.ColumnIndex(f.Headers, column)
	if col < 0 {
		return nil, &match.ColumnNotFoundError{Path: path, Column: column, Headers: f.Headers}
	}

	h := &Heatmap{Counts: make(map[string]int)}
	for _, row := range f.Rows {
		h.Add(tabular.Cell(row, col))
	}
	return h, nil
}

// String renders the heatmap as a plain-text table.
func (h *Heatmap) String() string {
	var b strings.Builder
	for _, sc := range h.Sorted() {
		fmt.Fprintf(&b, "%s\t%d\t%s\n", sc.State, sc.Count, strings.Repeat("#", (h.Intensity(sc.State)+9)/10))
	}
	fmt.Fprintf(&b, "unmatched\t%d\n", h.Unmatched)
	return b.String()
}
