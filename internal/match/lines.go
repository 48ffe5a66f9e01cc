package match

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/JonMunkholm/colsearch/internal/tabular"
)

// Line is one matched physical line of a plain-text file.
type Line struct {
	// Number is 1-based.
	Number       int
	Text         string
	MatchedTerms []string
}

// Lines matches every physical line of the file at path against terms with
// any-mode semantics. A file without matching lines yields an empty result.
func Lines(path, encoding string, terms []string) ([]Line, []string, error) {
	return LinesContext(context.Background(), path, encoding, terms, ModeAny)
}

// LinesContext is Lines with cancellation and a match mode. Under ModeAll a
// line must contain every term.
func LinesContext(ctx context.Context, path, encoding string, terms []string, mode Mode) ([]Line, []string, error) {
	tf, err := tabular.OpenText(path, encoding)
	if err != nil {
		return nil, nil, err
	}
	defer tf.Close()

	lines, used, err := MatchReader(ctx, tf, terms, mode)
	if err != nil && ctx.Err() == nil {
		return nil, nil, &tabular.LoadError{Path: path, Reason: "read lines", Err: err}
	}
	return lines, used, err
}

// MatchReader matches lines read from r.
func MatchReader(ctx context.Context, r io.Reader, terms []string, mode Mode) ([]Line, []string, error) {
	m := NewMatcher(terms, mode)
	used := newTermSet(terms)
	br := bufio.NewReader(r)

	var out []Line
	for n := 1; ; n++ {
		if n%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
		}

		text, err := br.ReadString('\n')
		if text != "" {
			text = strings.TrimRight(text, "\r\n")
			if matched := m.Match(text); m.Accepts(matched) {
				used.add(matched)
				out = append(out, Line{Number: n, Text: text, MatchedTerms: matched})
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, err
		}
	}
	return out, used.list(), nil
}

// LooksTabular reports whether a loaded file has enough structure for the
// column matcher: more than one column, or a single column named column.
func LooksTabular(f *tabular.File, column string) bool {
	if f == nil || len(f.Headers) == 0 {
		return false
	}
	if len(f.Headers) > 1 {
		return true
	}
	return f.Headers[0] == column
}
