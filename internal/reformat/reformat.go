package reformat

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/JonMunkholm/colsearch/internal/match"
	"github.com/JonMunkholm/colsearch/internal/tabular"
)

// Options controls a reformat.
type Options struct {
	// DateColumns are header names whose cells are parsed as dates.
	DateColumns []string
	// OutputLayout is a Go layout or a pattern like MM/DD/YYYY.
	OutputLayout string
	// Delimiter is the output delimiter; 0 keeps the input delimiter.
	Delimiter rune
	// Now anchors two-digit year pivoting. Defaults to time.Now.
	Now func() time.Time
}

// Report summarizes a reformat.
type Report struct {
	InputPath      string `json:"input_path"`
	OutputPath     string `json:"output_path,omitempty"`
	InputEncoding  string `json:"input_encoding"`
	InputDelimiter string `json:"input_delimiter"`
	Rows           int    `json:"rows"`
	Converted      int    `json:"converted"`
	Unparsed       int    `json:"unparsed"`
}

// Apply rewrites the date columns of f in place and returns conversion counts.
// Unparseable cells are left as they are.
func Apply(f *tabular.File, opts Options) (*Report, error) {
	now := time.Now()
	if opts.Now != nil {
		now = opts.Now()
	}
	layout := Layout(opts.OutputLayout)

	cols := make([]int, 0, len(opts.DateColumns))
	for _, name := range opts.DateColumns {
		i := tabular.ColumnIndex(f.Headers, name)
		if i < 0 {
			return nil, &match.ColumnNotFoundError{Path: f.Path, Column: name, Headers: f.Headers}
		}
		cols = append(cols, i)
	}

	rep := &Report{
		InputPath:      f.Path,
		InputEncoding:  f.Encoding,
		InputDelimiter: tabular.DelimiterName(f.Delimiter),
		Rows:           len(f.Rows),
	}
	for _, row := range f.Rows {
		for _, c := range cols {
			if c >= len(row) || row[c] == "" {
				continue
			}
			t, ok := ParseDate(tabular.CleanCell(row[c]), now)
			if !ok {
				rep.Unparsed++
				continue
			}
			row[c] = t.Format(layout)
			rep.Converted++
		}
	}
	return rep, nil
}

// Write writes headers and rows with delimiter.
func Write(w io.Writer, f *tabular.File, delimiter rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = delimiter
	if err := cw.Write(f.Headers); err != nil {
		return err
	}
	if err := cw.WriteAll(f.Rows); err != nil {
		return err
	}
	return cw.Error()
}

// File reformats the delimited file at in and writes the result to out.
func File(in, out string, opts Options, sniff tabular.SniffOptions) (*Report, error) {
	if tabular.IsSpreadsheet(filepath.Ext(in)) {
		return nil, &tabular.LoadError{Path: in, Reason: "reformat reads delimited text only"}
	}

	f, err := tabular.LoadPath(in, sniff)
	if err != nil {
		return nil, err
	}

	rep, err := Apply(f, opts)
	if err != nil {
		return nil, err
	}

	delim := opts.Delimiter
	if delim == 0 {
		delim = f.Delimiter
	}

	dst, err := os.Create(out)
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}
	werr := Write(dst, f, delim)
	if cerr := dst.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return nil, errors.Join(fmt.Errorf("write output: %w", werr), os.Remove(out))
	}

	rep.OutputPath = out
	return rep, nil
}
