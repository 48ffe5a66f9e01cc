// Package export flattens per-file match results into one table and writes
// it as CSV or as a single-sheet workbook.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/colsearch/internal/match"
)

// Provenance columns precede every file's own columns.
var ProvenanceColumns = []string{
	"File Name",
	"File Path",
	"Matched Column",
	"Matched Value",
	"Search Terms",
	"Matched Terms",
}

// Columns contributed by plain-text line matches.
const (
	LineNumberColumn = "Line Number"
	LineTextColumn   = "Line Text"
)

// termSeparator joins term lists inside a single cell.
const termSeparator = "; "

// SheetName is the worksheet written by XLSX exports.
const SheetName = "Results"

// ExportError reports a failed aggregate write. The in-memory results are
// untouched so the write can be retried.
type ExportError struct {
	Path string
	Err  error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export error: %s: %v", e.Path, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

// ErrUnsupportedFormat is returned for output paths other than .csv/.xlsx.
var ErrUnsupportedFormat = errors.New("unsupported export format (want .csv or .xlsx)")

// Table is the flattened result of a search.
type Table struct {
	Header []string
	Rows   [][]string
}

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.Rows) }

// Build concatenates results in order into one table.
//
// Original columns are unioned in first-seen order. Within a file, a repeated
// header name gets a .1, .2 suffix, and cells beyond a short header are named
// Column N (1-based position). Line matches fill Line Number and Line Text.
func Build(results []*match.Result) *Table {
	var (
		columns []string
		index   = make(map[string]int)
	)
	addColumn := func(name string) int {
		if i, ok := index[name]; ok {
			return i
		}
		index[name] = len(columns)
		columns = append(columns, name)
		return index[name]
	}

	type pending struct {
		prov  []string
		cells map[int]string
	}
	var rows []pending

	for _, r := range results {
		if r == nil {
			continue
		}
		terms := strings.Join(r.Terms, termSeparator)

		if r.Fallback {
			numCol := addColumn(LineNumberColumn)
			textCol := addColumn(LineTextColumn)
			for _, l := range r.Lines {
				rows = append(rows, pending{
					prov: []string{r.Name(), r.Path, "", l.Text, terms, strings.Join(l.MatchedTerms, termSeparator)},
					cells: map[int]string{
						numCol:  strconv.Itoa(l.Number),
						textCol: l.Text,
					},
				})
			}
			continue
		}

		names := UniqueHeaders(r.Headers)
		for _, row := range r.Rows {
			cells := make(map[int]string, len(row.Values))
			for i, v := range row.Values {
				var name string
				if i < len(names) {
					name = names[i]
				} else {
					name = "Column " + strconv.Itoa(i+1)
				}
				cells[addColumn(name)] = v
			}
			rows = append(rows, pending{
				prov:  []string{r.Name(), r.Path, r.Column, row.Value, terms, strings.Join(row.MatchedTerms, termSeparator)},
				cells: cells,
			})
		}
	}

	t := &Table{Header: append(append([]string{}, ProvenanceColumns...), columns...)}
	for _, p := range rows {
		out := make([]string, len(t.Header))
		copy(out, p.prov)
		for i, v := range p.cells {
			out[len(ProvenanceColumns)+i] = v
		}
		t.Rows = append(t.Rows, out)
	}
	return t
}

// UniqueHeaders renames repeated header names with .1, .2 suffixes and names
// blank headers Column N.
func UniqueHeaders(headers []string) []string {
	out := make([]string, len(headers))
	seen := make(map[string]int, len(headers))
	taken := make(map[string]bool, len(headers))
	for _, h := range headers {
		taken[h] = true
	}

	for i, h := range headers {
		name := h
		if strings.TrimSpace(name) == "" {
			name = "Column " + strconv.Itoa(i+1)
		}
		if n, dup := seen[name]; dup {
			for {
				n++
				candidate := name + "." + strconv.Itoa(n)
				if !taken[candidate] {
					seen[name] = n
					name = candidate
					break
				}
			}
		} else {
			seen[name] = 0
		}
		taken[name] = true
		out[i] = name
	}
	return out
}

// Write builds the table from results and writes it to path. The format
// follows the path extension. An empty table writes nothing and returns 0.
func Write(path string, results []*match.Result) (int, error) {
	t := Build(results)
	if t.Len() == 0 {
		return 0, nil
	}
	if err := WriteTable(path, t); err != nil {
		return 0, err
	}
	return t.Len(), nil
}

// WriteTable writes t to path as CSV or XLSX, through a temporary file that
// is renamed into place.
func WriteTable(path string, t *Table) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".csv" && ext != ".xlsx" {
		return &ExportError{Path: path, Err: ErrUnsupportedFormat}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &ExportError{Path: path, Err: err}
	}

	tmp, err := os.CreateTemp(dir, ".export-*"+ext)
	if err != nil {
		return &ExportError{Path: path, Err: err}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if ext == ".xlsx" {
		err = WriteXLSX(tmp, t)
	} else {
		err = WriteCSV(tmp, t)
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return &ExportError{Path: path, Err: err}
	}

	if err := os.Rename(tmpName, path); err != nil {
		return &ExportError{Path: path, Err: err}
	}
	return nil
}

// WriteCSV writes t as UTF-8, comma-separated, header first.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	return cw.Error()
}

// WriteXLSX writes t as a single-sheet workbook.
func WriteXLSX(w io.Writer, t *Table) error {
	wb := excelize.NewFile()
	defer func() { _ = wb.Close() }()

	if err := wb.SetSheetName("Sheet1", SheetName); err != nil {
		return err
	}

	sw, err := wb.NewStreamWriter(SheetName)
	if err != nil {
		return err
	}

	if err := sw.SetRow("A1", toCells(t.Header)); err != nil {
		return err
	}
	for i, row := range t.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, toCells(row)); err != nil {
			return err
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}

	_, err = wb.WriteTo(w)
	return err
}

func toCells(row []string) []interface{} {
	cells := make([]interface{}, len(row))
	for i, v := range row {
		cells[i] = v
	}
	return cells
}
