// Package tabular reads heterogeneous tabular files (delimited text and
// spreadsheets) into a uniform header + rows shape.
//
// Sniff guesses how a text file is encoded and delimited, Load materializes
// it. Rows are never validated against the header length.
package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Spreadsheet extensions read through excelize.
var spreadsheetExts = map[string]bool{
	".xlsx": true,
	".xlsm": true,
	".xltx": true,
	".xltm": true,
}

// File is one loaded table.
type File struct {
	Path      string
	Encoding  string
	Delimiter rune
	Headers   []string
	Rows      [][]string
}

// NormalizeExt lowercases ext and ensures a leading dot.
func NormalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// IsSpreadsheet reports whether ext is read as a workbook.
func IsSpreadsheet(ext string) bool {
	return spreadsheetExts[NormalizeExt(ext)]
}

// IsLegacySpreadsheet reports the binary .xls format, which is not supported.
func IsLegacySpreadsheet(ext string) bool {
	return NormalizeExt(ext) == ".xls"
}

// Load reads path as a table. Spreadsheet extensions ignore encoding and
// delimiter; everything else is parsed as delimited text.
func Load(path, encoding string, delimiter rune, ext string) (*File, error) {
	ext = NormalizeExt(ext)
	switch {
	case IsSpreadsheet(ext):
		return loadWorkbook(path)
	case IsLegacySpreadsheet(ext):
		if _, err := os.Stat(path); err != nil {
			return nil, &FileAccessError{Path: path, Err: err}
		}
		return nil, &LoadError{Path: path, Reason: "legacy .xls workbooks are not supported"}
	default:
		return loadDelimited(path, encoding, delimiter)
	}
}

// LoadPath sniffs path when it is a text file and loads it.
func LoadPath(path string, opts SniffOptions) (*File, error) {
	ext := filepath.Ext(path)
	if IsSpreadsheet(ext) || IsLegacySpreadsheet(ext) {
		return Load(path, "", 0, ext)
	}
	s := SniffWith(path, opts)
	return Load(path, s.Encoding, s.Delimiter, ext)
}

func loadDelimited(path, encoding string, delimiter rune) (*File, error) {
	if delimiter == 0 {
		delimiter = DefaultDelimiter
	}
	if encoding == "" {
		encoding = DefaultEncoding
	}

	tf, err := OpenText(path, encoding)
	if err != nil {
		return nil, err
	}
	defer tf.Close()

	if tf.Size == 0 {
		return nil, &LoadError{Path: path, Reason: "empty file"}
	}

	r := csv.NewReader(tf)
	r.Comma = delimiter
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	out := &File{Path: path, Encoding: encoding, Delimiter: delimiter}
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pathErr *os.PathError
			if errors.As(err, &pathErr) {
				return nil, &FileAccessError{Path: path, Err: err}
			}
			return nil, &LoadError{Path: path, Reason: "parse", Err: err}
		}

		if out.Headers == nil {
			if IsBlankRow(record) {
				continue
			}
			out.Headers = trimHeaders(record)
			continue
		}
		out.Rows = append(out.Rows, record)
	}

	if out.Headers == nil {
		return nil, &LoadError{Path: path, Reason: "no header row"}
	}
	return out, nil
}

func loadWorkbook(path string) (*File, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &FileAccessError{Path: path, Err: err}
	}

	wb, err := excelize.OpenFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Reason: "open workbook", Err: err}
	}
	defer func() { _ = wb.Close() }()

	for _, sheet := range wb.GetSheetList() {
		rows, err := wb.GetRows(sheet)
		if err != nil {
			return nil, &LoadError{Path: path, Reason: fmt.Sprintf("read sheet %q", sheet), Err: err}
		}

		start := 0
		for start < len(rows) && IsBlankRow(rows[start]) {
			start++
		}
		if start == len(rows) {
			continue
		}

		return &File{
			Path:     path,
			Encoding: EncodingUTF8,
			Headers:  trimHeaders(rows[start]),
			Rows:     rows[start+1:],
		}, nil
	}

	return nil, &LoadError{Path: path, Reason: "workbook has no data"}
}

func trimHeaders(record []string) []string {
	headers := make([]string, len(record))
	for i, h := range record {
		headers[i] = strings.TrimSpace(h)
	}
	return headers
}

// Cell returns row[i] or "" when the row is too short.
func Cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

// ColumnIndex returns the first header equal to name, or -1.
func ColumnIndex(headers []string, name string) int {
	for i, h := range headers {
		if h == name {
			return i
		}
	}
	return -1
}
