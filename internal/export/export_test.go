package export

import (
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/colsearch/internal/match"
)

func sampleResults() []*match.Result {
	return []*match.Result{
		{
			Path:    "/data/a.csv",
			Column:  "zip",
			Terms:   []string{"895", "891"},
			Headers: []string{"id", "city", "zip"},
			Rows: []match.Row{
				{Index: 0, Values: []string{"1", "Reno", "89501"}, Value: "89501", MatchedTerms: []string{"895"}},
				{Index: 2, Values: []string{"3", "Vegas", "89101", "extra"}, Value: "89101", MatchedTerms: []string{"891"}},
			},
			MatchedTerms: []string{"895", "891"},
		},
		{
			Path:    "/data/b.csv",
			Column:  "zip",
			Terms:   []string{"895", "891"},
			Headers: []string{"zip", "name", "name"},
			Rows: []match.Row{
				{Index: 0, Values: []string{"89595", "x", "y"}, Value: "89595", MatchedTerms: []string{"895"}},
			},
			MatchedTerms: []string{"895"},
		},
		{
			Path:     "/data/log.txt",
			Terms:    []string{"895", "891"},
			Fallback: true,
			Lines: []match.Line{
				{Number: 7, Text: "zip 89501 failed", MatchedTerms: []string{"895"}},
			},
			MatchedTerms: []string{"895"},
		},
	}
}

func TestBuild(t *testing.T) {
	tbl := Build(sampleResults())

	wantHeader := append(append([]string{}, ProvenanceColumns...),
		"id", "city", "zip", "Column 4", "name", "name.1", LineNumberColumn, LineTextColumn)
	assert.Equal(t, wantHeader, tbl.Header)
	require.Equal(t, 4, tbl.Len())

	assert.Equal(t, []string{
		"a.csv", "/data/a.csv", "zip", "89501", "895; 891", "895",
		"1", "Reno", "89501", "", "", "", "", "",
	}, tbl.Rows[0])
	assert.Equal(t, []string{
		"a.csv", "/data/a.csv", "zip", "89101", "895; 891", "891",
		"3", "Vegas", "89101", "extra", "", "", "", "",
	}, tbl.Rows[1])
	assert.Equal(t, []string{
		"b.csv", "/data/b.csv", "zip", "89595", "895; 891", "895",
		"", "", "89595", "", "x", "y", "", "",
	}, tbl.Rows[2])
	assert.Equal(t, []string{
		"log.txt", "/data/log.txt", "", "zip 89501 failed", "895; 891", "895",
		"", "", "", "", "", "", "7", "zip 89501 failed",
	}, tbl.Rows[3])
}

func TestBuild_RowCountEqualsSumOfMatches(t *testing.T) {
	results := sampleResults()
	assert.Equal(t, match.Total(results), Build(results).Len())
}

func TestUniqueHeaders(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"no duplicates", []string{"a", "b"}, []string{"a", "b"}},
		{"duplicates", []string{"a", "a", "a"}, []string{"a", "a.1", "a.2"}},
		{"suffix already taken", []string{"a", "a.1", "a"}, []string{"a", "a.1", "a.2"}},
		{"blank header", []string{"a", "", " "}, []string{"a", "Column 2", "Column 3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UniqueHeaders(tt.in))
		})
	}
}

func TestWrite_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "results.csv")

	n, err := Write(path, sampleResults())
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 5)
	assert.Equal(t, ProvenanceColumns, records[0][:len(ProvenanceColumns)])
	assert.Equal(t, "Reno", records[1][7])

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(path), ".export-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestWrite_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.xlsx")

	n, err := Write(path, sampleResults())
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	wb, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer wb.Close()

	assert.Equal(t, []string{SheetName}, wb.GetSheetList())
	rows, err := wb.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "File Name", rows[0][0])
	assert.Equal(t, "log.txt", rows[4][0])
}

func TestWrite_EmptyIsNoOp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")

	n, err := Write(path, []*match.Result{{Path: "/x.csv", Headers: []string{"a"}}})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	n, err = Write(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestWrite_Errors(t *testing.T) {
	t.Run("unsupported format", func(t *testing.T) {
		_, err := Write(filepath.Join(t.TempDir(), "out.json"), sampleResults())
		var exportErr *ExportError
		require.True(t, errors.As(err, &exportErr))
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("unwritable location", func(t *testing.T) {
		dir := t.TempDir()
		blocker := filepath.Join(dir, "file")
		require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

		results := sampleResults()
		_, err := Write(filepath.Join(blocker, "out.csv"), results)
		var exportErr *ExportError
		require.True(t, errors.As(err, &exportErr))

		// results are untouched and a retry elsewhere succeeds
		n, err := Write(filepath.Join(dir, "retry.csv"), results)
		require.NoError(t, err)
		assert.Equal(t, 4, n)
	})
}
