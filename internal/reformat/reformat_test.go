package reformat

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/colsearch/internal/match"
	"github.com/JonMunkholm/colsearch/internal/tabular"
)

var fixedNow = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2024-03-15", "2024-03-15", true},
		{"3/15/2024", "2024-03-15", true},
		{"03/15/2024", "2024-03-15", true},
		{"15.03.2024", "", false},
		{"3.15.2024", "2024-03-15", true},
		{"2024/03/15", "2024-03-15", true},
		{"Mar 15, 2024", "2024-03-15", true},
		{"15 Mar 2024", "2024-03-15", true},
		{"15-Mar-2024", "2024-03-15", true},
		{"20240315", "2024-03-15", true},
		{"2024-03-15 10:30:00", "2024-03-15", true},
		{"3/15/24", "2024-03-15", true},
		{"3/15/60", "1960-03-15", true},
		{"3/15/45", "2045-03-15", true},
		{"3/15/46", "1946-03-15", true},
		{"  2024-03-15  ", "2024-03-15", true},
		{"", "", false},
		{"not a date", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseDate(tt.in, fixedNow)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got.Format(DefaultLayout))
			}
		})
	}
}

func TestLayout(t *testing.T) {
	assert.Equal(t, DefaultLayout, Layout(""))
	assert.Equal(t, "01/02/2006", Layout("MM/DD/YYYY"))
	assert.Equal(t, "02.01.06", Layout("dd.mm.yy"))
	assert.Equal(t, "1/2/2006", Layout("M/D/YYYY"))
	assert.Equal(t, "Jan 2, 2006", Layout("Jan 2, 2006"))
	assert.Equal(t, "2006-01-02", Layout("2006-01-02"))
}

func TestApply(t *testing.T) {
	f := &tabular.File{
		Path:      "in.csv",
		Delimiter: ',',
		Headers:   []string{"id", "start", "end"},
		Rows: [][]string{
			{"1", "3/15/2024", "2024-04-01"},
			{"2", "someday", ""},
			{"3"},
		},
	}

	rep, err := Apply(f, Options{DateColumns: []string{"start", "end"}, OutputLayout: "MM/DD/YYYY", Now: func() time.Time { return fixedNow }})
	require.NoError(t, err)

	assert.Equal(t, 3, rep.Rows)
	assert.Equal(t, 2, rep.Converted)
	assert.Equal(t, 1, rep.Unparsed)
	assert.Equal(t, []string{"1", "03/15/2024", "04/01/2024"}, f.Rows[0])
	assert.Equal(t, []string{"2", "someday", ""}, f.Rows[1])
	assert.Equal(t, "comma", rep.InputDelimiter)
}

func TestApply_MissingColumn(t *testing.T) {
	f := &tabular.File{Headers: []string{"id"}}
	_, err := Apply(f, Options{DateColumns: []string{"when"}})

	var notFound *match.ColumnNotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.csv")
	out := filepath.Join(dir, "out.tsv")
	require.NoError(t, os.WriteFile(in, []byte("id;date\n1;1/2/2024\n2;\"x;y\"\n"), 0o644))

	rep, err := File(in, out, Options{DateColumns: []string{"date"}, Delimiter: '\t'}, tabular.SniffOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Converted)
	assert.Equal(t, 1, rep.Unparsed)
	assert.Equal(t, "semicolon", rep.InputDelimiter)
	assert.Equal(t, out, rep.OutputPath)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "id\tdate\n1\t2024-01-02\n2\tx;y\n", string(got))
}

func TestFile_RejectsWorkbook(t *testing.T) {
	_, err := File("book.xlsx", "out.csv", Options{}, tabular.SniffOptions{})
	var loadErr *tabular.LoadError
	assert.True(t, errors.As(err, &loadErr))
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	f := &tabular.File{Headers: []string{"a", "b"}, Rows: [][]string{{"1", "x|y"}}}
	require.NoError(t, Write(&buf, f, '|'))
	assert.Equal(t, "a|b\n1|\"x|y\"\n", buf.String())
}
