package web

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/colsearch/internal/reformat"
)

func TestSniff(t *testing.T) {
	e := newTestEnv(t, nil)
	path := writeFixture(t, e.dir, "pipes.txt", "a|b|c\n1|2|3\n4|5|6\n")

	rec := e.do(t, http.MethodPost, "/api/sniff", map[string]string{"path": path})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[sniffResponse](t, rec)
	assert.Equal(t, "pipe", got.Delimiter)
	assert.Equal(t, "utf-8", got.Encoding)
	assert.False(t, got.Spreadsheet)

	rec = e.do(t, http.MethodPost, "/api/sniff", map[string]string{"path": filepath.Join(e.dir, "missing.csv")})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "FILE001", decode[ErrorResponse](t, rec).Code)

	rec = e.do(t, http.MethodPost, "/api/sniff", map[string]string{"path": e.dir})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBase64(t *testing.T) {
	e := newTestEnv(t, nil)

	rec := e.do(t, http.MethodPost, "/api/tools/base64", map[string]any{"op": "encode", "input": "hi?"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "aGk/", decode[map[string]string](t, rec)["output"])

	rec = e.do(t, http.MethodPost, "/api/tools/base64", map[string]any{"op": "encode", "input": "hi?", "urlSafe": true})
	assert.Equal(t, "aGk_", decode[map[string]string](t, rec)["output"])

	rec = e.do(t, http.MethodPost, "/api/tools/base64", map[string]any{"op": "decode", "input": " aGk "})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hi", decode[map[string]string](t, rec)["output"])

	rec = e.do(t, http.MethodPost, "/api/tools/base64", map[string]any{"op": "decode", "input": "!!!"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VAL004", decode[ErrorResponse](t, rec).Code)

	rec = e.do(t, http.MethodPost, "/api/tools/base64", map[string]any{"op": "rot13", "input": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCronJob(t *testing.T) {
	e := newTestEnv(t, nil)

	rec := e.do(t, http.MethodPost, "/api/tools/cronjob", map[string]any{
		"name":     "dlq-replay",
		"schedule": "0 2 * * *",
		"image":    "registry.local/dlq:1.4",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/yaml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "kind: CronJob")

	rec = e.do(t, http.MethodPost, "/api/tools/cronjob", map[string]any{"name": "x", "schedule": "61 * * * *"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VAL004", decode[ErrorResponse](t, rec).Code)
}

func TestZipLookup(t *testing.T) {
	e := newTestEnv(t, nil)

	rec := e.do(t, http.MethodPost, "/api/tools/zip", map[string]any{"zips": []string{"89501-1234", "501", "abc"}})
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[[]zipLookup](t, rec)
	require.Len(t, got, 3)
	assert.Equal(t, zipLookup{Input: "89501-1234", Zip: "89501", State: "NV", Found: true}, got[0])
	assert.Equal(t, "00501", got[1].Zip)
	assert.False(t, got[2].Found)

	rec = e.do(t, http.MethodPost, "/api/tools/zip", map[string]any{"zips": []string{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHeatmap(t *testing.T) {
	e := newTestEnv(t, nil)
	path := writeFixture(t, e.dir, "customers.csv", "name,zip\nA,89501\nB,89502-0001\nC,\nD,nope\n")

	rec := e.do(t, http.MethodPost, "/api/tools/heatmap", map[string]string{"path": path, "column": "zip"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[map[string]any](t, rec)
	assert.EqualValues(t, 1, got["unmatched"])
	assert.EqualValues(t, 2, got["max"])

	rec = e.do(t, http.MethodPost, "/api/tools/heatmap", map[string]string{"path": path, "column": "postal"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "FILE003", decode[ErrorResponse](t, rec).Code)
}

func TestReformat(t *testing.T) {
	e := newTestEnv(t, nil)
	path := writeFixture(t, e.dir, "dates.csv", "id;date\n1;1/2/2024\n2;soon\n")

	rec := e.do(t, http.MethodPost, "/api/tools/reformat", map[string]any{
		"path":        path,
		"dateColumns": []string{"date"},
		"delimiter":   "tab",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rep := decode[reformat.Report](t, rec)
	assert.Equal(t, 1, rep.Converted)
	assert.Equal(t, 1, rep.Unparsed)
	assert.Equal(t, filepath.Join(e.dir, "dates-reformatted.csv"), rep.OutputPath)

	out, err := os.ReadFile(rep.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, "id\tdate\n1\t2024-01-02\n2\tsoon\n", string(out))

	rec = e.do(t, http.MethodPost, "/api/tools/reformat", map[string]any{"path": path, "delimiter": "::"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAllowedRoots(t *testing.T) {
	allowed := t.TempDir()
	e := newTestEnv(t, map[string]string{"ALLOWED_ROOTS": allowed})
	inside := writeFixture(t, allowed, "in.csv", "id,zip\n1,89501\n")
	outside := filepath.Join(e.dir, "a.csv")

	rec := e.do(t, http.MethodPost, "/api/sniff", map[string]string{"path": inside})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	tests := []struct {
		name string
		path string
		body any
	}{
		{"sniff outside", "/api/sniff", map[string]string{"path": outside}},
		{"sniff traversal", "/api/sniff", map[string]string{"path": filepath.Join(allowed, "..", filepath.Base(e.dir), "a.csv")}},
		{"heatmap outside", "/api/tools/heatmap", map[string]string{"path": outside, "column": "zip"}},
		{"reformat output outside", "/api/tools/reformat", map[string]any{"path": inside, "out": filepath.Join(e.dir, "out.csv")}},
		{"search root outside", "/api/search", map[string]any{"root": e.dir, "column": "zip", "terms": []string{"895"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(t, http.MethodPost, tt.path, tt.body)
			require.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
			assert.Equal(t, "AUTH003", decode[ErrorResponse](t, rec).Code)
		})
	}

	_, err := os.Stat(filepath.Join(e.dir, "out.csv"))
	assert.True(t, os.IsNotExist(err))

	rec = e.do(t, http.MethodPost, "/api/search", map[string]any{"root": allowed, "column": "zip", "terms": []string{"895"}})
	assert.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	_, err = e.service.GetResult(context.Background(), decode[map[string]string](t, rec)["run_id"])
	assert.NoError(t, err)
}

func TestWithin(t *testing.T) {
	root := filepath.FromSlash("/data/exports")
	assert.True(t, within(root, root))
	assert.True(t, within(root, filepath.Join(root, "a", "b.csv")))
	assert.True(t, within(root, filepath.Join(root, "..exports-notes")))
	assert.False(t, within(root, filepath.FromSlash("/data/exports-old/a.csv")))
	assert.False(t, within(root, filepath.FromSlash("/data")))
}
