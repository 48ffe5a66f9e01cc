package web

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/colsearch/internal/core"
	"github.com/JonMunkholm/colsearch/internal/reformat"
	"github.com/JonMunkholm/colsearch/internal/tabular"
	"github.com/JonMunkholm/colsearch/internal/tools"
	"github.com/JonMunkholm/colsearch/internal/zipstate"
)

// maxZipLookups caps one zip lookup request.
const maxZipLookups = 10000

type sniffRequest struct {
	Path string `json:"path"`
}

type sniffResponse struct {
	Path        string `json:"path"`
	Encoding    string `json:"encoding"`
	Delimiter   string `json:"delimiter"`
	Spreadsheet bool   `json:"spreadsheet"`
	Size        int64  `json:"size"`
}

type base64Request struct {
	// Op is encode or decode.
	Op      string `json:"op"`
	Input   string `json:"input"`
	URLSafe bool   `json:"urlSafe"`
}

type zipRequest struct {
	Zips []string `json:"zips"`
}

type zipLookup struct {
	Input string `json:"input"`
	Zip   string `json:"zip,omitempty"`
	State string `json:"state,omitempty"`
	Found bool   `json:"found"`
}

type heatmapRequest struct {
	Path   string `json:"path"`
	Column string `json:"column"`
}

type reformatRequest struct {
	Path         string   `json:"path"`
	Out          string   `json:"out"`
	DateColumns  []string `json:"dateColumns"`
	OutputFormat string   `json:"outputFormat"`
	Delimiter    string   `json:"delimiter"`
}

// invalid wraps a tool input problem as a validation error.
func invalid(field string, err error) error {
	return &core.ValidationError{Field: field, Message: err.Error(), Code: "VAL004"}
}

func (s *Server) sniffOptions() tabular.SniffOptions {
	return tabular.SniffOptions{
		SampleBytes: s.cfg.Search.SniffBytes,
		SampleLines: s.cfg.Search.SniffLines,
	}
}

// statFile checks that path names a readable regular file inside the
// allowed roots.
func (s *Server) statFile(path string) (os.FileInfo, error) {
	if strings.TrimSpace(path) == "" {
		return nil, &core.ValidationError{Field: "path", Message: "a file path is required", Code: "VAL001"}
	}
	if err := s.checkPath("path", path); err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, &tabular.FileAccessError{Path: path, Err: err}
	}
	if info.IsDir() {
		return nil, &core.ValidationError{Field: "path", Value: path, Message: "must be a file, not a folder", Code: "VAL004"}
	}
	return info, nil
}

// handleSniff reports the detected encoding and delimiter of a file.
func (s *Server) handleSniff(w http.ResponseWriter, r *http.Request) {
	var req sniffRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	info, err := s.statFile(req.Path)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	resp := sniffResponse{
		Path:        req.Path,
		Spreadsheet: tabular.IsSpreadsheet(filepath.Ext(req.Path)),
		Size:        info.Size(),
	}
	if !resp.Spreadsheet {
		sn := tabular.SniffWith(req.Path, s.sniffOptions())
		resp.Encoding = sn.Encoding
		resp.Delimiter = sn.DelimiterName()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleBase64 encodes or decodes text.
func (s *Server) handleBase64(w http.ResponseWriter, r *http.Request) {
	var req base64Request
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	switch strings.ToLower(req.Op) {
	case "", "encode":
		if req.Input == "" {
			s.fail(w, r, invalid("input", tools.ErrEmptyInput))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"output": tools.Base64Encode([]byte(req.Input), req.URLSafe)})
	case "decode":
		out, err := tools.Base64Decode(req.Input, req.URLSafe)
		if err != nil {
			s.fail(w, r, invalid("input", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"output": string(out)})
	default:
		s.fail(w, r, &core.ValidationError{Field: "op", Value: req.Op, Message: "must be encode or decode", Code: "VAL004"})
	}
}

// handleCronJob renders a CronJob manifest as YAML.
func (s *Server) handleCronJob(w http.ResponseWriter, r *http.Request) {
	var spec tools.CronJobSpec
	if err := decodeJSON(w, r, &spec); err != nil {
		s.fail(w, r, err)
		return
	}

	manifest, err := tools.GenerateCronJob(spec)
	if err != nil {
		s.fail(w, r, invalid("cronjob", err))
		return
	}

	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	w.Write(manifest)
}

// handleZipLookup maps zip codes to states.
func (s *Server) handleZipLookup(w http.ResponseWriter, r *http.Request) {
	var req zipRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if len(req.Zips) == 0 {
		s.fail(w, r, &core.ValidationError{Field: "zips", Message: "at least one zip code is required", Code: "VAL003"})
		return
	}
	if len(req.Zips) > maxZipLookups {
		s.fail(w, r, invalid("zips", errors.New("too many zip codes in one request")))
		return
	}

	out := make([]zipLookup, len(req.Zips))
	for i, raw := range req.Zips {
		out[i] = zipLookup{Input: raw}
		if zip, ok := zipstate.Normalize(raw); ok {
			out[i].Zip = zip
		}
		out[i].State, out[i].Found = zipstate.Lookup(raw)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleHeatmap counts the zip codes of one column per state.
func (s *Server) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	var req heatmapRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if _, err := s.statFile(req.Path); err != nil {
		s.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.Column) == "" {
		s.fail(w, r, &core.ValidationError{Field: "column", Message: "a column name is required", Code: "VAL002"})
		return
	}

	h, err := zipstate.HeatmapFile(req.Path, req.Column, s.sniffOptions())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"states":    h.Sorted(),
		"unmatched": h.Unmatched,
		"total":     h.Total,
		"max":       h.Max(),
	})
}

// handleReformat rewrites the date columns and delimiter of a file.
func (s *Server) handleReformat(w http.ResponseWriter, r *http.Request) {
	var req reformatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if _, err := s.statFile(req.Path); err != nil {
		s.fail(w, r, err)
		return
	}

	opts := reformat.Options{
		DateColumns:  req.DateColumns,
		OutputLayout: req.OutputFormat,
	}
	if req.Delimiter != "" {
		d, ok := tabular.ParseDelimiter(req.Delimiter)
		if !ok {
			s.fail(w, r, &core.ValidationError{Field: "delimiter", Value: req.Delimiter, Message: "must be tab, comma, pipe, semicolon or one character", Code: "VAL004"})
			return
		}
		opts.Delimiter = d
	}

	out := req.Out
	if out == "" {
		out = reformattedPath(req.Path)
	}
	if err := s.checkPath("out", out); err != nil {
		s.fail(w, r, err)
		return
	}

	rep, err := reformat.File(req.Path, out, opts, s.sniffOptions())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// reformattedPath places the output next to the input: data.csv becomes
// data-reformatted.csv.
func reformattedPath(in string) string {
	ext := filepath.Ext(in)
	return strings.TrimSuffix(in, ext) + "-reformatted" + ext
}
