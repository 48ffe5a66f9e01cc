package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/colsearch/internal/core"
	"github.com/JonMunkholm/colsearch/internal/export"
	"github.com/JonMunkholm/colsearch/internal/logging"
	"github.com/JonMunkholm/colsearch/internal/web/views"
	"github.com/go-chi/chi/v5"
)

// maxBodySize caps JSON request bodies.
const maxBodySize = 1 << 20

// maxHistoryLimit caps the history page size.
const maxHistoryLimit = 500

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// handleHealth reports liveness and run slot usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"searches": s.service.LimiterStatus(),
	})
}

// handleStartSearch validates a search request and starts it in the background.
func (s *Server) handleStartSearch(w http.ResponseWriter, r *http.Request) {
	var req core.SearchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	if err := s.checkPath("root", req.Root); err != nil {
		s.fail(w, r, err)
		return
	}

	runID, err := s.service.StartSearch(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/search/"+runID+"/result")
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

// handleActiveSearches lists the runs the service still tracks.
func (s *Server) handleActiveSearches(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Active())
}

// handleSearchProgress streams run progress via Server-Sent Events.
// Supports resumption via Last-Event-ID or the lastEventId query parameter.
func (s *Server) handleSearchProgress(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	// The event ID is the progress percentage, so a reconnecting client can
	// skip what it has already seen.
	lastEventIDStr := r.Header.Get("Last-Event-ID")
	if lastEventIDStr == "" {
		lastEventIDStr = r.URL.Query().Get("lastEventId")
	}
	lastEventID := -1
	if lastEventIDStr != "" {
		if n, err := strconv.Atoi(lastEventIDStr); err == nil {
			lastEventID = n
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, r, errors.New("streaming not supported"), http.StatusInternalServerError)
		return
	}

	progressCh, err := s.service.SubscribeProgress(runID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	logger := logging.WithFields(r.Context(), "run_id", runID)
	var last core.RunProgress
	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				// Run finished; send the final state.
				if final, err := s.service.GetProgress(runID); err == nil {
					last = final
				}
				data, _ := json.Marshal(last)
				fmt.Fprintf(w, "event: complete\ndata: %s\n\n", data)
				flusher.Flush()
				return
			}
			last = progress

			percent := progress.Percent()
			if percent < lastEventID || (percent == lastEventID && !progress.Phase.Terminal()) {
				continue
			}

			data, err := json.Marshal(progress)
			if err != nil {
				logger.Error("encode progress", "error", err)
				continue
			}
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", percent, data)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// handleSearchResult returns the result of a finished run. With wait=true it
// blocks until the run finishes or the request ends.
func (s *Server) handleSearchResult(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	var (
		res *core.RunResult
		err error
	)
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		res, err = s.service.GetResult(r.Context(), runID)
		// A run that ended badly still has a result worth returning.
		if res != nil {
			err = nil
		}
	} else {
		res, err = s.service.Result(runID)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// handleCancelSearch cancels an in-progress run.
func (s *Server) handleCancelSearch(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if err := s.service.Cancel(runID); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

// handleExportSearch streams the aggregated matches of a finished run as a
// CSV or XLSX download. A run without matches yields 204.
func (s *Server) handleExportSearch(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	format := exportFormat(r)

	res, err := s.service.Result(runID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	table := export.Build(res.Results)
	if table.Len() == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var (
		buf         bytes.Buffer
		contentType string
	)
	switch format {
	case "csv":
		contentType = "text/csv; charset=utf-8"
		err = export.WriteCSV(&buf, table)
	case "xlsx":
		contentType = xlsxContentType
		err = export.WriteXLSX(&buf, table)
	default:
		err = export.ErrUnsupportedFormat
	}
	if err != nil {
		s.fail(w, r, &export.ExportError{Path: "search-" + runID + "." + format, Err: err})
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="search-%s.%s"`, runID, format))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if _, err := buf.WriteTo(w); err != nil {
		logging.FromContext(r.Context()).Warn("export download interrupted", "run_id", runID, "error", err)
	}
}

// handleSaveExport writes the export into the server's export directory.
func (s *Server) handleSaveExport(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	path := s.service.ExportPath(runID, exportFormat(r))

	n, err := s.service.Export(r.Context(), runID, path)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if n == 0 {
		path = ""
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": path, "rows": n})
}

// handleSearchPage renders a run as HTML.
func (s *Server) handleSearchPage(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	progress, err := s.service.GetProgress(runID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	params := views.SearchPageParams{Progress: progress}
	res, err := s.service.Result(runID)
	switch {
	case errors.Is(err, core.ErrRunInProgress):
	case err != nil:
		s.fail(w, r, err)
		return
	default:
		params.Result = res
		params.Table = export.Build(res.Results)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.SearchPage(params).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render search page", "error", err)
	}
}

// handleIndex renders the recent runs.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	runs, err := s.service.History(r.Context(), core.DefaultHistoryLimit)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.HistoryPage(runs).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render history page", "error", err)
	}
}

// handleHistory returns recent run summaries as JSON.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", core.DefaultHistoryLimit)
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	runs, err := s.service.History(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if runs == nil {
		runs = []core.RunSummary{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// exportFormat reads the format query parameter, defaulting to csv.
func exportFormat(r *http.Request) string {
	f := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format"))), ".")
	if f == "" {
		return "csv"
	}
	return f
}

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &core.ValidationError{Field: "body", Message: "request body must be a JSON object", Code: "VAL004"}
	}
	return nil
}
