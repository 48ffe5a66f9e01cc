// Package views renders the HTML pages of the search service.
package views

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/colsearch/internal/core"
	"github.com/JonMunkholm/colsearch/internal/export"
)

// PreviewRows caps the matched rows shown on a results page.
const PreviewRows = 200

const styles = `body{font-family:system-ui,sans-serif;margin:2rem;color:#1f2937}
table{border-collapse:collapse;font-size:.875rem;margin:1rem 0}
th,td{border:1px solid #d1d5db;padding:.25rem .5rem;text-align:left;vertical-align:top}
th{background:#f3f4f6}
.alert{border:1px solid #fca5a5;background:#fef2f2;padding:.75rem;border-radius:.375rem}
.muted{color:#6b7280}
.failed,.skipped{color:#b91c1c}
.matched{color:#047857}`

// SearchPageParams holds the data shown for one run.
type SearchPageParams struct {
	Progress core.RunProgress
	// Result is nil while the run is still going.
	Result *core.RunResult
	// Table is the flattened matches of a finished run.
	Table *export.Table
}

// Page wraps body in the document shell.
func Page(title string, refresh bool, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &printer{w: w}
		p.raw("<!DOCTYPE html><html lang=\"en\"><head><meta charset=\"utf-8\">")
		if refresh {
			p.raw(`<meta http-equiv="refresh" content="2">`)
		}
		p.raw("<title>")
		p.text(title)
		p.raw("</title><style>" + styles + "</style></head><body>")
		if p.err != nil {
			return p.err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		p.raw("</body></html>")
		return p.err
	})
}

// SearchPage renders a run: progress while it runs, files and matches once
// it is finished.
func SearchPage(params SearchPageParams) templ.Component {
	refresh := params.Result == nil
	return Page("Search "+params.Progress.RunID, refresh, templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &printer{w: w}
		prog := params.Progress

		p.raw("<h1>Search <code>")
		p.text(prog.RunID)
		p.raw("</code></h1><p class=\"muted\">Column <strong>")
		p.text(prog.Column)
		p.raw("</strong> under ")
		p.text(prog.Root)
		p.raw("</p>")

		if params.Result == nil {
			p.raw("<p>")
			p.text(fmt.Sprintf("%s: %d of %d files (%d%%), %d matches", prog.Phase, prog.FilesDone, prog.FilesTotal, prog.Percent(), prog.Matches))
			p.raw("</p>")
			if prog.CurrentFile != "" {
				p.raw("<p class=\"muted\">Scanning ")
				p.text(prog.CurrentFile)
				p.raw("</p>")
			}
			return p.err
		}

		res := params.Result
		p.raw("<p>")
		p.text(fmt.Sprintf("%s in %s: %d matches in %d of %d files", res.Phase, res.Duration.Round(time.Millisecond), res.Matches, res.Count(core.FileMatched), len(res.Files)))
		p.raw("</p>")
		if res.Error != "" {
			p.raw("<div class=\"alert\">")
			p.text(res.Error)
			p.raw("</div>")
		}
		if res.Matches > 0 {
			base := "/api/search/" + templ.EscapeString(res.RunID) + "/export?format="
			p.raw(`<p><a href="` + base + `csv">Download CSV</a> | <a href="` + base + `xlsx">Download XLSX</a></p>`)
		}

		p.raw("<h2>Files</h2><table><thead><tr><th>File</th><th>Status</th><th>Matches</th><th>Encoding</th><th>Delimiter</th><th>Note</th></tr></thead><tbody>")
		for _, f := range res.Files {
			p.raw("<tr><td title=\"")
			p.text(f.Path)
			p.raw("\">")
			p.text(f.Name)
			p.raw("</td><td class=\"")
			p.text(string(f.Status))
			p.raw("\">")
			p.text(string(f.Status))
			p.raw("</td><td>")
			p.text(strconv.Itoa(f.Matches))
			p.raw("</td><td>")
			p.text(f.Encoding)
			p.raw("</td><td>")
			p.text(f.Delimiter)
			p.raw("</td><td>")
			if f.Fallback {
				p.text("text lines")
			}
			p.text(f.Error)
			p.raw("</td></tr>")
		}
		p.raw("</tbody></table>")

		if params.Table != nil && params.Table.Len() > 0 {
			p.raw("<h2>Matches</h2>")
			renderTable(p, params.Table, PreviewRows)
		}
		return p.err
	}))
}

func renderTable(p *printer, t *export.Table, limit int) {
	p.raw("<table><thead><tr>")
	for _, h := range t.Header {
		p.raw("<th>")
		p.text(h)
		p.raw("</th>")
	}
	p.raw("</tr></thead><tbody>")
	for i, row := range t.Rows {
		if i == limit {
			break
		}
		p.raw("<tr>")
		for _, cell := range row {
			p.raw("<td>")
			p.text(cell)
			p.raw("</td>")
		}
		p.raw("</tr>")
	}
	p.raw("</tbody></table>")
	if t.Len() > limit {
		p.raw("<p class=\"muted\">")
		p.text(fmt.Sprintf("Showing %d of %d rows. Download the export for the rest.", limit, t.Len()))
		p.raw("</p>")
	}
}

// HistoryPage lists recent runs, newest first.
func HistoryPage(runs []core.RunSummary) templ.Component {
	return Page("Search history", false, templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		p := &printer{w: w}
		p.raw("<h1>Recent searches</h1>")
		if len(runs) == 0 {
			p.raw("<p class=\"muted\">No searches yet.</p>")
			return p.err
		}
		p.raw("<table><thead><tr><th>Started</th><th>Root</th><th>Column</th><th>Terms</th><th>Mode</th><th>Phase</th><th>Files</th><th>Matches</th></tr></thead><tbody>")
		for _, r := range runs {
			p.raw("<tr><td><a href=\"/search/" + templ.EscapeString(r.RunID) + "\">")
			p.text(r.StartedAt.Format(time.DateTime))
			p.raw("</a></td><td>")
			p.text(r.Root)
			p.raw("</td><td>")
			p.text(r.Column)
			p.raw("</td><td>")
			p.text(strings.Join(r.Terms, ", "))
			p.raw("</td><td>")
			p.text(r.Mode)
			p.raw("</td><td>")
			p.text(string(r.Phase))
			p.raw("</td><td>")
			p.text(fmt.Sprintf("%d/%d", r.FilesMatched, r.FilesScanned))
			p.raw("</td><td>")
			p.text(strconv.Itoa(r.Matches))
			p.raw("</td></tr>")
		}
		p.raw("</tbody></table>")
		return p.err
	}))
}

// ErrorAlert renders an error fragment for HTMX swaps.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		p := &printer{w: w}
		p.raw(`<div class="alert" role="alert"><strong>`)
		p.text(message)
		p.raw("</strong>")
		if action != "" {
			p.raw("<p>")
			p.text(action)
			p.raw("</p>")
		}
		p.raw(`<p class="muted">Code: `)
		p.text(code)
		p.raw("</p></div>")
		return p.err
	})
}

// printer writes markup and escaped text, keeping the first error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) raw(s string) {
	if p.err != nil {
		return
	}
	_, p.err = io.WriteString(p.w, s)
}

func (p *printer) text(s string) {
	p.raw(templ.EscapeString(s))
}
