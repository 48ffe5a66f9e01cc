package core

// run.go implements the search workflow:
//
//	idle -> validating -> scanning -> aggregating -> done | failed | cancelled
//
// Files are processed one at a time in sorted path order. Per-file problems
// (unreadable file, unparseable content, missing column, oversized file) are
// recorded as a FileOutcome and never stop the scan. Only setup errors, such
// as a missing or vanished root folder, end the run in the failed phase.

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/JonMunkholm/colsearch/internal/logging"
	"github.com/JonMunkholm/colsearch/internal/match"
	"github.com/JonMunkholm/colsearch/internal/tabular"
)

// ErrRunCancelled is returned when a run stops because its context ended.
var ErrRunCancelled = errors.New("search run cancelled")

// RootError reports a search root that is missing, is not a directory, or
// could not be walked.
type RootError struct {
	Root string
	Err  error
}

func (e *RootError) Error() string {
	return fmt.Sprintf("search root unavailable: %s: %v", e.Root, e.Err)
}

func (e *RootError) Unwrap() error { return e.Err }

var errNotDir = errors.New("not a directory")

// RunOptions tune how files are discovered and read.
type RunOptions struct {
	Sniff tabular.SniffOptions

	// MaxFileSize skips larger files. Zero means no limit.
	MaxFileSize int64

	// DefaultFileTypes apply when a request names no file types.
	DefaultFileTypes []string
}

// Search runs a search synchronously. notify, which may be nil, receives a
// progress snapshot after every phase change and every processed file.
//
// The returned result is non-nil even when err is not: a failed or cancelled
// run still reports the files it got through.
func Search(ctx context.Context, req SearchRequest, opts RunOptions, notify func(RunProgress)) (*RunResult, error) {
	return newRun("", req, opts, notify).execute(ctx)
}

type run struct {
	id       string
	req      SearchRequest
	opts     RunOptions
	notify   func(RunProgress)
	progress RunProgress
	result   *RunResult
	logger   *slog.Logger
}

func newRun(id string, req SearchRequest, opts RunOptions, notify func(RunProgress)) *run {
	return &run{
		id:     id,
		req:    req,
		opts:   opts,
		notify: notify,
		progress: RunProgress{
			RunID:  id,
			Phase:  PhaseIdle,
			Root:   req.Root,
			Column: req.Column,
		},
	}
}

func (r *run) publish() {
	if r.notify != nil {
		r.notify(r.progress)
	}
}

func (r *run) setPhase(p RunPhase) {
	r.progress.Phase = p
	r.publish()
}

func (r *run) execute(ctx context.Context) (*RunResult, error) {
	r.logger = logging.FromContext(ctx)
	r.result = &RunResult{
		RunID:     r.id,
		Request:   r.req,
		Phase:     PhaseIdle,
		StartedAt: time.Now(),
	}

	r.setPhase(PhaseValidating)
	req, err := r.req.Validate(r.opts.DefaultFileTypes)
	if err != nil {
		return r.finish(PhaseFailed, err)
	}
	r.req = req
	r.result.Request = req
	r.progress.Root = req.Root
	r.progress.Column = req.Column

	r.setPhase(PhaseScanning)
	files, err := discover(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return r.cancel(ctx)
		}
		return r.finish(PhaseFailed, err)
	}
	r.progress.FilesTotal = len(files)
	r.publish()

	r.logger.Info("search scanning",
		"root", req.Root,
		"column", req.Column,
		"terms", len(req.Terms),
		"mode", req.Mode,
		"files", len(files),
	)

	for _, f := range files {
		if ctx.Err() != nil {
			return r.cancel(ctx)
		}

		r.progress.CurrentFile = f.path
		r.publish()

		outcome, res, err := r.scanFile(ctx, f)
		if err != nil {
			return r.cancel(ctx)
		}

		if outcome.Kind == KindFileAccess {
			if _, statErr := os.Stat(req.Root); statErr != nil {
				return r.finish(PhaseFailed, &RootError{Root: req.Root, Err: statErr})
			}
		}

		r.result.Files = append(r.result.Files, outcome)
		if res != nil && res.Count() > 0 {
			r.result.Results = append(r.result.Results, res)
		}

		r.progress.FilesDone++
		r.progress.Matches += outcome.Matches
		if outcome.Status == FileFailed || outcome.Status == FileSkipped {
			r.progress.FilesFailed++
		}
		r.publish()
	}

	r.progress.CurrentFile = ""
	r.setPhase(PhaseAggregating)
	r.result.Matches = match.Total(r.result.Results)

	return r.finish(PhaseDone, nil)
}

func (r *run) cancel(ctx context.Context) (*RunResult, error) {
	r.result.Matches = match.Total(r.result.Results)
	return r.finish(PhaseCancelled, fmt.Errorf("%w: %w", ErrRunCancelled, context.Cause(ctx)))
}

func (r *run) finish(phase RunPhase, err error) (*RunResult, error) {
	r.result.Phase = phase
	r.result.FinishedAt = time.Now()
	r.result.Duration = r.result.FinishedAt.Sub(r.result.StartedAt)
	if err != nil {
		r.result.Error = err.Error()
		r.progress.Error = err.Error()
	}
	r.progress.CurrentFile = ""
	r.setPhase(phase)

	attrs := []any{
		"phase", phase,
		"files", len(r.result.Files),
		"matches", r.result.Matches,
		"duration_ms", r.result.Duration.Milliseconds(),
	}
	switch phase {
	case PhaseDone:
		r.logger.Info("search finished", attrs...)
	case PhaseCancelled:
		r.logger.Info("search cancelled", attrs...)
	default:
		r.logger.Error("search failed", append(attrs, "error", err)...)
	}
	return r.result, err
}

// scanFile loads and matches one file. The returned error is non-nil only
// when ctx ended; every other problem is recorded in the outcome.
func (r *run) scanFile(ctx context.Context, f candidate) (FileOutcome, *match.Result, error) {
	out := FileOutcome{Path: f.path, Name: filepath.Base(f.path)}
	logger := r.logger.With("file", f.path)

	if f.walkErr != nil {
		return r.recordFailure(logger, out, &tabular.FileAccessError{Path: f.path, Err: f.walkErr}), nil, nil
	}

	if r.opts.MaxFileSize > 0 && f.size > r.opts.MaxFileSize {
		out.Status = FileSkipped
		out.Kind = KindTooLarge
		out.Error = fmt.Sprintf("file too large: %d bytes exceeds limit of %d", f.size, r.opts.MaxFileSize)
		logger.Warn("file skipped", "kind", out.Kind, "error", out.Error)
		return out, nil, nil
	}

	ext := filepath.Ext(f.path)
	text := !tabular.IsSpreadsheet(ext) && !tabular.IsLegacySpreadsheet(ext)

	var (
		file    *tabular.File
		loadErr error
		sniffed tabular.Sniffed
	)
	if text {
		sniffed = tabular.SniffWith(f.path, r.opts.Sniff)
		out.Encoding = sniffed.Encoding
		out.Delimiter = sniffed.DelimiterName()
		file, loadErr = tabular.Load(f.path, sniffed.Encoding, sniffed.Delimiter, ext)
	} else {
		file, loadErr = tabular.Load(f.path, "", 0, ext)
	}

	var loadFailure *tabular.LoadError
	var res *match.Result
	switch {
	case loadErr == nil && match.LooksTabular(file, r.req.Column):
		rows, used, err := match.RowsContext(ctx, file.Headers, file.Rows, r.req.Column, r.req.Terms, r.req.Mode)
		if err != nil {
			if ctx.Err() != nil {
				return out, nil, ctx.Err()
			}
			return r.recordFailure(logger, out, err), nil, nil
		}
		res = &match.Result{
			Path:         f.path,
			Column:       r.req.Column,
			Terms:        r.req.Terms,
			Headers:      file.Headers,
			Rows:         rows,
			MatchedTerms: used,
		}

	case text && (loadErr == nil || errors.As(loadErr, &loadFailure)):
		if loadErr != nil {
			logger.Debug("falling back to line matching", "reason", loadErr)
		}
		lines, used, err := match.LinesContext(ctx, f.path, sniffed.Encoding, r.req.Terms, r.req.Mode)
		if err != nil {
			if ctx.Err() != nil {
				return out, nil, ctx.Err()
			}
			return r.recordFailure(logger, out, err), nil, nil
		}
		res = &match.Result{
			Path:         f.path,
			Column:       r.req.Column,
			Terms:        r.req.Terms,
			Lines:        lines,
			MatchedTerms: used,
			Fallback:     true,
		}
		out.Fallback = true

	case loadErr != nil:
		return r.recordFailure(logger, out, loadErr), nil, nil

	default:
		// A workbook whose first sheet has a single, unrelated column.
		return r.recordFailure(logger, out, &match.ColumnNotFoundError{
			Path:    f.path,
			Column:  r.req.Column,
			Headers: file.Headers,
		}), nil, nil
	}

	out.Matches = res.Count()
	if out.Matches > 0 {
		out.Status = FileMatched
	} else {
		out.Status = FileNoMatch
	}
	logger.Debug("file scanned", "matches", out.Matches, "fallback", out.Fallback)
	return out, res, nil
}

// recordFailure classifies a per-file error into the outcome.
func (r *run) recordFailure(logger *slog.Logger, out FileOutcome, err error) FileOutcome {
	var (
		accessErr   *tabular.FileAccessError
		loadErr     *tabular.LoadError
		notFoundErr *match.ColumnNotFoundError
	)
	switch {
	case errors.As(err, &notFoundErr):
		out.Status = FileSkipped
		out.Kind = KindColumnNotFound
	case errors.As(err, &accessErr):
		out.Status = FileFailed
		out.Kind = KindFileAccess
	case errors.As(err, &loadErr):
		out.Status = FileFailed
		out.Kind = KindLoad
	default:
		out.Status = FileFailed
		out.Kind = KindLoad
	}
	out.Error = err.Error()
	logger.Warn("file skipped", "kind", out.Kind, "error", err)
	return out
}

type candidate struct {
	path string
	size int64
	// walkErr is set for entries the walk could not read.
	walkErr error
}

// discover lists the files under req.Root matching the request's file types
// and not excluded, sorted by path. Unreadable entries below the root are
// listed with walkErr set so the scan records them and carries on.
func discover(ctx context.Context, req SearchRequest) ([]candidate, error) {
	info, err := os.Stat(req.Root)
	if err != nil {
		return nil, &RootError{Root: req.Root, Err: err}
	}
	if !info.IsDir() {
		return nil, &RootError{Root: req.Root, Err: errNotDir}
	}

	include := includePattern(req.FileTypes)

	var files []candidate
	err = filepath.WalkDir(req.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == req.Root || d == nil {
				return err
			}
			files = append(files, candidate{path: path, walkErr: err})
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(req.Root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if ok, _ := doublestar.Match(include, rel); !ok {
			return nil
		}
		for _, pattern := range req.Exclude {
			if ok, _ := doublestar.Match(pattern, rel); ok {
				return nil
			}
		}

		fi, err := os.Stat(path)
		if err != nil || !fi.Mode().IsRegular() {
			// Dangling symlinks and special files are not searchable.
			return nil
		}
		files = append(files, candidate{path: path, size: fi.Size()})
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &RootError{Root: req.Root, Err: err}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].path < files[j].path })
	return files, nil
}
