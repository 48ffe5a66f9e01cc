package core

import (
	"time"

	"github.com/JonMunkholm/colsearch/internal/match"
)

// RunPhase indicates the current stage of a search run.
type RunPhase string

const (
	PhaseIdle        RunPhase = "idle"
	PhaseValidating  RunPhase = "validating"
	PhaseScanning    RunPhase = "scanning"
	PhaseAggregating RunPhase = "aggregating"
	PhaseDone        RunPhase = "done"
	PhaseFailed      RunPhase = "failed"
	PhaseCancelled   RunPhase = "cancelled"
)

// Terminal reports whether no further transitions can happen.
func (p RunPhase) Terminal() bool {
	return p == PhaseDone || p == PhaseFailed || p == PhaseCancelled
}

// SearchRequest describes one multi-file column search.
type SearchRequest struct {
	Root      string     `json:"root"`
	Column    string     `json:"column"`
	Terms     []string   `json:"terms"`
	Mode      match.Mode `json:"mode"`
	FileTypes []string   `json:"fileTypes,omitempty"`
	// Exclude holds doublestar patterns, relative to Root, of files to skip.
	Exclude []string `json:"exclude,omitempty"`
}

// FileStatus is the per-file outcome of a run.
type FileStatus string

const (
	FileMatched FileStatus = "matched"
	FileNoMatch FileStatus = "no_match"
	FileSkipped FileStatus = "skipped"
	FileFailed  FileStatus = "failed"
)

// Error kinds recorded on skipped or failed files.
const (
	KindFileAccess     = "file_access"
	KindLoad           = "load"
	KindColumnNotFound = "column_not_found"
	KindTooLarge       = "too_large"
)

// FileOutcome records what happened to one file during scanning.
type FileOutcome struct {
	Path      string     `json:"path"`
	Name      string     `json:"name"`
	Status    FileStatus `json:"status"`
	Kind      string     `json:"kind,omitempty"`
	Error     string     `json:"error,omitempty"`
	Matches   int        `json:"matches"`
	Fallback  bool       `json:"fallback,omitempty"`
	Encoding  string     `json:"encoding,omitempty"`
	Delimiter string     `json:"delimiter,omitempty"`
}

// RunProgress is a snapshot of a run, broadcast to subscribers after every
// phase change and every processed file.
type RunProgress struct {
	RunID       string   `json:"run_id"`
	Phase       RunPhase `json:"phase"`
	Root        string   `json:"root"`
	Column      string   `json:"column"`
	FilesTotal  int      `json:"files_total"`
	FilesDone   int      `json:"files_done"`
	CurrentFile string   `json:"current_file,omitempty"`
	Matches     int      `json:"matches"`
	FilesFailed int      `json:"files_failed"`
	Error       string   `json:"error,omitempty"`
}

// Percent returns file-based progress (0-100).
func (p RunProgress) Percent() int {
	if p.Phase == PhaseDone {
		return 100
	}
	if p.FilesTotal == 0 {
		return 0
	}
	return (p.FilesDone * 100) / p.FilesTotal
}

// RunResult is the final report of a run.
type RunResult struct {
	RunID      string          `json:"run_id"`
	Request    SearchRequest   `json:"request"`
	Phase      RunPhase        `json:"phase"`
	Files      []FileOutcome   `json:"files"`
	Results    []*match.Result `json:"-"`
	Matches    int             `json:"matches"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Duration   time.Duration   `json:"duration"`
	Error      string          `json:"error,omitempty"`
}

// Count returns the number of files with the given status.
func (r *RunResult) Count(status FileStatus) int {
	n := 0
	for _, f := range r.Files {
		if f.Status == status {
			n++
		}
	}
	return n
}

// Summary converts the result into a history entry.
func (r *RunResult) Summary() RunSummary {
	return RunSummary{
		RunID:        r.RunID,
		Root:         r.Request.Root,
		Column:       r.Request.Column,
		Terms:        r.Request.Terms,
		Mode:         string(r.Request.Mode),
		Phase:        r.Phase,
		FilesScanned: len(r.Files),
		FilesMatched: r.Count(FileMatched),
		FilesFailed:  r.Count(FileFailed) + r.Count(FileSkipped),
		Matches:      r.Matches,
		DurationMs:   r.Duration.Milliseconds(),
		Error:        r.Error,
		StartedAt:    r.StartedAt,
	}
}

// RunSummary is the persisted record of a finished run.
type RunSummary struct {
	RunID        string    `json:"run_id"`
	Root         string    `json:"root"`
	Column       string    `json:"column"`
	Terms        []string  `json:"terms"`
	Mode         string    `json:"mode"`
	Phase        RunPhase  `json:"phase"`
	FilesScanned int       `json:"files_scanned"`
	FilesMatched int       `json:"files_matched"`
	FilesFailed  int       `json:"files_failed"`
	Matches      int       `json:"matches"`
	DurationMs   int64     `json:"duration_ms"`
	Error        string    `json:"error,omitempty"`
	StartedAt    time.Time `json:"started_at"`
}
