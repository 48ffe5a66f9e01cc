package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/colsearch/internal/config"
	"github.com/JonMunkholm/colsearch/internal/export"
	"github.com/JonMunkholm/colsearch/internal/logging"
	"github.com/JonMunkholm/colsearch/internal/tabular"
)

var (
	// ErrRunNotFound is returned for unknown or expired run ids.
	ErrRunNotFound = errors.New("search run not found")

	// ErrRunInProgress is returned when a finished result is required.
	ErrRunInProgress = errors.New("search run still in progress")
)

// historyWriteTimeout bounds recording a finished run.
const historyWriteTimeout = 5 * time.Second

// Options configure a Service. Zero values fall back to defaults.
type Options struct {
	Run           RunOptions
	MaxConcurrent int
	MaxWait       time.Duration
	// Timeout bounds a whole run. Zero means no limit.
	Timeout time.Duration
	// Retention is how long finished runs stay queryable (default: 30m).
	Retention time.Duration
	ExportDir string
	History   HistoryStore
}

// OptionsFromConfig maps application configuration onto service options.
func OptionsFromConfig(cfg *config.Config, history HistoryStore) Options {
	return Options{
		Run: RunOptions{
			Sniff: tabular.SniffOptions{
				SampleBytes: cfg.Search.SniffBytes,
				SampleLines: cfg.Search.SniffLines,
			},
			MaxFileSize:      cfg.Search.MaxFileSize,
			DefaultFileTypes: cfg.Search.FileTypes,
		},
		MaxConcurrent: cfg.Search.MaxConcurrent,
		MaxWait:       cfg.Search.MaxWaitTime,
		Timeout:       cfg.Search.Timeout,
		Retention:     cfg.Search.ResultRetention,
		ExportDir:     cfg.Export.Dir,
		History:       history,
	}
}

// Service runs searches asynchronously and tracks them by id.
type Service struct {
	runOpts   RunOptions
	limiter   *RunLimiter
	history   HistoryStore
	timeout   time.Duration
	retention time.Duration
	exportDir string
	now       func() time.Time

	wg sync.WaitGroup

	mu   sync.RWMutex
	runs map[string]*activeRun
}

type activeRun struct {
	ID        string
	Request   SearchRequest
	StartedAt time.Time
	Cancel    context.CancelFunc
	Result    *RunResult
	Err       error
	Done      chan struct{}

	ListenerMu sync.Mutex
	Progress   RunProgress
	Listeners  []chan RunProgress
	closed     bool
	cleanup    *time.Timer
}

// NewService creates a Service.
func NewService(opts Options) *Service {
	if opts.Retention <= 0 {
		opts.Retention = 30 * time.Minute
	}
	if opts.History == nil {
		opts.History = NewMemoryHistory(0)
	}
	if opts.ExportDir == "" {
		opts.ExportDir = "exports"
	}
	return &Service{
		runOpts:   opts.Run,
		limiter:   NewRunLimiter(opts.MaxConcurrent, opts.MaxWait),
		history:   opts.History,
		timeout:   opts.Timeout,
		retention: opts.Retention,
		exportDir: opts.ExportDir,
		now:       time.Now,
		runs:      make(map[string]*activeRun),
	}
}

// StartSearch validates req and begins an asynchronous run.
// Returns the run id immediately. Use SubscribeProgress to follow it.
//
// Validation failures are returned synchronously as *ValidationError and no
// run is created. Returns ErrTooManyRuns if no run slot frees up in time.
func (s *Service) StartSearch(ctx context.Context, req SearchRequest) (string, error) {
	normalized, err := req.Validate(s.runOpts.DefaultFileTypes)
	if err != nil {
		return "", err
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return "", err
	}

	runID := uuid.New().String()

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if s.timeout > 0 {
		runCtx, cancel = context.WithTimeout(context.Background(), s.timeout)
	} else {
		runCtx, cancel = context.WithCancel(context.Background())
	}
	runCtx = logging.ContextWithRunID(runCtx, runID)

	ar := &activeRun{
		ID:        runID,
		Request:   normalized,
		StartedAt: s.now(),
		Cancel:    cancel,
		Done:      make(chan struct{}),
		Progress: RunProgress{
			RunID:  runID,
			Phase:  PhaseIdle,
			Root:   normalized.Root,
			Column: normalized.Column,
		},
	}

	s.mu.Lock()
	s.runs[runID] = ar
	s.mu.Unlock()

	logging.FromContext(ctx).Info("search started",
		"run_id", runID,
		"root", normalized.Root,
		"column", normalized.Column,
	)

	// Process in background with panic recovery to ensure limiter release
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.limiter.Release()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in search run", "run_id", runID, "panic", r)
				ar.Err = fmt.Errorf("internal error: %v", r)
				ar.Result = &RunResult{
					RunID:     runID,
					Request:   normalized,
					Phase:     PhaseFailed,
					StartedAt: ar.StartedAt,
					Error:     ar.Err.Error(),
				}
				p := ar.snapshot()
				p.Phase = PhaseFailed
				p.Error = ar.Err.Error()
				ar.notifyProgress(p)
				s.complete(ar)
			}
		}()
		s.process(runCtx, ar)
	}()

	return runID, nil
}

func (s *Service) process(ctx context.Context, ar *activeRun) {
	defer ar.Cancel()

	res, err := newRun(ar.ID, ar.Request, s.runOpts, ar.notifyProgress).execute(ctx)
	ar.Result = res
	ar.Err = err
	s.complete(ar)
}

// complete records history, releases listeners and schedules cleanup.
func (s *Service) complete(ar *activeRun) {
	if ar.Result != nil {
		ctx, cancel := context.WithTimeout(context.Background(), historyWriteTimeout)
		if err := s.history.Record(ctx, ar.Result.Summary()); err != nil {
			slog.Error("record run history failed", "run_id", ar.ID, "error", err)
		}
		cancel()
	}

	ar.closeListeners()
	close(ar.Done)
	s.scheduleCleanup(ar)
}

// SubscribeProgress returns a channel that receives progress updates.
// The channel is closed when the run finishes; subscribing to a finished run
// yields its final progress and a closed channel.
func (s *Service) SubscribeProgress(runID string) (<-chan RunProgress, error) {
	ar, err := s.get(runID)
	if err != nil {
		return nil, err
	}

	ch := make(chan RunProgress, 16)

	ar.ListenerMu.Lock()
	defer ar.ListenerMu.Unlock()

	// Send current progress immediately
	ch <- ar.Progress
	if ar.closed {
		close(ch)
		return ch, nil
	}
	ar.Listeners = append(ar.Listeners, ch)
	return ch, nil
}

// GetProgress returns the current progress without blocking.
func (s *Service) GetProgress(runID string) (RunProgress, error) {
	ar, err := s.get(runID)
	if err != nil {
		return RunProgress{}, err
	}
	return ar.snapshot(), nil
}

// GetResult waits for the run to finish and returns its result and
// terminal error, if any.
func (s *Service) GetResult(ctx context.Context, runID string) (*RunResult, error) {
	ar, err := s.get(runID)
	if err != nil {
		return nil, err
	}

	select {
	case <-ar.Done:
		return ar.Result, ar.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the result of a finished run without waiting.
func (s *Service) Result(runID string) (*RunResult, error) {
	ar, err := s.get(runID)
	if err != nil {
		return nil, err
	}
	select {
	case <-ar.Done:
		return ar.Result, nil
	default:
		return nil, ErrRunInProgress
	}
}

// Cancel stops a run. Files already scanned stay in its result.
func (s *Service) Cancel(runID string) error {
	ar, err := s.get(runID)
	if err != nil {
		return err
	}
	ar.Cancel()
	return nil
}

// Export writes the aggregated matches of a finished run to path (.csv or
// .xlsx) and returns the number of rows written. Zero matches write nothing.
func (s *Service) Export(ctx context.Context, runID, path string) (int, error) {
	res, err := s.Result(runID)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	n, err := export.Write(path, res.Results)
	if err != nil {
		return 0, err
	}
	logging.FromContext(ctx).Info("search exported", "run_id", runID, "path", path, "rows", n)
	return n, nil
}

// ExportPath returns the server-side export location for a run.
func (s *Service) ExportPath(runID, format string) string {
	format = strings.TrimPrefix(strings.ToLower(format), ".")
	if format == "" {
		format = "csv"
	}
	return filepath.Join(s.exportDir, "search-"+runID+"."+format)
}

// Active returns progress for every tracked run, newest first.
func (s *Service) Active() []RunProgress {
	s.mu.RLock()
	runs := make([]*activeRun, 0, len(s.runs))
	for _, ar := range s.runs {
		runs = append(runs, ar)
	}
	s.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	out := make([]RunProgress, len(runs))
	for i, ar := range runs {
		out[i] = ar.snapshot()
	}
	return out
}

// History lists recorded run summaries, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]RunSummary, error) {
	return s.history.List(ctx, limit)
}

// LimiterStatus reports run slot usage.
func (s *Service) LimiterStatus() LimiterStatus {
	return s.limiter.Status()
}

// Shutdown cancels every run and waits for the workers to exit or ctx to
// end. Finished runs are forgotten.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for _, ar := range s.runs {
		ar.Cancel()
	}
	s.mu.Unlock()

	if err := s.limiter.WaitForDrain(ctx); err != nil {
		return err
	}
	// Workers release their slot just before returning.
	s.wg.Wait()

	s.mu.Lock()
	for id, ar := range s.runs {
		ar.ListenerMu.Lock()
		if ar.cleanup != nil {
			ar.cleanup.Stop()
		}
		ar.ListenerMu.Unlock()
		delete(s.runs, id)
	}
	s.mu.Unlock()
	return nil
}

func (s *Service) get(runID string) (*activeRun, error) {
	s.mu.RLock()
	ar, ok := s.runs[runID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return ar, nil
}

// scheduleCleanup removes the run from tracking after the retention delay.
func (s *Service) scheduleCleanup(ar *activeRun) {
	t := time.AfterFunc(s.retention, func() {
		s.mu.Lock()
		delete(s.runs, ar.ID)
		s.mu.Unlock()
	})
	ar.ListenerMu.Lock()
	ar.cleanup = t
	ar.ListenerMu.Unlock()
}

// sendLatest puts p on ch, evicting buffered updates until it fits. The caller
// must be the only sender on ch.
func sendLatest(ch chan RunProgress, p RunProgress) {
	for {
		select {
		case ch <- p:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func (ar *activeRun) snapshot() RunProgress {
	ar.ListenerMu.Lock()
	defer ar.ListenerMu.Unlock()
	return ar.Progress
}

// notifyProgress stores p and sends it to all listeners.
func (ar *activeRun) notifyProgress(p RunProgress) {
	ar.ListenerMu.Lock()
	defer ar.ListenerMu.Unlock()

	ar.Progress = p
	for _, ch := range ar.Listeners {
		select {
		case ch <- p:
		default:
			// Listener is slow, skip this update
		}
	}
}

// closeListeners delivers the final progress to every listener and closes
// the channels. A full buffer loses its oldest update instead of the final one.
func (ar *activeRun) closeListeners() {
	ar.ListenerMu.Lock()
	defer ar.ListenerMu.Unlock()

	for _, ch := range ar.Listeners {
		sendLatest(ch, ar.Progress)
		close(ch)
	}
	ar.Listeners = nil
	ar.closed = true
}
