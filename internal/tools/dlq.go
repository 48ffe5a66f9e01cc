package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/colsearch/internal/export"
)

// Output streams of a DLQ run.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// waitDelay bounds how long Wait keeps reading output after the child is
// killed.
const waitDelay = 2 * time.Second

// maxLineBytes is the longest output line kept intact.
const maxLineBytes = 1 << 20

var (
	ErrJarRequired = errors.New("jar path is required")
	ErrNotJar      = errors.New("file is not a .jar")
	ErrTimedOut    = errors.New("dlq run timed out")
)

// OutputLine is one line written by the child process.
type OutputLine struct {
	Seq    int       `json:"seq"`
	Stream string    `json:"stream"`
	Text   string    `json:"text"`
	Time   time.Time `json:"time"`
}

// DLQRequest names the JAR to run and its arguments.
type DLQRequest struct {
	Jar  string   `json:"jar"`
	Args []string `json:"args"`
	Dir  string   `json:"dir"`
	Env  []string `json:"env"`
}

// DLQResult is the outcome of a finished run.
type DLQResult struct {
	Command   []string      `json:"command"`
	ExitCode  int           `json:"exit_code"`
	Lines     []OutputLine  `json:"lines"`
	Duration  time.Duration `json:"duration"`
	Cancelled bool          `json:"cancelled"`
	TimedOut  bool          `json:"timed_out"`
}

// DLQRunner runs replay JARs with `java -jar`.
// Safe for concurrent use; each Run starts its own process.
type DLQRunner struct {
	JavaBin string
	Timeout time.Duration
	logger  *slog.Logger
}

// NewDLQRunner creates a runner. A zero timeout means no limit beyond ctx.
func NewDLQRunner(javaBin string, timeout time.Duration, logger *slog.Logger) *DLQRunner {
	if logger == nil {
		logger = slog.Default()
	}
	if javaBin == "" {
		javaBin = "java"
	}
	return &DLQRunner{JavaBin: javaBin, Timeout: timeout, logger: logger}
}

// Validate checks that the JAR exists.
func (req DLQRequest) Validate() error {
	if strings.TrimSpace(req.Jar) == "" {
		return ErrJarRequired
	}
	if !strings.EqualFold(filepath.Ext(req.Jar), ".jar") {
		return fmt.Errorf("%w: %s", ErrNotJar, req.Jar)
	}
	info, err := os.Stat(req.Jar)
	if err != nil {
		return fmt.Errorf("jar: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrNotJar, req.Jar)
	}
	return nil
}

// Run executes the JAR and blocks until it exits. Every output line is passed
// to onLine (which may be nil) as it arrives and is also kept in the result.
// Cancelling ctx kills the child. A non-zero exit is reported in ExitCode,
// not as an error.
func (r *DLQRunner) Run(ctx context.Context, req DLQRequest, onLine func(OutputLine)) (*DLQResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	runCtx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	args := append([]string{"-jar", req.Jar}, req.Args...)
	cmd := exec.CommandContext(runCtx, r.JavaBin, args...)
	cmd.Dir = req.Dir
	if len(req.Env) > 0 {
		cmd.Env = append(os.Environ(), req.Env...)
	}
	cmd.WaitDelay = waitDelay

	res := &DLQResult{Command: append([]string{r.JavaBin}, args...)}
	var mu sync.Mutex
	emit := func(stream, text string) {
		mu.Lock()
		defer mu.Unlock()
		line := OutputLine{Seq: len(res.Lines) + 1, Stream: stream, Text: text, Time: time.Now()}
		res.Lines = append(res.Lines, line)
		if onLine != nil {
			onLine(line)
		}
	}
	stdout := &lineWriter{stream: StreamStdout, emit: emit}
	stderr := &lineWriter{stream: StreamStderr, emit: emit}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	r.logger.Info("dlq run starting", "jar", req.Jar, "args", req.Args)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", r.JavaBin, err)
	}

	waitErr := cmd.Wait()
	stdout.flush()
	stderr.flush()
	res.Duration = time.Since(start)

	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		res.TimedOut = true
		res.ExitCode = -1
		r.logger.Warn("dlq run timed out", "jar", req.Jar, "timeout", r.Timeout)
		return res, ErrTimedOut
	case ctx.Err() != nil:
		res.Cancelled = true
		res.ExitCode = -1
		r.logger.Info("dlq run cancelled", "jar", req.Jar)
		return res, nil
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return res, fmt.Errorf("wait: %w", waitErr)
		}
		res.ExitCode = exitErr.ExitCode()
	}

	r.logger.Info("dlq run finished",
		"jar", req.Jar,
		"exit_code", res.ExitCode,
		"lines", len(res.Lines),
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// lineWriter splits written bytes into lines. exec copies each stream from a
// single goroutine, so only emit needs locking.
type lineWriter struct {
	stream string
	emit   func(stream, text string)
	buf    []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(w.stream, strings.TrimRight(string(w.buf[:i]), "\r"))
		w.buf = w.buf[i+1:]
	}
	if len(w.buf) > maxLineBytes {
		w.emit(w.stream, string(w.buf))
		w.buf = nil
	}
	return len(p), nil
}

// flush emits a trailing line without a newline.
func (w *lineWriter) flush() {
	if len(w.buf) > 0 {
		w.emit(w.stream, strings.TrimRight(string(w.buf), "\r"))
		w.buf = nil
	}
}

// Table flattens captured output for export.
func (res *DLQResult) Table() *export.Table {
	t := &export.Table{Header: []string{"Seq", "Stream", "Time", "Text"}}
	for _, l := range res.Lines {
		t.Rows = append(t.Rows, []string{
			strconv.Itoa(l.Seq),
			l.Stream,
			l.Time.Format(time.RFC3339),
			l.Text,
		})
	}
	return t
}

// ExportLines writes captured output to a .csv or .xlsx file. An empty
// capture writes nothing and returns 0.
func ExportLines(path string, res *DLQResult) (int, error) {
	t := res.Table()
	if t.Len() == 0 {
		return 0, nil
	}
	if err := export.WriteTable(path, t); err != nil {
		return 0, err
	}
	return t.Len(), nil
}
