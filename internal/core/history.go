package core

// history.go persists run summaries.
//
// PgHistory stores them in Postgres when DATABASE_URL is configured;
// MemoryHistory keeps a bounded list in process otherwise. Both are purged
// by the history scheduler.

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrHistoryNotFound is returned by Get for an unknown run id.
var ErrHistoryNotFound = errors.New("run history not found")

// DefaultHistoryLimit caps List when the caller passes a non-positive limit.
const DefaultHistoryLimit = 50

// HistoryStore records finished runs.
type HistoryStore interface {
	Record(ctx context.Context, s RunSummary) error
	List(ctx context.Context, limit int) ([]RunSummary, error)
	Get(ctx context.Context, runID string) (RunSummary, error)
	Purge(ctx context.Context, olderThan time.Time) (int64, error)
}

// MemoryHistory is an in-process HistoryStore holding at most max entries.
type MemoryHistory struct {
	mu      sync.RWMutex
	max     int
	entries []RunSummary
}

// NewMemoryHistory creates a store. max <= 0 keeps 1000 entries.
func NewMemoryHistory(max int) *MemoryHistory {
	if max <= 0 {
		max = 1000
	}
	return &MemoryHistory{max: max}
}

func (h *MemoryHistory) Record(_ context.Context, s RunSummary) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := range h.entries {
		if h.entries[i].RunID == s.RunID {
			h.entries[i] = s
			return nil
		}
	}
	h.entries = append(h.entries, s)
	if len(h.entries) > h.max {
		h.entries = h.entries[len(h.entries)-h.max:]
	}
	return nil
}

// List returns the newest summaries first.
func (h *MemoryHistory) List(_ context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	h.mu.RLock()
	out := make([]RunSummary, len(h.entries))
	copy(out, h.entries)
	h.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (h *MemoryHistory) Get(_ context.Context, runID string) (RunSummary, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, e := range h.entries {
		if e.RunID == runID {
			return e, nil
		}
	}
	return RunSummary{}, ErrHistoryNotFound
}

func (h *MemoryHistory) Purge(_ context.Context, olderThan time.Time) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	kept := h.entries[:0]
	var purged int64
	for _, e := range h.entries {
		if e.StartedAt.Before(olderThan) {
			purged++
			continue
		}
		kept = append(kept, e)
	}
	h.entries = kept
	return purged, nil
}

const historySchema = `
CREATE TABLE IF NOT EXISTS search_runs (
	id            UUID PRIMARY KEY,
	root          TEXT NOT NULL,
	column_name   TEXT NOT NULL,
	terms         TEXT[] NOT NULL,
	mode          TEXT NOT NULL,
	phase         TEXT NOT NULL,
	files_scanned INTEGER NOT NULL,
	files_matched INTEGER NOT NULL,
	files_failed  INTEGER NOT NULL,
	matches       INTEGER NOT NULL,
	duration_ms   BIGINT NOT NULL,
	error         TEXT,
	started_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS search_runs_started_at_idx ON search_runs (started_at DESC);`

const historyColumns = `id, root, column_name, terms, mode, phase, files_scanned, files_matched,
	files_failed, matches, duration_ms, error, started_at`

// PgHistory is a Postgres-backed HistoryStore.
type PgHistory struct {
	pool *pgxpool.Pool
}

// NewPgHistory creates the search_runs table if needed.
func NewPgHistory(ctx context.Context, pool *pgxpool.Pool) (*PgHistory, error) {
	if _, err := pool.Exec(ctx, historySchema); err != nil {
		return nil, fmt.Errorf("create search_runs: %w", err)
	}
	return &PgHistory{pool: pool}, nil
}

func (h *PgHistory) Record(ctx context.Context, s RunSummary) error {
	id, err := toPgUUID(s.RunID)
	if err != nil {
		return err
	}
	errText := pgtype.Text{String: s.Error, Valid: s.Error != ""}

	_, err = h.pool.Exec(ctx, `
		INSERT INTO search_runs (`+historyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			phase = EXCLUDED.phase,
			files_scanned = EXCLUDED.files_scanned,
			files_matched = EXCLUDED.files_matched,
			files_failed = EXCLUDED.files_failed,
			matches = EXCLUDED.matches,
			duration_ms = EXCLUDED.duration_ms,
			error = EXCLUDED.error`,
		id, s.Root, s.Column, s.Terms, s.Mode, string(s.Phase),
		s.FilesScanned, s.FilesMatched, s.FilesFailed, s.Matches,
		s.DurationMs, errText, s.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", s.RunID, err)
	}
	return nil
}

func (h *PgHistory) List(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	rows, err := h.pool.Query(ctx,
		`SELECT `+historyColumns+` FROM search_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}

func (h *PgHistory) Get(ctx context.Context, runID string) (RunSummary, error) {
	id, err := toPgUUID(runID)
	if err != nil {
		return RunSummary{}, ErrHistoryNotFound
	}
	row := h.pool.QueryRow(ctx, `SELECT `+historyColumns+` FROM search_runs WHERE id = $1`, id)
	s, err := scanSummary(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return RunSummary{}, ErrHistoryNotFound
	}
	return s, err
}

func (h *PgHistory) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := h.pool.Exec(ctx, `DELETE FROM search_runs WHERE started_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("purge runs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanSummary(row pgx.Row) (RunSummary, error) {
	var (
		s       RunSummary
		id      pgtype.UUID
		phase   string
		errText pgtype.Text
		scanned int32
		matched int32
		failed  int32
		matches int32
	)
	err := row.Scan(&id, &s.Root, &s.Column, &s.Terms, &s.Mode, &phase,
		&scanned, &matched, &failed, &matches, &s.DurationMs, &errText, &s.StartedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return s, err
		}
		return s, fmt.Errorf("scan run: %w", err)
	}
	if id.Valid {
		s.RunID = uuid.UUID(id.Bytes).String()
	}
	s.Phase = RunPhase(phase)
	s.FilesScanned = int(scanned)
	s.FilesMatched = int(matched)
	s.FilesFailed = int(failed)
	s.Matches = int(matches)
	s.Error = errText.String
	return s, nil
}

func toPgUUID(runID string) (pgtype.UUID, error) {
	u, err := uuid.Parse(runID)
	if err != nil {
		return pgtype.UUID{}, fmt.Errorf("invalid run id %q: %w", runID, err)
	}
	return pgtype.UUID{Bytes: u, Valid: true}, nil
}
