package trace

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const schema = `
CREATE TABLE IF NOT EXISTS run_traces (
	run_id     TEXT PRIMARY KEY,
	task       TEXT NOT NULL,
	payload    TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);`

// ErrNotFound is returned when no trace exists for a run id.
var ErrNotFound = errors.New("trace not found")

// Store persists one trace record per run id in a local SQLite database.
// Re-running the same task overwrites the previous record (last writer
// wins, same as the cache).
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewStore opens (and if needed creates) the trace database at path.
func NewStore(path string, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open trace db %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init trace schema: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// NewStoreWithDB wraps an existing connection; used by tests.
func NewStoreWithDB(db *sqlx.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Save upserts the trace for its run id.
func (s *Store) Save(ctx context.Context, t *RunTrace) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal trace %s: %w", t.RunID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO run_traces (run_id, task, payload, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			task = excluded.task,
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		t.RunID, t.Task, string(payload), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save trace %s: %w", t.RunID, err)
	}
	return nil
}

// Get loads the trace for a run id.
func (s *Store) Get(ctx context.Context, runID string) (*RunTrace, error) {
	var payload string
	err := s.db.GetContext(ctx, &payload,
		`SELECT payload FROM run_traces WHERE run_id = ?`, runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load trace %s: %w", runID, err)
	}

	var t RunTrace
	if err := json.Unmarshal([]byte(payload), &t); err != nil {
		return nil, fmt.Errorf("decode trace %s: %w", runID, err)
	}
	return &t, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
