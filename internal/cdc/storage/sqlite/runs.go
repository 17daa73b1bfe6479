package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run is one invocation of the track finder over an event file.
type Run struct {
	RunID      string          `json:"run_id"`
	CreatedAt  int64           `json:"created_at"` // unix ns
	Version    string          `json:"version"`
	ConfigJSON json.RawMessage `json:"config,omitempty"`
	Events     int             `json:"events"`
	FinishedAt int64           `json:"finished_at,omitempty"` // unix ns, 0 while running
}

// StartRun registers a run with the configuration it uses and returns its
// id.
func (s *Store) StartRun(ctx context.Context, version string, config json.RawMessage) (string, error) {
	id := uuid.New().String()
	var cfg interface{}
	if len(config) > 0 {
		cfg = string(config)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, created_at, version, config_json) VALUES (?, ?, ?, ?)`,
		id, time.Now().UnixNano(), version, cfg)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	diagf("started run %s", id)
	return id, nil
}

// FinishRun records the number of processed events.
func (s *Store) FinishRun(ctx context.Context, runID string, events int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET events = ?, finished_at = ? WHERE run_id = ?`,
		events, time.Now().UnixNano(), runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	return nil
}

// Run returns one run.
func (s *Store) Run(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, created_at, version, config_json, events, finished_at
		FROM runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	return r, err
}

// Runs lists all runs, newest first.
func (s *Store) Runs(ctx context.Context) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, created_at, version, config_json, events, finished_at
		FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	var cfg sql.NullString
	var finished sql.NullInt64
	if err := row.Scan(&r.RunID, &r.CreatedAt, &r.Version, &cfg, &r.Events, &finished); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run row: %w", err)
	}
	if cfg.Valid {
		r.ConfigJSON = json.RawMessage(cfg.String)
	}
	r.FinishedAt = finished.Int64
	return &r, nil
}
