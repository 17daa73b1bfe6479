package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"slices"

	"github.com/banshee-data/cdctrack/internal/cdc/filter"
)

// Recorders is the recorder source of one run. Each stage keeps the
// variable names it was opened with.
type Recorders struct {
	store *Store
	runID string
}

// Recorders returns the source that stores the rows of recording filters
// under runID.
func (s *Store) Recorders(runID string) *Recorders {
	return &Recorders{store: s, runID: runID}
}

var _ filter.RecorderSource = (*Recorders)(nil)

// Recorder opens the recorder of stage. Reopening a stage with other
// variable names is an error.
func (r *Recorders) Recorder(stage string, names []string) (filter.Recorder, error) {
	ctx := context.Background()
	have, err := r.store.columns(ctx, r.runID, stage)
	if err != nil {
		return nil, err
	}
	if len(have) > 0 {
		if !slices.Equal(have, names) {
			return nil, fmt.Errorf("stage %s already records %v, not %v", stage, have, names)
		}
		return &stageRecorder{store: r.store, runID: r.runID, stage: stage, n: len(names)}, nil
	}

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	for i, name := range names {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO record_columns (run_id, stage, idx, name) VALUES (?, ?, ?, ?)`,
			r.runID, stage, i, name); err != nil {
			return nil, fmt.Errorf("insert record columns of %s: %w", stage, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	diagf("run %s: recording stage %s (%d variables)", r.runID, stage, len(names))
	return &stageRecorder{store: r.store, runID: r.runID, stage: stage, n: len(names)}, nil
}

type stageRecorder struct {
	store *Store
	runID string
	stage string
	n     int
}

func (r *stageRecorder) Record(rec filter.Record) error {
	if len(rec.Values) != r.n {
		return fmt.Errorf("stage %s: record has %d values, want %d", r.stage, len(rec.Values), r.n)
	}
	ctx := context.Background()
	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO records (run_id, stage, truth, weight) VALUES (?, ?, ?, ?)`,
		r.runID, r.stage, nullable(rec.Truth), nullable(rec.Weight))
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	for i, v := range rec.Values {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO record_values (record_id, idx, value) VALUES (?, ?, ?)`,
			id, i, nullable(v)); err != nil {
			return fmt.Errorf("insert record value: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) columns(ctx context.Context, runID, stage string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM record_columns WHERE run_id = ? AND stage = ? ORDER BY idx`, runID, stage)
	if err != nil {
		return nil, fmt.Errorf("query record columns: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// LoadRecords returns the variable names and rows recorded for stage. An
// empty runID selects every run; runs must then agree on the names.
func (s *Store) LoadRecords(ctx context.Context, runID, stage string) ([]string, []filter.Record, error) {
	runs, err := s.recordingRuns(ctx, runID, stage)
	if err != nil {
		return nil, nil, err
	}
	if len(runs) == 0 {
		return nil, nil, fmt.Errorf("no records for stage %s", stage)
	}

	var names []string
	var out []filter.Record
	for _, run := range runs {
		cols, err := s.columns(ctx, run, stage)
		if err != nil {
			return nil, nil, err
		}
		if names == nil {
			names = cols
		} else if !slices.Equal(names, cols) {
			return nil, nil, fmt.Errorf("stage %s: run %s records %v, not %v", stage, run, cols, names)
		}
		recs, err := s.loadRun(ctx, run, stage, len(cols))
		if err != nil {
			return nil, nil, err
		}
		out = append(out, recs...)
	}
	diagf("loaded %d %s records from %d runs", len(out), stage, len(runs))
	return names, out, nil
}

func (s *Store) recordingRuns(ctx context.Context, runID, stage string) ([]string, error) {
	if runID != "" {
		if _, err := s.Run(ctx, runID); err != nil {
			return nil, err
		}
		return []string{runID}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT c.run_id FROM record_columns c JOIN runs r ON r.run_id = c.run_id
		WHERE c.stage = ? ORDER BY r.created_at`, stage)
	if err != nil {
		return nil, fmt.Errorf("query recording runs: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// loadRun reads the records of one run and stage in insertion order.
func (s *Store) loadRun(ctx context.Context, runID, stage string, n int) ([]filter.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.record_id, r.truth, r.weight, v.idx, v.value
		FROM records r JOIN record_values v ON v.record_id = r.record_id
		WHERE r.run_id = ? AND r.stage = ?
		ORDER BY r.record_id, v.idx`, runID, stage)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []filter.Record
	last := int64(-1)
	for rows.Next() {
		var id int64
		var idx int
		var truth, weight, value sql.NullFloat64
		if err := rows.Scan(&id, &truth, &weight, &idx, &value); err != nil {
			return nil, fmt.Errorf("scan record row: %w", err)
		}
		if id != last {
			out = append(out, filter.Record{Values: make([]float64, n), Truth: orNaN(truth), Weight: orNaN(weight)})
			last = id
		}
		if idx >= 0 && idx < n {
			out[len(out)-1].Values[idx] = orNaN(value)
		}
	}
	return out, rows.Err()
}
