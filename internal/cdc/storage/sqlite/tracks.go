package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/banshee-data/cdctrack/internal/cdc/l6tracks"
)

// StoredTrack is a track read back from the store.
type StoredTrack struct {
	RunID string `json:"run_id"`
	Event int    `json:"event"`
	l6tracks.TrackRecord
}

// TrackSink writes the tracks of one run.
type TrackSink struct {
	store *Store
	runID string
}

// TrackSink returns the sink of runID.
func (s *Store) TrackSink(runID string) *TrackSink {
	return &TrackSink{store: s, runID: runID}
}

// WriteTracks stores the tracks of one event in a single transaction.
// Tracks without an id get a new one.
func (w *TrackSink) WriteTracks(ctx context.Context, event int, tracks []l6tracks.TrackRecord) error {
	tx, err := w.store.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i := range tracks {
		t := &tracks[i]
		if t.ID == "" {
			t.ID = uuid.New().String()
		}
		var quality sql.NullFloat64
		if t.Quality != nil {
			quality = nullable(*t.Quality)
		}
		var mc sql.NullInt64
		if t.MCTrack != nil {
			mc = sql.NullInt64{Int64: int64(*t.MCTrack), Valid: true}
		}
		p := t.Perigee
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tracks (
				track_id, run_id, event, origin, n_hits,
				curvature, phi0, d0, tan_lambda, z0, is_3d,
				chi2, ndf, p_value, quality, rejected, mc_track, purity
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, w.runID, event, string(t.Origin), t.NHits(),
			p.Curvature, p.Phi0, p.D0, p.TanLambda, p.Z0, t.Is3D,
			t.Chi2, t.NDF, t.PValue, quality, t.Rejected, mc, t.Purity,
		); err != nil {
			return fmt.Errorf("insert track %s: %w", t.ID, err)
		}
		for j, h := range t.Hits {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO track_hits (track_id, idx, ewire, rl, x, y, z, arc_length)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				t.ID, j, h.EWire, h.RL, h.X, h.Y, h.Z, h.ArcLength,
			); err != nil {
				return fmt.Errorf("insert hit %d of track %s: %w", j, t.ID, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		opsf("run %s event %d: dropped %d tracks: %v", w.runID, event, len(tracks), err)
		return err
	}
	return nil
}

// Tracks returns the tracks of runID ordered by event, hits included.
func (s *Store) Tracks(ctx context.Context, runID string) ([]*StoredTrack, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT track_id, event, origin, curvature, phi0, d0, tan_lambda, z0, is_3d,
		       chi2, ndf, p_value, quality, rejected, mc_track, purity
		FROM tracks WHERE run_id = ?
		ORDER BY event, rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("query tracks: %w", err)
	}
	var out []*StoredTrack
	byID := map[string]*StoredTrack{}
	for rows.Next() {
		t := &StoredTrack{RunID: runID}
		var origin string
		var quality, purity sql.NullFloat64
		var mc sql.NullInt64
		p := &t.Perigee
		if err := rows.Scan(&t.ID, &t.Event, &origin, &p.Curvature, &p.Phi0, &p.D0, &p.TanLambda, &p.Z0, &t.Is3D,
			&t.Chi2, &t.NDF, &t.PValue, &quality, &t.Rejected, &mc, &purity); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan track row: %w", err)
		}
		t.Origin = l6tracks.Origin(origin)
		if quality.Valid {
			q := quality.Float64
			t.Quality = &q
		}
		if mc.Valid {
			id := int(mc.Int64)
			t.MCTrack = &id
		}
		t.Purity = purity.Float64
		out = append(out, t)
		byID[t.ID] = t
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hits, err := s.db.QueryContext(ctx, `
		SELECT h.track_id, h.ewire, h.rl, h.x, h.y, h.z, h.arc_length
		FROM track_hits h JOIN tracks t ON t.track_id = h.track_id
		WHERE t.run_id = ?
		ORDER BY h.track_id, h.idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("query track hits: %w", err)
	}
	defer hits.Close()
	for hits.Next() {
		var id string
		var h l6tracks.HitRecord
		if err := hits.Scan(&id, &h.EWire, &h.RL, &h.X, &h.Y, &h.Z, &h.ArcLength); err != nil {
			return nil, fmt.Errorf("scan track hit row: %w", err)
		}
		if t := byID[id]; t != nil {
			t.Hits = append(t.Hits, h)
		}
	}
	return out, hits.Err()
}
