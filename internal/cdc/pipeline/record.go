package pipeline

import (
	"github.com/google/uuid"

	"github.com/banshee-data/cdctrack/internal/cdc/l6tracks"
)

// EventRecord is the exported result of one event: one line of a track
// file.
type EventRecord struct {
	Event  int                    `json:"event"`
	Stats  Stats                  `json:"stats"`
	Tracks []l6tracks.TrackRecord `json:"tracks"`
}

// Record exports the tracks of r, each under a fresh id.
func (r *Result) Record() EventRecord {
	out := EventRecord{Event: r.Event, Stats: r.Stats, Tracks: make([]l6tracks.TrackRecord, len(r.Tracks))}
	for i, t := range r.Tracks {
		out.Tracks[i] = t.Record()
		out.Tracks[i].ID = uuid.NewString()
	}
	return out
}
