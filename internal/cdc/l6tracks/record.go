package l6tracks

import "math"

// HitRecord is one hit of an exported track.
type HitRecord struct {
	EWire     int     `json:"ewire"`
	RL        int     `json:"rl"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
	ArcLength float64 `json:"arc_length"`
}

// TrackRecord is the exported form of a track, as written to track files
// and the track store.
type TrackRecord struct {
	ID       string      `json:"id,omitempty"`
	Origin   Origin      `json:"origin"`
	Perigee  Perigee     `json:"perigee"`
	Is3D     bool        `json:"is_3d"`
	Chi2     float64     `json:"chi2"`
	NDF      int         `json:"ndf"`
	PValue   float64     `json:"p_value"`
	Quality  *float64    `json:"quality,omitempty"` // absent once rejected
	Rejected bool        `json:"rejected,omitempty"`
	MCTrack  *int        `json:"mc_track,omitempty"`
	Purity   float64     `json:"purity,omitempty"`
	Hits     []HitRecord `json:"hits"`
}

// Record exports t.
func (t *Track) Record() TrackRecord {
	c := t.Helix.Circle
	r := TrackRecord{
		Origin:   t.Origin,
		Perigee:  t.Perigee(),
		Is3D:     t.Is3D(),
		Chi2:     c.Chi2 + t.Helix.SZ.Chi2,
		NDF:      c.NDF + t.Helix.SZ.NDF,
		PValue:   c.PValue(),
		Rejected: t.Rejected(),
		Hits:     make([]HitRecord, len(t.Hits)),
	}
	if !math.IsNaN(t.Quality) && !math.IsInf(t.Quality, 0) {
		q := t.Quality
		r.Quality = &q
	}
	if id, purity, ok := t.MCTrack(); ok {
		r.MCTrack, r.Purity = &id, purity
	}
	for i, h := range t.Hits {
		r.Hits[i] = HitRecord{
			EWire:     h.Hit.ID.EWire(),
			RL:        int(h.RL),
			X:         h.Pos.X,
			Y:         h.Pos.Y,
			Z:         h.Pos.Z,
			ArcLength: h.ArcLength2D,
		}
	}
	return r
}

// NHits is the number of hits of the record.
func (r TrackRecord) NHits() int { return len(r.Hits) }
