package l2hits

import (
	"fmt"
	"sort"

	"github.com/banshee-data/cdctrack/internal/cdc/automaton"
	"github.com/banshee-data/cdctrack/internal/cdc/l1wires"
)

// HitRecord is one raw hit as read from an event file.
type HitRecord struct {
	EWire     int      `json:"wire"`
	TDC       int      `json:"tdc"`
	ADC       int      `json:"adc"`
	DriftTime *float64 `json:"driftTime,omitempty"` // ns, overrides the TDC conversion
	MCTrackID *int     `json:"mcTrackId,omitempty"`
	MCRL      *int     `json:"mcRL,omitempty"`
}

// Event is the unit of work: all hit records of one collision.
type Event struct {
	Number int         `json:"event"`
	Hits   []HitRecord `json:"hits"`
}

// PreparerConfig holds the hit preparation knobs.
type PreparerConfig struct {
	TDCOffset    int     // TDC count of zero drift time
	TDCBinWidth  float64 // ns per TDC count
	MinDriftTime float64 // ns
	MaxDriftTime float64 // ns
	MinADC       int
}

// DefaultPreparerConfig returns the settings used by the defaults file.
func DefaultPreparerConfig() PreparerConfig {
	return PreparerConfig{TDCOffset: 4100, TDCBinWidth: 0.98, MinDriftTime: -20, MaxDriftTime: 500}
}

// Preparer converts hit records into wire hits.
type Preparer struct {
	geo *l1wires.Service
	cfg PreparerConfig
}

// NewPreparer returns a preparer using geo for wire lookup and drift conversion.
func NewPreparer(geo *l1wires.Service, cfg PreparerConfig) *Preparer {
	return &Preparer{geo: geo, cfg: cfg}
}

// DriftTime converts a record to its drift time in ns.
func (p *Preparer) DriftTime(r HitRecord) float64 {
	if r.DriftTime != nil {
		return *r.DriftTime
	}
	return float64(p.cfg.TDCOffset-r.TDC) * p.cfg.TDCBinWidth
}

// TDCForDriftTime is the inverse of DriftTime, rounded to the nearest count.
func (p *Preparer) TDCForDriftTime(t float64) int {
	return p.cfg.TDCOffset - int(t/p.cfg.TDCBinWidth+0.5)
}

// Prepare resolves, converts and sorts the records of one event. Records on
// the same wire are collapsed to the earliest one. Hits outside the drift
// time window or below the ADC threshold are flagged background, never
// removed. An unknown wire is an error.
func (p *Preparer) Prepare(records []HitRecord) ([]WireHit, error) {
	hits := make([]WireHit, 0, len(records))
	for i, r := range records {
		id, err := p.geo.Resolve(r.EWire)
		if err != nil {
			return nil, fmt.Errorf("hit %d: %w", i, err)
		}
		t := p.DriftTime(r)
		length, variance := p.geo.DriftLength(id, t)
		h := WireHit{
			ID:            id,
			ICLayer:       p.geo.ICLayer(id),
			ASIC:          p.geo.ASIC(id),
			RefPos:        p.geo.RefPosition(id),
			TDC:           r.TDC,
			ADC:           r.ADC,
			DriftTime:     t,
			DriftLength:   length,
			DriftVariance: variance,
			cell:          automaton.NewCell(1),
		}
		if r.MCTrackID != nil {
			h.Truth = &Truth{TrackID: *r.MCTrackID}
			if r.MCRL != nil {
				h.Truth.RL = RLInfo(sign(*r.MCRL))
			}
		}
		if t < p.cfg.MinDriftTime || t > p.cfg.MaxDriftTime || r.ADC < p.cfg.MinADC {
			h.cell.SetFlag(automaton.FlagBackground)
		}
		hits = append(hits, h)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].ID != hits[j].ID {
			return hits[i].ID.Less(hits[j].ID)
		}
		return hits[i].DriftTime < hits[j].DriftTime
	})
	out := hits[:0]
	for i := range hits {
		if len(out) > 0 && out[len(out)-1].ID == hits[i].ID {
			tracef("dropping duplicate hit on %s", hits[i].ID)
			continue
		}
		out = append(out, hits[i])
	}

	background := 0
	for i := range out {
		if out[i].IsBackground() {
			background++
		}
	}
	diagf("prepared %d hits from %d records, %d flagged background", len(out), len(records), background)
	return out, nil
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
