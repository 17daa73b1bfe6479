package l2hits

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/cdctrack/internal/cdc/l1wires"
)

func ptr[T any](v T) *T { return &v }

func record(sl, l, w int, t float64) HitRecord {
	return HitRecord{
		EWire:     l1wires.WireID{ISuperLayer: sl, ILayer: l, IWire: w}.EWire(),
		ADC:       30,
		DriftTime: ptr(t),
	}
}

func TestPrepareSortsAndConverts(t *testing.T) {
	geo := l1wires.MustDefaultService()
	p := NewPreparer(geo, DefaultPreparerConfig())

	hits, err := p.Prepare([]HitRecord{
		record(2, 1, 5, 50),
		record(0, 3, 17, 100),
		record(2, 0, 9, 25),
	})
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, l1wires.WireID{ISuperLayer: 0, ILayer: 3, IWire: 17}, hits[0].ID)
	assert.Equal(t, l1wires.WireID{ISuperLayer: 2, ILayer: 0, IWire: 9}, hits[1].ID)
	assert.InDelta(t, 0.4, hits[0].DriftLength, 1e-12)
	assert.Equal(t, 3, hits[0].ICLayer)
	assert.Equal(t, geo.RefPosition(hits[0].ID), hits[0].RefPos)
	assert.False(t, hits[0].IsBackground())
}

func TestPrepareTDCConversion(t *testing.T) {
	geo := l1wires.MustDefaultService()
	cfg := DefaultPreparerConfig()
	p := NewPreparer(geo, cfg)

	r := HitRecord{EWire: 10, TDC: cfg.TDCOffset - 100, ADC: 20}
	assert.InDelta(t, 100*cfg.TDCBinWidth, p.DriftTime(r), 1e-12)
	assert.Equal(t, r.TDC, p.TDCForDriftTime(p.DriftTime(r)))
}

func TestPrepareFlagsOutOfWindowHits(t *testing.T) {
	geo := l1wires.MustDefaultService()
	cfg := DefaultPreparerConfig()
	cfg.MinADC = 10
	p := NewPreparer(geo, cfg)

	lowADC := record(0, 0, 3, 50)
	lowADC.ADC = 2
	hits, err := p.Prepare([]HitRecord{
		record(0, 0, 1, 900),
		record(0, 0, 2, -50),
		lowADC,
		record(0, 0, 4, 50),
	})
	require.NoError(t, err)
	require.Len(t, hits, 4, "background hits are flagged, not removed")
	assert.True(t, hits[0].IsBackground())
	assert.True(t, hits[1].IsBackground())
	assert.True(t, hits[2].IsBackground())
	assert.False(t, hits[3].IsBackground())
}

func TestPrepareCollapsesDuplicates(t *testing.T) {
	p := NewPreparer(l1wires.MustDefaultService(), DefaultPreparerConfig())
	hits, err := p.Prepare([]HitRecord{record(1, 2, 3, 80), record(1, 2, 3, 40)})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 40.0, hits[0].DriftTime)
}

func TestPrepareUnknownWire(t *testing.T) {
	p := NewPreparer(l1wires.MustDefaultService(), DefaultPreparerConfig())
	_, err := p.Prepare([]HitRecord{record(0, 0, 1, 10), {EWire: 9 * 4096}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, l1wires.ErrUnknownWire))
}

func TestPrepareTruth(t *testing.T) {
	p := NewPreparer(l1wires.MustDefaultService(), DefaultPreparerConfig())
	r := record(0, 0, 1, 10)
	r.MCTrackID = ptr(4)
	r.MCRL = ptr(-1)
	bg := record(0, 0, 2, 10)
	bg.MCTrackID = ptr(-1)

	hits, err := p.Prepare([]HitRecord{r, bg, record(0, 0, 3, 10)})
	require.NoError(t, err)
	require.NotNil(t, hits[0].Truth)
	assert.Equal(t, 4, hits[0].Truth.TrackID)
	assert.Equal(t, Left, hits[0].Truth.RL)
	assert.True(t, hits[1].Truth.IsBackground())
	assert.Nil(t, hits[2].Truth)
}

func TestAsicBackgroundDetector(t *testing.T) {
	p := NewPreparer(l1wires.MustDefaultService(), DefaultPreparerConfig())
	d := DefaultAsicBackgroundDetector()

	t.Run("cross-talk burst", func(t *testing.T) {
		// Six hits of ASIC 0 in layer 0 within 3 ns, one unrelated hit.
		records := []HitRecord{
			record(0, 0, 0, 200), record(0, 0, 1, 201), record(0, 0, 2, 202),
			record(0, 0, 3, 200), record(0, 0, 4, 203), record(0, 0, 5, 201),
			record(0, 0, 6, 40),
		}
		hits, err := p.Prepare(records)
		require.NoError(t, err)

		assert.Equal(t, 6, d.Apply(hits))
		for _, h := range hits[:6] {
			assert.True(t, h.ASICBackground, h.ID.String())
			assert.True(t, h.IsBackground(), h.ID.String())
		}
		assert.False(t, hits[6].ASICBackground)

		assert.Equal(t, 0, d.Apply(hits), "applying twice flags nothing new")
	})

	t.Run("signal-like spread", func(t *testing.T) {
		records := []HitRecord{
			record(0, 1, 8, 20), record(0, 1, 9, 90), record(0, 1, 10, 160),
			record(0, 1, 11, 230), record(0, 1, 12, 300),
		}
		hits, err := p.Prepare(records)
		require.NoError(t, err)
		assert.Equal(t, 0, d.Apply(hits))
	})

	t.Run("small group skipped", func(t *testing.T) {
		hits, err := p.Prepare([]HitRecord{record(0, 2, 16, 100), record(0, 2, 17, 100), record(0, 2, 18, 100)})
		require.NoError(t, err)
		assert.Equal(t, 0, d.Apply(hits))
	})

	t.Run("groups split by asic", func(t *testing.T) {
		// Wires 6..9 span ASICs 0 and 1: two hits each, both below MinHits.
		hits, err := p.Prepare([]HitRecord{
			record(0, 3, 6, 100), record(0, 3, 7, 100), record(0, 3, 8, 100), record(0, 3, 9, 100),
		})
		require.NoError(t, err)
		assert.Equal(t, 0, d.Apply(hits))
	})
}

func TestRLWireHit(t *testing.T) {
	h := &WireHit{DriftLength: 0.3}
	rh := RLWireHit{Hit: h, RL: Right}
	assert.InDelta(t, 0.3, rh.SignedDriftLength(), 1e-15)
	assert.Equal(t, Left, rh.Reversed().RL)
	assert.InDelta(t, -0.3, rh.Reversed().SignedDriftLength(), 1e-15)
	assert.Equal(t, Unknown, Unknown.Reversed())
}
