package filter

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type thing struct {
	size   float64
	spread float64
	signal bool
	known  bool
}

var thingVars = VarSet[*thing]{
	{Name: "size", Extract: func(t *thing) float64 { return t.size }},
	{Name: "spread", Extract: func(t *thing) float64 { return t.spread }},
}

func thingTruth(t *thing) (bool, bool) { return t.signal, t.known }

func newThingFactory() *Factory[*thing] {
	f := NewFactory(Config[*thing]{
		Stage:  "thing",
		Accept: func(t *thing) float64 { return t.size },
		Vars:   thingVars,
		Truth:  thingTruth,
	})
	f.Register("cuts", func(spec Spec) (Filter[*thing], error) {
		minSize := spec.Params.Get("min_size", 2)
		return Func[*thing](func(t *thing) float64 {
			if t.size < minSize {
				return math.NaN()
			}
			return t.size
		}), nil
	})
	return f
}

func TestFactoryBuiltins(t *testing.T) {
	f := newThingFactory()
	obj := &thing{size: 4, signal: true, known: true}

	all, err := f.Create(Spec{Name: "all"})
	require.NoError(t, err)
	assert.Equal(t, 4.0, all.Weight(obj))

	none, err := f.Create(Spec{Name: "none"})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(none.Weight(obj)))

	truth, err := f.Create(Spec{Name: "truth"})
	require.NoError(t, err)
	assert.Equal(t, 4.0, truth.Weight(obj))
	assert.True(t, math.IsNaN(truth.Weight(&thing{size: 4, known: true})))
	assert.True(t, math.IsNaN(truth.Weight(&thing{size: 4, signal: true})), "unknown truth rejects")

	cuts, err := f.Create(Spec{Name: "cuts", Params: Params{"min_size": 5}})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(cuts.Weight(obj)))

	assert.Equal(t, []string{"all", "cuts", "mva", "none", "recording", "truth"}, f.Names())
}

func TestFactoryUnknownName(t *testing.T) {
	_, err := newThingFactory().Create(Spec{Name: "simpel"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownFilter))
	assert.Contains(t, err.Error(), "simpel")
	assert.Contains(t, err.Error(), "cuts")
}

func TestRecordingFilter(t *testing.T) {
	f := newThingFactory()

	_, err := f.Create(Spec{Name: "recording", Inner: &Spec{Name: "all"}})
	assert.True(t, errors.Is(err, ErrNoRecorder))

	src := &MemorySource{}
	f.WithRecorders(src)
	rec, err := f.Create(Spec{Name: "recording", Inner: &Spec{Name: "cuts"}})
	require.NoError(t, err)

	assert.Equal(t, 3.0, rec.Weight(&thing{size: 3, spread: 0.5, signal: true, known: true}))
	assert.True(t, math.IsNaN(rec.Weight(&thing{size: 1, spread: 2})))

	stage := src.Stages["thing"]
	require.NotNil(t, stage)
	assert.Equal(t, []string{"size", "spread"}, stage.Names)
	require.Len(t, stage.Records, 2)
	assert.Equal(t, []float64{3, 0.5}, stage.Records[0].Values)
	assert.Equal(t, 1.0, stage.Records[0].Truth)
	assert.True(t, math.IsNaN(stage.Records[1].Truth))
	assert.True(t, math.IsNaN(stage.Records[1].Weight))
}

func TestTrainAndApplyMVA(t *testing.T) {
	// Signal is large and narrow, background small and wide.
	var records []Record
	for i := 0; i < 200; i++ {
		x := float64(i%10) / 10
		records = append(records,
			Record{Values: []float64{5 + x, 0.2 + x/10}, Truth: 1},
			Record{Values: []float64{1 + x, 1.5 + x}, Truth: 0},
		)
	}
	records = append(records, Record{Values: []float64{3, math.NaN()}, Truth: 1}, Record{Values: []float64{3, 1}, Truth: math.NaN()})

	model, err := Train(thingVars.Names(), records, TrainOptions{L2: 0.01, Cut: 0.5})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "thing.json")
	require.NoError(t, model.Save(path))

	f := newThingFactory()
	flt, err := f.Create(Spec{Name: "mva", File: path})
	require.NoError(t, err)

	assert.Equal(t, 5.5, flt.Weight(&thing{size: 5.5, spread: 0.25}))
	assert.True(t, math.IsNaN(flt.Weight(&thing{size: 1.2, spread: 2})))
	assert.True(t, math.IsNaN(flt.Weight(&thing{size: math.NaN()})))

	mva := flt.(*MVA[*thing])
	assert.Greater(t, mva.Probability(&thing{size: 6, spread: 0.2}), 0.9)
}

func TestTrainRejectsSingleClass(t *testing.T) {
	_, err := Train([]string{"a"}, []Record{{Values: []float64{1}, Truth: 1}}, TrainOptions{})
	assert.True(t, errors.Is(err, ErrBadModel))

	_, err = Train([]string{"a"}, nil, TrainOptions{})
	assert.True(t, errors.Is(err, ErrBadModel))
}

func TestModelBindRejectsUnknownVariable(t *testing.T) {
	m := &LogisticModel{Weights: map[string]float64{"size": 1, "colour": 2}}
	_, err := NewMVA(thingVars, m, func(*thing) float64 { return 1 })
	assert.True(t, errors.Is(err, ErrBadModel))

	_, err = newThingFactory().Create(Spec{Name: "mva"})
	assert.Error(t, err)
}

func TestVarSet(t *testing.T) {
	obj := &thing{size: 2, spread: 3}
	assert.Equal(t, []float64{2, 3}, thingVars.Values(obj))
	assert.Equal(t, map[string]float64{"size": 2, "spread": 3}, thingVars.Map(obj))
}
