package l3clusters

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/cdctrack/internal/cdc/automaton"
	"github.com/banshee-data/cdctrack/internal/cdc/filter"
)

// Vars are the cluster variables recorded for training and used by the
// classifier.
var Vars = filter.VarSet[*Cluster]{
	{Name: "size", Extract: func(c *Cluster) float64 { return float64(c.Size()) }},
	{Name: "total_adc", Extract: totalADC},
	{Name: "mean_adc", Extract: func(c *Cluster) float64 { return totalADC(c) / float64(c.Size()) }},
	{Name: "mean_drift_length", Extract: func(c *Cluster) float64 { m, _ := driftLengthStats(c); return m }},
	{Name: "var_drift_length", Extract: func(c *Cluster) float64 { _, v := driftLengthStats(c); return v }},
	{Name: "drift_time_std", Extract: driftTimeStd},
	{Name: "superlayer", Extract: func(c *Cluster) float64 { return float64(c.ISuperLayer) }},
	{Name: "layer_span", Extract: func(c *Cluster) float64 { return float64(layerSpan(c)) }},
	{Name: "density", Extract: density},
	{Name: "small_drift_fraction", Extract: smallDriftFraction},
}

func totalADC(c *Cluster) float64 {
	sum := 0.0
	for _, h := range c.Hits {
		sum += float64(h.ADC)
	}
	return sum
}

func driftLengthStats(c *Cluster) (mean, variance float64) {
	x := make([]float64, len(c.Hits))
	for i, h := range c.Hits {
		x[i] = h.DriftLength
	}
	if len(x) < 2 {
		return x[0], 0
	}
	return stat.MeanVariance(x, nil)
}

func driftTimeStd(c *Cluster) float64 {
	if len(c.Hits) < 2 {
		return 0
	}
	x := make([]float64, len(c.Hits))
	for i, h := range c.Hits {
		x[i] = h.DriftTime
	}
	return stat.StdDev(x, nil)
}

func layerSpan(c *Cluster) int {
	lo, hi := math.MaxInt, math.MinInt
	for _, h := range c.Hits {
		lo = min(lo, h.ID.ILayer)
		hi = max(hi, h.ID.ILayer)
	}
	return hi - lo + 1
}

func density(c *Cluster) float64 {
	lo, hi := math.MaxInt, math.MinInt
	for _, h := range c.Hits {
		lo = min(lo, h.ID.IWire)
		hi = max(hi, h.ID.IWire)
	}
	return float64(c.Size()) / float64(layerSpan(c)*(hi-lo+1))
}

func smallDriftFraction(c *Cluster) float64 {
	n := 0
	for _, h := range c.Hits {
		if h.DriftLength < 0.1 {
			n++
		}
	}
	return float64(n) / float64(c.Size())
}

// Truth marks clusters whose hits mostly come from simulated tracks.
func Truth(c *Cluster) (signal, known bool) {
	n, sig := 0, 0
	for _, h := range c.Hits {
		if h.Truth == nil {
			continue
		}
		n++
		if !h.Truth.IsBackground() {
			sig++
		}
	}
	return 2*sig > n, n > 0
}

// NewFilterFactory returns the factory of cluster background filters:
// all, none, truth, mva, recording and cuts.
func NewFilterFactory() *filter.Factory[*Cluster] {
	f := filter.NewFactory(filter.Config[*Cluster]{
		Stage:  "cluster",
		Accept: func(c *Cluster) float64 { return float64(c.Size()) },
		Vars:   Vars,
		Truth:  Truth,
	})
	f.Register("cuts", func(spec filter.Spec) (filter.Filter[*Cluster], error) {
		minSize := spec.Params.Get("min_size", 1)
		minMeanADC := spec.Params.Get("min_mean_adc", 0)
		maxTimeStd := spec.Params.Get("max_drift_time_std", math.Inf(1))
		return filter.Func[*Cluster](func(c *Cluster) float64 {
			if float64(c.Size()) < minSize ||
				totalADC(c)/float64(c.Size()) < minMeanADC ||
				driftTimeStd(c) > maxTimeStd {
				return math.NaN()
			}
			return float64(c.Size())
		}), nil
	})
	return f
}

// Screen weighs every cluster with flt. Rejected clusters and their hits
// are flagged background. It returns the number of rejected clusters.
func Screen(clusters []*Cluster, flt filter.Filter[*Cluster]) int {
	rejected := 0
	for _, c := range clusters {
		c.Weight = flt.Weight(c)
		c.Background = math.IsNaN(c.Weight)
		if !c.Background {
			continue
		}
		rejected++
		tracef("rejected cluster of %d hits in superlayer %d", c.Size(), c.ISuperLayer)
		for _, h := range c.Hits {
			h.AutomatonCell().SetFlag(automaton.FlagBackground)
		}
	}
	return rejected
}
