package l1wires

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// DriftRelation converts drift times (ns) to drift lengths (cm) and back.
type DriftRelation interface {
	// DriftLength returns the drift length and its variance for a hit in layer iCLayer.
	DriftLength(iCLayer int, driftTime float64) (length, variance float64)
	// DriftTime is the inverse of DriftLength, used by the toy generator.
	DriftTime(iCLayer int, length float64) float64
}

// LinearDriftRelation is a constant drift velocity clamped to the cell size.
type LinearDriftRelation struct {
	Velocity  float64   // cm/ns
	Sigma     float64   // cm
	MaxLength []float64 // per ICLayer
}

// NewLinearDriftRelation builds a linear relation whose lengths are clamped
// to the maximal drift length of each layer of t.
func NewLinearDriftRelation(t *Topology, velocity, sigma float64) (*LinearDriftRelation, error) {
	if velocity <= 0 {
		return nil, fmt.Errorf("drift velocity must be positive, got %g", velocity)
	}
	if sigma <= 0 {
		return nil, fmt.Errorf("drift resolution must be positive, got %g", sigma)
	}
	maxLen := make([]float64, t.NLayers())
	for i, l := range t.Layers() {
		maxLen[i] = l.MaxDriftLength()
	}
	return &LinearDriftRelation{Velocity: velocity, Sigma: sigma, MaxLength: maxLen}, nil
}

func (d *LinearDriftRelation) DriftLength(iCLayer int, driftTime float64) (float64, float64) {
	length := d.Velocity * driftTime
	if length < 0 {
		length = 0
	}
	if iCLayer >= 0 && iCLayer < len(d.MaxLength) {
		length = math.Min(length, d.MaxLength[iCLayer])
	}
	return length, d.Sigma * d.Sigma
}

func (d *LinearDriftRelation) DriftTime(_ int, length float64) float64 {
	return length / d.Velocity
}

// Geometry is the read-only service consumed by the track finding stages.
type Geometry interface {
	WirePosition(id WireID, z float64) r2.Vec
	IsAdjacent(a, b WireID) bool
	DriftLength(id WireID, driftTime float64) (length, variance float64)
}

// Service bundles the topology and the drift relation of one run.
// It must be fully built before the first event and never mutated after.
type Service struct {
	*Topology
	Drift DriftRelation
}

var _ Geometry = (*Service)(nil)

// NewService builds a service from topology parameters and a linear drift relation.
func NewService(p TopologyParams, driftVelocity, driftSigma float64) (*Service, error) {
	t, err := NewTopology(p)
	if err != nil {
		return nil, fmt.Errorf("build topology: %w", err)
	}
	d, err := NewLinearDriftRelation(t, driftVelocity, driftSigma)
	if err != nil {
		return nil, fmt.Errorf("build drift relation: %w", err)
	}
	return &Service{Topology: t, Drift: d}, nil
}

// Default drift relation constants.
const (
	DefaultDriftVelocity = 0.004 // cm/ns
	DefaultDriftSigma    = 0.012 // cm
)

// MustDefaultService returns the default chamber with the default drift relation.
// Intended for tests and tools.
func MustDefaultService() *Service {
	s, err := NewService(DefaultTopologyParams(), DefaultDriftVelocity, DefaultDriftSigma)
	if err != nil {
		panic(err)
	}
	return s
}

// DriftLength converts the drift time of a hit on wire id.
func (s *Service) DriftLength(id WireID, driftTime float64) (float64, float64) {
	return s.Drift.DriftLength(s.ICLayer(id), driftTime)
}
