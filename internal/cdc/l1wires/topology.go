package l1wires

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// StereoKind classifies the wire orientation of a superlayer.
type StereoKind string

const (
	Axial   StereoKind = "A" // wires parallel to the beam axis
	StereoU StereoKind = "U" // positive stereo angle
	StereoV StereoKind = "V" // negative stereo angle
)

// TopologyParams describes a chamber from which a Topology is built.
type TopologyParams struct {
	LayersPerSuperLayer []int        `json:"layers_per_super_layer" yaml:"layers_per_super_layer"`
	WiresPerLayer       []int        `json:"wires_per_layer" yaml:"wires_per_layer"` // per superlayer
	Kinds               []StereoKind `json:"kinds" yaml:"kinds"`
	StereoAngles        []float64    `json:"stereo_angles" yaml:"stereo_angles"` // radians, signed
	FirstLayerRadius    []float64    `json:"first_layer_radius" yaml:"first_layer_radius"`
	LayerSpacing        []float64    `json:"layer_spacing" yaml:"layer_spacing"`
	ZBackward           float64      `json:"z_backward" yaml:"z_backward"`
	ZForward            float64      `json:"z_forward" yaml:"z_forward"`
	InnerWallRadius     float64      `json:"inner_wall_radius" yaml:"inner_wall_radius"`
	OuterWallRadius     float64      `json:"outer_wall_radius" yaml:"outer_wall_radius"`
}

// DefaultTopologyParams returns a nine-superlayer chamber with 56 layers
// and 14336 wires (lengths in cm).
func DefaultTopologyParams() TopologyParams {
	return TopologyParams{
		LayersPerSuperLayer: []int{8, 6, 6, 6, 6, 6, 6, 6, 6},
		WiresPerLayer:       []int{160, 160, 192, 224, 256, 288, 320, 352, 384},
		Kinds:               []StereoKind{Axial, StereoU, Axial, StereoV, Axial, StereoU, Axial, StereoV, Axial},
		StereoAngles:        []float64{0, 0.0686, 0, -0.0571, 0, 0.0637, 0, -0.0714, 0},
		FirstLayerRadius:    []float64{16.8, 25.7, 36.5, 47.3, 58.1, 68.9, 79.7, 90.5, 101.3},
		LayerSpacing:        []float64{1.0, 1.8, 1.8, 1.8, 1.8, 1.8, 1.8, 1.8, 1.8},
		ZBackward:           -80,
		ZForward:            150,
		InnerWallRadius:     16.0,
		OuterWallRadius:     113.0,
	}
}

// Layer holds the geometry shared by every wire of one layer.
type Layer struct {
	ICLayer     int        `json:"ic_layer" yaml:"ic_layer"`
	ISuperLayer int        `json:"super_layer" yaml:"super_layer"`
	ILayer      int        `json:"layer" yaml:"layer"`
	Kind        StereoKind `json:"kind" yaml:"kind"`
	NWires      int        `json:"n_wires" yaml:"n_wires"`
	Radius      float64    `json:"radius" yaml:"radius"`
	Shift       float64    `json:"shift" yaml:"shift"` // half-cell stagger, 0 or 0.5
	StereoAngle float64    `json:"stereo_angle" yaml:"stereo_angle"`
	CellWidth   float64    `json:"cell_width" yaml:"cell_width"`
	CellHeight  float64    `json:"cell_height" yaml:"cell_height"`
	ZBackward   float64    `json:"z_backward" yaml:"z_backward"`
	ZForward    float64    `json:"z_forward" yaml:"z_forward"`
}

// IsAxial reports whether the layer's wires are parallel to the beam.
func (l *Layer) IsAxial() bool { return l.Kind == Axial }

// MaxDriftLength is the largest drift length a hit in this layer can have.
func (l *Layer) MaxDriftLength() float64 {
	return 0.5 * math.Hypot(l.CellWidth, l.CellHeight)
}

// Topology is the static wire layout of the chamber.
type Topology struct {
	params      TopologyParams
	layers      []Layer // indexed by ICLayer
	superLayers [][]int // ICLayers per superlayer
	wallRadii   [2]float64
}

// NewTopology validates params and builds the layer table.
func NewTopology(p TopologyParams) (*Topology, error) {
	n := len(p.LayersPerSuperLayer)
	if n == 0 {
		return nil, fmt.Errorf("topology needs at least one superlayer")
	}
	for name, l := range map[string]int{
		"wires_per_layer":    len(p.WiresPerLayer),
		"kinds":              len(p.Kinds),
		"stereo_angles":      len(p.StereoAngles),
		"first_layer_radius": len(p.FirstLayerRadius),
		"layer_spacing":      len(p.LayerSpacing),
	} {
		if l != n {
			return nil, fmt.Errorf("topology %s has %d entries, want %d", name, l, n)
		}
	}
	if p.ZForward <= p.ZBackward {
		return nil, fmt.Errorf("topology z range [%g, %g] is empty", p.ZBackward, p.ZForward)
	}

	t := &Topology{params: p, wallRadii: [2]float64{p.InnerWallRadius, p.OuterWallRadius}}
	lastRadius := 0.0
	for sl := 0; sl < n; sl++ {
		nLayers, nWires := p.LayersPerSuperLayer[sl], p.WiresPerLayer[sl]
		if nLayers <= 0 || nLayers > superLayerStride/layerStride {
			return nil, fmt.Errorf("superlayer %d has invalid layer count %d", sl, nLayers)
		}
		if nWires < 3 || nWires > layerStride {
			return nil, fmt.Errorf("superlayer %d has invalid wire count %d", sl, nWires)
		}
		if (p.Kinds[sl] == Axial) != (p.StereoAngles[sl] == 0) {
			return nil, fmt.Errorf("superlayer %d kind %s does not match stereo angle %g", sl, p.Kinds[sl], p.StereoAngles[sl])
		}
		var ic []int
		for l := 0; l < nLayers; l++ {
			r := p.FirstLayerRadius[sl] + float64(l)*p.LayerSpacing[sl]
			if r <= lastRadius {
				return nil, fmt.Errorf("layer radii must increase (superlayer %d layer %d at %g cm)", sl, l, r)
			}
			lastRadius = r
			layer := Layer{
				ICLayer:     len(t.layers),
				ISuperLayer: sl,
				ILayer:      l,
				Kind:        p.Kinds[sl],
				NWires:      nWires,
				Radius:      r,
				Shift:       0.5 * float64(l%2),
				StereoAngle: p.StereoAngles[sl],
				CellWidth:   2 * math.Pi * r / float64(nWires),
				CellHeight:  p.LayerSpacing[sl],
				ZBackward:   p.ZBackward,
				ZForward:    p.ZForward,
			}
			ic = append(ic, layer.ICLayer)
			t.layers = append(t.layers, layer)
		}
		t.superLayers = append(t.superLayers, ic)
	}
	return t, nil
}

// MustDefaultTopology builds the default chamber and panics on error.
// Intended for tests and tools.
func MustDefaultTopology() *Topology {
	t, err := NewTopology(DefaultTopologyParams())
	if err != nil {
		panic(err)
	}
	return t
}

// Params returns the parameters the topology was built from.
func (t *Topology) Params() TopologyParams { return t.params }

// NSuperLayers returns the number of superlayers.
func (t *Topology) NSuperLayers() int { return len(t.superLayers) }

// NLayers returns the total number of layers.
func (t *Topology) NLayers() int { return len(t.layers) }

// Layers returns the layer table indexed by continuous layer number.
func (t *Topology) Layers() []Layer { return t.layers }

// InnerWallRadius is the radius of the chamber's inner wall.
func (t *Topology) InnerWallRadius() float64 { return t.wallRadii[0] }

// OuterWallRadius is the radius of the chamber's outer wall.
func (t *Topology) OuterWallRadius() float64 { return t.wallRadii[1] }

// SuperLayerKind returns the orientation of a superlayer.
func (t *Topology) SuperLayerKind(sl int) StereoKind {
	if sl < 0 || sl >= len(t.superLayers) {
		return ""
	}
	return t.params.Kinds[sl]
}

// IsAxialSuperLayer reports whether sl holds axial wires.
func (t *Topology) IsAxialSuperLayer(sl int) bool { return t.SuperLayerKind(sl) == Axial }

// Layer returns the layer of a wire, or nil if it does not exist.
func (t *Topology) Layer(id WireID) *Layer {
	if id.ISuperLayer < 0 || id.ISuperLayer >= len(t.superLayers) {
		return nil
	}
	ls := t.superLayers[id.ISuperLayer]
	if id.ILayer < 0 || id.ILayer >= len(ls) {
		return nil
	}
	return &t.layers[ls[id.ILayer]]
}

// ICLayer returns the continuous layer number of a wire, or -1.
func (t *Topology) ICLayer(id WireID) int {
	if l := t.Layer(id); l != nil {
		return l.ICLayer
	}
	return -1
}

// Valid reports whether id names an existing wire.
func (t *Topology) Valid(id WireID) bool {
	l := t.Layer(id)
	return l != nil && id.IWire >= 0 && id.IWire < l.NWires
}

// Resolve decodes an encoded wire number and checks it against the topology.
func (t *Topology) Resolve(eWire int) (WireID, error) {
	if eWire < 0 {
		return WireID{}, fmt.Errorf("%w: %d", ErrUnknownWire, eWire)
	}
	id := WireIDFromEWire(eWire)
	if !t.Valid(id) {
		return WireID{}, fmt.Errorf("%w: %d (%s)", ErrUnknownWire, eWire, id)
	}
	return id, nil
}

// Phi returns the azimuth of a wire at z = 0.
func (t *Topology) Phi(id WireID) float64 {
	l := t.Layer(id)
	return 2 * math.Pi * (float64(id.IWire) + l.Shift) / float64(l.NWires)
}

// RefPosition returns the wire position at z = 0.
func (t *Topology) RefPosition(id WireID) r2.Vec {
	l := t.Layer(id)
	phi := t.Phi(id)
	return r2.Vec{X: l.Radius * math.Cos(phi), Y: l.Radius * math.Sin(phi)}
}

// SkewPerZ returns the transverse displacement of the wire per unit z.
// It is zero for axial wires and tangential for stereo wires.
func (t *Topology) SkewPerZ(id WireID) r2.Vec {
	l := t.Layer(id)
	if l.StereoAngle == 0 {
		return r2.Vec{}
	}
	phi := t.Phi(id)
	tan := math.Tan(l.StereoAngle)
	return r2.Vec{X: -math.Sin(phi) * tan, Y: math.Cos(phi) * tan}
}

// WirePosition returns the transverse wire position at z.
func (t *Topology) WirePosition(id WireID, z float64) r2.Vec {
	return r2.Add(t.RefPosition(id), r2.Scale(z, t.SkewPerZ(id)))
}

// ZRange returns the backward and forward z of a wire.
func (t *Topology) ZRange(id WireID) (float64, float64) {
	l := t.Layer(id)
	return l.ZBackward, l.ZForward
}

// ASIC returns the front-end ASIC reading out a wire.
func (t *Topology) ASIC(id WireID) AsicID {
	return AsicID{ICLayer: t.ICLayer(id), Index: id.IWire / WiresPerASIC}
}
