package l1wires

import (
	"errors"
	"fmt"
)

// ErrUnknownWire is returned when a wire id does not exist in the topology.
// It indicates a geometry or unpacking bug and is fatal for the event.
var ErrUnknownWire = errors.New("unknown wire id")

// Encoding of the compact wire number used in input hit records.
const (
	superLayerStride = 4096
	layerStride      = 512
)

// WireID identifies one sense wire.
type WireID struct {
	ISuperLayer int `json:"super_layer" yaml:"super_layer"`
	ILayer      int `json:"layer" yaml:"layer"` // layer index inside the superlayer
	IWire       int `json:"wire" yaml:"wire"`
}

// EWire returns the compact encoding ISuperLayer*4096 + ILayer*512 + IWire.
// Ordering by EWire is ordering by (superlayer, layer, wire).
func (w WireID) EWire() int {
	return w.ISuperLayer*superLayerStride + w.ILayer*layerStride + w.IWire
}

// WireIDFromEWire decodes the compact encoding. The result is not checked
// against a topology; use Topology.Resolve for that.
func WireIDFromEWire(e int) WireID {
	return WireID{
		ISuperLayer: e / superLayerStride,
		ILayer:      (e % superLayerStride) / layerStride,
		IWire:       e % layerStride,
	}
}

// Less orders wires by superlayer, layer and wire.
func (w WireID) Less(o WireID) bool {
	return w.EWire() < o.EWire()
}

func (w WireID) String() string {
	return fmt.Sprintf("SL%d/L%d/W%d", w.ISuperLayer, w.ILayer, w.IWire)
}

// AsicID identifies one front-end ASIC: eight consecutive wires of one layer.
type AsicID struct {
	ICLayer int
	Index   int
}

// WiresPerASIC is the number of channels read out by one ASIC.
const WiresPerASIC = 8
