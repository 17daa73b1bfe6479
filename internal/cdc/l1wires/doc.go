// Package l1wires owns Layer 1 (Wires) of the CDC data model.
//
// Responsibilities: wire identifiers, the superlayer/layer/wire topology,
// wire positions along z (axial and stereo wires), the hexagonal primary
// neighborhood, the channel-to-ASIC mapping and the drift time to drift
// length relation.
// Key types: WireID, Topology, Layer, DriftRelation, Service.
//
// The topology is built once per run and is read-only afterwards; a single
// *Service may be shared by every event worker without locking.
//
// Dependency rule: L1 depends on nothing else in internal/cdc.
package l1wires
