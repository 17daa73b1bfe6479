// Package l5segments turns facet paths into segments, orients them, and
// builds the upper automaton levels: axial segment pairs, segment triples
// (axial, stereo, axial) and their relations.
//
// Dependency rule: l5segments imports l1wires, l2hits, l4facets, automaton,
// filter and fitting.
package l5segments
