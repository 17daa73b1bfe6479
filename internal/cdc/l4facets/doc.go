// Package l4facets builds facets, oriented triples of neighboring hits with
// right-left passage hypotheses, and the relations between them that the
// cellular automaton follows to form segments.
//
// Dependency rule: l4facets imports l1wires, l2hits, l3clusters, automaton
// and filter.
package l4facets
