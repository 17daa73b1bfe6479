// Package automaton implements the weighted cellular automaton shared by
// every level of the track finder.
//
// Nodes (hits, facets, segments, segment pairs and triples, tracks) embed a
// Cell and are linked by weighted relations. The automaton assigns each node
// the weight of the best path ending at it; the multipass path finder then
// extracts disjoint paths heaviest first.
//
// Dependency rule: automaton imports nothing from the cdc packages. Every
// level above l1wires depends on it.
package automaton
