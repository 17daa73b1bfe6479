// Package l3clusters groups the prepared hits of an event into clusters of
// connected wires within one superlayer and screens them for background.
//
// Dependency rule: l3clusters imports l1wires, l2hits, automaton and filter.
package l3clusters
