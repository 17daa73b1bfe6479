// Package l2hits turns raw per-wire hit records of one event into prepared
// wire hits: resolved wire ids, drift lengths, background flags.
//
// Dependency rule: l2hits imports l1wires and automaton only.
//
// Hits of an event live in one slice sorted by wire id. Every later stage
// refers to them by pointer into that slice and never copies them.
package l2hits
