// Package l6tracks assembles segment paths into fitted track candidates and
// post-processes them: quality cleanup and rejection, orientation, the
// Legendre quadtree search over axial hits, combination of two candidate
// sets, probability-based merging and attachment of left-over hits.
//
// Dependency rule: l6tracks imports l1wires, l2hits, l5segments, automaton,
// filter and fitting. It never imports the pipeline.
package l6tracks
