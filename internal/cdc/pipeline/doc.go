// Package pipeline is the composition root of the track finder. It turns
// the tuning configuration into stages and runs one event through them:
// hit preparation, clustering, facets, segments, segment pairs and
// triples, track assembly, the Legendre pass, combination, merging, hit
// attachment, orientation and quality control.
//
// The layer packages (l1wires through l6tracks) never import pipeline.
package pipeline
