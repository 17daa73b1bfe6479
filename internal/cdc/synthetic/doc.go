// Package synthetic generates toy events for the drift chamber: helical
// tracks from the origin region crossing the layers, smeared drift lengths,
// truth labels and uniformly distributed noise hits.
//
// The generator only simulates the outgoing arm of a track. Curlers stop at
// their largest radius.
package synthetic
