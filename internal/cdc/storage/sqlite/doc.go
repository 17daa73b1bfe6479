// Package sqlite persists track finding runs: the run registry, the rows
// of recording filters used to train classifiers, and the found tracks.
//
// The schema is managed by golang-migrate from the embedded migrations
// directory and applied when a store is opened.
package sqlite
