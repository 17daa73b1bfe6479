package l6tracks

import "errors"

var (
	// ErrUnknownCleanupStep reports a cleanup step name that does not exist.
	ErrUnknownCleanupStep = errors.New("unknown track cleanup step")
	// ErrUnknownCombinerMode reports a combiner mode other than automaton
	// or hungarian.
	ErrUnknownCombinerMode = errors.New("unknown combiner mode")
)
