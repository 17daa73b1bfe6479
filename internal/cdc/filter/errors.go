package filter

import "errors"

var (
	// ErrUnknownFilter is returned by Factory.Create for unregistered names.
	ErrUnknownFilter = errors.New("unknown filter")
	// ErrNoRecorder is returned when a recording filter is requested but the
	// factory has no record sink.
	ErrNoRecorder = errors.New("no recorder configured")
	// ErrBadModel is returned for unusable classifier weights.
	ErrBadModel = errors.New("bad classifier model")
)
