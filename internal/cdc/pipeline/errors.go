package pipeline

import "errors"

// ErrNoGeometry is returned by New without a chamber geometry.
var ErrNoGeometry = errors.New("no geometry")
