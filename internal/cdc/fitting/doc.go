// Package fitting provides the trajectory models and fits used by the track
// finder: circles in the transverse plane parametrised around a support
// point, straight lines in the arc length / z plane, and their combination
// into a helix with a 5x5 covariance.
//
// Conventions: positive curvature turns counter-clockwise, distances are
// positive to the left of the travel direction, and arc lengths grow along
// the travel direction.
package fitting
