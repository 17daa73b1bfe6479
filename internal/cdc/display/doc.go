// Package display draws the transverse view of one processed event: the
// chamber walls, the hit wires with their drift circles, the segments and
// the fitted track circles. Plots are gonum/plot values and can be saved
// as PNG, SVG or PDF.
package display
