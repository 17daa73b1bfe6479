package display

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// circles draws many circles as one plotter, so a busy event does not
// add one line plotter per drift circle.
type circles struct {
	Centers []r2.Vec
	Radii   []float64
	draw.LineStyle
}

const circleSegments = 48

// Plot implements plot.Plotter.
func (c circles) Plot(dc draw.Canvas, p *plot.Plot) {
	trX, trY := p.Transforms(&dc)
	for i, ctr := range c.Centers {
		r := c.Radii[i]
		if r <= 0 {
			continue
		}
		pts := make([]vg.Point, circleSegments+1)
		for k := range pts {
			a := 2 * math.Pi * float64(k) / circleSegments
			pts[k] = vg.Point{X: trX(ctr.X + r*math.Cos(a)), Y: trY(ctr.Y + r*math.Sin(a))}
		}
		dc.StrokeLines(c.LineStyle, dc.ClipLinesXY(pts)...)
	}
}

// DataRange implements plot.DataRanger.
func (c circles) DataRange() (xmin, xmax, ymin, ymax float64) {
	xmin, ymin = math.Inf(1), math.Inf(1)
	xmax, ymax = math.Inf(-1), math.Inf(-1)
	for i, ctr := range c.Centers {
		r := c.Radii[i]
		xmin, xmax = math.Min(xmin, ctr.X-r), math.Max(xmax, ctr.X+r)
		ymin, ymax = math.Min(ymin, ctr.Y-r), math.Max(ymax, ctr.Y+r)
	}
	return xmin, xmax, ymin, ymax
}

// Thumbnail implements plot.Thumbnailer.
func (c circles) Thumbnail(dc *draw.Canvas) {
	y := dc.Center().Y
	dc.StrokeLine2(c.LineStyle, dc.Min.X, y, dc.Max.X, y)
}
