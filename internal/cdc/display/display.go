package display

import (
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/cdctrack/internal/cdc/l1wires"
	"github.com/banshee-data/cdctrack/internal/cdc/l2hits"
	"github.com/banshee-data/cdctrack/internal/cdc/l6tracks"
	"github.com/banshee-data/cdctrack/internal/cdc/pipeline"
)

// Options selects the layers of the display.
type Options struct {
	Title        string
	Wires        bool // every sense wire at z = 0
	DriftCircles bool
	Segments     bool
	Rejected     bool // rejected tracks, dashed
	Size         vg.Length
}

// DefaultOptions draws everything except the idle wires.
func DefaultOptions() Options {
	return Options{DriftCircles: true, Segments: true, Rejected: true, Size: 8 * vg.Inch}
}

// EventDisplay draws events of one chamber.
type EventDisplay struct {
	topo *l1wires.Topology
	opts Options
}

// New returns a display of topo.
func New(topo *l1wires.Topology, opts Options) *EventDisplay {
	if opts.Size <= 0 {
		opts.Size = 8 * vg.Inch
	}
	return &EventDisplay{topo: topo, opts: opts}
}

// Plot builds the transverse view of res.
func (d *EventDisplay) Plot(res *pipeline.Result) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = d.opts.Title
	if p.Title.Text == "" {
		p.Title.Text = fmt.Sprintf("Event %d: %d hits, %d tracks", res.Event, len(res.Hits), len(res.Tracks))
	}
	p.X.Label.Text = "x (cm)"
	p.Y.Label.Text = "y (cm)"
	p.Legend.Top = true
	p.Legend.Left = false

	outer := d.topo.OuterWallRadius()
	walls := circles{
		Centers:   []r2.Vec{{}, {}},
		Radii:     []float64{d.topo.InnerWallRadius(), outer},
		LineStyle: draw.LineStyle{Color: wallColor, Width: vg.Points(0.5), Dashes: []vg.Length{vg.Points(3), vg.Points(3)}},
	}
	p.Add(walls)

	if d.opts.Wires {
		wires, err := scatter(d.wirePositions(), wireColor, vg.Points(0.4))
		if err != nil {
			return nil, err
		}
		p.Add(wires)
	}
	if err := d.addHits(p, res.Hits); err != nil {
		return nil, err
	}
	if d.opts.Segments {
		if err := d.addSegments(p, res); err != nil {
			return nil, err
		}
	}
	if err := d.addTracks(p, res.Tracks, outer); err != nil {
		return nil, err
	}

	// same scale on both axes
	pad := outer * 1.05
	p.X.Min, p.X.Max = -pad, pad
	p.Y.Min, p.Y.Max = -pad, pad
	return p, nil
}

func (d *EventDisplay) wirePositions() plotter.XYs {
	var out plotter.XYs
	for _, l := range d.topo.Layers() {
		for iw := range l.NWires {
			pos := d.topo.RefPosition(l1wires.WireID{ISuperLayer: l.ISuperLayer, ILayer: l.ILayer, IWire: iw})
			out = append(out, plotter.XY{X: pos.X, Y: pos.Y})
		}
	}
	return out
}

func (d *EventDisplay) addHits(p *plot.Plot, hits []l2hits.WireHit) error {
	var signal, background, asic plotter.XYs
	drift := circles{LineStyle: draw.LineStyle{Color: hitColor, Width: vg.Points(0.3)}}
	for i := range hits {
		h := &hits[i]
		xy := plotter.XY{X: h.RefPos.X, Y: h.RefPos.Y}
		switch {
		case h.ASICBackground:
			asic = append(asic, xy)
		case h.IsBackground():
			background = append(background, xy)
		default:
			signal = append(signal, xy)
		}
		if d.opts.DriftCircles && !h.IsBackground() {
			drift.Centers = append(drift.Centers, h.RefPos)
			drift.Radii = append(drift.Radii, h.DriftLength)
		}
	}
	if len(drift.Centers) > 0 {
		p.Add(drift)
	}
	for _, layer := range []struct {
		name string
		xys  plotter.XYs
		col  color.Color
	}{
		{"hits", signal, hitColor},
		{"background", background, backgroundColor},
		{"asic cross-talk", asic, asicColor},
	} {
		if len(layer.xys) == 0 {
			continue
		}
		s, err := scatter(layer.xys, layer.col, vg.Points(1.2))
		if err != nil {
			return err
		}
		p.Add(s)
		p.Legend.Add(layer.name, s)
	}
	return nil
}

func (d *EventDisplay) addSegments(p *plot.Plot, res *pipeline.Result) error {
	colors := palette(len(res.Segments))
	for i, seg := range res.Segments {
		if seg.Alias {
			continue
		}
		xys := make(plotter.XYs, len(seg.Hits))
		for j, h := range seg.Hits {
			xys[j] = plotter.XY{X: h.Pos.X, Y: h.Pos.Y}
		}
		s, err := scatter(xys, colors[i], vg.Points(1))
		if err != nil {
			return fmt.Errorf("segment %d: %w", i, err)
		}
		s.GlyphStyle.Shape = draw.BoxGlyph{}
		p.Add(s)
	}
	return nil
}

func (d *EventDisplay) addTracks(p *plot.Plot, tracks []*l6tracks.Track, outer float64) error {
	colors := palette(len(tracks))
	for i, t := range tracks {
		if t.Rejected() && !d.opts.Rejected {
			continue
		}
		line, err := plotter.NewLine(trackArc(t, outer))
		if err != nil {
			return fmt.Errorf("track %d: %w", i, err)
		}
		line.Width = vg.Points(1)
		line.Color = colors[i]
		name := fmt.Sprintf("track %d (%s, %d hits)", i, t.Origin, t.Size())
		if t.Rejected() {
			line.Color = rejectedColor
			line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
			name += " rejected"
		}
		p.Add(line)
		p.Legend.Add(name, line)
	}
	return nil
}

// trackArc samples the circle of t from its first hit, or the support
// point, to where it leaves the chamber.
func trackArc(t *l6tracks.Track, outer float64) plotter.XYs {
	traj := t.Helix.Circle
	lo, hi := 0.0, 0.0
	for _, h := range t.Hits {
		lo, hi = min(lo, h.ArcLength2D), max(hi, h.ArcLength2D)
	}
	if s, ok := traj.ExitArcLength(outer); ok {
		hi = max(hi, s)
	}
	const n = 120
	out := make(plotter.XYs, n+1)
	for i := range out {
		pos := traj.Position(lo + (hi-lo)*float64(i)/n)
		out[i] = plotter.XY{X: pos.X, Y: pos.Y}
	}
	return out
}

func scatter(xys plotter.XYs, col color.Color, radius vg.Length) (*plotter.Scatter, error) {
	s, err := plotter.NewScatter(xys)
	if err != nil {
		return nil, err
	}
	s.GlyphStyle.Color = col
	s.GlyphStyle.Radius = radius
	s.GlyphStyle.Shape = draw.CircleGlyph{}
	return s, nil
}

// Render writes the display of res to w in format ("png", "svg", "pdf").
func (d *EventDisplay) Render(w io.Writer, res *pipeline.Result, format string) error {
	p, err := d.Plot(res)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(d.opts.Size, d.opts.Size, format)
	if err != nil {
		return fmt.Errorf("render event %d: %w", res.Event, err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// Save writes the display of res to path; the extension picks the format.
func (d *EventDisplay) Save(path string, res *pipeline.Result) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	p, err := d.Plot(res)
	if err != nil {
		return err
	}
	if err := p.Save(d.opts.Size, d.opts.Size, path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	diagf("event %d written to %s", res.Event, path)
	return nil
}

// FileName is the default file name of an event display.
func FileName(event int, format string) string {
	return fmt.Sprintf("event_%06d.%s", event, strings.TrimPrefix(format, "."))
}
