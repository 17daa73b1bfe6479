package report

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"go-hep.org/x/hep/hbook"
	"go-hep.org/x/hep/hplot"
	"gonum.org/v1/plot/vg"
)

// Histogram is a named histogram of a summary.
type Histogram struct {
	Name   string // file stem
	XLabel string
	H      *hbook.H1D
}

// Histograms lists the histograms of s in a fixed order.
func (s *Summary) Histograms() []Histogram {
	return []Histogram{
		{"curvature", "curvature (1/cm)", s.Curvature},
		{"hits", "hits per track", s.Hits},
		{"purity", "purity", s.Purity},
		{"pvalue", "circle fit p-value", s.PValue},
		{"tracks_per_event", "tracks per event", s.TracksPerEvent},
	}
}

var histColor = color.RGBA{B: 255, A: 255}

// SavePlots draws every histogram into dir as <name>.<format> and returns
// the written paths.
func (s *Summary) SavePlots(dir, format string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	var paths []string
	for _, h := range s.Histograms() {
		p := hplot.New()
		p.Title.Text = fmt.Sprintf("%s (%d events)", h.XLabel, s.Events)
		p.X.Label.Text = h.XLabel
		p.Y.Label.Text = "count"

		hh := hplot.NewH1D(h.H)
		hh.LineStyle.Color = histColor
		hh.Infos.Style = hplot.HInfoSummary
		p.Add(hh)
		p.Add(hplot.NewGrid())

		path := filepath.Join(dir, h.Name+"."+format)
		if err := p.Save(6*vg.Inch, -1, path); err != nil {
			return paths, fmt.Errorf("save %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	diagf("wrote %d histograms to %s", len(paths), dir)
	return paths, nil
}
