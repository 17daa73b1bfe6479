package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"go-hep.org/x/hep/hbook"
)

// WriteHTML renders s as a single page of charts.
func (s *Summary) WriteHTML(w io.Writer, title string) error {
	page := components.NewPage()
	page.PageTitle = title
	page.AddCharts(s.countsChart(title), s.originChart(), s.perEventChart())
	for _, h := range s.Histograms() {
		page.AddCharts(histogramChart(h))
	}
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}

func (s *Summary) countsChart(title string) *charts.Bar {
	x := []string{"Tracks", "Rejected", "3D", "Matched", "Clones", "Fakes"}
	y := []opts.BarData{
		{Value: s.Tracks},
		{Value: s.Rejected},
		{Value: s.Tracks3D},
		{Value: s.Matched},
		{Value: s.Clones},
		{Value: s.Fakes},
	}
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("%d events, %d hits", s.Events, s.Stats.Hits)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("tracks", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}

func (s *Summary) originChart() *charts.Bar {
	names := s.OriginNames()
	x := make([]string, len(names))
	y := make([]opts.BarData, len(names))
	for i, o := range names {
		x[i] = string(o)
		y[i] = opts.BarData{Value: s.Origins[o]}
	}
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: "Track origins"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).AddSeries("origin", y)
	return bar
}

func (s *Summary) perEventChart() *charts.Line {
	points := s.PerEvent()
	x := make([]string, len(points))
	y := make([]opts.LineData, len(points))
	for i, p := range points {
		x[i] = strconv.Itoa(p.Event)
		y[i] = opts.LineData{Value: p.Tracks}
	}
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: "Tracks per event"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "event", NameLocation: "middle", NameGap: 25}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	line.SetXAxis(x).AddSeries("tracks", y)
	return line
}

func histogramChart(h Histogram) *charts.Bar {
	x, y := histogramBars(h.H)
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    h.XLabel,
			Subtitle: fmt.Sprintf("entries=%d mean=%.4g rms=%.4g", h.H.Entries(), h.H.XMean(), h.H.XStdDev()),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: h.XLabel, NameLocation: "middle", NameGap: 25}),
	)
	bar.SetXAxis(x).AddSeries(h.Name, y)
	return bar
}

// histogramBars returns the bin centres and contents of h.
func histogramBars(h *hbook.H1D) ([]string, []opts.BarData) {
	bins := h.Binning.Bins
	x := make([]string, len(bins))
	y := make([]opts.BarData, len(bins))
	for i, b := range bins {
		x[i] = strconv.FormatFloat(b.XMid(), 'g', 4, 64)
		y[i] = opts.BarData{Value: b.SumW()}
	}
	return x, y
}
