// Package report summarises the tracks of a run: counts per origin,
// truth matching and hbook histograms of the track parameters. Summaries
// are drawn as hplot figures or as one go-echarts HTML page.
package report
