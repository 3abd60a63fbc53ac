package main

import (
	"fmt"
	"image/color"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// palette is a small fixed set of distinguishable series colors, cycled by
// index; the sweep never has more than a handful of backend/workload series.
var palette = []color.Color{
	color.RGBA{R: 0xD5, G: 0x4E, B: 0x4E, A: 0xFF},
	color.RGBA{R: 0x3B, G: 0x7D, B: 0xD8, A: 0xFF},
	color.RGBA{R: 0x4C, G: 0xAF, B: 0x50, A: 0xFF},
	color.RGBA{R: 0xE0, G: 0xA1, B: 0x06, A: 0xFF},
	color.RGBA{R: 0x9C, G: 0x27, B: 0xB0, A: 0xFF},
	color.RGBA{R: 0x00, G: 0xAC, B: 0xC1, A: 0xFF},
}

func paletteColor(i int) color.Color {
	return palette[i%len(palette)]
}

var errFailure = errors.New("pmemkvbench: operation reported Failure status")

// seriesPoint is one (scale, latency) sample for a single backend/workload
// line on the chart.
type seriesPoint struct {
	scale     float64
	latencyNs float64
}

// renderLatencyChart plots latency-vs-scale for each backend/workload
// series, generalizing the teacher's CSV-only sweep output (main.go wrote
// final_thesis_results.csv and nothing else) into a rendered artifact, the
// way dbms/index/shared.Tree.Print renders the teacher's own tree structure
// as a PNG rather than leaving it as raw bytes.
func renderLatencyChart(series map[string][]seriesPoint, path string) error {
	p := plot.New()
	p.Title.Text = "pmemkv vs pebble: latency by scale"
	p.X.Label.Text = "keys (scale)"
	p.Y.Label.Text = "latency (ns/op)"

	colorIdx := 0
	for name, pts := range series {
		xys := make(plotter.XYs, len(pts))
		for i, pt := range pts {
			xys[i].X = pt.scale
			xys[i].Y = pt.latencyNs
		}
		line, points, err := plotter.NewLinePoints(xys)
		if err != nil {
			return errors.Wrapf(err, "pmemkvbench: build series %q", name)
		}
		line.Color = paletteColor(colorIdx)
		points.Color = paletteColor(colorIdx)
		colorIdx++

		p.Add(line, points)
		p.Legend.Add(name, line, points)
	}

	if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return errors.Wrap(err, "pmemkvbench: save chart")
	}
	fmt.Printf("chart written to %s\n", path)
	return nil
}
