// Package chart renders a single track as an interactive HTML scatter
// (go-echarts) or a static PNG line plot (gonum/plot).
package chart

import (
	"errors"
	"fmt"
	"image/color"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/heliradar/tracker/internal/model"
	"github.com/heliradar/tracker/internal/track"
)

var ErrNoPoints = errors.New("track has no points")

// Default PNG size.
const (
	Width  = 8 * vg.Inch
	Height = 6 * vg.Inch
)

func agentOf(ordered []model.Point) string {
	if len(ordered) > 0 && ordered[0].AgentID != "" {
		return ordered[0].AgentID
	}
	return track.UnknownAgent
}

func subtitle(ordered []model.Point) string {
	return fmt.Sprintf("points=%d distance=%.2f km", len(ordered), track.PathDistance(track.Path(ordered)))
}

// HTML writes a standalone page plotting the track's positions, longitude on
// X and latitude on Y, in time order.
func HTML(w io.Writer, id string, points []model.Point) error {
	if len(points) == 0 {
		return ErrNoPoints
	}
	ordered := track.Ordered(points)

	data := make([]opts.ScatterData, len(ordered))
	for i, p := range ordered {
		data[i] = opts.ScatterData{Value: []interface{}{p.Longitude, p.Latitude, p.Timestamp}}
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Track " + id, Width: "900px", Height: "700px"}),
		charts.WithTitleOpts(opts.Title{Title: "Track " + id, Subtitle: subtitle(ordered)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: "dataMin", Max: "dataMax", Name: "Longitude", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: "dataMin", Max: "dataMax", Name: "Latitude", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries(id, data,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: track.AgentColor(agentOf(ordered))}),
	)
	return scatter.Render(w)
}

// Plot builds a line plot of the track with its start and end marked.
func Plot(id string, points []model.Point) (*plot.Plot, error) {
	if len(points) == 0 {
		return nil, ErrNoPoints
	}
	ordered := track.Ordered(points)

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Track %s (%s)", id, subtitle(ordered))
	p.X.Label.Text = "Longitude"
	p.Y.Label.Text = "Latitude"
	p.Add(plotter.NewGrid())

	xys := make(plotter.XYs, len(ordered))
	for i, pt := range ordered {
		xys[i] = plotter.XY{X: pt.Longitude, Y: pt.Latitude}
	}
	line, err := plotter.NewLine(xys)
	if err != nil {
		return nil, fmt.Errorf("track line: %w", err)
	}
	line.Color = hexColor(track.AgentColor(agentOf(ordered)))
	line.Width = vg.Points(1.5)
	p.Add(line)

	ends, err := plotter.NewScatter(plotter.XYs{xys[0], xys[len(xys)-1]})
	if err != nil {
		return nil, fmt.Errorf("track endpoints: %w", err)
	}
	ends.GlyphStyle.Shape = draw.CircleGlyph{}
	ends.GlyphStyle.Radius = vg.Points(3)
	p.Add(ends)
	return p, nil
}

// WritePNG renders p at the default size.
func WritePNG(w io.Writer, p *plot.Plot) error {
	wt, err := p.WriterTo(Width, Height, "png")
	if err != nil {
		return fmt.Errorf("render png: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

func hexColor(s string) color.Color {
	var r, g, b uint8
	if _, err := fmt.Sscanf(s, "#%02x%02x%02x", &r, &g, &b); err != nil {
		return color.Black
	}
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}
