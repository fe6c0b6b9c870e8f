package report

import (
	"fmt"
	"image/color"
	"io"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/qscan/internal/qtile"
)

const (
	pngWidth  = 12 * vg.Inch
	pngHeight = 6 * vg.Inch
)

// mapGrid adapts a full map to plotter.GridXYZ: columns are time bins, rows
// are frequency bands.
type mapGrid struct {
	m *qtile.FullMap
}

func (g mapGrid) Dims() (c, r int)   { return g.m.TimeBinN(), g.m.BandN() }
func (g mapGrid) Z(c, r int) float64 { return g.m.Content[r][c] }
func (g mapGrid) X(c int) float64    { return g.m.TimeBinCenter(c) }
func (g mapGrid) Y(r int) float64    { return g.m.BandCenter(r) }

func (g mapGrid) rangeZ() (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, row := range g.m.Content {
		for _, v := range row {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	return lo, hi
}

// contentRange returns the colour scale limits for a map.
func contentRange(m *qtile.FullMap) (float64, float64) {
	if m.Fill == qtile.ContentPhase {
		return -math.Pi, math.Pi
	}
	_, hi := mapGrid{m}.rangeZ()
	if !(hi > 0) {
		hi = 1
	}
	return 0, hi
}

func contentLabel(ct qtile.ContentType) string {
	switch ct {
	case qtile.ContentAmplitude:
		return "amplitude"
	case qtile.ContentPhase:
		return "phase [rad]"
	default:
		return "SNR²"
	}
}

// newMapPlot builds the heat map of m with a log frequency axis and a marker
// on the loudest cell.
func newMapPlot(m *qtile.FullMap, title string) (*plot.Plot, error) {
	if m.TimeBinN() == 0 || m.BandN() == 0 {
		return nil, fmt.Errorf("empty map")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Time from chunk centre (s)"
	p.Y.Label.Text = "Frequency (Hz)"
	p.Y.Scale = plot.LogScale{}
	p.Y.Tick.Marker = plot.LogTicks{Prec: -1}

	hm := plotter.NewHeatMap(mapGrid{m}, palette.Heat(64, 1))
	hm.Min, hm.Max = contentRange(m)
	p.Add(hm)

	if m.Loudest.Band >= 0 && m.Loudest.Tile >= 0 {
		pt, err := plotter.NewScatter(plotter.XYs{{X: m.Loudest.Time, Y: m.Loudest.Frequency}})
		if err != nil {
			return nil, err
		}
		pt.GlyphStyle.Shape = draw.CrossGlyph{}
		pt.GlyphStyle.Color = color.RGBA{R: 255, G: 255, B: 255, A: 255}
		pt.GlyphStyle.Radius = vg.Points(6)
		p.Add(pt)
		p.Legend.Add(fmt.Sprintf("loudest %s %.1f", contentLabel(m.Fill), m.Content[m.Loudest.Band][m.Loudest.Tile]), pt)
	}

	p.X.Min, p.X.Max = m.TimeStart, m.TimeEnd
	p.Y.Min, p.Y.Max = m.Edges[0], m.Edges[len(m.Edges)-1]
	return p, nil
}

// RenderPNG writes the heat map of m as PNG.
func RenderPNG(w io.Writer, m *qtile.FullMap, title string) error {
	p, err := newMapPlot(m, title)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(pngWidth, pngHeight, "png")
	if err != nil {
		return fmt.Errorf("failed to create png writer: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write png: %w", err)
	}
	return nil
}
