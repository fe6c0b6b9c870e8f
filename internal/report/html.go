package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/qscan/internal/qtile"
)

// viridis stops for the visual map.
var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// RenderHTML writes an interactive scatter rendering of m: one point per
// non-zero cell at (time, frequency) coloured by its content.
func RenderHTML(w io.Writer, m *qtile.FullMap, title string) error {
	if m.TimeBinN() == 0 || m.BandN() == 0 {
		return fmt.Errorf("empty map")
	}

	data := make([]opts.ScatterData, 0, m.TimeBinN()*m.BandN()/4)
	for b, row := range m.Content {
		f := m.BandCenter(b)
		for i, v := range row {
			if v == 0 {
				continue
			}
			data = append(data, opts.ScatterData{Value: []interface{}{m.TimeBinCenter(i), f, v}})
		}
	}
	lo, hi := contentRange(m)

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Theme: "dark", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("window=%ds cells=%d fill=%s", m.Window, len(data), m.Fill)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: m.TimeStart, Max: m.TimeEnd, Name: "Time (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "log", Min: m.Edges[0], Max: m.Edges[len(m.Edges)-1], Name: "Frequency (Hz)", NameLocation: "middle", NameGap: 40}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(lo),
			Max:        float32(hi),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	scatter.AddSeries(contentLabel(m.Fill), data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))

	if err := scatter.Render(w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}
