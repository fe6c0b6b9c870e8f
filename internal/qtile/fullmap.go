package qtile

import (
	"fmt"
	"math"

	"github.com/banshee-data/qscan/internal/monitoring"
)

// FullMap combines every plane on one grid: time bins of equal duration
// against the bands of the highest-Q plane. Each cell holds the content of
// the loudest tile containing the cell centre, across planes.
type FullMap struct {
	Window    int     // window duration [s]
	TimeStart float64 // relative to the chunk centre [s]
	TimeEnd   float64
	Edges     []float64   // BandN+1 frequency edges [Hz]
	Content   [][]float64 // [band][time bin]
	Fill      ContentType
	Loudest   Loudest // loudest cell; Time is the cell centre
}

// TimeBinN returns the number of time bins.
func (m *FullMap) TimeBinN() int {
	if len(m.Content) == 0 {
		return 0
	}
	return len(m.Content[0])
}

// BandN returns the number of frequency rows.
func (m *FullMap) BandN() int { return len(m.Content) }

// TimeBinDuration returns the duration of one time bin [s].
func (m *FullMap) TimeBinDuration() float64 {
	return (m.TimeEnd - m.TimeStart) / float64(m.TimeBinN())
}

// TimeBinCenter returns the centre of time bin i [s].
func (m *FullMap) TimeBinCenter(i int) float64 {
	return m.TimeStart + (float64(i)+0.5)*m.TimeBinDuration()
}

// BandCenter returns the logarithmic centre of row b [Hz].
func (m *FullMap) BandCenter(b int) float64 {
	return math.Sqrt(m.Edges[b] * m.Edges[b+1])
}

// Clone returns a deep copy.
func (m *FullMap) Clone() *FullMap {
	c := *m
	c.Edges = append([]float64(nil), m.Edges...)
	c.Content = make([][]float64, len(m.Content))
	for i, row := range m.Content {
		c.Content[i] = append([]float64(nil), row...)
	}
	return &c
}

// SetPlotTimeWindows sets the full-map window durations [s]. Windows that
// are not positive or exceed the chunk duration are replaced by it.
func (t *Tiling) SetPlotTimeWindows(windows []int) {
	tr := t.TimeRange()
	if len(windows) == 0 {
		windows = []int{tr}
	}
	t.windows = make([]int, len(windows))
	for i, w := range windows {
		if w <= 0 || w > tr {
			monitoring.Logf("qtile: plot time window %d s replaced by %d s", w, tr)
			w = tr
		}
		t.windows[i] = w
	}

	g := t.planes[len(t.planes)-1].Geometry
	edges := g.Bands()
	t.maps = make([]*FullMap, len(t.windows))
	for i, w := range t.windows {
		bins := t.fullMapBins
		if bins == 0 {
			bins = t.finestBins(w)
		}
		m := &FullMap{
			Window:  w,
			Edges:   edges,
			Content: make([][]float64, len(edges)-1),
		}
		for b := range m.Content {
			m.Content[b] = make([]float64, bins)
		}
		t.maps[i] = m
	}
}

// finestBins is the bin count giving the finest tile duration of any plane over w seconds.
func (t *Tiling) finestBins(w int) int {
	d := math.Inf(1)
	for _, p := range t.planes {
		d = math.Min(d, float64(p.TimeRange())/float64(p.BinN()))
	}
	return max(1, int(math.Round(float64(w)/d)))
}

// PlotTimeWindows returns the full-map window durations [s].
func (t *Tiling) PlotTimeWindows() []int {
	return append([]int(nil), t.windows...)
}

// FillFullMap fills the full map of window w, centred on offset seconds
// from the chunk centre. For every cell, each plane contributes the tile of
// the band holding the cell's central frequency and containing its central
// time; the loudest contribution wins. Planes are not interpolated.
func (t *Tiling) FillFullMap(w int, offset float64) error {
	if w < 0 || w >= len(t.maps) {
		return fmt.Errorf("%w: window %d of %d", ErrWindowIndex, w, len(t.maps))
	}
	m := t.maps[w]
	m.Fill = t.fill
	m.TimeStart = offset - float64(m.Window)/2
	m.TimeEnd = offset + float64(m.Window)/2
	m.Loudest = Loudest{Band: -1, Tile: -1}

	for _, p := range t.planes {
		p.FillMap(t.fill, m.TimeStart, m.TimeEnd)
	}

	nt := m.TimeBinN()
	for b := range m.Content {
		fc := m.BandCenter(b)
		for i := range nt {
			tc := m.TimeBinCenter(i)
			best := -1.0
			var value float64
			var q float64
			for _, p := range t.planes {
				pb := p.BandIndex(fc)
				if pb < 0 {
					continue
				}
				band := p.bands[pb]
				ti := band.TileIndex(tc)
				if ti < 0 || ti >= band.TileN {
					continue
				}
				s := snrSq(p.tiles[pb][ti])
				if s > best {
					best = s
					value = p.content[pb][ti]
					q = p.q
				}
			}
			m.Content[b][i] = value
			if best > m.Loudest.SNRSq {
				m.Loudest = Loudest{Band: b, Tile: i, Time: tc, Frequency: fc, Q: q, SNRSq: best}
			}
		}
	}
	return nil
}

// FullMap returns a copy of the full map of window w.
func (t *Tiling) FullMap(w int) (*FullMap, error) {
	if w < 0 || w >= len(t.maps) {
		return nil, fmt.Errorf("%w: window %d of %d", ErrWindowIndex, w, len(t.maps))
	}
	return t.maps[w].Clone(), nil
}
