package qtile

import (
	"fmt"
	"math"
	"sort"

	"github.com/banshee-data/qscan/internal/monitoring"
)

// sqrt11 sets the support of the bisquare window: a band centred on f
// extends f*sqrt11/Q on each side.
var sqrt11 = math.Sqrt(11)

// Band is one logarithmic frequency row of a plane, split into TileN
// equal-duration tiles over [TimeMin, TimeMin+TileN*TileDuration).
type Band struct {
	Start        float64 // [Hz]
	End          float64 // [Hz]
	Center       float64 // logarithmic centre [Hz]
	TileN        int     // power of two
	TileDuration float64 // [s]
	TimeMin      float64 // [s], relative to the chunk centre

	multiple int // finest tiles per tile of this band
}

// Width returns the bandwidth [Hz].
func (b Band) Width() float64 { return b.End - b.Start }

// TileStart returns the start time of tile i.
func (b Band) TileStart(i int) float64 { return b.TimeMin + float64(i)*b.TileDuration }

// TileEnd returns the end time of tile i.
func (b Band) TileEnd(i int) float64 { return b.TimeMin + float64(i+1)*b.TileDuration }

// TileTime returns the central time of tile i.
func (b Band) TileTime(i int) float64 { return b.TimeMin + (float64(i)+0.5)*b.TileDuration }

// TileIndex returns the tile holding time t. The result is out of
// [0, TileN) when t is outside the time range.
func (b Band) TileIndex(t float64) int {
	return int(math.Floor((t - b.TimeMin) / b.TileDuration))
}

// paddedRange returns the tiles [first, last) overlapping the time range
// shrunk by padding on both sides.
func (b Band) paddedRange(padding float64) (first, last int) {
	span := float64(b.TileN) * b.TileDuration
	first = int(math.Floor(padding / b.TileDuration))
	last = int(math.Ceil((span - padding) / b.TileDuration))
	first = max(first, 0)
	last = min(last, b.TileN)
	return first, max(first, last)
}

// Geometry is the time-frequency layout of one Q plane. It is immutable
// once built.
type Geometry struct {
	q          float64
	sampleRate int
	timeRange  int
	mismatch   float64
	bands      []Band
	binN       int
}

// NewGeometry builds the band layout for one Q value so that the energy
// mismatch between adjacent tiles, in time and in frequency, stays below
// mismatch. Out-of-range time range, Q and frequency limits are clamped and
// logged; parameters that cannot be clamped return ErrInvalidParameter.
func NewGeometry(q float64, sampleRate int, frequencyMin, frequencyMax float64, timeRange int, mismatch float64) (*Geometry, error) {
	if !(q > 0) {
		return nil, fmt.Errorf("%w: Q=%g", ErrInvalidParameter, q)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %d Hz", ErrInvalidParameter, sampleRate)
	}
	if !(mismatch > 0 && mismatch < 1) {
		return nil, fmt.Errorf("%w: mismatch %g outside (0, 1)", ErrInvalidParameter, mismatch)
	}

	if q < sqrt11 {
		monitoring.Logf("qtile: Q=%g is below sqrt(11), using %g", q, sqrt11)
		q = sqrt11
	}
	timeRange = CorrectTimeRange(timeRange)
	t := float64(timeRange)

	if lo := 4 * q / (2 * math.Pi * t); frequencyMin < lo {
		monitoring.Logf("qtile: Q=%g minimum frequency %g Hz raised to %g Hz", q, frequencyMin, lo)
		frequencyMin = lo
	}
	if hi := float64(sampleRate) / 2 / (1 + sqrt11/q); frequencyMax > hi {
		monitoring.Logf("qtile: Q=%g maximum frequency %g Hz lowered to %g Hz", q, frequencyMax, hi)
		frequencyMax = hi
	}
	if !(frequencyMin < frequencyMax) {
		return nil, fmt.Errorf("%w: Q=%g empty frequency range [%g, %g] Hz", ErrInvalidParameter, q, frequencyMin, frequencyMax)
	}

	g := &Geometry{
		q:          q,
		sampleRate: sampleRate,
		timeRange:  timeRange,
		mismatch:   mismatch,
	}
	g.build(frequencyMin, frequencyMax)
	return g, nil
}

// CorrectTimeRange returns the smallest even duration of at least 4 s that
// is not shorter than t, logging any change.
func CorrectTimeRange(t int) int {
	c := t
	if c < 4 {
		c = 4
	}
	if c%2 != 0 {
		c++
	}
	if c != t {
		monitoring.Logf("qtile: time range %d s corrected to %d s", t, c)
	}
	return c
}

// mismatchStep is the distance between adjacent tiles, in units of the
// mismatch metric, for a maximum mismatch m.
func mismatchStep(m float64) float64 {
	return 2 * math.Sqrt(m/3)
}

func (g *Geometry) build(fmin, fmax float64) {
	step := mismatchStep(g.mismatch)
	ratio := math.Exp(2 * step / math.Sqrt(2+g.q*g.q))

	edges := []float64{fmin}
	for f := fmin * ratio; f <= fmax*(1+1e-12); f *= ratio {
		edges = append(edges, f)
	}
	if len(edges) == 1 {
		edges = append(edges, fmax)
	}

	t := float64(g.timeRange)
	maxBins := prevPow2(g.timeRange * g.sampleRate)
	g.bands = make([]Band, len(edges)-1)
	for i := range g.bands {
		center := math.Sqrt(edges[i] * edges[i+1])
		need := math.Max(t*2*math.Pi*center/g.q/step, float64(2*windowHalfWidth(center, g.q, t)+1))
		n := min(nextPow2(need), maxBins)
		g.bands[i] = Band{
			Start:        edges[i],
			End:          edges[i+1],
			Center:       center,
			TileN:        n,
			TileDuration: t / float64(n),
			TimeMin:      -t / 2,
		}
		g.binN = max(g.binN, n)
	}
	for i := range g.bands {
		g.bands[i].multiple = g.binN / g.bands[i].TileN
	}
}

// windowHalfWidth returns the half support of the band window in frequency bins.
func windowHalfWidth(center, q, timeRange float64) int {
	return int(math.Floor(center * sqrt11 / q * timeRange))
}

func nextPow2(x float64) int {
	n := 1
	for float64(n) < x {
		n <<= 1
	}
	return n
}

func prevPow2(x int) int {
	n := 1
	for n*2 <= x {
		n <<= 1
	}
	return n
}

// Q returns the quality factor, after clamping.
func (g *Geometry) Q() float64 { return g.q }

// SampleRate returns the sample rate [Hz].
func (g *Geometry) SampleRate() int { return g.sampleRate }

// TimeRange returns the corrected time range [s].
func (g *Geometry) TimeRange() int { return g.timeRange }

// Mismatch returns the maximum mismatch between adjacent tiles.
func (g *Geometry) Mismatch() float64 { return g.mismatch }

// TimeMin returns the start of the time axis, -T/2.
func (g *Geometry) TimeMin() float64 { return -float64(g.timeRange) / 2 }

// TimeMax returns the end of the time axis, T/2.
func (g *Geometry) TimeMax() float64 { return float64(g.timeRange) / 2 }

// FrequencyMin returns the start of the first band [Hz].
func (g *Geometry) FrequencyMin() float64 { return g.bands[0].Start }

// FrequencyMax returns the end of the last band [Hz].
func (g *Geometry) FrequencyMax() float64 { return g.bands[len(g.bands)-1].End }

// SampleN returns the number of samples in one chunk.
func (g *Geometry) SampleN() int { return g.timeRange * g.sampleRate }

// BandN returns the number of bands.
func (g *Geometry) BandN() int { return len(g.bands) }

// BinN returns the tile count of the finest band. Every band's tile count divides it.
func (g *Geometry) BinN() int { return g.binN }

// Band returns band i.
func (g *Geometry) Band(i int) (Band, error) {
	if i < 0 || i >= len(g.bands) {
		return Band{}, fmt.Errorf("%w: band %d of %d", ErrBandIndex, i, len(g.bands))
	}
	return g.bands[i], nil
}

// Bands returns the BandN()+1 band edges [Hz].
func (g *Geometry) Bands() []float64 {
	edges := make([]float64, 0, len(g.bands)+1)
	for _, b := range g.bands {
		edges = append(edges, b.Start)
	}
	return append(edges, g.bands[len(g.bands)-1].End)
}

// BandMultiple returns how many finest tiles fit in one tile of band i.
func (g *Geometry) BandMultiple(i int) (int, error) {
	if i < 0 || i >= len(g.bands) {
		return 0, fmt.Errorf("%w: band %d of %d", ErrBandIndex, i, len(g.bands))
	}
	return g.bands[i].multiple, nil
}

// BandIndex returns the band holding frequency f, or -1.
func (g *Geometry) BandIndex(f float64) int {
	i := sort.Search(len(g.bands), func(i int) bool { return g.bands[i].End > f })
	if i == len(g.bands) || f < g.bands[i].Start {
		return -1
	}
	return i
}

// TileN returns the number of tiles in the plane, ignoring tiles within
// padding seconds of either edge of the time range.
func (g *Geometry) TileN(padding float64) int {
	n := 0
	for _, b := range g.bands {
		first, last := b.paddedRange(padding)
		n += last - first
	}
	return n
}

// PrintParameters logs the plane layout.
func (g *Geometry) PrintParameters() {
	monitoring.Logf("qtile: plane Q=%.3f", g.q)
	monitoring.Logf("qtile:   time range      = %d s", g.timeRange)
	monitoring.Logf("qtile:   frequency range = %.3f-%.3f Hz", g.FrequencyMin(), g.FrequencyMax())
	monitoring.Logf("qtile:   bands           = %d", len(g.bands))
	monitoring.Logf("qtile:   tiles           = %d", g.TileN(0))
	monitoring.Logf("qtile:   finest tile     = %.6f s", float64(g.timeRange)/float64(g.binN))
	for _, b := range g.bands {
		monitoring.Debugf(2, "qtile:   band %.3f-%.3f Hz: %d tiles of %.6f s", b.Start, b.End, b.TileN, b.TileDuration)
	}
}
