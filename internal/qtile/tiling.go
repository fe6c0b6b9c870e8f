package qtile

import (
	"fmt"
	"math"

	"github.com/banshee-data/qscan/internal/monitoring"
	"github.com/banshee-data/qscan/internal/segments"
	"github.com/banshee-data/qscan/internal/sequence"
)

// FullMapIndex selects the full map wherever a plane index is expected.
// The full map shares its frequency bands with the highest-Q plane.
const FullMapIndex = -1

// Config holds the tiling parameters.
type Config struct {
	TimeRange    int // chunk duration [s]
	Overlap      int // overlap between chunks [s]
	QMin         float64
	QMax         float64
	FrequencyMin float64 // [Hz]
	FrequencyMax float64 // [Hz]
	SampleRate   int     // [Hz]
	Mismatch     float64 // maximum mismatch between adjacent tiles

	// FullMapTimeBins is the number of time bins of a full map; 0 uses the
	// finest tile duration of any plane.
	FullMapTimeBins int
}

// ComputeQs returns the log-spaced Q values from qmin to qmax such that the
// mismatch between adjacent planes stays below mismatch. The sequence starts
// at qmin and never exceeds qmax. Invalid bounds return nil.
func ComputeQs(qmin, qmax, mismatch float64) []float64 {
	if !(qmin > 0) || qmax < qmin || !(mismatch > 0 && mismatch < 1) {
		return nil
	}
	ratio := math.Exp(math.Sqrt2 * mismatchStep(mismatch))
	var qs []float64
	for q := qmin; q <= qmax*(1+1e-12); q *= ratio {
		qs = append(qs, q)
	}
	// The tolerance admits a last value rounded just past qmax.
	qs[len(qs)-1] = math.Min(qs[len(qs)-1], qmax)
	return qs
}

// Tiling is a bank of Q planes driven chunk by chunk by a Sequencer. It is
// not safe for concurrent use; parallel workers each need their own Tiling.
type Tiling struct {
	planes []*Plane
	seq    *sequence.Sequencer

	fullMapBins int
	fill        ContentType
	mapSNRThr   float64
	windows     []int
	maps        []*FullMap
}

// New builds one plane per Q value of ComputeQs(QMin, QMax, Mismatch).
func New(cfg Config) (*Tiling, error) {
	qmin := cfg.QMin
	if qmin > 0 && qmin < sqrt11 {
		monitoring.Logf("qtile: minimum Q=%g is below sqrt(11), using %g", qmin, sqrt11)
		qmin = sqrt11
	}
	qs := ComputeQs(qmin, cfg.QMax, cfg.Mismatch)
	if len(qs) == 0 {
		return nil, fmt.Errorf("%w: Q range [%g, %g] with mismatch %g", ErrInvalidParameter, cfg.QMin, cfg.QMax, cfg.Mismatch)
	}
	if cfg.FullMapTimeBins < 0 {
		return nil, fmt.Errorf("%w: %d full-map time bins", ErrInvalidParameter, cfg.FullMapTimeBins)
	}

	timeRange := CorrectTimeRange(cfg.TimeRange)
	t := &Tiling{
		planes:      make([]*Plane, len(qs)),
		fullMapBins: cfg.FullMapTimeBins,
		fill:        ContentSNRSq,
	}
	for i, q := range qs {
		p, err := NewPlane(q, cfg.SampleRate, cfg.FrequencyMin, cfg.FrequencyMax, timeRange, cfg.Mismatch)
		if err != nil {
			return nil, fmt.Errorf("plane %d: %w", i, err)
		}
		t.planes[i] = p
	}

	seq, err := sequence.New(timeRange, cfg.Overlap)
	if err != nil {
		return nil, err
	}
	t.seq = seq
	t.SetPlotTimeWindows([]int{timeRange})
	return t, nil
}

// Sequencer returns the chunk sequencer driving this tiling.
func (t *Tiling) Sequencer() *sequence.Sequencer { return t.seq }

// QN returns the number of planes.
func (t *Tiling) QN() int { return len(t.planes) }

// Plane returns plane i.
func (t *Tiling) Plane(i int) (*Plane, error) {
	if i < 0 || i >= len(t.planes) {
		return nil, fmt.Errorf("%w: plane %d of %d", ErrPlaneIndex, i, len(t.planes))
	}
	return t.planes[i], nil
}

// Q returns the Q value of plane i.
func (t *Tiling) Q(i int) (float64, error) {
	p, err := t.Plane(i)
	if err != nil {
		return 0, err
	}
	return p.Q(), nil
}

// geometry resolves a plane index, mapping FullMapIndex to the highest-Q plane.
func (t *Tiling) geometry(i int) (*Geometry, error) {
	if i == FullMapIndex {
		return t.planes[len(t.planes)-1].Geometry, nil
	}
	p, err := t.Plane(i)
	if err != nil {
		return nil, err
	}
	return p.Geometry, nil
}

// BandN returns the number of bands of plane i, or of the full map for FullMapIndex.
func (t *Tiling) BandN(i int) (int, error) {
	g, err := t.geometry(i)
	if err != nil {
		return 0, err
	}
	return g.BandN(), nil
}

// Bands returns the band edges of plane i, or of the full map for FullMapIndex.
func (t *Tiling) Bands(i int) ([]float64, error) {
	g, err := t.geometry(i)
	if err != nil {
		return nil, err
	}
	return g.Bands(), nil
}

// Band returns band b of plane i, or of the full map for FullMapIndex.
func (t *Tiling) Band(i, b int) (Band, error) {
	g, err := t.geometry(i)
	if err != nil {
		return Band{}, err
	}
	return g.Band(b)
}

// TimeRange returns the chunk duration [s].
func (t *Tiling) TimeRange() int { return t.planes[0].TimeRange() }

// Overlap returns the nominal chunk overlap [s].
func (t *Tiling) Overlap() int { return int(t.seq.Overlap()) }

// SampleRate returns the sample rate [Hz].
func (t *Tiling) SampleRate() int { return t.planes[0].SampleRate() }

// SampleN returns the number of samples in one chunk.
func (t *Tiling) SampleN() int { return t.planes[0].SampleN() }

// Mismatch returns the maximum mismatch between adjacent tiles.
func (t *Tiling) Mismatch() float64 { return t.planes[0].Mismatch() }

// FrequencyMin returns the lowest frequency covered by any plane [Hz].
func (t *Tiling) FrequencyMin() float64 {
	f := t.planes[0].FrequencyMin()
	for _, p := range t.planes[1:] {
		f = math.Min(f, p.FrequencyMin())
	}
	return f
}

// FrequencyMax returns the highest frequency covered by any plane [Hz].
func (t *Tiling) FrequencyMax() float64 {
	f := t.planes[0].FrequencyMax()
	for _, p := range t.planes[1:] {
		f = math.Max(f, p.FrequencyMax())
	}
	return f
}

// TileN returns the total number of tiles, ignoring tiles within padding
// seconds of either edge.
func (t *Tiling) TileN(padding float64) int {
	n := 0
	for _, p := range t.planes {
		n += p.TileN(padding)
	}
	return n
}

// SetNoiseScale sets the noise amplitudes of every plane.
func (t *Tiling) SetNoiseScale(spectrum1, spectrum2 NoiseSpectrum) {
	for _, p := range t.planes {
		p.SetNoiseScale(spectrum1, spectrum2)
	}
}

// SetSNRThreshold sets the full-map rendering threshold and the trigger threshold.
func (t *Tiling) SetSNRThreshold(mapSNR, triggerSNR float64) {
	t.mapSNRThr = mapSNR
	for _, p := range t.planes {
		p.SetSNRThreshold(triggerSNR)
	}
}

// MapSNRThreshold returns the full-map rendering threshold.
func (t *Tiling) MapSNRThreshold() float64 { return t.mapSNRThr }

// TriggerSNRThreshold returns the trigger threshold.
func (t *Tiling) TriggerSNRThreshold() float64 { return t.planes[0].SNRThreshold() }

// SetMapFill selects the content written to maps.
func (t *Tiling) SetMapFill(ct ContentType) { t.fill = ct }

// MapFill returns the content written to maps.
func (t *Tiling) MapFill() ContentType { return t.fill }

// padding is half the overlap of the current chunk.
func (t *Tiling) padding() float64 {
	return float64(t.seq.CurrentOverlap()) / 2
}

// Project projects data onto every plane and returns the summed count of
// tiles reaching the trigger threshold outside the overlap padding.
func (t *Tiling) Project(data []complex128) (int, error) {
	pad := t.padding()
	total := 0
	for i, p := range t.planes {
		n, err := p.Project(data, pad)
		if err != nil {
			return 0, fmt.Errorf("plane %d (Q=%.3f): %w", i, p.Q(), err)
		}
		total += n
	}
	monitoring.Debugf(2, "qtile: %d tiles above SNR %g", total, t.TriggerSNRThreshold())
	return total, nil
}

// Loudest returns the loudest tile of plane i for the last projection.
func (t *Tiling) Loudest(i int) (Loudest, error) {
	p, err := t.Plane(i)
	if err != nil {
		return Loudest{}, err
	}
	return p.Loudest(), nil
}

// LoudestTile returns the loudest tile across all planes.
func (t *Tiling) LoudestTile() Loudest {
	best := t.planes[0].Loudest()
	for _, p := range t.planes[1:] {
		if l := p.Loudest(); l.SNRSq > best.SNRSq {
			best = l
		}
	}
	return best
}

// SNRSqMax returns the highest SNR² across all planes.
func (t *Tiling) SNRSqMax() float64 { return t.LoudestTile().SNRSq }

// FillMaps writes the current content type into every plane over the whole chunk.
func (t *Tiling) FillMaps() {
	for _, p := range t.planes {
		p.FillMap(t.fill, p.TimeMin(), p.TimeMax())
	}
}

// chunkCenter is the chunk centre when a chunk is loaded, 0 otherwise.
func (t *Tiling) chunkCenter() float64 {
	if !t.seq.HasChunk() {
		return 0
	}
	return float64(t.seq.ChunkCenter())
}

// TileSegments returns the time spans of the tiles reaching threshold,
// in absolute time, with the current chunk padding excluded.
func (t *Tiling) TileSegments(threshold *FrequencyThreshold) (*segments.List, error) {
	l := &segments.List{}
	t0 := t.chunkCenter()
	pad := t.padding()
	for i, p := range t.planes {
		if err := p.AddTileSegments(l, threshold, t0, pad); err != nil {
			return nil, fmt.Errorf("plane %d: %w", i, err)
		}
	}
	return l, nil
}

// SaveTriggers sends the triggers of the current chunk that fall in its
// active window, then the active window itself, to sink. It returns the
// number of triggers sent.
func (t *Tiling) SaveTriggers(sink TriggerSink) (int, error) {
	if !t.seq.HasChunk() {
		return 0, ErrNoChunk
	}
	active := t.seq.ChunkOut()
	t0 := t.chunkCenter()
	n := 0
	for _, p := range t.planes {
		n += p.SaveTriggers(sink, t0, active)
	}
	sink.AddSegments(active)
	monitoring.Debugf(1, "qtile: chunk %d: %d triggers in %v", t.seq.ChunkCenter(), n, active)
	return n, nil
}

// PrintParameters logs the tiling layout.
func (t *Tiling) PrintParameters() {
	monitoring.Logf("qtile: tiling with %d planes, %d tiles", len(t.planes), t.TileN(0))
	monitoring.Logf("qtile:   sample rate   = %d Hz", t.SampleRate())
	monitoring.Logf("qtile:   time range    = %d s (overlap %d s)", t.TimeRange(), t.Overlap())
	monitoring.Logf("qtile:   mismatch      = %g", t.Mismatch())
	monitoring.Logf("qtile:   frequencies   = %.3f-%.3f Hz", t.FrequencyMin(), t.FrequencyMax())
	monitoring.Logf("qtile:   map windows   = %v s", t.windows)
	for _, p := range t.planes {
		p.PrintParameters()
	}
}
