package qtile

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/banshee-data/qscan/internal/segments"
	"github.com/banshee-data/qscan/internal/triggers"
)

// DefaultSNRThreshold is the trigger threshold of a new plane.
const DefaultSNRThreshold = 2.0

// bandWindow is the frequency-domain bisquare window of one band, centred
// on bin k0 and spanning [k0-half, k0+half].
type bandWindow struct {
	k0      int
	half    int
	weights []float64    // unnormalized bisquare values
	sumSq   float64      // sum of squared weights
	coeffs  []complex128 // normalized weights with the half-tile phase shift
}

// Loudest locates the tile with the highest SNR².
type Loudest struct {
	Band      int
	Tile      int
	Time      float64 // tile centre, relative to the chunk centre [s]
	Frequency float64 // band centre [Hz]
	Q         float64
	SNRSq     float64
}

// SNR returns the square root of SNRSq.
func (l Loudest) SNR() float64 { return math.Sqrt(l.SNRSq) }

// Plane turns whitened frequency-domain data into tile SNRs for one Q value.
//
// Tile values are overwritten by every call to Project and map content by
// every call to FillMap: anything read from a plane is valid until the next
// such call. Generation identifies the current projection. A Plane is not
// safe for concurrent use.
type Plane struct {
	*Geometry

	windows  []bandWindow
	noiseAmp []float64
	ffts     map[int]*fourier.CmplxFFT
	buf      []complex128

	tiles   [][]complex128
	content [][]float64
	filled  segments.Segment
	fill    ContentType

	snrThr     float64
	snrSqMax   float64
	loudest    Loudest
	generation uint64
}

// NewPlane builds the geometry and band windows for one Q value. See NewGeometry.
func NewPlane(q float64, sampleRate int, frequencyMin, frequencyMax float64, timeRange int, mismatch float64) (*Plane, error) {
	g, err := NewGeometry(q, sampleRate, frequencyMin, frequencyMax, timeRange, mismatch)
	if err != nil {
		return nil, err
	}

	p := &Plane{
		Geometry: g,
		windows:  make([]bandWindow, len(g.bands)),
		noiseAmp: make([]float64, len(g.bands)),
		ffts:     make(map[int]*fourier.CmplxFFT),
		buf:      make([]complex128, g.binN),
		tiles:    make([][]complex128, len(g.bands)),
		content:  make([][]float64, len(g.bands)),
		snrThr:   DefaultSNRThreshold,
	}
	for i, b := range g.bands {
		p.windows[i] = p.makeWindow(b)
		p.noiseAmp[i] = 1
		p.tiles[i] = make([]complex128, b.TileN)
		p.content[i] = make([]float64, b.TileN)
		if _, ok := p.ffts[b.TileN]; !ok {
			p.ffts[b.TileN] = fourier.NewCmplxFFT(b.TileN)
		}
	}
	return p, nil
}

// makeWindow computes the bisquare window (1-(j/Δ)²)² with Δ = f·sqrt11/Q·T
// bins. It is normalized so that unit-variance white noise gives E|y|² = 2,
// and each coefficient carries a half-tile phase shift so that inverse
// transform samples fall on tile centres.
func (p *Plane) makeWindow(b Band) bandWindow {
	t := float64(p.timeRange)
	delta := b.Center * sqrt11 / p.q * t
	w := bandWindow{
		k0:   int(math.Round(b.Center * t)),
		half: windowHalfWidth(b.Center, p.q, t),
	}
	w.weights = make([]float64, 2*w.half+1)
	for j := -w.half; j <= w.half; j++ {
		u := float64(j) / delta
		v := (1 - u*u) * (1 - u*u)
		w.weights[j+w.half] = v
		w.sumSq += v * v
	}

	norm := math.Sqrt(2 / (float64(p.SampleN()) * w.sumSq))
	w.coeffs = make([]complex128, len(w.weights))
	for j := -w.half; j <= w.half; j++ {
		s, c := math.Sincos(math.Pi * float64(j) / float64(b.TileN))
		w.coeffs[j+w.half] = complex(norm*w.weights[j+w.half], 0) * complex(c, s)
	}
	return w
}

// SetNoiseScale sets, for each band, the noise amplitude used to convert SNR
// into amplitude: the square root of the window-weighted average of the
// product of two independent noise spectra. A nil spectrum counts as unity.
func (p *Plane) SetNoiseScale(spectrum1, spectrum2 NoiseSpectrum) {
	t := float64(p.timeRange)
	for i, w := range p.windows {
		var acc float64
		for j := -w.half; j <= w.half; j++ {
			f := float64(w.k0+j) / t
			pw := 1.0
			if spectrum1 != nil {
				pw *= spectrum1.Power(f)
			}
			if spectrum2 != nil {
				pw *= spectrum2.Power(f)
			}
			v := w.weights[j+w.half]
			acc += v * v * pw
		}
		p.noiseAmp[i] = math.Sqrt(acc / w.sumSq)
	}
}

// NoiseAmplitude returns the noise amplitude of band i.
func (p *Plane) NoiseAmplitude(i int) (float64, error) {
	if i < 0 || i >= len(p.bands) {
		return 0, fmt.Errorf("%w: band %d of %d", ErrBandIndex, i, len(p.bands))
	}
	return p.noiseAmp[i], nil
}

// SNRThreshold returns the trigger SNR threshold.
func (p *Plane) SNRThreshold() float64 { return p.snrThr }

// SetSNRThreshold sets the trigger SNR threshold.
func (p *Plane) SetSNRThreshold(snr float64) { p.snrThr = snr }

// SNRSqMax returns the highest SNR² of the last projection, padding excluded.
func (p *Plane) SNRSqMax() float64 { return p.snrSqMax }

// Loudest returns the loudest tile of the last projection, padding excluded.
func (p *Plane) Loudest() Loudest { return p.loudest }

// Generation counts projections; it changes whenever tile values are overwritten.
func (p *Plane) Generation() uint64 { return p.generation }

// Project computes the tiles of every band from data, the full-length
// discrete Fourier transform of one whitened chunk (len == SampleN()).
// It returns the number of tiles whose SNR reaches the trigger threshold,
// ignoring tiles within padding seconds of either edge of the chunk.
func (p *Plane) Project(data []complex128, padding float64) (int, error) {
	n := p.SampleN()
	if len(data) != n {
		return 0, fmt.Errorf("%w: got %d frequency bins, want %d", ErrInputLength, len(data), n)
	}
	if padding < 0 || 2*padding >= float64(p.timeRange) {
		return 0, fmt.Errorf("%w: %g s for a %d s time range", ErrPadding, padding, p.timeRange)
	}

	p.generation++
	p.snrSqMax = 0
	p.loudest = Loudest{Q: p.q, Band: -1, Tile: -1}
	thrSq := p.snrThr * p.snrThr

	count := 0
	for b, band := range p.bands {
		nt := band.TileN
		buf := p.buf[:nt]
		clear(buf)

		w := p.windows[b]
		for j := -w.half; j <= w.half; j++ {
			k := w.k0 + j
			if k < 0 || k >= n {
				continue
			}
			idx := j % nt
			if idx < 0 {
				idx += nt
			}
			buf[idx] += w.coeffs[j+w.half] * data[k]
		}
		p.ffts[nt].Sequence(p.tiles[b], buf)

		first, last := band.paddedRange(padding)
		for i := first; i < last; i++ {
			s := snrSq(p.tiles[b][i])
			if s >= thrSq {
				count++
			}
			if s > p.snrSqMax {
				p.snrSqMax = s
				p.loudest = Loudest{
					Band:      b,
					Tile:      i,
					Time:      band.TileTime(i),
					Frequency: band.Center,
					Q:         p.q,
					SNRSq:     s,
				}
			}
		}
	}
	return count, nil
}

// snrSq removes the mean noise energy of 2 and clamps at zero.
func snrSq(c complex128) float64 {
	e := real(c)*real(c) + imag(c)*imag(c) - 2
	if e < 0 {
		return 0
	}
	return e
}

func (p *Plane) checkTile(b, i int) error {
	if b < 0 || b >= len(p.bands) {
		return fmt.Errorf("%w: band %d of %d", ErrBandIndex, b, len(p.bands))
	}
	if i < 0 || i >= p.bands[b].TileN {
		return fmt.Errorf("%w: tile %d of %d in band %d", ErrTileIndex, i, p.bands[b].TileN, b)
	}
	return nil
}

// TileSNRSq returns the SNR² of tile i in band b.
func (p *Plane) TileSNRSq(b, i int) (float64, error) {
	if err := p.checkTile(b, i); err != nil {
		return 0, err
	}
	return snrSq(p.tiles[b][i]), nil
}

// TileAmplitudeSq returns the squared amplitude of tile i in band b.
func (p *Plane) TileAmplitudeSq(b, i int) (float64, error) {
	if err := p.checkTile(b, i); err != nil {
		return 0, err
	}
	return p.amplitudeSq(b, i), nil
}

// TileAmplitude returns the amplitude of tile i in band b.
func (p *Plane) TileAmplitude(b, i int) (float64, error) {
	if err := p.checkTile(b, i); err != nil {
		return 0, err
	}
	return math.Sqrt(p.amplitudeSq(b, i)), nil
}

// TilePhase returns the phase [rad] of tile i in band b.
func (p *Plane) TilePhase(b, i int) (float64, error) {
	if err := p.checkTile(b, i); err != nil {
		return 0, err
	}
	return cmplx.Phase(p.tiles[b][i]), nil
}

func (p *Plane) amplitudeSq(b, i int) float64 {
	a := p.noiseAmp[b]
	return snrSq(p.tiles[b][i]) * a * a
}

func (p *Plane) value(ct ContentType, b, i int) float64 {
	switch ct {
	case ContentAmplitude:
		return math.Sqrt(p.amplitudeSq(b, i))
	case ContentPhase:
		return cmplx.Phase(p.tiles[b][i])
	default:
		return snrSq(p.tiles[b][i])
	}
}

// FillMap writes ct into the map cells of the tiles overlapping
// [timeStart, timeEnd). Cells outside that window keep stale values.
func (p *Plane) FillMap(ct ContentType, timeStart, timeEnd float64) {
	timeStart = math.Max(timeStart, p.TimeMin())
	timeEnd = math.Min(timeEnd, p.TimeMax())
	p.fill = ct
	p.filled = segments.Segment{Start: timeStart, End: math.Max(timeStart, timeEnd)}
	if timeEnd <= timeStart {
		return
	}
	for b, band := range p.bands {
		first := max(band.TileIndex(timeStart), 0)
		last := min(int(math.Ceil((timeEnd-band.TimeMin)/band.TileDuration)), band.TileN)
		for i := first; i < last; i++ {
			p.content[b][i] = p.value(ct, b, i)
		}
	}
}

// Filled returns the time window and content type of the last FillMap call.
func (p *Plane) Filled() (segments.Segment, ContentType) { return p.filled, p.fill }

// MapContent returns the map cell of tile i in band b. Tiles outside the
// window of the last FillMap call return ErrTileIndex.
func (p *Plane) MapContent(b, i int) (float64, error) {
	if err := p.checkTile(b, i); err != nil {
		return 0, err
	}
	band := p.bands[b]
	if band.TileEnd(i) <= p.filled.Start || band.TileStart(i) >= p.filled.End {
		return 0, fmt.Errorf("%w: tile %d of band %d is outside the filled window %v", ErrTileIndex, i, b, p.filled)
	}
	return p.content[b][i], nil
}

// AddTileSegments adds to l the time span, shifted by t0, of every tile
// whose SNR reaches the threshold of its band frequency. Tiles within
// padding seconds of either edge are ignored.
func (p *Plane) AddTileSegments(l *segments.List, threshold *FrequencyThreshold, t0, padding float64) error {
	if padding < 0 || 2*padding >= float64(p.timeRange) {
		return fmt.Errorf("%w: %g s for a %d s time range", ErrPadding, padding, p.timeRange)
	}
	for b, band := range p.bands {
		thr, ok := threshold.Threshold(band.Center)
		if !ok {
			continue
		}
		thrSq := thr * thr
		first, last := band.paddedRange(padding)
		for i := first; i < last; i++ {
			if snrSq(p.tiles[b][i]) < thrSq {
				continue
			}
			if err := l.Add(t0+band.TileStart(i), t0+band.TileEnd(i)); err != nil {
				return err
			}
		}
	}
	return nil
}

// SaveTriggers sends every tile reaching the trigger threshold whose
// central time, shifted by t0, lies in active. A nil active list accepts
// every tile. It returns the number of triggers sent.
func (p *Plane) SaveTriggers(sink TriggerSink, t0 float64, active *segments.List) int {
	thrSq := p.snrThr * p.snrThr
	n := 0
	for b, band := range p.bands {
		for i := range band.TileN {
			s := snrSq(p.tiles[b][i])
			if s < thrSq {
				continue
			}
			tc := t0 + band.TileTime(i)
			if active != nil && !active.Contains(tc) {
				continue
			}
			snr := math.Sqrt(s)
			sink.AddTrigger(triggers.Trigger{
				Time:           tc,
				Frequency:      band.Center,
				TimeStart:      t0 + band.TileStart(i),
				TimeEnd:        t0 + band.TileEnd(i),
				FrequencyStart: band.Start,
				FrequencyEnd:   band.End,
				Q:              p.q,
				SNR:            snr,
				Amplitude:      snr * p.noiseAmp[b],
				Phase:          cmplx.Phase(p.tiles[b][i]),
			})
			n++
		}
	}
	return n
}
