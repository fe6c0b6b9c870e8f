// Package condition prepares raw chunks for projection: it removes the mean,
// applies a Tukey taper, estimates the noise spectrum and whitens the data
// twice, returning the frequency-domain vector the tiling consumes.
package condition

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/qscan/internal/monitoring"
)

var (
	// ErrInvalidParameter reports an unusable conditioner setting.
	ErrInvalidParameter = errors.New("invalid conditioning parameter")

	// ErrInputLength reports a chunk whose sample count does not match.
	ErrInputLength = errors.New("input length mismatch")

	// ErrFlatData reports a chunk with zero variance.
	ErrFlatData = errors.New("flat data")
)

// Result is one conditioned chunk.
type Result struct {
	// Data is the unnormalized DFT of the whitened chunk, len == SampleN().
	Data []complex128

	// Spectrum1 is the noise PSD of the raw chunk; Spectrum2 the residual
	// PSD after the first whitening pass, referred to the untapered part of
	// the chunk.
	Spectrum1 *Spectrum
	Spectrum2 *Spectrum
}

// Conditioner whitens fixed-length chunks. It reuses its FFT plans and
// buffers so it is not safe for concurrent use.
type Conditioner struct {
	sampleRate int
	n          int
	psdN       int
	taper      window.Tukey
	taperPower float64 // mean squared taper value

	fft  *fourier.CmplxFFT
	work []float64
	buf  []complex128
}

// New returns a conditioner for chunks of chunkDuration seconds, estimating
// spectra with psdLength-second Welch segments. tukeyAlpha is the tapered
// fraction of the chunk.
func New(sampleRate, chunkDuration, psdLength int, tukeyAlpha float64) (*Conditioner, error) {
	switch {
	case sampleRate <= 0:
		return nil, fmt.Errorf("%w: sample rate %d", ErrInvalidParameter, sampleRate)
	case chunkDuration <= 0:
		return nil, fmt.Errorf("%w: chunk duration %d", ErrInvalidParameter, chunkDuration)
	case psdLength <= 0 || psdLength > chunkDuration:
		return nil, fmt.Errorf("%w: psd length %d for a %d s chunk", ErrInvalidParameter, psdLength, chunkDuration)
	case tukeyAlpha < 0 || tukeyAlpha > 1:
		return nil, fmt.Errorf("%w: tukey alpha %g", ErrInvalidParameter, tukeyAlpha)
	}
	n := sampleRate * chunkDuration
	psdN := sampleRate * psdLength
	if psdN%2 != 0 {
		return nil, fmt.Errorf("%w: %d-sample psd segment is odd", ErrInvalidParameter, psdN)
	}
	taper := window.Tukey{Alpha: tukeyAlpha}
	w := make([]float64, n)
	floats.AddConst(1, w)
	taper.Transform(w)

	return &Conditioner{
		sampleRate: sampleRate,
		n:          n,
		psdN:       psdN,
		taper:      taper,
		taperPower: floats.Dot(w, w) / float64(n),
		fft:        fourier.NewCmplxFFT(n),
		work:       make([]float64, n),
		buf:        make([]complex128, n),
	}, nil
}

// SampleN returns the expected chunk length in samples.
func (c *Conditioner) SampleN() int { return c.n }

// Condition whitens x. The input slice is not modified.
func (c *Conditioner) Condition(x []float64) (*Result, error) {
	if len(x) != c.n {
		return nil, fmt.Errorf("%w: got %d samples, want %d", ErrInputLength, len(x), c.n)
	}

	y := c.work
	copy(y, x)
	mean, std := stat.MeanStdDev(y, nil)
	if std == 0 || math.IsNaN(std) {
		return nil, ErrFlatData
	}
	floats.AddConst(-mean, y)

	psd1, err := Welch(y, c.sampleRate, c.psdN)
	if err != nil {
		return nil, fmt.Errorf("first spectrum: %w", err)
	}
	c.taper.Transform(y)
	c.whiten(y, psd1)

	// Residual spectrum from the whitened time series.
	c.fft.Sequence(c.buf, c.buf)
	for i, v := range c.buf {
		y[i] = real(v) / float64(c.n)
	}
	psd2, err := Welch(y, c.sampleRate, c.psdN)
	if err != nil {
		return nil, fmt.Errorf("second spectrum: %w", err)
	}
	// Referred to the taper plateau: the tapered edges lower the average.
	psd2.scale(1 / c.taperPower)
	c.whiten(y, psd2)

	monitoring.Debugf(2, "condition: mean=%.3g std=%.3g psd1(100Hz)=%.3g psd2(100Hz)=%.3g",
		mean, std, psd1.Power(100), psd2.Power(100))

	return &Result{
		Data:      append([]complex128(nil), c.buf...),
		Spectrum1: psd1,
		Spectrum2: psd2,
	}, nil
}

// whiten leaves in c.buf the DFT of y divided by the amplitude spectral
// density, scaled so that white noise comes out with unit variance.
// Bins with no noise power are zeroed.
func (c *Conditioner) whiten(y []float64, psd *Spectrum) {
	for i, v := range y {
		c.buf[i] = complex(v, 0)
	}
	c.fft.Coefficients(c.buf, c.buf)

	t := float64(c.n) / float64(c.sampleRate)
	half := float64(c.sampleRate) / 2
	for k := range c.buf {
		kk := k
		if kk > c.n/2 {
			kk = c.n - k
		}
		p := psd.Power(float64(kk)/t) * half
		if p <= 0 {
			c.buf[k] = 0
			continue
		}
		c.buf[k] /= complex(math.Sqrt(p), 0)
	}
}
