package condition

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/floats"
)

// Spectrum is a one-sided power spectral density sampled on a regular
// frequency grid starting at 0 Hz.
type Spectrum struct {
	resolution float64   // [Hz]
	power      []float64 // [units²/Hz]
}

// NewSpectrum wraps power values sampled every resolution Hz from 0 Hz.
func NewSpectrum(resolution float64, power []float64) (*Spectrum, error) {
	if resolution <= 0 || len(power) < 2 {
		return nil, fmt.Errorf("%w: spectrum needs a positive resolution and at least 2 values", ErrInvalidParameter)
	}
	return &Spectrum{resolution: resolution, power: append([]float64(nil), power...)}, nil
}

// Resolution returns the frequency step [Hz].
func (s *Spectrum) Resolution() float64 { return s.resolution }

// Len returns the number of frequency samples.
func (s *Spectrum) Len() int { return len(s.power) }

// FrequencyMax returns the highest sampled frequency.
func (s *Spectrum) FrequencyMax() float64 { return s.resolution * float64(len(s.power)-1) }

// Values returns a copy of the sampled power.
func (s *Spectrum) Values() []float64 { return append([]float64(nil), s.power...) }

// Power returns the PSD at f by linear interpolation. Negative frequencies
// mirror positive ones and frequencies past the last sample hold its value.
func (s *Spectrum) Power(f float64) float64 {
	x := math.Abs(f) / s.resolution
	last := len(s.power) - 1
	if x >= float64(last) {
		return s.power[last]
	}
	i := int(x)
	frac := x - float64(i)
	return s.power[i]*(1-frac) + s.power[i+1]*frac
}

func (s *Spectrum) scale(f float64) { floats.Scale(f, s.power) }

// ASD returns the amplitude spectral density sqrt(Power(f)).
func (s *Spectrum) ASD(f float64) float64 { return math.Sqrt(s.Power(f)) }

// Welch estimates the one-sided PSD of x with Hann-windowed segments of
// segmentLength samples overlapping by half, averaging the periodograms.
func Welch(x []float64, sampleRate, segmentLength int) (*Spectrum, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %d", ErrInvalidParameter, sampleRate)
	}
	if segmentLength < 2 || segmentLength%2 != 0 {
		return nil, fmt.Errorf("%w: segment length %d must be even and at least 2", ErrInvalidParameter, segmentLength)
	}
	if len(x) < segmentLength {
		return nil, fmt.Errorf("%w: %d samples for a %d-sample segment", ErrInputLength, len(x), segmentLength)
	}

	hann := make([]float64, segmentLength)
	floats.AddConst(1, hann)
	window.Hann(hann)
	sumSq := floats.Dot(hann, hann)

	fft := fourier.NewFFT(segmentLength)
	seg := make([]float64, segmentLength)
	coeffs := make([]complex128, segmentLength/2+1)
	power := make([]float64, len(coeffs))

	step := segmentLength / 2
	n := 0
	for start := 0; start+segmentLength <= len(x); start += step {
		floats.MulTo(seg, x[start:start+segmentLength], hann)
		fft.Coefficients(coeffs, seg)
		for k, c := range coeffs {
			power[k] += real(c)*real(c) + imag(c)*imag(c)
		}
		n++
	}

	// DC and Nyquist are doubled too so that white noise stays flat; the
	// whitening divides every bin by the same density.
	floats.Scale(2/(float64(n)*float64(sampleRate)*sumSq), power)

	return &Spectrum{
		resolution: float64(sampleRate) / float64(segmentLength),
		power:      power,
	}, nil
}
