// Package testutil provides shared test helpers and synthetic signals.
//
// Signals are deterministic: the same seed always yields the same samples.
package testutil

import (
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat/distuv"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// GaussianNoise returns n samples of zero-mean Gaussian noise with standard deviation sigma.
func GaussianNoise(n int, sigma float64, seed uint64) []float64 {
	dist := distuv.Normal{Mu: 0, Sigma: sigma, Src: rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)}
	out := make([]float64, n)
	for i := range out {
		out[i] = dist.Rand()
	}
	return out
}

// SineGaussian adds to x a sine-Gaussian burst of peak amplitude amp,
// frequency f [Hz] and quality factor q, centred at t0 seconds from the
// first sample. The envelope is exp(-(2πf(t-t0)/q)²).
func SineGaussian(x []float64, sampleRate int, t0, f, q, amp float64) []float64 {
	tau := q / (2 * math.Pi * f)
	for i := range x {
		dt := float64(i)/float64(sampleRate) - t0
		x[i] += amp * math.Exp(-(dt*dt)/(tau*tau)) * math.Sin(2*math.Pi*f*dt)
	}
	return x
}

// Sine adds a continuous sinusoid of amplitude amp and frequency f [Hz] to x.
func Sine(x []float64, sampleRate int, f, amp float64) []float64 {
	for i := range x {
		x[i] += amp * math.Sin(2*math.Pi*f*float64(i)/float64(sampleRate))
	}
	return x
}

// Spectrum returns the unnormalized full-length DFT of x.
func Spectrum(x []float64) []complex128 {
	c := make([]complex128, len(x))
	for i, v := range x {
		c[i] = complex(v, 0)
	}
	return fourier.NewCmplxFFT(len(x)).Coefficients(nil, c)
}
