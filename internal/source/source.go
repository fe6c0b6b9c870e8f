// Package source supplies raw time series to the scan, either from memory or
// decoded from WAV files stamped with a GPS start time.
package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/banshee-data/qscan/internal/segments"
)

// ErrOutOfRange reports a request for samples the series does not hold.
var ErrOutOfRange = errors.New("requested time outside the series")

// Series is a single-channel, uniformly sampled time series starting at an
// integer GPS second.
type Series struct {
	sampleRate int
	start      int64
	data       []float64
}

// NewSeries wraps data sampled at sampleRate Hz, the first sample at GPS start.
func NewSeries(data []float64, sampleRate int, start int64) (*Series, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	return &Series{sampleRate: sampleRate, start: start, data: data}, nil
}

// SampleRate returns the sampling frequency [Hz].
func (s *Series) SampleRate() int { return s.sampleRate }

// Start returns the GPS time of the first sample.
func (s *Series) Start() int64 { return s.start }

// End returns the last whole GPS second covered by the series.
func (s *Series) End() int64 { return s.start + int64(len(s.data)/s.sampleRate) }

// Len returns the number of samples.
func (s *Series) Len() int { return len(s.data) }

// Samples returns the underlying samples.
func (s *Series) Samples() []float64 { return s.data }

// Segments returns the whole-second span of the series.
func (s *Series) Segments() *segments.List {
	return segments.MustList(segments.Segment{Start: float64(s.start), End: float64(s.End())})
}

// Load returns a copy of the samples in [start, end).
func (s *Series) Load(ctx context.Context, start, end int64) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if end <= start || start < s.start || end > s.End() {
		return nil, fmt.Errorf("%w: [%d, %d) not within [%d, %d)", ErrOutOfRange, start, end, s.start, s.End())
	}
	i := int(start-s.start) * s.sampleRate
	j := int(end-s.start) * s.sampleRate
	return append([]float64(nil), s.data[i:j]...), nil
}
