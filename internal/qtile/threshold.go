package qtile

import (
	"fmt"
	"sort"
	"strings"
)

// FrequencyThreshold is an SNR threshold defined as a step function over
// frequency. A negative step value disables the threshold in its bin, as do
// frequencies outside the edges.
type FrequencyThreshold struct {
	edges  []float64
	values []float64
}

// NewFrequencyThreshold builds a step function from len(values)+1 strictly
// increasing edges [Hz].
func NewFrequencyThreshold(edges, values []float64) (*FrequencyThreshold, error) {
	if len(values) == 0 || len(edges) != len(values)+1 {
		return nil, fmt.Errorf("%w: %d threshold edges for %d values", ErrInvalidParameter, len(edges), len(values))
	}
	for i := 1; i < len(edges); i++ {
		if !(edges[i] > edges[i-1]) {
			return nil, fmt.Errorf("%w: threshold edges must increase (%g after %g)", ErrInvalidParameter, edges[i], edges[i-1])
		}
	}
	return &FrequencyThreshold{
		edges:  append([]float64(nil), edges...),
		values: append([]float64(nil), values...),
	}, nil
}

// UniformThreshold returns a single-step threshold snr over [fmin, fmax).
func UniformThreshold(fmin, fmax, snr float64) (*FrequencyThreshold, error) {
	return NewFrequencyThreshold([]float64{fmin, fmax}, []float64{snr})
}

// Threshold returns the SNR threshold at frequency f and whether it is enabled.
func (t *FrequencyThreshold) Threshold(f float64) (float64, bool) {
	if t == nil || f < t.edges[0] || f >= t.edges[len(t.edges)-1] {
		return 0, false
	}
	i := sort.SearchFloat64s(t.edges, f)
	if i == len(t.edges) || t.edges[i] > f {
		i--
	}
	v := t.values[i]
	return v, v >= 0
}

// ContentType selects what a map cell holds.
type ContentType int

const (
	ContentSNRSq ContentType = iota
	ContentAmplitude
	ContentPhase
)

// ParseContentType maps "amplitude" and "phase" to their content type.
// Anything else, including "snr" and "snrsq", selects ContentSNRSq.
func ParseContentType(s string) ContentType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "amplitude":
		return ContentAmplitude
	case "phase":
		return ContentPhase
	default:
		return ContentSNRSq
	}
}

func (c ContentType) String() string {
	switch c {
	case ContentAmplitude:
		return "amplitude"
	case ContentPhase:
		return "phase"
	default:
		return "snrsq"
	}
}
