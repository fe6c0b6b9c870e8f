package qtile

import (
	"errors"

	"github.com/banshee-data/qscan/internal/segments"
	"github.com/banshee-data/qscan/internal/triggers"
)

var (
	// ErrInvalidParameter is returned for geometry parameters that cannot be clamped into range.
	ErrInvalidParameter = errors.New("invalid tiling parameter")

	// ErrInputLength is returned when the projected data does not hold one chunk of samples.
	ErrInputLength = errors.New("input length mismatch")

	// ErrPadding is returned when the padding is negative or covers the whole time range.
	ErrPadding = errors.New("invalid padding")

	ErrPlaneIndex  = errors.New("plane index out of range")
	ErrBandIndex   = errors.New("band index out of range")
	ErrTileIndex   = errors.New("tile index out of range")
	ErrWindowIndex = errors.New("time window index out of range")

	// ErrNoChunk is returned when triggers are requested before a chunk was loaded.
	ErrNoChunk = errors.New("no chunk loaded")
)

// NoiseSpectrum is a one-sided noise power spectral density estimate.
type NoiseSpectrum interface {
	Power(frequency float64) float64
}

// TriggerSink receives triggers and the time segments they were extracted from.
type TriggerSink interface {
	AddTrigger(triggers.Trigger)
	AddSegments(*segments.List)
}
