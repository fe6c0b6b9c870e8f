package source

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/banshee-data/qscan/internal/monitoring"
)

// ReadWAV decodes the first channel of a PCM WAV file into a Series whose
// first sample is at GPS second start. Samples are scaled to [-1, 1).
func ReadWAV(path string, start int64) (*Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	s, err := DecodeWAV(f, start)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// DecodeWAV is ReadWAV for an open stream.
func DecodeWAV(r io.ReadSeeker, start int64) (*Series, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("invalid WAV file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode PCM data: %w", err)
	}

	bitDepth := int(dec.BitDepth)
	channels := int(dec.NumChans)
	if bitDepth == 0 || channels == 0 {
		return nil, fmt.Errorf("unsupported WAV format: %d bits, %d channels", bitDepth, channels)
	}
	if channels > 1 {
		monitoring.Logf("source: %d channels in WAV data, using the first", channels)
	}

	fb := buf.AsFloatBuffer()
	factor := math.Pow(2, float64(bitDepth-1))
	n := len(fb.Data) / channels
	data := make([]float64, n)
	for i := range n {
		data[i] = fb.Data[i*channels] / factor
	}
	monitoring.Debugf(1, "source: decoded %d samples at %d Hz (%d bits)", n, dec.SampleRate, bitDepth)

	return NewSeries(data, int(dec.SampleRate), start)
}

// WriteWAV encodes s as a mono PCM WAV file with the given bit depth.
// Samples are clipped to [-1, 1].
func WriteWAV(path string, s *Series, bitDepth int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, s.sampleRate, bitDepth, 1, 1)
	factor := math.Pow(2, float64(bitDepth-1)) - 1
	intBuf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: 1,
			SampleRate:  s.sampleRate,
		},
		Data:           make([]int, len(s.data)),
		SourceBitDepth: bitDepth,
	}
	for i, v := range s.data {
		intBuf.Data[i] = int(math.Round(max(-1, min(1, v)) * factor))
	}
	if err := enc.Write(intBuf); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize %s: %w", path, err)
	}
	return nil
}
