package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/qscan/internal/qtile"
)

// DefaultConfigPath is the path to the canonical analysis defaults file.
const DefaultConfigPath = "config/analysis.defaults.json"

// AnalysisConfig is the root configuration of a scan. Every field is
// optional: the Get* methods fall back to the defaults for unset fields,
// so partial files are safe.
type AnalysisConfig struct {
	// Data
	SampleRate      *int `json:"sample_rate,omitempty"`      // [Hz]
	ChunkDuration   *int `json:"chunk_duration,omitempty"`   // [s]
	OverlapDuration *int `json:"overlap_duration,omitempty"` // [s]

	// Tiling
	QMin         *float64 `json:"q_min,omitempty"`
	QMax         *float64 `json:"q_max,omitempty"`
	FrequencyMin *float64 `json:"frequency_min,omitempty"` // [Hz]
	FrequencyMax *float64 `json:"frequency_max,omitempty"` // [Hz]
	MismatchMax  *float64 `json:"mismatch_max,omitempty"`

	// Triggers
	SNRThreshold   *float64 `json:"snr_threshold,omitempty"`
	TriggerRateMax *float64 `json:"trigger_rate_max,omitempty"` // [Hz]
	ClusterDT      *float64 `json:"cluster_dt,omitempty"`       // [s], 0 disables clustering

	// Maps
	MapSNRThreshold *float64 `json:"map_snr_threshold,omitempty"`
	PlotTimeWindows []int    `json:"plot_time_windows,omitempty"`  // [s]
	FullMapTimeBins *int     `json:"full_map_time_bins,omitempty"` // 0 is full resolution
	MapContent      *string  `json:"map_content,omitempty"`        // snrsq, amplitude or phase

	// Conditioning
	PSDLength  *int     `json:"psd_length,omitempty"`  // Welch segment [s]
	TukeyAlpha *float64 `json:"tukey_alpha,omitempty"` // unset: overlap/chunk

	Verbosity *int `json:"verbosity,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyAnalysisConfig returns an AnalysisConfig with all fields unset.
func EmptyAnalysisConfig() *AnalysisConfig {
	return &AnalysisConfig{}
}

// DefaultAnalysisConfig returns a configuration with every field set to its default.
func DefaultAnalysisConfig() *AnalysisConfig {
	return &AnalysisConfig{
		SampleRate:      ptrInt(2048),
		ChunkDuration:   ptrInt(64),
		OverlapDuration: ptrInt(4),
		QMin:            ptrFloat64(4),
		QMax:            ptrFloat64(100),
		FrequencyMin:    ptrFloat64(32),
		FrequencyMax:    ptrFloat64(1000),
		MismatchMax:     ptrFloat64(0.2),
		SNRThreshold:    ptrFloat64(7),
		TriggerRateMax:  ptrFloat64(5000),
		ClusterDT:       ptrFloat64(0.1),
		MapSNRThreshold: ptrFloat64(0),
		PlotTimeWindows: []int{2, 8, 32},
		FullMapTimeBins: ptrInt(512),
		MapContent:      ptrString("snrsq"),
		PSDLength:       ptrInt(4),
		Verbosity:       ptrInt(0),
	}
}

// LoadAnalysisConfig loads an AnalysisConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadAnalysisConfig(path string) (*AnalysisConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyAnalysisConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the current directory or
// one of its parents. It panics if the file cannot be loaded; it is intended
// for test setup.
func MustLoadDefaultConfig() *AnalysisConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadAnalysisConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the values that are set. Unset fields are not checked.
func (c *AnalysisConfig) Validate() error {
	if c.SampleRate != nil && *c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", *c.SampleRate)
	}
	if c.ChunkDuration != nil && *c.ChunkDuration < 4 {
		return fmt.Errorf("chunk_duration must be at least 4 s, got %d", *c.ChunkDuration)
	}
	if o := c.GetOverlapDuration(); o < 0 || o >= c.GetChunkDuration() {
		return fmt.Errorf("overlap_duration must be in [0, %d), got %d", c.GetChunkDuration(), o)
	}
	if c.QMin != nil && *c.QMin <= 0 {
		return fmt.Errorf("q_min must be positive, got %f", *c.QMin)
	}
	if c.GetQMax() < c.GetQMin() {
		return fmt.Errorf("q_max %f is below q_min %f", c.GetQMax(), c.GetQMin())
	}
	if c.FrequencyMin != nil && *c.FrequencyMin <= 0 {
		return fmt.Errorf("frequency_min must be positive, got %f", *c.FrequencyMin)
	}
	if c.GetFrequencyMax() <= c.GetFrequencyMin() {
		return fmt.Errorf("frequency_max %f must exceed frequency_min %f", c.GetFrequencyMax(), c.GetFrequencyMin())
	}
	if m := c.GetMismatchMax(); m <= 0 || m >= 1 {
		return fmt.Errorf("mismatch_max must be in (0, 1), got %f", m)
	}
	if c.SNRThreshold != nil && *c.SNRThreshold < 0 {
		return fmt.Errorf("snr_threshold must be non-negative, got %f", *c.SNRThreshold)
	}
	if c.TriggerRateMax != nil && *c.TriggerRateMax < 0 {
		return fmt.Errorf("trigger_rate_max must be non-negative, got %f", *c.TriggerRateMax)
	}
	if c.ClusterDT != nil && *c.ClusterDT < 0 {
		return fmt.Errorf("cluster_dt must be non-negative, got %f", *c.ClusterDT)
	}
	for _, w := range c.PlotTimeWindows {
		if w < 0 {
			return fmt.Errorf("plot_time_windows must be non-negative, got %d", w)
		}
	}
	if c.FullMapTimeBins != nil && *c.FullMapTimeBins < 0 {
		return fmt.Errorf("full_map_time_bins must be non-negative, got %d", *c.FullMapTimeBins)
	}
	if c.MapContent != nil {
		switch *c.MapContent {
		case "snr", "snrsq", "amplitude", "phase":
		default:
			return fmt.Errorf("map_content must be snrsq, amplitude or phase, got %q", *c.MapContent)
		}
	}
	if p := c.GetPSDLength(); p <= 0 || p > c.GetChunkDuration() {
		return fmt.Errorf("psd_length must be in (0, %d], got %d", c.GetChunkDuration(), p)
	}
	if c.TukeyAlpha != nil && (*c.TukeyAlpha < 0 || *c.TukeyAlpha > 1) {
		return fmt.Errorf("tukey_alpha must be between 0 and 1, got %f", *c.TukeyAlpha)
	}
	if c.Verbosity != nil && *c.Verbosity < 0 {
		return fmt.Errorf("verbosity must be non-negative, got %d", *c.Verbosity)
	}
	return nil
}

// GetSampleRate returns the sample_rate value or the default.
func (c *AnalysisConfig) GetSampleRate() int {
	if c.SampleRate == nil {
		return 2048
	}
	return *c.SampleRate
}

// GetChunkDuration returns the chunk_duration value or the default.
func (c *AnalysisConfig) GetChunkDuration() int {
	if c.ChunkDuration == nil {
		return 64
	}
	return *c.ChunkDuration
}

// GetOverlapDuration returns the overlap_duration value or the default.
func (c *AnalysisConfig) GetOverlapDuration() int {
	if c.OverlapDuration == nil {
		return 4
	}
	return *c.OverlapDuration
}

// GetQMin returns the q_min value or the default.
func (c *AnalysisConfig) GetQMin() float64 {
	if c.QMin == nil {
		return 4
	}
	return *c.QMin
}

// GetQMax returns the q_max value or the default.
func (c *AnalysisConfig) GetQMax() float64 {
	if c.QMax == nil {
		return 100
	}
	return *c.QMax
}

// GetFrequencyMin returns the frequency_min value or the default.
func (c *AnalysisConfig) GetFrequencyMin() float64 {
	if c.FrequencyMin == nil {
		return 32
	}
	return *c.FrequencyMin
}

// GetFrequencyMax returns the frequency_max value or the default.
func (c *AnalysisConfig) GetFrequencyMax() float64 {
	if c.FrequencyMax == nil {
		return 1000
	}
	return *c.FrequencyMax
}

// GetMismatchMax returns the mismatch_max value or the default.
func (c *AnalysisConfig) GetMismatchMax() float64 {
	if c.MismatchMax == nil {
		return 0.2
	}
	return *c.MismatchMax
}

// GetSNRThreshold returns the snr_threshold value or the default.
func (c *AnalysisConfig) GetSNRThreshold() float64 {
	if c.SNRThreshold == nil {
		return 7
	}
	return *c.SNRThreshold
}

// GetTriggerRateMax returns the trigger_rate_max value or the default.
// Zero disables the cap.
func (c *AnalysisConfig) GetTriggerRateMax() float64 {
	if c.TriggerRateMax == nil {
		return 5000
	}
	return *c.TriggerRateMax
}

// GetClusterDT returns the cluster_dt value or the default.
func (c *AnalysisConfig) GetClusterDT() float64 {
	if c.ClusterDT == nil {
		return 0.1
	}
	return *c.ClusterDT
}

// GetMapSNRThreshold returns the map_snr_threshold value or the default.
func (c *AnalysisConfig) GetMapSNRThreshold() float64 {
	if c.MapSNRThreshold == nil {
		return 0
	}
	return *c.MapSNRThreshold
}

// GetPlotTimeWindows returns the plot_time_windows value or the default.
func (c *AnalysisConfig) GetPlotTimeWindows() []int {
	if len(c.PlotTimeWindows) == 0 {
		return []int{2, 8, 32}
	}
	return append([]int(nil), c.PlotTimeWindows...)
}

// GetFullMapTimeBins returns the full_map_time_bins value or the default.
func (c *AnalysisConfig) GetFullMapTimeBins() int {
	if c.FullMapTimeBins == nil {
		return 512
	}
	return *c.FullMapTimeBins
}

// GetMapContent returns the map content type.
func (c *AnalysisConfig) GetMapContent() qtile.ContentType {
	if c.MapContent == nil {
		return qtile.ContentSNRSq
	}
	return qtile.ParseContentType(*c.MapContent)
}

// GetPSDLength returns the psd_length value or the default.
func (c *AnalysisConfig) GetPSDLength() int {
	if c.PSDLength == nil {
		return 4
	}
	return *c.PSDLength
}

// GetTukeyAlpha returns tukey_alpha, or the overlap fraction of a chunk
// when unset so that the taper stays inside the discarded padding.
func (c *AnalysisConfig) GetTukeyAlpha() float64 {
	if c.TukeyAlpha == nil {
		return float64(c.GetOverlapDuration()) / float64(c.GetChunkDuration())
	}
	return *c.TukeyAlpha
}

// GetVerbosity returns the verbosity value or the default.
func (c *AnalysisConfig) GetVerbosity() int {
	if c.Verbosity == nil {
		return 0
	}
	return *c.Verbosity
}

// TilingConfig returns the tiling parameters.
func (c *AnalysisConfig) TilingConfig() qtile.Config {
	return qtile.Config{
		TimeRange:       c.GetChunkDuration(),
		Overlap:         c.GetOverlapDuration(),
		QMin:            c.GetQMin(),
		QMax:            c.GetQMax(),
		FrequencyMin:    c.GetFrequencyMin(),
		FrequencyMax:    c.GetFrequencyMax(),
		SampleRate:      c.GetSampleRate(),
		Mismatch:        c.GetMismatchMax(),
		FullMapTimeBins: c.GetFullMapTimeBins(),
	}
}
