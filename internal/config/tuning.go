package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/beat.report/internal/predictor"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/beat.defaults.json"

// Log formats understood by the log sink.
const (
	LogFormatDetailed = "detailed"
	LogFormatSimple   = "simple"
	LogFormatCSV      = "csv"
)

// TuningConfig holds the pipeline tuning parameters. Every field is
// optional; the Get* methods supply defaults for anything left unset, so
// partial files are safe.
type TuningConfig struct {
	// Clock mapping and dedup
	ClockAlpha    *float64 `json:"clock_alpha,omitempty"`
	DedupCapacity *int     `json:"dedup_capacity,omitempty"`

	// Queueing
	QueueCapacity     *int    `json:"queue_capacity,omitempty"`
	PopTimeout        *string `json:"pop_timeout,omitempty"`  // duration string like "100ms"
	JoinTimeout       *string `json:"join_timeout,omitempty"` // duration string like "2s"
	SinkQueueCapacity *int    `json:"sink_queue_capacity,omitempty"`
	Async             *bool   `json:"async,omitempty"`

	// Predictor
	PredictCount      *int     `json:"predict_count,omitempty"`
	InitPeriod        *float64 `json:"init_period,omitempty"`
	QPhase            *float64 `json:"q_phase,omitempty"`
	QPeriod           *float64 `json:"q_period,omitempty"`
	RMeas             *float64 `json:"r_meas,omitempty"`
	InitialCovariance *float64 `json:"initial_covariance,omitempty"`
	MinPeriod         *float64 `json:"min_period,omitempty"`
	MaxPeriod         *float64 `json:"max_period,omitempty"`
	IBIWindow         *int     `json:"ibi_window,omitempty"`

	// Output
	LogFormat *string `json:"log_format,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadTuningConfig(path string) (*TuningConfig, error) {
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

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and a few parents. Panics if the file cannot be loaded;
// intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/tools/beat-plot/
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.ClockAlpha != nil {
		if a := *c.ClockAlpha; !(a > 0 && a <= 1) {
			return fmt.Errorf("clock_alpha must be in (0, 1], got %f", a)
		}
	}

	for name, v := range map[string]*int{
		"dedup_capacity":      c.DedupCapacity,
		"queue_capacity":      c.QueueCapacity,
		"sink_queue_capacity": c.SinkQueueCapacity,
		"ibi_window":          c.IBIWindow,
		"predict_count":       c.PredictCount,
	} {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, *v)
		}
	}

	for name, v := range map[string]*string{
		"pop_timeout":  c.PopTimeout,
		"join_timeout": c.JoinTimeout,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", name, d)
		}
	}

	if c.LogFormat != nil {
		switch *c.LogFormat {
		case LogFormatDetailed, LogFormatSimple, LogFormatCSV:
		default:
			return fmt.Errorf("log_format must be one of detailed, simple, csv; got %q", *c.LogFormat)
		}
	}

	if err := c.PredictorParams().Validate(); err != nil {
		return fmt.Errorf("predictor: %w", err)
	}
	return nil
}

// PredictorParams builds filter parameters, falling back to
// predictor.DefaultParams for unset fields.
func (c *TuningConfig) PredictorParams() predictor.Params {
	p := predictor.DefaultParams()
	if c.InitPeriod != nil {
		p.InitPeriod = *c.InitPeriod
	}
	if c.QPhase != nil {
		p.QPhase = *c.QPhase
	}
	if c.QPeriod != nil {
		p.QPeriod = *c.QPeriod
	}
	if c.RMeas != nil {
		p.RMeas = *c.RMeas
	}
	if c.InitialCovariance != nil {
		p.P0 = *c.InitialCovariance
	}
	if c.MinPeriod != nil {
		p.MinPeriod = *c.MinPeriod
	}
	if c.MaxPeriod != nil {
		p.MaxPeriod = *c.MaxPeriod
	}
	if c.IBIWindow != nil {
		p.IBIWindow = *c.IBIWindow
	}
	return p
}

// GetClockAlpha returns the clock_alpha value or the default.
func (c *TuningConfig) GetClockAlpha() float64 {
	if c.ClockAlpha == nil {
		return 0.1 // default
	}
	return *c.ClockAlpha
}

// GetDedupCapacity returns the dedup_capacity value or the default.
func (c *TuningConfig) GetDedupCapacity() int {
	if c.DedupCapacity == nil {
		return 1000 // default
	}
	return *c.DedupCapacity
}

// GetQueueCapacity returns the queue_capacity value or the default.
func (c *TuningConfig) GetQueueCapacity() int {
	if c.QueueCapacity == nil {
		return 128 // default
	}
	return *c.QueueCapacity
}

// GetSinkQueueCapacity returns the sink_queue_capacity value or the default.
func (c *TuningConfig) GetSinkQueueCapacity() int {
	if c.SinkQueueCapacity == nil {
		return 128 // default
	}
	return *c.SinkQueueCapacity
}

// GetPopTimeout parses and returns the PopTimeout as a time.Duration.
func (c *TuningConfig) GetPopTimeout() time.Duration {
	return parseDurationOr(c.PopTimeout, 100*time.Millisecond)
}

// GetJoinTimeout parses and returns the JoinTimeout as a time.Duration.
func (c *TuningConfig) GetJoinTimeout() time.Duration {
	return parseDurationOr(c.JoinTimeout, 2*time.Second)
}

// GetPredictCount returns the number of beats forecast per event.
func (c *TuningConfig) GetPredictCount() int {
	if c.PredictCount == nil {
		return 4 // default
	}
	return *c.PredictCount
}

// GetLogFormat returns the log_format value or the default.
func (c *TuningConfig) GetLogFormat() string {
	if c.LogFormat == nil {
		return LogFormatDetailed
	}
	return *c.LogFormat
}

// GetAsync reports whether raw per-frame outputs are published to the
// latest-value slot.
func (c *TuningConfig) GetAsync() bool {
	if c.Async == nil {
		return false
	}
	return *c.Async
}

func parseDurationOr(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def // default on parse error
	}
	return d
}
