// Package config loads tuning parameters for the frame pipeline.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/cabinet.report/internal/camera"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig holds the pipeline tuning parameters. All fields are
// pointers so a partial JSON file only overrides what it names; the Get*
// methods supply defaults for everything else.
type TuningConfig struct {
	// Detector params
	MinConfidence *float64 `json:"min_confidence,omitempty"`

	// Tracker params
	MaxTracks          *int     `json:"max_tracks,omitempty"`
	IoUThreshold       *float64 `json:"iou_threshold,omitempty"`
	CentroidGate       *float64 `json:"centroid_gate,omitempty"`
	StaleAfterFrames   *int     `json:"stale_after_frames,omitempty"`
	ExpireAfterFrames  *int     `json:"expire_after_frames,omitempty"`
	ExpireAfterSeconds *string  `json:"expire_after,omitempty"` // duration string like "10s"

	// Crossing params
	CooldownWindow *string `json:"cooldown_window,omitempty"` // duration string like "3s"

	// Ingestion params
	MaxFrameBytes *int64  `json:"max_frame_bytes,omitempty"`
	StatsInterval *string `json:"stats_interval,omitempty"` // duration string like "1m"

	// Emitter params
	QueueDepth    *int    `json:"queue_depth,omitempty"`
	Workers       *int    `json:"workers,omitempty"`
	RetryAttempts *int    `json:"retry_attempts,omitempty"`
	RetryBackoff  *string `json:"retry_backoff,omitempty"` // duration string like "200ms"
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. Fields omitted
// from the file retain their defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
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

// Validate checks that the configuration values are usable.
func (c *TuningConfig) Validate() error {
	if c.MinConfidence != nil {
		if *c.MinConfidence < 0 || *c.MinConfidence > 1 {
			return fmt.Errorf("min_confidence must be between 0 and 1, got %f", *c.MinConfidence)
		}
	}
	if c.IoUThreshold != nil {
		if *c.IoUThreshold <= 0 || *c.IoUThreshold > 1 {
			return fmt.Errorf("iou_threshold must be in (0, 1], got %f", *c.IoUThreshold)
		}
	}
	if c.MaxTracks != nil && *c.MaxTracks < 1 {
		return fmt.Errorf("max_tracks must be positive, got %d", *c.MaxTracks)
	}
	if c.MaxFrameBytes != nil && *c.MaxFrameBytes < 1024 {
		return fmt.Errorf("max_frame_bytes must be at least 1024, got %d", *c.MaxFrameBytes)
	}
	for name, value := range map[string]*string{
		"expire_after":    c.ExpireAfterSeconds,
		"cooldown_window": c.CooldownWindow,
		"stats_interval":  c.StatsInterval,
		"retry_backoff":   c.RetryBackoff,
	} {
		if value != nil && *value != "" {
			if _, err := time.ParseDuration(*value); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *value, err)
			}
		}
	}
	return nil
}

// GetMinConfidence returns the min_confidence value or the default.
func (c *TuningConfig) GetMinConfidence() float64 {
	if c.MinConfidence == nil {
		return 0.5
	}
	return *c.MinConfidence
}

// GetCooldownWindow parses and returns the cooldown window.
func (c *TuningConfig) GetCooldownWindow() time.Duration {
	return c.duration(c.CooldownWindow, 3*time.Second)
}

// GetStatsInterval parses and returns the stats logging interval.
func (c *TuningConfig) GetStatsInterval() time.Duration {
	return c.duration(c.StatsInterval, time.Minute)
}

// GetMaxFrameBytes returns the maximum accepted frame payload size.
func (c *TuningConfig) GetMaxFrameBytes() uint64 {
	if c.MaxFrameBytes == nil {
		return camera.DefaultMaxFrameBytes
	}
	return uint64(*c.MaxFrameBytes)
}

// TrackerConfig assembles the tracker parameters with defaults applied.
func (c *TuningConfig) TrackerConfig() camera.TrackerConfig {
	tc := camera.DefaultTrackerConfig()
	if c.MaxTracks != nil {
		tc.MaxTracks = *c.MaxTracks
	}
	if c.IoUThreshold != nil {
		tc.IoUThreshold = *c.IoUThreshold
	}
	if c.CentroidGate != nil {
		tc.CentroidGate = *c.CentroidGate
	}
	if c.StaleAfterFrames != nil {
		tc.StaleAfterFrames = *c.StaleAfterFrames
	}
	if c.ExpireAfterFrames != nil {
		tc.ExpireAfterFrames = *c.ExpireAfterFrames
	}
	if c.ExpireAfterSeconds != nil {
		tc.ExpireAfter = c.duration(c.ExpireAfterSeconds, tc.ExpireAfter)
	}
	return tc
}

// SessionConfig assembles the full per-connection configuration.
func (c *TuningConfig) SessionConfig() camera.SessionConfig {
	sc := camera.DefaultSessionConfig()
	sc.Tracker = c.TrackerConfig()
	sc.MinConfidence = c.GetMinConfidence()
	sc.CooldownWindow = c.GetCooldownWindow()
	sc.MaxFrameBytes = c.GetMaxFrameBytes()
	sc.StatsInterval = c.GetStatsInterval()
	return sc
}

// EmitterConfig assembles the event writer configuration.
func (c *TuningConfig) EmitterConfig() camera.EmitterConfig {
	ec := camera.DefaultEmitterConfig()
	if c.QueueDepth != nil {
		ec.QueueDepth = *c.QueueDepth
	}
	if c.Workers != nil {
		ec.Workers = *c.Workers
	}
	if c.RetryAttempts != nil {
		ec.RetryAttempts = *c.RetryAttempts
	}
	if c.RetryBackoff != nil {
		ec.RetryBackoff = c.duration(c.RetryBackoff, ec.RetryBackoff)
	}
	return ec
}

func (c *TuningConfig) duration(value *string, fallback time.Duration) time.Duration {
	if value == nil || *value == "" {
		return fallback
	}
	d, err := time.ParseDuration(*value)
	if err != nil {
		return fallback
	}
	return d
}
