// Package config loads the runtime configuration for the counting system.
// All fields are pointers so a partial JSON file only overrides what it
// names; the Get* methods supply defaults for everything else.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical defaults file. This is
// the single source of truth for all default values.
const DefaultConfigPath = "config/footfall.defaults.json"

// StreamEntry configures one camera or video stream.
type StreamEntry struct {
	ID        string `json:"id,omitempty"`
	Source    string `json:"source"`
	Alias     string `json:"alias,omitempty"`
	Enabled   *bool  `json:"enabled,omitempty"`
	Threshold *int   `json:"threshold,omitempty"`
	Priority  *int   `json:"priority,omitempty"`
}

// GetEnabled returns whether this stream should be scheduled. Streams are
// enabled unless explicitly turned off.
func (e *StreamEntry) GetEnabled() bool {
	if e.Enabled == nil {
		return true
	}
	return *e.Enabled
}

// GetThreshold returns this stream's alert threshold, falling back to def.
func (e *StreamEntry) GetThreshold(def int) int {
	if e.Threshold == nil {
		return def
	}
	return *e.Threshold
}

// GetPriority returns this stream's scheduling priority, falling back to
// def (cameras 1, videos 2).
func (e *StreamEntry) GetPriority(def int) int {
	if e.Priority == nil {
		return def
	}
	return *e.Priority
}

// Config is the root configuration. The schema doubles as the startup file
// format and the shape served back by the monitor API.
type Config struct {
	// Pool params
	WorkerCount *int    `json:"worker_count,omitempty"`
	QueueSize   *int    `json:"queue_size,omitempty"`
	PollTimeout *string `json:"poll_timeout,omitempty"` // duration string like "1s"
	ReportEvery *int    `json:"report_every,omitempty"`
	JoinTimeout *string `json:"join_timeout,omitempty"` // duration string like "10s"

	// Counting params
	SkipFrames     *int     `json:"skip_frames,omitempty"`
	MinConfidence  *float64 `json:"min_confidence,omitempty"`
	MaxDisappeared *int     `json:"max_disappeared,omitempty"`
	MaxDistance    *float64 `json:"max_distance,omitempty"`

	// Alert params
	CameraAlertThreshold *int `json:"camera_alert_threshold,omitempty"`
	VideoAlertThreshold  *int `json:"video_alert_threshold,omitempty"`

	// Export params
	OutputDir *string `json:"output_dir,omitempty"`

	// Streams
	Cameras []StreamEntry `json:"cameras,omitempty"`
	Videos  []StreamEntry `json:"videos,omitempty"`
}

// EmptyConfig returns a Config with all fields unset. Use Load to read
// actual values from a file.
func EmptyConfig() *Config {
	return &Config{}
}

// Load reads a Config from a JSON file. The path must end in .json and
// the file must be under 1MB. Fields omitted from the file keep their
// defaults, so partial configs are safe.
func Load(path string) (*Config, error) {
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

	cfg := EmptyConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *Config) Validate() error {
	if c.WorkerCount != nil && *c.WorkerCount <= 0 {
		return fmt.Errorf("worker_count must be positive, got %d", *c.WorkerCount)
	}
	if c.QueueSize != nil && *c.QueueSize <= 0 {
		return fmt.Errorf("queue_size must be positive, got %d", *c.QueueSize)
	}
	if c.ReportEvery != nil && *c.ReportEvery <= 0 {
		return fmt.Errorf("report_every must be positive, got %d", *c.ReportEvery)
	}
	if c.SkipFrames != nil && *c.SkipFrames <= 0 {
		return fmt.Errorf("skip_frames must be positive, got %d", *c.SkipFrames)
	}
	if c.MinConfidence != nil {
		if *c.MinConfidence < 0 || *c.MinConfidence > 1 {
			return fmt.Errorf("min_confidence must be between 0 and 1, got %f", *c.MinConfidence)
		}
	}
	if c.MaxDisappeared != nil && *c.MaxDisappeared < 0 {
		return fmt.Errorf("max_disappeared must be non-negative, got %d", *c.MaxDisappeared)
	}
	if c.MaxDistance != nil && *c.MaxDistance <= 0 {
		return fmt.Errorf("max_distance must be positive, got %f", *c.MaxDistance)
	}

	if c.PollTimeout != nil && *c.PollTimeout != "" {
		if _, err := time.ParseDuration(*c.PollTimeout); err != nil {
			return fmt.Errorf("invalid poll_timeout '%s': %w", *c.PollTimeout, err)
		}
	}
	if c.JoinTimeout != nil && *c.JoinTimeout != "" {
		if _, err := time.ParseDuration(*c.JoinTimeout); err != nil {
			return fmt.Errorf("invalid join_timeout '%s': %w", *c.JoinTimeout, err)
		}
	}

	for i, e := range c.Cameras {
		if e.Source == "" {
			return fmt.Errorf("cameras[%d]: no source", i)
		}
		if e.Priority != nil && *e.Priority <= 0 {
			return fmt.Errorf("cameras[%d]: priority must be positive, got %d", i, *e.Priority)
		}
	}
	for i, e := range c.Videos {
		if e.Source == "" {
			return fmt.Errorf("videos[%d]: no source", i)
		}
		if e.Priority != nil && *e.Priority <= 0 {
			return fmt.Errorf("videos[%d]: priority must be positive, got %d", i, *e.Priority)
		}
	}
	return nil
}

// GetWorkerCount returns the worker_count value or the default.
func (c *Config) GetWorkerCount() int {
	if c.WorkerCount == nil {
		return 4
	}
	return *c.WorkerCount
}

// GetQueueSize returns the queue_size value or the default.
func (c *Config) GetQueueSize() int {
	if c.QueueSize == nil {
		return 32
	}
	return *c.QueueSize
}

// GetPollTimeout parses and returns the poll_timeout as a time.Duration.
func (c *Config) GetPollTimeout() time.Duration {
	if c.PollTimeout == nil || *c.PollTimeout == "" {
		return time.Second
	}
	d, err := time.ParseDuration(*c.PollTimeout)
	if err != nil {
		return time.Second
	}
	return d
}

// GetReportEvery returns the report_every value or the default.
func (c *Config) GetReportEvery() int {
	if c.ReportEvery == nil {
		return 10
	}
	return *c.ReportEvery
}

// GetJoinTimeout parses and returns the join_timeout as a time.Duration.
func (c *Config) GetJoinTimeout() time.Duration {
	if c.JoinTimeout == nil || *c.JoinTimeout == "" {
		return 10 * time.Second
	}
	d, err := time.ParseDuration(*c.JoinTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// GetSkipFrames returns the skip_frames value or the default.
func (c *Config) GetSkipFrames() int {
	if c.SkipFrames == nil {
		return 30
	}
	return *c.SkipFrames
}

// GetMinConfidence returns the min_confidence value or the default.
func (c *Config) GetMinConfidence() float64 {
	if c.MinConfidence == nil {
		return 0.4
	}
	return *c.MinConfidence
}

// GetMaxDisappeared returns the max_disappeared value or the default.
func (c *Config) GetMaxDisappeared() int {
	if c.MaxDisappeared == nil {
		return 40
	}
	return *c.MaxDisappeared
}

// GetMaxDistance returns the max_distance value or the default.
func (c *Config) GetMaxDistance() float64 {
	if c.MaxDistance == nil {
		return 50.0
	}
	return *c.MaxDistance
}

// GetCameraAlertThreshold returns the camera_alert_threshold value or the default.
func (c *Config) GetCameraAlertThreshold() int {
	if c.CameraAlertThreshold == nil {
		return 10
	}
	return *c.CameraAlertThreshold
}

// GetVideoAlertThreshold returns the video_alert_threshold value or the default.
func (c *Config) GetVideoAlertThreshold() int {
	if c.VideoAlertThreshold == nil {
		return 5
	}
	return *c.VideoAlertThreshold
}

// GetOutputDir returns the output_dir value or the default.
func (c *Config) GetOutputDir() string {
	if c.OutputDir == nil || *c.OutputDir == "" {
		return "output"
	}
	return *c.OutputDir
}
