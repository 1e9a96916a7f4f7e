package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Parallel()

	t.Run("partial config keeps defaults", func(t *testing.T) {
		t.Parallel()
		path := writeConfig(t, "partial.json", `{"worker_count": 2, "skip_frames": 15}`)
		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, 2, cfg.GetWorkerCount())
		assert.Equal(t, 15, cfg.GetSkipFrames())
		assert.Equal(t, 32, cfg.GetQueueSize())
		assert.Equal(t, 0.4, cfg.GetMinConfidence())
		assert.Equal(t, 40, cfg.GetMaxDisappeared())
		assert.Equal(t, 50.0, cfg.GetMaxDistance())
		assert.Equal(t, time.Second, cfg.GetPollTimeout())
		assert.Equal(t, 10*time.Second, cfg.GetJoinTimeout())
		assert.Equal(t, 10, cfg.GetReportEvery())
		assert.Equal(t, "output", cfg.GetOutputDir())
	})

	t.Run("full config with streams", func(t *testing.T) {
		t.Parallel()
		path := writeConfig(t, "full.json", `{
			"worker_count": 8,
			"poll_timeout": "250ms",
			"camera_alert_threshold": 20,
			"cameras": [
				{"id": "lobby", "source": "testdata/lobby.jsonl", "alias": "Lobby"}
			],
			"videos": [
				{"source": "testdata/entrance.jsonl", "enabled": false, "threshold": 3, "priority": 4}
			]
		}`)
		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, 8, cfg.GetWorkerCount())
		assert.Equal(t, 250*time.Millisecond, cfg.GetPollTimeout())
		assert.Equal(t, 20, cfg.GetCameraAlertThreshold())

		require.Len(t, cfg.Cameras, 1)
		assert.True(t, cfg.Cameras[0].GetEnabled())
		assert.Equal(t, 20, cfg.Cameras[0].GetThreshold(cfg.GetCameraAlertThreshold()))
		assert.Equal(t, 1, cfg.Cameras[0].GetPriority(1))

		require.Len(t, cfg.Videos, 1)
		assert.False(t, cfg.Videos[0].GetEnabled())
		assert.Equal(t, 3, cfg.Videos[0].GetThreshold(cfg.GetVideoAlertThreshold()))
		assert.Equal(t, 4, cfg.Videos[0].GetPriority(2))
	})

	t.Run("rejects non-json extensions", func(t *testing.T) {
		t.Parallel()
		path := writeConfig(t, "config.yaml", `{}`)
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("rejects missing files", func(t *testing.T) {
		t.Parallel()
		_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
		assert.Error(t, err)
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		t.Parallel()
		path := writeConfig(t, "bad.json", `{"worker_count": `)
		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	t.Parallel()

	ptrInt := func(v int) *int { return &v }
	ptrFloat := func(v float64) *float64 { return &v }
	ptrString := func(v string) *string { return &v }

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"empty config is valid", func(c *Config) {}, false},
		{"zero workers", func(c *Config) { c.WorkerCount = ptrInt(0) }, true},
		{"negative queue", func(c *Config) { c.QueueSize = ptrInt(-1) }, true},
		{"zero report cadence", func(c *Config) { c.ReportEvery = ptrInt(0) }, true},
		{"confidence above one", func(c *Config) { c.MinConfidence = ptrFloat(1.2) }, true},
		{"confidence at bounds", func(c *Config) { c.MinConfidence = ptrFloat(1.0) }, false},
		{"negative disappearance", func(c *Config) { c.MaxDisappeared = ptrInt(-1) }, true},
		{"zero distance", func(c *Config) { c.MaxDistance = ptrFloat(0) }, true},
		{"bad poll duration", func(c *Config) { c.PollTimeout = ptrString("fast") }, true},
		{"good poll duration", func(c *Config) { c.PollTimeout = ptrString("2s") }, false},
		{"camera without source", func(c *Config) { c.Cameras = []StreamEntry{{ID: "x"}} }, true},
		{"video without source", func(c *Config) { c.Videos = []StreamEntry{{Alias: "x"}} }, true},
		{"zero stream priority", func(c *Config) {
			c.Videos = []StreamEntry{{Source: "a.jsonl", Priority: ptrInt(0)}}
		}, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := EmptyConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
