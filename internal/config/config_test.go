package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfig returns a minimally valid Config: defaults plus the one
// required field (an LLM endpoint) SetDefaults deliberately leaves empty.
func validConfig(t *testing.T) *Config {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))
	cfg.LLM.Remote.BaseURL = "https://llm.internal/v1"
	return &cfg
}

func TestLoad_DefaultsAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
llm:
  remote:
    base_url: https://llm.internal/v1
`), 0o644))

	t.Setenv("DOCWEAVE_PIPELINE_MAX_DURATION_SEC", "1800")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "./data/sessions", cfg.Storage.DataDir)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 1800, cfg.Pipeline.MaxDurationSec, "env var should override the file/default")
	assert.Equal(t, "ffmpeg", cfg.FFmpeg.FFmpegPath)
	assert.Equal(t, "whisper", cfg.STT.LocalBinaryPath)
	assert.Equal(t, "https://llm.internal/v1", cfg.LLM.Remote.BaseURL)
}

func TestLoad_MissingExplicitConfigFileFails(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "does-not-exist.yaml")

	_, err := Load(configPath)
	require.Error(t, err, "an explicit, missing config path should fail rather than silently fall back")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing data dir", func(c *Config) { c.Storage.DataDir = "" }, "storage.data_dir"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"bad db driver", func(c *Config) { c.Database.Driver = "oracle" }, "database.driver"},
		{"zero max duration", func(c *Config) { c.Pipeline.MaxDurationSec = 0 }, "max_duration_sec"},
		{"zero max keyframes", func(c *Config) { c.Pipeline.MaxKeyframes = 0 }, "max_keyframes"},
		{"bad stt preference", func(c *Config) { c.Pipeline.STTPreferenceDefault = "quick" }, "stt_preference_default"},
		{"zero stale session", func(c *Config) { c.Retention.StaleSessionSec = 0 }, "stale_session_sec"},
		{"missing ffmpeg path", func(c *Config) { c.FFmpeg.FFmpegPath = "" }, "ffmpeg.ffmpeg_path"},
		{"missing ffprobe path", func(c *Config) { c.FFmpeg.FFprobePath = "" }, "ffmpeg.ffprobe_path"},
		{"negative dedup threshold", func(c *Config) { c.FFmpeg.KeyframeDedupThreshold = -1 }, "keyframe_dedup_hamming_threshold"},
		{"no stt adapter configured", func(c *Config) {
			c.STT.LocalBinaryPath = ""
			c.STT.Remote.BaseURL = ""
		}, "stt:"},
		{"stt remote bad timeout", func(c *Config) {
			c.STT.Remote.BaseURL = "https://stt.internal"
			c.STT.Remote.TimeoutSec = 0
		}, "stt.remote.timeout_sec"},
		{"missing llm base url", func(c *Config) { c.LLM.Remote.BaseURL = "" }, "llm.remote.base_url"},
		{"llm remote bad breaker threshold", func(c *Config) { c.LLM.Remote.BreakerThreshold = 0 }, "llm.remote.breaker_threshold"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPipelineConfig_StageTimeout(t *testing.T) {
	cfg := validConfig(t)

	configured := time.Duration(cfg.Pipeline.StageTimeouts["transcribe"]) * time.Second
	assert.Equal(t, configured, cfg.Pipeline.StageTimeout("transcribe", time.Minute))
	assert.Equal(t, 99*time.Second, cfg.Pipeline.StageTimeout("nonexistent", 99*time.Second), "unconfigured stage falls back to the default")
}

func TestAdaptersConfig_ConcurrencyFor(t *testing.T) {
	cfg := validConfig(t)

	configured := cfg.Adapters.Concurrency["stt"]
	assert.Equal(t, configured, cfg.Adapters.ConcurrencyFor("stt", 1))
	assert.Equal(t, 7, cfg.Adapters.ConcurrencyFor("unknown_capability", 7), "unconfigured capability falls back to the default")
}
