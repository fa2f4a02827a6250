// Package config provides configuration management for docweave using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values, named after the stage/knob they govern.
const (
	defaultMaxDurationSec         = 900
	defaultProxyFPS               = 1
	defaultProxyLongEdgePx        = 640
	defaultMaxKeyframes           = 25
	defaultMergeGapSec            = 10
	defaultMinSegmentSec          = 5
	defaultSTTPreference          = "auto"
	defaultSTTAutoThresholdSec    = 300
	defaultStaleSessionSec        = 600
	defaultZombieSweepIntervalSec = 60
	defaultSegmentPipelineChunk   = 30
	defaultSegmentPipelineMaxConc = 4
	defaultRetentionMemorySec     = 3600
	defaultCancelGraceSec         = 5

	defaultStageTimeoutProbeSec       = 5
	defaultStageTimeoutProxySec       = 120
	defaultStageTimeoutTranscribeSec  = 600
	defaultStageTimeoutRelevanceSec   = 60
	defaultStageTimeoutExtractSec     = 120
	defaultStageTimeoutGenerateSec    = 180
	defaultAdapterConcurrencyTranscode = 2
	defaultAdapterConcurrencySTT       = 2
	defaultAdapterConcurrencyRelevance = 4
	defaultAdapterConcurrencyGenerator = 2

	defaultKeyframeDedupThreshold = 6 // Hamming distance over a 64-bit average hash
	defaultRemoteTimeoutSec       = 30
	defaultRemoteMaxRetries       = 2
	defaultBreakerThreshold       = 5
	defaultBreakerCooldownSec     = 30
	defaultLLMMaxRetries          = 1
)

// Config holds all configuration for the application.
type Config struct {
	Storage    StorageConfig    `mapstructure:"storage"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Adapters   AdaptersConfig   `mapstructure:"adapters"`
	Retention  RetentionConfig  `mapstructure:"retention"`
	Concurrency ConcurrencyConfig `mapstructure:"concurrency"`
	FFmpeg     FFmpegConfig     `mapstructure:"ffmpeg"`
	STT        STTConfig        `mapstructure:"stt"`
	LLM        LLMConfig        `mapstructure:"llm"`
}

// FFmpegConfig controls the local media-inspection/transcode adapters (§4.1
// steps 1-2, §4.5).
type FFmpegConfig struct {
	FFmpegPath  string `mapstructure:"ffmpeg_path"`
	FFprobePath string `mapstructure:"ffprobe_path"`
	HWAccel     string `mapstructure:"hwaccel"` // "" disables; else e.g. "videotoolbox", "vaapi", "cuda"
	KeyframeDedupThreshold int `mapstructure:"keyframe_dedup_hamming_threshold"`
}

// STTConfig selects and configures the local/remote speech-to-text adapters
// of §4.3.
type STTConfig struct {
	LocalBinaryPath string       `mapstructure:"local_binary_path"` // e.g. a whisper.cpp binary
	LocalModelPath  string       `mapstructure:"local_model_path"`
	Remote          RemoteConfig `mapstructure:"remote"`
}

// LLMConfig configures the remote RelevanceAnalyzer and Generator adapters
// of §4.4/§4.6. Both adapters share one remote endpoint family but may name
// different models.
type LLMConfig struct {
	Remote          RemoteConfig `mapstructure:"remote"`
	RelevanceModel  string       `mapstructure:"relevance_model"`
	GeneratorModel  string       `mapstructure:"generator_model"`
	MaxRetries      int          `mapstructure:"max_retries"`
}

// RemoteConfig is shared by any adapter that calls out over HTTP to a
// remote inference service (remote STT, both LLM adapters).
type RemoteConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	TimeoutSec     int    `mapstructure:"timeout_sec"`
	MaxRetries     int    `mapstructure:"max_retries"`
	BreakerThreshold int  `mapstructure:"breaker_threshold"` // consecutive failures before opening
	BreakerCooldownSec int `mapstructure:"breaker_cooldown_sec"`
}

// StorageConfig controls where session artifacts and prompt records live on disk.
type StorageConfig struct {
	DataDir   string `mapstructure:"data_dir"`   // root for per-session artifact directories (§4.7)
	PromptDir string `mapstructure:"prompt_dir"` // directory of on-disk prompt records (§4.8, §6)
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// DatabaseConfig holds connection configuration for the secondary session index (DESIGN.md: sessionstore).
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN    string `mapstructure:"dsn"`
}

// PipelineConfig holds the orchestrator knobs named in §6.
type PipelineConfig struct {
	MaxDurationSec          int            `mapstructure:"max_duration_sec"`
	ProxyFPS                int            `mapstructure:"proxy_fps"`
	ProxyLongEdgePx         int            `mapstructure:"proxy_long_edge_px"`
	MaxKeyframes            int            `mapstructure:"max_keyframes"`
	MergeGapSec             float64        `mapstructure:"merge_gap_sec"`
	MinSegmentSec           float64        `mapstructure:"min_segment_sec"`
	STTPreferenceDefault    string         `mapstructure:"stt_preference_default"`
	STTAutoThresholdSec     int            `mapstructure:"stt_auto_threshold_sec"`
	SegmentPipelineChunkSec int            `mapstructure:"segment_pipeline_chunk_sec"`
	CancelGraceSec          int            `mapstructure:"cancel_grace_sec"`
	StageTimeouts           map[string]int `mapstructure:"per_session_stage_timeouts"`
	// MaxDocBytes bounds the Generator's markdown/json output (§4.1 step 7: "only size limits apply").
	MaxDocBytes ByteSize `mapstructure:"max_doc_size"`
}

// AdaptersConfig holds per-capability admission caps (§5 backpressure).
type AdaptersConfig struct {
	Concurrency map[string]int `mapstructure:"adapter_concurrency"`
}

// RetentionConfig holds the session/artifact retention windows (§4.2, §6).
type RetentionConfig struct {
	StaleSessionSec        int `mapstructure:"stale_session_sec"`
	ZombieSweepIntervalSec int `mapstructure:"zombie_sweep_interval_sec"`
	MemorySec              int `mapstructure:"retention_sec_memory"`
	DiskSec                int `mapstructure:"retention_sec_disk"` // 0 = forever
}

// ConcurrencyConfig holds the global per-session concurrency cap (§5).
type ConcurrencyConfig struct {
	GlobalSessionCap int `mapstructure:"global_session_cap"` // 0 = derive from CPU count
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with DOCWEAVE_ and use underscores for nesting.
// Example: DOCWEAVE_PIPELINE_MAX_DURATION_SEC=600.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/docweave")
		v.AddConfigPath("$HOME/.docweave")
	}

	v.SetEnvPrefix("DOCWEAVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("storage.data_dir", "./data/sessions")
	v.SetDefault("storage.prompt_dir", "./data/prompts")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "docweave-sessions.db")

	v.SetDefault("pipeline.max_duration_sec", defaultMaxDurationSec)
	v.SetDefault("pipeline.proxy_fps", defaultProxyFPS)
	v.SetDefault("pipeline.proxy_long_edge_px", defaultProxyLongEdgePx)
	v.SetDefault("pipeline.max_keyframes", defaultMaxKeyframes)
	v.SetDefault("pipeline.merge_gap_sec", defaultMergeGapSec)
	v.SetDefault("pipeline.min_segment_sec", defaultMinSegmentSec)
	v.SetDefault("pipeline.stt_preference_default", defaultSTTPreference)
	v.SetDefault("pipeline.stt_auto_threshold_sec", defaultSTTAutoThresholdSec)
	v.SetDefault("pipeline.segment_pipeline_chunk_sec", defaultSegmentPipelineChunk)
	v.SetDefault("pipeline.cancel_grace_sec", defaultCancelGraceSec)
	v.SetDefault("pipeline.max_doc_size", "10MB")
	v.SetDefault("pipeline.per_session_stage_timeouts", map[string]int{
		"probe":       defaultStageTimeoutProbeSec,
		"proxy":       defaultStageTimeoutProxySec,
		"transcribe":  defaultStageTimeoutTranscribeSec,
		"relevance":   defaultStageTimeoutRelevanceSec,
		"extract":     defaultStageTimeoutExtractSec,
		"generate":    defaultStageTimeoutGenerateSec,
	})

	v.SetDefault("adapters.adapter_concurrency", map[string]int{
		"transcoder":     defaultAdapterConcurrencyTranscode,
		"stt":            defaultAdapterConcurrencySTT,
		"llm_relevance":  defaultAdapterConcurrencyRelevance,
		"llm_generator":  defaultAdapterConcurrencyGenerator,
	})

	v.SetDefault("retention.stale_session_sec", defaultStaleSessionSec)
	v.SetDefault("retention.zombie_sweep_interval_sec", defaultZombieSweepIntervalSec)
	v.SetDefault("retention.retention_sec_memory", defaultRetentionMemorySec)
	v.SetDefault("retention.retention_sec_disk", 0)

	v.SetDefault("concurrency.global_session_cap", 0)

	v.SetDefault("ffmpeg.ffmpeg_path", "ffmpeg")
	v.SetDefault("ffmpeg.ffprobe_path", "ffprobe")
	v.SetDefault("ffmpeg.hwaccel", "")
	v.SetDefault("ffmpeg.keyframe_dedup_hamming_threshold", defaultKeyframeDedupThreshold)

	v.SetDefault("stt.local_binary_path", "whisper")
	v.SetDefault("stt.local_model_path", "")
	v.SetDefault("stt.remote.timeout_sec", defaultRemoteTimeoutSec)
	v.SetDefault("stt.remote.max_retries", defaultRemoteMaxRetries)
	v.SetDefault("stt.remote.breaker_threshold", defaultBreakerThreshold)
	v.SetDefault("stt.remote.breaker_cooldown_sec", defaultBreakerCooldownSec)

	v.SetDefault("llm.relevance_model", "")
	v.SetDefault("llm.generator_model", "")
	v.SetDefault("llm.max_retries", defaultLLMMaxRetries)
	v.SetDefault("llm.remote.timeout_sec", defaultRemoteTimeoutSec)
	v.SetDefault("llm.remote.max_retries", defaultRemoteMaxRetries)
	v.SetDefault("llm.remote.breaker_threshold", defaultBreakerThreshold)
	v.SetDefault("llm.remote.breaker_cooldown_sec", defaultBreakerCooldownSec)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required")
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: trace, debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}

	if c.Pipeline.MaxDurationSec < 1 {
		return fmt.Errorf("pipeline.max_duration_sec must be at least 1")
	}
	if c.Pipeline.MaxKeyframes < 1 {
		return fmt.Errorf("pipeline.max_keyframes must be at least 1")
	}
	validPreferences := map[string]bool{"auto": true, "fast": true, "accurate": true}
	if !validPreferences[c.Pipeline.STTPreferenceDefault] {
		return fmt.Errorf("pipeline.stt_preference_default must be one of: auto, fast, accurate")
	}

	if c.Retention.StaleSessionSec < 1 {
		return fmt.Errorf("retention.stale_session_sec must be at least 1")
	}

	if c.FFmpeg.FFmpegPath == "" {
		return fmt.Errorf("ffmpeg.ffmpeg_path is required")
	}
	if c.FFmpeg.FFprobePath == "" {
		return fmt.Errorf("ffmpeg.ffprobe_path is required")
	}
	if c.FFmpeg.KeyframeDedupThreshold < 0 {
		return fmt.Errorf("ffmpeg.keyframe_dedup_hamming_threshold must not be negative")
	}

	if c.STT.LocalBinaryPath == "" && c.STT.Remote.BaseURL == "" {
		return fmt.Errorf("stt: at least one of local_binary_path or remote.base_url is required")
	}
	if err := c.STT.Remote.validate("stt.remote"); err != nil {
		return err
	}

	if c.LLM.Remote.BaseURL == "" {
		return fmt.Errorf("llm.remote.base_url is required")
	}
	if err := c.LLM.Remote.validate("llm.remote"); err != nil {
		return err
	}

	return nil
}

// validate checks a RemoteConfig that has already been determined to be in
// use (a non-empty base_url), rejecting timeouts/thresholds that would make
// the circuit breaker or HTTP client misbehave.
func (r RemoteConfig) validate(field string) error {
	if r.BaseURL == "" {
		return nil
	}
	if r.TimeoutSec < 1 {
		return fmt.Errorf("%s.timeout_sec must be at least 1", field)
	}
	if r.BreakerThreshold < 1 {
		return fmt.Errorf("%s.breaker_threshold must be at least 1", field)
	}
	if r.BreakerCooldownSec < 1 {
		return fmt.Errorf("%s.breaker_cooldown_sec must be at least 1", field)
	}
	return nil
}

// SessionsDir returns the full path to the session artifact root.
func (c *StorageConfig) SessionsDir() string {
	return c.DataDir
}

// StageTimeout returns the configured timeout for a named stage, falling back to def.
func (c *PipelineConfig) StageTimeout(stage string, def time.Duration) time.Duration {
	if secs, ok := c.StageTimeouts[stage]; ok && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return def
}

// ConcurrencyFor returns the configured admission cap for a named adapter capability.
func (c *AdaptersConfig) ConcurrencyFor(capability string, def int) int {
	if n, ok := c.Concurrency[capability]; ok && n > 0 {
		return n
	}
	return def
}
