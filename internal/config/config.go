package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/skypro1111/stream-diarizer/internal/audio"
)

// Environment variables that override secrets from the config file
const (
	EnvTranscriptionAPIKey = "TRANSCRIPTION_API_KEY"
	EnvDiarizationAPIKey   = "DIARIZATION_API_KEY"
	EnvHTTPAuthSecret      = "HTTP_AUTH_SECRET"
)

// Transcription backends
const (
	BackendHTTP   = "http"
	BackendOpenAI = "openai"
)

// Config represents the complete service configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	HTTP          HTTPConfig          `yaml:"http"`
	Audio         AudioConfig         `yaml:"audio"`
	Session       SessionConfig       `yaml:"session"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Diarization   DiarizationConfig   `yaml:"diarization"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig contains UDP server configuration
type ServerConfig struct {
	Enabled     bool   `yaml:"enabled"`
	UDPPort     int    `yaml:"udp_port"`
	BindAddress string `yaml:"bind_address"`
	BufferSize  int    `yaml:"buffer_size"`
	QueueSize   int    `yaml:"queue_size"`
	MaxSeqGap   int    `yaml:"max_sequence_gap"` // packets held back waiting for a missing one
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port       int    `yaml:"port"`
	Address    string `yaml:"address"`
	Enabled    bool   `yaml:"enabled"`
	AuthSecret string `yaml:"auth_secret"` // HS256 bearer secret, empty disables auth
	MaxBodyMB  int    `yaml:"max_body_mb"`
}

// AudioConfig contains chunking parameters
type AudioConfig struct {
	SampleRate      int     `yaml:"sample_rate"`
	ChunkDuration   float64 `yaml:"chunk_duration"`   // seconds
	OverlapDuration float64 `yaml:"overlap_duration"` // seconds
}

// SessionConfig contains streaming session parameters
type SessionConfig struct {
	DefaultLanguage  string `yaml:"default_language"`
	IdleTimeout      int    `yaml:"idle_timeout"` // seconds, 0 disables
	DropOverlapWords bool   `yaml:"drop_overlap_words"`
	EventBuffer      int    `yaml:"event_buffer"` // per-subscriber queue
}

// TranscriptionConfig contains transcription API configuration
type TranscriptionConfig struct {
	Backend       string  `yaml:"backend"`
	Endpoint      string  `yaml:"endpoint"`
	APIKey        string  `yaml:"api_key"`
	Model         string  `yaml:"model"`
	Timeout       int     `yaml:"timeout"` // seconds
	MaxRetries    int     `yaml:"max_retries"`
	MaxConcurrent int     `yaml:"max_concurrent"`
	RetryBackoff  float64 `yaml:"retry_backoff"` // seconds
}

// DiarizationConfig contains speaker segmentation API configuration
type DiarizationConfig struct {
	Endpoint       string         `yaml:"endpoint"`
	ConfigEndpoint string         `yaml:"config_endpoint"`
	APIKey         string         `yaml:"api_key"`
	Timeout        int            `yaml:"timeout"` // seconds
	Labels         map[int]string `yaml:"labels"`  // static id to label table
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"` // stdout, stderr or a file path
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Default returns a configuration with every field set to its default
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Enabled:     true,
			UDPPort:     5000,
			BindAddress: "0.0.0.0",
			BufferSize:  65536,
			QueueSize:   1000,
			MaxSeqGap:   16,
		},
		HTTP: HTTPConfig{
			Port:      8080,
			Address:   "0.0.0.0",
			Enabled:   true,
			MaxBodyMB: 32,
		},
		Audio: AudioConfig{
			SampleRate:      audio.DefaultSampleRate,
			ChunkDuration:   audio.DefaultChunkDuration.Seconds(),
			OverlapDuration: audio.DefaultOverlapDuration.Seconds(),
		},
		Session: SessionConfig{
			IdleTimeout: 60,
			EventBuffer: 64,
		},
		Transcription: TranscriptionConfig{
			Backend:       BackendHTTP,
			Endpoint:      "http://localhost:8000/transcribe",
			Timeout:       60,
			MaxRetries:    2,
			MaxConcurrent: 4,
			RetryBackoff:  1,
		},
		Diarization: DiarizationConfig{
			Endpoint:       "http://localhost:8000/segment",
			ConfigEndpoint: "http://localhost:8000/config",
			Timeout:        60,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}

// Load reads and parses the configuration file over the defaults, then
// applies environment overrides
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config.ApplyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// LoadDotEnv loads variables from the given .env files (".env" when none are
// given) into the process environment. Missing files are skipped and
// variables already set are not overwritten.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}

	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to stat env file %s: %w", f, err)
		}
		existing = append(existing, f)
	}
	if len(existing) == 0 {
		return nil
	}

	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load env files: %w", err)
	}
	return nil
}

// ApplyEnv overrides secrets with non-empty environment variables
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvTranscriptionAPIKey); v != "" {
		c.Transcription.APIKey = v
	}
	if v := os.Getenv(EnvDiarizationAPIKey); v != "" {
		c.Diarization.APIKey = v
	}
	if v := os.Getenv(EnvHTTPAuthSecret); v != "" {
		c.HTTP.AuthSecret = v
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Diarization.Validate(); err != nil {
		return fmt.Errorf("diarization config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if !s.Enabled {
		return nil
	}

	if s.UDPPort < 1 || s.UDPPort > 65535 {
		return fmt.Errorf("udp_port must be between 1 and 65535, got %d", s.UDPPort)
	}

	if s.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if s.BufferSize < 1024 {
		return fmt.Errorf("buffer_size must be at least 1024 bytes, got %d", s.BufferSize)
	}

	if s.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", s.QueueSize)
	}

	if s.MaxSeqGap < 0 {
		return fmt.Errorf("max_sequence_gap cannot be negative, got %d", s.MaxSeqGap)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}

		if h.MaxBodyMB < 1 {
			return fmt.Errorf("max_body_mb must be at least 1, got %d", h.MaxBodyMB)
		}
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate != audio.DefaultSampleRate {
		return fmt.Errorf("sample_rate must be %d Hz for the speech models, got %d", audio.DefaultSampleRate, a.SampleRate)
	}

	if err := a.Chunking().Validate(); err != nil {
		return err
	}

	return nil
}

// Validate validates session configuration
func (s *SessionConfig) Validate() error {
	if s.IdleTimeout < 0 {
		return fmt.Errorf("idle_timeout cannot be negative, got %d", s.IdleTimeout)
	}

	if s.EventBuffer < 1 {
		return fmt.Errorf("event_buffer must be at least 1, got %d", s.EventBuffer)
	}

	if len(s.DefaultLanguage) > 8 {
		return fmt.Errorf("default_language must be at most 8 bytes, got %q", s.DefaultLanguage)
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	switch t.Backend {
	case BackendHTTP:
		if t.Endpoint == "" {
			return fmt.Errorf("endpoint cannot be empty for the http backend")
		}
	case BackendOpenAI:
		if t.APIKey == "" {
			return fmt.Errorf("api_key cannot be empty for the openai backend")
		}
	default:
		return fmt.Errorf("backend must be 'http' or 'openai', got '%s'", t.Backend)
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", t.MaxRetries)
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	if t.RetryBackoff < 0 {
		return fmt.Errorf("retry_backoff cannot be negative, got %f", t.RetryBackoff)
	}

	return nil
}

// Validate validates diarization configuration
func (d *DiarizationConfig) Validate() error {
	if d.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if d.ConfigEndpoint == "" && len(d.Labels) == 0 {
		return fmt.Errorf("either config_endpoint or labels must be set")
	}

	for id, label := range d.Labels {
		if id < 0 {
			return fmt.Errorf("label id cannot be negative, got %d", id)
		}
		if strings.TrimSpace(label) == "" {
			return fmt.Errorf("label for id %d cannot be empty", id)
		}
	}

	if d.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", d.Timeout)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	if l.IsFile() {
		if l.MaxSizeMB < 1 {
			return fmt.Errorf("max_size_mb must be at least 1 for file output, got %d", l.MaxSizeMB)
		}
		if l.MaxBackups < 0 || l.MaxAgeDays < 0 {
			return fmt.Errorf("max_backups and max_age_days cannot be negative")
		}
	}

	return nil
}

// IsFile reports whether logs go to a rotated file rather than a stream
func (l *LoggingConfig) IsFile() bool {
	return l.Output != "" && l.Output != "stdout" && l.Output != "stderr"
}

// Chunking returns the chunk geometry for the scheduler
func (a *AudioConfig) Chunking() audio.ChunkingConfig {
	return audio.ChunkingConfig{
		SampleRate:      a.SampleRate,
		ChunkDuration:   a.GetChunkDuration(),
		OverlapDuration: a.GetOverlapDuration(),
	}
}

// GetChunkDuration returns the chunk duration as a time.Duration
func (a *AudioConfig) GetChunkDuration() time.Duration {
	return time.Duration(a.ChunkDuration * float64(time.Second))
}

// GetOverlapDuration returns the overlap duration as a time.Duration
func (a *AudioConfig) GetOverlapDuration() time.Duration {
	return time.Duration(a.OverlapDuration * float64(time.Second))
}

// GetIdleTimeoutDuration returns the session idle timeout as a time.Duration
func (s *SessionConfig) GetIdleTimeoutDuration() time.Duration {
	return time.Duration(s.IdleTimeout) * time.Second
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetRetryBackoffDuration returns the base retry delay as a time.Duration
func (t *TranscriptionConfig) GetRetryBackoffDuration() time.Duration {
	return time.Duration(t.RetryBackoff * float64(time.Second))
}

// GetTimeoutDuration returns the diarization timeout as a time.Duration
func (d *DiarizationConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(d.Timeout) * time.Second
}
