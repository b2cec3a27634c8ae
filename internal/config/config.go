// Package config loads and validates the voice service configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure for the voice service.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	Limits  LimitsConfig  `yaml:"limits"`
	Audio   AudioConfig   `yaml:"audio"`
	Speech  SpeechConfig  `yaml:"speech"`
	Survey  SurveyConfig  `yaml:"survey"`
	Logging LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	Host     string `yaml:"host"`
	HTTPPort int    `yaml:"http_port"`
}

type AuthConfig struct {
	// APISecret guards the token-issuing and admin endpoints.
	APISecret string `yaml:"api_secret"`

	// JWTSecret signs session tokens handed to relay clients.
	JWTSecret string `yaml:"jwt_secret"`

	// PeerSecret is the pre-shared credential for the telephony peer.
	PeerSecret string `yaml:"peer_secret"`

	// TokenExpiry bounds session token lifetime. Default: 1h.
	TokenExpiry time.Duration `yaml:"token_expiry"`
}

type LimitsConfig struct {
	// MaxSessions caps concurrently active sessions. Default: 10.
	MaxSessions int `yaml:"max_sessions"`

	// RequestsPerMinute caps admissions per client in any trailing
	// 60-second window. Default: 60.
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

type AudioConfig struct {
	// FFmpegPath points at the codec tool binary. When empty the tool
	// is resolved from PATH once at startup.
	FFmpegPath string `yaml:"ffmpeg_path"`

	// TranscodeTimeout bounds a single codec tool invocation.
	// Default: 30s.
	TranscodeTimeout time.Duration `yaml:"transcode_timeout"`
}

type SpeechConfig struct {
	// BaseURL is the speech engine endpoint.
	BaseURL string `yaml:"base_url"`

	// Timeout bounds one transcription or synthesis request.
	// Default: 60s.
	Timeout time.Duration `yaml:"timeout"`

	// DefaultConfidence is used when the engine reports none.
	// Default: 0.8.
	DefaultConfidence float64 `yaml:"default_confidence"`
}

type SurveyConfig struct {
	// BackendURL is the survey backend base URL.
	BackendURL string `yaml:"backend_url"`

	// ServiceSecret signs short-lived service-to-service tokens for
	// backend submission.
	ServiceSecret string `yaml:"service_secret"`

	TemplateID     string `yaml:"template_id"`
	HospitalID     string `yaml:"hospital_id"`
	TotalQuestions int    `yaml:"total_questions"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns a configuration with all defaults applied and no
// secrets set. Useful for tests and for the token subcommand.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Auth.TokenExpiry == 0 {
		cfg.Auth.TokenExpiry = time.Hour
	}
	if cfg.Limits.MaxSessions == 0 {
		cfg.Limits.MaxSessions = 10
	}
	if cfg.Limits.RequestsPerMinute == 0 {
		cfg.Limits.RequestsPerMinute = 60
	}
	if cfg.Audio.TranscodeTimeout == 0 {
		cfg.Audio.TranscodeTimeout = 30 * time.Second
	}
	if cfg.Speech.Timeout == 0 {
		cfg.Speech.Timeout = 60 * time.Second
	}
	if cfg.Speech.DefaultConfidence == 0 {
		cfg.Speech.DefaultConfidence = 0.8
	}
	if cfg.Survey.TotalQuestions == 0 {
		cfg.Survey.TotalQuestions = 5
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate rejects configurations that cannot serve traffic.
func (c *Config) Validate() error {
	if c.Limits.MaxSessions < 0 {
		return fmt.Errorf("config: limits.max_sessions must be >= 0")
	}
	if c.Limits.RequestsPerMinute < 0 {
		return fmt.Errorf("config: limits.requests_per_minute must be >= 0")
	}
	if c.Audio.TranscodeTimeout < 0 {
		return fmt.Errorf("config: audio.transcode_timeout must be >= 0")
	}
	if c.Speech.DefaultConfidence < 0 || c.Speech.DefaultConfidence > 1 {
		return fmt.Errorf("config: speech.default_confidence must be in [0,1]")
	}
	return nil
}
