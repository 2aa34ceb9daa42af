// Package config loads and validates the gateway configuration: a YAML file
// for service settings, with backend credentials taken from the environment
// (a .env file is honored in development).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/voyplan/voice-gateway/stt"
)

// Config is the complete gateway configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Backend  BackendConfig  `yaml:"backend"`
	Audio    AudioConfig    `yaml:"audio"`
	Polling  PollingConfig  `yaml:"polling"`
	Consumer ConsumerConfig `yaml:"consumer"`
	Auth     AuthConfig     `yaml:"auth"`
}

// ServerConfig configures the inbound HTTP/websocket surface.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// BackendConfig configures the remote transcription service. Credentials
// come from IFLYTEK_APPID, IFLYTEK_API_KEY, and IFLYTEK_API_SECRET.
type BackendConfig struct {
	Strategy      string `yaml:"strategy"` // batch | polling | streaming
	UploadHost    string `yaml:"upload_host"`
	UploadPath    string `yaml:"upload_path"`
	GetResultPath string `yaml:"get_result_path"`
	StreamURL     string `yaml:"stream_url"`
	Language      string `yaml:"language"`
	FFmpegPath    string `yaml:"ffmpeg_path"`

	AppID     string `yaml:"-"`
	APIKey    string `yaml:"-"`
	APISecret string `yaml:"-"`
}

// AudioConfig configures capture and transcoding.
type AudioConfig struct {
	CaptureRate   int `yaml:"capture_rate"`    // client sample rate
	FrameSize     int `yaml:"frame_size"`      // samples per backend frame
	MinDurationMS int `yaml:"min_duration_ms"` // shortest accepted recording
}

// PollingConfig bounds the upload-and-poll conversation.
type PollingConfig struct {
	UploadTimeoutSec int `yaml:"upload_timeout_sec"`
	PollTimeoutSec   int `yaml:"poll_timeout_sec"`
	PollIntervalSec  int `yaml:"poll_interval_sec"`
	MaxPolls         int `yaml:"max_polls"`
}

// ConsumerConfig configures the downstream expense consumer. The LLM key
// comes from DASHSCOPE_API_KEY.
type ConsumerConfig struct {
	ExpenseEndpoint string `yaml:"expense_endpoint"`
	LLMBaseURL      string `yaml:"llm_base_url"`
	LLMModel        string `yaml:"llm_model"`

	LLMAPIKey string `yaml:"-"`
}

// AuthConfig configures route authentication. The secret comes from
// AUTH_JWT_SECRET.
type AuthConfig struct {
	JWTSecret string `yaml:"-"`
}

// Load reads the YAML file at path, applies defaults, pulls credentials from
// the environment, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":3000"
	}
	if c.Backend.Strategy == "" {
		c.Backend.Strategy = string(stt.StrategyPollingUpload)
	}
	if c.Backend.UploadHost == "" {
		c.Backend.UploadHost = "raasr.xfyun.cn"
	}
	if c.Backend.UploadPath == "" {
		c.Backend.UploadPath = "/v2/api/upload"
	}
	if c.Backend.GetResultPath == "" {
		c.Backend.GetResultPath = "/v2/api/getResult"
	}
	if c.Backend.StreamURL == "" {
		c.Backend.StreamURL = "wss://iat-api.xfyun.cn/v2/iat"
	}
	if c.Backend.Language == "" {
		c.Backend.Language = "cn"
	}
	if c.Audio.CaptureRate == 0 {
		c.Audio.CaptureRate = 48000
	}
	if c.Audio.FrameSize == 0 {
		c.Audio.FrameSize = 640
	}
	if c.Audio.MinDurationMS == 0 {
		c.Audio.MinDurationMS = 500
	}
	if c.Polling.UploadTimeoutSec == 0 {
		c.Polling.UploadTimeoutSec = 120
	}
	if c.Polling.PollTimeoutSec == 0 {
		c.Polling.PollTimeoutSec = 10
	}
	if c.Polling.PollIntervalSec == 0 {
		c.Polling.PollIntervalSec = 5
	}
	if c.Polling.MaxPolls == 0 {
		c.Polling.MaxPolls = 20
	}
	if c.Consumer.LLMBaseURL == "" {
		c.Consumer.LLMBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	}
	if c.Consumer.LLMModel == "" {
		c.Consumer.LLMModel = "qwen-turbo"
	}
}

func (c *Config) applyEnv() {
	c.Backend.AppID = os.Getenv("IFLYTEK_APPID")
	c.Backend.APIKey = os.Getenv("IFLYTEK_API_KEY")
	c.Backend.APISecret = os.Getenv("IFLYTEK_API_SECRET")
	c.Consumer.LLMAPIKey = os.Getenv("DASHSCOPE_API_KEY")
	c.Auth.JWTSecret = os.Getenv("AUTH_JWT_SECRET")
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Backend.Validate(); err != nil {
		return fmt.Errorf("backend config: %w", err)
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.Polling.Validate(); err != nil {
		return fmt.Errorf("polling config: %w", err)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth config: AUTH_JWT_SECRET must be set")
	}
	return nil
}

// Validate validates backend settings.
func (b *BackendConfig) Validate() error {
	if !stt.Strategy(b.Strategy).Valid() {
		return fmt.Errorf("strategy must be one of [batch, polling, streaming], got %q", b.Strategy)
	}
	if b.AppID == "" || b.APISecret == "" {
		return fmt.Errorf("IFLYTEK_APPID and IFLYTEK_API_SECRET must be set")
	}
	if stt.Strategy(b.Strategy) == stt.StrategyStreamingSocket && b.APIKey == "" {
		return fmt.Errorf("IFLYTEK_API_KEY must be set for the streaming strategy")
	}
	return nil
}

// Validate validates audio settings.
func (a *AudioConfig) Validate() error {
	if a.CaptureRate < 8000 {
		return fmt.Errorf("capture_rate must be at least 8000 Hz, got %d", a.CaptureRate)
	}
	if a.FrameSize < 160 || a.FrameSize > 3200 {
		return fmt.Errorf("frame_size must be between 160 and 3200 samples, got %d", a.FrameSize)
	}
	if a.MinDurationMS < 0 {
		return fmt.Errorf("min_duration_ms cannot be negative, got %d", a.MinDurationMS)
	}
	return nil
}

// Validate validates polling settings.
func (p *PollingConfig) Validate() error {
	if p.UploadTimeoutSec < 1 {
		return fmt.Errorf("upload_timeout_sec must be at least 1, got %d", p.UploadTimeoutSec)
	}
	if p.PollTimeoutSec < 1 {
		return fmt.Errorf("poll_timeout_sec must be at least 1, got %d", p.PollTimeoutSec)
	}
	if p.PollIntervalSec < 1 {
		return fmt.Errorf("poll_interval_sec must be at least 1, got %d", p.PollIntervalSec)
	}
	if p.MaxPolls < 1 {
		return fmt.Errorf("max_polls must be at least 1, got %d", p.MaxPolls)
	}
	return nil
}

// Strategy returns the configured backend strategy.
func (c *Config) Strategy() stt.Strategy {
	return stt.Strategy(c.Backend.Strategy)
}

// MinDuration returns the minimum recording duration.
func (a *AudioConfig) MinDuration() time.Duration {
	return time.Duration(a.MinDurationMS) * time.Millisecond
}

// UploadTimeout returns the upload request bound.
func (p *PollingConfig) UploadTimeout() time.Duration {
	return time.Duration(p.UploadTimeoutSec) * time.Second
}

// PollTimeout returns the per-poll request bound.
func (p *PollingConfig) PollTimeout() time.Duration {
	return time.Duration(p.PollTimeoutSec) * time.Second
}

// PollInterval returns the sleep between polls.
func (p *PollingConfig) PollInterval() time.Duration {
	return time.Duration(p.PollIntervalSec) * time.Second
}
