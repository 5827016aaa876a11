package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration for the call client.
type Config struct {
	SignalingURL string `mapstructure:"signaling_url"`
	Identity     string `mapstructure:"identity"`

	STUNServers []string `mapstructure:"stun_servers"`

	// OpenTimeout bounds how long we wait for the signaling server to
	// acknowledge our identity. CallTimeout bounds how long an outgoing
	// call may wait for the first remote track.
	OpenTimeout time.Duration `mapstructure:"open_timeout"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`

	FakeMedia   bool `mapstructure:"fake_media"`
	VideoWidth  int  `mapstructure:"video_width"`
	VideoHeight int  `mapstructure:"video_height"`
	FrameRate   int  `mapstructure:"frame_rate"`

	OutDir   string `mapstructure:"out_dir"`
	LogLevel string `mapstructure:"log_level"`
}

// Load reads configuration from an optional yaml file and PEERCALL_*
// environment variables, falling back to defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("signaling_url", "ws://localhost:9000")
	v.SetDefault("identity", "")
	v.SetDefault("stun_servers", []string{
		"stun:stun.l.google.com:19302",
		"stun:stun1.l.google.com:19302",
	})
	v.SetDefault("open_timeout", "15s")
	v.SetDefault("call_timeout", "15s")
	v.SetDefault("fake_media", false)
	v.SetDefault("video_width", 640)
	v.SetDefault("video_height", 480)
	v.SetDefault("frame_rate", 30)
	v.SetDefault("out_dir", "")
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix("PEERCALL")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the session cannot run with.
func (c *Config) Validate() error {
	if c.SignalingURL == "" {
		return fmt.Errorf("signaling_url must not be empty")
	}
	if c.OpenTimeout <= 0 {
		return fmt.Errorf("open_timeout must be positive, got %s", c.OpenTimeout)
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("call_timeout must be positive, got %s", c.CallTimeout)
	}
	if c.VideoWidth <= 0 || c.VideoHeight <= 0 {
		return fmt.Errorf("video dimensions must be positive, got %dx%d", c.VideoWidth, c.VideoHeight)
	}
	if c.FrameRate <= 0 {
		return fmt.Errorf("frame_rate must be positive, got %d", c.FrameRate)
	}
	return nil
}
