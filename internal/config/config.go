// ABOUTME: Typed player configuration loaded through viper
// ABOUTME: Merges defaults, an optional YAML file, SENDSPIN_* environment variables and flags
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Sendspin/sendspin-core/pkg/stream"
	"github.com/spf13/viper"
)

const (
	DefaultOutput           = "malgo"
	DefaultWAVPath          = "sendspin.wav"
	DefaultFadeIn           = true
	DefaultDiscoveryTimeout = 10 * time.Second
	DefaultLogFile          = "sendspin-player.log"

	EnvPrefix = "SENDSPIN"
)

// Outputs lists the accepted playback backends.
var Outputs = []string{"malgo", "oto", "portaudio", "wav"}

var ErrNoSource = errors.New("config: url is required when discovery is disabled")

// Config holds all runtime options of the player.
type Config struct {
	// Source
	URL         string `mapstructure:"url"`          // http(s):// or ws(s):// endpoint, empty for mDNS
	ContentType string `mapstructure:"content-type"` // overrides the HTTP Content-Type
	NoDiscovery bool   `mapstructure:"no-discovery"`

	DiscoveryTimeout time.Duration `mapstructure:"discovery-timeout"`

	// Player identity
	Name     string `mapstructure:"name"`
	ClientID string `mapstructure:"client-id"`

	// Buffers
	InputBytes   int `mapstructure:"input-bytes"`
	OutputFrames int `mapstructure:"output-frames"`

	// Playback
	Output  string `mapstructure:"output"` // one of Outputs
	WAVPath string `mapstructure:"wav-path"`
	FadeIn  bool   `mapstructure:"fade-in"`
	Volume  int    `mapstructure:"volume"`

	// Diagnostics
	MetricsAddr string `mapstructure:"metrics-addr"`
	LogFile     string `mapstructure:"log-file"`
	Debug       bool   `mapstructure:"debug"`
}

// SetDefaults registers every key so environment variables resolve during
// Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("url", "")
	v.SetDefault("content-type", "")
	v.SetDefault("no-discovery", false)
	v.SetDefault("discovery-timeout", DefaultDiscoveryTimeout)
	v.SetDefault("name", "")
	v.SetDefault("client-id", "")
	v.SetDefault("input-bytes", stream.DefaultInputBytes)
	v.SetDefault("output-frames", stream.DefaultOutputFrames)
	v.SetDefault("output", DefaultOutput)
	v.SetDefault("wav-path", DefaultWAVPath)
	v.SetDefault("fade-in", DefaultFadeIn)
	v.SetDefault("volume", 100)
	v.SetDefault("metrics-addr", "")
	v.SetDefault("log-file", DefaultLogFile)
	v.SetDefault("debug", false)
}

// Load reads the optional config file and the environment into a validated
// Config. Flags must already be bound to v.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks option ranges. Buffer sizes against codec minimums are
// checked by stream.New.
func (c *Config) Validate() error {
	if c.URL == "" && c.NoDiscovery {
		return ErrNoSource
	}
	if c.URL != "" && !hasScheme(c.URL, "http://", "https://", "ws://", "wss://") {
		return fmt.Errorf("config: unsupported url scheme in %q", c.URL)
	}

	valid := false
	for _, o := range Outputs {
		if c.Output == o {
			valid = true
		}
	}
	if !valid {
		return fmt.Errorf("config: unknown output %q (want one of %s)", c.Output, strings.Join(Outputs, ", "))
	}
	if c.Output == "wav" && c.WAVPath == "" {
		return fmt.Errorf("config: wav output needs wav-path")
	}

	if c.InputBytes <= 0 || c.OutputFrames <= 0 {
		return fmt.Errorf("config: buffer sizes must be positive")
	}
	if c.Volume < 0 || c.Volume > 100 {
		return fmt.Errorf("config: volume %d out of range 0-100", c.Volume)
	}
	if c.DiscoveryTimeout <= 0 {
		return fmt.Errorf("config: discovery-timeout must be positive")
	}
	return nil
}

// IsWebSocket reports whether URL names a Sendspin server.
func (c *Config) IsWebSocket() bool {
	return IsWebSocketURL(c.URL)
}

// IsWebSocketURL reports whether url uses a WebSocket scheme.
func IsWebSocketURL(url string) bool {
	return hasScheme(url, "ws://", "wss://")
}

func hasScheme(url string, schemes ...string) bool {
	lower := strings.ToLower(url)
	for _, s := range schemes {
		if strings.HasPrefix(lower, s) {
			return true
		}
	}
	return false
}
