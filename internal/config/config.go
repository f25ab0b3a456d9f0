package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/ehsanking/elahe-messenger/internal/crypto"
)

const ConfigFileName = "messenger.json"

// Atomic pointer to the active configuration.
var atomicConfig atomic.Pointer[Config]

// GetConfig returns the currently active configuration.
func GetConfig() *Config {
	return atomicConfig.Load()
}

// SetConfig sets the active configuration.
func SetConfig(cfg *Config) {
	atomicConfig.Store(cfg)
}

// ReloadConfig reloads the configuration from path and updates the atomic config.
func ReloadConfig(path string) (*Config, error) {
	newCfg, err := LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config for reload: %w", err)
	}
	SetConfig(newCfg)
	return newCfg, nil
}

// LogConfig controls logger construction.
type LogConfig struct {
	Level      string `json:"level" yaml:"level"`
	File       string `json:"file,omitempty" yaml:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty" yaml:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty" yaml:"max_backups,omitempty"`
}

type Config struct {
	Transport          string            `json:"transport" yaml:"transport"`
	URL                string            `json:"url" yaml:"url"`
	Key                string            `json:"key,omitempty" yaml:"key,omitempty"` // URL-safe base64
	Cipher             string            `json:"cipher" yaml:"cipher"`
	PollInterval       Duration          `json:"poll_interval" yaml:"poll_interval"`
	HeartbeatInterval  Duration          `json:"heartbeat_interval" yaml:"heartbeat_interval"`
	ConnectTimeout     Duration          `json:"connect_timeout" yaml:"connect_timeout"`
	BufferSize         int               `json:"buffer_size" yaml:"buffer_size"`
	DNSServer          string            `json:"dns_server,omitempty" yaml:"dns_server,omitempty"`
	ProxyURL           string            `json:"proxy_url,omitempty" yaml:"proxy_url,omitempty"`
	InsecureSkipVerify bool              `json:"insecure_skip_verify,omitempty" yaml:"insecure_skip_verify,omitempty"`
	Masquerade         bool              `json:"masquerade,omitempty" yaml:"masquerade,omitempty"`
	Headers            map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	StatusListen       string            `json:"status_listen,omitempty" yaml:"status_listen,omitempty"`
	Log                LogConfig         `json:"log" yaml:"log"`
}

// Defaults returns a configuration with every optional field filled in.
func Defaults() *Config {
	return &Config{
		Transport:         "http",
		Cipher:            crypto.AESGCM,
		PollInterval:      Duration(100 * time.Millisecond),
		HeartbeatInterval: Duration(5 * time.Second),
		ConnectTimeout:    Duration(10 * time.Second),
		BufferSize:        4096,
		StatusListen:      "127.0.0.1:9180",
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// Interval is the send interval for the configured transport.
func (c *Config) Interval() time.Duration {
	if c.Transport == "websocket" {
		return c.HeartbeatInterval.Std()
	}
	return c.PollInterval.Std()
}

// KeyBytes decodes the shared key.
func (c *Config) KeyBytes() ([]byte, error) {
	if c.Key == "" {
		return nil, nil
	}
	return crypto.DecodeBase64Key(c.Key)
}

// Validate reports the first problem that would stop the agent from starting.
func (c *Config) Validate() error {
	u, err := url.Parse(c.URL)
	if err != nil || c.URL == "" {
		return fmt.Errorf("url %q is not a valid URL", c.URL)
	}
	switch c.Transport {
	case "http":
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("http transport needs an http(s) url, got %q", c.URL)
		}
	case "websocket":
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("websocket transport needs a ws(s) url, got %q", c.URL)
		}
	default:
		return fmt.Errorf("unknown transport %q (want http or websocket)", c.Transport)
	}

	switch c.Cipher {
	case crypto.None:
	case crypto.AESGCM, crypto.ChaCha20Poly1305:
		key, err := c.KeyBytes()
		if err != nil {
			return fmt.Errorf("invalid key: %w", err)
		}
		if len(key) != crypto.KeySize {
			return fmt.Errorf("key must decode to %d bytes, got %d", crypto.KeySize, len(key))
		}
	default:
		return fmt.Errorf("unknown cipher %q", c.Cipher)
	}

	if c.PollInterval <= 0 || c.HeartbeatInterval <= 0 || c.ConnectTimeout <= 0 {
		return fmt.Errorf("intervals and timeouts must be positive")
	}
	if c.BufferSize <= 0 || c.BufferSize > 1<<20 {
		return fmt.Errorf("buffer_size %d out of range", c.BufferSize)
	}
	if c.ProxyURL != "" {
		if _, err := url.Parse(c.ProxyURL); err != nil {
			return fmt.Errorf("invalid proxy_url: %w", err)
		}
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	return nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// SaveConfig writes cfg to path (ConfigFileName when empty), as YAML for
// .yaml/.yml paths and JSON otherwise.
func SaveConfig(path string, cfg *Config) error {
	if path == "" {
		path = ConfigFileName
	}
	var data []byte
	var err error
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// LoadConfig reads path (ConfigFileName when empty) on top of Defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = ConfigFileName
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Defaults()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}
