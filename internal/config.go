package internal

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the client connection settings.
type Config struct {
	Host        string
	Port        int
	DialTimeout time.Duration
}

const DEFAULT_HOST = "127.0.0.1"
const DEFAULT_PORT = 6969
const DEFAULT_DIAL_TIMEOUT = 5 * time.Second

func DefaultConfig() *Config {
	return &Config{
		Host:        DEFAULT_HOST,
		Port:        DEFAULT_PORT,
		DialTimeout: DEFAULT_DIAL_TIMEOUT,
	}
}

const DEFAULT_DIRECTORY = "./data"
const DEFAULT_MAX_SEGMENT_SIZE_MB = 64
const DEFAULT_LOG_LEVEL = "info"

// ServerConfig is everything the server binary needs to open a store and
// listen. It can be loaded from a YAML file and overridden by flags.
type ServerConfig struct {
	Directory        string `yaml:"dir"`
	MaxSegmentSizeMB int    `yaml:"max_segment_size_mb"`
	Port             int    `yaml:"port"`
	SyncOnWrite      bool   `yaml:"sync_on_write"`
	LogLevel         string `yaml:"log_level"`
}

func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Directory:        DEFAULT_DIRECTORY,
		MaxSegmentSizeMB: DEFAULT_MAX_SEGMENT_SIZE_MB,
		Port:             DEFAULT_PORT,
		LogLevel:         DEFAULT_LOG_LEVEL,
	}
}

// LoadServerConfig reads path on top of the defaults. Keys missing from the
// file keep their default values.
func LoadServerConfig(path string) (*ServerConfig, error) {
	cfg := DefaultServerConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	return cfg, nil
}

func (c *ServerConfig) Validate() error {
	if c.Directory == "" {
		return fmt.Errorf("dir must not be empty")
	}
	if c.MaxSegmentSizeMB <= 0 {
		return fmt.Errorf("max_segment_size_mb must be positive, got %d", c.MaxSegmentSizeMB)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.Port)
	}
	return nil
}
