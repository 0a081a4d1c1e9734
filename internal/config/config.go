package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete m2proxy configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Ingest  IngestConfig  `yaml:"ingest"`
	Pool    PoolConfig    `yaml:"pool"`
	Output  OutputConfig  `yaml:"output"`
	Logging LogConfig     `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type ServerConfig struct {
	Address      string   `yaml:"address"`
	HTTP2        bool     `yaml:"http2"` // h2c on the plaintext listener
	Compress     bool     `yaml:"compress"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
	IdleTimeout  Duration `yaml:"idle_timeout"`
}

// IngestConfig controls how raw Mongrel2 messages reach the decoder.
type IngestConfig struct {
	WebSocketPath  string `yaml:"websocket_path"` // empty disables the websocket endpoint
	FrameAddress   string `yaml:"frame_address"`  // TCP address for framed messages, empty disables
	MaxMessageSize int    `yaml:"max_message_size"`
}

type PoolConfig struct {
	Workers       int      `yaml:"workers"`
	QueueSize     int      `yaml:"queue_size"`
	SubmitTimeout Duration `yaml:"submit_timeout"`
}

// OutputConfig selects where decoded requests go.
type OutputConfig struct {
	Format   string `yaml:"format"`   // frame, json
	Target   string `yaml:"target"`   // stdout, stderr, or a file path
	Compress bool   `yaml:"compress"` // snappy request bodies in frame output
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Duration is a time.Duration that supports YAML string unmarshaling.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads config from a YAML file, applying defaults for missing values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config data on top of Default and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}
	if c.Pool.Workers < 1 {
		return fmt.Errorf("pool.workers must be >= 1, got %d", c.Pool.Workers)
	}
	if c.Pool.QueueSize < 0 {
		return fmt.Errorf("pool.queue_size must be >= 0, got %d", c.Pool.QueueSize)
	}
	if c.Ingest.MaxMessageSize < 0 {
		return fmt.Errorf("ingest.max_message_size must be >= 0, got %d", c.Ingest.MaxMessageSize)
	}
	if c.Ingest.WebSocketPath != "" && c.Ingest.WebSocketPath[0] != '/' {
		return fmt.Errorf("ingest.websocket_path must start with '/', got %q", c.Ingest.WebSocketPath)
	}
	if c.Ingest.WebSocketPath == "" && c.Ingest.FrameAddress == "" {
		return fmt.Errorf("at least one of ingest.websocket_path or ingest.frame_address is required")
	}

	validFormats := map[string]bool{"frame": true, "json": true}
	if !validFormats[c.Output.Format] {
		return fmt.Errorf("output.format must be 'frame' or 'json', got %q", c.Output.Format)
	}
	if c.Output.Target == "" {
		return fmt.Errorf("output.target is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}

	if c.Metrics.Enabled && c.Metrics.Path == c.Ingest.WebSocketPath {
		return fmt.Errorf("metrics.path and ingest.websocket_path must differ")
	}
	return nil
}
