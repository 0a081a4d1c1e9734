package config

import "time"

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:      "127.0.0.1:9990",
			HTTP2:        false,
			Compress:     true,
			ReadTimeout:  Duration(30 * time.Second),
			WriteTimeout: Duration(60 * time.Second),
			IdleTimeout:  Duration(120 * time.Second),
		},
		Ingest: IngestConfig{
			WebSocketPath:  "/m2",
			FrameAddress:   "",
			MaxMessageSize: 4 * 1024 * 1024,
		},
		Pool: PoolConfig{
			Workers:       4,
			QueueSize:     1024,
			SubmitTimeout: Duration(5 * time.Second),
		},
		Output: OutputConfig{
			Format: "frame",
			Target: "stdout",
		},
		Logging: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}
