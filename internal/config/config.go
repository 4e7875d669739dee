package config

import "time"

// Config is the root configuration for a depthbook process.
type Config struct {
	Instance  InstanceConfig  `yaml:"instance"`
	Stream    StreamConfig    `yaml:"stream"`
	Presenter PresenterConfig `yaml:"presenter"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Recorder  RecorderConfig  `yaml:"recorder"`
	Database  DBConfig        `yaml:"database"`
	Log       LogConfig       `yaml:"log"`
}

// InstanceConfig identifies this process. The id doubles as the session id.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// StreamConfig holds the depth stream endpoint.
type StreamConfig struct {
	URL              string        `yaml:"url"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
}

// PresenterConfig controls book rendering to stdout.
type PresenterConfig struct {
	Enabled *bool `yaml:"enabled"` // nil means enabled
	Depth   int   `yaml:"depth"`   // Levels per side, 0 = all
}

// MetricsConfig holds the metrics and health HTTP server settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// RecorderConfig holds the top-of-book recorder settings.
type RecorderConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// PresenterEnabled reports whether the book should be rendered.
func (c *Config) PresenterEnabled() bool {
	return c.Presenter.Enabled == nil || *c.Presenter.Enabled
}
