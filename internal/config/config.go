package config

import (
	"fmt"
	"time"
)

type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	RPC       RPCConfig       `mapstructure:"rpc" yaml:"rpc"`
	Staging   StagingConfig   `mapstructure:"staging" yaml:"staging"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
}

type LoggerConfig struct {
	Level       string   `mapstructure:"level" yaml:"level"`
	Format      string   `mapstructure:"format" yaml:"format"`
	OutputPaths []string `mapstructure:"output_paths" yaml:"output_paths"`
}

// RPCConfig controls how the ledger node is reached.
type RPCConfig struct {
	Endpoint          string        `mapstructure:"endpoint" yaml:"endpoint"`
	Commitment        string        `mapstructure:"commitment" yaml:"commitment"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryDelay        time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	BurstSize         int           `mapstructure:"burst_size" yaml:"burst_size"`
	MinInterval       time.Duration `mapstructure:"min_interval" yaml:"min_interval"`
	BlockPrivate      bool          `mapstructure:"block_private" yaml:"block_private"`
}

type StagingConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// DatabaseConfig configures the optional scan history. An empty DSN disables it.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled"`
	ServiceName string  `mapstructure:"service_name" yaml:"service_name"`
	Endpoint    string  `mapstructure:"endpoint" yaml:"endpoint"`
	SampleRate  float64 `mapstructure:"sample_rate" yaml:"sample_rate"`
}

const (
	DefaultEndpoint   = "https://api.mainnet-beta.solana.com"
	DefaultCommitment = "finalized"
)

// Default returns the configuration used when neither flags nor environment say otherwise.
func Default() Config {
	return Config{
		Logger: LoggerConfig{
			Level:       "warn",
			Format:      "console",
			OutputPaths: []string{"stderr"},
		},
		RPC: RPCConfig{
			Endpoint:          DefaultEndpoint,
			Commitment:        DefaultCommitment,
			Timeout:           30 * time.Second,
			MaxRetries:        0,
			RetryDelay:        500 * time.Millisecond,
			RequestsPerSecond: 5,
			BurstSize:         1,
		},
		Database: DatabaseConfig{
			Driver: "sqlite3",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "idlscan",
			Endpoint:    "localhost:4318",
			SampleRate:  1.0,
		},
	}
}

// Validate rejects settings the scanner cannot run with.
func (c *Config) Validate() error {
	if c.RPC.Endpoint == "" {
		return fmt.Errorf("rpc endpoint is required")
	}
	switch c.RPC.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		return fmt.Errorf("unsupported commitment %q", c.RPC.Commitment)
	}
	if c.RPC.MaxRetries < 0 {
		return fmt.Errorf("rpc max_retries must be >= 0, got %d", c.RPC.MaxRetries)
	}
	if c.RPC.MinInterval < 0 {
		return fmt.Errorf("rpc min_interval must be >= 0")
	}
	if c.RPC.RequestsPerSecond <= 0 {
		return fmt.Errorf("rpc requests_per_second must be > 0")
	}
	if c.Database.DSN != "" {
		switch c.Database.Driver {
		case "sqlite3", "postgres":
		default:
			return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
		}
	}
	return nil
}
