// Package config loads labwizard configuration from labwizard.yml, with
// environment-variable overrides.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config is the labwizard configuration.
type Config struct {
	// Topology is the path to the hardware description file.
	Topology string `mapstructure:"topology"`

	Results ResultsConfig `mapstructure:"results"`
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
}

// ResultsConfig selects where completed measurements are saved.
type ResultsConfig struct {
	// Dir is the output directory for file savers.
	Dir string `mapstructure:"dir"`

	// Format is "json" or "csv".
	Format string `mapstructure:"format"`

	// DatabaseURL, when set, saves results to a database instead of files.
	DatabaseURL string `mapstructure:"database_url"`
}

// ServerConfig configures the wizard API server.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	// RedisAddr, when set, stores wizard sessions in Redis instead of
	// process memory.
	RedisAddr string `mapstructure:"redis_addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
}

// Addr returns the server listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load reads labwizard.yml from the working directory. A missing file is not
// an error; defaults apply.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("topology", "topology.yml")
	v.SetDefault("results.dir", "results")
	v.SetDefault("results.format", "json")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8100)
	v.SetDefault("log.level", "info")

	v.SetConfigName("labwizard")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("LABWIZARD")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read labwizard.yml: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	switch cfg.Results.Format {
	case "json", "csv":
	default:
		return fmt.Errorf("config: results.format must be json or csv, got %q", cfg.Results.Format)
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", cfg.Log.Level)
	}
	return nil
}
