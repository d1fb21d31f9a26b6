// Package config loads and validates daemon configuration from
// defaults, an optional YAML file, PIPEWATCH_* environment variables
// and command-line flags, in increasing precedence.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all configuration.
type Config struct {
	URL         string       `mapstructure:"url"`
	Service     string       `mapstructure:"service"`
	Limit       int          `mapstructure:"limit"`
	Lookback    string       `mapstructure:"lookback"`
	PrettyPrint bool         `mapstructure:"pretty_print"`
	Daemon      DaemonConfig `mapstructure:"daemon"`
}

// DaemonConfig holds the metrics daemon configuration.
type DaemonConfig struct {
	FrequencyMs     int           `mapstructure:"frequency_ms"`
	Port            int           `mapstructure:"port"`
	RecurseParents  bool          `mapstructure:"recurse_parents"`
	RecurseChildren bool          `mapstructure:"recurse_children"`
	IncludeUnknown  bool          `mapstructure:"include_unknown"`
	MaxHops         int           `mapstructure:"max_hops"`
	FetchTimeout    time.Duration `mapstructure:"fetch_timeout"`
	MaxConcurrency  int           `mapstructure:"max_concurrency"`
	RateLimitRPS    float64       `mapstructure:"rate_limit_rps"`
	ShutdownGrace   time.Duration `mapstructure:"shutdown_grace"`
}

// Frequency returns the tick interval.
func (d DaemonConfig) Frequency() time.Duration {
	return time.Duration(d.FrequencyMs) * time.Millisecond
}

// flagKeys maps flag names to config keys for commands that register
// them. Flags the running command does not define are skipped.
var flagKeys = map[string]string{
	"url":              "url",
	"service":          "service",
	"limit":            "limit",
	"lookback":         "lookback",
	"pretty-print":     "pretty_print",
	"frequency":        "daemon.frequency_ms",
	"port":             "daemon.port",
	"recurse-parents":  "daemon.recurse_parents",
	"recurse-children": "daemon.recurse_children",
	"include-unknown":  "daemon.include_unknown",
	"max-hops":         "daemon.max_hops",
}

// Load loads configuration. flags may be nil.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("pipewatch")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/pipewatch/")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PIPEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("url", "http://localhost:16686")
	v.SetDefault("service", "")
	v.SetDefault("limit", 50)
	v.SetDefault("lookback", "1h")
	v.SetDefault("pretty_print", false)

	v.SetDefault("daemon.frequency_ms", 5000)
	v.SetDefault("daemon.port", 9186)
	v.SetDefault("daemon.recurse_parents", false)
	v.SetDefault("daemon.recurse_children", false)
	v.SetDefault("daemon.include_unknown", false)
	v.SetDefault("daemon.max_hops", 16)
	v.SetDefault("daemon.fetch_timeout", 30*time.Second)
	v.SetDefault("daemon.max_concurrency", 4)
	v.SetDefault("daemon.rate_limit_rps", 10.0)
	v.SetDefault("daemon.shutdown_grace", 10*time.Second)
}

// validateLookback checks the lookback is a duration the backend will
// accept. The backend additionally understands a day suffix that
// time.ParseDuration does not.
func validateLookback(lookback string) error {
	if lookback == "" {
		return fmt.Errorf("lookback must not be empty")
	}
	if n, ok := strings.CutSuffix(lookback, "d"); ok {
		if days, err := strconv.Atoi(n); err == nil && days > 0 {
			return nil
		}
		return fmt.Errorf("invalid lookback %q", lookback)
	}
	d, err := time.ParseDuration(lookback)
	if err != nil || d <= 0 {
		return fmt.Errorf("invalid lookback %q", lookback)
	}
	return nil
}

// Validate rejects configurations the daemon cannot run with. The only
// fatal error class; checked once before the loop starts.
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("url must not be empty")
	}
	if c.Limit <= 0 {
		return fmt.Errorf("limit must be positive, got %d", c.Limit)
	}
	if err := validateLookback(c.Lookback); err != nil {
		return err
	}
	if c.Daemon.FrequencyMs <= 0 {
		return fmt.Errorf("daemon frequency must be positive, got %dms", c.Daemon.FrequencyMs)
	}
	if c.Daemon.Port < 1 || c.Daemon.Port > 65535 {
		return fmt.Errorf("daemon port out of range: %d", c.Daemon.Port)
	}
	if c.Daemon.MaxHops <= 0 {
		return fmt.Errorf("daemon max_hops must be positive, got %d", c.Daemon.MaxHops)
	}
	if c.Daemon.MaxConcurrency <= 0 {
		return fmt.Errorf("daemon max_concurrency must be positive, got %d", c.Daemon.MaxConcurrency)
	}
	if c.Daemon.FetchTimeout <= 0 {
		return fmt.Errorf("daemon fetch_timeout must be positive, got %s", c.Daemon.FetchTimeout)
	}
	if c.Daemon.ShutdownGrace < 0 {
		return fmt.Errorf("daemon shutdown_grace must not be negative, got %s", c.Daemon.ShutdownGrace)
	}
	return nil
}
