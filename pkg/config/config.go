// Package config loads pipeoffload settings from an optional YAML file, an optional .env file
// and PIPEOFFLOAD_* environment variables, and holds the process-wide offload switches.
package config

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/jzx17/pipeoffload/internal/logger"
)

// EnvPrefix prefixes every environment variable read by Load
const EnvPrefix = "PIPEOFFLOAD"

// Environment variables for the two process-wide switches.
const (
	EnvOffloadImmediate = EnvPrefix + "_OFFLOAD_IMMEDIATE"
	EnvNeverRevert      = EnvPrefix + "_NEVER_REVERT"
)

// Config holds all pipeoffload settings
type Config struct {
	// Offload attempts acceleration of eligible parallel pipelines
	Offload bool `mapstructure:"offload" yaml:"offload"`

	// NeverRevert turns every fallback to baseline evaluation into an error
	NeverRevert bool `mapstructure:"never_revert" yaml:"never_revert"`

	// CacheCapacity bounds the kernel cache; 0 means unbounded
	CacheCapacity int `mapstructure:"cache_capacity" yaml:"cache_capacity" validate:"gte=0"`

	// Workers sizes the pools used by parallel evaluation; 0 means GOMAXPROCS
	Workers int `mapstructure:"workers" yaml:"workers" validate:"gte=0,lte=4096"`

	Log logger.Config `mapstructure:"log" yaml:"log"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	cfg := &Config{}
	cfg.Log.ApplyDefaults()
	cfg.Log.Timestamp = true
	return cfg
}

// LoaderConfig holds optional file locations for Load
type LoaderConfig struct {
	ConfigFile string
	EnvFile    string
}

// LoaderOption is a functional option for Load
type LoaderOption func(*LoaderConfig)

// WithConfigFile reads settings from a YAML file before the environment
func WithConfigFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.ConfigFile = path }
}

// WithEnvFile loads a .env file into the environment before reading it.
// Variables already set in the environment win.
func WithEnvFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.EnvFile = path }
}

// Load builds a validated Config. Environment variables override the config file.
func Load(opts ...LoaderOption) (*Config, error) {
	var lc LoaderConfig
	for _, opt := range opts {
		opt(&lc)
	}

	if lc.EnvFile != "" {
		if _, err := os.Stat(lc.EnvFile); err == nil {
			if err := godotenv.Load(lc.EnvFile); err != nil {
				return nil, fmt.Errorf("failed to load env file %s: %w", lc.EnvFile, err)
			}
		}
	}

	v := viper.New()
	setDefaults(v, Default())

	if lc.ConfigFile != "" {
		v.SetConfigFile(lc.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", lc.ConfigFile, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("offload", EnvOffloadImmediate); err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", EnvOffloadImmediate, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("offload", d.Offload)
	v.SetDefault("never_revert", d.NeverRevert)
	v.SetDefault("cache_capacity", d.CacheCapacity)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.output", d.Log.Output)
	v.SetDefault("log.no_color", d.Log.NoColor)
	v.SetDefault("log.timestamp", d.Log.Timestamp)
	v.SetDefault("log.caller", d.Log.Caller)
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validate checks every field constraint
func (c *Config) Validate() error {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
