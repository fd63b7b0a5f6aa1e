package logger

import "fmt"

// Config contains logging configuration.
type Config struct {
	Level     string `mapstructure:"level" yaml:"level" validate:"omitempty,oneof=trace debug info warn error fatal disabled"`
	Format    string `mapstructure:"format" yaml:"format" validate:"omitempty,oneof=json console pretty"`
	Output    string `mapstructure:"output" yaml:"output" validate:"omitempty,oneof=stdout stderr"`
	NoColor   bool   `mapstructure:"no_color" yaml:"no_color"`
	Timestamp bool   `mapstructure:"timestamp" yaml:"timestamp"`
	Caller    bool   `mapstructure:"caller" yaml:"caller"`
}

// ApplyDefaults fills empty settings.
func (c *Config) ApplyDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "json"
	}
	if c.Output == "" {
		c.Output = "stderr"
	}
}

// Validate checks level and format names.
func (c *Config) Validate() error {
	validLevels := []string{"trace", "debug", "info", "warn", "error", "fatal", "disabled"}
	if !contains(validLevels, c.Level) {
		return fmt.Errorf("log.level must be one of %v (got: %s)", validLevels, c.Level)
	}
	validFormats := []string{"json", "console", "pretty"}
	if !contains(validFormats, c.Format) {
		return fmt.Errorf("log.format must be one of %v (got: %s)", validFormats, c.Format)
	}
	return nil
}

func contains(slice []string, val string) bool {
	for _, s := range slice {
		if s == val {
			return true
		}
	}
	return false
}
