package tabcsv

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultHeaderLength is the header budget, in bytes, used by fixed-header-length mode.
const DefaultHeaderLength = 140

// Config holds construction-time settings of an Output.
type Config struct {
	// Path is the output file used by Create when no explicit path is given.
	Path string `yaml:"path" json:"path"`
	// Mode selects the schema reconciliation strategy.
	Mode Mode `yaml:"mode" json:"mode"`
	// HeaderLength is the fixed header budget in bytes. Only used by ModeFixedHeaderLength.
	HeaderLength int `yaml:"header_length" json:"header_length"`
	// DisableWarnings starts the Output with its warning channel suppressed.
	DisableWarnings bool `yaml:"disable_warnings" json:"disable_warnings"`
	// NoColor writes warnings without ANSI colors.
	NoColor bool `yaml:"no_color" json:"no_color"`
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		Mode:         ModeNone,
		HeaderLength: DefaultHeaderLength,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if _, ok := modeNames[c.Mode]; !ok {
		return fmt.Errorf("%w: unknown mode %d", ErrInvalidConfig, int(c.Mode))
	}
	if c.HeaderLength < 0 {
		return fmt.Errorf("%w: header_length cannot be negative", ErrInvalidConfig)
	}
	if c.Mode == ModeFixedHeaderLength && c.HeaderLength == 0 {
		return fmt.Errorf("%w: header_length must be positive in %s mode", ErrInvalidConfig, c.Mode)
	}
	return nil
}

// LoadConfig reads a YAML configuration file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
