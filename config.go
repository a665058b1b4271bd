package bldtrack

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fredrikaverpil/bldtrack/integrity"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when a configuration fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Log formats accepted in Config.LogFormat.
const (
	LogFormatAuto    = "auto"
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

// Config configures a build tree.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// LogFormat is auto, console, or json.
	// Auto picks console on a terminal and json otherwise.
	LogFormat string `yaml:"log_format"`

	// Integrity controls what happens when a task action mutates
	// build-model settings: fail, warn, or off.
	Integrity integrity.Mode `yaml:"integrity"`

	// RecordInputs enables recording of configuration inputs
	// (environment variables and external processes read outside tasks).
	RecordInputs bool `yaml:"record_inputs"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		LogLevel:     "info",
		LogFormat:    LogFormatAuto,
		Integrity:    integrity.ModeFail,
		RecordInputs: true,
	}
}

// LoadConfig reads the YAML file at path on top of DefaultConfig, applies
// environment overrides, and validates the result.
// An empty path, or a path that does not exist, only applies the overrides.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overrides fields from BLDTRACK_* environment variables.
// Unparsable booleans are ignored.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("BLDTRACK_LOG_LEVEL"); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := lookup("BLDTRACK_LOG_FORMAT"); ok && v != "" {
		c.LogFormat = v
	}
	if v, ok := lookup("BLDTRACK_INTEGRITY"); ok && v != "" {
		c.Integrity = integrity.Mode(v)
	}
	if v, ok := lookup("BLDTRACK_RECORD_INPUTS"); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			c.RecordInputs = parsed
		}
	}
}

// Validate checks the configuration and normalizes its values.
func (c *Config) Validate() error {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	switch c.LogLevel {
	case "":
		c.LogLevel = "info"
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: log level %q must be debug, info, warn, or error", ErrInvalidConfig, c.LogLevel)
	}

	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	switch c.LogFormat {
	case "":
		c.LogFormat = LogFormatAuto
	case LogFormatAuto, LogFormatConsole, LogFormatJSON:
	default:
		return fmt.Errorf("%w: log format %q must be auto, console, or json", ErrInvalidConfig, c.LogFormat)
	}

	mode, err := integrity.ParseMode(string(c.Integrity))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	c.Integrity = mode
	return nil
}
