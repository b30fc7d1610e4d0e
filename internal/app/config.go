package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vk/evalgraph/internal/nodeid"
	"github.com/vk/evalgraph/internal/value"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	PagePath string // .hcl / .yaml files or a directory of them

	LogFormat string
	LogLevel  string

	Workers     int
	EvalTimeout time.Duration
	CacheSize   int
	MetricsPort int

	// OutputFormat selects the report encoding: "json" or "yaml".
	OutputFormat string
	// Set lists "Entity.property=value" mutations applied after the
	// initial evaluation.
	Set []string
	// Trigger lists "Entity.property" trigger properties fired after the
	// mutations, in order.
	Trigger []string
}

// Mutation is a parsed Config.Set entry.
type Mutation struct {
	Entity   string
	Property string
	Value    value.Value
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.PagePath == "" {
		return nil, errors.New("PagePath is a required configuration field and cannot be empty")
	}

	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	switch cfg.LogFormat {
	case "":
		cfg.LogFormat = "text"
	case "text", "json":
	default:
		return nil, fmt.Errorf("invalid log-format %q: must be 'text' or 'json'", cfg.LogFormat)
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if _, ok := logLevels[cfg.LogLevel]; !ok {
		return nil, fmt.Errorf("invalid log-level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.LogLevel)
	}

	cfg.OutputFormat = strings.ToLower(cfg.OutputFormat)
	switch cfg.OutputFormat {
	case "":
		cfg.OutputFormat = "json"
	case "json", "yaml":
	default:
		return nil, fmt.Errorf("invalid output format %q: must be 'json' or 'yaml'", cfg.OutputFormat)
	}

	if cfg.Workers < 0 {
		return nil, fmt.Errorf("workers must not be negative, got %d", cfg.Workers)
	}
	if cfg.EvalTimeout < 0 {
		return nil, fmt.Errorf("eval-timeout must not be negative, got %s", cfg.EvalTimeout)
	}
	if cfg.MetricsPort < 0 || cfg.MetricsPort > 65535 {
		return nil, fmt.Errorf("metrics-port out of range: %d", cfg.MetricsPort)
	}
	if _, err := cfg.Mutations(); err != nil {
		return nil, err
	}
	for _, path := range cfg.Trigger {
		if _, _, err := propertyPath(path); err != nil {
			return nil, fmt.Errorf("invalid trigger %q: %w", path, err)
		}
	}
	return &cfg, nil
}

// Mutations parses Set. A value that is valid JSON is used as such;
// anything else is taken as a string.
func (c *Config) Mutations() ([]Mutation, error) {
	out := make([]Mutation, 0, len(c.Set))
	for _, s := range c.Set {
		m, err := ParseMutation(s)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// ParseMutation parses "Entity.property=value".
func ParseMutation(s string) (Mutation, error) {
	path, raw, ok := strings.Cut(s, "=")
	if !ok {
		return Mutation{}, fmt.Errorf("invalid mutation %q: want Entity.property=value", s)
	}
	entity, prop, err := propertyPath(path)
	if err != nil {
		return Mutation{}, fmt.Errorf("invalid mutation %q: %w", s, err)
	}

	v, err := value.ParseJSON([]byte(raw))
	if err != nil {
		v = value.String(raw)
	}
	return Mutation{Entity: entity, Property: prop, Value: v}, nil
}

// propertyPath splits "Entity.property", rejecting nested paths.
func propertyPath(s string) (string, string, error) {
	addr, err := nodeid.Parse(strings.TrimSpace(s))
	if err != nil {
		return "", "", err
	}
	if addr.IsNested() || addr.PropertyName() == "" {
		return "", "", errors.New("path must be Entity.property")
	}
	return addr.Entity(), addr.PropertyName(), nil
}
