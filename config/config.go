// Package config loads and validates the dashhub service configuration from
// YAML: logging, the HTTP server for metrics and health, per-source defaults,
// the data sources to register, and optional charts and links.
package config

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/dashhub/errors"
	"github.com/c360/dashhub/linking"
	"github.com/c360/dashhub/pkg/retry"
	"github.com/c360/dashhub/transport"
)

// Config is the complete service configuration.
type Config struct {
	Logging  LoggingConfig            `yaml:"logging"`
	Server   ServerConfig             `yaml:"server"`
	Defaults DefaultsConfig           `yaml:"defaults"`
	Sources  []SourceConfig           `yaml:"sources"`
	Charts   []string                 `yaml:"charts,omitempty"`
	Links    []linking.LinkDefinition `yaml:"links,omitempty"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ServerConfig controls the HTTP endpoint serving /metrics and /healthz.
type ServerConfig struct {
	Addr    string `yaml:"addr"`
	Metrics bool   `yaml:"metrics"`
}

// DefaultsConfig fills in source fields left unset. Durations are Go
// duration strings ("5s", "1m").
type DefaultsConfig struct {
	MaxPoints    int             `yaml:"max_points"`
	PollInterval string          `yaml:"poll_interval"`
	Reconnect    ReconnectConfig `yaml:"reconnect"`
}

// ReconnectConfig is the YAML shape of a retry policy.
type ReconnectConfig struct {
	MaxAttempts  int     `yaml:"max_attempts"`
	InitialDelay string  `yaml:"initial_delay"`
	MaxDelay     string  `yaml:"max_delay"`
	Multiplier   float64 `yaml:"multiplier"`
}

func (r ReconnectConfig) retryConfig() (retry.Config, error) {
	cfg := retry.Reconnect()
	cfg.MaxAttempts = r.MaxAttempts

	var err error
	if cfg.InitialDelay, err = parseDuration(r.InitialDelay, cfg.InitialDelay); err != nil {
		return retry.Config{}, fmt.Errorf("initial_delay: %w", err)
	}
	if cfg.MaxDelay, err = parseDuration(r.MaxDelay, cfg.MaxDelay); err != nil {
		return retry.Config{}, fmt.Errorf("max_delay: %w", err)
	}
	if r.Multiplier != 0 {
		cfg.Multiplier = r.Multiplier
	}
	return cfg, nil
}

// SourceConfig is the YAML shape of one data source.
type SourceConfig struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Kind        string `yaml:"kind"`
	Endpoint    string `yaml:"endpoint"`
	Subject     string `yaml:"subject,omitempty"`
	Interval    string `yaml:"interval,omitempty"`
	MaxPoints   int    `yaml:"max_points,omitempty"`
	Compression bool   `yaml:"compression,omitempty"`
}

// Descriptor converts the source config into a transport descriptor, filling
// unset fields from the defaults.
func (s SourceConfig) Descriptor(defaults DefaultsConfig) (transport.Descriptor, error) {
	interval, err := parseDuration(s.Interval, 0)
	if err != nil {
		return transport.Descriptor{}, errors.WrapInvalid(err, "SourceConfig", "Descriptor",
			fmt.Sprintf("interval for source %q", s.ID))
	}
	if interval == 0 {
		if interval, err = parseDuration(defaults.PollInterval, 0); err != nil {
			return transport.Descriptor{}, errors.WrapInvalid(err, "SourceConfig", "Descriptor",
				"default poll_interval")
		}
	}

	maxPoints := s.MaxPoints
	if maxPoints == 0 {
		maxPoints = defaults.MaxPoints
	}

	reconnect, err := defaults.Reconnect.retryConfig()
	if err != nil {
		return transport.Descriptor{}, errors.WrapInvalid(err, "SourceConfig", "Descriptor",
			"default reconnect policy")
	}

	desc := transport.Descriptor{
		ID:          s.ID,
		Name:        s.Name,
		Kind:        transport.Kind(s.Kind),
		Endpoint:    s.Endpoint,
		Subject:     s.Subject,
		Interval:    interval,
		MaxPoints:   maxPoints,
		Compression: s.Compression,
		Reconnect:   reconnect,
	}.WithDefaults()

	return desc, desc.Validate()
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Server:  ServerConfig{Addr: ":8080", Metrics: true},
		Defaults: DefaultsConfig{
			MaxPoints:    transport.DefaultMaxPoints,
			PollInterval: transport.DefaultPollInterval.String(),
		},
	}
}

// Load reads and validates a YAML config file. Unknown fields are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "config", "Load", "read file")
	}

	cfg := DefaultConfig()
	if err := decodeStrict(data, cfg); err != nil {
		return nil, errors.WrapInvalid(err, "config", "Load", "parse yaml")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeStrict(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !stderrors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks the configuration for errors, including every source and
// link definition.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate",
			fmt.Sprintf("log level %q", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate",
			fmt.Sprintf("log format %q", c.Logging.Format))
	}
	if c.Server.Addr == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "config", "Validate", "server.addr")
	}

	seen := make(map[string]bool, len(c.Sources))
	for _, src := range c.Sources {
		if seen[src.ID] {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate",
				fmt.Sprintf("duplicate source id %q", src.ID))
		}
		seen[src.ID] = true
		if _, err := src.Descriptor(c.Defaults); err != nil {
			return err
		}
	}

	for _, link := range c.Links {
		if !link.Kind.Valid() {
			return errors.WrapInvalid(errors.ErrUnknownLinkKind, "config", "Validate",
				fmt.Sprintf("link %q kind %q", link.ID, link.Kind))
		}
		if link.SourceWidget == "" || link.TargetWidget == "" {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate",
				fmt.Sprintf("link %q needs source and target widgets", link.ID))
		}
	}
	return nil
}

func parseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration %q cannot be negative", s)
	}
	return d, nil
}
