// Package config loads host configuration for the persistence layer from
// a YAML file, with defaults for anything unspecified.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nvkit/nvkit/kv"
	"github.com/nvkit/nvkit/media"
	"github.com/nvkit/nvkit/record"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "500ms" or "5s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config is the root host configuration.
type Config struct {
	// LogLevel is the slog level for store telemetry: debug, info, warn
	// or error.
	LogLevel string `yaml:"log_level"`

	Media   MediaConfig    `yaml:"media"`
	KV      KVConfig       `yaml:"kv"`
	Records []RecordConfig `yaml:"records"`
}

// MediaConfig locates and sizes the backing media.
type MediaConfig struct {
	// Dir is the directory standing in for the flash partition.
	Dir string `yaml:"dir"`
	// CapacityBytes bounds the media size; zero means unbounded.
	CapacityBytes int64 `yaml:"capacity_bytes"`
	// FormatOnFailure recreates the directory when it cannot be mounted.
	FormatOnFailure bool `yaml:"format_on_failure"`
}

// KVConfig configures the small-value store.
type KVConfig struct {
	Namespace string `yaml:"namespace"`
	// MinSaveInterval is the throttle window between saves.
	MinSaveInterval Duration `yaml:"min_save_interval"`
}

// RecordConfig configures one debounced record store.
type RecordConfig struct {
	Path             string   `yaml:"path"`
	DebounceInterval Duration `yaml:"debounce_interval"`
	// DebounceDisabled makes every change write immediately.
	DebounceDisabled bool `yaml:"debounce_disabled"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Media:    MediaConfig{Dir: "data"},
		KV: KVConfig{
			Namespace:       "settings",
			MinSaveInterval: Duration(kv.DefaultMinSaveInterval),
		},
	}
}

// Load reads the configuration at path. A missing file yields [Default].
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	c := Default()
	if err := yaml.Unmarshal(raw, c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return c, nil
}

// Validate checks the configuration for values the stores would reject.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel)
	}
	if c.Media.Dir == "" {
		return errors.New("media.dir must be set")
	}
	if c.Media.CapacityBytes < 0 {
		return errors.New("media.capacity_bytes must be non-negative")
	}
	if c.KV.Namespace == "" || len(c.KV.Namespace) > kv.MaxNamespaceLen {
		return fmt.Errorf("kv.namespace must be 1 to %d bytes", kv.MaxNamespaceLen)
	}
	if strings.ContainsAny(c.KV.Namespace, "/\\.") {
		return fmt.Errorf("kv.namespace %q contains reserved characters", c.KV.Namespace)
	}
	if c.KV.MinSaveInterval < 0 {
		return errors.New("kv.min_save_interval must be non-negative")
	}
	seen := make(map[string]bool, len(c.Records))
	for i, r := range c.Records {
		if r.Path == "" {
			return fmt.Errorf("records[%d].path must be set", i)
		}
		if seen[r.Path] {
			return fmt.Errorf("records[%d].path %q is duplicated", i, r.Path)
		}
		seen[r.Path] = true
		if r.DebounceInterval < 0 {
			return fmt.Errorf("records[%d].debounce_interval must be non-negative", i)
		}
	}
	return nil
}

// Mount opens the configured media.
func (c *Config) Mount() (*media.FlashDir, error) {
	return media.Mount(c.Media.Dir, media.MountOptions{
		FormatOnFailure: c.Media.FormatOnFailure,
		Capacity:        c.Media.CapacityBytes,
	})
}

// OpenKV builds the configured key-value store over gw.
func (c *Config) OpenKV(gw media.Gateway, opts ...kv.Option) (*kv.Store, error) {
	s, err := kv.NewStore(gw, c.KV.Namespace, opts...)
	if err != nil {
		return nil, err
	}
	if c.KV.MinSaveInterval > 0 {
		s.SetMinSaveInterval(time.Duration(c.KV.MinSaveInterval))
	}
	return s, nil
}

// RecordOptions translates the configuration for path into record store
// options, or nil when path is not configured.
func (c *Config) RecordOptions(path string) []record.Option {
	for _, r := range c.Records {
		if r.Path != path {
			continue
		}
		opts := []record.Option{record.WithDebounce(!r.DebounceDisabled)}
		if r.DebounceInterval > 0 {
			opts = append(opts, record.WithDebounceInterval(time.Duration(r.DebounceInterval)))
		}
		return opts
	}
	return nil
}
