package cliconfig

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bft-labs/walminer"
	"github.com/bft-labs/walminer/pkg/lsn"
	"github.com/bft-labs/walminer/pkg/pagecache"
)

// Sink names.
const (
	SinkStdout = "stdout"
	SinkHTTP   = "http"
)

// Config holds CLI configuration for walminer.
type Config struct {
	StartLSN string
	EndLSN   string
	Timeline int
	WALDir   string
	PGData   string

	RelationMap string
	CatalogDSN  string

	StateDir     string
	Resume       bool
	Follow       bool
	PollInterval time.Duration

	Sink          string
	SinkURL       string
	AuthKey       string
	Gzip          bool
	MaxBatchBytes int
	SendInterval  time.Duration
	HTTPTimeout   time.Duration

	CacheBackend string
	CacheDir     string

	LogLevel  string
	LogFormat string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Timeline:      int(walminer.DefaultConfig().Session.Timeline),
		PollInterval:  time.Second,
		Sink:          SinkStdout,
		MaxBatchBytes: 1 << 20, // 1MB
		SendInterval:  time.Second,
		HTTPTimeout:   15 * time.Second,
		CacheBackend:  string(pagecache.BackendMemory),
		LogLevel:      "info",
		LogFormat:     "console",
	}
}

// Validate checks the configuration for errors and normalizes values.
func (c *Config) Validate() error {
	if c.StartLSN == "" && !c.Resume {
		return fmt.Errorf("start-lsn is required (or resume)")
	}
	if c.StartLSN != "" {
		if _, err := lsn.Parse(c.StartLSN); err != nil {
			return fmt.Errorf("start-lsn: %w", err)
		}
	}
	if c.EndLSN != "" {
		if _, err := lsn.Parse(c.EndLSN); err != nil {
			return fmt.Errorf("end-lsn: %w", err)
		}
		if c.Follow {
			return fmt.Errorf("end-lsn cannot be combined with follow")
		}
	}
	if c.Timeline <= 0 {
		return fmt.Errorf("timeline must be positive")
	}
	if c.RelationMap != "" && c.CatalogDSN != "" {
		return fmt.Errorf("relation-map and catalog-dsn are mutually exclusive")
	}

	c.Sink = strings.ToLower(c.Sink)
	switch c.Sink {
	case SinkStdout:
	case SinkHTTP:
		if c.SinkURL == "" {
			return fmt.Errorf("sink-url is required for the http sink")
		}
	default:
		return fmt.Errorf("unknown sink %q", c.Sink)
	}
	c.SinkURL = strings.TrimRight(c.SinkURL, "/")

	switch pagecache.Backend(c.CacheBackend) {
	case pagecache.BackendMemory, pagecache.BackendLevelDB:
	default:
		return fmt.Errorf("unknown cache backend %q", c.CacheBackend)
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.SendInterval <= 0 {
		return fmt.Errorf("send interval must be positive")
	}
	return nil
}

// MinerConfig converts a validated Config to the library configuration.
func (c Config) MinerConfig() (walminer.Config, error) {
	cfg := walminer.DefaultConfig()
	if c.StartLSN != "" {
		start, err := lsn.Parse(c.StartLSN)
		if err != nil {
			return cfg, fmt.Errorf("start-lsn: %w", err)
		}
		cfg.Session.Start = start
	}
	if c.EndLSN != "" {
		end, err := lsn.Parse(c.EndLSN)
		if err != nil {
			return cfg, fmt.Errorf("end-lsn: %w", err)
		}
		cfg.Session.End = end
	}
	cfg.Session.Timeline = uint32(c.Timeline)
	cfg.Session.WALDir = c.WALDir
	if c.PGData != "" {
		cfg.Session.PGData = c.PGData
	}
	cfg.Session.Cache = pagecache.Options{
		Backend: pagecache.Backend(c.CacheBackend),
		Dir:     c.CacheDir,
	}

	cfg.StateDir = c.StateDir
	cfg.Resume = c.Resume
	cfg.Follow = c.Follow
	cfg.PollInterval = c.PollInterval
	cfg.SendInterval = c.SendInterval
	cfg.MaxBatchBytes = c.MaxBatchBytes
	cfg.HTTPTimeout = c.HTTPTimeout
	if c.Sink == SinkHTTP {
		cfg.ServiceURL = c.SinkURL
		cfg.AuthKey = c.AuthKey
		cfg.Gzip = c.Gzip
	}
	return cfg, nil
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
