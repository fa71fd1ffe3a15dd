package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	StartLSN      string `toml:"start_lsn"`
	EndLSN        string `toml:"end_lsn"`
	Timeline      int    `toml:"timeline"`
	WALDir        string `toml:"wal_dir"`
	PGData        string `toml:"pgdata"`
	RelationMap   string `toml:"relation_map"`
	CatalogDSN    string `toml:"catalog_dsn"`
	StateDir      string `toml:"state_dir"`
	Resume        *bool  `toml:"resume"`
	Follow        *bool  `toml:"follow"`
	PollInterval  string `toml:"poll_interval"`
	Sink          string `toml:"sink"`
	SinkURL       string `toml:"sink_url"`
	AuthKey       string `toml:"auth_key"`
	Gzip          *bool  `toml:"gzip"`
	MaxBatchBytes int    `toml:"max_batch_bytes"`
	SendInterval  string `toml:"send_interval"`
	HTTPTimeout   string `toml:"http_timeout"`
	CacheBackend  string `toml:"cache_backend"`
	CacheDir      string `toml:"cache_dir"`
	LogLevel      string `toml:"log_level"`
	LogFormat     string `toml:"log_format"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.walminer/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".walminer", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("start-lsn", fc.StartLSN, &cfg.StartLSN)
	s.setString("end-lsn", fc.EndLSN, &cfg.EndLSN)
	s.setString("wal-dir", fc.WALDir, &cfg.WALDir)
	s.setString("pgdata", fc.PGData, &cfg.PGData)
	s.setString("relation-map", fc.RelationMap, &cfg.RelationMap)
	s.setString("catalog-dsn", fc.CatalogDSN, &cfg.CatalogDSN)
	s.setString("state-dir", fc.StateDir, &cfg.StateDir)
	s.setString("sink", fc.Sink, &cfg.Sink)
	s.setString("sink-url", fc.SinkURL, &cfg.SinkURL)
	s.setString("auth-key", fc.AuthKey, &cfg.AuthKey)
	s.setString("cache-backend", fc.CacheBackend, &cfg.CacheBackend)
	s.setString("cache-dir", fc.CacheDir, &cfg.CacheDir)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("log-format", fc.LogFormat, &cfg.LogFormat)

	if err := s.setDuration("poll", fc.PollInterval, &cfg.PollInterval); err != nil {
		return err
	}
	if err := s.setDuration("send-interval", fc.SendInterval, &cfg.SendInterval); err != nil {
		return err
	}
	if err := s.setDuration("timeout", fc.HTTPTimeout, &cfg.HTTPTimeout); err != nil {
		return err
	}

	s.setInt("timeline", fc.Timeline, &cfg.Timeline)
	s.setInt("max-batch-bytes", fc.MaxBatchBytes, &cfg.MaxBatchBytes)

	s.setBool("resume", fc.Resume, &cfg.Resume)
	s.setBool("follow", fc.Follow, &cfg.Follow)
	s.setBool("gzip", fc.Gzip, &cfg.Gzip)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
