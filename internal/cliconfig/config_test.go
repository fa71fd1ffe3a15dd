package cliconfig

import (
	"testing"
	"time"

	"github.com/bft-labs/walminer/pkg/lsn"
	"github.com/bft-labs/walminer/pkg/pagecache"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Timeline != 1 {
		t.Errorf("Timeline = %v, want 1", cfg.Timeline)
	}
	if cfg.PollInterval != time.Second {
		t.Errorf("PollInterval = %v, want 1s", cfg.PollInterval)
	}
	if cfg.Sink != SinkStdout {
		t.Errorf("Sink = %v, want %v", cfg.Sink, SinkStdout)
	}
	if cfg.MaxBatchBytes != 1<<20 {
		t.Errorf("MaxBatchBytes = %v, want 1MB", cfg.MaxBatchBytes)
	}
	if cfg.CacheBackend != "memory" {
		t.Errorf("CacheBackend = %v, want memory", cfg.CacheBackend)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		c := DefaultConfig()
		c.StartLSN = "0/1800028"
		return c
	}

	tests := []struct {
		name        string
		mutate      func(*Config)
		wantErr     bool
		wantSinkURL string
	}{
		{
			name:    "valid minimal config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing start lsn",
			mutate:  func(c *Config) { c.StartLSN = "" },
			wantErr: true,
		},
		{
			name:    "resume without start lsn",
			mutate:  func(c *Config) { c.StartLSN = ""; c.Resume = true },
			wantErr: false,
		},
		{
			name:    "malformed start lsn",
			mutate:  func(c *Config) { c.StartLSN = "0-1800028" },
			wantErr: true,
		},
		{
			name:    "malformed end lsn",
			mutate:  func(c *Config) { c.EndLSN = "x/y" },
			wantErr: true,
		},
		{
			name:    "end lsn with follow",
			mutate:  func(c *Config) { c.EndLSN = "0/2000000"; c.Follow = true },
			wantErr: true,
		},
		{
			name:    "zero timeline",
			mutate:  func(c *Config) { c.Timeline = 0 },
			wantErr: true,
		},
		{
			name:    "two resolvers",
			mutate:  func(c *Config) { c.RelationMap = "rels.toml"; c.CatalogDSN = "postgres://localhost/db" },
			wantErr: true,
		},
		{
			name:    "http sink without url",
			mutate:  func(c *Config) { c.Sink = SinkHTTP },
			wantErr: true,
		},
		{
			name: "http sink trims trailing slash",
			mutate: func(c *Config) {
				c.Sink = "HTTP"
				c.SinkURL = "http://localhost:8080/"
			},
			wantErr:     false,
			wantSinkURL: "http://localhost:8080",
		},
		{
			name:    "unknown sink",
			mutate:  func(c *Config) { c.Sink = "kafka" },
			wantErr: true,
		},
		{
			name:    "unknown cache backend",
			mutate:  func(c *Config) { c.CacheBackend = "redis" },
			wantErr: true,
		},
		{
			name:    "invalid poll interval",
			mutate:  func(c *Config) { c.PollInterval = -1 },
			wantErr: true,
		},
		{
			name:    "invalid send interval",
			mutate:  func(c *Config) { c.SendInterval = 0 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && tt.wantSinkURL != "" && cfg.SinkURL != tt.wantSinkURL {
				t.Errorf("SinkURL = %v, want %v", cfg.SinkURL, tt.wantSinkURL)
			}
		})
	}
}

func TestConfig_MinerConfig(t *testing.T) {
	c := DefaultConfig()
	c.StartLSN = "0/1800028"
	c.EndLSN = "0/1900000"
	c.Timeline = 3
	c.WALDir = "/wal"
	c.CacheBackend = "leveldb"
	c.CacheDir = "/tmp/cache"
	c.StateDir = "/state"
	c.Sink = SinkHTTP
	c.SinkURL = "http://ingest"
	c.AuthKey = "secret"
	c.Gzip = true
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	mc, err := c.MinerConfig()
	if err != nil {
		t.Fatalf("MinerConfig failed: %v", err)
	}
	if mc.Session.Start != lsn.MustParse("0/1800028") {
		t.Errorf("Start = %v, want 0/01800028", mc.Session.Start)
	}
	if mc.Session.End != lsn.MustParse("0/1900000") {
		t.Errorf("End = %v, want 0/01900000", mc.Session.End)
	}
	if mc.Session.Timeline != 3 {
		t.Errorf("Timeline = %v, want 3", mc.Session.Timeline)
	}
	if mc.Session.Cache.Backend != pagecache.BackendLevelDB || mc.Session.Cache.Dir != "/tmp/cache" {
		t.Errorf("Cache = %+v", mc.Session.Cache)
	}
	if mc.ServiceURL != "http://ingest" || mc.AuthKey != "secret" || !mc.Gzip {
		t.Errorf("sink settings not carried: %+v", mc)
	}
	if err := mc.Validate(); err != nil {
		t.Errorf("library Validate failed: %v", err)
	}

	// The stdout sink never posts.
	c.Sink = SinkStdout
	mc, err = c.MinerConfig()
	if err != nil {
		t.Fatalf("MinerConfig failed: %v", err)
	}
	if mc.ServiceURL != "" {
		t.Errorf("ServiceURL = %v, want empty for stdout sink", mc.ServiceURL)
	}
}
