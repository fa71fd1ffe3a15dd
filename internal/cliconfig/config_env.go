package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables (WALMINER_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("start-lsn", os.Getenv("WALMINER_START_LSN"), &cfg.StartLSN)
	s.setString("end-lsn", os.Getenv("WALMINER_END_LSN"), &cfg.EndLSN)
	s.setString("wal-dir", os.Getenv("WALMINER_WAL_DIR"), &cfg.WALDir)
	s.setString("pgdata", os.Getenv("WALMINER_PGDATA"), &cfg.PGData)
	s.setString("relation-map", os.Getenv("WALMINER_RELATION_MAP"), &cfg.RelationMap)
	s.setString("catalog-dsn", os.Getenv("WALMINER_CATALOG_DSN"), &cfg.CatalogDSN)
	s.setString("state-dir", os.Getenv("WALMINER_STATE_DIR"), &cfg.StateDir)
	s.setString("sink", os.Getenv("WALMINER_SINK"), &cfg.Sink)
	s.setString("sink-url", os.Getenv("WALMINER_SINK_URL"), &cfg.SinkURL)
	s.setString("auth-key", os.Getenv("WALMINER_AUTH_KEY"), &cfg.AuthKey)
	s.setString("cache-backend", os.Getenv("WALMINER_CACHE_BACKEND"), &cfg.CacheBackend)
	s.setString("cache-dir", os.Getenv("WALMINER_CACHE_DIR"), &cfg.CacheDir)
	s.setString("log-level", os.Getenv("WALMINER_LOG_LEVEL"), &cfg.LogLevel)
	s.setString("log-format", os.Getenv("WALMINER_LOG_FORMAT"), &cfg.LogFormat)

	if err := s.setDuration("poll", os.Getenv("WALMINER_POLL_INTERVAL"), &cfg.PollInterval); err != nil {
		return err
	}
	if err := s.setDuration("send-interval", os.Getenv("WALMINER_SEND_INTERVAL"), &cfg.SendInterval); err != nil {
		return err
	}
	if err := s.setDuration("timeout", os.Getenv("WALMINER_HTTP_TIMEOUT"), &cfg.HTTPTimeout); err != nil {
		return err
	}

	if err := s.setIntFromString("timeline", os.Getenv("WALMINER_TIMELINE"), &cfg.Timeline); err != nil {
		return err
	}
	if err := s.setIntFromString("max-batch-bytes", os.Getenv("WALMINER_MAX_BATCH_BYTES"), &cfg.MaxBatchBytes); err != nil {
		return err
	}

	s.setBoolFromString("resume", os.Getenv("WALMINER_RESUME"), &cfg.Resume)
	s.setBoolFromString("follow", os.Getenv("WALMINER_FOLLOW"), &cfg.Follow)
	s.setBoolFromString("gzip", os.Getenv("WALMINER_GZIP"), &cfg.Gzip)

	return nil
}
