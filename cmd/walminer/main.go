package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/walminer"
	"github.com/bft-labs/walminer/internal/cliconfig"
	"github.com/bft-labs/walminer/pkg/catalog"
	"github.com/bft-labs/walminer/pkg/log"
)

const helpDescription = `
Decode row-level changes from PostgreSQL write-ahead log segments.

walminer reads WAL files directly from disk, reassembles records across page
and segment boundaries, rebuilds heap pages from full-page images and emits
one change per insert, update and delete. Output is JSON lines on stdout or
batches posted to an HTTP endpoint.

Configure via file (~/.walminer/config.toml), WALMINER_* environment
variables or flags, in increasing order of precedence.
`

var exampleUsage = strings.TrimSpace(`
  walminer --wal-dir /var/lib/postgresql/16/main/pg_wal --start-lsn 0/1800028
  walminer --pgdata /var/lib/postgresql/16/main --start-lsn 0/1800028 --end-lsn 0/1900000
  walminer --config $HOME/.walminer/config.toml --resume --follow --sink http --sink-url https://ingest.example.com
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	logger := log.New(log.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	root := &cobra.Command{
		Use:           "walminer",
		Short:         "Decode row-level changes from PostgreSQL WAL segments",
		Long:          strings.TrimSpace(helpDescription),
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgFile := cfgPath
			if cfgFile == "" {
				cfgFile = cliconfig.DefaultConfigPath()
			}

			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			if cfgFile != "" && cliconfig.FileExists(cfgFile) {
				fc, err := cliconfig.LoadFileConfig(cfgFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				if err := cliconfig.ApplyFileConfig(&cfg, fc, changed); err != nil {
					return err
				}
			}

			// Environment overrides the file; changed flags override both.
			if err := cliconfig.ApplyEnvConfig(&cfg, changed); err != nil {
				return err
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			logger = log.New(log.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

			logCfg := cfg
			if logCfg.AuthKey != "" {
				logCfg.AuthKey = "*****"
			}
			if logCfg.CatalogDSN != "" {
				logCfg.CatalogDSN = "*****"
			}
			logger.Info("configuration", log.Any("config", logCfg))

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, logger)
		},
	}

	root.Flags().StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.walminer/config.toml)")

	root.Flags().StringVar(&cfg.StartLSN, "start-lsn", cfg.StartLSN, "log position to start decoding at, as X/Y")
	root.Flags().StringVar(&cfg.EndLSN, "end-lsn", cfg.EndLSN, "log position to stop at (exclusive)")
	root.Flags().IntVar(&cfg.Timeline, "timeline", cfg.Timeline, "timeline of the segments to read")
	root.Flags().StringVar(&cfg.WALDir, "wal-dir", cfg.WALDir, "directory holding WAL segments (or its parent)")
	root.Flags().StringVar(&cfg.PGData, "pgdata", cfg.PGData, "data directory searched for pg_wal (defaults to $PGDATA)")

	root.Flags().StringVar(&cfg.RelationMap, "relation-map", cfg.RelationMap, "TOML file mapping relfilenodes to relation oids")
	root.Flags().StringVar(&cfg.CatalogDSN, "catalog-dsn", cfg.CatalogDSN, "connection string used to look up relation oids in pg_class")

	root.Flags().StringVar(&cfg.StateDir, "state-dir", cfg.StateDir, "directory for the checkpoint file (in memory when empty)")
	root.Flags().BoolVar(&cfg.Resume, "resume", cfg.Resume, "start after the last checkpoint when there is one")
	root.Flags().BoolVar(&cfg.Follow, "follow", cfg.Follow, "keep decoding as new WAL is written")
	root.Flags().DurationVar(&cfg.PollInterval, "poll", cfg.PollInterval, "poll interval at the end of the log in follow mode")

	root.Flags().StringVar(&cfg.Sink, "sink", cfg.Sink, "where changes go: stdout or http")
	root.Flags().StringVar(&cfg.SinkURL, "sink-url", cfg.SinkURL, "base URL of the ingest service for the http sink")
	root.Flags().StringVar(&cfg.AuthKey, "auth-key", cfg.AuthKey, "API key for the http sink")
	root.Flags().BoolVar(&cfg.Gzip, "gzip", cfg.Gzip, "gzip http request bodies")
	root.Flags().IntVar(&cfg.MaxBatchBytes, "max-batch-bytes", cfg.MaxBatchBytes, "maximum encoded bytes per batch")
	root.Flags().DurationVar(&cfg.SendInterval, "send-interval", cfg.SendInterval, "maximum time a change waits in a batch")
	root.Flags().DurationVar(&cfg.HTTPTimeout, "timeout", cfg.HTTPTimeout, "HTTP timeout")

	root.Flags().StringVar(&cfg.CacheBackend, "cache-backend", cfg.CacheBackend, "page cache backend: memory or leveldb")
	root.Flags().StringVar(&cfg.CacheDir, "cache-dir", cfg.CacheDir, "parent directory of the leveldb page cache")
	if err := root.Flags().MarkHidden("cache-dir"); err != nil {
		logger.Info("failed to hide cache-dir flag", log.Err(err))
	}

	root.Flags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	root.Flags().StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "console or json")

	if err := root.Execute(); err != nil {
		logger.Error("walminer", log.Err(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg cliconfig.Config, logger log.Logger) error {
	libCfg, err := cfg.MinerConfig()
	if err != nil {
		return err
	}

	resolver, closeResolver, err := openResolver(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeResolver()

	m, err := walminer.New(libCfg,
		walminer.WithLogger(logger),
		walminer.WithResolver(resolver),
	)
	if err != nil {
		return fmt.Errorf("create miner: %w", err)
	}

	if err := m.Run(ctx); err != nil {
		return err
	}

	cp := m.Checkpoint()
	logger.Info("finished",
		log.Stringer("last_lsn", cp.LastLSN),
		log.Stringer("next_lsn", cp.NextLSN),
		log.Uint64("changes", cp.Changes),
	)
	return nil
}

func openResolver(ctx context.Context, cfg cliconfig.Config, logger log.Logger) (catalog.Resolver, func(), error) {
	switch {
	case cfg.RelationMap != "":
		s, err := catalog.LoadStatic(cfg.RelationMap)
		if err != nil {
			return nil, nil, fmt.Errorf("load relation map: %w", err)
		}
		logger.Info("loaded relation map", log.String("path", cfg.RelationMap), log.Int("relations", s.Len()))
		return s, func() {}, nil
	case cfg.CatalogDSN != "":
		p, err := catalog.Connect(ctx, cfg.CatalogDSN, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect catalog: %w", err)
		}
		return p, func() {
			if err := p.Close(context.Background()); err != nil {
				logger.Warn("closing catalog connection", log.Err(err))
			}
		}, nil
	default:
		return catalog.Passthrough{}, func() {}, nil
	}
}
