// Package walminer mines PostgreSQL write-ahead log into row-level change
// events.
//
// For one-off inspection, open a pull-based session and iterate:
//
//	s, err := walminer.Open(ctx, walminer.SessionConfig{Start: lsn.MustParse("0/1800028")})
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//	for {
//	    ch, err := s.Next(ctx)
//	    if errors.Is(err, io.EOF) {
//	        break
//	    }
//	    ...
//	}
//
// To stream changes to a sink with checkpoints, use a Miner:
//
//	cfg := walminer.DefaultConfig()
//	cfg.Session.WALDir = "/var/lib/postgresql/16/main/pg_wal"
//	cfg.Session.Start = start
//	cfg.Follow = true
//	m, err := walminer.New(cfg, walminer.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	return m.Run(ctx)
package walminer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/bft-labs/walminer/internal/app"
	"github.com/bft-labs/walminer/internal/domain"
	"github.com/bft-labs/walminer/internal/ports"
	"github.com/bft-labs/walminer/pkg/follow"
	"github.com/bft-labs/walminer/pkg/log"
	"github.com/bft-labs/walminer/pkg/lsn"
	"github.com/bft-labs/walminer/pkg/miner"
	"github.com/bft-labs/walminer/pkg/sink"
	"github.com/bft-labs/walminer/pkg/state"
)

type (
	// Change is one row-level change event.
	Change = miner.Change

	// Session is a pull-based decoding session.
	Session = miner.Session

	// SessionConfig describes the range of WAL a session reads.
	SessionConfig = miner.Config
)

// Errors returned by Miner.
var (
	ErrAlreadyRunning  = domain.ErrAlreadyRunning
	ErrNotRunning      = domain.ErrNotRunning
	ErrShutdownTimeout = domain.ErrShutdownTimeout
	ErrInvalidConfig   = domain.ErrInvalidConfig
)

// Open starts a decoding session. See miner.Open.
func Open(ctx context.Context, cfg SessionConfig, opts ...miner.Option) (*Session, error) {
	return miner.Open(ctx, cfg, opts...)
}

// Config configures a streaming Miner.
type Config struct {
	Session SessionConfig

	// StateDir holds the checkpoint file. Empty keeps checkpoints in
	// memory only.
	StateDir string
	// Resume starts from the checkpoint when there is one, ignoring
	// Session.Start and Session.Timeline.
	Resume bool
	// Follow keeps reading as the server writes more WAL.
	Follow       bool
	PollInterval time.Duration

	SendInterval  time.Duration
	MaxBatchBytes int

	// ServiceURL selects the HTTP sink; empty writes JSON lines to stdout.
	ServiceURL  string
	AuthKey     string
	HTTPTimeout time.Duration
	Gzip        bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	cfg := Config{
		PollInterval:  follow.DefaultPollInterval,
		SendInterval:  time.Second,
		MaxBatchBytes: 1 << 20,
		HTTPTimeout:   15 * time.Second,
	}
	cfg.Session.SetDefaults()
	return cfg
}

// SetDefaults fills the zero fields.
func (c *Config) SetDefaults() {
	c.Session.SetDefaults()
	if c.PollInterval <= 0 {
		c.PollInterval = follow.DefaultPollInterval
	}
	if c.SendInterval <= 0 {
		c.SendInterval = time.Second
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 15 * time.Second
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	session := c.Session
	if c.Resume && session.Start == lsn.Invalid {
		// The start pointer may come from the checkpoint.
		session.Start = 1
		session.End = lsn.Invalid
	}
	if err := session.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Follow && c.Session.End != lsn.Invalid {
		return fmt.Errorf("%w: follow mode cannot have an end pointer", ErrInvalidConfig)
	}
	if c.MaxBatchBytes < 0 {
		return fmt.Errorf("%w: max batch bytes must not be negative", ErrInvalidConfig)
	}
	return nil
}

// State is the lifecycle state of a Miner.
type State = app.State

// Lifecycle states.
const (
	StateStopped  = app.StateStopped
	StateStarting = app.StateStarting
	StateRunning  = app.StateRunning
	StateStopping = app.StateStopping
	StateCrashed  = app.StateCrashed
)

// Miner streams changes from the WAL to a sink and checkpoints its
// progress. Use New to create one, then Run, or Start and Stop.
type Miner struct {
	config    Config
	opts      options
	lifecycle *app.Lifecycle
	agent     *app.Agent
	logger    log.Logger

	watchMu sync.Mutex
	watcher *follow.Watcher

	mu sync.Mutex
}

// New creates a Miner in StateStopped.
func New(cfg Config, opts ...Option) (*Miner, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger

	out := o.sink
	if out == nil {
		if cfg.ServiceURL != "" {
			client := o.httpClient
			if client == nil {
				client = &http.Client{Timeout: cfg.HTTPTimeout}
			}
			out = sink.NewHTTPSink(client, logger).WithGzip(cfg.Gzip)
		} else {
			out = sink.NewJSONLines(os.Stdout)
		}
	}

	var repo ports.StateRepository = &state.MemoryRepository{}
	if cfg.StateDir != "" {
		repo = state.NewFileRepository(cfg.StateDir)
	}

	m := &Miner{
		config: cfg,
		opts:   o,
		logger: logger,
	}
	m.lifecycle = app.NewLifecycle(logger, &m.opts.events)
	m.agent = app.NewAgent(app.AgentConfig{
		PollInterval:  cfg.PollInterval,
		SendInterval:  cfg.SendInterval,
		MaxBatchBytes: cfg.MaxBatchBytes,
		Follow:        cfg.Follow,
		Metadata: sink.Metadata{
			Hostname:   hostname(),
			OSArch:     runtime.GOOS + "/" + runtime.GOARCH,
			AuthKey:    cfg.AuthKey,
			ServiceURL: cfg.ServiceURL,
		},
	}, m.openSource, out, repo, m, logger, &m.opts.events)
	return m, nil
}

// openSource opens the decoding session, from the checkpoint when asked
// to resume and one exists.
func (m *Miner) openSource(ctx context.Context, cp state.State) (ports.ChangeSource, error) {
	cfg := m.config.Session
	if m.config.Resume && !cp.IsEmpty() {
		m.logger.Info("resuming from checkpoint",
			log.Stringer("next_lsn", cp.NextLSN),
			log.Uint32("timeline", cp.Timeline),
		)
		cfg.Start = cp.NextLSN
		cfg.Timeline = cp.Timeline
	}
	if cfg.Start == lsn.Invalid {
		return nil, fmt.Errorf("%w: no start pointer and no checkpoint to resume from", ErrInvalidConfig)
	}

	s, err := miner.Open(ctx, cfg, miner.WithLogger(m.logger), miner.WithResolver(m.opts.resolver))
	if err != nil {
		return nil, err
	}
	if m.config.Follow {
		m.watchMu.Lock()
		if m.watcher == nil {
			m.watcher = follow.NewWatcher(s.Location().Dir, m.config.PollInterval, m.logger)
		}
		m.watchMu.Unlock()
	}
	return s, nil
}

// Wait blocks until the WAL directory may have grown. The agent calls it
// at the end of the log in follow mode.
func (m *Miner) Wait(ctx context.Context) error {
	m.watchMu.Lock()
	w := m.watcher
	m.watchMu.Unlock()
	if w != nil {
		return w.Wait(ctx)
	}
	t := time.NewTimer(m.config.PollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (m *Miner) closeWatcher() {
	m.watchMu.Lock()
	defer m.watchMu.Unlock()
	if m.watcher != nil {
		m.watcher.Close()
		m.watcher = nil
	}
}

// Run streams in the calling goroutine until the end of the log, a fatal
// error or the cancellation of ctx. Cancellation is not an error.
func (m *Miner) Run(ctx context.Context) error {
	if err := m.lifecycle.Begin("Run() called"); err != nil {
		return err
	}
	err := m.run(ctx)
	m.lifecycle.Finish(err, "run finished")
	return err
}

func (m *Miner) run(ctx context.Context) error {
	defer m.closeWatcher()
	err := m.agent.Run(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// Start runs the Miner in the background. The provided context bounds
// the whole run.
func (m *Miner) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.lifecycle.CanStart() {
		return ErrAlreadyRunning
	}
	if err := m.lifecycle.TransitionTo(app.StateStarting, "Start() called"); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.lifecycle.SetCancel(cancel)
	m.lifecycle.Go(func() {
		defer cancel()
		if err := m.lifecycle.TransitionTo(app.StateRunning, "agent starting"); err != nil {
			// Stop() won the race.
			return
		}
		err := m.run(runCtx)
		if err != nil {
			m.logger.Error("agent error", log.Err(err))
		}
		m.lifecycle.Finish(err, "end of log")
	})
	return nil
}

// Stop cancels a background run and waits up to app.ShutdownTimeout for
// it to finish.
func (m *Miner) Stop() error {
	m.mu.Lock()
	if !m.lifecycle.CanStop() {
		m.mu.Unlock()
		return ErrNotRunning
	}
	if err := m.lifecycle.TransitionTo(app.StateStopping, "Stop() called"); err != nil {
		m.mu.Unlock()
		return err
	}
	m.lifecycle.Cancel()
	m.mu.Unlock()

	if err := m.lifecycle.WaitWithTimeout(app.ShutdownTimeout); err != nil {
		_ = m.lifecycle.TransitionTo(app.StateCrashed, "shutdown timeout")
		return err
	}
	_ = m.lifecycle.TransitionTo(app.StateStopped, "graceful shutdown")
	return nil
}

// Status returns the current lifecycle state.
func (m *Miner) Status() State {
	return m.lifecycle.State()
}

// Err returns the error that crashed the last run, if any.
func (m *Miner) Err() error {
	return m.lifecycle.Err()
}

// Checkpoint returns the last checkpoint taken. Call it once the run has
// ended.
func (m *Miner) Checkpoint() state.State {
	return m.agent.State()
}

func hostname() string {
	if h, err := os.Hostname(); err == nil {
		return h
	}
	return "unknown"
}
