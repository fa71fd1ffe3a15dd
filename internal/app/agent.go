package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bft-labs/walminer/internal/ports"
	"github.com/bft-labs/walminer/pkg/log"
	"github.com/bft-labs/walminer/pkg/lsn"
	"github.com/bft-labs/walminer/pkg/sink"
	"github.com/bft-labs/walminer/pkg/state"
)

// AgentConfig contains configuration for the agent loop.
type AgentConfig struct {
	// PollInterval is how long to sleep at the end of the log when no
	// Waiter is set.
	PollInterval  time.Duration
	SendInterval  time.Duration
	MaxBatchBytes int

	// Follow keeps reading as the log grows. Without it the agent returns
	// at the end of the log.
	Follow bool

	// BackoffInitial and BackoffMax bound the wait between failed sends.
	// Zero means the defaults.
	BackoffInitial time.Duration
	BackoffMax     time.Duration

	// Metadata for send operations
	Metadata sink.Metadata
}

// SendEventEmitter is called on send success or failure.
type SendEventEmitter interface {
	OnSendSuccess(changes, bytesSent int, duration time.Duration)
	OnSendError(err error, changes int, retryable bool)
}

// Agent moves changes from a source to a sink, checkpointing after every
// accepted batch. Delivery is at least once: a batch is retried until the
// sink accepts it, and the checkpoint only moves after that.
type Agent struct {
	config    AgentConfig
	open      ports.SourceOpener
	sink      ports.ChangeSink
	stateRepo ports.StateRepository
	waiter    ports.Waiter
	logger    log.Logger
	batcher   *Batcher
	emitter   SendEventEmitter

	state state.State
}

// NewAgent creates a new agent with the given dependencies. waiter and
// emitter may be nil.
func NewAgent(
	config AgentConfig,
	open ports.SourceOpener,
	out ports.ChangeSink,
	stateRepo ports.StateRepository,
	waiter ports.Waiter,
	logger log.Logger,
	emitter SendEventEmitter,
) *Agent {
	if logger == nil {
		logger = log.Nop
	}
	return &Agent{
		config:    config,
		open:      open,
		sink:      out,
		stateRepo: stateRepo,
		waiter:    waiter,
		logger:    logger,
		batcher:   NewBatcher(config.MaxBatchBytes, config.SendInterval),
		emitter:   emitter,
	}
}

// State returns the last checkpoint taken.
func (a *Agent) State() state.State { return a.state }

// Run executes the streaming loop. It returns nil at the end of the log
// (or, in follow mode, when the source can no longer resume), ctx's error
// when cancelled and any error that ends the decoding session.
func (a *Agent) Run(ctx context.Context) error {
	st, err := a.stateRepo.Load(ctx)
	if err != nil {
		a.logger.Error("failed to load state", log.Err(err))
		st = state.State{}
	}
	a.state = st

	src, err := a.open(ctx, st)
	if err != nil {
		return err
	}
	defer src.Close()
	a.logger.Info("reading changes",
		log.Stringer("first_record", src.First()),
		log.Stringer("checkpoint", st.NextLSN),
	)

	initial, ceiling := a.config.BackoffInitial, a.config.BackoffMax
	if initial <= 0 {
		initial = DefaultBackoffInitial
	}
	if ceiling < initial {
		ceiling = max(initial, DefaultBackoffMax)
	}
	backoff := newBackoff(initial, ceiling)

	for {
		ch, err := src.Next(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return err
			}
			if err := a.flush(ctx, src, backoff); err != nil {
				return err
			}
			if !a.config.Follow || !src.Resume() {
				a.logger.Info("end of log reached",
					log.Stringer("first_record", src.First()),
					log.Stringer("last_record", src.LastLSN()),
					log.Stringer("next_lsn", src.NextLSN()),
					log.Uint64("changes", a.state.Changes),
				)
				return nil
			}
			if err := a.wait(ctx); err != nil {
				return err
			}
			continue
		}

		payload, err := sink.Encode(ch)
		if err != nil {
			return fmt.Errorf("encode change at %s: %w", ch.LSN, err)
		}
		if !a.batcher.Fits(len(payload)) {
			if err := a.send(ctx, src.Timeline(), backoff); err != nil {
				return err
			}
		}
		a.batcher.Add(ch, payload)
		if a.batcher.ShouldSend() {
			if err := a.send(ctx, src.Timeline(), backoff); err != nil {
				return err
			}
		}
	}
}

func (a *Agent) wait(ctx context.Context) error {
	if a.waiter != nil {
		return a.waiter.Wait(ctx)
	}
	t := time.NewTimer(a.config.PollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// flush sends what is pending and moves the checkpoint past the records
// read since, which produced no change.
func (a *Agent) flush(ctx context.Context, src ports.ChangeSource, backoff *backoff) error {
	if a.batcher.HasPending() {
		if err := a.send(ctx, src.Timeline(), backoff); err != nil {
			return err
		}
	}
	if next := src.NextLSN(); next > a.state.NextLSN {
		a.checkpoint(ctx, src.Timeline(), a.state.LastLSN, next, 0)
	}
	return nil
}

// send delivers the current batch, retrying with backoff until the sink
// accepts it or ctx is done.
func (a *Agent) send(ctx context.Context, timeline uint32, backoff *backoff) error {
	batch := a.batcher.Batch()
	if batch.Empty() {
		return nil
	}

	metadata := a.config.Metadata
	metadata.Timeline = timeline

	for {
		start := time.Now()
		err := a.sink.Send(ctx, batch, metadata)
		duration := time.Since(start)
		if err == nil {
			a.logger.Info("sent batch",
				log.Int("changes", batch.Size()),
				log.Int("bytes", batch.TotalBytes),
				log.Stringer("last_lsn", batch.Last().LSN),
				log.Duration("duration", duration),
			)
			if a.emitter != nil {
				a.emitter.OnSendSuccess(batch.Size(), batch.TotalBytes, duration)
			}
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		a.logger.Error("send failed",
			log.Err(err),
			log.Int("changes", batch.Size()),
			log.Int("bytes", batch.TotalBytes),
			log.Int("attempt", backoff.Attempts()+1),
			log.Duration("retry_in", backoff.Current()),
		)
		if a.emitter != nil {
			a.emitter.OnSendError(err, batch.Size(), true)
		}
		if err := backoff.Wait(ctx); err != nil {
			return err
		}
	}

	last := batch.Last()
	a.checkpoint(ctx, timeline, last.LSN, last.Next, batch.Size())
	a.batcher.Reset()
	backoff.Reset()
	return nil
}

func (a *Agent) checkpoint(ctx context.Context, timeline uint32, last, next lsn.LSN, changes int) {
	a.state.Advance(timeline, last, next, changes)
	if err := a.stateRepo.Save(ctx, a.state); err != nil {
		a.logger.Error("failed to save state", log.Err(err))
	}
}
