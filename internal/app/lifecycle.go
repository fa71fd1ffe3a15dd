package app

import (
	"context"
	"sync"
	"time"

	"github.com/bft-labs/walminer/internal/domain"
	"github.com/bft-labs/walminer/pkg/log"
)

// ShutdownTimeout is the maximum time to wait for graceful shutdown.
const ShutdownTimeout = 30 * time.Second

// State is the lifecycle state of a miner.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateCrashed
)

var stateNames = [...]string{
	StateStopped:  "Stopped",
	StateStarting: "Starting",
	StateRunning:  "Running",
	StateStopping: "Stopping",
	StateCrashed:  "Crashed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}

// idle reports whether a run may begin from s.
func (s State) idle() bool { return s == StateStopped || s == StateCrashed }

// transitions lists where each state may go.
var transitions = map[State][]State{
	StateStopped:  {StateStarting},
	StateStarting: {StateRunning, StateStopping, StateCrashed},
	StateRunning:  {StateStopping, StateCrashed},
	StateStopping: {StateStopped, StateCrashed},
	StateCrashed:  {StateStarting},
}

func allowed(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// EventEmitter is called when lifecycle state changes.
type EventEmitter interface {
	OnStateChange(previous, current State, reason string)
}

// Lifecycle is the state machine of one miner. It remembers why the last
// run crashed and waits for background workers on shutdown.
type Lifecycle struct {
	mu      sync.RWMutex
	state   State
	since   time.Time
	lastErr error
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	logger  log.Logger
	emitter EventEmitter
}

// NewLifecycle returns a lifecycle in StateStopped. emitter may be nil.
func NewLifecycle(logger log.Logger, emitter EventEmitter) *Lifecycle {
	if logger == nil {
		logger = log.Nop
	}
	return &Lifecycle{
		state:   StateStopped,
		since:   time.Now(),
		logger:  logger,
		emitter: emitter,
	}
}

// State returns the current lifecycle state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Since returns when the current state was entered.
func (l *Lifecycle) Since() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.since
}

// Err returns the error of the last crash, or nil once a new run starts.
func (l *Lifecycle) Err() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastErr
}

// TransitionTo moves to next. A refused move returns ErrNotRunning from an
// idle state and ErrAlreadyRunning otherwise.
func (l *Lifecycle) TransitionTo(next State, reason string) error {
	return l.transition(next, reason, nil)
}

func (l *Lifecycle) transition(next State, reason string, cause error) error {
	l.mu.Lock()
	prev := l.state
	if !allowed(prev, next) {
		l.mu.Unlock()
		if prev.idle() {
			return domain.ErrNotRunning
		}
		return domain.ErrAlreadyRunning
	}
	l.state = next
	l.since = time.Now()
	switch next {
	case StateStarting:
		l.lastErr = nil
	case StateCrashed:
		l.lastErr = cause
	}
	l.mu.Unlock()

	if l.emitter != nil {
		l.emitter.OnStateChange(prev, next, reason)
	}
	l.logger.Info("state transition",
		log.Stringer("from", prev),
		log.Stringer("to", next),
		log.String("reason", reason),
	)
	return nil
}

// Begin moves an idle lifecycle through Starting to Running.
func (l *Lifecycle) Begin(reason string) error {
	if err := l.TransitionTo(StateStarting, reason); err != nil {
		return domain.ErrAlreadyRunning
	}
	return l.TransitionTo(StateRunning, "agent starting")
}

// Finish records the outcome of a run: Crashed with err, or a clean stop.
// It does nothing when Stop already moved the lifecycle on.
func (l *Lifecycle) Finish(err error, reason string) {
	if err != nil {
		_ = l.transition(StateCrashed, err.Error(), err)
		return
	}
	if l.TransitionTo(StateStopping, reason) == nil {
		_ = l.TransitionTo(StateStopped, reason)
	}
}

// CanStart returns true if a run may begin.
func (l *Lifecycle) CanStart() bool {
	return l.State().idle()
}

// CanStop returns true if Stop() can be called.
func (l *Lifecycle) CanStop() bool {
	s := l.State()
	return s == StateRunning || s == StateStarting
}

// SetCancel stores the cancel function of the running worker.
func (l *Lifecycle) SetCancel(cancel context.CancelFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cancel = cancel
}

// Cancel triggers graceful shutdown.
func (l *Lifecycle) Cancel() {
	l.mu.RLock()
	cancel := l.cancel
	l.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

// Go runs fn on a tracked worker goroutine.
func (l *Lifecycle) Go(fn func()) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		fn()
	}()
}

// WaitWithTimeout waits for the workers started with Go. It returns
// ErrShutdownTimeout if they are still running after timeout.
func (l *Lifecycle) WaitWithTimeout(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		return nil
	case <-t.C:
		l.logger.Warn("shutdown timeout, forcing exit", log.Duration("timeout", timeout))
		return domain.ErrShutdownTimeout
	}
}
