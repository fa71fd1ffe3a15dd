package walminer

import (
	"time"

	"github.com/bft-labs/walminer/internal/app"
)

// EventHandler receives Miner events. Calls are synchronous, from the
// streaming goroutine, so handlers must not block.
type EventHandler interface {
	OnStateChange(StateChangeEvent)
	OnSendSuccess(SendSuccessEvent)
	OnSendError(SendErrorEvent)
}

// BaseEventHandler implements EventHandler with no-ops. Embed it to handle
// only some events.
type BaseEventHandler struct{}

func (BaseEventHandler) OnStateChange(StateChangeEvent) {}
func (BaseEventHandler) OnSendSuccess(SendSuccessEvent) {}
func (BaseEventHandler) OnSendError(SendErrorEvent)     {}

// StateChangeEvent is emitted on every lifecycle transition.
type StateChangeEvent struct {
	Previous State
	Current  State
	Reason   string
}

// SendSuccessEvent is emitted when the sink accepts a batch.
type SendSuccessEvent struct {
	Changes   int
	BytesSent int
	Duration  time.Duration
}

// SendErrorEvent is emitted when a send fails. Retryable is false only
// when the run is being cancelled.
type SendErrorEvent struct {
	Error     error
	Changes   int
	Retryable bool
}

// eventEmitter adapts EventHandler to the internal emitter interfaces.
type eventEmitter struct {
	handler EventHandler
}

func (e *eventEmitter) OnStateChange(previous, current app.State, reason string) {
	if e.handler == nil {
		return
	}
	e.handler.OnStateChange(StateChangeEvent{
		Previous: previous,
		Current:  current,
		Reason:   reason,
	})
}

func (e *eventEmitter) OnSendSuccess(changes, bytesSent int, duration time.Duration) {
	if e.handler == nil {
		return
	}
	e.handler.OnSendSuccess(SendSuccessEvent{
		Changes:   changes,
		BytesSent: bytesSent,
		Duration:  duration,
	})
}

func (e *eventEmitter) OnSendError(err error, changes int, retryable bool) {
	if e.handler == nil {
		return
	}
	e.handler.OnSendError(SendErrorEvent{
		Error:     err,
		Changes:   changes,
		Retryable: retryable,
	})
}
