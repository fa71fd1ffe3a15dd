package ports

import (
	"context"

	"github.com/bft-labs/walminer/pkg/lsn"
	"github.com/bft-labs/walminer/pkg/miner"
	"github.com/bft-labs/walminer/pkg/state"
)

// ChangeSource yields row changes in log order.
type ChangeSource interface {
	// Next returns the next change, or io.EOF when no more changes are
	// available right now.
	Next(ctx context.Context) (miner.Change, error)

	// First is the start of the first record read.
	First() lsn.LSN

	// LastLSN is the start of the last record read, Invalid before the
	// first.
	LastLSN() lsn.LSN

	// NextLSN is where reading would continue.
	NextLSN() lsn.LSN

	// Timeline is the timeline being read.
	Timeline() uint32

	// Resume prepares the source to read past a previous io.EOF once
	// more WAL is written. It reports false when the source has ended
	// for good.
	Resume() bool

	Close() error
}

// SourceOpener opens a source, continuing from the checkpoint when it is
// not empty.
type SourceOpener func(ctx context.Context, checkpoint state.State) (ChangeSource, error)
