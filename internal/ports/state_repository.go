package ports

import (
	"context"

	"github.com/bft-labs/walminer/pkg/state"
)

// StateRepository handles checkpoint persistence.
type StateRepository interface {
	// Load retrieves the last saved state.
	// Returns an empty state and nil error if no state exists.
	Load(ctx context.Context) (state.State, error)

	// Save persists the state atomically.
	Save(ctx context.Context, s state.State) error
}
