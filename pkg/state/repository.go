package state

import (
	"context"
	"sync"
)

// Repository stores checkpoints.
type Repository interface {
	// Load returns the last saved state, or an empty state if there is
	// none.
	Load(ctx context.Context) (State, error)

	// Save replaces the stored state atomically.
	Save(ctx context.Context, s State) error
}

// MemoryRepository keeps the state in memory only. It is used when no
// state directory is configured.
type MemoryRepository struct {
	mu sync.Mutex
	s  State
}

// Load returns the last saved state.
func (r *MemoryRepository) Load(context.Context) (State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.s, nil
}

// Save replaces the state.
func (r *MemoryRepository) Save(_ context.Context, s State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.s = s
	return nil
}
