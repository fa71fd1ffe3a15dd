package ports

import "context"

// Waiter blocks until the WAL may have grown or ctx is done.
type Waiter interface {
	Wait(ctx context.Context) error
}
