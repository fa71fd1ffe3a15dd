package ports

import (
	"context"

	"github.com/bft-labs/walminer/pkg/sink"
)

// ChangeSink delivers batches of changes. It returns nil only when the
// whole batch was accepted.
type ChangeSink interface {
	Send(ctx context.Context, b *sink.Batch, metadata sink.Metadata) error
}
