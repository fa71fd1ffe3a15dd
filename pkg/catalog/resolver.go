package catalog

import (
	"context"

	"github.com/bft-labs/walminer/pkg/wal"
)

// Resolver looks up the relation oid of a relation file. ok is false when
// the file is unknown; that is not an error.
type Resolver interface {
	Resolve(ctx context.Context, loc wal.RelFileLocator) (relid uint32, ok bool, err error)
}

// Invalidator is implemented by resolvers that cache answers which a
// relation file rewrite can make stale.
type Invalidator interface {
	Invalidate()
}

// Passthrough reports the relfilenode as the relation oid. Both are equal
// for a table until its file is first rewritten.
type Passthrough struct{}

func (Passthrough) Resolve(_ context.Context, loc wal.RelFileLocator) (uint32, bool, error) {
	return loc.RelNumber, true, nil
}
