package miner

import (
	"errors"
	"fmt"
	"os"

	"github.com/bft-labs/walminer/pkg/lsn"
	"github.com/bft-labs/walminer/pkg/pagecache"
)

// ErrInvalidConfig is wrapped by every Config.Validate failure.
var ErrInvalidConfig = errors.New("miner: invalid config")

// DefaultTimeline is used when Config.Timeline is zero.
const DefaultTimeline = 1

// Config describes the range of WAL a Session reads.
type Config struct {
	// Start is where decoding begins. The first change comes from the
	// first complete record at or after it.
	Start lsn.LSN

	// End stops the session before any byte at or past it. Zero reads to
	// the end of the available log.
	End lsn.LSN

	Timeline uint32

	// WALDir overrides the directory search. When empty the session looks
	// in ".", "./pg_wal" and $PGDATA/pg_wal.
	WALDir string
	PGData string

	Cache pagecache.Options
}

// SetDefaults fills the zero fields.
func (c *Config) SetDefaults() {
	if c.Timeline == 0 {
		c.Timeline = DefaultTimeline
	}
	if c.PGData == "" {
		c.PGData = os.Getenv("PGDATA")
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = pagecache.BackendMemory
	}
}

// Validate checks the config after SetDefaults.
func (c Config) Validate() error {
	if c.Start == lsn.Invalid {
		return fmt.Errorf("%w: start pointer is required", ErrInvalidConfig)
	}
	if c.End != lsn.Invalid && c.End <= c.Start {
		return fmt.Errorf("%w: end pointer %s is not after start %s", ErrInvalidConfig, c.End, c.Start)
	}
	switch c.Cache.Backend {
	case pagecache.BackendMemory, pagecache.BackendLevelDB:
	default:
		return fmt.Errorf("%w: unknown cache backend %q", ErrInvalidConfig, c.Cache.Backend)
	}
	return nil
}
