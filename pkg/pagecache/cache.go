package pagecache

import (
	"errors"
	"fmt"

	"github.com/bft-labs/walminer/pkg/log"
	"github.com/bft-labs/walminer/pkg/wal"
)

var (
	// ErrPageNotCached is returned for pages never seen in a full-page image.
	ErrPageNotCached = errors.New("pagecache: page not cached")

	// ErrBadImage is returned when a record's full-page image cannot be
	// restored. Only that record is affected.
	ErrBadImage = errors.New("pagecache: bad page image")
)

// Backend selects the Store implementation used by Open.
type Backend string

const (
	BackendMemory  Backend = "memory"
	BackendLevelDB Backend = "leveldb"
)

// Options configures Open.
type Options struct {
	Backend Backend
	// Dir is the parent of the LevelDB directory. Empty keeps it in memory.
	Dir    string
	Logger log.Logger
}

// Stats counts cache activity over a session.
type Stats struct {
	Images uint64
	Hits   uint64
	Misses uint64
	Writes uint64
}

// Cache is the page reconstruction cache of one session. It is not safe
// for concurrent use.
type Cache struct {
	store   Store
	logger  log.Logger
	scratch []byte
	stats   Stats
}

// Open creates a cache on the configured backend.
func Open(opts Options) (*Cache, error) {
	var store Store
	switch opts.Backend {
	case "", BackendMemory:
		store = NewMapStore()
	case BackendLevelDB:
		s, err := NewLevelStore(opts.Dir)
		if err != nil {
			return nil, err
		}
		store = s
	default:
		return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
	}
	return New(store, opts.Logger), nil
}

// New wraps store.
func New(store Store, logger log.Logger) *Cache {
	if logger == nil {
		logger = log.Nop
	}
	return &Cache{
		store:   store,
		logger:  logger,
		scratch: make([]byte, wal.BlockSize),
	}
}

// RestoreIfPresent stores every applicable full-page image of rec, replacing
// whatever was cached for those pages. It returns the pages restored.
func (c *Cache) RestoreIfPresent(rec *wal.Record) ([]PageID, error) {
	var restored []PageID
	for i := range rec.Blocks {
		blk := &rec.Blocks[i]
		if !blk.HasImage || !blk.ApplyImage {
			continue
		}
		if blk.Fork != wal.MainFork {
			continue
		}
		if err := blk.RestoreImage(c.scratch); err != nil {
			return restored, fmt.Errorf("%w: blk %d at %s: %w", ErrBadImage, blk.ID, rec.LSN, err)
		}
		id := IDOf(blk)
		if err := c.store.Put(id, c.scratch); err != nil {
			return restored, err
		}
		c.stats.Images++
		c.logger.Debug("restored page image",
			log.Stringer("lsn", rec.LSN),
			log.Stringer("page", id),
			log.Stringer("compression", blk.Compression),
		)
		restored = append(restored, id)
	}
	return restored, nil
}

// Get copies the cached page into dst, which must be BlockSize bytes.
func (c *Cache) Get(id PageID, dst []byte) error {
	ok, err := c.store.Get(id, dst)
	if err != nil {
		return err
	}
	if !ok {
		c.stats.Misses++
		return fmt.Errorf("%w: %s", ErrPageNotCached, id)
	}
	c.stats.Hits++
	return nil
}

// Contains reports whether id is cached.
func (c *Cache) Contains(id PageID) bool {
	ok, err := c.store.Get(id, c.scratch)
	return err == nil && ok
}

// Put replaces the cached copy of id with page.
func (c *Cache) Put(id PageID, page []byte) error {
	if len(page) != wal.BlockSize {
		return fmt.Errorf("page %s is %d bytes, want %d", id, len(page), wal.BlockSize)
	}
	c.stats.Writes++
	return c.store.Put(id, page)
}

// Len returns the number of cached pages.
func (c *Cache) Len() int { return c.store.Len() }

// Stats returns the activity counters.
func (c *Cache) Stats() Stats { return c.stats }

// Close releases every page.
func (c *Cache) Close() error {
	c.logger.Debug("closing page cache",
		log.Int("pages", c.store.Len()),
		log.Uint64("images", c.stats.Images),
		log.Uint64("hits", c.stats.Hits),
		log.Uint64("misses", c.stats.Misses),
	)
	return c.store.Close()
}
