package pagecache

import (
	"errors"
	"fmt"
	"os"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	leveldbstorage "github.com/syndtr/goleveldb/leveldb/storage"
)

// Store holds page images. Implementations copy on Put and on Get, so no
// buffer is shared between the store and its callers.
type Store interface {
	// Get copies the page into dst and reports whether it was present.
	Get(id PageID, dst []byte) (bool, error)
	Put(id PageID, page []byte) error
	Len() int
	Close() error
}

// MapStore keeps pages on the heap.
type MapStore struct {
	pages map[PageID][]byte
}

// NewMapStore returns an empty in-memory store.
func NewMapStore() *MapStore {
	return &MapStore{pages: make(map[PageID][]byte)}
}

func (s *MapStore) Get(id PageID, dst []byte) (bool, error) {
	page, ok := s.pages[id]
	if !ok {
		return false, nil
	}
	copy(dst, page)
	return true, nil
}

func (s *MapStore) Put(id PageID, page []byte) error {
	buf, ok := s.pages[id]
	if !ok {
		buf = make([]byte, len(page))
		s.pages[id] = buf
	}
	copy(buf, page)
	return nil
}

func (s *MapStore) Len() int { return len(s.pages) }

// Close drops every page.
func (s *MapStore) Close() error {
	s.pages = nil
	return nil
}

// LevelStore spills pages to a LevelDB database private to the session.
type LevelStore struct {
	db  *leveldb.DB
	dir string
	n   int
}

// NewLevelStore creates a store in a fresh temporary directory under
// parent, which is removed again on Close. An empty parent keeps the
// database in memory.
func NewLevelStore(parent string) (*LevelStore, error) {
	if parent == "" {
		db, err := leveldb.Open(leveldbstorage.NewMemStorage(), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to open in-memory page store: %w", err)
		}
		return &LevelStore{db: db}, nil
	}

	dir, err := os.MkdirTemp(parent, "walminer-pages-")
	if err != nil {
		return nil, fmt.Errorf("failed to create page store directory: %w", err)
	}
	db, err := leveldb.OpenFile(dir, &opt.Options{NoSync: true})
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to open page store at %s: %w", dir, err)
	}
	return &LevelStore{db: db, dir: dir}, nil
}

// Dir returns the on-disk location, empty for an in-memory store.
func (s *LevelStore) Dir() string { return s.dir }

func (s *LevelStore) Get(id PageID, dst []byte) (bool, error) {
	page, err := s.db.Get(id.key(), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get page %s: %w", id, err)
	}
	copy(dst, page)
	return true, nil
}

func (s *LevelStore) Put(id PageID, page []byte) error {
	key := id.key()
	has, err := s.db.Has(key, nil)
	if err != nil {
		return fmt.Errorf("put page %s: %w", id, err)
	}
	if err := s.db.Put(key, page, nil); err != nil {
		return fmt.Errorf("put page %s: %w", id, err)
	}
	if !has {
		s.n++
	}
	return nil
}

func (s *LevelStore) Len() int { return s.n }

// Close closes the database and removes its directory.
func (s *LevelStore) Close() error {
	err := s.db.Close()
	if s.dir != "" {
		if rmErr := os.RemoveAll(s.dir); err == nil {
			err = rmErr
		}
	}
	return err
}
