package catalog

import (
	"context"
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/bft-labs/walminer/pkg/wal"
)

// Relation is one entry of a static relation map.
type Relation struct {
	Tablespace  uint32 `toml:"tablespace"`
	Database    uint32 `toml:"database"`
	RelFileNode uint32 `toml:"relfilenode"`
	RelID       uint32 `toml:"relid"`
	Name        string `toml:"name"`
}

// RelationMap is the TOML document read by LoadStatic:
//
//	[[relation]]
//	tablespace = 1663
//	relfilenode = 16384
//	relid = 16384
//	name = "public.accounts"
type RelationMap struct {
	Relations []Relation `toml:"relation"`
}

type staticKey struct {
	tablespace uint32
	database   uint32
	relfile    uint32
}

// Static resolves from a fixed map. An entry with database 0 matches any
// database.
type Static struct {
	rels map[staticKey]Relation
}

// NewStatic indexes rels. The default tablespace may be written as 0.
func NewStatic(rels []Relation) (*Static, error) {
	s := &Static{rels: make(map[staticKey]Relation, len(rels))}
	for _, r := range rels {
		if r.RelFileNode == 0 || r.RelID == 0 {
			return nil, fmt.Errorf("relation %q: relfilenode and relid are required", r.Name)
		}
		if r.Tablespace == 0 {
			r.Tablespace = wal.DefaultTablespace
		}
		k := staticKey{r.Tablespace, r.Database, r.RelFileNode}
		if _, dup := s.rels[k]; dup {
			return nil, fmt.Errorf("duplicate relation entry for %d/%d/%d", k.tablespace, k.database, k.relfile)
		}
		s.rels[k] = r
	}
	return s, nil
}

// LoadStatic reads a relation map file.
func LoadStatic(path string) (*Static, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m RelationMap
	if err := toml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parse relation map %s: %w", path, err)
	}
	return NewStatic(m.Relations)
}

func (s *Static) Resolve(_ context.Context, loc wal.RelFileLocator) (uint32, bool, error) {
	if r, ok := s.rels[staticKey{loc.Tablespace, loc.Database, loc.RelNumber}]; ok {
		return r.RelID, true, nil
	}
	if r, ok := s.rels[staticKey{loc.Tablespace, 0, loc.RelNumber}]; ok {
		return r.RelID, true, nil
	}
	return 0, false, nil
}

// Len returns the number of entries.
func (s *Static) Len() int { return len(s.rels) }
