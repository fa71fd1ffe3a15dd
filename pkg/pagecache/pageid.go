package pagecache

import (
	"encoding/binary"
	"fmt"

	"github.com/bft-labs/walminer/pkg/wal"
)

// PageID is the physical address of a relation page.
type PageID struct {
	Tablespace uint32
	Database   uint32
	RelNumber  uint32
	Block      uint32
}

// IDOf returns the page a block reference points at.
func IDOf(b *wal.BlockRef) PageID {
	return PageID{
		Tablespace: b.Locator.Tablespace,
		Database:   b.Locator.Database,
		RelNumber:  b.Locator.RelNumber,
		Block:      b.Block,
	}
}

func (id PageID) String() string {
	return fmt.Sprintf("%d/%d/%d blk %d", id.Tablespace, id.Database, id.RelNumber, id.Block)
}

// key orders pages by relation then block number.
func (id PageID) key() []byte {
	var k [16]byte
	binary.BigEndian.PutUint32(k[0:], id.Tablespace)
	binary.BigEndian.PutUint32(k[4:], id.Database)
	binary.BigEndian.PutUint32(k[8:], id.RelNumber)
	binary.BigEndian.PutUint32(k[12:], id.Block)
	return k[:]
}
