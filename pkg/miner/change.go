package miner

import (
	"github.com/bft-labs/walminer/pkg/heap"
	"github.com/bft-labs/walminer/pkg/lsn"
)

// Change is one row-level change. Before and After are complete heap
// tuples, header included.
type Change struct {
	LSN         lsn.LSN   `json:"lsn"`
	Database    uint32    `json:"database"`
	RelID       uint32    `json:"relid"`
	RelFileNode uint32    `json:"relfilenode"`
	XID         uint32    `json:"xid"`
	Kind        heap.Kind `json:"kind"`
	Before      []byte    `json:"before,omitempty"`
	After       []byte    `json:"after,omitempty"`

	// Next is where the record after this one starts. Resuming there
	// replays nothing already delivered.
	Next lsn.LSN `json:"-"`
}
