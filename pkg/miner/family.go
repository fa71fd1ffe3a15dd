package miner

import "github.com/bft-labs/walminer/pkg/wal"

// family groups resource managers by how the session treats them. Only
// heap records produce changes; every other family is skipped.
type family int

const (
	familyOther family = iota
	familyHeap
	familyHeap2
	familyXLog
	familyTransaction
)

func (f family) String() string {
	switch f {
	case familyHeap:
		return "heap"
	case familyHeap2:
		return "heap2"
	case familyXLog:
		return "xlog"
	case familyTransaction:
		return "transaction"
	}
	return "other"
}

func familyOf(rmid uint8) family {
	switch rmid {
	case wal.RmHeap:
		return familyHeap
	case wal.RmHeap2:
		return familyHeap2
	case wal.RmXLog:
		return familyXLog
	case wal.RmTransaction:
		return familyTransaction
	}
	return familyOther
}

// smgrCreate is XLOG_SMGR_CREATE: a new relation file.
const smgrCreate = 0x10

func createsRelationFile(rec *wal.Record) bool {
	return rec.RmID == wal.RmStorage && rec.Info&^wal.InfoMask == smgrCreate
}
