package wal

// On-disk constants of the Postgres WAL format (versions 14 to 18).
const (
	// PageSize is XLOG_BLCKSZ, the WAL page size.
	PageSize = 8192
	// BlockSize is BLCKSZ, the size of a relation data page.
	BlockSize = 8192

	ShortPageHeaderSize = 24
	LongPageHeaderSize  = 40

	// RecordHeaderSize is SizeOfXLogRecord.
	RecordHeaderSize = 24

	MinSegmentSize = 1 << 20
	MaxSegmentSize = 1 << 30

	// DefaultTablespace is the oid of pg_default.
	DefaultTablespace = 1663
)

// Page header xlp_info flags.
const (
	pageFirstIsContRecord          = 0x0001
	pageLongHeader                 = 0x0002
	pageBkpRemovable               = 0x0004
	pageFirstIsOverwriteContRecord = 0x0008
	pageAllFlags                   = 0x000F
)

// Page magic numbers per major version.
const (
	Magic14 = 0xD10D
	Magic15 = 0xD110
	Magic16 = 0xD113
	Magic17 = 0xD116
	Magic18 = 0xD118
)

func knownMagic(m uint16) bool {
	switch m {
	case Magic14, Magic15, Magic16, Magic17, Magic18:
		return true
	}
	return false
}

// Record header offsets.
const (
	recTotLenOff = 0
	recXidOff    = 4
	recPrevOff   = 8
	recInfoOff   = 16
	recRmidOff   = 17
	recCrcOff    = 20
)

// Low bits of xl_info are reserved for the record framing.
const (
	InfoMask             = 0x0F
	InfoSpecialRelUpdate = 0x01
	InfoCheckConsistency = 0x02
)

// Block ids with special meaning.
const (
	MaxBlockID         = 32
	blockIDTopLevelXid = 252
	blockIDOrigin      = 253
	blockIDDataLong    = 254
	blockIDDataShort   = 255
)

// Block header fork_flags.
const (
	bkpForkMask = 0x0F
	bkpHasImage = 0x10
	bkpHasData  = 0x20
	bkpWillInit = 0x40
	bkpSameRel  = 0x80
)

// Image header bimg_info flags (15+).
const (
	imgHasHole       = 0x01
	imgApply         = 0x02
	imgCompressPGLZ  = 0x04
	imgCompressLZ4   = 0x08
	imgCompressZSTD  = 0x10
	imgCompressedAny = imgCompressPGLZ | imgCompressLZ4 | imgCompressZSTD
)

// Image header flags before 15: a single compression method (pglz).
const (
	legacyImgIsCompressed = 0x02
	legacyImgApply        = 0x04
)

// Resource manager ids.
const (
	RmXLog        = 0
	RmTransaction = 1
	RmStorage     = 2
	RmHeap2       = 9
	RmHeap        = 10
	RmBtree       = 11
)

// xlogSwitch is XLOG_SWITCH in the RM_XLOG_ID info space.
const xlogSwitch = 0x40

// maxAlign rounds n up to the 8-byte MAXALIGN used for record placement.
func maxAlign(n uint64) uint64 {
	return (n + 7) &^ 7
}

// ValidSegmentSize reports whether sz is a power of two in [1 MiB, 1 GiB].
func ValidSegmentSize(sz uint32) bool {
	return sz >= MinSegmentSize && sz <= MaxSegmentSize && sz&(sz-1) == 0
}
