package wal

import (
	"encoding/binary"
	"fmt"

	"github.com/bft-labs/walminer/pkg/lsn"
)

// RelFileLocator names a relation's storage: tablespace, database and
// relation file number.
type RelFileLocator struct {
	Tablespace uint32
	Database   uint32
	RelNumber  uint32
}

func (l RelFileLocator) String() string {
	return fmt.Sprintf("%d/%d/%d", l.Tablespace, l.Database, l.RelNumber)
}

// Fork numbers.
const (
	MainFork = 0
	FSMFork  = 1
	VMFork   = 2
	InitFork = 3
)

// BlockRef is one block reference of a record.
type BlockRef struct {
	ID      uint8
	Locator RelFileLocator
	Fork    uint8
	Block   uint32

	WillInit bool
	HasData  bool
	Data     []byte

	HasImage   bool
	ApplyImage bool
	// Image holds the stored image bytes, compressed or with the hole
	// removed; use RestoreImage to get a full page.
	Image       []byte
	HoleOffset  uint16
	HoleLength  uint16
	Compression Compression

	imageLen int
	dataLen  int
}

// Record is one decoded WAL record. It aliases the reader's scratch buffer.
type Record struct {
	LSN      lsn.LSN
	Next     lsn.LSN
	TotalLen uint32
	XID      uint32
	Prev     lsn.LSN
	Info     uint8
	RmID     uint8
	CRC      uint32

	Origin      uint16
	TopLevelXID uint32

	Blocks   []BlockRef
	MainData []byte
}

// Block returns the block reference with the given id.
func (r *Record) Block(id uint8) (*BlockRef, bool) {
	for i := range r.Blocks {
		if r.Blocks[i].ID == id {
			return &r.Blocks[i], true
		}
	}
	return nil, false
}

// IsSwitch reports whether the record is an XLOG_SWITCH, after which the
// rest of the segment is unused.
func (r *Record) IsSwitch() bool {
	return r.RmID == RmXLog && r.Info&^InfoMask == xlogSwitch
}

// cursor is a bounds-checked little-endian reader over the record body.
type cursor struct {
	buf []byte
	off int
	err bool
}

func (c *cursor) take(n int) []byte {
	if c.err || n < 0 || c.off+n > len(c.buf) {
		c.err = true
		return nil
	}
	b := c.buf[c.off : c.off+n]
	c.off += n
	return b
}

func (c *cursor) u8() uint8 {
	if b := c.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (c *cursor) u16() uint16 {
	if b := c.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (c *cursor) u32() uint32 {
	if b := c.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

// decodeRecord fills rec from the assembled bytes of one record. magic
// selects the image header flavour.
func decodeRecord(rec *Record, at lsn.LSN, raw []byte, magic uint16) error {
	rec.LSN = at
	rec.TotalLen = binary.LittleEndian.Uint32(raw[recTotLenOff:])
	rec.XID = binary.LittleEndian.Uint32(raw[recXidOff:])
	rec.Prev = lsn.LSN(binary.LittleEndian.Uint64(raw[recPrevOff:]))
	rec.Info = raw[recInfoOff]
	rec.RmID = raw[recRmidOff]
	rec.CRC = binary.LittleEndian.Uint32(raw[recCrcOff:])
	rec.Origin = 0
	rec.TopLevelXID = 0
	rec.Blocks = rec.Blocks[:0]
	rec.MainData = nil

	c := &cursor{buf: raw[:rec.TotalLen], off: RecordHeaderSize}
	var (
		mainLen   uint32
		dataTotal uint64
		lastID    = -1
		prevRel   *RelFileLocator
	)
	for uint64(len(c.buf)-c.off) > dataTotal && !c.err {
		id := c.u8()
		switch {
		case id == blockIDDataShort:
			mainLen = uint32(c.u8())
			dataTotal += uint64(mainLen)
		case id == blockIDDataLong:
			mainLen = c.u32()
			dataTotal += uint64(mainLen)
		case id == blockIDOrigin:
			rec.Origin = c.u16()
			continue
		case id == blockIDTopLevelXid:
			rec.TopLevelXID = c.u32()
			continue
		case id <= MaxBlockID:
			if int(id) <= lastID {
				return recordErrorf(at, "out-of-order block_id %d", id)
			}
			lastID = int(id)
			blk, err := decodeBlockHeader(c, at, id, magic, prevRel)
			if err != nil {
				return err
			}
			rec.Blocks = append(rec.Blocks, blk)
			prevRel = &rec.Blocks[len(rec.Blocks)-1].Locator
			dataTotal += uint64(blk.imageLen) + uint64(blk.dataLen)
			continue
		default:
			return recordErrorf(at, "invalid block_id %d", id)
		}
		// Main data header is always the last one.
		break
	}
	if c.err {
		return recordErrorf(at, "record header truncated")
	}

	remaining := uint64(len(c.buf) - c.off)
	if remaining != dataTotal {
		return recordErrorf(at, "record payload is %d bytes, headers declare %d", remaining, dataTotal)
	}
	for i := range rec.Blocks {
		b := &rec.Blocks[i]
		if b.HasImage {
			b.Image = c.take(b.imageLen)
		}
		if b.HasData {
			b.Data = c.take(b.dataLen)
		}
	}
	rec.MainData = c.take(int(mainLen))
	if c.err {
		return recordErrorf(at, "record payload truncated")
	}
	return nil
}

// decodeBlockHeader reads one block header. Image and Data are attached
// once all headers are read.
func decodeBlockHeader(c *cursor, at lsn.LSN, id uint8, magic uint16, prevRel *RelFileLocator) (BlockRef, error) {
	blk := BlockRef{ID: id}
	flags := c.u8()
	blk.Fork = flags & bkpForkMask
	blk.HasImage = flags&bkpHasImage != 0
	blk.HasData = flags&bkpHasData != 0
	blk.WillInit = flags&bkpWillInit != 0
	dataLen := c.u16()

	if blk.HasData && dataLen == 0 {
		return blk, recordErrorf(at, "BKPBLOCK_HAS_DATA set, but no data included")
	}
	if !blk.HasData && dataLen != 0 {
		return blk, recordErrorf(at, "BKPBLOCK_HAS_DATA not set, but data length is %d", dataLen)
	}
	blk.dataLen = int(dataLen)

	if blk.HasImage {
		imgLen := c.u16()
		blk.HoleOffset = c.u16()
		info := c.u8()
		hasHole, compression, apply := imageFlags(info, magic)
		blk.ApplyImage = apply
		blk.Compression = compression
		if compression != CompressNone {
			if hasHole {
				blk.HoleLength = c.u16()
			}
		} else {
			blk.HoleLength = uint16(BlockSize - int(imgLen))
		}
		switch {
		case hasHole && (blk.HoleOffset == 0 || blk.HoleLength == 0 || imgLen == BlockSize):
			return blk, recordErrorf(at, "BKPIMAGE_HAS_HOLE set, but hole offset %d length %d block image length %d",
				blk.HoleOffset, blk.HoleLength, imgLen)
		case !hasHole && (blk.HoleOffset != 0 || blk.HoleLength != 0):
			return blk, recordErrorf(at, "BKPIMAGE_HAS_HOLE not set, but hole offset %d length %d",
				blk.HoleOffset, blk.HoleLength)
		case compression != CompressNone && imgLen == BlockSize:
			return blk, recordErrorf(at, "compressed image set, but block image length %d", imgLen)
		case !hasHole && compression == CompressNone && imgLen != BlockSize:
			return blk, recordErrorf(at, "neither BKPIMAGE_HAS_HOLE nor compression set, but block image length is %d", imgLen)
		}
		blk.imageLen = int(imgLen)
	}

	if flags&bkpSameRel == 0 {
		blk.Locator = RelFileLocator{Tablespace: c.u32(), Database: c.u32(), RelNumber: c.u32()}
	} else {
		if prevRel == nil {
			return blk, recordErrorf(at, "BKPBLOCK_SAME_REL set but no previous rel")
		}
		blk.Locator = *prevRel
	}
	blk.Block = c.u32()
	return blk, nil
}

func imageFlags(info uint8, magic uint16) (hasHole bool, compression Compression, apply bool) {
	hasHole = info&imgHasHole != 0
	if magic == Magic14 {
		if info&legacyImgIsCompressed != 0 {
			compression = CompressPGLZ
		}
		return hasHole, compression, info&legacyImgApply != 0
	}
	switch {
	case info&imgCompressPGLZ != 0:
		compression = CompressPGLZ
	case info&imgCompressLZ4 != 0:
		compression = CompressLZ4
	case info&imgCompressZSTD != 0:
		compression = CompressZSTD
	}
	return hasHole, compression, info&imgApply != 0
}
