package waltest

import (
	"encoding/binary"

	"github.com/bft-labs/walminer/pkg/wal"
)

// Heap record info bytes.
const (
	HeapInsert    = 0x00
	HeapDelete    = 0x10
	HeapUpdate    = 0x20
	HeapTruncate  = 0x30
	HeapHotUpdate = 0x40
	HeapLock      = 0x60
	HeapInplace   = 0x70
	HeapInitPage  = 0x80
)

const (
	tupleHeaderSize = 23
	tupleHoff       = 24
	xmaxInvalid     = 0x0800
)

// Tuple returns a heap tuple with a one attribute header, the padding up
// to t_hoff, and data. ctid points at itself.
func Tuple(xmin uint32, blk uint32, off uint16, data []byte) []byte {
	tup := make([]byte, tupleHoff+len(data))
	binary.LittleEndian.PutUint32(tup[0:], xmin)
	binary.LittleEndian.PutUint16(tup[12:], uint16(blk>>16))
	binary.LittleEndian.PutUint16(tup[14:], uint16(blk))
	binary.LittleEndian.PutUint16(tup[16:], off)
	binary.LittleEndian.PutUint16(tup[18:], 1)
	binary.LittleEndian.PutUint16(tup[20:], xmaxInvalid)
	tup[22] = tupleHoff
	copy(tup[tupleHoff:], data)
	return tup
}

// HeapPage returns a heap page holding tuples at offsets 1..n.
func HeapPage(tuples ...[]byte) []byte {
	page := make([]byte, wal.BlockSize)
	lower, upper := 24, wal.BlockSize
	for _, tup := range tuples {
		upper -= (len(tup) + 7) &^ 7
		copy(page[upper:], tup)
		item := uint32(upper) | 1<<15 | uint32(len(tup))<<17
		binary.LittleEndian.PutUint32(page[lower:], item)
		lower += 4
	}
	binary.LittleEndian.PutUint16(page[12:], uint16(lower))
	binary.LittleEndian.PutUint16(page[14:], uint16(upper))
	binary.LittleEndian.PutUint16(page[16:], wal.BlockSize)
	binary.LittleEndian.PutUint16(page[18:], wal.BlockSize|4)
	return page
}

// SetItemFlags rewrites the line pointer state of slot off.
func SetItemFlags(page []byte, off uint16, flags uint8) {
	pos := 24 + (int(off)-1)*4
	item := binary.LittleEndian.Uint32(page[pos:])
	item = item&^(3<<15) | uint32(flags&3)<<15
	binary.LittleEndian.PutUint32(page[pos:], item)
}

// loggedTuple is the block data of an insert: xl_heap_header and the
// tuple from the end of the fixed header on.
func loggedTuple(tup []byte) []byte {
	out := make([]byte, 5, 5+len(tup)-tupleHeaderSize)
	copy(out[0:2], tup[18:20])
	copy(out[2:4], tup[20:22])
	out[4] = tup[22]
	return append(out, tup[tupleHeaderSize:]...)
}

// Insert returns a heap insert of data at blk/off. A non-nil image is
// attached as the block's full-page image.
func Insert(xid uint32, rel wal.RelFileLocator, blk uint32, off uint16, data []byte, image []byte) Record {
	main := binary.LittleEndian.AppendUint16(nil, off)
	main = append(main, 0)
	b := Block{ID: 0, Locator: rel, Block: blk}
	if image != nil {
		b.Image, b.ApplyImage, b.Hole = image, true, true
	} else {
		b.Data = loggedTuple(Tuple(xid, blk, off, data))
	}
	return Record{XID: xid, RmID: wal.RmHeap, Info: HeapInsert, Blocks: []Block{b}, MainData: main}
}

// Delete returns a heap delete of blk/off by xid.
func Delete(xid uint32, rel wal.RelFileLocator, blk uint32, off uint16, image []byte) Record {
	main := binary.LittleEndian.AppendUint32(nil, xid)
	main = binary.LittleEndian.AppendUint16(main, off)
	main = append(main, 0, 0)
	b := Block{ID: 0, Locator: rel, Block: blk}
	if image != nil {
		b.Image, b.ApplyImage, b.Hole = image, true, true
	}
	return Record{XID: xid, RmID: wal.RmHeap, Info: HeapDelete, Blocks: []Block{b}, MainData: main}
}

// Update describes a heap update for UpdateRecord.
type Update struct {
	XID       uint32
	Rel       wal.RelFileLocator
	OldBlock  uint32
	OldOff    uint16
	NewBlock  uint32
	NewOff    uint16
	Data      []byte
	HOT       bool
	InitPage  bool
	NewImage  []byte
	OldImage  []byte
	PrefixLen int
	SuffixLen int
}

// UpdateRecord encodes u. The old page is registered as block 1 when it
// differs from the new one. PrefixLen and SuffixLen bytes of Data are
// left out of the record, to be taken from the old row.
func UpdateRecord(u Update) Record {
	var flags uint8
	if u.PrefixLen > 0 {
		flags |= 0x20
	}
	if u.SuffixLen > 0 {
		flags |= 0x40
	}
	main := binary.LittleEndian.AppendUint32(nil, u.XID)
	main = binary.LittleEndian.AppendUint16(main, u.OldOff)
	main = append(main, 0, flags)
	main = binary.LittleEndian.AppendUint32(main, 0)
	main = binary.LittleEndian.AppendUint16(main, u.NewOff)

	info := uint8(HeapUpdate)
	if u.HOT {
		info = HeapHotUpdate
	}
	if u.InitPage {
		info |= HeapInitPage
	}

	newBlk := Block{ID: 0, Locator: u.Rel, Block: u.NewBlock, WillInit: u.InitPage}
	if u.NewImage != nil {
		newBlk.Image, newBlk.ApplyImage, newBlk.Hole = u.NewImage, true, true
	} else {
		logged := loggedTuple(Tuple(u.XID, u.NewBlock, u.NewOff, u.Data))
		var lens []byte
		if u.PrefixLen > 0 {
			lens = binary.LittleEndian.AppendUint16(lens, uint16(u.PrefixLen))
		}
		if u.SuffixLen > 0 {
			lens = binary.LittleEndian.AppendUint16(lens, uint16(u.SuffixLen))
		}
		// Header, padding up to t_hoff, then the changed middle.
		body := logged[:5+tupleHoff-tupleHeaderSize]
		mid := u.Data[u.PrefixLen : len(u.Data)-u.SuffixLen]
		newBlk.Data = append(append(lens, body...), mid...)
	}
	blocks := []Block{newBlk}
	if u.OldBlock != u.NewBlock {
		old := Block{ID: 1, Locator: u.Rel, Block: u.OldBlock}
		if u.OldImage != nil {
			old.Image, old.ApplyImage, old.Hole = u.OldImage, true, true
		}
		blocks = append(blocks, old)
	}
	return Record{XID: u.XID, RmID: wal.RmHeap, Info: info, Blocks: blocks, MainData: main}
}
