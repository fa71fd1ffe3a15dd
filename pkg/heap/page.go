package heap

import (
	"encoding/binary"
	"fmt"

	"github.com/bft-labs/walminer/pkg/lsn"
	"github.com/bft-labs/walminer/pkg/wal"
)

// Page layout.
const (
	PageHeaderSize = 24
	ItemIDSize     = 4
	// TupleHeaderSize is SizeofHeapTupleHeader.
	TupleHeaderSize = 23
	// MaxTuplesPerPage is MaxHeapTuplesPerPage for 8 KiB pages.
	MaxTuplesPerPage = (wal.BlockSize - PageHeaderSize) / (24 + ItemIDSize)

	pageLayoutVersion = 4
	pdAllVisible      = 0x0004
)

// Line pointer states.
const (
	LPUnused   = 0
	LPNormal   = 1
	LPRedirect = 2
	LPDead     = 3
)

// ItemID is one line pointer of the slot directory.
type ItemID struct {
	Off   uint16
	Flags uint8
	Len   uint16
}

func parseItemID(v uint32) ItemID {
	return ItemID{
		Off:   uint16(v & 0x7FFF),
		Flags: uint8(v >> 15 & 0x03),
		Len:   uint16(v >> 17),
	}
}

func (it ItemID) raw() uint32 {
	return uint32(it.Off)&0x7FFF | uint32(it.Flags&0x03)<<15 | uint32(it.Len)<<17
}

// Page is a BlockSize slotted page.
type Page []byte

func (p Page) Lower() uint16   { return binary.LittleEndian.Uint16(p[12:]) }
func (p Page) Upper() uint16   { return binary.LittleEndian.Uint16(p[14:]) }
func (p Page) Special() uint16 { return binary.LittleEndian.Uint16(p[16:]) }

func (p Page) setLower(v uint16) { binary.LittleEndian.PutUint16(p[12:], v) }
func (p Page) setUpper(v uint16) { binary.LittleEndian.PutUint16(p[14:], v) }

// LSN returns pd_lsn.
func (p Page) LSN() lsn.LSN {
	hi := binary.LittleEndian.Uint32(p[0:])
	lo := binary.LittleEndian.Uint32(p[4:])
	return lsn.LSN(uint64(hi)<<32 | uint64(lo))
}

func (p Page) setLSN(l lsn.LSN) {
	binary.LittleEndian.PutUint32(p[0:], uint32(l>>32))
	binary.LittleEndian.PutUint32(p[4:], uint32(l))
}

func (p Page) clearAllVisible() {
	flags := binary.LittleEndian.Uint16(p[10:])
	binary.LittleEndian.PutUint16(p[10:], flags&^pdAllVisible)
}

// setPrunable mirrors PageSetPrunable: keep the oldest xid.
func (p Page) setPrunable(xid uint32) {
	if xid < 3 {
		return
	}
	cur := binary.LittleEndian.Uint32(p[20:])
	if cur == 0 || int32(xid-cur) < 0 {
		binary.LittleEndian.PutUint32(p[20:], xid)
	}
}

// MaxOffset returns the number of line pointers.
func (p Page) MaxOffset() int {
	lower := int(p.Lower())
	if lower <= PageHeaderSize {
		return 0
	}
	return (lower - PageHeaderSize) / ItemIDSize
}

// ItemID returns the line pointer for the 1-based offset off.
func (p Page) ItemID(off uint16) (ItemID, error) {
	if off == 0 || int(off) > p.MaxOffset() {
		return ItemID{}, decodeErrorf("offset %d outside slot directory of %d entries", off, p.MaxOffset())
	}
	pos := PageHeaderSize + (int(off)-1)*ItemIDSize
	if pos+ItemIDSize > len(p) {
		return ItemID{}, decodeErrorf("slot directory overruns page")
	}
	return parseItemID(binary.LittleEndian.Uint32(p[pos:])), nil
}

func (p Page) setItemID(off uint16, it ItemID) {
	pos := PageHeaderSize + (int(off)-1)*ItemIDSize
	binary.LittleEndian.PutUint32(p[pos:], it.raw())
}

// Tuple returns the stored tuple at off. The slice aliases the page.
func (p Page) Tuple(off uint16) (Tuple, error) {
	it, err := p.ItemID(off)
	if err != nil {
		return nil, err
	}
	switch it.Flags {
	case LPNormal:
	case LPDead:
		return nil, decodeErrorf("slot %d is dead", off)
	case LPRedirect:
		return nil, decodeErrorf("slot %d is a redirect", off)
	default:
		return nil, decodeErrorf("slot %d is unused", off)
	}
	start, end := int(it.Off), int(it.Off)+int(it.Len)
	if it.Len < TupleHeaderSize || start < PageHeaderSize || end > len(p) {
		return nil, decodeErrorf("slot %d points outside the page (off %d, len %d)", off, it.Off, it.Len)
	}
	return Tuple(p[start:end]), nil
}

// InitPage formats p as an empty heap page, like PageInit.
func InitPage(p Page) {
	clear(p)
	p.setLower(PageHeaderSize)
	p.setUpper(wal.BlockSize)
	binary.LittleEndian.PutUint16(p[16:], wal.BlockSize)
	binary.LittleEndian.PutUint16(p[18:], wal.BlockSize|pageLayoutVersion)
}

// AddItem stores item at off, which must be an unused slot or the first
// slot past the directory. It mirrors PageAddItem with overwrite set.
func (p Page) AddItem(item []byte, off uint16) error {
	limit := p.MaxOffset() + 1
	switch {
	case off == 0:
		return decodeErrorf("invalid item offset 0")
	case int(off) > limit:
		return decodeErrorf("item offset %d is too large, max is %d", off, limit)
	case int(off) > MaxTuplesPerPage:
		return decodeErrorf("item offset %d exceeds %d tuples per page", off, MaxTuplesPerPage)
	case int(off) < limit:
		it, err := p.ItemID(off)
		if err != nil {
			return err
		}
		if it.Flags != LPUnused || it.Len != 0 {
			return decodeErrorf("will not overwrite used slot %d", off)
		}
	}

	lower := int(p.Lower())
	if int(off) == limit {
		lower += ItemIDSize
	}
	upper := int(p.Upper()) - int((uint64(len(item))+7)&^7)
	if lower > upper || upper < PageHeaderSize {
		return decodeErrorf("no room for %d byte item at slot %d", len(item), off)
	}
	if p.Upper() > p.Special() || int(p.Special()) > len(p) {
		return decodeErrorf("corrupted page pointers: lower %d, upper %d, special %d", p.Lower(), p.Upper(), p.Special())
	}

	p.setLower(uint16(lower))
	p.setItemID(off, ItemID{Off: uint16(upper), Flags: LPNormal, Len: uint16(len(item))})
	copy(p[upper:], item)
	p.setUpper(uint16(upper))
	return nil
}

func (p Page) String() string {
	return fmt.Sprintf("page(lsn %s, lower %d, upper %d, items %d)", p.LSN(), p.Lower(), p.Upper(), p.MaxOffset())
}
