package heap

import "encoding/binary"

// t_infomask bits.
const (
	xmaxKeyShrLock = 0x0010
	xmaxExclLock   = 0x0040
	xmaxLockOnly   = 0x0080
	xmaxIsMulti    = 0x1000
	lockMask       = 0x0050

	// xmaxBits is HEAP_XMAX_BITS.
	xmaxBits = 0x1ED0
	// moved is HEAP_MOVED_OFF | HEAP_MOVED_IN.
	moved = 0xC000
)

// t_infomask2 bits.
const (
	keysUpdated = 0x2000
	hotUpdated  = 0x4000
)

// Bits of xl_heap_*'s infobits_set.
const (
	xlhlXmaxIsMulti    = 0x01
	xlhlXmaxLockOnly   = 0x02
	xlhlXmaxExclLock   = 0x04
	xlhlXmaxKeyShrLock = 0x08
	xlhlKeysUpdated    = 0x10
)

// Tuple is a heap tuple: the fixed header followed by the null bitmap and
// the attribute data.
type Tuple []byte

func (t Tuple) Xmin() uint32          { return binary.LittleEndian.Uint32(t[0:]) }
func (t Tuple) Xmax() uint32          { return binary.LittleEndian.Uint32(t[4:]) }
func (t Tuple) Infomask2() uint16     { return binary.LittleEndian.Uint16(t[18:]) }
func (t Tuple) Infomask() uint16      { return binary.LittleEndian.Uint16(t[20:]) }
func (t Tuple) Hoff() uint8           { return t[22] }
func (t Tuple) Natts() int            { return int(t.Infomask2() & 0x07FF) }
func (t Tuple) HotUpdated() bool      { return t.Infomask2()&hotUpdated != 0 }
func (t Tuple) setXmin(x uint32)      { binary.LittleEndian.PutUint32(t[0:], x) }
func (t Tuple) setXmax(x uint32)      { binary.LittleEndian.PutUint32(t[4:], x) }
func (t Tuple) setCid(c uint32)       { binary.LittleEndian.PutUint32(t[8:], c) }
func (t Tuple) setInfomask2(v uint16) { binary.LittleEndian.PutUint16(t[18:], v) }
func (t Tuple) setInfomask(v uint16)  { binary.LittleEndian.PutUint16(t[20:], v) }

// Ctid returns the block and offset t_ctid points at.
func (t Tuple) Ctid() (uint32, uint16) {
	hi := binary.LittleEndian.Uint16(t[12:])
	lo := binary.LittleEndian.Uint16(t[14:])
	return uint32(hi)<<16 | uint32(lo), binary.LittleEndian.Uint16(t[16:])
}

func (t Tuple) setCtid(blk uint32, off uint16) {
	binary.LittleEndian.PutUint16(t[12:], uint16(blk>>16))
	binary.LittleEndian.PutUint16(t[14:], uint16(blk))
	binary.LittleEndian.PutUint16(t[16:], off)
}

// Data returns the attribute data past t_hoff.
func (t Tuple) Data() []byte {
	if int(t.Hoff()) > len(t) {
		return nil
	}
	return t[t.Hoff():]
}

// clone returns a copy that does not alias the page.
func (t Tuple) clone() Tuple {
	return append(Tuple(nil), t...)
}

// fixInfomask applies infobits_set the way fix_infomask_from_infobits does.
func (t Tuple) fixInfomask(infobits uint8) {
	mask := t.Infomask() &^ (xmaxIsMulti | xmaxLockOnly | xmaxKeyShrLock | xmaxExclLock)
	mask2 := t.Infomask2() &^ keysUpdated
	if infobits&xlhlXmaxIsMulti != 0 {
		mask |= xmaxIsMulti
	}
	if infobits&xlhlXmaxLockOnly != 0 {
		mask |= xmaxLockOnly
	}
	if infobits&xlhlXmaxExclLock != 0 {
		mask |= xmaxExclLock
	}
	if infobits&xlhlXmaxKeyShrLock != 0 {
		mask |= xmaxKeyShrLock
	}
	if infobits&xlhlKeysUpdated != 0 {
		mask2 |= keysUpdated
	}
	t.setInfomask(mask)
	t.setInfomask2(mask2)
}

// clearXmax drops every xmax related bit before a new xmax is stamped.
func (t Tuple) clearXmax() {
	t.setInfomask(t.Infomask() &^ (xmaxBits | moved))
}

func (t Tuple) xmaxLockedOnly() bool {
	mask := t.Infomask()
	return mask&xmaxLockOnly != 0 || mask&(xmaxIsMulti|lockMask) == xmaxExclLock
}
