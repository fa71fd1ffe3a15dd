package heap

import (
	"encoding/binary"
	"fmt"
)

// Op is the heap opcode in the high bits of xl_info.
type Op uint8

const (
	OpInsert    Op = 0x00
	OpDelete    Op = 0x10
	OpUpdate    Op = 0x20
	OpTruncate  Op = 0x30
	OpHotUpdate Op = 0x40
	OpConfirm   Op = 0x50
	OpLock      Op = 0x60
	OpInplace   Op = 0x70

	OpMask = 0x70
	// InfoInitPage marks records that start from a freshly initialized page.
	InfoInitPage = 0x80
)

// OpOf extracts the opcode from a record's info byte.
func OpOf(info uint8) Op { return Op(info & OpMask) }

func (o Op) String() string {
	switch o {
	case OpInsert:
		return "INSERT"
	case OpDelete:
		return "DELETE"
	case OpUpdate:
		return "UPDATE"
	case OpTruncate:
		return "TRUNCATE"
	case OpHotUpdate:
		return "HOT_UPDATE"
	case OpConfirm:
		return "CONFIRM"
	case OpLock:
		return "LOCK"
	case OpInplace:
		return "INPLACE"
	}
	return fmt.Sprintf("op(0x%02X)", uint8(o))
}

// xl_heap_insert flags.
const (
	insertAllVisibleCleared = 0x01
)

// xl_heap_delete flags.
const (
	deleteAllVisibleCleared = 0x01
	deleteIsSuper           = 0x08
)

// xl_heap_update flags.
const (
	updateOldAllVisibleCleared = 0x01
	updateNewAllVisibleCleared = 0x02
	updatePrefixFromOld        = 0x20
	updateSuffixFromOld        = 0x40
)

// Fixed part sizes of the main data structs.
const (
	sizeOfInsert = 3
	sizeOfDelete = 8
	sizeOfUpdate = 14
	sizeOfLock   = 8
	// sizeOfHeader is xl_heap_header: t_infomask2, t_infomask, t_hoff.
	sizeOfHeader = 5
)

type xlInsert struct {
	offnum uint16
	flags  uint8
}

func parseInsert(b []byte) (xlInsert, error) {
	if len(b) < sizeOfInsert {
		return xlInsert{}, decodeErrorf("insert main data is %d bytes", len(b))
	}
	return xlInsert{offnum: binary.LittleEndian.Uint16(b), flags: b[2]}, nil
}

type xlDelete struct {
	xmax     uint32
	offnum   uint16
	infobits uint8
	flags    uint8
}

func parseDelete(b []byte) (xlDelete, error) {
	if len(b) < sizeOfDelete {
		return xlDelete{}, decodeErrorf("delete main data is %d bytes", len(b))
	}
	return xlDelete{
		xmax:     binary.LittleEndian.Uint32(b),
		offnum:   binary.LittleEndian.Uint16(b[4:]),
		infobits: b[6],
		flags:    b[7],
	}, nil
}

type xlUpdate struct {
	oldXmax     uint32
	oldOffnum   uint16
	oldInfobits uint8
	flags       uint8
	newXmax     uint32
	newOffnum   uint16
}

func parseUpdate(b []byte) (xlUpdate, error) {
	if len(b) < sizeOfUpdate {
		return xlUpdate{}, decodeErrorf("update main data is %d bytes", len(b))
	}
	return xlUpdate{
		oldXmax:     binary.LittleEndian.Uint32(b),
		oldOffnum:   binary.LittleEndian.Uint16(b[4:]),
		oldInfobits: b[6],
		flags:       b[7],
		newXmax:     binary.LittleEndian.Uint32(b[8:]),
		newOffnum:   binary.LittleEndian.Uint16(b[12:]),
	}, nil
}

// xlLock shares its layout with xl_heap_delete.
type xlLock = xlDelete

func parseLock(b []byte) (xlLock, error) {
	if len(b) < sizeOfLock {
		return xlLock{}, decodeErrorf("lock main data is %d bytes", len(b))
	}
	return parseDelete(b)
}

func parseOffnum(b []byte, what string) (uint16, error) {
	if len(b) < 2 {
		return 0, decodeErrorf("%s main data is %d bytes", what, len(b))
	}
	return binary.LittleEndian.Uint16(b), nil
}

type xlHeader struct {
	infomask2 uint16
	infomask  uint16
	hoff      uint8
}

func parseHeader(b []byte) (xlHeader, error) {
	if len(b) < sizeOfHeader {
		return xlHeader{}, decodeErrorf("tuple header is %d bytes", len(b))
	}
	return xlHeader{
		infomask2: binary.LittleEndian.Uint16(b),
		infomask:  binary.LittleEndian.Uint16(b[2:]),
		hoff:      b[4],
	}, nil
}
