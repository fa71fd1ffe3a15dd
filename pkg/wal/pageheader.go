package wal

import (
	"encoding/binary"

	"github.com/bft-labs/walminer/pkg/lsn"
)

// PageHeader is the decoded XLogPageHeaderData, plus the long-header
// fields when present.
type PageHeader struct {
	Magic     uint16
	Info      uint16
	Timeline  uint32
	PageAddr  lsn.LSN
	RemLen    uint32
	SystemID  uint64
	SegSize   uint32
	BlockSize uint32
}

// Long reports whether the page carries the long header.
func (h PageHeader) Long() bool { return h.Info&pageLongHeader != 0 }

// ContRecord reports whether the page starts with the tail of a record.
func (h PageHeader) ContRecord() bool { return h.Info&pageFirstIsContRecord != 0 }

// OverwriteContRecord reports whether the page replaced the tail of a
// record lost in a crash. Such a page starts with a fresh record.
func (h PageHeader) OverwriteContRecord() bool { return h.Info&pageFirstIsOverwriteContRecord != 0 }

// Size returns the number of header bytes before record data.
func (h PageHeader) Size() int {
	if h.Long() {
		return LongPageHeaderSize
	}
	return ShortPageHeaderSize
}

// ParsePageHeader decodes the header at the start of page. The buffer must
// hold at least ShortPageHeaderSize bytes, or LongPageHeaderSize for a long
// header.
func ParsePageHeader(page []byte) (PageHeader, bool) {
	if len(page) < ShortPageHeaderSize {
		return PageHeader{}, false
	}
	h := PageHeader{
		Magic:    binary.LittleEndian.Uint16(page[0:2]),
		Info:     binary.LittleEndian.Uint16(page[2:4]),
		Timeline: binary.LittleEndian.Uint32(page[4:8]),
		PageAddr: lsn.LSN(binary.LittleEndian.Uint64(page[8:16])),
		RemLen:   binary.LittleEndian.Uint32(page[16:20]),
	}
	if h.Long() {
		if len(page) < LongPageHeaderSize {
			return h, false
		}
		h.SystemID = binary.LittleEndian.Uint64(page[24:32])
		h.SegSize = binary.LittleEndian.Uint32(page[32:36])
		h.BlockSize = binary.LittleEndian.Uint32(page[36:40])
	}
	return h, true
}

// validatePageHeader checks the header of the page read at pagePtr. It
// returns ErrEndOfLog for pages that were never written or belong to a
// recycled segment.
func validatePageHeader(h PageHeader, pagePtr lsn.LSN, segSize uint32) error {
	if h.Magic == 0 && h.Info == 0 && h.PageAddr == 0 {
		return ErrEndOfLog
	}
	if !knownMagic(h.Magic) {
		return recordErrorf(pagePtr, "invalid magic number %04X in page header", h.Magic)
	}
	if h.Info&^pageAllFlags != 0 {
		return recordErrorf(pagePtr, "invalid info bits %04X in page header", h.Info)
	}
	if h.PageAddr != pagePtr {
		return ErrEndOfLog
	}
	if h.Long() {
		if h.SegSize != segSize {
			return recordErrorf(pagePtr, "segment size %d in page header, expected %d", h.SegSize, segSize)
		}
		if h.BlockSize != PageSize {
			return recordErrorf(pagePtr, "page size %d in page header, expected %d", h.BlockSize, PageSize)
		}
	} else if pagePtr.SegmentOffset(segSize) == 0 {
		return recordErrorf(pagePtr, "first page of segment lacks the long header")
	}
	return nil
}
