// Package waltest writes synthetic WAL segments for tests. The output is
// byte-for-byte what the server would write: long and short page headers,
// records split across pages and segments with continuation headers, and
// CRC-32C checksums.
package waltest

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/bft-labs/walminer/pkg/lsn"
	"github.com/bft-labs/walminer/pkg/wal"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Block is a block reference to encode.
type Block struct {
	ID       uint8
	Locator  wal.RelFileLocator
	Fork     uint8
	Block    uint32
	WillInit bool
	Data     []byte

	// Image is a full BlockSize page; nil means no image.
	Image      []byte
	ApplyImage bool
	// Hole removes the pd_lower..pd_upper gap from the stored image.
	Hole        bool
	Compression wal.Compression
}

// Record is a record to encode.
type Record struct {
	XID      uint32
	RmID     uint8
	Info     uint8
	Blocks   []Block
	MainData []byte
}

// Builder lays records out in a contiguous log starting at a segment
// boundary.
type Builder struct {
	SegSize  uint32
	Timeline uint32
	Magic    uint16
	SystemID uint64

	start lsn.LSN
	pos   lsn.LSN
	prev  lsn.LSN
	log   []byte
}

// New starts a log at the beginning of segment segno.
func New(segno uint64, segSize uint32) *Builder {
	start := lsn.FromSegment(segno, 0, segSize)
	return &Builder{
		SegSize:  segSize,
		Timeline: 1,
		Magic:    wal.Magic17,
		SystemID: 7300000000000000001,
		start:    start,
		pos:      start,
	}
}

// Pos returns the next free byte of the log.
func (b *Builder) Pos() lsn.LSN { return b.pos }

// Start returns the first byte of the log.
func (b *Builder) Start() lsn.LSN { return b.start }

// Append writes rec and returns the pointer where it starts.
func (b *Builder) Append(rec Record) lsn.LSN {
	b.align()
	if b.pos%wal.PageSize == 0 {
		b.pageHeader(0)
	}
	at := b.pos
	raw := Encode(rec, b.prev)
	b.prev = at
	b.write(raw)
	return at
}

// AppendRaw writes already encoded record bytes without touching prev.
func (b *Builder) AppendRaw(raw []byte) lsn.LSN {
	b.align()
	if b.pos%wal.PageSize == 0 {
		b.pageHeader(0)
	}
	at := b.pos
	b.prev = at
	b.write(raw)
	return at
}

// Prev returns the start of the last appended record.
func (b *Builder) Prev() lsn.LSN { return b.prev }

// Noop appends an XLOG_NOOP record carrying n bytes of main data.
func (b *Builder) Noop(n int) lsn.LSN {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i)
	}
	return b.Append(Record{RmID: wal.RmXLog, Info: 0x20, MainData: data})
}

// Switch appends an XLOG_SWITCH record and moves to the next segment.
func (b *Builder) Switch() lsn.LSN {
	at := b.Append(Record{RmID: wal.RmXLog, Info: 0x40})
	next := lsn.FromSegment((b.pos-1).SegmentNo(b.SegSize)+1, 0, b.SegSize)
	b.grow(next)
	b.pos = next
	return at
}

// OverwriteContRecord replays what crash recovery does when the tail of
// the last record never reached disk: the last page that record touched is
// rewritten with XLP_FIRST_IS_OVERWRITE_CONTRECORD and starts with an
// XLOG_OVERWRITE_CONTRECORD record naming the lost one. prev is the last
// record that survived. It returns where the new record starts.
func (b *Builder) OverwriteContRecord(prev lsn.LSN) lsn.LSN {
	lost := b.prev
	page := (b.pos - 1) &^ (wal.PageSize - 1)
	if page <= lost {
		panic("waltest: last record does not span a page boundary")
	}
	b.log = b.log[:page-b.start]
	b.pos = page
	b.pageHeader(0)
	info := binary.LittleEndian.Uint16(b.log[page-b.start+2:])
	binary.LittleEndian.PutUint16(b.log[page-b.start+2:], info|0x0008)

	data := make([]byte, 16)
	binary.LittleEndian.PutUint64(data, uint64(lost))
	binary.LittleEndian.PutUint64(data[8:], 784000000000000)
	at := b.pos
	b.write(Encode(Record{RmID: wal.RmXLog, Info: 0xD0, MainData: data}, prev))
	b.prev = at
	return at
}

// FillTo appends no-op records until the log position is within a few
// dozen bytes of target.
func (b *Builder) FillTo(target lsn.LSN) {
	for b.pos+96 < target {
		n := int(target-b.pos) - 64
		if n > 4000 {
			n = 4000
		}
		b.Noop(n)
	}
}

func (b *Builder) align() {
	aligned := (b.pos + 7) &^ 7
	b.grow(aligned)
	b.pos = aligned
}

func (b *Builder) grow(to lsn.LSN) {
	need := int(to - b.start)
	if need > len(b.log) {
		b.log = append(b.log, make([]byte, need-len(b.log))...)
	}
}

func (b *Builder) write(raw []byte) {
	for len(raw) > 0 {
		if b.pos%wal.PageSize == 0 {
			b.pageHeader(uint32(len(raw)))
		}
		room := int(wal.PageSize - b.pos%wal.PageSize)
		n := min(room, len(raw))
		b.grow(b.pos + lsn.LSN(n))
		copy(b.log[b.pos-b.start:], raw[:n])
		b.pos += lsn.LSN(n)
		raw = raw[n:]
	}
}

// pageHeader writes the header of the page starting at pos. remLen > 0
// marks the page as starting with a continuation.
func (b *Builder) pageHeader(remLen uint32) {
	long := b.pos.SegmentOffset(b.SegSize) == 0
	size := wal.ShortPageHeaderSize
	if long {
		size = wal.LongPageHeaderSize
	}
	b.grow(b.pos + lsn.LSN(size))
	h := b.log[b.pos-b.start:]
	var info uint16
	if remLen > 0 {
		info |= 0x0001
	}
	if long {
		info |= 0x0002
	}
	binary.LittleEndian.PutUint16(h[0:], b.Magic)
	binary.LittleEndian.PutUint16(h[2:], info)
	binary.LittleEndian.PutUint32(h[4:], b.Timeline)
	binary.LittleEndian.PutUint64(h[8:], uint64(b.pos))
	binary.LittleEndian.PutUint32(h[16:], remLen)
	if long {
		binary.LittleEndian.PutUint64(h[24:], b.SystemID)
		binary.LittleEndian.PutUint32(h[32:], b.SegSize)
		binary.LittleEndian.PutUint32(h[36:], wal.PageSize)
	}
	b.pos += lsn.LSN(size)
}

// Bytes returns the log written so far, from Start.
func (b *Builder) Bytes() []byte { return b.log }

// WriteDir writes every segment touched by the log into dir, zero padded
// to the full segment size, and returns their paths.
func (b *Builder) WriteDir(dir string) ([]string, error) {
	first := b.start.SegmentNo(b.SegSize)
	last := (b.pos - 1).SegmentNo(b.SegSize)
	var paths []string
	for segno := first; segno <= last; segno++ {
		seg := make([]byte, b.SegSize)
		from := lsn.FromSegment(segno, 0, b.SegSize) - b.start
		if int(from) < len(b.log) {
			copy(seg, b.log[from:])
		}
		path := filepath.Join(dir, lsn.FileName(b.Timeline, segno, b.SegSize))
		if err := os.WriteFile(path, seg, 0o600); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// Encode serializes rec with its CRC. prev is the xl_prev link.
func Encode(rec Record, prev lsn.LSN) []byte {
	var hdr, payload []byte
	var lastRel *wal.RelFileLocator
	for i := range rec.Blocks {
		blk := &rec.Blocks[i]
		flags := blk.Fork & 0x0F
		var image []byte
		var bimgInfo uint8
		var holeOff, holeLen uint16
		if blk.Image != nil {
			flags |= 0x10
			image, bimgInfo, holeOff, holeLen = encodeImage(blk)
		}
		if len(blk.Data) > 0 {
			flags |= 0x20
		}
		if blk.WillInit {
			flags |= 0x40
		}
		sameRel := lastRel != nil && *lastRel == blk.Locator
		if sameRel {
			flags |= 0x80
		}
		hdr = append(hdr, blk.ID, flags)
		hdr = binary.LittleEndian.AppendUint16(hdr, uint16(len(blk.Data)))
		if blk.Image != nil {
			hdr = binary.LittleEndian.AppendUint16(hdr, uint16(len(image)))
			hdr = binary.LittleEndian.AppendUint16(hdr, holeOff)
			hdr = append(hdr, bimgInfo)
			if blk.Compression != wal.CompressNone && holeLen > 0 {
				hdr = binary.LittleEndian.AppendUint16(hdr, holeLen)
			}
		}
		if !sameRel {
			hdr = binary.LittleEndian.AppendUint32(hdr, blk.Locator.Tablespace)
			hdr = binary.LittleEndian.AppendUint32(hdr, blk.Locator.Database)
			hdr = binary.LittleEndian.AppendUint32(hdr, blk.Locator.RelNumber)
		}
		hdr = binary.LittleEndian.AppendUint32(hdr, blk.Block)
		lastRel = &blk.Locator

		payload = append(payload, image...)
		payload = append(payload, blk.Data...)
	}
	if n := len(rec.MainData); n > 0 {
		if n < 256 {
			hdr = append(hdr, 255, byte(n))
		} else {
			hdr = append(hdr, 254)
			hdr = binary.LittleEndian.AppendUint32(hdr, uint32(n))
		}
		payload = append(payload, rec.MainData...)
	}

	total := wal.RecordHeaderSize + len(hdr) + len(payload)
	raw := make([]byte, wal.RecordHeaderSize, total)
	binary.LittleEndian.PutUint32(raw[0:], uint32(total))
	binary.LittleEndian.PutUint32(raw[4:], rec.XID)
	binary.LittleEndian.PutUint64(raw[8:], uint64(prev))
	raw[16] = rec.Info
	raw[17] = rec.RmID
	raw = append(raw, hdr...)
	raw = append(raw, payload...)

	crc := crc32.Checksum(raw[wal.RecordHeaderSize:], castagnoli)
	crc = crc32.Update(crc, castagnoli, raw[:20])
	binary.LittleEndian.PutUint32(raw[20:], crc)
	return raw
}

func encodeImage(blk *Block) (image []byte, info uint8, holeOff, holeLen uint16) {
	if len(blk.Image) != wal.BlockSize {
		panic(fmt.Sprintf("waltest: image is %d bytes", len(blk.Image)))
	}
	if blk.ApplyImage {
		info |= 0x02
	}
	image = blk.Image
	if blk.Hole {
		lower := binary.LittleEndian.Uint16(blk.Image[12:])
		upper := binary.LittleEndian.Uint16(blk.Image[14:])
		if lower >= 24 && upper > lower && int(upper) <= wal.BlockSize {
			holeOff, holeLen = lower, upper-lower
			info |= 0x01
			image = append(append([]byte{}, blk.Image[:lower]...), blk.Image[upper:]...)
		}
	}
	switch blk.Compression {
	case wal.CompressLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(image)))
		n, err := lz4.CompressBlock(image, dst, nil)
		if err != nil || n == 0 {
			panic(fmt.Sprintf("waltest: lz4: %v", err))
		}
		image = dst[:n]
		info |= 0x08
	case wal.CompressZSTD:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			panic(err)
		}
		image = enc.EncodeAll(image, nil)
		enc.Close()
		info |= 0x10
	}
	return image, info, holeOff, holeLen
}
