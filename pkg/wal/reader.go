package wal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/bft-labs/walminer/pkg/log"
	"github.com/bft-labs/walminer/pkg/lsn"
)

// maxRecordSize mirrors XLogRecordMaxSize; anything larger is garbage.
const maxRecordSize = 1020 * 1024 * 1024

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// State is the assembler state between two calls to ReadRecord.
type State int

const (
	AwaitingHeader State = iota
	AwaitingBody
	EndOfValidLog
	Failed
)

func (s State) String() string {
	switch s {
	case AwaitingHeader:
		return "awaiting-header"
	case AwaitingBody:
		return "awaiting-body"
	case EndOfValidLog:
		return "end-of-valid-log"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Reader assembles records from the pages returned by a SegmentReader.
type Reader struct {
	seg     *SegmentReader
	segSize uint32
	logger  log.Logger

	state  State
	closed bool
	next   lsn.LSN
	// prev is the start of the last record returned, Invalid right after
	// a seek.
	prev lsn.LSN

	page    []byte
	pagePtr lsn.LSN
	pageLen int

	buf []byte
	rec Record
}

// NewReader returns an assembler reading through seg. Call Seek before the
// first ReadRecord.
func NewReader(seg *SegmentReader, logger log.Logger) *Reader {
	if logger == nil {
		logger = log.Nop
	}
	return &Reader{
		seg:     seg,
		segSize: seg.SegSize(),
		logger:  logger,
		state:   EndOfValidLog,
		page:    make([]byte, PageSize),
	}
}

// State returns the current assembler state.
func (r *Reader) State() State { return r.state }

// NextLSN returns where the next record is expected to start.
func (r *Reader) NextLSN() lsn.LSN { return r.next }

// Close releases the open segment file.
func (r *Reader) Close() error {
	r.state = EndOfValidLog
	r.closed = true
	return r.seg.Close()
}

// Seek positions the reader on the first complete record starting at or
// after start, skipping the tail of any record in progress at start.
func (r *Reader) Seek(start lsn.LSN) (lsn.LSN, error) {
	if start == lsn.Invalid {
		return lsn.Invalid, fmt.Errorf("%w %s: invalid start pointer", ErrNoRecordAfterStart, start)
	}

	tmp := start
	var first lsn.LSN
	for {
		pagePtr := tmp - tmp%PageSize
		hdr, err := r.readPage(pagePtr, ShortPageHeaderSize)
		if err != nil {
			return lsn.Invalid, fmt.Errorf("%w %s: %v", ErrNoRecordAfterStart, start, err)
		}
		hs := uint64(hdr.Size())
		if hdr.ContRecord() {
			if maxAlign(uint64(hdr.RemLen)) >= PageSize-hs {
				tmp = pagePtr + PageSize
				continue
			}
			first = pagePtr + lsn.LSN(hs+maxAlign(uint64(hdr.RemLen)))
		} else {
			first = pagePtr + lsn.LSN(hs)
		}
		break
	}

	r.reset(first)
	for {
		rec, err := r.ReadRecord()
		if err != nil {
			r.state = EndOfValidLog
			return lsn.Invalid, fmt.Errorf("%w %s: %v", ErrNoRecordAfterStart, start, err)
		}
		if rec.LSN >= start {
			r.reset(rec.LSN)
			return rec.LSN, nil
		}
	}
}

// Resume lets a reader that reached the end of the valid log try again
// from NextLSN, for a log that is still being written. It reports false
// after a corrupt record, after Close or once the end pointer was reached.
func (r *Reader) Resume() bool {
	if r.closed || r.state != EndOfValidLog || r.next == lsn.Invalid || r.seg.EndReached() {
		return false
	}
	r.pageLen = 0
	r.state = AwaitingHeader
	return true
}

func (r *Reader) reset(at lsn.LSN) {
	r.next = at
	r.prev = lsn.Invalid
	r.state = AwaitingHeader
}

// ReadRecord returns the next record. It returns ErrEndOfLog once the log
// ends. A corrupt record is reported once; every later call then returns
// ErrEndOfLog.
func (r *Reader) ReadRecord() (*Record, error) {
	if r.state == EndOfValidLog || r.state == Failed {
		return nil, ErrEndOfLog
	}
	rec, err := r.readRecord()
	if err != nil {
		if errors.Is(err, ErrEndOfLog) {
			r.logger.Debug("end of valid log", log.Stringer("at", r.next), log.Err(err))
			r.state = EndOfValidLog
			return nil, ErrEndOfLog
		}
		r.state = Failed
		return nil, err
	}
	r.state = AwaitingHeader
	return rec, nil
}

func (r *Reader) readRecord() (*Record, error) {
	recPtr := r.next
	if recPtr%PageSize == 0 {
		hdr, err := r.readPage(recPtr, ShortPageHeaderSize)
		if err != nil {
			return nil, err
		}
		recPtr += lsn.LSN(hdr.Size())
	}

	pagePtr := recPtr - recPtr%PageSize
	recOff := int(recPtr % PageSize)
	hdr, err := r.readPage(pagePtr, min(recOff+RecordHeaderSize, PageSize))
	if err != nil {
		return nil, err
	}
	if recOff < hdr.Size() {
		return nil, recordErrorf(recPtr, "invalid record offset")
	}
	if hdr.ContRecord() && recOff == hdr.Size() {
		return nil, recordErrorf(recPtr, "contrecord is requested")
	}
	magic := hdr.Magic

	// Records are MAXALIGNed, so xl_tot_len is always on this page.
	totLen := int(binary.LittleEndian.Uint32(r.page[recOff:]))
	switch {
	case totLen == 0:
		return nil, fmt.Errorf("%w: zero record length at %s", ErrEndOfLog, recPtr)
	case totLen < RecordHeaderSize:
		return nil, recordErrorf(recPtr, "invalid record length: expected at least %d, got %d", RecordHeaderSize, totLen)
	case totLen > maxRecordSize:
		return nil, recordErrorf(recPtr, "record length %d too long", totLen)
	}

	if cap(r.buf) < totLen {
		r.buf = make([]byte, totLen)
	}
	raw := r.buf[:totLen]

	var next lsn.LSN
	if avail := PageSize - recOff; totLen <= avail {
		if _, err := r.readPage(pagePtr, recOff+totLen); err != nil {
			return nil, err
		}
		copy(raw, r.page[recOff:recOff+totLen])
		next = recPtr + lsn.LSN(maxAlign(uint64(totLen)))
	} else {
		r.state = AwaitingBody
		if _, err := r.readPage(pagePtr, PageSize); err != nil {
			return nil, err
		}
		got := copy(raw, r.page[recOff:])
		for got < totLen {
			pagePtr += PageSize
			cont, err := r.readPage(pagePtr, ShortPageHeaderSize)
			if err != nil {
				return nil, err
			}
			if !cont.ContRecord() {
				if cont.OverwriteContRecord() {
					r.logger.Debug("record tail overwritten, restarting at page",
						log.Stringer("lsn", recPtr), log.Stringer("page", pagePtr))
					r.next = pagePtr
					r.state = AwaitingHeader
					return r.readRecord()
				}
				return nil, recordErrorf(recPtr, "there is no contrecord flag at %s", pagePtr)
			}
			if cont.RemLen == 0 || int(cont.RemLen) != totLen-got {
				return nil, recordErrorf(recPtr, "invalid contrecord length %d (expected %d) at %s", cont.RemLen, totLen-got, pagePtr)
			}
			hs := cont.Size()
			chunk := min(totLen-got, PageSize-hs)
			if _, err := r.readPage(pagePtr, hs+chunk); err != nil {
				return nil, err
			}
			got += copy(raw[got:], r.page[hs:hs+chunk])
			next = pagePtr + lsn.LSN(uint64(hs)+maxAlign(uint64(chunk)))
		}
	}

	if err := r.validateHeader(recPtr, raw); err != nil {
		return nil, err
	}
	if err := validateChecksum(recPtr, raw); err != nil {
		return nil, err
	}
	if err := decodeRecord(&r.rec, recPtr, raw, magic); err != nil {
		return nil, err
	}
	if r.rec.IsSwitch() {
		// The rest of the segment is padding.
		next += lsn.LSN(r.segSize - 1)
		next -= lsn.LSN(next.SegmentOffset(r.segSize))
	}
	r.rec.Next = next
	r.prev = recPtr
	r.next = next
	return &r.rec, nil
}

func (r *Reader) validateHeader(at lsn.LSN, raw []byte) error {
	prev := lsn.LSN(binary.LittleEndian.Uint64(raw[recPrevOff:]))
	if r.prev == lsn.Invalid {
		if prev >= at {
			return recordErrorf(at, "record with incorrect prev-link %s", prev)
		}
		return nil
	}
	if prev != r.prev {
		return recordErrorf(at, "record with incorrect prev-link %s, expected %s", prev, r.prev)
	}
	return nil
}

// validateChecksum checks xl_crc: CRC-32C over the payload, then over the
// header up to the crc field.
func validateChecksum(at lsn.LSN, raw []byte) error {
	crc := crc32.Checksum(raw[RecordHeaderSize:], castagnoli)
	crc = crc32.Update(crc, castagnoli, raw[:recCrcOff])
	if stored := binary.LittleEndian.Uint32(raw[recCrcOff:]); crc != stored {
		return recordErrorf(at, "incorrect resource manager data checksum")
	}
	return nil
}

// readPage makes sure at least reqLen bytes of the page at pagePtr are
// loaded and returns its validated header.
func (r *Reader) readPage(pagePtr lsn.LSN, reqLen int) (PageHeader, error) {
	hdrMin := ShortPageHeaderSize
	if pagePtr.SegmentOffset(r.segSize) == 0 {
		hdrMin = LongPageHeaderSize
	}
	reqLen = max(reqLen, hdrMin)

	if r.pageLen == 0 || r.pagePtr != pagePtr || r.pageLen < reqLen {
		n, err := r.seg.ReadPage(pagePtr, reqLen, r.page)
		if err != nil {
			r.pageLen = 0
			return PageHeader{}, err
		}
		r.pagePtr = pagePtr
		r.pageLen = n
	}

	hdr, ok := ParsePageHeader(r.page[:r.pageLen])
	if !ok {
		return hdr, recordErrorf(pagePtr, "page header truncated")
	}
	if err := validatePageHeader(hdr, pagePtr, r.segSize); err != nil {
		return hdr, err
	}
	return hdr, nil
}
