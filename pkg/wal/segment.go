package wal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bft-labs/walminer/pkg/log"
	"github.com/bft-labs/walminer/pkg/lsn"
)

// SegmentReader reads pages from the segment files of one timeline. It owns
// at most one open file at a time; switching segments closes the previous
// file before the next one is opened.
type SegmentReader struct {
	dir      string
	segSize  uint32
	timeline uint32
	end      lsn.LSN
	logger   log.Logger

	file   *os.File
	path   string
	segno  uint64
	opened bool

	endReached bool
}

// NewSegmentReader returns a reader over dir. end is exclusive; lsn.Invalid
// means no end pointer.
func NewSegmentReader(dir string, segSize, timeline uint32, end lsn.LSN, logger log.Logger) *SegmentReader {
	if logger == nil {
		logger = log.Nop
	}
	return &SegmentReader{
		dir:      dir,
		segSize:  segSize,
		timeline: timeline,
		end:      end,
		logger:   logger,
	}
}

// SegSize returns the segment size in bytes.
func (s *SegmentReader) SegSize() uint32 { return s.segSize }

// EndReached reports whether a read was refused because of the end pointer.
func (s *SegmentReader) EndReached() bool { return s.endReached }

// Open makes segno the current segment. A missing file is the end of the
// log, any other failure is returned as is.
func (s *SegmentReader) Open(segno uint64) error {
	if s.opened && s.segno == segno {
		return nil
	}
	s.Close()

	name := lsn.FileName(s.timeline, segno, s.segSize)
	path := filepath.Join(s.dir, name)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Debug("segment not present", log.String("path", path))
			return fmt.Errorf("%w: segment %s not present", ErrEndOfLog, name)
		}
		return fmt.Errorf("could not open file %q: %w", path, err)
	}
	s.logger.Debug("opened segment", log.String("path", path))
	s.file = f
	s.path = path
	s.segno = segno
	s.opened = true
	return nil
}

// Close releases the current segment file, if any.
func (s *SegmentReader) Close() error {
	if !s.opened {
		return nil
	}
	err := s.file.Close()
	s.logger.Debug("closed segment", log.String("path", s.path))
	s.file = nil
	s.path = ""
	s.opened = false
	return err
}

// ReadPage reads the WAL page starting at pagePtr into buf, which must be
// PageSize bytes long. reqLen is the number of bytes the caller needs from
// the page. It returns how many bytes are valid.
//
// With an end pointer the page is clipped: the whole page is returned when
// it lies before end, the prefix up to end when reqLen still fits, and
// ErrEndOfLog otherwise.
func (s *SegmentReader) ReadPage(pagePtr lsn.LSN, reqLen int, buf []byte) (int, error) {
	count := PageSize
	if s.end != lsn.Invalid {
		switch {
		case pagePtr+PageSize <= s.end:
		case pagePtr+lsn.LSN(reqLen) <= s.end:
			count = int(s.end - pagePtr)
		default:
			s.endReached = true
			return 0, ErrEndOfLog
		}
	}

	if err := s.Open(pagePtr.SegmentNo(s.segSize)); err != nil {
		return 0, err
	}
	off := int64(pagePtr.SegmentOffset(s.segSize))
	n, err := s.file.ReadAt(buf[:count], off)
	if n < count {
		if err == nil || errors.Is(err, io.EOF) {
			err = nil
		}
		return n, &ReadError{Path: s.path, Offset: off, Read: n, Want: count, Err: err}
	}
	return count, nil
}
