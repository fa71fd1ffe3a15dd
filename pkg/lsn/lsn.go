// Package lsn models positions in the write-ahead log address space.
//
// A log pointer is a 64-bit byte offset into the logical log. It is printed
// and parsed in the "high/low" hexadecimal form used by Postgres tooling
// (for example "0/01800028"). Segment files cover fixed-size, aligned
// ranges of that space; the helpers here convert between pointers, segment
// numbers and the 24-character segment file names.
package lsn

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pglogrepl"
)

// ErrInvalidPointer is returned when a textual log pointer cannot be parsed.
var ErrInvalidPointer = errors.New("lsn: invalid log pointer")

// ErrInvalidFileName is returned for names that are not 24 hex characters.
var ErrInvalidFileName = errors.New("lsn: invalid segment file name")

// FileNameLen is the length of a segment file name.
const FileNameLen = 24

// LSN is a byte position in the log.
type LSN uint64

// Invalid is the zero pointer; no record ever starts there.
const Invalid LSN = 0

// Parse converts "X/Y" into an LSN. Both halves must be 1 to 8 hex digits.
func Parse(s string) (LSN, error) {
	hi, lo, ok := strings.Cut(s, "/")
	if !ok || !isHex(hi, 8) || !isHex(lo, 8) {
		return Invalid, fmt.Errorf("%w: %q", ErrInvalidPointer, s)
	}
	v, err := pglogrepl.ParseLSN(s)
	if err != nil {
		return Invalid, fmt.Errorf("%w: %q: %v", ErrInvalidPointer, s, err)
	}
	return LSN(v), nil
}

// MustParse is like Parse but panics on malformed input.
func MustParse(s string) LSN {
	l, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return l
}

func isHex(s string, max int) bool {
	if len(s) == 0 || len(s) > max {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}

// String formats the pointer as high/low hex, low half zero padded.
func (l LSN) String() string {
	return fmt.Sprintf("%X/%08X", uint32(l>>32), uint32(l))
}

// MarshalText implements encoding.TextMarshaler.
func (l LSN) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *LSN) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// SegmentNo returns the number of the segment containing l.
func (l LSN) SegmentNo(segSize uint32) uint64 {
	return uint64(l) / uint64(segSize)
}

// SegmentOffset returns the offset of l inside its segment.
func (l LSN) SegmentOffset(segSize uint32) uint32 {
	return uint32(uint64(l) % uint64(segSize))
}

// FromSegment builds the pointer at offset bytes into segment segno.
func FromSegment(segno uint64, offset uint32, segSize uint32) LSN {
	return LSN(segno*uint64(segSize) + uint64(offset))
}

func segmentsPerXLogID(segSize uint32) uint64 {
	return 0x100000000 / uint64(segSize)
}

// FileName returns the segment file name for timeline tli and segment segno.
func FileName(tli uint32, segno uint64, segSize uint32) string {
	per := segmentsPerXLogID(segSize)
	return fmt.Sprintf("%08X%08X%08X", tli, segno/per, segno%per)
}

// IsSegmentFileName reports whether name has the form of a segment file
// name: 24 hex digits.
func IsSegmentFileName(name string) bool {
	return len(name) == FileNameLen && isHex(name, FileNameLen)
}

// ParseFileName splits a segment file name into its timeline and segment number.
func ParseFileName(name string, segSize uint32) (uint32, uint64, error) {
	if !IsSegmentFileName(name) {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidFileName, name)
	}
	var tli, log, seg uint32
	if _, err := fmt.Sscanf(name, "%08X%08X%08X", &tli, &log, &seg); err != nil {
		return 0, 0, fmt.Errorf("%w: %q: %v", ErrInvalidFileName, name, err)
	}
	return tli, uint64(log)*segmentsPerXLogID(segSize) + uint64(seg), nil
}
