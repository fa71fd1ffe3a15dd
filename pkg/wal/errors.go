package wal

import (
	"errors"
	"fmt"

	"github.com/bft-labs/walminer/pkg/lsn"
)

var (
	// ErrNoValidSegment means no candidate directory held a usable segment.
	ErrNoValidSegment = errors.New("wal: no valid segment found")

	// ErrMalformedFileName is returned for names that are not 24 hex characters.
	ErrMalformedFileName = errors.New("wal: malformed segment file name")

	// ErrInvalidSegmentSize is returned when a long page header declares a
	// segment size outside the valid range.
	ErrInvalidSegmentSize = errors.New("wal: invalid segment size")

	// ErrTruncatedRead is a short read not explained by the end of the log.
	ErrTruncatedRead = errors.New("wal: truncated read")

	// ErrEndOfLog marks the clean end of the readable log.
	ErrEndOfLog = errors.New("wal: end of log")

	// ErrNoRecordAfterStart means no complete record begins at or after the
	// requested start pointer.
	ErrNoRecordAfterStart = errors.New("wal: no record after start")

	// ErrInvalidRecord covers framing, length and checksum failures.
	ErrInvalidRecord = errors.New("wal: invalid record")
)

// ReadError describes a failed or short read from a segment file.
type ReadError struct {
	Path   string
	Offset int64
	Read   int
	Want   int
	Err    error
}

func (e *ReadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("could not read from file %s, offset %d: %v", e.Path, e.Offset, e.Err)
	}
	return fmt.Sprintf("could not read from file %s, offset %d: read %d of %d", e.Path, e.Offset, e.Read, e.Want)
}

func (e *ReadError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrTruncatedRead
}

// RecordError locates a framing problem in the log.
type RecordError struct {
	At     lsn.LSN
	Reason string
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("invalid record at %s: %s", e.At, e.Reason)
}

func (e *RecordError) Unwrap() error { return ErrInvalidRecord }

func recordErrorf(at lsn.LSN, format string, args ...interface{}) error {
	return &RecordError{At: at, Reason: fmt.Sprintf(format, args...)}
}
