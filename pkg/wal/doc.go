// Package wal reads Postgres write-ahead log segments.
//
// The package is layered the same way the bytes are:
//
//   - Locate finds the segment directory and learns the segment size from
//     the long page header of the first valid segment file.
//   - SegmentReader opens segment files by number and returns raw pages,
//     clipped to an optional end pointer.
//   - Reader is the record assembler. It stitches records that cross page
//     and segment boundaries, checks their CRC and decodes the block
//     references and main data.
//
// A Reader yields one *Record at a time. The record, including every slice
// hanging off it, is scratch memory owned by the Reader and is only valid
// until the next call to ReadRecord. Callers that need to keep bytes (the
// page cache does, for full-page images) copy them.
//
// Reaching the end of the valid log, either because the configured end
// pointer was reached or because the log simply stops, is reported as
// ErrEndOfLog. Every other failure is fatal for the reader: it remembers
// the error, reports it once and then behaves as if the log had ended.
package wal
