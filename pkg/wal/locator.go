package wal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/bft-labs/walminer/pkg/log"
	"github.com/bft-labs/walminer/pkg/lsn"
)

// DirName is the name of the WAL directory inside a data directory.
const DirName = "pg_wal"

// CandidateDirs lists where to look for segments, in priority order.
//
// With an override: dir, dir/pg_wal. Without: ".", "./pg_wal" and
// $PGDATA/pg_wal when pgdata is set.
func CandidateDirs(override, pgdata string) []string {
	if override != "" {
		return []string{override, filepath.Join(override, DirName)}
	}
	dirs := []string{".", filepath.Join(".", DirName)}
	if pgdata != "" {
		dirs = append(dirs, filepath.Join(pgdata, DirName))
	}
	return dirs
}

// Location is the result of a successful Locate.
type Location struct {
	Dir     string
	First   string
	SegSize uint32
}

// Locate scans candidates in order and returns the first directory holding
// a valid segment file. Per-directory failures are logged and skipped.
func Locate(candidates []string, logger log.Logger) (Location, error) {
	if logger == nil {
		logger = log.Nop
	}
	for _, dir := range candidates {
		path, segSize, err := SearchDirectory(dir, logger)
		if err != nil {
			logger.Debug("skipping wal directory candidate", log.String("dir", dir), log.Err(err))
			continue
		}
		logger.Info("found wal directory",
			log.String("dir", dir),
			log.String("segment", filepath.Base(path)),
			log.Uint32("segment_size", segSize),
		)
		return Location{Dir: dir, First: path, SegSize: segSize}, nil
	}
	return Location{}, fmt.Errorf("%w in %v", ErrNoValidSegment, candidates)
}

// SearchDirectory returns the lexicographically first valid segment in dir.
func SearchDirectory(dir string, logger log.Logger) (string, uint32, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return "", 0, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)
		segSize, err := ValidateSegmentFile(path)
		if err != nil {
			if !errors.Is(err, ErrMalformedFileName) {
				logger.Debug("ignoring segment candidate", log.String("path", path), log.Err(err))
			}
			continue
		}
		return path, segSize, nil
	}
	return "", 0, ErrNoValidSegment
}

// ValidateSegmentFile checks the file name and returns the segment size
// declared by the file's long page header.
func ValidateSegmentFile(path string) (uint32, error) {
	name := filepath.Base(path)
	if !lsn.IsSegmentFileName(name) {
		return 0, fmt.Errorf("%w: %s", ErrMalformedFileName, name)
	}
	return ReadSegmentSize(path)
}

// ReadSegmentSize reads xlp_seg_size from the first page of path.
func ReadSegmentSize(path string) (uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var buf [LongPageHeaderSize]byte
	n, err := io.ReadFull(f, buf[:])
	if err != nil {
		return 0, &ReadError{Path: path, Offset: 0, Read: n, Want: len(buf), Err: err}
	}
	info := binary.LittleEndian.Uint16(buf[2:4])
	if info&pageLongHeader == 0 {
		return 0, fmt.Errorf("%w: %s has no long page header", ErrInvalidSegmentSize, path)
	}
	segSize := binary.LittleEndian.Uint32(buf[32:36])
	if !ValidSegmentSize(segSize) {
		return 0, fmt.Errorf("%w %d in %s: must be a power of two between 1MB and 1GB", ErrInvalidSegmentSize, segSize, path)
	}
	return segSize, nil
}
