package wal_test

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/walminer/internal/waltest"
	"github.com/bft-labs/walminer/pkg/wal"
)

func TestCandidateDirs(t *testing.T) {
	assert.Equal(t, []string{"/w", filepath.Join("/w", "pg_wal")}, wal.CandidateDirs("/w", "/data"))
	assert.Equal(t, []string{".", "pg_wal", filepath.Join("/data", "pg_wal")}, wal.CandidateDirs("", "/data"))
	assert.Equal(t, []string{".", "pg_wal"}, wal.CandidateDirs("", ""))
}

func TestLocate_PicksFirstValidSegment(t *testing.T) {
	b := waltest.New(3, oneMiB)
	b.Noop(10)
	dir := writeLog(t, b)

	// Sorted before the real segment but declares a bogus size.
	bad := make([]byte, wal.LongPageHeaderSize)
	binary.LittleEndian.PutUint16(bad[2:], 0x0002)
	binary.LittleEndian.PutUint32(bad[32:], 12345)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "000000010000000000000001"), bad, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("hello"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "000000010000000000000000"), 0o700))

	loc, err := wal.Locate([]string{filepath.Join(dir, "missing"), dir}, nil)
	require.NoError(t, err)
	assert.Equal(t, dir, loc.Dir)
	assert.Equal(t, "000000010000000000000003", filepath.Base(loc.First))
	assert.Equal(t, uint32(oneMiB), loc.SegSize)
}

func TestLocate_NothingFound(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "00000001000000000000000Z"), []byte("x"), 0o600))

	_, err := wal.Locate([]string{dir, filepath.Join(dir, "pg_wal")}, nil)
	require.ErrorIs(t, err, wal.ErrNoValidSegment)
}

func TestValidateSegmentFile(t *testing.T) {
	dir := t.TempDir()

	_, err := wal.ValidateSegmentFile(filepath.Join(dir, "short"))
	require.ErrorIs(t, err, wal.ErrMalformedFileName)
	_, err = wal.ValidateSegmentFile(filepath.Join(dir, "00000001000000000000001G"))
	require.ErrorIs(t, err, wal.ErrMalformedFileName)

	noLong := filepath.Join(dir, "000000010000000000000001")
	require.NoError(t, os.WriteFile(noLong, make([]byte, wal.LongPageHeaderSize), 0o600))
	_, err = wal.ValidateSegmentFile(noLong)
	require.ErrorIs(t, err, wal.ErrInvalidSegmentSize)

	truncated := filepath.Join(dir, "000000010000000000000002")
	require.NoError(t, os.WriteFile(truncated, make([]byte, 10), 0o600))
	_, err = wal.ValidateSegmentFile(truncated)
	var rerr *wal.ReadError
	require.ErrorAs(t, err, &rerr)

	b := waltest.New(4, 16*oneMiB)
	b.Noop(1)
	_, err = b.WriteDir(dir)
	require.NoError(t, err)
	size, err := wal.ValidateSegmentFile(filepath.Join(dir, "000000010000000000000004"))
	require.NoError(t, err)
	assert.Equal(t, uint32(16*oneMiB), size)
}
