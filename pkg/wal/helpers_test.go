package wal_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bft-labs/walminer/internal/waltest"
	"github.com/bft-labs/walminer/pkg/lsn"
	"github.com/bft-labs/walminer/pkg/wal"
)

const oneMiB = 1 << 20

func writeLog(t *testing.T, b *waltest.Builder) string {
	t.Helper()
	dir := t.TempDir()
	_, err := b.WriteDir(dir)
	require.NoError(t, err)
	return dir
}

func newReader(t *testing.T, dir string, segSize uint32, end lsn.LSN) *wal.Reader {
	t.Helper()
	r := wal.NewReader(wal.NewSegmentReader(dir, segSize, 1, end, nil), nil)
	t.Cleanup(func() { r.Close() })
	return r
}

// readAll reads until the first error and returns the records' start
// pointers and that error.
func readAll(r *wal.Reader) ([]lsn.LSN, error) {
	var got []lsn.LSN
	for {
		rec, err := r.ReadRecord()
		if err != nil {
			return got, err
		}
		got = append(got, rec.LSN)
	}
}

// testPage returns a slotted page with data below pd_lower and above
// pd_upper and zeros between.
func testPage(lower, upper uint16, seed byte) []byte {
	page := make([]byte, wal.BlockSize)
	binary.LittleEndian.PutUint16(page[12:], lower)
	binary.LittleEndian.PutUint16(page[14:], upper)
	binary.LittleEndian.PutUint16(page[16:], wal.BlockSize)
	for i := 24; i < int(lower); i++ {
		page[i] = seed + byte(i)
	}
	for i := int(upper); i < wal.BlockSize; i++ {
		page[i] = seed ^ byte(i)
	}
	return page
}
