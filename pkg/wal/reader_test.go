package wal_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/walminer/internal/waltest"
	"github.com/bft-labs/walminer/pkg/lsn"
	"github.com/bft-labs/walminer/pkg/wal"
)

func TestReader_Sequential(t *testing.T) {
	b := waltest.New(1, oneMiB)
	var want []lsn.LSN
	for i := 0; i < 50; i++ {
		want = append(want, b.Noop(10+i*37))
	}
	dir := writeLog(t, b)

	r := newReader(t, dir, oneMiB, lsn.Invalid)
	first, err := r.Seek(b.Start())
	require.NoError(t, err)
	assert.Equal(t, want[0], first)

	got, err := readAll(r)
	require.ErrorIs(t, err, wal.ErrEndOfLog)
	assert.Equal(t, want, got)
	assert.Equal(t, wal.EndOfValidLog, r.State())

	// End of log is sticky.
	_, err = r.ReadRecord()
	require.ErrorIs(t, err, wal.ErrEndOfLog)
}

func TestReader_RecordSpanningSegments(t *testing.T) {
	b := waltest.New(1, oneMiB)
	segEnd := lsn.FromSegment(2, 0, oneMiB)
	b.FillTo(segEnd - 512)
	spanning := b.Noop(20000)
	after := b.Noop(16)
	dir := writeLog(t, b)

	require.Equal(t, uint64(1), spanning.SegmentNo(oneMiB))
	require.Greater(t, uint64(spanning), uint64(segEnd-wal.PageSize))

	r := newReader(t, dir, oneMiB, lsn.Invalid)
	_, err := r.Seek(spanning)
	require.NoError(t, err)

	rec, err := r.ReadRecord()
	require.NoError(t, err)
	assert.Equal(t, spanning, rec.LSN)
	assert.Equal(t, uint32(wal.RecordHeaderSize+5+20000), rec.TotalLen)
	require.Len(t, rec.MainData, 20000)
	for i, c := range rec.MainData {
		if c != byte(i) {
			t.Fatalf("main data byte %d = %d, want %d", i, c, byte(i))
		}
	}
	// Next is either after itself or the page boundary before its header.
	assert.LessOrEqual(t, uint64(rec.Next), uint64(after))
	assert.Greater(t, uint64(rec.Next), uint64(after)-wal.ShortPageHeaderSize-8)

	rec, err = r.ReadRecord()
	require.NoError(t, err)
	assert.Equal(t, after, rec.LSN)
	assert.Equal(t, spanning, rec.Prev)
}

func TestReader_MissingContinuationSegment(t *testing.T) {
	b := waltest.New(1, oneMiB)
	b.FillTo(lsn.FromSegment(2, 0, oneMiB) - 512)
	last := b.Noop(100)
	spanning := b.Noop(20000)
	dir := writeLog(t, b)
	require.NoError(t, os.Remove(filepath.Join(dir, lsn.FileName(1, 2, oneMiB))))

	r := newReader(t, dir, oneMiB, lsn.Invalid)
	_, err := r.Seek(last)
	require.NoError(t, err)

	rec, err := r.ReadRecord()
	require.NoError(t, err)
	assert.Equal(t, last, rec.LSN)
	assert.Equal(t, spanning, r.NextLSN())

	_, err = r.ReadRecord()
	require.ErrorIs(t, err, wal.ErrEndOfLog)
}

func TestReader_EndPointer(t *testing.T) {
	b := waltest.New(0x18, oneMiB)
	for i := 0; i < 200; i++ {
		b.Noop(50)
	}
	dir := writeLog(t, b)

	start := lsn.MustParse("0/01800028")
	end := lsn.MustParse("0/01800D28")
	r := newReader(t, dir, oneMiB, end)
	first, err := r.Seek(start)
	require.NoError(t, err)
	assert.Equal(t, start, first)

	got, err := readAll(r)
	require.ErrorIs(t, err, wal.ErrEndOfLog)
	require.NotEmpty(t, got)
	for _, p := range got {
		assert.GreaterOrEqual(t, uint64(p), uint64(start))
		assert.Less(t, uint64(p), uint64(end))
	}
	assert.Equal(t, wal.EndOfValidLog, r.State())
}

func TestReader_SeekInsideRecord(t *testing.T) {
	b := waltest.New(1, oneMiB)
	b.Noop(100)
	long := b.Noop(20000)
	next := b.Noop(10)
	dir := writeLog(t, b)

	tests := []struct {
		name  string
		start lsn.LSN
		want  lsn.LSN
	}{
		{"exact", long, long},
		{"just after start", long + 8, next},
		{"page fully covered", long + 9000, next},
		{"last continuation page", next - 8, next},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newReader(t, dir, oneMiB, lsn.Invalid)
			got, err := r.Seek(tt.start)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			rec, err := r.ReadRecord()
			require.NoError(t, err)
			assert.Equal(t, tt.want, rec.LSN)
		})
	}
}

func TestReader_SeekPastEnd(t *testing.T) {
	b := waltest.New(1, oneMiB)
	last := b.Noop(100)
	dir := writeLog(t, b)

	r := newReader(t, dir, oneMiB, lsn.Invalid)
	_, err := r.Seek(last + 8)
	require.ErrorIs(t, err, wal.ErrNoRecordAfterStart)

	_, err = r.Seek(lsn.Invalid)
	require.ErrorIs(t, err, wal.ErrNoRecordAfterStart)
}

func TestReader_ChecksumFailureReportedOnce(t *testing.T) {
	b := waltest.New(1, oneMiB)
	first := b.Noop(100)
	bad := b.Noop(100)
	b.Noop(100)
	b.Bytes()[bad-b.Start()+60] ^= 0xFF
	dir := writeLog(t, b)

	r := newReader(t, dir, oneMiB, lsn.Invalid)
	_, err := r.Seek(first)
	require.NoError(t, err)

	_, err = r.ReadRecord()
	require.NoError(t, err)

	_, err = r.ReadRecord()
	require.ErrorIs(t, err, wal.ErrInvalidRecord)
	var rerr *wal.RecordError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, bad, rerr.At)
	assert.Equal(t, wal.Failed, r.State())

	_, err = r.ReadRecord()
	require.ErrorIs(t, err, wal.ErrEndOfLog)
}

func TestReader_PrevLinkMismatch(t *testing.T) {
	b := waltest.New(1, oneMiB)
	first := b.Noop(100)
	b.AppendRaw(waltest.Encode(waltest.Record{RmID: wal.RmXLog, Info: 0x20, MainData: []byte{1}}, first+8))
	dir := writeLog(t, b)

	r := newReader(t, dir, oneMiB, lsn.Invalid)
	_, err := r.Seek(first)
	require.NoError(t, err)
	_, err = r.ReadRecord()
	require.NoError(t, err)

	_, err = r.ReadRecord()
	require.ErrorIs(t, err, wal.ErrInvalidRecord)
}

func TestReader_RecycledPageIsEndOfLog(t *testing.T) {
	b := waltest.New(1, oneMiB)
	first := b.Noop(100)
	b.Noop(9000)
	dir := writeLog(t, b)

	// The second page is a leftover from an older segment.
	path := filepath.Join(dir, lsn.FileName(1, 1, oneMiB))
	old := waltest.New(0, oneMiB)
	old.FillTo(old.Start() + 3*wal.PageSize)
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteAt(old.Bytes()[wal.PageSize:2*wal.PageSize], wal.PageSize)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	r := newReader(t, dir, oneMiB, lsn.Invalid)
	_, err = r.Seek(first)
	require.NoError(t, err)
	_, err = r.ReadRecord()
	require.NoError(t, err)

	_, err = r.ReadRecord()
	require.ErrorIs(t, err, wal.ErrEndOfLog)
	assert.Equal(t, wal.EndOfValidLog, r.State())
}

func TestReader_SwitchRecord(t *testing.T) {
	b := waltest.New(1, oneMiB)
	sw := b.Switch()
	next := b.Noop(10)
	dir := writeLog(t, b)

	require.Equal(t, lsn.FromSegment(2, wal.LongPageHeaderSize, oneMiB), next)

	r := newReader(t, dir, oneMiB, lsn.Invalid)
	_, err := r.Seek(sw)
	require.NoError(t, err)

	rec, err := r.ReadRecord()
	require.NoError(t, err)
	assert.True(t, rec.IsSwitch())

	rec, err = r.ReadRecord()
	require.NoError(t, err)
	assert.Equal(t, next, rec.LSN)
}

func TestReader_BlockReferences(t *testing.T) {
	rel := wal.RelFileLocator{Tablespace: 1663, Database: 5, RelNumber: 16384}
	page0 := testPage(48, 8000, 1)
	page1 := testPage(64, 7000, 2)

	b := waltest.New(1, oneMiB)
	at := b.Append(waltest.Record{
		XID:  742,
		RmID: wal.RmHeap,
		Info: 0x20,
		Blocks: []waltest.Block{
			{ID: 0, Locator: rel, Block: 7, Image: page0, ApplyImage: true, Hole: true, Data: []byte("row-data")},
			{ID: 1, Locator: rel, Block: 3, Image: page1, Hole: true, Compression: wal.CompressLZ4},
		},
		MainData: []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14},
	})
	dir := writeLog(t, b)

	r := newReader(t, dir, oneMiB, lsn.Invalid)
	_, err := r.Seek(at)
	require.NoError(t, err)
	rec, err := r.ReadRecord()
	require.NoError(t, err)

	assert.Equal(t, uint32(742), rec.XID)
	assert.Equal(t, uint8(wal.RmHeap), rec.RmID)
	assert.Equal(t, uint8(0x20), rec.Info)
	assert.Len(t, rec.MainData, 14)
	require.Len(t, rec.Blocks, 2)

	blk, ok := rec.Block(0)
	require.True(t, ok)
	assert.Equal(t, rel, blk.Locator)
	assert.Equal(t, uint32(7), blk.Block)
	assert.Equal(t, "row-data", string(blk.Data))
	assert.True(t, blk.ApplyImage)
	assert.Equal(t, uint16(48), blk.HoleOffset)
	assert.Equal(t, uint16(8000-48), blk.HoleLength)

	restored := make([]byte, wal.BlockSize)
	require.NoError(t, blk.RestoreImage(restored))
	assert.Equal(t, page0, restored)

	blk, ok = rec.Block(1)
	require.True(t, ok)
	assert.Equal(t, rel, blk.Locator)
	assert.Equal(t, wal.CompressLZ4, blk.Compression)
	assert.False(t, blk.HasData)
	require.NoError(t, blk.RestoreImage(restored))
	assert.Equal(t, page1, restored)

	_, ok = rec.Block(2)
	assert.False(t, ok)
}

func TestReader_ImagesWithoutMainData(t *testing.T) {
	rel := wal.RelFileLocator{Tablespace: 1663, Database: 5, RelNumber: 16384}
	page0 := testPage(40, 8100, 3)
	page1 := testPage(120, 4000, 4)

	// XLOG_FPI: two full-page images and nothing else. The image bytes
	// must not be taken for more block headers.
	b := waltest.New(1, oneMiB)
	at := b.Append(waltest.Record{
		RmID: wal.RmXLog,
		Info: 0xB0,
		Blocks: []waltest.Block{
			{ID: 0, Locator: rel, Block: 1, Image: page0, ApplyImage: true},
			{ID: 1, Locator: rel, Block: 2, Image: page1, ApplyImage: true, Hole: true},
		},
	})
	next := b.Noop(50)
	dir := writeLog(t, b)

	r := newReader(t, dir, oneMiB, lsn.Invalid)
	_, err := r.Seek(at)
	require.NoError(t, err)
	rec, err := r.ReadRecord()
	require.NoError(t, err)

	assert.Empty(t, rec.MainData)
	require.Len(t, rec.Blocks, 2)
	restored := make([]byte, wal.BlockSize)
	require.NoError(t, rec.Blocks[0].RestoreImage(restored))
	assert.Equal(t, page0, restored)
	require.NoError(t, rec.Blocks[1].RestoreImage(restored))
	assert.Equal(t, page1, restored)

	rec, err = r.ReadRecord()
	require.NoError(t, err)
	assert.Equal(t, next, rec.LSN)
}

func TestReader_OverwrittenContRecord(t *testing.T) {
	b := waltest.New(1, oneMiB)
	first := b.Noop(100)
	b.Noop(9000)
	at := b.OverwriteContRecord(first)
	after := b.Noop(30)
	dir := writeLog(t, b)

	require.Equal(t, lsn.LSN(0x00102018), at)

	r := newReader(t, dir, oneMiB, lsn.Invalid)
	_, err := r.Seek(first)
	require.NoError(t, err)

	got, err := readAll(r)
	require.ErrorIs(t, err, wal.ErrEndOfLog)
	assert.Equal(t, []lsn.LSN{first, at, after}, got)
}

func TestReader_SeekOntoOverwrittenPage(t *testing.T) {
	b := waltest.New(1, oneMiB)
	first := b.Noop(100)
	b.Noop(9000)
	at := b.OverwriteContRecord(first)
	dir := writeLog(t, b)

	r := newReader(t, dir, oneMiB, lsn.Invalid)
	got, err := r.Seek(at - at%wal.PageSize)
	require.NoError(t, err)
	assert.Equal(t, at, got)

	rec, err := r.ReadRecord()
	require.NoError(t, err)
	assert.Equal(t, uint8(wal.RmXLog), rec.RmID)
	assert.Equal(t, uint8(0xD0), rec.Info)
	assert.Equal(t, first, rec.Prev)
}

func TestReader_ResumeAfterLogGrows(t *testing.T) {
	b := waltest.New(1, oneMiB)
	var want []lsn.LSN
	for i := 0; i < 3; i++ {
		want = append(want, b.Noop(200))
	}
	dir := writeLog(t, b)

	r := newReader(t, dir, oneMiB, lsn.Invalid)
	_, err := r.Seek(b.Start())
	require.NoError(t, err)
	got, err := readAll(r)
	require.ErrorIs(t, err, wal.ErrEndOfLog)
	assert.Equal(t, want, got)

	// Nothing new yet: resuming just ends again.
	require.True(t, r.Resume())
	got, err = readAll(r)
	require.ErrorIs(t, err, wal.ErrEndOfLog)
	assert.Empty(t, got)

	var more []lsn.LSN
	for i := 0; i < 40; i++ {
		more = append(more, b.Noop(300))
	}
	_, err = b.WriteDir(dir)
	require.NoError(t, err)

	require.True(t, r.Resume())
	got, err = readAll(r)
	require.ErrorIs(t, err, wal.ErrEndOfLog)
	assert.Equal(t, more, got)
}

func TestReader_ResumeRefused(t *testing.T) {
	b := waltest.New(0x18, oneMiB)
	for i := 0; i < 100; i++ {
		b.Noop(50)
	}
	dir := writeLog(t, b)

	r := newReader(t, dir, oneMiB, lsn.MustParse("0/01800D28"))
	_, err := r.Seek(b.Start())
	require.NoError(t, err)
	_, err = readAll(r)
	require.ErrorIs(t, err, wal.ErrEndOfLog)
	assert.False(t, r.Resume(), "end pointer reached")

	r = newReader(t, dir, oneMiB, lsn.Invalid)
	_, err = r.Seek(b.Start())
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.False(t, r.Resume(), "closed")
}
