package miner_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/walminer/internal/waltest"
	"github.com/bft-labs/walminer/pkg/catalog"
	"github.com/bft-labs/walminer/pkg/heap"
	"github.com/bft-labs/walminer/pkg/lsn"
	"github.com/bft-labs/walminer/pkg/miner"
	"github.com/bft-labs/walminer/pkg/pagecache"
	"github.com/bft-labs/walminer/pkg/wal"
)

const oneMiB = 1 << 20

var rel = wal.RelFileLocator{Tablespace: 1663, Database: 5, RelNumber: 16384}

func writeLog(t *testing.T, b *waltest.Builder) string {
	t.Helper()
	dir := t.TempDir()
	_, err := b.WriteDir(dir)
	require.NoError(t, err)
	return dir
}

func open(t *testing.T, cfg miner.Config, opts ...miner.Option) *miner.Session {
	t.Helper()
	s, err := miner.Open(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func drain(t *testing.T, s *miner.Session) []miner.Change {
	t.Helper()
	var out []miner.Change
	for {
		ch, err := s.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, ch)
	}
}

func TestSession_InsertNeedsPriorImage(t *testing.T) {
	first := waltest.Tuple(700, 0, 1, []byte("first row"))
	second := waltest.Tuple(701, 0, 2, []byte("second row"))

	b := waltest.New(1, oneMiB)
	b.Append(waltest.Insert(701, rel, 0, 2, []byte("second row"), nil))
	withImage := b.Append(waltest.Insert(700, rel, 0, 1, []byte("first row"), waltest.HeapPage(first)))
	again := b.Append(waltest.Insert(701, rel, 0, 2, []byte("second row"), nil))
	dir := writeLog(t, b)

	for _, backend := range []pagecache.Backend{pagecache.BackendMemory, pagecache.BackendLevelDB} {
		t.Run(string(backend), func(t *testing.T) {
			s := open(t, miner.Config{
				Start:  b.Start(),
				WALDir: dir,
				Cache:  pagecache.Options{Backend: backend},
			})
			changes := drain(t, s)
			require.Len(t, changes, 2)

			assert.Equal(t, withImage, changes[0].LSN)
			assert.Equal(t, heap.Insert, changes[0].Kind)
			assert.Nil(t, changes[0].Before)
			assert.Equal(t, first, changes[0].After)

			assert.Equal(t, again, changes[1].LSN)
			assert.Equal(t, uint32(701), changes[1].XID)
			assert.Equal(t, uint32(5), changes[1].Database)
			assert.Equal(t, uint32(16384), changes[1].RelID)
			assert.Nil(t, changes[1].Before)
			assert.Equal(t, second, changes[1].After)

			st := s.Stats()
			assert.Equal(t, uint64(3), st.Records)
			assert.Equal(t, uint64(2), st.Changes)
			assert.Equal(t, uint64(1), st.Skipped)
			assert.Equal(t, uint64(1), st.Cache.Images)
		})
	}
}

func TestSession_SkipsOtherResourceManagers(t *testing.T) {
	tup := waltest.Tuple(700, 3, 1, []byte("row"))

	b := waltest.New(1, oneMiB)
	b.Noop(40)
	b.Append(waltest.Record{RmID: wal.RmTransaction, Info: 0x00, XID: 700, MainData: []byte{1, 2, 3, 4, 5, 6, 7, 8}})
	b.Append(waltest.Record{RmID: wal.RmHeap2, Info: 0x10, XID: 700, MainData: []byte{0, 0}})
	b.Append(waltest.Record{RmID: wal.RmBtree, Info: 0x00, XID: 700, MainData: []byte{1, 0}})
	at := b.Append(waltest.Insert(700, rel, 3, 1, []byte("row"), waltest.HeapPage(tup)))
	b.Noop(40)
	s := open(t, miner.Config{Start: b.Start(), WALDir: writeLog(t, b)})

	changes := drain(t, s)
	require.Len(t, changes, 1)
	assert.Equal(t, at, changes[0].LSN)
	assert.Equal(t, uint64(6), s.Stats().Records)
	assert.Equal(t, uint64(5), s.Stats().Skipped)
}

func TestSession_EndOfLogIsIdempotent(t *testing.T) {
	b := waltest.New(1, oneMiB)
	b.Noop(10)
	s := open(t, miner.Config{Start: b.Start(), WALDir: writeLog(t, b)})

	for i := 0; i < 3; i++ {
		_, err := s.Next(context.Background())
		require.ErrorIs(t, err, io.EOF)
		assert.True(t, s.Done())
	}
}

func TestSession_ChangesAreOrdered(t *testing.T) {
	var tuples [][]byte
	for i := 1; i <= 4; i++ {
		tuples = append(tuples, waltest.Tuple(700, 0, uint16(i), []byte{byte('a' + i)}))
	}
	b := waltest.New(1, oneMiB)
	b.Append(waltest.Insert(700, rel, 0, 1, nil, waltest.HeapPage(tuples[0])))
	for i := 2; i <= 4; i++ {
		b.Noop(3000)
		b.Append(waltest.Insert(700, rel, 0, uint16(i), []byte{byte('a' + i)}, nil))
	}
	b.Append(waltest.Delete(701, rel, 0, 2, nil))
	b.Append(waltest.UpdateRecord(waltest.Update{XID: 702, Rel: rel, OldOff: 3, NewOff: 5, Data: []byte("moved")}))
	s := open(t, miner.Config{Start: b.Start(), WALDir: writeLog(t, b)})

	changes := drain(t, s)
	require.Len(t, changes, 6)
	for i := 1; i < len(changes); i++ {
		assert.Greater(t, changes[i].LSN, changes[i-1].LSN)
		assert.Greater(t, changes[i].Next, changes[i].LSN)
	}

	del := changes[4]
	assert.Equal(t, heap.Delete, del.Kind)
	assert.Nil(t, del.After)
	assert.Equal(t, []byte{'c'}, heap.Tuple(del.Before).Data())

	upd := changes[5]
	assert.Equal(t, heap.Update, upd.Kind)
	assert.Equal(t, []byte{'d'}, heap.Tuple(upd.Before).Data())
	assert.Equal(t, []byte("moved"), heap.Tuple(upd.After).Data())
	assert.Equal(t, upd.Next, s.NextLSN())
}

func TestSession_EndPointer(t *testing.T) {
	tup := waltest.Tuple(700, 0, 1, []byte("r1"))
	b := waltest.New(0x18, oneMiB)
	b.Append(waltest.Insert(700, rel, 0, 1, []byte("r1"), waltest.HeapPage(tup)))
	b.Append(waltest.Insert(700, rel, 0, 2, []byte("r2"), nil))
	b.Append(waltest.Insert(700, rel, 0, 3, []byte("r3"), nil))
	b.FillTo(lsn.MustParse("0/01801000"))
	late := b.Append(waltest.Insert(700, rel, 0, 4, []byte("r4"), nil))

	start, end := lsn.MustParse("0/01800028"), lsn.MustParse("0/01800D28")
	require.Equal(t, start, b.Start()+wal.LongPageHeaderSize)
	s := open(t, miner.Config{Start: start, End: end, Timeline: 1, WALDir: writeLog(t, b)})

	changes := drain(t, s)
	require.Len(t, changes, 3)
	for _, ch := range changes {
		assert.GreaterOrEqual(t, ch.LSN, start)
		assert.Less(t, ch.LSN, end)
		assert.NotEqual(t, late, ch.LSN)
	}
	_, err := s.Next(context.Background())
	require.ErrorIs(t, err, io.EOF)
}

func TestSession_UnmappedRelationIsSkipped(t *testing.T) {
	other := wal.RelFileLocator{Tablespace: 1663, Database: 5, RelNumber: 20000}
	t1 := waltest.Tuple(700, 0, 1, []byte("mapped"))
	t2 := waltest.Tuple(700, 0, 1, []byte("unmapped"))

	b := waltest.New(1, oneMiB)
	b.Append(waltest.Insert(700, other, 0, 1, nil, waltest.HeapPage(t2)))
	at := b.Append(waltest.Insert(700, rel, 0, 1, nil, waltest.HeapPage(t1)))

	resolver, err := catalog.NewStatic([]catalog.Relation{{Database: 5, RelFileNode: 16384, RelID: 90001, Name: "accounts"}})
	require.NoError(t, err)
	s := open(t, miner.Config{Start: b.Start(), WALDir: writeLog(t, b)}, miner.WithResolver(resolver))

	changes := drain(t, s)
	require.Len(t, changes, 1)
	assert.Equal(t, at, changes[0].LSN)
	assert.Equal(t, uint32(90001), changes[0].RelID)
	assert.Equal(t, uint32(16384), changes[0].RelFileNode)
}

// cachingResolver caches answers until invalidated. The file numbered
// appears is missing on its first lookup and known from then on, like a
// relation whose creation commits while mining.
type cachingResolver struct {
	appears       uint32
	known         map[uint32]bool
	cache         map[wal.RelFileLocator]bool
	invalidations int
}

func (r *cachingResolver) Resolve(_ context.Context, loc wal.RelFileLocator) (uint32, bool, error) {
	if ok, hit := r.cache[loc]; hit {
		return 90001, ok, nil
	}
	ok := r.known[loc.RelNumber]
	if !ok && loc.RelNumber == r.appears {
		r.known[loc.RelNumber] = true
	}
	r.cache[loc] = ok
	return 90001, ok, nil
}

func (r *cachingResolver) Invalidate() {
	r.invalidations++
	clear(r.cache)
}

func TestSession_ResolverSeesNewFileAfterCreate(t *testing.T) {
	fresh := wal.RelFileLocator{Tablespace: 1663, Database: 5, RelNumber: 16400}
	t1 := waltest.Tuple(700, 0, 1, []byte("before"))
	t2 := waltest.Tuple(701, 0, 2, []byte("after"))

	b := waltest.New(1, oneMiB)
	first := b.Append(waltest.Insert(700, fresh, 0, 1, nil, waltest.HeapPage(t1)))
	b.Append(waltest.Record{RmID: wal.RmStorage, Info: 0x10, MainData: make([]byte, 16)})
	at := b.Append(waltest.Insert(701, fresh, 0, 2, nil, waltest.HeapPage(t1, t2)))

	resolver := &cachingResolver{appears: fresh.RelNumber, known: map[uint32]bool{}, cache: map[wal.RelFileLocator]bool{}}
	s := open(t, miner.Config{Start: b.Start(), WALDir: writeLog(t, b)}, miner.WithResolver(resolver))
	assert.Equal(t, first, s.First())
	assert.Equal(t, lsn.Invalid, s.LastLSN())

	// The first insert caches a miss; the create record drops it.
	changes := drain(t, s)
	require.Len(t, changes, 1)
	assert.Equal(t, at, changes[0].LSN)
	assert.Equal(t, 1, resolver.invalidations)
	assert.Equal(t, at, s.LastLSN())
}

func TestSession_MalformedSlotIsSkipped(t *testing.T) {
	page := waltest.HeapPage(waltest.Tuple(700, 0, 1, []byte("gone")), waltest.Tuple(700, 0, 2, []byte("kept")))
	waltest.SetItemFlags(page, 1, 3)

	b := waltest.New(1, oneMiB)
	b.Append(waltest.Delete(701, rel, 0, 1, page))
	at := b.Append(waltest.Delete(701, rel, 0, 2, nil))
	s := open(t, miner.Config{Start: b.Start(), WALDir: writeLog(t, b)})

	changes := drain(t, s)
	require.Len(t, changes, 1)
	assert.Equal(t, at, changes[0].LSN)
	assert.Equal(t, []byte("kept"), heap.Tuple(changes[0].Before).Data())
}

func TestSession_CorruptRecordEndsSession(t *testing.T) {
	tup := waltest.Tuple(700, 0, 1, []byte("r1"))
	b := waltest.New(1, oneMiB)
	b.Append(waltest.Insert(700, rel, 0, 1, nil, waltest.HeapPage(tup)))
	bad := b.Noop(100)
	b.Append(waltest.Insert(700, rel, 0, 2, []byte("r2"), nil))
	b.Bytes()[bad-b.Start()+60] ^= 0xFF
	s := open(t, miner.Config{Start: b.Start(), WALDir: writeLog(t, b)})

	_, err := s.Next(context.Background())
	require.NoError(t, err)
	_, err = s.Next(context.Background())
	require.ErrorIs(t, err, wal.ErrInvalidRecord)
	_, err = s.Next(context.Background())
	require.ErrorIs(t, err, io.EOF)
}

func TestSession_Cancellation(t *testing.T) {
	tup := waltest.Tuple(700, 0, 1, []byte("r1"))
	b := waltest.New(1, oneMiB)
	at := b.Append(waltest.Insert(700, rel, 0, 1, nil, waltest.HeapPage(tup)))
	s := open(t, miner.Config{Start: b.Start(), WALDir: writeLog(t, b)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Next(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, s.Done())

	ch, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, at, ch.LSN)
}

func TestSession_ResumeAtNextLSN(t *testing.T) {
	tup := waltest.Tuple(700, 0, 1, []byte("r1"))
	b := waltest.New(1, oneMiB)
	b.Append(waltest.Insert(700, rel, 0, 1, nil, waltest.HeapPage(tup)))
	b.Append(waltest.Insert(700, rel, 0, 2, []byte("r2"), nil))
	third := b.Append(waltest.Insert(700, rel, 0, 1, nil, waltest.HeapPage(tup)))
	dir := writeLog(t, b)

	s := open(t, miner.Config{Start: b.Start(), WALDir: dir})
	first, err := s.Next(context.Background())
	require.NoError(t, err)

	resumed := open(t, miner.Config{Start: first.Next, WALDir: dir})
	changes := drain(t, resumed)
	// The second insert has no image of its page in the resumed session.
	require.Len(t, changes, 1)
	assert.Equal(t, third, changes[0].LSN)
}

func TestOpen_Errors(t *testing.T) {
	b := waltest.New(1, oneMiB)
	last := b.Noop(100)
	dir := writeLog(t, b)

	tests := []struct {
		name string
		cfg  miner.Config
		want error
	}{
		{"missing start", miner.Config{WALDir: dir}, miner.ErrInvalidConfig},
		{"end before start", miner.Config{Start: last, End: b.Start(), WALDir: dir}, miner.ErrInvalidConfig},
		{"unknown backend", miner.Config{Start: b.Start(), WALDir: dir, Cache: pagecache.Options{Backend: "redis"}}, miner.ErrInvalidConfig},
		{"no segments", miner.Config{Start: b.Start(), WALDir: t.TempDir()}, wal.ErrNoValidSegment},
		{"no record after start", miner.Config{Start: last + 8, WALDir: dir}, wal.ErrNoRecordAfterStart},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := miner.Open(context.Background(), tt.cfg)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestConfig_SetDefaults(t *testing.T) {
	t.Setenv("PGDATA", "/var/lib/postgresql/data")
	var cfg miner.Config
	cfg.SetDefaults()
	assert.Equal(t, uint32(miner.DefaultTimeline), cfg.Timeline)
	assert.Equal(t, "/var/lib/postgresql/data", cfg.PGData)
	assert.Equal(t, pagecache.BackendMemory, cfg.Cache.Backend)
}

func TestSession_ResumeKeepsPageCache(t *testing.T) {
	tup := waltest.Tuple(700, 0, 1, []byte("r1"))
	b := waltest.New(1, oneMiB)
	b.Append(waltest.Insert(700, rel, 0, 1, nil, waltest.HeapPage(tup)))
	dir := writeLog(t, b)

	s := open(t, miner.Config{Start: b.Start(), WALDir: dir})
	require.Len(t, drain(t, s), 1)
	require.True(t, s.Done())

	at := b.Append(waltest.Insert(701, rel, 0, 2, []byte("r2"), nil))
	_, err := b.WriteDir(dir)
	require.NoError(t, err)

	require.True(t, s.Resume())
	changes := drain(t, s)
	require.Len(t, changes, 1)
	assert.Equal(t, at, changes[0].LSN)
	assert.Equal(t, []byte("r2"), heap.Tuple(changes[0].After).Data())

	require.NoError(t, s.Close())
	assert.False(t, s.Resume())
}
