package waltest

import (
	"testing"

	"github.com/bft-labs/walminer/pkg/wal"
)

// OpenReader writes the log into a temporary directory and returns a
// reader positioned on its first record.
func OpenReader(t testing.TB, b *Builder) *wal.Reader {
	t.Helper()
	dir := t.TempDir()
	if _, err := b.WriteDir(dir); err != nil {
		t.Fatalf("write segments: %v", err)
	}
	r := wal.NewReader(wal.NewSegmentReader(dir, b.SegSize, b.Timeline, 0, nil), nil)
	t.Cleanup(func() { r.Close() })
	if _, err := r.Seek(b.Start()); err != nil {
		t.Fatalf("seek %s: %v", b.Start(), err)
	}
	return r
}
