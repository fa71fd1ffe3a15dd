package wal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPGLZDecompress(t *testing.T) {
	// Three literals, then a back reference of 9 bytes at distance 3.
	src := []byte{0x08, 'a', 'b', 'c', 0x06, 0x03}
	dst := make([]byte, 12)

	n, err := pglzDecompress(src, dst)
	require.NoError(t, err)
	require.Equal(t, 12, n)
	require.Equal(t, "abcabcabcabc", string(dst))
}

func TestPGLZDecompress_LongMatch(t *testing.T) {
	// One literal followed by a saturated match: 18 + 100 bytes.
	src := []byte{0x02, 'x', 0x0f, 0x01, 100}
	dst := make([]byte, 119)

	n, err := pglzDecompress(src, dst)
	require.NoError(t, err)
	require.Equal(t, 119, n)
	for i, c := range dst {
		require.Equalf(t, byte('x'), c, "byte %d", i)
	}
}

func TestPGLZDecompress_Corrupt(t *testing.T) {
	tests := []struct {
		name string
		src  []byte
		size int
	}{
		{"zero offset", []byte{0x01, 0x03, 0x00}, 6},
		{"offset before start", []byte{0x02, 'a', 0x01, 0x05}, 5},
		{"short output", []byte{0x00, 'a', 'b'}, 4},
		{"trailing input", []byte{0x00, 'a', 'b', 'c'}, 2},
		{"truncated tag", []byte{0x01, 0x03}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := pglzDecompress(tt.src, make([]byte, tt.size))
			require.ErrorIs(t, err, errPGLZCorrupt)
		})
	}
}
