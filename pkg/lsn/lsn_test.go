package lsn

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    LSN
		wantErr bool
	}{
		{in: "0/01800C50", want: 0x1800c50},
		{in: "2/01800C50", want: 0x201800c50},
		{in: "0/1800028", want: 0x1800028},
		{in: "FFFFFFFF/FFFFFFFF", want: 0xFFFFFFFFFFFFFFFF},
		{in: "", wantErr: true},
		{in: "01800C50", wantErr: true},
		{in: "0/", wantErr: true},
		{in: "/1", wantErr: true},
		{in: "0/1/2", wantErr: true},
		{in: "0/XYZ", wantErr: true},
		{in: "123456789/0", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidPointer))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, "0/01800028", LSN(0x1800028).String())
	assert.Equal(t, "2/01800C50", LSN(0x201800c50).String())
	assert.Equal(t, "0/00000000", Invalid.String())
}

func TestTextRoundTrip(t *testing.T) {
	var l LSN
	require.NoError(t, l.UnmarshalText([]byte("0/01800D28")))
	b, err := l.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "0/01800D28", string(b))
}

func TestSegmentMath(t *testing.T) {
	const segSize = 1 << 20
	l := MustParse("0/01800028")
	assert.Equal(t, uint64(0x18), l.SegmentNo(segSize))
	assert.Equal(t, uint32(0x28), l.SegmentOffset(segSize))
	assert.Equal(t, l, FromSegment(0x18, 0x28, segSize))
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "000000010000000000000018", FileName(1, 0x18, 1<<20))
	// 16 MiB segments: 256 per xlog id.
	assert.Equal(t, "000000020000000100000003", FileName(2, 0x103, 16<<20))
}

func TestParseFileName(t *testing.T) {
	tli, segno, err := ParseFileName("000000010000000000000018", 1<<20)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), tli)
	assert.Equal(t, uint64(24), segno)

	tli, segno, err = ParseFileName("000000020000000100000003", 16<<20)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), tli)
	assert.Equal(t, uint64(0x103), segno)

	for _, bad := range []string{"00000001000000000000001", "00000001000000000000001G", "000000010000000000000018.partial"} {
		_, _, err := ParseFileName(bad, 1<<20)
		assert.ErrorIs(t, err, ErrInvalidFileName, bad)
	}
}

func TestIsSegmentFileName(t *testing.T) {
	tests := map[string]bool{
		"000000010000000000000018":         true,
		"000000010000000a000000ff":         true,
		"00000001000000000000001":          false,
		"00000001000000000000001G":         false,
		"000000010000000000000018.partial": false,
		"00000002.history":                 false,
		"":                                 false,
	}
	for name, want := range tests {
		assert.Equal(t, want, IsSegmentFileName(name), name)
	}
}
