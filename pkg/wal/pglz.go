package wal

import "errors"

var errPGLZCorrupt = errors.New("pglz: compressed data is corrupt")

// pglzDecompress expands the pglz stream src into dst. The whole of src
// must be consumed and dst filled exactly.
//
// No maintained Go implementation of the pglz format exists, so it is
// implemented here.
func pglzDecompress(src, dst []byte) (int, error) {
	sp, dp := 0, 0
	for sp < len(src) && dp < len(dst) {
		ctrl := src[sp]
		sp++
		for bit := 0; bit < 8 && sp < len(src) && dp < len(dst); bit++ {
			if ctrl&1 != 0 {
				// Match tag: 4 bits of length, 12 bits of offset, and an
				// extra length byte when the short length is saturated.
				if sp+1 >= len(src) {
					return 0, errPGLZCorrupt
				}
				length := int(src[sp]&0x0f) + 3
				off := int(src[sp]&0xf0)<<4 | int(src[sp+1])
				sp += 2
				if length == 18 {
					if sp >= len(src) {
						return 0, errPGLZCorrupt
					}
					length += int(src[sp])
					sp++
				}
				if off == 0 || off > dp {
					return 0, errPGLZCorrupt
				}
				if length > len(dst)-dp {
					length = len(dst) - dp
				}
				// Overlapping copies repeat the pattern, so go byte by byte.
				for i := 0; i < length; i++ {
					dst[dp] = dst[dp-off]
					dp++
				}
			} else {
				dst[dp] = src[sp]
				dp++
				sp++
			}
			ctrl >>= 1
		}
	}
	if sp != len(src) || dp != len(dst) {
		return 0, errPGLZCorrupt
	}
	return dp, nil
}
