package wal

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies how a full-page image is stored.
type Compression uint8

const (
	CompressNone Compression = iota
	CompressPGLZ
	CompressLZ4
	CompressZSTD
)

func (c Compression) String() string {
	switch c {
	case CompressNone:
		return "none"
	case CompressPGLZ:
		return "pglz"
	case CompressLZ4:
		return "lz4"
	case CompressZSTD:
		return "zstd"
	}
	return fmt.Sprintf("compression(%d)", uint8(c))
}

// zstdDecoder is shared; DecodeAll is safe for concurrent use. Output is
// capped at one block.
var zstdDecoder = sync.OnceValues(func() (*zstd.Decoder, error) {
	return zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(BlockSize),
	)
})

// RestoreImage writes the full page image of b into page, which must be
// BlockSize bytes. The hole, if any, is zero filled.
func (b *BlockRef) RestoreImage(page []byte) error {
	if !b.HasImage {
		return fmt.Errorf("block %d has no image", b.ID)
	}
	if len(page) != BlockSize {
		return fmt.Errorf("page buffer is %d bytes, want %d", len(page), BlockSize)
	}
	want := BlockSize - int(b.HoleLength)
	src := b.Image

	if b.Compression != CompressNone {
		tmp := make([]byte, want)
		n, err := decompress(b.Compression, src, tmp)
		if err != nil {
			return fmt.Errorf("could not decompress %s image at blk %d: %w", b.Compression, b.ID, err)
		}
		if n != want {
			return fmt.Errorf("could not decompress %s image at blk %d: got %d bytes, want %d", b.Compression, b.ID, n, want)
		}
		src = tmp
	}
	if len(src) != want {
		return fmt.Errorf("image at blk %d is %d bytes, want %d", b.ID, len(src), want)
	}

	hole := int(b.HoleOffset)
	if b.HoleLength == 0 {
		copy(page, src)
		return nil
	}
	if hole > want {
		return fmt.Errorf("image hole at %d beyond image of %d bytes", hole, want)
	}
	copy(page[:hole], src[:hole])
	clear(page[hole : hole+int(b.HoleLength)])
	copy(page[hole+int(b.HoleLength):], src[hole:])
	return nil
}

func decompress(c Compression, src, dst []byte) (int, error) {
	switch c {
	case CompressPGLZ:
		return pglzDecompress(src, dst)
	case CompressLZ4:
		return lz4.UncompressBlock(src, dst)
	case CompressZSTD:
		dec, err := zstdDecoder()
		if err != nil {
			return 0, err
		}
		out, err := dec.DecodeAll(src, dst[:0])
		if err != nil {
			return 0, err
		}
		if len(out) > len(dst) {
			return 0, fmt.Errorf("decoded %d bytes into a %d byte buffer", len(out), len(dst))
		}
		copy(dst, out)
		return len(out), nil
	}
	return 0, fmt.Errorf("unsupported compression %s", c)
}
