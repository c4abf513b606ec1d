package archive

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Frame format: [UncompressedSize uint32][CompressedSize uint32][CRC32 uint32][Data...]
// CompressedSize 0 means the data is stored uncompressed. The CRC covers the
// uncompressed bytes.
const frameHeaderSize = 12

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() (*zstd.Encoder, error) {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder), nil
	}
	return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
}

func getZstdDecoder() (*zstd.Decoder, error) {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder), nil
	}
	return zstd.NewReader(nil)
}

// EncodeFrame compresses data and prepends the frame header. Data that does
// not shrink below 90% of its size is stored uncompressed.
func EncodeFrame(data []byte, c Compression) ([]byte, error) {
	var (
		compressed []byte
		err        error
	)
	switch c {
	case CompressionNone:
	case CompressionLZ4:
		compressed, err = compressLZ4(data)
	case CompressionZSTD:
		compressed, err = compressZSTD(data)
	default:
		return nil, fmt.Errorf("archive: unknown compression %d", c)
	}
	if err != nil {
		return nil, err
	}

	stored := len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9
	payload := compressed
	if stored {
		payload = data
	}

	out := make([]byte, frameHeaderSize+len(payload))
	binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
	if !stored {
		binary.LittleEndian.PutUint32(out[4:], uint32(len(compressed)))
	}
	binary.LittleEndian.PutUint32(out[8:], crc32.ChecksumIEEE(data))
	copy(out[frameHeaderSize:], payload)
	return out, nil
}

func compressLZ4(data []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, dst, nil)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil // incompressible
	}
	return dst[:n], nil
}

func compressZSTD(data []byte) ([]byte, error) {
	enc, err := getZstdEncoder()
	if err != nil {
		return nil, err
	}
	defer zstdEncoderPool.Put(enc)
	return enc.EncodeAll(data, nil), nil
}

// decodeFrame decompresses a frame payload into dst, which must
// have the uncompressed length.
func decodeFrame(payload, dst []byte, compressed bool, c Compression) error {
	if !compressed {
		if len(payload) != len(dst) {
			return fmt.Errorf("%w: stored frame size mismatch", ErrBadArchive)
		}
		copy(dst, payload)
		return nil
	}

	switch c {
	case CompressionLZ4:
		n, err := lz4.UncompressBlock(payload, dst)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrBadArchive, err)
		}
		if n != len(dst) {
			return fmt.Errorf("%w: decompressed size mismatch", ErrBadArchive)
		}
	case CompressionZSTD:
		dec, err := getZstdDecoder()
		if err != nil {
			return err
		}
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(payload, dst[:0])
		if err != nil {
			return fmt.Errorf("%w: %w", ErrBadArchive, err)
		}
		if len(out) != len(dst) {
			return fmt.Errorf("%w: decompressed size mismatch", ErrBadArchive)
		}
	default:
		return fmt.Errorf("%w: compressed frame without compression", ErrBadArchive)
	}
	return nil
}
