package heapdump

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	gojson "github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects how the dump body is stored.
type Compression uint8

const (
	// CompressionNone stores the JSON body as is.
	CompressionNone Compression = 0
	// CompressionLZ4 stores the body as one LZ4 block (fast).
	CompressionLZ4 Compression = 1
	// CompressionZstd stores the body as one zstd frame (better ratio).
	CompressionZstd Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("Compression(%d)", uint8(c))
	}
}

// Version is the current dump format version.
const Version = 1

var magic = [6]byte{'H', 'C', 'D', 'U', 'M', 'P'}

// File layout:
//
//	[magic 6][version 1][compression 1]
//	[uncompressed size uint32][stored size uint32, 0 = uncompressed][body]
const (
	fileHeaderSize  = 8
	blockHeaderSize = 8

	// lz4MaxRatio bounds how far one LZ4 block can expand.
	lz4MaxRatio = 255
)

var (
	// ErrInvalidFormat is returned by Read for input that is not a heap dump.
	ErrInvalidFormat = errors.New("heapdump: invalid format")
	// ErrUnsupportedVersion is returned by Read for a newer format version.
	ErrUnsupportedVersion = errors.New("heapdump: unsupported version")
	// ErrUnknownCompression is returned for an unknown Compression value.
	ErrUnknownCompression = errors.New("heapdump: unknown compression")
)

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// Write encodes d as JSON and writes it to w with the given compression.
func Write(w io.Writer, d *Dump, c Compression) error {
	body, err := gojson.Marshal(d)
	if err != nil {
		return fmt.Errorf("heapdump: encode: %w", err)
	}
	if uint64(len(body)) > math.MaxUint32 {
		return fmt.Errorf("heapdump: dump of %d bytes too large", len(body))
	}

	stored, err := compress(body, c)
	if err != nil {
		return err
	}

	var hdr [fileHeaderSize + blockHeaderSize]byte
	copy(hdr[:], magic[:])
	hdr[6] = Version
	hdr[7] = byte(c)
	binary.LittleEndian.PutUint32(hdr[8:], uint32(len(body))) //nolint:gosec // checked above
	if stored != nil {
		binary.LittleEndian.PutUint32(hdr[12:], uint32(len(stored))) //nolint:gosec // smaller than body bound
	} else {
		stored = body
	}

	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err = w.Write(stored)
	return err
}

// compress returns the compressed body, or nil when the body is stored raw
// because compression is off or does not help.
func compress(body []byte, c Compression) ([]byte, error) {
	var out []byte
	switch c {
	case CompressionNone:
		return nil, nil
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(body)))
		n, err := lz4.CompressBlock(body, buf, nil)
		if err != nil {
			return nil, fmt.Errorf("heapdump: lz4: %w", err)
		}
		out = buf[:n]
	case CompressionZstd:
		enc := getZstdEncoder()
		out = enc.EncodeAll(body, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCompression, uint8(c))
	}
	if len(out) == 0 || len(out) >= len(body) {
		return nil, nil
	}
	return out, nil
}

// Read decodes a dump written by Write.
func Read(r io.Reader) (*Dump, error) {
	var hdr [fileHeaderSize + blockHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: short header: %w", ErrInvalidFormat, err)
	}
	if !bytes.Equal(hdr[:6], magic[:]) {
		return nil, fmt.Errorf("%w: bad magic", ErrInvalidFormat)
	}
	if hdr[6] > Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, hdr[6])
	}
	c := Compression(hdr[7])
	size := binary.LittleEndian.Uint32(hdr[8:])
	storedSize := binary.LittleEndian.Uint32(hdr[12:])

	n := size
	if storedSize != 0 {
		n = storedSize
	}
	// The header is untrusted: grow the buffer with the data actually read.
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(io.LimitReader(r, int64(n))); err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrInvalidFormat, err)
	}
	if uint32(buf.Len()) != n { //nolint:gosec // bounded by n
		return nil, fmt.Errorf("%w: truncated body: %d of %d bytes", ErrInvalidFormat, buf.Len(), n)
	}
	stored := buf.Bytes()

	body := stored
	if storedSize != 0 {
		var err error
		if body, err = decompress(stored, int(size), c); err != nil {
			return nil, err
		}
	}

	d := &Dump{}
	if err := gojson.Unmarshal(body, d); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}
	return d, nil
}

func decompress(stored []byte, size int, c Compression) ([]byte, error) {
	switch c {
	case CompressionLZ4:
		if size > lz4MaxRatio*len(stored) {
			return nil, fmt.Errorf("%w: lz4: declared size %d exceeds block bound", ErrInvalidFormat, size)
		}
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(stored, out)
		if err != nil {
			return nil, fmt.Errorf("%w: lz4: %w", ErrInvalidFormat, err)
		}
		if n != size {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrInvalidFormat)
		}
		return out, nil
	case CompressionZstd:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(stored, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %w", ErrInvalidFormat, err)
		}
		if len(out) != size {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrInvalidFormat)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCompression, uint8(c))
	}
}
