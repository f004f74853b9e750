package hsne

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies how an artifact file is framed on disk.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
)

var (
	zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}
	lz4Magic  = []byte{0x04, 0x22, 0x4D, 0x18}
)

// ParseCompression maps a user-supplied name to a Compression.
func ParseCompression(name string) (Compression, error) {
	switch c := Compression(strings.ToLower(name)); c {
	case "", CompressionNone:
		return CompressionNone, nil
	case CompressionZstd, CompressionLZ4:
		return c, nil
	default:
		return "", fmt.Errorf("unknown compression %q, options are none, zstd or lz4", name)
	}
}

// sniff detects the framing of an artifact from its first bytes.
func sniff(br *bufio.Reader) Compression {
	head, _ := br.Peek(4)
	switch {
	case bytes.Equal(head, zstdMagic):
		return CompressionZstd
	case bytes.Equal(head, lz4Magic):
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

// ParseFile parses the artifact at path. Zstd and lz4 framed files are
// decompressed transparently. The file is closed before ParseFile returns.
func ParseFile(path string, opts ...ParseOption) (*Hierarchy, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open hierarchy file %s: %w", path, err)
	}
	defer f.Close()

	h, err := ParseFramed(f, opts...)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return h, nil
}

// ParseFramed is Parse for input that may be zstd or lz4 framed. With
// WithMaxDecodedBytes set, input that decodes past the cap fails with
// ErrInputTooLarge.
func ParseFramed(r io.Reader, opts ...ParseOption) (*Hierarchy, error) {
	limit := newParseOptions(opts).maxDecoded
	br := bufio.NewReader(r)
	var src io.Reader = br
	switch sniff(br) {
	case CompressionZstd:
		dec, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		defer dec.Close()
		src = dec
	case CompressionLZ4:
		src = lz4.NewReader(br)
	}
	if limit > 0 {
		src = &cappedReader{r: src, remaining: limit, limit: limit}
	}
	return Parse(src, opts...)
}

// cappedReader fails once more than limit bytes have come out of r.
type cappedReader struct {
	r         io.Reader
	remaining int64
	limit     int64
}

func (c *cappedReader) Read(p []byte) (int, error) {
	if int64(len(p)) > c.remaining {
		p = p[:c.remaining+1]
	}
	n, err := c.r.Read(p)
	if int64(n) > c.remaining {
		return 0, fmt.Errorf("%w: decoded artifact exceeds %d bytes", ErrInputTooLarge, c.limit)
	}
	c.remaining -= int64(n)
	return n, err
}

// EncodeFile writes h to path using the given framing.
func EncodeFile(path string, h *Hierarchy, c Compression, order binary.ByteOrder) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create hierarchy file %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()

	switch c {
	case CompressionZstd:
		enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return fmt.Errorf("zstd writer for %s: %w", path, err)
		}
		if err := Encode(enc, h, order); err != nil {
			enc.Close()
			return err
		}
		return enc.Close()
	case CompressionLZ4:
		enc := lz4.NewWriter(f)
		if err := Encode(enc, h, order); err != nil {
			enc.Close()
			return err
		}
		return enc.Close()
	default:
		return Encode(f, h, order)
	}
}
