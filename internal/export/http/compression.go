package http

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// Compression type constants.
const (
	CompressionNone   = "none"
	CompressionGzip   = "gzip"
	CompressionZstd   = "zstd"
	CompressionZlib   = "zlib"
	CompressionSnappy = "snappy"
)

// Compressor compresses request bodies using a configured algorithm.
type Compressor struct {
	algorithm string
	encoder   *zstd.Encoder
}

// NewCompressor creates a new Compressor for the specified algorithm.
func NewCompressor(algorithm string) (*Compressor, error) {
	c := &Compressor{algorithm: algorithm}

	switch algorithm {
	case CompressionNone, "", CompressionGzip, CompressionZlib, CompressionSnappy:
	case CompressionZstd:
		// Reused for every batch.
		encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("creating zstd encoder: %w", err)
		}

		c.encoder = encoder
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", algorithm)
	}

	return c, nil
}

// Compress encodes data with the configured algorithm.
func (c *Compressor) Compress(data []byte) ([]byte, error) {
	switch c.algorithm {
	case CompressionNone, "":
		return data, nil
	case CompressionZstd:
		return c.encoder.EncodeAll(data, make([]byte, 0, len(data))), nil
	case CompressionSnappy:
		return snappy.Encode(nil, data), nil
	case CompressionGzip:
		return compressStream(data, func(w io.Writer) io.WriteCloser { return gzip.NewWriter(w) })
	case CompressionZlib:
		return compressStream(data, func(w io.Writer) io.WriteCloser { return zlib.NewWriter(w) })
	}

	return nil, fmt.Errorf("unsupported compression algorithm: %s", c.algorithm)
}

// ContentEncoding returns the Content-Encoding header value for the algorithm.
func (c *Compressor) ContentEncoding() string {
	return contentEncodings[c.algorithm]
}

// Close releases the zstd encoder, if any.
func (c *Compressor) Close() error {
	if c.encoder != nil {
		return c.encoder.Close()
	}

	return nil
}

// ErrBodyTooLarge is returned by Decompress when the decoded body would
// exceed the limit.
var ErrBodyTooLarge = errors.New("decoded body too large")

var contentEncodings = map[string]string{
	CompressionGzip:   "gzip",
	CompressionZstd:   "zstd",
	CompressionZlib:   "deflate",
	CompressionSnappy: "snappy",
}

// Decompress decodes a request body according to its Content-Encoding
// header. An empty or "identity" encoding returns data unchanged. The
// decoded size is capped at limit bytes when limit is positive.
func Decompress(contentEncoding string, data []byte, limit int64) ([]byte, error) {
	var r io.Reader

	switch contentEncoding {
	case "", "identity":
		return data, nil
	case "gzip", "x-gzip":
		gr, gerr := gzip.NewReader(bytes.NewReader(data))
		if gerr != nil {
			return nil, fmt.Errorf("gzip reader: %w", gerr)
		}
		defer gr.Close()

		r = gr
	case "deflate":
		zr, zerr := zlib.NewReader(bytes.NewReader(data))
		if zerr != nil {
			return nil, fmt.Errorf("zlib reader: %w", zerr)
		}
		defer zr.Close()

		r = zr
	case "zstd":
		dec, derr := zstd.NewReader(bytes.NewReader(data))
		if derr != nil {
			return nil, fmt.Errorf("zstd reader: %w", derr)
		}
		defer dec.Close()

		r = dec
	case "snappy":
		n, lerr := snappy.DecodedLen(data)
		if lerr != nil {
			return nil, fmt.Errorf("snappy header: %w", lerr)
		}

		if limit > 0 && int64(n) > limit {
			return nil, fmt.Errorf("%w: exceeds %d bytes", ErrBodyTooLarge, limit)
		}

		return snappy.Decode(nil, data)
	default:
		return nil, fmt.Errorf("unsupported content encoding: %s", contentEncoding)
	}

	if limit > 0 {
		r = io.LimitReader(r, limit+1)
	}

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decompressing %s body: %w", contentEncoding, err)
	}

	if limit > 0 && int64(len(out)) > limit {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrBodyTooLarge, limit)
	}

	return out, nil
}

func compressStream(data []byte, wrap func(io.Writer) io.WriteCloser) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, len(data)/2))
	w := wrap(buf)

	if _, err := w.Write(data); err != nil {
		_ = w.Close()

		return nil, err
	}

	if err := w.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
