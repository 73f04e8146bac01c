package transform

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Compressor is the COMP-flag hook the session engine calls before framing
// a payload, and after CRC verification when reading one back (spec §4.4).
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// zstdCompressor implements Compressor with klauspost/compress/zstd, the
// compression library present across the retrieved corpus's dependency
// graphs. Encoders/decoders are pooled since zstd's are not safe for
// concurrent reuse without external synchronization but are expensive to
// construct.
type zstdCompressor struct {
	encPool sync.Pool
	decPool sync.Pool
}

// NewZstdCompressor builds the default Compressor.
func NewZstdCompressor() Compressor {
	c := &zstdCompressor{}
	c.encPool.New = func() interface{} {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			panic(fmt.Sprintf("transform: zstd.NewWriter: %v", err))
		}
		return enc
	}
	c.decPool.New = func() interface{} {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			panic(fmt.Sprintf("transform: zstd.NewReader: %v", err))
		}
		return dec
	}
	return c
}

func (c *zstdCompressor) Compress(data []byte) ([]byte, error) {
	enc := c.encPool.Get().(*zstd.Encoder)
	defer c.encPool.Put(enc)
	var buf bytes.Buffer
	enc.Reset(&buf)
	if _, err := enc.Write(data); err != nil {
		return nil, fmt.Errorf("transform: zstd compress: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("transform: zstd compress: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *zstdCompressor) Decompress(data []byte) ([]byte, error) {
	dec := c.decPool.Get().(*zstd.Decoder)
	defer c.decPool.Put(dec)
	if err := dec.Reset(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("transform: zstd reset: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(dec); err != nil {
		return nil, fmt.Errorf("transform: zstd decompress: %w", err)
	}
	return buf.Bytes(), nil
}
