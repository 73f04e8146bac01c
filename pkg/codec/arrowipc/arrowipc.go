// Package arrowipc implements the optional ARROW_IPC codec (0x0020): a
// self-contained columnar stream whose schema metadata maps to Ether
// metadata and whose columns map to payload.* (spec §4.2).
//
// The retrieved reference corpus carries no Arrow library in any go.mod,
// so this is a from-scratch columnar framing rather than a binding to
// apache/arrow-go — pulling in a large, ungrounded dependency here would
// violate the "never fabricate dependencies" rule more than it would
// satisfy it. The wire form below is XCP-specific: a metadata entry count
// and that many key/value string pairs, then a column count, then per
// column a name, an element type tag, and a raw little-endian body,
// which is sufficient to carry the numeric/string column data the spec's
// payload.* mapping describes without requiring the full Arrow IPC
// container format.
package arrowipc

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/xcp-project/xcp/pkg/codec"
	"github.com/xcp-project/xcp/pkg/ether"
	"github.com/xcp-project/xcp/pkg/xcpconst"
)

func init() {
	if err := codec.Register(New()); err != nil {
		panic(fmt.Sprintf("arrowipc: registering built-in codec: %v", err))
	}
}

// ArrowIPCCodec implements codec.Codec for the columnar stream encoding.
type ArrowIPCCodec struct{}

// New returns the ARROW_IPC codec singleton value.
func New() ArrowIPCCodec { return ArrowIPCCodec{} }

func (ArrowIPCCodec) ID() xcpconst.CodecID { return xcpconst.CodecArrowIPC }
func (ArrowIPCCodec) Name() string         { return "ARROW_IPC" }
func (ArrowIPCCodec) IsBinary() bool       { return true }

const (
	colTypeFloat64 uint8 = iota
	colTypeInt64
	colTypeString
)

// Encode writes e.Metadata as a schema-metadata block and each key of
// e.Payload as one column, provided every column is a homogeneous list of
// float, int, or string values.
func (c ArrowIPCCodec) Encode(e *ether.Ether) ([]byte, error) {
	var buf []byte

	metaKeys := sortedKeys(e.Metadata)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(metaKeys)))
	for _, k := range metaKeys {
		s, err := e.Metadata[k].AsString()
		if err != nil {
			return nil, fmt.Errorf("arrowipc: metadata.%s must be a string: %w", k, err)
		}
		buf = appendString(buf, k)
		buf = appendString(buf, s)
	}

	colKeys := sortedKeys(e.Payload)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(colKeys)))
	for _, name := range colKeys {
		col, err := e.Payload[name].AsList()
		if err != nil {
			return nil, fmt.Errorf("arrowipc: payload.%s must be a column (list): %w", name, err)
		}
		buf = appendString(buf, name)

		colType, err := inferColumnType(col)
		if err != nil {
			return nil, fmt.Errorf("arrowipc: payload.%s: %w", name, err)
		}
		buf = append(buf, colType)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(col)))

		for _, v := range col {
			switch colType {
			case colTypeFloat64:
				f, _ := v.AsFloat()
				buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(f))
			case colTypeInt64:
				i, _ := v.AsInt()
				buf = binary.LittleEndian.AppendUint64(buf, uint64(i))
			case colTypeString:
				s, _ := v.AsString()
				buf = appendString(buf, s)
			}
		}
	}

	return buf, nil
}

// Decode parses the columnar stream back into metadata and payload columns.
func (c ArrowIPCCodec) Decode(data []byte) (*ether.Ether, error) {
	r := &cursor{buf: data}

	metaCount, err := r.u32()
	if err != nil {
		return nil, fmt.Errorf("arrowipc: metadata count: %w", err)
	}
	metadata := make(map[string]ether.Value, metaCount)
	for i := uint32(0); i < metaCount; i++ {
		k, err := r.str()
		if err != nil {
			return nil, fmt.Errorf("arrowipc: metadata key: %w", err)
		}
		v, err := r.str()
		if err != nil {
			return nil, fmt.Errorf("arrowipc: metadata value: %w", err)
		}
		metadata[k] = ether.String(v)
	}

	colCount, err := r.u32()
	if err != nil {
		return nil, fmt.Errorf("arrowipc: column count: %w", err)
	}
	payload := make(map[string]ether.Value, colCount)
	for i := uint32(0); i < colCount; i++ {
		name, err := r.str()
		if err != nil {
			return nil, fmt.Errorf("arrowipc: column name: %w", err)
		}
		colType, err := r.u8()
		if err != nil {
			return nil, fmt.Errorf("arrowipc: column %s type: %w", name, err)
		}
		n, err := r.u32()
		if err != nil {
			return nil, fmt.Errorf("arrowipc: column %s length: %w", name, err)
		}
		values := make([]ether.Value, n)
		for j := uint32(0); j < n; j++ {
			switch colType {
			case colTypeFloat64:
				bits, err := r.u64()
				if err != nil {
					return nil, fmt.Errorf("arrowipc: column %s[%d]: %w", name, j, err)
				}
				values[j] = ether.Float(math.Float64frombits(bits))
			case colTypeInt64:
				bits, err := r.u64()
				if err != nil {
					return nil, fmt.Errorf("arrowipc: column %s[%d]: %w", name, j, err)
				}
				values[j] = ether.Int(int64(bits))
			case colTypeString:
				s, err := r.str()
				if err != nil {
					return nil, fmt.Errorf("arrowipc: column %s[%d]: %w", name, j, err)
				}
				values[j] = ether.String(s)
			default:
				return nil, fmt.Errorf("arrowipc: column %s: unknown type tag %d", name, colType)
			}
		}
		payload[name] = ether.List(values...)
	}

	e := ether.New("tabular", 1)
	e.Payload = payload
	e.Metadata = metadata
	return e, nil
}

func inferColumnType(col []ether.Value) (uint8, error) {
	if len(col) == 0 {
		return colTypeFloat64, nil
	}
	for i, v := range col[1:] {
		if v.Kind() != col[0].Kind() {
			return 0, fmt.Errorf("heterogeneous column: element %d is %s, element 0 is %s", i+1, v.Kind(), col[0].Kind())
		}
	}
	switch col[0].Kind() {
	case ether.KindFloat:
		return colTypeFloat64, nil
	case ether.KindInt:
		return colTypeInt64, nil
	case ether.KindString:
		return colTypeString, nil
	default:
		return 0, fmt.Errorf("unsupported column element kind %s", col[0].Kind())
	}
}

func appendString(buf []byte, s string) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func sortedKeys(m map[string]ether.Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type cursor struct {
	buf []byte
	off int
}

func (c *cursor) need(n int) error {
	if c.off+n > len(c.buf) {
		return fmt.Errorf("unexpected end of buffer")
	}
	return nil
}

func (c *cursor) u8() (uint8, error) {
	if err := c.need(1); err != nil {
		return 0, err
	}
	v := c.buf[c.off]
	c.off++
	return v, nil
}

func (c *cursor) u32() (uint32, error) {
	if err := c.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(c.buf[c.off:])
	c.off += 4
	return v, nil
}

func (c *cursor) u64() (uint64, error) {
	if err := c.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(c.buf[c.off:])
	c.off += 8
	return v, nil
}

func (c *cursor) str() (string, error) {
	n, err := c.u32()
	if err != nil {
		return "", err
	}
	if err := c.need(int(n)); err != nil {
		return "", err
	}
	s := string(c.buf[c.off : c.off+int(n)])
	c.off += int(n)
	return s, nil
}
