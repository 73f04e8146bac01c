// Package binstruct implements the BINARY_STRUCT codec (0x0008): a
// protobuf-style binary encoding of Ether for control and small data
// frames (spec §4.2). Unlike the JSON codec, attachment bytes are never
// base64-encoded.
package binstruct

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/xcp-project/xcp/pkg/codec"
	"github.com/xcp-project/xcp/pkg/ether"
	"github.com/xcp-project/xcp/pkg/xcpconst"
)

func init() {
	if err := codec.Register(New()); err != nil {
		panic(fmt.Sprintf("binstruct: registering built-in codec: %v", err))
	}
}

// BinStructCodec implements codec.Codec for the binary struct encoding.
type BinStructCodec struct{}

// New returns the binary struct codec singleton value.
func New() BinStructCodec { return BinStructCodec{} }

func (BinStructCodec) ID() xcpconst.CodecID { return xcpconst.CodecBinaryStruct }
func (BinStructCodec) Name() string         { return "BINARY_STRUCT" }
func (BinStructCodec) IsBinary() bool       { return true }

// value type tags for the binary encoding of ether.Value.
const (
	tagNull byte = iota
	tagBool
	tagInt
	tagFloat
	tagString
	tagBytes
	tagList
	tagMap
)

type writer struct{ buf []byte }

func (w *writer) putU8(v byte)     { w.buf = append(w.buf, v) }
func (w *writer) putU32(v uint32)  { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }
func (w *writer) putU64(v uint64)  { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }
func (w *writer) putBytes(b []byte) {
	w.putU32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}
func (w *writer) putString(s string) { w.putBytes([]byte(s)) }

func (w *writer) putValue(v ether.Value) error {
	switch v.Kind() {
	case ether.KindNull:
		w.putU8(tagNull)
	case ether.KindBool:
		w.putU8(tagBool)
		b, _ := v.AsBool()
		if b {
			w.putU8(1)
		} else {
			w.putU8(0)
		}
	case ether.KindInt:
		w.putU8(tagInt)
		i, _ := v.AsInt()
		w.putU64(uint64(i))
	case ether.KindFloat:
		w.putU8(tagFloat)
		f, _ := v.AsFloat()
		w.putU64(math.Float64bits(f))
	case ether.KindString:
		w.putU8(tagString)
		s, _ := v.AsString()
		w.putString(s)
	case ether.KindBytes:
		w.putU8(tagBytes)
		b, _ := v.AsBytes()
		w.putBytes(b)
	case ether.KindList:
		w.putU8(tagList)
		list, _ := v.AsList()
		w.putU32(uint32(len(list)))
		for _, item := range list {
			if err := w.putValue(item); err != nil {
				return err
			}
		}
	case ether.KindMap:
		w.putU8(tagMap)
		m, _ := v.AsMap()
		w.putU32(uint32(len(m)))
		for k, val := range m {
			w.putString(k)
			if err := w.putValue(val); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("binstruct: unknown value kind %d", v.Kind())
	}
	return nil
}

type reader struct {
	buf []byte
	off int
}

func (r *reader) need(n int) error {
	if r.off+n > len(r.buf) {
		return fmt.Errorf("binstruct: unexpected end of buffer at offset %d, need %d bytes", r.off, n)
	}
	return nil
}

func (r *reader) getU8() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.buf[r.off]
	r.off++
	return b, nil
}

func (r *reader) getU32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

func (r *reader) getU64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v, nil
}

func (r *reader) getBytes() ([]byte, error) {
	n, err := r.getU32()
	if err != nil {
		return nil, err
	}
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	copy(b, r.buf[r.off:r.off+int(n)])
	r.off += int(n)
	return b, nil
}

func (r *reader) getString() (string, error) {
	b, err := r.getBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *reader) getValue() (ether.Value, error) {
	tag, err := r.getU8()
	if err != nil {
		return ether.Value{}, err
	}
	switch tag {
	case tagNull:
		return ether.Null(), nil
	case tagBool:
		b, err := r.getU8()
		if err != nil {
			return ether.Value{}, err
		}
		return ether.Bool(b != 0), nil
	case tagInt:
		u, err := r.getU64()
		if err != nil {
			return ether.Value{}, err
		}
		return ether.Int(int64(u)), nil
	case tagFloat:
		u, err := r.getU64()
		if err != nil {
			return ether.Value{}, err
		}
		return ether.Float(math.Float64frombits(u)), nil
	case tagString:
		s, err := r.getString()
		if err != nil {
			return ether.Value{}, err
		}
		return ether.String(s), nil
	case tagBytes:
		b, err := r.getBytes()
		if err != nil {
			return ether.Value{}, err
		}
		return ether.Bytes(b), nil
	case tagList:
		n, err := r.getU32()
		if err != nil {
			return ether.Value{}, err
		}
		items := make([]ether.Value, n)
		for i := range items {
			items[i], err = r.getValue()
			if err != nil {
				return ether.Value{}, err
			}
		}
		return ether.List(items...), nil
	case tagMap:
		n, err := r.getU32()
		if err != nil {
			return ether.Value{}, err
		}
		m := make(map[string]ether.Value, n)
		for i := uint32(0); i < n; i++ {
			k, err := r.getString()
			if err != nil {
				return ether.Value{}, err
			}
			v, err := r.getValue()
			if err != nil {
				return ether.Value{}, err
			}
			m[k] = v
		}
		return ether.Map(m), nil
	default:
		return ether.Value{}, fmt.Errorf("binstruct: unknown value tag %d", tag)
	}
}

func (w *writer) putValueMap(m map[string]ether.Value) error {
	w.putU32(uint32(len(m)))
	for k, v := range m {
		w.putString(k)
		if err := w.putValue(v); err != nil {
			return err
		}
	}
	return nil
}

func (r *reader) getValueMap() (map[string]ether.Value, error) {
	n, err := r.getU32()
	if err != nil {
		return nil, err
	}
	m := make(map[string]ether.Value, n)
	for i := uint32(0); i < n; i++ {
		k, err := r.getString()
		if err != nil {
			return nil, err
		}
		v, err := r.getValue()
		if err != nil {
			return nil, err
		}
		m[k] = v
	}
	return m, nil
}

// Encode serializes e into the binary struct wire form.
func (c BinStructCodec) Encode(e *ether.Ether) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("binstruct: %w", err)
	}

	w := &writer{}
	w.putString(e.Kind)
	w.putU32(e.SchemaVersion)
	if err := w.putValueMap(e.Payload); err != nil {
		return nil, fmt.Errorf("binstruct: payload: %w", err)
	}
	if err := w.putValueMap(e.Metadata); err != nil {
		return nil, fmt.Errorf("binstruct: metadata: %w", err)
	}
	if err := w.putValueMap(e.ExtraFields); err != nil {
		return nil, fmt.Errorf("binstruct: extra_fields: %w", err)
	}

	w.putU32(uint32(len(e.Attachments)))
	for _, a := range e.Attachments {
		w.putString(a.ID)
		w.putString(a.URI)
		if a.IsInline() {
			w.putU8(1)
			w.putBytes(a.InlineBytes)
		} else {
			w.putU8(0)
			w.putBytes(nil)
		}
		w.putString(a.MediaType)
		w.putString(a.Codec)
		w.putU32(uint32(len(a.Shape)))
		for _, d := range a.Shape {
			w.putU32(d)
		}
		w.putString(a.DType)
		w.putU64(a.SizeBytes)
	}

	return w.buf, nil
}

// Decode parses the binary struct wire form back into an Ether.
func (c BinStructCodec) Decode(data []byte) (*ether.Ether, error) {
	r := &reader{buf: data}

	kind, err := r.getString()
	if err != nil {
		return nil, fmt.Errorf("binstruct: kind: %w", err)
	}
	schemaVersion, err := r.getU32()
	if err != nil {
		return nil, fmt.Errorf("binstruct: schema_version: %w", err)
	}
	payload, err := r.getValueMap()
	if err != nil {
		return nil, fmt.Errorf("binstruct: payload: %w", err)
	}
	metadata, err := r.getValueMap()
	if err != nil {
		return nil, fmt.Errorf("binstruct: metadata: %w", err)
	}
	extra, err := r.getValueMap()
	if err != nil {
		return nil, fmt.Errorf("binstruct: extra_fields: %w", err)
	}

	e := &ether.Ether{
		Kind:          kind,
		SchemaVersion: schemaVersion,
		Payload:       payload,
		Metadata:      metadata,
		ExtraFields:   extra,
	}

	attCount, err := r.getU32()
	if err != nil {
		return nil, fmt.Errorf("binstruct: attachment count: %w", err)
	}
	for i := uint32(0); i < attCount; i++ {
		var a ether.Attachment
		if a.ID, err = r.getString(); err != nil {
			return nil, fmt.Errorf("binstruct: attachment id: %w", err)
		}
		if a.URI, err = r.getString(); err != nil {
			return nil, fmt.Errorf("binstruct: attachment uri: %w", err)
		}
		hasInline, err := r.getU8()
		if err != nil {
			return nil, fmt.Errorf("binstruct: attachment inline flag: %w", err)
		}
		inline, err := r.getBytes()
		if err != nil {
			return nil, fmt.Errorf("binstruct: attachment inline bytes: %w", err)
		}
		if hasInline != 0 {
			a.InlineBytes = inline
		}
		if a.MediaType, err = r.getString(); err != nil {
			return nil, fmt.Errorf("binstruct: attachment media_type: %w", err)
		}
		if a.Codec, err = r.getString(); err != nil {
			return nil, fmt.Errorf("binstruct: attachment codec: %w", err)
		}
		shapeLen, err := r.getU32()
		if err != nil {
			return nil, fmt.Errorf("binstruct: attachment shape length: %w", err)
		}
		a.Shape = make([]uint32, shapeLen)
		for j := range a.Shape {
			if a.Shape[j], err = r.getU32(); err != nil {
				return nil, fmt.Errorf("binstruct: attachment shape: %w", err)
			}
		}
		if a.DType, err = r.getString(); err != nil {
			return nil, fmt.Errorf("binstruct: attachment dtype: %w", err)
		}
		if a.SizeBytes, err = r.getU64(); err != nil {
			return nil, fmt.Errorf("binstruct: attachment size_bytes: %w", err)
		}
		e.Attachments = append(e.Attachments, a)
	}

	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("binstruct: decoded ether failed validation: %w", err)
	}
	return e, nil
}
