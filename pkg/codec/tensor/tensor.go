// Package tensor implements the tensor codecs (0x0002 F32, 0x0003 F16,
// 0x0004 quantized INT8): a fixed 40-byte header followed by a raw
// little-endian body (spec §3, §4.2).
package tensor

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/xcp-project/xcp/pkg/codec"
	"github.com/xcp-project/xcp/pkg/ether"
	"github.com/xcp-project/xcp/pkg/xcpconst"
)

// HeaderSize is the fixed byte length of a tensor header (spec §3): 1
// byte ndim + 1 byte dtype + 1 byte flags + 1 byte padding, 8 shape
// slots of 4 bytes each, and a trailing 4-byte scale.
const HeaderSize = 4 + maxDims*4 + 4

const maxDims = 8

func init() {
	for _, c := range []codec.Codec{F32, F16, QInt8} {
		if err := codec.Register(c); err != nil {
			panic(fmt.Sprintf("tensor: registering built-in codec: %v", err))
		}
	}
}

// Codec implements codec.Codec for one tensor element type.
type Codec struct {
	id    xcpconst.CodecID
	name  string
	dtype xcpconst.TensorDType
}

// F32, F16, and QInt8 are the three registered tensor codecs.
var (
	F32   = Codec{id: xcpconst.CodecTensorF32, name: "TENSOR_F32", dtype: xcpconst.DTypeF32}
	F16   = Codec{id: xcpconst.CodecTensorF16, name: "TENSOR_F16", dtype: xcpconst.DTypeF16}
	QInt8 = Codec{id: xcpconst.CodecTensorQInt8, name: "TENSOR_QNT8", dtype: xcpconst.DTypeInt8}
)

func (c Codec) ID() xcpconst.CodecID { return c.id }
func (c Codec) Name() string         { return c.name }
func (c Codec) IsBinary() bool       { return true }

// header is the decoded form of the fixed HeaderSize-byte tensor header.
type header struct {
	NDim  uint8
	DType xcpconst.TensorDType
	Flags uint8
	Shape [maxDims]uint32
	Scale float32
}

func encodeHeader(h header) []byte {
	buf := make([]byte, HeaderSize)
	buf[0] = h.NDim
	buf[1] = uint8(h.DType)
	buf[2] = h.Flags
	// buf[3] is padding, left zero.
	off := 4
	for i := 0; i < maxDims; i++ {
		binary.LittleEndian.PutUint32(buf[off:], h.Shape[i])
		off += 4
	}
	binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(h.Scale))
	return buf
}

func decodeHeader(buf []byte) (header, error) {
	if len(buf) < HeaderSize {
		return header{}, fmt.Errorf("tensor: header too short: %d bytes", len(buf))
	}
	var h header
	h.NDim = buf[0]
	h.DType = xcpconst.TensorDType(buf[1])
	h.Flags = buf[2]
	if h.NDim < 1 || h.NDim > maxDims {
		return header{}, fmt.Errorf("tensor: ndim %d out of range [1,%d]", h.NDim, maxDims)
	}
	off := 4
	for i := 0; i < maxDims; i++ {
		h.Shape[i] = binary.LittleEndian.Uint32(buf[off:])
		off += 4
	}
	h.Scale = math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))
	return h, nil
}

func (h header) elementCount() int {
	n := 1
	for i := 0; i < int(h.NDim); i++ {
		n *= int(h.Shape[i])
	}
	return n
}

func toFloat64(v ether.Value) (float64, error) {
	if v.Kind() == ether.KindFloat {
		return v.AsFloat()
	}
	i, err := v.AsInt()
	if err != nil {
		return 0, fmt.Errorf("tensor: value is neither float nor int: %w", err)
	}
	return float64(i), nil
}

// Encode reads Payload["shape"] (list of int) and Payload["values"] (list
// of numeric values, row-major) off e and writes the tensor header plus
// raw body for this codec's element type.
func (c Codec) Encode(e *ether.Ether) ([]byte, error) {
	shapeVal, ok := e.Payload["shape"]
	if !ok {
		return nil, fmt.Errorf("tensor: payload.shape is required")
	}
	shapeList, err := shapeVal.AsList()
	if err != nil {
		return nil, fmt.Errorf("tensor: payload.shape: %w", err)
	}
	if len(shapeList) < 1 || len(shapeList) > maxDims {
		return nil, fmt.Errorf("tensor: ndim %d out of range [1,%d]", len(shapeList), maxDims)
	}
	var shape [maxDims]uint32
	for i, sv := range shapeList {
		d, err := sv.AsInt()
		if err != nil {
			return nil, fmt.Errorf("tensor: payload.shape[%d]: %w", i, err)
		}
		shape[i] = uint32(d)
	}

	valuesVal, ok := e.Payload["values"]
	if !ok {
		return nil, fmt.Errorf("tensor: payload.values is required")
	}
	valuesList, err := valuesVal.AsList()
	if err != nil {
		return nil, fmt.Errorf("tensor: payload.values: %w", err)
	}
	values := make([]float64, len(valuesList))
	for i, v := range valuesList {
		if values[i], err = toFloat64(v); err != nil {
			return nil, fmt.Errorf("tensor: payload.values[%d]: %w", i, err)
		}
	}

	h := header{NDim: uint8(len(shapeList)), DType: c.dtype, Shape: shape, Scale: 1.0}

	var body []byte
	switch c.dtype {
	case xcpconst.DTypeF32:
		body = make([]byte, 4*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint32(body[i*4:], math.Float32bits(float32(v)))
		}
	case xcpconst.DTypeF16:
		body = make([]byte, 2*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint16(body[i*2:], float32ToFloat16(float32(v)))
		}
	case xcpconst.DTypeInt8:
		h.Flags |= xcpconst.TensorFlagRowQuantized
		scale := quantizationScale(values)
		h.Scale = scale
		body = make([]byte, len(values))
		for i, v := range values {
			body[i] = quantize(v, scale)
		}
	default:
		return nil, fmt.Errorf("tensor: unsupported dtype %d", c.dtype)
	}

	return append(encodeHeader(h), body...), nil
}

// Decode parses a tensor header + raw body back into a "tensor"-kind Ether
// with payload.shape and payload.values populated.
func (c Codec) Decode(data []byte) (*ether.Ether, error) {
	h, err := decodeHeader(data)
	if err != nil {
		return nil, err
	}
	if h.DType != c.dtype {
		return nil, fmt.Errorf("tensor: header dtype %d does not match codec %s", h.DType, c.name)
	}
	body := data[HeaderSize:]
	n := h.elementCount()

	values := make([]ether.Value, n)
	switch c.dtype {
	case xcpconst.DTypeF32:
		if len(body) < 4*n {
			return nil, fmt.Errorf("tensor: body too short for %d f32 elements", n)
		}
		for i := 0; i < n; i++ {
			bits := binary.LittleEndian.Uint32(body[i*4:])
			values[i] = ether.Float(float64(math.Float32frombits(bits)))
		}
	case xcpconst.DTypeF16:
		if len(body) < 2*n {
			return nil, fmt.Errorf("tensor: body too short for %d f16 elements", n)
		}
		for i := 0; i < n; i++ {
			bits := binary.LittleEndian.Uint16(body[i*2:])
			values[i] = ether.Float(float64(float16ToFloat32(bits)))
		}
	case xcpconst.DTypeInt8:
		if len(body) < n {
			return nil, fmt.Errorf("tensor: body too short for %d int8 elements", n)
		}
		for i := 0; i < n; i++ {
			values[i] = ether.Float(dequantize(int8(body[i]), h.Scale))
		}
	default:
		return nil, fmt.Errorf("tensor: unsupported dtype %d", h.DType)
	}

	shape := make([]ether.Value, h.NDim)
	for i := 0; i < int(h.NDim); i++ {
		shape[i] = ether.Int(int64(h.Shape[i]))
	}

	e := ether.New("tensor", 1)
	e.Payload["shape"] = ether.List(shape...)
	e.Payload["values"] = ether.List(values...)
	return e, nil
}

func quantizationScale(values []float64) float32 {
	var maxAbs float64
	for _, v := range values {
		if a := math.Abs(v); a > maxAbs {
			maxAbs = a
		}
	}
	if maxAbs == 0 {
		return 1.0
	}
	return float32(maxAbs / 127.0)
}

func quantize(v float64, scale float32) byte {
	if scale == 0 {
		return 0
	}
	q := math.Round(v / float64(scale))
	if q > 127 {
		q = 127
	}
	if q < -128 {
		q = -128
	}
	return byte(int8(q))
}

func dequantize(q int8, scale float32) float64 {
	return float64(q) * float64(scale)
}
