package tensor

import "github.com/xcp-project/xcp/pkg/xcpconst"

// EncodeCapsuleHeader builds a tensor header (dtype left unset/zero,
// carrying only shape) for use by codecs that frame an opaque body rather
// than a typed numeric body, such as dlpack's capsule bytes. dimAt(i)
// returns the i-th shape dimension. Returns nil if ndim is out of range.
func EncodeCapsuleHeader(ndim int, dimAt func(i int) (uint32, error)) []byte {
	if ndim < 1 || ndim > maxDims {
		return nil
	}
	var shape [maxDims]uint32
	for i := 0; i < ndim; i++ {
		d, err := dimAt(i)
		if err != nil {
			return nil
		}
		shape[i] = d
	}
	h := header{NDim: uint8(ndim), DType: xcpconst.DTypeF32, Shape: shape, Scale: 1.0}
	return encodeHeader(h)
}

// DecodeCapsuleHeader parses a tensor header off the front of data and
// returns the shape dimensions plus the remaining opaque body bytes.
func DecodeCapsuleHeader(data []byte) (shape []uint32, body []byte, err error) {
	h, err := decodeHeader(data)
	if err != nil {
		return nil, nil, err
	}
	shape = make([]uint32, h.NDim)
	copy(shape, h.Shape[:h.NDim])
	return shape, data[HeaderSize:], nil
}
