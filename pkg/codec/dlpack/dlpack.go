// Package dlpack implements the optional DLPACK codec (0x0021): a tensor
// header followed by opaque capsule bytes (spec §4.2). The receiver MUST
// copy or fully consume the capsule before ACKing the frame; this package
// only frames and unframes the bytes, leaving that lifetime rule to the
// session engine's handler dispatch, which owns the ACK timing.
//
// No DLPack binding exists anywhere in the retrieved corpus, and the real
// DLPack capsule is a foreign-memory handle meaningful only to a
// GPU/tensor runtime outside this repository's scope (spec §1's "Out of
// scope: shared-memory backing store implementation"). This codec frames
// the capsule as an opaque byte blob using the tensor package's existing
// header, rather than inventing a fake DLManagedTensor binding.
package dlpack

import (
	"fmt"

	"github.com/xcp-project/xcp/pkg/codec"
	"github.com/xcp-project/xcp/pkg/codec/tensor"
	"github.com/xcp-project/xcp/pkg/ether"
	"github.com/xcp-project/xcp/pkg/xcpconst"
)

func init() {
	if err := codec.Register(New()); err != nil {
		panic(fmt.Sprintf("dlpack: registering built-in codec: %v", err))
	}
}

// DLPackCodec implements codec.Codec for tensor-header-prefixed capsules.
type DLPackCodec struct{}

// New returns the DLPACK codec singleton value.
func New() DLPackCodec { return DLPackCodec{} }

func (DLPackCodec) ID() xcpconst.CodecID { return xcpconst.CodecDLPack }
func (DLPackCodec) Name() string         { return "DLPACK" }
func (DLPackCodec) IsBinary() bool       { return true }

// Encode reads Payload["shape"] for the tensor header dimensions and
// Payload["capsule"] (bytes) for the opaque body, writing header||capsule.
func (c DLPackCodec) Encode(e *ether.Ether) ([]byte, error) {
	capsuleVal, ok := e.Payload["capsule"]
	if !ok {
		return nil, fmt.Errorf("dlpack: payload.capsule is required")
	}
	capsule, err := capsuleVal.AsBytes()
	if err != nil {
		return nil, fmt.Errorf("dlpack: payload.capsule: %w", err)
	}

	shapeVal, ok := e.Payload["shape"]
	if !ok {
		return nil, fmt.Errorf("dlpack: payload.shape is required")
	}
	shapeList, err := shapeVal.AsList()
	if err != nil {
		return nil, fmt.Errorf("dlpack: payload.shape: %w", err)
	}

	header := tensor.EncodeCapsuleHeader(len(shapeList), func(i int) (uint32, error) {
		d, err := shapeList[i].AsInt()
		return uint32(d), err
	})
	if header == nil {
		return nil, fmt.Errorf("dlpack: invalid shape")
	}

	return append(header, capsule...), nil
}

// Decode splits header-prefixed bytes back into Payload["shape"] and the
// opaque capsule bytes in Payload["capsule"]. Per spec §4.2, the caller must copy or
// consume Payload["capsule"]'s bytes before acknowledging the frame that
// carried this Ether, since the sender may reuse or release the backing
// buffer once ACKed.
func (c DLPackCodec) Decode(data []byte) (*ether.Ether, error) {
	shape, body, err := tensor.DecodeCapsuleHeader(data)
	if err != nil {
		return nil, fmt.Errorf("dlpack: %w", err)
	}

	e := ether.New("dlpack_tensor", 1)
	shapeVals := make([]ether.Value, len(shape))
	for i, d := range shape {
		shapeVals[i] = ether.Int(int64(d))
	}
	e.Payload["shape"] = ether.List(shapeVals...)
	e.Payload["capsule"] = ether.Bytes(body)
	return e, nil
}
