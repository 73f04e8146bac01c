// Package mixedlatent implements the optional MIXED_LATENT codec (0x0010):
// a varuint tensor count followed by, per tensor, a subtype byte, a
// varuint length, and that many raw bytes (spec §4.2). It exists for
// payloads that bundle several heterogeneous tensor blobs (e.g. mixed
// precision latents) into one frame without paying the tensor codec's
// fixed 40-byte header per sub-tensor.
package mixedlatent

import (
	"encoding/binary"
	"fmt"

	"github.com/xcp-project/xcp/pkg/codec"
	"github.com/xcp-project/xcp/pkg/ether"
	"github.com/xcp-project/xcp/pkg/xcpconst"
)

func init() {
	if err := codec.Register(New()); err != nil {
		panic(fmt.Sprintf("mixedlatent: registering built-in codec: %v", err))
	}
}

// MixedLatentCodec implements codec.Codec for the mixed-tensor-blob body.
type MixedLatentCodec struct{}

// New returns the MIXED_LATENT codec singleton value.
func New() MixedLatentCodec { return MixedLatentCodec{} }

func (MixedLatentCodec) ID() xcpconst.CodecID { return xcpconst.CodecMixedLatent }
func (MixedLatentCodec) Name() string         { return "MIXED_LATENT" }
func (MixedLatentCodec) IsBinary() bool       { return true }

// Encode reads Payload["tensors"], a list of maps each holding a "subtype"
// int and a "data" byte blob, and packs them varuint-length-prefixed.
func (c MixedLatentCodec) Encode(e *ether.Ether) ([]byte, error) {
	tensorsVal, ok := e.Payload["tensors"]
	if !ok {
		return nil, fmt.Errorf("mixedlatent: payload.tensors is required")
	}
	list, err := tensorsVal.AsList()
	if err != nil {
		return nil, fmt.Errorf("mixedlatent: payload.tensors: %w", err)
	}

	var buf []byte
	buf = binary.AppendUvarint(buf, uint64(len(list)))
	for i, tv := range list {
		m, err := tv.AsMap()
		if err != nil {
			return nil, fmt.Errorf("mixedlatent: payload.tensors[%d]: %w", i, err)
		}
		subtype, err := m["subtype"].AsInt()
		if err != nil {
			return nil, fmt.Errorf("mixedlatent: payload.tensors[%d].subtype: %w", i, err)
		}
		data, err := m["data"].AsBytes()
		if err != nil {
			return nil, fmt.Errorf("mixedlatent: payload.tensors[%d].data: %w", i, err)
		}
		buf = append(buf, byte(subtype))
		buf = binary.AppendUvarint(buf, uint64(len(data)))
		buf = append(buf, data...)
	}
	return buf, nil
}

// Decode reverses Encode.
func (c MixedLatentCodec) Decode(data []byte) (*ether.Ether, error) {
	off := 0
	count, n := binary.Uvarint(data[off:])
	if n <= 0 {
		return nil, fmt.Errorf("mixedlatent: malformed tensor count")
	}
	off += n

	tensors := make([]ether.Value, 0, count)
	for i := uint64(0); i < count; i++ {
		if off >= len(data) {
			return nil, fmt.Errorf("mixedlatent: truncated at tensor %d subtype", i)
		}
		subtype := data[off]
		off++

		length, n := binary.Uvarint(data[off:])
		if n <= 0 {
			return nil, fmt.Errorf("mixedlatent: malformed length at tensor %d", i)
		}
		off += n

		if off+int(length) > len(data) {
			return nil, fmt.Errorf("mixedlatent: truncated tensor %d body", i)
		}
		blob := make([]byte, length)
		copy(blob, data[off:off+int(length)])
		off += int(length)

		tensors = append(tensors, ether.Map(map[string]ether.Value{
			"subtype": ether.Int(int64(subtype)),
			"data":    ether.Bytes(blob),
		}))
	}

	e := ether.New("mixed_latent", 1)
	e.Payload["tensors"] = ether.List(tensors...)
	return e, nil
}
