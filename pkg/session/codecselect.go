package session

import (
	"fmt"

	"github.com/xcp-project/xcp/pkg/codec"
	"github.com/xcp-project/xcp/pkg/ether"
	"github.com/xcp-project/xcp/pkg/xcpconst"
)

// jsonAutoThreshold and binaryAutoThreshold implement spec §4.2's Auto
// tie-break: "JSON for payload ≤ 2 KiB, BINARY_STRUCT for ≤ 10 KiB,
// ARROW_IPC for larger tabular, tensor codecs when kind is a tensor."
const (
	jsonAutoThreshold   = 2 << 10
	binaryAutoThreshold = 10 << 10
)

// kindCodec maps an Ether kind that has an obvious dedicated codec to
// that codec's ID, checked before the general size-based Auto tie-break.
func kindCodec(kind string) (xcpconst.CodecID, bool) {
	switch kind {
	case "mixed_latent":
		return xcpconst.CodecMixedLatent, true
	case "dlpack_tensor":
		return xcpconst.CodecDLPack, true
	case "tensor":
		return 0, false // resolved by tensor dtype below, not by kind alone
	default:
		return 0, false
	}
}

// tensorDTypeCodec reads payload.dtype ("f32"|"f16"|"int8", default f32)
// to pick which of the three tensor codecs a "tensor"-kind Ether wants.
func tensorDTypeCodec(e *ether.Ether) xcpconst.CodecID {
	dtype := "f32"
	if v, ok := e.Payload["dtype"]; ok {
		if s, err := v.AsString(); err == nil {
			dtype = s
		}
	}
	switch dtype {
	case "f16":
		return xcpconst.CodecTensorF16
	case "int8", "qint8":
		return xcpconst.CodecTensorQInt8
	default:
		return xcpconst.CodecTensorF32
	}
}

// selectCodec implements spec §4.2's selection policy: kind-directed
// codecs are tried first (a tensor payload has exactly one representable
// wire form per dtype), then the Auto/JsonOnly/BinaryRequired size-based
// tie-break for everything else.
func (s *Session) selectCodec(e *ether.Ether) (xcpconst.CodecID, []byte, error) {
	if id, ok := kindCodec(e.Kind); ok && s.neg.codecs[id] {
		if c, ok := codec.Lookup(id); ok {
			data, err := c.Encode(e)
			if err == nil {
				return id, data, nil
			}
		}
	}
	if e.Kind == "tensor" {
		id := tensorDTypeCodec(e)
		if s.neg.codecs[id] {
			if c, ok := codec.Lookup(id); ok {
				data, err := c.Encode(e)
				if err != nil {
					return 0, nil, fmt.Errorf("session: encoding tensor with %s: %w", c.Name(), err)
				}
				return id, data, nil
			}
		}
		return 0, nil, fmt.Errorf("session: no negotiated tensor codec for dtype")
	}

	switch s.cfg.CodecPolicy {
	case xcpconst.PolicyBinaryRequired:
		return s.encodeWith(e, xcpconst.CodecBinaryStruct)
	case xcpconst.PolicyJSONOnly:
		return s.encodeWith(e, xcpconst.CodecJSON)
	default:
		return s.selectAuto(e)
	}
}

func (s *Session) encodeWith(e *ether.Ether, id xcpconst.CodecID) (xcpconst.CodecID, []byte, error) {
	if !s.neg.codecs[id] {
		return 0, nil, fmt.Errorf("session: codec %s not in negotiated set", id)
	}
	c, ok := codec.Lookup(id)
	if !ok {
		return 0, nil, fmt.Errorf("session: codec %s not registered", id)
	}
	data, err := c.Encode(e)
	if err != nil {
		return 0, nil, err
	}
	return id, data, nil
}

func (s *Session) selectAuto(e *ether.Ether) (xcpconst.CodecID, []byte, error) {
	var jsonData []byte
	if s.neg.codecs[xcpconst.CodecJSON] {
		if c, ok := codec.Lookup(xcpconst.CodecJSON); ok {
			if data, err := c.Encode(e); err == nil {
				jsonData = data
			}
		}
	}
	if jsonData != nil && len(jsonData) <= jsonAutoThreshold {
		return xcpconst.CodecJSON, jsonData, nil
	}

	if s.neg.codecs[xcpconst.CodecBinaryStruct] {
		if c, ok := codec.Lookup(xcpconst.CodecBinaryStruct); ok {
			if data, err := c.Encode(e); err == nil {
				if len(data) <= binaryAutoThreshold || jsonData == nil {
					return xcpconst.CodecBinaryStruct, data, nil
				}
			}
		}
	}

	if s.neg.codecs[xcpconst.CodecArrowIPC] {
		if c, ok := codec.Lookup(xcpconst.CodecArrowIPC); ok {
			if data, err := c.Encode(e); err == nil {
				return xcpconst.CodecArrowIPC, data, nil
			}
		}
	}

	if jsonData != nil {
		return xcpconst.CodecJSON, jsonData, nil
	}
	return 0, nil, fmt.Errorf("session: no negotiated codec can represent kind %q", e.Kind)
}
