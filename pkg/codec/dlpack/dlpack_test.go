package dlpack

import (
	"bytes"
	"testing"

	"github.com/xcp-project/xcp/pkg/ether"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	e := ether.New("dlpack_tensor", 1)
	e.Payload["shape"] = ether.List(ether.Int(2), ether.Int(3))
	e.Payload["capsule"] = ether.Bytes([]byte{1, 2, 3, 4, 5, 6})

	c := New()
	data, err := c.Encode(e)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := c.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	shape, err := got.Payload["shape"].AsList()
	if err != nil || len(shape) != 2 {
		t.Fatalf("shape: %v %v", shape, err)
	}
	capsule, err := got.Payload["capsule"].AsBytes()
	if err != nil || !bytes.Equal(capsule, []byte{1, 2, 3, 4, 5, 6}) {
		t.Fatalf("capsule mismatch: %v %v", capsule, err)
	}
}

func TestEncodeRequiresCapsule(t *testing.T) {
	e := ether.New("dlpack_tensor", 1)
	e.Payload["shape"] = ether.List(ether.Int(1))
	c := New()
	if _, err := c.Encode(e); err == nil {
		t.Error("missing capsule should be rejected")
	}
}
