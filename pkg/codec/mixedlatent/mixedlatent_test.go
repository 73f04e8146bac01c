package mixedlatent

import (
	"bytes"
	"testing"

	"github.com/xcp-project/xcp/pkg/ether"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	e := ether.New("mixed_latent", 1)
	e.Payload["tensors"] = ether.List(
		ether.Map(map[string]ether.Value{"subtype": ether.Int(0), "data": ether.Bytes([]byte{1, 2, 3})}),
		ether.Map(map[string]ether.Value{"subtype": ether.Int(2), "data": ether.Bytes([]byte{4, 5})}),
	)

	c := New()
	data, err := c.Encode(e)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := c.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	tensors, err := got.Payload["tensors"].AsList()
	if err != nil || len(tensors) != 2 {
		t.Fatalf("tensors: %v %v", tensors, err)
	}
	m0, _ := tensors[0].AsMap()
	sub0, _ := m0["subtype"].AsInt()
	data0, _ := m0["data"].AsBytes()
	if sub0 != 0 || !bytes.Equal(data0, []byte{1, 2, 3}) {
		t.Errorf("tensors[0] mismatch: subtype=%d data=%v", sub0, data0)
	}
}

func TestDecodeRejectsTruncated(t *testing.T) {
	c := New()
	if _, err := c.Decode([]byte{2, 0}); err == nil {
		t.Error("truncated buffer should be rejected")
	}
}
