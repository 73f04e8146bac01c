package arrowipc

import (
	"testing"

	"github.com/xcp-project/xcp/pkg/ether"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	e := ether.New("tabular", 1)
	e.Metadata["producer"] = ether.String("test-suite")
	e.Payload["price"] = ether.List(ether.Float(1.5), ether.Float(2.5))
	e.Payload["qty"] = ether.List(ether.Int(10), ether.Int(20))
	e.Payload["label"] = ether.List(ether.String("a"), ether.String("b"))

	c := New()
	data, err := c.Encode(e)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := c.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	meta, err := got.Metadata["producer"].AsString()
	if err != nil || meta != "test-suite" {
		t.Errorf("metadata.producer = %q, %v", meta, err)
	}
	price, err := got.Payload["price"].AsList()
	if err != nil || len(price) != 2 {
		t.Fatalf("payload.price: %v %v", price, err)
	}
	p0, _ := price[0].AsFloat()
	if p0 != 1.5 {
		t.Errorf("price[0] = %v, want 1.5", p0)
	}
	label, err := got.Payload["label"].AsList()
	if err != nil || len(label) != 2 {
		t.Fatalf("payload.label: %v %v", label, err)
	}
	l0, _ := label[0].AsString()
	if l0 != "a" {
		t.Errorf("label[0] = %q, want \"a\"", l0)
	}
}

func TestEncodeRejectsUnsupportedColumnKind(t *testing.T) {
	e := ether.New("tabular", 1)
	e.Payload["bad"] = ether.List(ether.Bool(true))
	c := New()
	if _, err := c.Encode(e); err == nil {
		t.Error("a column of an unsupported element kind should be rejected")
	}
}
