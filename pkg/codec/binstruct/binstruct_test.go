package binstruct

import (
	"testing"

	"github.com/xcp-project/xcp/pkg/ether"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	e := ether.New("text", 1)
	e.Payload["text"] = ether.String("hello")
	e.Payload["count"] = ether.Int(3)
	e.Payload["ratio"] = ether.Float(0.5)
	e.Payload["tags"] = ether.List(ether.String("a"), ether.String("b"))
	e.Attachments = append(e.Attachments, ether.Attachment{
		ID:          "blob",
		InlineBytes: []byte{1, 2, 3, 4},
		MediaType:   "application/octet-stream",
		Codec:       "raw",
		SizeBytes:   4,
	})

	c := New()
	data, err := c.Encode(e)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := c.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if got.Kind != e.Kind || got.SchemaVersion != e.SchemaVersion {
		t.Errorf("kind/schema_version mismatch: %+v vs %+v", got, e)
	}
	text, err := got.Payload["text"].AsString()
	if err != nil || text != "hello" {
		t.Errorf("payload.text mismatch: %v %v", text, err)
	}
	count, err := got.Payload["count"].AsInt()
	if err != nil || count != 3 {
		t.Errorf("payload.count mismatch: %v %v", count, err)
	}
	if len(got.Attachments) != 1 || !got.Attachments[0].IsInline() {
		t.Fatal("attachment should round-trip inline")
	}
	if len(got.Attachments[0].InlineBytes) != 4 {
		t.Error("attachment bytes should not be base64-transformed")
	}
}

func TestDecodeRejectsTruncatedBuffer(t *testing.T) {
	c := New()
	if _, err := c.Decode([]byte{0, 0, 0}); err == nil {
		t.Error("decoding a truncated buffer should fail")
	}
}

func TestIdentity(t *testing.T) {
	c := New()
	if c.Name() != "BINARY_STRUCT" {
		t.Errorf("Name() = %q", c.Name())
	}
	if !c.IsBinary() {
		t.Error("IsBinary() should be true")
	}
}
