package jsoncodec

import (
	"testing"

	"github.com/xcp-project/xcp/pkg/ether"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	e := ether.New("text", 1)
	e.Payload["text"] = ether.String("hi")
	e.Attachments = append(e.Attachments, ether.Attachment{
		ID:          "img",
		InlineBytes: []byte{0xAA, 0xBB},
		MediaType:   "image/png",
		Codec:       "raw",
		SizeBytes:   2,
	})

	c := New()
	data, err := c.Encode(e)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if data[0] != '{' {
		t.Fatal("canonical JSON encoding should start with '{'")
	}

	got, err := c.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	text, err := got.Payload["text"].AsString()
	if err != nil || text != "hi" {
		t.Errorf("payload.text mismatch: %v %v", text, err)
	}
	if len(got.Attachments) != 1 || len(got.Attachments[0].InlineBytes) != 2 {
		t.Error("attachment inline bytes should round-trip through base64")
	}
}

func TestEncodeDecodeRoundTripEmptyInlineBytes(t *testing.T) {
	e := ether.New("text", 1)
	e.Payload["text"] = ether.String("hi")
	e.Attachments = append(e.Attachments, ether.Attachment{
		ID:          "empty",
		InlineBytes: []byte{},
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
	if len(got.Attachments) != 1 {
		t.Fatalf("expected 1 attachment, got %d", len(got.Attachments))
	}
	if !got.Attachments[0].IsInline() {
		t.Error("zero-length inline attachment should still round-trip as inline, not as absent")
	}
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	c := New()
	if _, err := c.Decode([]byte("not json")); err == nil {
		t.Error("decoding malformed JSON should fail")
	}
}

func TestIdentity(t *testing.T) {
	c := New()
	if c.Name() != "JSON" {
		t.Errorf("Name() = %q", c.Name())
	}
	if c.IsBinary() {
		t.Error("IsBinary() should be false for JSON")
	}
}
