package frame

import (
	"bytes"
	"testing"

	"github.com/xcp-project/xcp/pkg/schema"
	"github.com/xcp-project/xcp/pkg/xcperrors"
	"github.com/xcp-project/xcp/pkg/xcpconst"
)

func testHeader() Header {
	return Header{
		ChannelID: 1,
		MsgType:   xcpconst.MsgData,
		BodyCodec: xcpconst.CodecJSON,
		SchemaKey: schema.New("xcp.core", "text", 1, 0, []byte(`{"type":"text"}`)),
		MsgID:     42,
		InReplyTo: 0,
		Tags:      []Tag{{Key: "trace", Value: "abc123"}},
	}
}

func TestHeaderBinaryRoundTrip(t *testing.T) {
	h := testHeader()
	buf := h.EncodeBinary()
	got, err := DecodeBinary(buf)
	if err != nil {
		t.Fatalf("DecodeBinary: %v", err)
	}
	if got.ChannelID != h.ChannelID || got.MsgID != h.MsgID || got.MsgType != h.MsgType {
		t.Errorf("round-tripped header mismatch: %+v vs %+v", got, h)
	}
	if !got.SchemaKey.Equal(h.SchemaKey) {
		t.Error("schema key should round-trip")
	}
	if len(got.Tags) != 1 || got.Tags[0].Key != "trace" || got.Tags[0].Value != "abc123" {
		t.Errorf("tags should round-trip, got %+v", got.Tags)
	}
}

func TestHeaderJSONRoundTrip(t *testing.T) {
	h := testHeader()
	buf, err := h.EncodeJSON()
	if err != nil {
		t.Fatalf("EncodeJSON: %v", err)
	}
	if buf[0] != '{' {
		t.Fatalf("json header must start with '{', got %q", buf[0])
	}
	got, err := DecodeJSON(buf)
	if err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if !got.SchemaKey.Equal(h.SchemaKey) || got.MsgID != h.MsgID {
		t.Errorf("json round trip mismatch: %+v vs %+v", got, h)
	}
}

func TestPackParseRoundTrip(t *testing.T) {
	h := testHeader()
	payload := []byte(`{"kind":"text","payload":{"text":"hi"}}`)

	buf, err := Pack(h, payload, 0, false)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}

	fr, err := Parse(bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !bytes.Equal(fr.Payload, payload) {
		t.Error("parsed payload should equal original")
	}
	if fr.Header.MsgID != h.MsgID {
		t.Error("parsed header msg_id should match")
	}
}

func TestPackParseJSONHeader(t *testing.T) {
	h := testHeader()
	payload := []byte("hello")

	buf, err := Pack(h, payload, 0, true)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	fr, err := Parse(bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !bytes.Equal(fr.Payload, payload) {
		t.Error("parsed payload should equal original")
	}
}

func TestParseRejectsBadMagic(t *testing.T) {
	buf := make([]byte, 16)
	r := bytes.NewReader(buf)
	_, err := Parse(r)
	xerr, ok := xcperrors.As(err)
	if !ok {
		t.Fatalf("expected an XCPError, got %v", err)
	}
	if xerr.Code() != xcperrors.CodeBadMagic {
		t.Errorf("expected CodeBadMagic, got %d", xerr.Code())
	}
	if !xerr.Fatal() {
		t.Error("bad magic should be fatal")
	}
	if consumed := len(buf) - r.Len(); consumed != 4 {
		t.Errorf("bad magic should be detected after reading exactly 4 bytes, consumed %d", consumed)
	}
}

// TestParseRejectsBadMagicShortInput covers inputs shorter than the full
// 8-byte preamble but long enough to contain a bad magic: Parse must reach
// BadMagic before ever attempting to read the rest of the preamble, so a
// 4-7 byte input should not be misreported as HeaderTruncated.
func TestParseRejectsBadMagicShortInput(t *testing.T) {
	for _, n := range []int{4, 5, 6, 7} {
		buf := make([]byte, n)
		r := bytes.NewReader(buf)
		_, err := Parse(r)
		xerr, ok := xcperrors.As(err)
		if !ok {
			t.Fatalf("len=%d: expected an XCPError, got %v", n, err)
		}
		if xerr.Code() != xcperrors.CodeBadMagic {
			t.Errorf("len=%d: expected CodeBadMagic, got %d", n, xerr.Code())
		}
		if consumed := n - r.Len(); consumed != 4 {
			t.Errorf("len=%d: expected exactly 4 bytes consumed, got %d", n, consumed)
		}
	}
}

func TestParseDetectsCRCMismatch(t *testing.T) {
	h := testHeader()
	payload := []byte("hello world")
	buf, err := Pack(h, payload, 0, false)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	buf[len(buf)-1] ^= 0xFF // corrupt CRC trailer

	_, err = Parse(bytes.NewReader(buf))
	xerr, ok := xcperrors.As(err)
	if !ok {
		t.Fatalf("expected an XCPError, got %v", err)
	}
	if xerr.Code() != xcperrors.CodeCrcMismatch {
		t.Errorf("expected CodeCrcMismatch, got %d", xerr.Code())
	}
}

func TestParseDetectsTruncatedPayload(t *testing.T) {
	h := testHeader()
	buf, err := Pack(h, []byte("hello world"), 0, false)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	truncated := buf[:len(buf)-6] // drop payload tail and CRC

	_, err = Parse(bytes.NewReader(truncated))
	if _, ok := xcperrors.As(err); !ok {
		t.Fatalf("expected an XCPError, got %v", err)
	}
}

func TestPackOmitsLargeFlagForSmallPayload(t *testing.T) {
	// Sanity check on the plumbing rather than actually allocating >4GiB:
	// verify a normal small payload does NOT get the LARGE bit.
	h := testHeader()
	buf, err := Pack(h, []byte("small"), 0, false)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	flags := xcpconst.Flags(buf[5])
	if flags.Has(xcpconst.FlagLARGE) {
		t.Error("small payload should not set LARGE")
	}
}
