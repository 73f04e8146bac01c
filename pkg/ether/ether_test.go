package ether

import (
	"encoding/json"
	"testing"
)

func TestNewRequiresFields(t *testing.T) {
	e := New("text", 1)
	if err := e.Validate(); err != nil {
		t.Fatalf("New should produce a valid Ether: %v", err)
	}

	e.Kind = ""
	if err := e.Validate(); err == nil {
		t.Error("empty kind should fail Validate")
	}
}

func TestAttachmentMutualExclusion(t *testing.T) {
	both := Attachment{ID: "a", URI: "shm://ns/x#0,4", InlineBytes: []byte{1}}
	if err := both.Validate(); err == nil {
		t.Error("attachment with both uri and inline_bytes should be rejected")
	}

	neither := Attachment{ID: "b"}
	if err := neither.Validate(); err == nil {
		t.Error("attachment with neither uri nor inline_bytes should be rejected")
	}

	inlineOnly := Attachment{ID: "c", InlineBytes: []byte{1, 2, 3}}
	if err := inlineOnly.Validate(); err != nil {
		t.Errorf("inline-only attachment should validate: %v", err)
	}

	uriOnly := Attachment{ID: "d", URI: "shm://ns/x#0,4"}
	if err := uriOnly.Validate(); err != nil {
		t.Errorf("uri-only attachment should validate: %v", err)
	}
}

func TestValueJSONRoundTrip(t *testing.T) {
	cases := []Value{
		Null(),
		Bool(true),
		Int(-42),
		Float(3.5),
		String("hello"),
		Bytes([]byte{0xde, 0xad, 0xbe, 0xef}),
		List(Int(1), String("two"), Bool(false)),
		Map(map[string]Value{"a": Int(1), "b": String("x")}),
		Bytes(nil),
		List(),
		Map(nil),
		Map(map[string]Value{}),
	}

	for _, v := range cases {
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal %v: %v", v.Kind(), err)
		}
		var got Value
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal %v: %v", v.Kind(), err)
		}
		if got.Kind() != v.Kind() {
			t.Errorf("kind mismatch: got %s, want %s (encoded %s)", got.Kind(), v.Kind(), data)
		}
	}
}

func TestValueDistinguishesIntFromFloat(t *testing.T) {
	i := Int(7)
	data, _ := json.Marshal(i)
	var got Value
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.Kind() != KindInt {
		t.Errorf("expected int to survive round trip as int, got %s", got.Kind())
	}
	if _, err := got.AsFloat(); err == nil {
		t.Error("an int Value should not satisfy AsFloat")
	}
}

func TestFactoryConstructors(t *testing.T) {
	txt := NewText("hi")
	if v, err := txt.Payload["text"].AsString(); err != nil || v != "hi" {
		t.Errorf("NewText payload mismatch: %v %v", v, err)
	}

	emb := NewEmbedding([]float32{1, 2, 3}, []uint32{3})
	vals, err := emb.Payload["values"].AsList()
	if err != nil || len(vals) != 3 {
		t.Errorf("NewEmbedding values: %v %v", vals, err)
	}

	tok := NewTokens([]int64{1, 2, 3}, "bpe-50k")
	ids, err := tok.Payload["ids"].AsList()
	if err != nil || len(ids) != 3 {
		t.Errorf("NewTokens ids: %v %v", ids, err)
	}

	img := NewImage("image/png", []byte{1, 2, 3, 4}, 2, 2)
	if len(img.Attachments) != 1 || !img.Attachments[0].IsInline() {
		t.Error("NewImage should attach inline bytes")
	}
	if err := img.Validate(); err != nil {
		t.Errorf("NewImage should validate: %v", err)
	}
}

func TestIsReservedMetadataKey(t *testing.T) {
	if !IsReservedMetadataKey("trace_id") {
		t.Error("trace_id should be reserved")
	}
	if IsReservedMetadataKey("custom_key") {
		t.Error("custom_key should not be reserved")
	}
}
