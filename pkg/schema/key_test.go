package schema

import "testing"

func TestKeyEqualUsesAllFields(t *testing.T) {
	a := New("xcp.core", "text", 1, 0, []byte(`{"type":"text"}`))
	b := New("xcp.core", "text", 1, 0, []byte(`{"type":"text"}`))
	if !a.Equal(b) {
		t.Fatal("identical inputs should produce equal keys")
	}

	c := New("xcp.core", "text", 1, 1, []byte(`{"type":"text"}`))
	if a.Equal(c) {
		t.Fatal("differing minor should not be equal")
	}
}

func TestCompatibleWithOrdersMinor(t *testing.T) {
	base := New("xcp.core", "embedding", 2, 5, []byte(`{}`))
	if !base.CompatibleWith(base, 3) {
		t.Error("minor 5 should satisfy floor 3")
	}
	if base.CompatibleWith(base, 6) {
		t.Error("minor 5 should not satisfy floor 6")
	}
}

func TestBytesRoundTrip(t *testing.T) {
	k := New("xcp.core", "tokens", 1, 2, []byte(`{"a":1}`))
	buf := k.Bytes()
	if len(buf) != 28 {
		t.Fatalf("expected 28-byte encoding, got %d", len(buf))
	}
	got, ok := ParseBytes(buf)
	if !ok {
		t.Fatal("ParseBytes should succeed on a valid buffer")
	}
	if !k.Equal(got) {
		t.Fatal("round-tripped key should equal original")
	}
}

func TestRangeAccepts(t *testing.T) {
	k := New("xcp.core", "text", 1, 4, []byte(`{}`))
	r := Range{NSHash: k.NSHash, KindID: k.KindID, Major: 1, MinMinor: 0, MaxMinor: 9}
	if !r.Accepts(k) {
		t.Error("range should accept key within bounds")
	}
	r2 := Range{NSHash: k.NSHash, KindID: k.KindID, Major: 1, MinMinor: 5, MaxMinor: 9}
	if r2.Accepts(k) {
		t.Error("range should reject key below MinMinor")
	}
}

func TestZeroKey(t *testing.T) {
	if !Zero.IsZero() {
		t.Error("Zero should report IsZero")
	}
	k := New("ns", "kind", 1, 0, []byte(`{}`))
	if k.IsZero() {
		t.Error("a real key should not report IsZero")
	}
}
