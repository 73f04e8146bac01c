package transform

import (
	"bytes"
	"testing"
)

func TestCRC32CRoundTrip(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	sum := ComputeCRC32C(data)
	if !VerifyCRC32C(data, sum) {
		t.Fatal("VerifyCRC32C should accept the matching checksum")
	}
	if VerifyCRC32C(append(append([]byte{}, data...), 'x'), sum) {
		t.Fatal("VerifyCRC32C should reject a mutated payload")
	}
}

func TestCRC32CIsCastagnoli(t *testing.T) {
	// Known Castagnoli CRC-32C of "123456789" is 0xE3069283 (the standard
	// check value used to distinguish it from IEEE's 0xCBF43926).
	got := ComputeCRC32C([]byte("123456789"))
	if got != 0xE3069283 {
		t.Fatalf("got %#x, want the CRC-32C check value 0xE3069283", got)
	}
}

func TestZstdCompressorRoundTrip(t *testing.T) {
	c := NewZstdCompressor()
	orig := bytes.Repeat([]byte("xcp payload data "), 200)

	compressed, err := c.Compress(orig)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if len(compressed) >= len(orig) {
		t.Errorf("expected compression to shrink repetitive data: %d >= %d", len(compressed), len(orig))
	}

	back, err := c.Decompress(compressed)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(back, orig) {
		t.Fatal("decompressed output should equal original")
	}
}

func TestChaChaSealerRoundTrip(t *testing.T) {
	var key [32]byte
	for i := range key {
		key[i] = byte(i)
	}
	s, err := NewChaChaSealer(key)
	if err != nil {
		t.Fatalf("NewChaChaSealer: %v", err)
	}

	plaintext := []byte("frame payload bytes")
	sealed, err := s.Seal(7, 42, plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Equal(sealed, plaintext) {
		t.Fatal("sealed output should differ from plaintext")
	}

	opened, err := s.Open(7, 42, sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Fatal("opened output should equal original plaintext")
	}

	if _, err := s.Open(7, 43, sealed); err == nil {
		t.Fatal("Open with the wrong msg_id should fail authentication")
	}
}

func TestConstantTimeEqual(t *testing.T) {
	if !ConstantTimeEqual([]byte("abc"), []byte("abc")) {
		t.Error("identical slices should compare equal")
	}
	if ConstantTimeEqual([]byte("abc"), []byte("abd")) {
		t.Error("differing slices should not compare equal")
	}
	if ConstantTimeEqual([]byte("abc"), []byte("ab")) {
		t.Error("differing lengths should not compare equal")
	}
}
