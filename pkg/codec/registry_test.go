package codec

import (
	"testing"

	"github.com/xcp-project/xcp/pkg/ether"
	"github.com/xcp-project/xcp/pkg/xcpconst"
)

type stubCodec struct{ id xcpconst.CodecID }

func (s stubCodec) ID() xcpconst.CodecID                      { return s.id }
func (s stubCodec) Name() string                              { return "stub" }
func (s stubCodec) IsBinary() bool                             { return false }
func (s stubCodec) Encode(e *ether.Ether) ([]byte, error)     { return nil, nil }
func (s stubCodec) Decode(data []byte) (*ether.Ether, error)  { return nil, nil }

func TestRegisterIdempotentAndConflict(t *testing.T) {
	resetForTest()
	defer resetForTest()

	c := stubCodec{id: 0x9000}
	if err := Register(c); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := Register(c); err != nil {
		t.Fatalf("re-registering the same value should be a no-op: %v", err)
	}

	type other struct{ stubCodec }
	if err := Register(other{stubCodec{id: 0x9000}}); err == nil {
		t.Error("registering a different type under the same id should fail")
	}
}

func TestFreezeRejectsFurtherRegistration(t *testing.T) {
	resetForTest()
	defer resetForTest()

	Freeze()
	if err := Register(stubCodec{id: 0x9001}); err == nil {
		t.Error("Register after Freeze should fail")
	}
	if !IsFrozen() {
		t.Error("IsFrozen should report true after Freeze")
	}
}

func TestLookupByIDAndName(t *testing.T) {
	resetForTest()
	defer resetForTest()

	c := stubCodec{id: 0x9002}
	if err := Register(c); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if got, ok := Lookup(0x9002); !ok || got.ID() != c.ID() {
		t.Error("Lookup by id should find the registered codec")
	}
	if got, ok := LookupByName("stub"); !ok || got.ID() != c.ID() {
		t.Error("LookupByName should find the registered codec")
	}
	if _, ok := Lookup(0xFFFF); ok {
		t.Error("Lookup of an unregistered id should fail")
	}
}
