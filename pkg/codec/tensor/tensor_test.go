package tensor

import (
	"math"
	"testing"

	"github.com/xcp-project/xcp/pkg/ether"
)

func tensorEther(values []float64, shape []int) *ether.Ether {
	e := ether.New("tensor", 1)
	shapeVals := make([]ether.Value, len(shape))
	for i, d := range shape {
		shapeVals[i] = ether.Int(int64(d))
	}
	valVals := make([]ether.Value, len(values))
	for i, v := range values {
		valVals[i] = ether.Float(v)
	}
	e.Payload["shape"] = ether.List(shapeVals...)
	e.Payload["values"] = ether.List(valVals...)
	return e
}

func TestF32RoundTrip(t *testing.T) {
	e := tensorEther([]float64{1.5, -2.25, 3.0, 0.0}, []int{2, 2})
	data, err := F32.Encode(e)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(data) != HeaderSize+4*4 {
		t.Fatalf("unexpected encoded length %d", len(data))
	}

	got, err := F32.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	values, err := got.Payload["values"].AsList()
	if err != nil || len(values) != 4 {
		t.Fatalf("values: %v %v", values, err)
	}
	v0, _ := values[0].AsFloat()
	if v0 != 1.5 {
		t.Errorf("values[0] = %v, want 1.5", v0)
	}
}

func TestF16RoundTripApproximate(t *testing.T) {
	e := tensorEther([]float64{1.0, 2.5, -0.5}, []int{3})
	data, err := F16.Encode(e)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := F16.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	values, _ := got.Payload["values"].AsList()
	v0, _ := values[0].AsFloat()
	if math.Abs(v0-1.0) > 0.01 {
		t.Errorf("values[0] = %v, want ~1.0", v0)
	}
}

func TestQInt8Quantizes(t *testing.T) {
	e := tensorEther([]float64{100, -100, 0, 50}, []int{4})
	data, err := QInt8.Encode(e)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(data) != HeaderSize+4 {
		t.Fatalf("unexpected encoded length %d", len(data))
	}

	got, err := QInt8.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	values, _ := got.Payload["values"].AsList()
	v0, _ := values[0].AsFloat()
	if math.Abs(v0-100) > 1.0 {
		t.Errorf("values[0] = %v, want ~100 (lossy quantization tolerance)", v0)
	}
}

func TestDecodeRejectsWrongCodecDType(t *testing.T) {
	e := tensorEther([]float64{1, 2}, []int{2})
	data, err := F32.Encode(e)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := F16.Decode(data); err == nil {
		t.Error("decoding F32 bytes with the F16 codec should fail on dtype mismatch")
	}
}

func TestFloat16Conversion(t *testing.T) {
	cases := []float32{0, 1, -1, 2.5, 65504, -65504}
	for _, f := range cases {
		bits := float32ToFloat16(f)
		back := float16ToFloat32(bits)
		if math.Abs(float64(back-f)) > math.Abs(float64(f))*0.01+0.01 {
			t.Errorf("float16 round trip of %v gave %v", f, back)
		}
	}
}
