package sampleconv

import (
	"math"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	samples := []float32{0, 0.5, -0.5, 0.25, -1, 0.999}

	tests := []struct {
		format Format
		tol    float64
	}{
		{F32LE, 0},
		{F64LE, 0},
		{S32LE, 1e-6},
		{S24LE, 1.0 / scale24},
		{S24LE3, 1.0 / scale24},
		{S16LE, 1.0 / scale16},
		{U8, 1.0 / scale8},
	}

	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			raw := make([]byte, len(samples)*tt.format.Bytes())
			if n := FromFloat32(tt.format, samples, raw); n != len(samples) {
				t.Fatalf("FromFloat32 wrote %d samples, want %d", n, len(samples))
			}
			got := make([]float32, len(samples))
			if n := ToFloat32(tt.format, raw, got); n != len(samples) {
				t.Fatalf("ToFloat32 read %d samples, want %d", n, len(samples))
			}
			for i := range samples {
				if diff := math.Abs(float64(got[i] - samples[i])); diff > tt.tol {
					t.Errorf("sample %d: got %v, want %v (tolerance %v)", i, got[i], samples[i], tt.tol)
				}
			}
		})
	}
}

func TestFromFloat32Clips(t *testing.T) {
	raw := make([]byte, 4)
	FromFloat32(S16LE, []float32{2, -2}, raw)

	got := make([]float32, 2)
	ToFloat32(S16LE, raw, got)
	if got[0] != float32(32767)/scale16 {
		t.Errorf("positive overflow decoded as %v", got[0])
	}
	if got[1] != -1 {
		t.Errorf("negative overflow decoded as %v, want -1", got[1])
	}
}

func TestS24LE3SignExtension(t *testing.T) {
	// 0xFFFFFF is -1 in 24-bit two's complement.
	raw := []byte{0xFF, 0xFF, 0xFF, 0x00, 0x00, 0x80}
	got := make([]float32, 2)
	if n := ToFloat32(S24LE3, raw, got); n != 2 {
		t.Fatalf("read %d samples, want 2", n)
	}
	if want := float32(-1.0 / scale24); got[0] != want {
		t.Errorf("got %v, want %v", got[0], want)
	}
	if got[1] != -1 {
		t.Errorf("got %v, want -1", got[1])
	}
}

func TestBoundedByShorterBuffer(t *testing.T) {
	raw := make([]byte, 6) // three S16 samples
	dst := make([]float32, 2)
	if n := ToFloat32(S16LE, raw, dst); n != 2 {
		t.Errorf("ToFloat32 = %d, want 2", n)
	}
	if n := FromFloat32(S16LE, make([]float32, 5), raw); n != 3 {
		t.Errorf("FromFloat32 = %d, want 3", n)
	}
}

func TestNaNEncodesAsSilence(t *testing.T) {
	raw := []byte{0xAA, 0xAA}
	FromFloat32(S16LE, []float32{float32(math.NaN())}, raw)
	if raw[0] != 0 || raw[1] != 0 {
		t.Errorf("NaN encoded as %x", raw)
	}
}
