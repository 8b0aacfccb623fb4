package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestRMS(t *testing.T) {
	if got := RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %f, want 0", got)
	}
	if got := RMS([]float32{0.5, -0.5, 0.5, -0.5}); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("RMS(square) = %f, want 0.5", got)
	}
}

func TestFloatToPCM16(t *testing.T) {
	tests := []struct {
		in   float64
		want int16
	}{
		{0, 0},
		{1, 32767},
		{-1, -32768},
		{1.7, 32767},
		{-4, -32768},
		{0.5, 16383},
		{-0.5, -16384},
		{math.NaN(), 0},
		{math.Inf(1), 32767},
		{math.Inf(-1), -32768},
	}
	for _, tt := range tests {
		if got := FloatToPCM16(tt.in); got != tt.want {
			t.Errorf("FloatToPCM16(%f) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestDecodePCM16(t *testing.T) {
	data := make([]byte, 6)
	binary.LittleEndian.PutUint16(data[0:], uint16(16384))
	binary.LittleEndian.PutUint16(data[2:], 0x8000) // -32768
	binary.LittleEndian.PutUint16(data[4:], 0)

	got, err := DecodePCM16(data)
	if err != nil {
		t.Fatalf("DecodePCM16() error: %v", err)
	}
	want := []float32{0.5, -1, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %f, want %f", i, got[i], want[i])
		}
	}

	if _, err := DecodePCM16([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for odd-length payload")
	}
}

func TestEncodePCM16(t *testing.T) {
	got := EncodePCM16([]float32{1, -1})
	if v := int16(binary.LittleEndian.Uint16(got[0:])); v != 32767 {
		t.Errorf("first sample = %d, want 32767", v)
	}
	if v := int16(binary.LittleEndian.Uint16(got[2:])); v != -32768 {
		t.Errorf("second sample = %d, want -32768", v)
	}
}

func TestDecodeFloat32LE(t *testing.T) {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint32(data[0:], math.Float32bits(0.25))
	binary.LittleEndian.PutUint32(data[4:], math.Float32bits(-0.75))

	got, err := DecodeFloat32LE(data)
	if err != nil {
		t.Fatalf("DecodeFloat32LE() error: %v", err)
	}
	if got[0] != 0.25 || got[1] != -0.75 {
		t.Errorf("DecodeFloat32LE() = %v", got)
	}

	if _, err := DecodeFloat32LE(make([]byte, 5)); err == nil {
		t.Error("expected error for truncated payload")
	}
}
