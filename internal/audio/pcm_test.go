package audio

import (
	"encoding/base64"
	"testing"
)

func TestQuantizeSample(t *testing.T) {
	tests := []struct {
		name     string
		input    float32
		expected int16
	}{
		{name: "zero", input: 0, expected: 0},
		{name: "full scale positive", input: 1.0, expected: 32767},
		{name: "full scale negative", input: -1.0, expected: -32768},
		{name: "clamp above range", input: 2.5, expected: 32767},
		{name: "clamp below range", input: -2.5, expected: -32768},
		{name: "half scale positive", input: 0.5, expected: 16383},
		{name: "half scale negative", input: -0.5, expected: -16384},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := QuantizeSample(tt.input); got != tt.expected {
				t.Errorf("Expected %d for input %f, got %d", tt.expected, tt.input, got)
			}
		})
	}
}

func TestEncodePCM16LittleEndian(t *testing.T) {
	data := EncodePCM16([]float32{0, 1.0, -1.0})

	expected := []byte{
		0x00, 0x00, // 0
		0xFF, 0x7F, // 32767
		0x00, 0x80, // -32768
	}

	if len(data) != len(expected) {
		t.Fatalf("Expected %d bytes, got %d", len(expected), len(data))
	}

	for i, b := range expected {
		if data[i] != b {
			t.Errorf("Byte %d: expected 0x%02X, got 0x%02X", i, b, data[i])
		}
	}
}

func TestDecodePCM16RoundTrip(t *testing.T) {
	samples := []float32{0, 0.25, -0.25, 1.0, -1.0}
	decoded := DecodePCM16(EncodePCM16(samples))

	if len(decoded) != len(samples) {
		t.Fatalf("Expected %d samples, got %d", len(samples), len(decoded))
	}

	for i, s := range samples {
		if decoded[i] != QuantizeSample(s) {
			t.Errorf("Sample %d: expected %d, got %d", i, QuantizeSample(s), decoded[i])
		}
	}
}

func TestEncodeBase64PCM16(t *testing.T) {
	samples := []float32{0.5, -0.5}

	decoded, err := base64.StdEncoding.DecodeString(EncodeBase64PCM16(samples))
	if err != nil {
		t.Fatalf("Failed to decode base64: %v", err)
	}

	raw := EncodePCM16(samples)
	if len(decoded) != len(raw) {
		t.Fatalf("Expected %d bytes, got %d", len(raw), len(decoded))
	}

	for i := range raw {
		if decoded[i] != raw[i] {
			t.Errorf("Byte %d: expected 0x%02X, got 0x%02X", i, raw[i], decoded[i])
		}
	}
}
