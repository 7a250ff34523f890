package audio

import "encoding/base64"

// QuantizeSample clamps a float sample to [-1, 1] and quantizes it to
// 16-bit signed PCM: 1.0 maps to 32767 and -1.0 maps to -32768.
func QuantizeSample(s float32) int16 {
	if s > 1.0 {
		s = 1.0
	}
	if s < -1.0 {
		s = -1.0
	}

	if s < 0 {
		return int16(s * 32768)
	}
	return int16(s * 32767)
}

// EncodePCM16 converts float samples to little-endian 16-bit PCM bytes
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := QuantizeSample(s)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// EncodeBase64PCM16 converts float samples to base64-encoded PCM16
// suitable for the audio-chunk uplink message
func EncodeBase64PCM16(samples []float32) string {
	return base64.StdEncoding.EncodeToString(EncodePCM16(samples))
}

// DecodePCM16 converts little-endian 16-bit PCM bytes back to int16
// samples. Used by tests and the development server.
func DecodePCM16(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples
}
