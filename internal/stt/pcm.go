package stt

import "encoding/binary"

// samplesToFloat32 converts int16 samples to float32 normalized to [-1, 1].
func samplesToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, sample := range samples {
		out[i] = float32(sample) / 32768.0
	}
	return out
}

// samplesToPCM16 encodes int16 samples as little-endian PCM bytes.
func samplesToPCM16(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(sample))
	}
	return out
}
