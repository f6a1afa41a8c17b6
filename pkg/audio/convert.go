// Package audio provides the sample-format conversion, chunk framing, and
// container helpers used by the voxlink voice pipeline.
//
// All PCM byte slices are little-endian 16-bit signed samples unless a
// function documents otherwise. Float samples are normalized to [-1, 1].
package audio

import (
	"encoding/binary"
	"math"
)

// FloatToInt16 converts a normalized float sample to a 16-bit PCM sample.
// The input is clamped to [-1, 1]. Negative samples scale by 32768 and
// non-negative samples by 32767, matching the asymmetric two's-complement
// range, with rounding to the nearest integer.
func FloatToInt16(s float32) int16 {
	if s < -1 {
		s = -1
	} else if s > 1 {
		s = 1
	}
	if s < 0 {
		return int16(math.Round(float64(s) * 32768))
	}
	return int16(math.Round(float64(s) * 32767))
}

// Int16ToFloat converts a 16-bit PCM sample back to a normalized float.
func Int16ToFloat(s int16) float32 {
	return float32(s) / 32767
}

// FloatsToPCM16 converts a block of normalized float samples to little-endian
// 16-bit PCM bytes.
func FloatsToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(FloatToInt16(s)))
	}
	return out
}

// PCM16ToFloats converts little-endian 16-bit PCM bytes to normalized float
// samples. A trailing odd byte is ignored.
func PCM16ToFloats(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		out[i] = Int16ToFloat(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	return out
}

// RMS computes the root-mean-square amplitude of a block of normalized float
// samples. Returns 0 for an empty block.
func RMS(block []float32) float64 {
	if len(block) == 0 {
		return 0
	}
	var sum float64
	for _, s := range block {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(block)))
}

// SilenceFrame returns a zero-filled PCM frame of n samples. Sent on the
// audio channel to keep the remote recognizer's utterance timer alive while
// no real audio is flowing.
func SilenceFrame(n int) []byte {
	return make([]byte, n*2)
}
