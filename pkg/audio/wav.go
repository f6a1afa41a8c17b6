package audio

import "encoding/binary"

// wavHeaderSize is the canonical RIFF/WAVE/fmt /data header length.
const wavHeaderSize = 44

// EncodeWAV prepends a canonical 44-byte WAV header (PCM format tag 1) to raw
// little-endian PCM samples. Used when the transport delivers raw PCM that a
// generic audio decoder cannot parse directly.
func EncodeWAV(pcm []byte, sampleRate, channels, bitDepth int) []byte {
	if sampleRate <= 0 {
		sampleRate = DefaultChunkConfig.SampleRate
	}
	if channels <= 0 {
		channels = 1
	}
	if bitDepth <= 0 {
		bitDepth = 16
	}

	blockAlign := channels * bitDepth / 8
	byteRate := sampleRate * blockAlign

	out := make([]byte, wavHeaderSize+len(pcm))
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(wavHeaderSize+len(pcm)-8))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16) // fmt chunk size
	binary.LittleEndian.PutUint16(out[20:22], 1)  // PCM format tag
	binary.LittleEndian.PutUint16(out[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], uint16(bitDepth))
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))
	copy(out[wavHeaderSize:], pcm)
	return out
}
