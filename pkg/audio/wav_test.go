package audio_test

import (
	"encoding/binary"
	"testing"

	"github.com/voxlink/voxlink/pkg/audio"
)

func TestEncodeWAV_Header(t *testing.T) {
	pcm := make([]byte, 320)
	wav := audio.EncodeWAV(pcm, 16000, 1, 16)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("wav length = %d, want %d", len(wav), 44+len(pcm))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Fatal("missing RIFF/WAVE signature")
	}
	if string(wav[12:16]) != "fmt " || string(wav[36:40]) != "data" {
		t.Fatal("missing fmt /data chunks")
	}
	if got := binary.LittleEndian.Uint32(wav[4:8]); got != uint32(len(wav)-8) {
		t.Errorf("RIFF size = %d, want %d", got, len(wav)-8)
	}
	if got := binary.LittleEndian.Uint16(wav[20:22]); got != 1 {
		t.Errorf("format tag = %d, want 1 (PCM)", got)
	}
	if got := binary.LittleEndian.Uint16(wav[22:24]); got != 1 {
		t.Errorf("channels = %d, want 1", got)
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 16000 {
		t.Errorf("sample rate = %d, want 16000", got)
	}
	if got := binary.LittleEndian.Uint32(wav[28:32]); got != 32000 {
		t.Errorf("byte rate = %d, want 32000", got)
	}
	if got := binary.LittleEndian.Uint16(wav[32:34]); got != 2 {
		t.Errorf("block align = %d, want 2", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != uint32(len(pcm)) {
		t.Errorf("data size = %d, want %d", got, len(pcm))
	}
}

func TestDetectFormat(t *testing.T) {
	cases := []struct {
		name string
		buf  []byte
		want audio.Format
	}{
		{"wav", []byte("RIFFxxxxWAVE"), audio.FormatWAV},
		{"mp3", []byte{0xFF, 0xFB, 0x90, 0x00}, audio.FormatMP3},
		{"ogg", []byte("OggS\x00"), audio.FormatOGG},
		{"raw", []byte{0x01, 0x02, 0x03, 0x04}, audio.FormatRawPCM},
		{"empty", nil, audio.FormatRawPCM},
		{"short mp3-like", []byte{0xFF}, audio.FormatRawPCM},
	}
	for _, c := range cases {
		if got := audio.DetectFormat(c.buf); got != c.want {
			t.Errorf("%s: DetectFormat = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestNormalizePlayable(t *testing.T) {
	// Raw PCM gets a WAV header.
	raw := make([]byte, 64)
	out, f := audio.NormalizePlayable(raw, 16000, 1, 16)
	if f != audio.FormatRawPCM {
		t.Errorf("detected %v, want pcm", f)
	}
	if audio.DetectFormat(out) != audio.FormatWAV {
		t.Error("normalized raw PCM should carry a WAV signature")
	}

	// Recognized containers pass through untouched.
	ogg := []byte("OggS rest of stream")
	out, f = audio.NormalizePlayable(ogg, 16000, 1, 16)
	if f != audio.FormatOGG {
		t.Errorf("detected %v, want ogg", f)
	}
	if &out[0] != &ogg[0] || len(out) != len(ogg) {
		t.Error("container buffer should pass through unchanged")
	}
}
