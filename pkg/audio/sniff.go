package audio

// Format identifies the container (or lack of one) of an inbound audio buffer.
type Format int

const (
	// FormatRawPCM means no recognized container signature; the buffer is
	// assumed to be raw little-endian PCM.
	FormatRawPCM Format = iota
	FormatWAV
	FormatMP3
	FormatOGG
)

// String returns the lowercase format name.
func (f Format) String() string {
	switch f {
	case FormatWAV:
		return "wav"
	case FormatMP3:
		return "mp3"
	case FormatOGG:
		return "ogg"
	default:
		return "pcm"
	}
}

// formatSniffer pairs a signature predicate with the format it detects.
// Ordered: the first matching predicate wins, raw PCM is the fallback.
type formatSniffer struct {
	format Format
	match  func([]byte) bool
}

var sniffers = []formatSniffer{
	{FormatWAV, func(b []byte) bool {
		return len(b) >= 4 && b[0] == 'R' && b[1] == 'I' && b[2] == 'F' && b[3] == 'F'
	}},
	{FormatMP3, func(b []byte) bool {
		// MPEG frame sync: 11 set bits.
		return len(b) >= 2 && b[0] == 0xFF && b[1]&0xE0 == 0xE0
	}},
	{FormatOGG, func(b []byte) bool {
		return len(b) >= 4 && b[0] == 'O' && b[1] == 'g' && b[2] == 'g' && b[3] == 'S'
	}},
}

// DetectFormat sniffs the leading signature bytes of buf. Anything that is
// not WAV, MP3, or OGG is reported as raw PCM.
func DetectFormat(buf []byte) Format {
	for _, s := range sniffers {
		if s.match(buf) {
			return s.format
		}
	}
	return FormatRawPCM
}

// NormalizePlayable returns buf in a form a generic audio decoder can parse:
// recognized containers pass through untouched, raw PCM is wrapped in a WAV
// header using the given stream format.
func NormalizePlayable(buf []byte, sampleRate, channels, bitDepth int) ([]byte, Format) {
	f := DetectFormat(buf)
	if f == FormatRawPCM {
		return EncodeWAV(buf, sampleRate, channels, bitDepth), f
	}
	return buf, f
}
