package audio

import "bytes"

// Format is a container format recognised by its leading bytes.
type Format int

const (
	FormatUnknown Format = iota
	FormatWAV
	FormatMP3
	FormatOgg
)

// String returns the short name of the format.
func (f Format) String() string {
	switch f {
	case FormatWAV:
		return "wav"
	case FormatMP3:
		return "mp3"
	case FormatOgg:
		return "ogg"
	default:
		return "unknown"
	}
}

// MIME returns the media type for the format.
func (f Format) MIME() string {
	switch f {
	case FormatWAV:
		return "audio/wav"
	case FormatMP3:
		return "audio/mpeg"
	case FormatOgg:
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}

var (
	magicRIFF = []byte("RIFF")
	magicID3  = []byte("ID3")
	magicOgg  = []byte("OggS")
)

// Sniff identifies the container format from the first bytes of data.
// MP3 is recognised either by an ID3 tag or by a bare MPEG frame sync,
// since ElevenLabs streams untagged MP3.
func Sniff(data []byte) Format {
	switch {
	case bytes.HasPrefix(data, magicRIFF):
		return FormatWAV
	case bytes.HasPrefix(data, magicID3):
		return FormatMP3
	case bytes.HasPrefix(data, magicOgg):
		return FormatOgg
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return FormatMP3
	default:
		return FormatUnknown
	}
}
