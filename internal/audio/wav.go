package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// WAVHeaderSize is the size of the canonical RIFF/WAVE header EncodeWAV writes.
const WAVHeaderSize = 44

const (
	wavFormatPCM        = 1
	wavFormatFloat      = 3
	wavFormatExtensible = 0xFFFE
)

var (
	// ErrMalformedWAV is returned when a RIFF/WAVE stream cannot be parsed.
	ErrMalformedWAV = errors.New("malformed wav")

	// ErrUnsupportedWAV is returned for WAV encodings we do not decode.
	ErrUnsupportedWAV = errors.New("unsupported wav encoding")
)

// EncodeWAV serializes b as 16-bit PCM WAV with interleaved little-endian
// samples. Samples are clamped to [-1, 1]; channels that are missing or
// shorter than the first one are padded with silence. A nil buffer encodes
// as an empty stereo clip.
func EncodeWAV(b *Buffer) []byte {
	channels := b.NumChannels()
	sampleRate := DefaultSampleRate
	if b != nil && b.SampleRate > 0 {
		sampleRate = b.SampleRate
	}
	if channels == 0 {
		channels = DefaultChannels
	}
	frames := b.Frames()

	out := make([]byte, WAVHeaderSize+frames*channels*2)
	writeWAVHeader(out, sampleRate, channels, frames)
	fillPCM16(out[WAVHeaderSize:], b, channels, frames)
	return out
}

// EncodeSilentWAV returns a WAV of duration seconds of silence.
func EncodeSilentWAV(duration float64, sampleRate, channels int) []byte {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if channels <= 0 {
		channels = DefaultChannels
	}
	frames := 0
	if duration > 0 && !math.IsInf(duration, 0) {
		frames = int(duration * float64(sampleRate))
	}

	out := make([]byte, WAVHeaderSize+frames*channels*2)
	writeWAVHeader(out, sampleRate, channels, frames)
	return out
}

func writeWAVHeader(out []byte, sampleRate, channels, frames int) {
	dataLen := frames * channels * 2
	le := binary.LittleEndian

	copy(out[0:4], "RIFF")
	le.PutUint32(out[4:8], uint32(36+dataLen))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	le.PutUint32(out[16:20], 16)
	le.PutUint16(out[20:22], wavFormatPCM)
	le.PutUint16(out[22:24], uint16(channels))
	le.PutUint32(out[24:28], uint32(sampleRate))
	le.PutUint32(out[28:32], uint32(sampleRate*channels*2))
	le.PutUint16(out[32:34], uint16(channels*2))
	le.PutUint16(out[34:36], 16)
	copy(out[36:40], "data")
	le.PutUint32(out[40:44], uint32(dataLen))
}

// fillPCM16 writes interleaved samples into data. If anything goes wrong
// while reading the buffer the data section is left silent at full size.
func fillPCM16(data []byte, b *Buffer, channels, frames int) {
	defer func() {
		if recover() != nil {
			clear(data)
		}
	}()

	if b == nil {
		return
	}
	off := 0
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			var s float32
			if c < len(b.Channels) && i < len(b.Channels[c]) {
				s = b.Channels[c][i]
			}
			binary.LittleEndian.PutUint16(data[off:], uint16(floatToPCM16(s)))
			off += 2
		}
	}
}

func floatToPCM16(s float32) int16 {
	switch {
	case s != s: // NaN
		return 0
	case s >= 1:
		return math.MaxInt16
	case s <= -1:
		return math.MinInt16
	case s < 0:
		return int16(s * 0x8000)
	default:
		return int16(s * 0x7FFF)
	}
}

// wavInfo is the parsed fmt chunk.
type wavInfo struct {
	format        uint16
	channels      int
	sampleRate    int
	bitsPerSample int
}

// DecodeWAV parses a RIFF/WAVE stream holding 8, 16, 24 or 32-bit integer
// PCM or 32-bit float samples.
func DecodeWAV(data []byte) (*Buffer, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%w: missing RIFF/WAVE header", ErrMalformedWAV)
	}

	var (
		info    *wavInfo
		payload []byte
	)
	le := binary.LittleEndian
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(le.Uint32(data[pos+4 : pos+8]))
		pos += 8
		if size < 0 || size > len(data)-pos {
			// Streamed WAVs often carry a bogus size on the last chunk.
			size = len(data) - pos
		}
		chunk := data[pos : pos+size]

		switch id {
		case "fmt ":
			if len(chunk) < 16 {
				return nil, fmt.Errorf("%w: short fmt chunk", ErrMalformedWAV)
			}
			info = &wavInfo{
				format:        le.Uint16(chunk[0:2]),
				channels:      int(le.Uint16(chunk[2:4])),
				sampleRate:    int(le.Uint32(chunk[4:8])),
				bitsPerSample: int(le.Uint16(chunk[14:16])),
			}
			if info.format == wavFormatExtensible && len(chunk) >= 26 {
				info.format = le.Uint16(chunk[24:26])
			}
		case "data":
			payload = chunk
		}

		pos += size + size%2
		if info != nil && payload != nil {
			break
		}
	}

	if info == nil {
		return nil, fmt.Errorf("%w: no fmt chunk", ErrMalformedWAV)
	}
	if payload == nil {
		return nil, fmt.Errorf("%w: no data chunk", ErrMalformedWAV)
	}
	if info.channels <= 0 || info.sampleRate <= 0 {
		return nil, fmt.Errorf("%w: %d channels at %d Hz", ErrMalformedWAV, info.channels, info.sampleRate)
	}

	read, err := sampleReader(info)
	if err != nil {
		return nil, err
	}

	width := info.bitsPerSample / 8
	frames := len(payload) / (width * info.channels)
	buf := NewBuffer(info.channels, frames, info.sampleRate)
	off := 0
	for i := 0; i < frames; i++ {
		for c := 0; c < info.channels; c++ {
			buf.Channels[c][i] = read(payload[off : off+width])
			off += width
		}
	}
	return buf, nil
}

func sampleReader(info *wavInfo) (func([]byte) float32, error) {
	le := binary.LittleEndian
	switch {
	case info.format == wavFormatFloat && info.bitsPerSample == 32:
		return func(b []byte) float32 {
			return math.Float32frombits(le.Uint32(b))
		}, nil
	case info.format != wavFormatPCM:
		return nil, fmt.Errorf("%w: format tag %d", ErrUnsupportedWAV, info.format)
	case info.bitsPerSample == 8:
		return func(b []byte) float32 {
			return (float32(b[0]) - 128) / 128
		}, nil
	case info.bitsPerSample == 16:
		return func(b []byte) float32 {
			return float32(int16(le.Uint16(b))) / 0x8000
		}, nil
	case info.bitsPerSample == 24:
		return func(b []byte) float32 {
			v := int32(b[0]) | int32(b[1])<<8 | int32(int8(b[2]))<<16
			return float32(v) / 0x800000
		}, nil
	case info.bitsPerSample == 32:
		return func(b []byte) float32 {
			return float32(int32(le.Uint32(b))) / 0x80000000
		}, nil
	default:
		return nil, fmt.Errorf("%w: %d bits per sample", ErrUnsupportedWAV, info.bitsPerSample)
	}
}
