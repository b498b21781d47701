package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

// Decoder turns encoded audio of a known format into a Buffer.
type Decoder interface {
	Decode(data []byte, format Format) (*Buffer, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(data []byte, format Format) (*Buffer, error)

// Decode calls f(data, format).
func (f DecoderFunc) Decode(data []byte, format Format) (*Buffer, error) {
	return f(data, format)
}

// DefaultDecoder decodes WAV, MP3 and Ogg Vorbis.
type DefaultDecoder struct{}

// Decode implements Decoder.
func (DefaultDecoder) Decode(data []byte, format Format) (*Buffer, error) {
	switch format {
	case FormatWAV:
		return DecodeWAV(data)
	case FormatMP3:
		return decodeMP3(data)
	case FormatOgg:
		return decodeOgg(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
}

// decodeMP3 decodes to the 16-bit stereo stream go-mp3 always produces.
func decodeMP3(data []byte) (*Buffer, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("mp3: %w", err)
	}

	pcm, err := io.ReadAll(dec)
	if err != nil && len(pcm) == 0 {
		return nil, fmt.Errorf("mp3: %w", err)
	}

	const frameBytes = 4 // 2 channels * 16 bits
	frames := len(pcm) / frameBytes
	buf := NewBuffer(2, frames, dec.SampleRate())
	for i := 0; i < frames; i++ {
		off := i * frameBytes
		buf.Channels[0][i] = float32(int16(binary.LittleEndian.Uint16(pcm[off:]))) / 0x8000
		buf.Channels[1][i] = float32(int16(binary.LittleEndian.Uint16(pcm[off+2:]))) / 0x8000
	}
	return buf, nil
}

func decodeOgg(data []byte) (*Buffer, error) {
	samples, format, err := oggvorbis.ReadAll(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("ogg: %w", err)
	}
	if format.Channels <= 0 {
		return nil, fmt.Errorf("ogg: %w", ErrNoChannels)
	}

	frames := len(samples) / format.Channels
	buf := NewBuffer(format.Channels, frames, format.SampleRate)
	for i := 0; i < frames; i++ {
		for c := 0; c < format.Channels; c++ {
			buf.Channels[c][i] = samples[i*format.Channels+c]
		}
	}
	return buf, nil
}
