package audio

import "encoding/binary"

// Resample converts b to sampleRate and plays it rate times faster, using
// linear interpolation. A rate of 1 only converts the sample rate.
func Resample(b *Buffer, sampleRate int, rate float64) *Buffer {
	if rate <= 0 {
		rate = 1
	}
	if b.NumChannels() == 0 || b.SampleRate <= 0 || sampleRate <= 0 {
		return NewBuffer(b.NumChannels(), 0, sampleRate)
	}

	step := float64(b.SampleRate) / float64(sampleRate) * rate
	if step == 1 {
		return b
	}

	in := b.Frames()
	frames := int(float64(in) / step)
	out := NewBuffer(b.NumChannels(), frames, sampleRate)
	for c, src := range b.Channels {
		dst := out.Channels[c]
		for i := range dst {
			pos := float64(i) * step
			j := int(pos)
			if j >= len(src) {
				break
			}
			frac := float32(pos - float64(j))
			next := src[j]
			if j+1 < len(src) {
				next = src[j+1]
			}
			dst[i] = src[j] + (next-src[j])*frac
		}
	}
	return out
}

// PCM16 interleaves b into little-endian signed 16-bit samples with the
// given number of output channels. Mono sources are duplicated; when
// folding down to mono the channels are averaged.
func PCM16(b *Buffer, channels int) []byte {
	frames := b.Frames()
	if channels <= 0 {
		channels = DefaultChannels
	}
	out := make([]byte, frames*channels*2)
	n := b.NumChannels()
	if n == 0 {
		return out
	}

	off := 0
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			var s float32
			switch {
			case channels == 1 && n > 1:
				for _, ch := range b.Channels {
					if i < len(ch) {
						s += ch[i]
					}
				}
				s /= float32(n)
			default:
				src := b.Channels[min(c, n-1)]
				if i < len(src) {
					s = src[i]
				}
			}
			binary.LittleEndian.PutUint16(out[off:], uint16(floatToPCM16(s)))
			off += 2
		}
	}
	return out
}
