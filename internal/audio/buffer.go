package audio

import "time"

// Audio defaults.
const (
	DefaultSampleRate = 44100
	DefaultChannels   = 2

	// SilenceDuration is the length of the fallback clip in seconds.
	SilenceDuration = 0.5
)

// Buffer is decoded audio: one slice of samples in [-1, 1] per channel.
type Buffer struct {
	SampleRate int
	Channels   [][]float32
}

// NewBuffer allocates a zeroed buffer.
func NewBuffer(channels, frames, sampleRate int) *Buffer {
	if channels < 0 {
		channels = 0
	}
	if frames < 0 {
		frames = 0
	}
	b := &Buffer{
		SampleRate: sampleRate,
		Channels:   make([][]float32, channels),
	}
	for i := range b.Channels {
		b.Channels[i] = make([]float32, frames)
	}
	return b
}

// Silent returns half a second of stereo silence at sampleRate.
func Silent(sampleRate int) *Buffer {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return NewBuffer(DefaultChannels, int(SilenceDuration*float64(sampleRate)), sampleRate)
}

// NumChannels returns the channel count.
func (b *Buffer) NumChannels() int {
	if b == nil {
		return 0
	}
	return len(b.Channels)
}

// Frames returns the length of the first channel.
func (b *Buffer) Frames() int {
	if b.NumChannels() == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns the playing time of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// IsSilent reports whether every sample is zero.
func (b *Buffer) IsSilent() bool {
	if b == nil {
		return true
	}
	for _, ch := range b.Channels {
		for _, s := range ch {
			if s != 0 {
				return false
			}
		}
	}
	return true
}
