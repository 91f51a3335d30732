package audio

import (
	"encoding/base64"
	"fmt"
	"time"
)

const (
	// BytesPerSample is the size of one PCM-16 sample.
	BytesPerSample = 2

	// CaptureSampleRate is the sample rate of outbound microphone audio.
	CaptureSampleRate = 16000

	// PlaybackSampleRate is the sample rate of inbound synthesized speech.
	PlaybackSampleRate = 24000
)

// Buffer is a decoded audio buffer: one float32 slice per channel, each
// sample normalized to [-1, 1], tagged with the sample rate it was
// reconstructed at.
type Buffer struct {
	SampleRate int
	Channels   [][]float32
}

// FrameCount returns the number of samples per channel.
func (b *Buffer) FrameCount() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns the playback duration of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.FrameCount()) * time.Second / time.Duration(b.SampleRate)
}

// Encode converts raw PCM bytes to standard base64 for JSON transport.
// The encoding is exact: Decode(Encode(b)) == b for any byte sequence.
func Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// Decode is the inverse of Encode. A malformed payload returns an error;
// callers treat it as a dropped chunk, never as a session-fatal condition.
func Decode(text string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 audio payload: %w", err)
	}
	return data, nil
}

// Reconstruct interprets data as interleaved little-endian signed 16-bit
// samples and produces a playable buffer with one float array per channel.
// Each sample is normalized by dividing by 32768. Trailing bytes that do
// not form a complete frame are silently dropped.
func Reconstruct(data []byte, sampleRate, channels int) (*Buffer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}
	if channels < 1 {
		return nil, fmt.Errorf("invalid channel count: %d", channels)
	}

	frameCount := len(data) / (BytesPerSample * channels)

	buf := &Buffer{
		SampleRate: sampleRate,
		Channels:   make([][]float32, channels),
	}
	for ch := 0; ch < channels; ch++ {
		buf.Channels[ch] = make([]float32, frameCount)
	}

	for i := 0; i < frameCount; i++ {
		for ch := 0; ch < channels; ch++ {
			off := (i*channels + ch) * BytesPerSample
			sample := int16(data[off]) | int16(data[off+1])<<8
			buf.Channels[ch][i] = float32(sample) / 32768.0
		}
	}

	return buf, nil
}

// FrameToPCM16 converts a mono float frame (native capture format, [-1, 1]
// per sample) to little-endian PCM-16 bytes. Conversion is a direct
// scale-and-cast: values above 1.0 are not clamped and may wrap. This
// matches the capture path's known limitation and is intentional.
func FrameToPCM16(frame []float32) []byte {
	out := make([]byte, len(frame)*BytesPerSample)
	for i, sample := range frame {
		v := int16(sample * 32768)
		out[i*2] = byte(v)
		out[i*2+1] = byte(uint16(v) >> 8)
	}
	return out
}
