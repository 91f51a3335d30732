package audio

import (
	"bytes"
	"math"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := [][]byte{
		{},
		{0x00},
		{0xFF, 0x7F, 0x00, 0x80},
		bytes.Repeat([]byte{0xAB, 0xCD, 0x12}, 1000),
	}

	for _, input := range cases {
		encoded := Encode(input)
		decoded, err := Decode(encoded)
		if err != nil {
			t.Fatalf("Decode failed for %d bytes: %v", len(input), err)
		}
		if !bytes.Equal(decoded, input) {
			t.Errorf("Round trip mismatch for %d bytes", len(input))
		}
	}
}

func TestDecodeInvalidInput(t *testing.T) {
	_, err := Decode("not!!valid??base64")
	if err == nil {
		t.Error("Expected error for invalid base64 input")
	}
}

func TestReconstructMono(t *testing.T) {
	// Three known samples: 0, 16384 (0.5), -32768 (-1.0)
	data := []byte{
		0x00, 0x00,
		0x00, 0x40,
		0x00, 0x80,
	}

	buf, err := Reconstruct(data, PlaybackSampleRate, 1)
	if err != nil {
		t.Fatalf("Reconstruct failed: %v", err)
	}

	if buf.SampleRate != PlaybackSampleRate {
		t.Errorf("Expected sample rate %d, got %d", PlaybackSampleRate, buf.SampleRate)
	}

	if len(buf.Channels) != 1 {
		t.Fatalf("Expected 1 channel, got %d", len(buf.Channels))
	}

	want := []float32{0, 0.5, -1.0}
	for i, w := range want {
		if buf.Channels[0][i] != w {
			t.Errorf("Sample %d: expected %f, got %f", i, w, buf.Channels[0][i])
		}
	}
}

func TestReconstructInterleavedStereo(t *testing.T) {
	// Two frames, two channels: L0=256, R0=512, L1=768, R1=1024
	samples := []int16{256, 512, 768, 1024}
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		data[i*2] = byte(s)
		data[i*2+1] = byte(uint16(s) >> 8)
	}

	buf, err := Reconstruct(data, 48000, 2)
	if err != nil {
		t.Fatalf("Reconstruct failed: %v", err)
	}

	if buf.FrameCount() != 2 {
		t.Fatalf("Expected 2 frames per channel, got %d", buf.FrameCount())
	}

	for i := 0; i < buf.FrameCount(); i++ {
		for ch := 0; ch < 2; ch++ {
			want := float32(samples[i*2+ch]) / 32768.0
			if buf.Channels[ch][i] != want {
				t.Errorf("Channel %d frame %d: expected %f, got %f",
					ch, i, want, buf.Channels[ch][i])
			}
		}
	}
}

func TestReconstructDropsTrailingPartialFrame(t *testing.T) {
	full := make([]byte, 2*5*1) // 5 mono frames
	for i := range full {
		full[i] = byte(i * 7)
	}
	withTrailing := append(append([]byte{}, full...), 0x42)

	a, err := Reconstruct(full, PlaybackSampleRate, 1)
	if err != nil {
		t.Fatalf("Reconstruct full failed: %v", err)
	}
	b, err := Reconstruct(withTrailing, PlaybackSampleRate, 1)
	if err != nil {
		t.Fatalf("Reconstruct with trailing byte failed: %v", err)
	}

	if a.FrameCount() != b.FrameCount() {
		t.Fatalf("Frame counts differ: %d vs %d", a.FrameCount(), b.FrameCount())
	}
	for i := range a.Channels[0] {
		if a.Channels[0][i] != b.Channels[0][i] {
			t.Errorf("Frame %d differs after trailing byte: %f vs %f",
				i, a.Channels[0][i], b.Channels[0][i])
		}
	}
}

func TestReconstructInvalidParams(t *testing.T) {
	if _, err := Reconstruct([]byte{0, 0}, 0, 1); err == nil {
		t.Error("Expected error for zero sample rate")
	}
	if _, err := Reconstruct([]byte{0, 0}, 24000, 0); err == nil {
		t.Error("Expected error for zero channels")
	}
}

func TestFrameToPCM16RoundTrip(t *testing.T) {
	frame := make([]float32, 4096)
	for i := range frame {
		frame[i] = float32(math.Sin(2 * math.Pi * float64(i) / 256))
	}

	pcm := FrameToPCM16(frame)
	if len(pcm) != len(frame)*2 {
		t.Fatalf("Expected %d bytes, got %d", len(frame)*2, len(pcm))
	}

	buf, err := Reconstruct(pcm, CaptureSampleRate, 1)
	if err != nil {
		t.Fatalf("Reconstruct failed: %v", err)
	}

	// Values must match the originals to within int16 quantization error.
	const quantum = 1.0 / 32768.0
	for i, orig := range frame {
		got := buf.Channels[0][i]
		if diff := math.Abs(float64(got - orig)); diff > quantum {
			t.Fatalf("Sample %d: expected %f within %f, got %f", i, orig, quantum, got)
		}
	}
}

func TestBufferDuration(t *testing.T) {
	data := make([]byte, PlaybackSampleRate*2) // one second of mono PCM-16
	buf, err := Reconstruct(data, PlaybackSampleRate, 1)
	if err != nil {
		t.Fatalf("Reconstruct failed: %v", err)
	}

	if buf.Duration().Seconds() != 1.0 {
		t.Errorf("Expected 1s duration, got %v", buf.Duration())
	}
}
