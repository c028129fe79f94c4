package screenrec

import (
	"errors"
	"testing"
	"time"
)

type fakeOpusBackend struct {
	frames  [][]int16
	bitrate int
	closed  bool
}

func (b *fakeOpusBackend) encode(pcm []int16, out []byte) (int, error) {
	b.frames = append(b.frames, append([]int16(nil), pcm...))
	out[0], out[1] = 0xfc, byte(len(b.frames))
	return 2, nil
}

func (b *fakeOpusBackend) setBitrate(bps int) error {
	b.bitrate = bps
	return nil
}

func (b *fakeOpusBackend) close() error {
	b.closed = true
	return nil
}

func newTestOpusEncoder(t *testing.T) (*OpusEncoder, *fakeOpusBackend) {
	t.Helper()
	cfg := DefaultAudioEncoderConfig(AudioCodecOpus)
	if err := validateOpusConfig(&cfg); err != nil {
		t.Fatalf("validateOpusConfig failed: %v", err)
	}
	b := &fakeOpusBackend{}
	return newOpusEncoder(cfg, ProviderAuto, b), b
}

func TestOpusEncoderFramesArbitraryInput(t *testing.T) {
	enc, backend := newTestOpusEncoder(t)

	// 10ms chunks into a 20ms packetizer: every second chunk completes a packet.
	var packets []*EncodedAudio
	for i := 0; i < 5; i++ {
		s := testAudioSample(time.Duration(i)*10*time.Millisecond, 10*time.Millisecond)
		pkts, err := enc.Encode(&s.Samples)
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		packets = append(packets, pkts...)
	}
	if len(packets) != 2 {
		t.Fatalf("got %d packets from 50ms, want 2", len(packets))
	}
	for i, p := range packets {
		if p.Timestamp != time.Duration(i)*20*time.Millisecond {
			t.Errorf("packet %d timestamp = %v", i, p.Timestamp)
		}
		if p.Duration != 20*time.Millisecond {
			t.Errorf("packet %d duration = %v", i, p.Duration)
		}
	}
	if len(backend.frames[0]) != 960*2 {
		t.Errorf("backend frame has %d samples, want 1920", len(backend.frames[0]))
	}

	flushed, err := enc.Flush()
	if err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if len(flushed) != 1 || flushed[0].Timestamp != 40*time.Millisecond {
		t.Fatalf("Flush = %d packets, want one at 40ms", len(flushed))
	}
	st := enc.Stats()
	if st.FramesEncoded != 3 || st.PaddedSamples != 480 {
		t.Errorf("stats = %+v, want 3 frames and 480 padded samples", st)
	}
	if again, _ := enc.Flush(); again != nil {
		t.Error("second Flush produced packets")
	}
}

func TestOpusEncoderRejectsMismatchedInput(t *testing.T) {
	enc, _ := newTestOpusEncoder(t)
	s := &AudioSamples{Data: make([]byte, 441*2), SampleRate: 44100, Channels: 1, SampleCount: 441}
	if _, err := enc.Encode(s); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Encode(44.1kHz mono) = %v, want ErrInvalidConfig", err)
	}
}

func TestOpusEncoderClose(t *testing.T) {
	enc, backend := newTestOpusEncoder(t)
	if err := enc.SetBitrate(64000); err != nil || backend.bitrate != 64000 {
		t.Errorf("SetBitrate = %v, backend bitrate %d", err, backend.bitrate)
	}
	enc.Close()
	if !backend.closed {
		t.Error("backend not closed")
	}
	if err := enc.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
	s := testAudioSample(0, 20*time.Millisecond)
	if _, err := enc.Encode(&s.Samples); err == nil {
		t.Error("Encode after Close succeeded")
	}
}

func TestValidateOpusConfig(t *testing.T) {
	bad := []AudioEncoderConfig{
		{SampleRate: 44100},
		{Channels: 6},
		{FrameSizeMs: 15},
	}
	for _, cfg := range bad {
		if err := validateOpusConfig(&cfg); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("validateOpusConfig(%+v) = %v, want ErrInvalidConfig", cfg, err)
		}
	}
}

func TestOpusHead(t *testing.T) {
	head := OpusHead(2, 48000)
	if string(head[:8]) != "OpusHead" || head[9] != 2 || len(head) != 19 {
		t.Errorf("OpusHead = % x", head)
	}
}

func TestOpusAvailability(t *testing.T) {
	if !IsOpusAvailable() {
		t.Skip("libopus not available")
	}
	enc, err := NewAudioEncoder(DefaultAudioEncoderConfig(AudioCodecOpus))
	if err != nil {
		t.Fatalf("NewAudioEncoder failed: %v", err)
	}
	defer enc.Close()

	s := testAudioSample(0, 20*time.Millisecond)
	pkts, err := enc.Encode(&s.Samples)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(pkts) != 1 || len(pkts[0].Data) == 0 {
		t.Errorf("Encode returned %d packets", len(pkts))
	}
}
