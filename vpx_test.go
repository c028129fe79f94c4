package screenrec

import (
	"errors"
	"testing"
	"time"
)

func TestVPXEncoderRoundTrip(t *testing.T) {
	for _, codec := range []VideoCodec{VideoCodecVP8, VideoCodecVP9} {
		t.Run(codec.String(), func(t *testing.T) {
			available := IsVP8Available()
			if codec == VideoCodecVP9 {
				available = IsVP9Available()
			}
			if !available {
				t.Skipf("%s not available", codec)
			}

			cfg := DefaultVideoEncoderConfig(codec, 64, 36)
			cfg.BitrateBps = 500_000
			enc, err := NewVideoEncoder(cfg)
			if err != nil {
				t.Fatalf("NewVideoEncoder failed: %v", err)
			}
			defer enc.Close()

			buf := newStagingBuffer(64, 36, nil)
			fillI420(buf.Frame(), YUV{Y: 128, U: 128, V: 128})

			var keyframes int
			for i := 0; i < 10; i++ {
				frame := *buf.Frame()
				frame.Timestamp = time.Duration(i) * time.Second / 30
				frame.Duration = time.Second / 30
				pkt, err := enc.Encode(&frame)
				if err != nil {
					t.Fatalf("Encode(%d) failed: %v", i, err)
				}
				if pkt == nil {
					continue
				}
				if pkt.Timestamp != frame.Timestamp {
					t.Errorf("frame %d timestamp = %v, want %v", i, pkt.Timestamp, frame.Timestamp)
				}
				if pkt.IsKeyframe() {
					keyframes++
				}
				if i == 0 && !pkt.IsKeyframe() {
					t.Error("first frame is not a keyframe")
				}
			}
			if keyframes == 0 {
				t.Error("no keyframes produced")
			}
			if enc.Stats().FramesEncoded == 0 {
				t.Error("stats report no encoded frames")
			}
		})
	}
}

func TestVPXEncoderRejectsWrongSize(t *testing.T) {
	if !IsVP8Available() {
		t.Skip("VP8 not available")
	}
	enc, err := NewVideoEncoder(DefaultVideoEncoderConfig(VideoCodecVP8, 64, 36))
	if err != nil {
		t.Fatalf("NewVideoEncoder failed: %v", err)
	}
	defer enc.Close()

	buf := newStagingBuffer(32, 32, nil)
	if _, err := enc.Encode(buf.Frame()); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Encode(32x32) = %v, want ErrInvalidConfig", err)
	}
}

func TestNewVideoEncoderUnknownCodec(t *testing.T) {
	_, err := NewVideoEncoder(DefaultVideoEncoderConfig(VideoCodecUnknown, 64, 36))
	if !errors.Is(err, ErrCodecNotSupported) {
		t.Errorf("NewVideoEncoder(unknown) = %v, want ErrCodecNotSupported", err)
	}
}
