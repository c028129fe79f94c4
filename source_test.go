package screenrec

import (
	"context"
	"testing"
	"time"
)

func TestPatternSource(t *testing.T) {
	src := NewPatternSource(PatternConfig{Width: 64, Height: 36, FPS: 100, AltWidth: 48, AltHeight: 48, ResizeEvery: 2})
	if w, h := src.NativeSize(); w != 64 || h != 36 {
		t.Errorf("NativeSize = %dx%d", w, h)
	}

	sizes := make(chan [2]int, 16)
	var last int64
	monotonic := true
	src.Start(context.Background(), func(f *CaptureFrame) {
		if f.Timestamp < last {
			monotonic = false
		}
		last = f.Timestamp
		select {
		case sizes <- [2]int{f.Width, f.Height}:
		default:
		}
		f.Release()
	}, nil)

	seen := map[[2]int]bool{}
	deadline := time.After(2 * time.Second)
	for len(seen) < 2 {
		select {
		case sz := <-sizes:
			seen[sz] = true
		case <-deadline:
			t.Fatalf("saw sizes %v, want both primary and alternate", seen)
		}
	}
	src.Stop()
	src.Stop()

	if !monotonic {
		t.Error("pattern timestamps went backwards")
	}
	if !seen[[2]int{48, 48}] {
		t.Error("alternate size never delivered")
	}
}

func TestToneSource(t *testing.T) {
	src := NewToneSource(ToneConfig{SampleRate: 48000, Channels: 2, ChunkDuration: 10 * time.Millisecond})

	chunks := make(chan AudioChunk, 8)
	src.Start(context.Background(), func(c *AudioChunk) {
		select {
		case chunks <- *c:
		default:
		}
	}, nil)
	defer src.Stop()

	var prev AudioChunk
	for i := 0; i < 3; i++ {
		select {
		case c := <-chunks:
			if c.FrameCount != 480 || len(c.Data) != 480*4 || c.Format != AudioFormatS16 {
				t.Fatalf("chunk = %d frames, %d bytes, %s", c.FrameCount, len(c.Data), c.Format)
			}
			if i > 0 && c.Timestamp-prev.Timestamp != int64(10*time.Millisecond) {
				t.Errorf("chunk spacing = %v, want 10ms", time.Duration(c.Timestamp-prev.Timestamp))
			}
			prev = c
		case <-time.After(time.Second):
			t.Fatal("no chunk delivered")
		}
	}
}

func TestSourceRegistry(t *testing.T) {
	src, err := CreateFrameSource(SourceTypePattern, SourceOptions{Width: 32, Height: 16, FPS: 10})
	if err != nil {
		t.Fatalf("CreateFrameSource(pattern) failed: %v", err)
	}
	if sized, ok := src.(SizedSource); !ok {
		t.Error("pattern source does not report its size")
	} else if w, h := sized.NativeSize(); w != 32 || h != 16 {
		t.Errorf("NativeSize = %dx%d, want 32x16", w, h)
	}

	if _, err := CreateAudioSource(SourceTypeTone, SourceOptions{SampleRate: 48000, Channels: 1}); err != nil {
		t.Errorf("CreateAudioSource(tone) failed: %v", err)
	}
	if _, err := CreateFrameSource(SourceTypeUnknown, SourceOptions{}); err == nil {
		t.Error("unknown source type accepted")
	}

	for in, want := range map[string]SourceType{"display": SourceTypeDisplay, "tone": SourceTypeTone, "webcam": SourceTypeUnknown} {
		if got := ParseSourceType(in); got != want {
			t.Errorf("ParseSourceType(%q) = %v, want %v", in, got, want)
		}
	}
}
