package screenrec

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"
)

func solidCaptureFrame(w, h int, format PixelFormat, c color.RGBA, released *int) *CaptureFrame {
	data := make([]byte, w*h*4)
	order, _ := channelOrderFor(format)
	for i := 0; i < len(data); i += 4 {
		data[i+order.r] = c.R
		data[i+order.g] = c.G
		data[i+order.b] = c.B
		data[i+3] = 0xff
	}
	return NewCaptureFrame(data, w*4, w, h, format, 0, func() {
		if released != nil {
			*released++
		}
	})
}

func TestFrameProcessorFixedOutputSize(t *testing.T) {
	p, err := NewFrameProcessor(ProcessorConfig{Width: 64, Height: 36, FPS: 30, Mode: ScaleModeFit, PoolSize: 2})
	if err != nil {
		t.Fatalf("NewFrameProcessor failed: %v", err)
	}

	white := color.RGBA{255, 255, 255, 255}
	sizes := []image.Point{{64, 36}, {32, 32}, {128, 72}, {50, 90}, {1920, 1080}}
	released := 0
	for i, sz := range sizes {
		frame := solidCaptureFrame(sz.X, sz.Y, PixelFormatBGRA32, white, &released)
		s, err := p.Process(context.Background(), frame, time.Duration(i)*time.Second)
		if err != nil {
			t.Fatalf("Process(%v) failed: %v", sz, err)
		}
		f := s.Frame
		if f.Width != 64 || f.Height != 36 {
			t.Errorf("input %v produced %dx%d, want 64x36", sz, f.Width, f.Height)
		}
		if len(f.Data[0]) != 64*36 || len(f.Data[1]) != 32*18 || len(f.Data[2]) != 32*18 {
			t.Errorf("input %v produced plane sizes %d/%d/%d", sz, len(f.Data[0]), len(f.Data[1]), len(f.Data[2]))
		}
		if f.Timestamp != time.Duration(i)*time.Second {
			t.Errorf("timestamp = %v, want %v", f.Timestamp, time.Duration(i)*time.Second)
		}
		if f.Duration != time.Second/30 {
			t.Errorf("duration = %v, want 1/30s", f.Duration)
		}
		s.Release()
	}

	if released != len(sizes) {
		t.Errorf("captured frames released %d times, want %d", released, len(sizes))
	}
	st := p.Stats()
	if st.FramesProcessed != uint64(len(sizes)) {
		t.Errorf("FramesProcessed = %d", st.FramesProcessed)
	}
	if st.Resizes != uint64(len(sizes)-1) {
		t.Errorf("Resizes = %d, want %d", st.Resizes, len(sizes)-1)
	}
	if p.Pool().Outstanding() != 0 {
		t.Errorf("Outstanding = %d after release", p.Pool().Outstanding())
	}
}

func TestFrameProcessorLetterbox(t *testing.T) {
	pad := color.RGBA{0, 0, 255, 255}
	p, _ := NewFrameProcessor(ProcessorConfig{Width: 64, Height: 36, Mode: ScaleModeFit, PadColor: pad, PoolSize: 1})

	// A square source pillarboxes into a 16:9 output.
	frame := solidCaptureFrame(32, 32, PixelFormatRGBA32, color.RGBA{255, 255, 255, 255}, nil)
	s, err := p.Process(context.Background(), frame, 0)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	defer s.Release()

	padY := ToYUV(pad).Y
	white := lumaBT601(255, 255, 255)
	y := s.Frame.Data[0]
	if y[18*64+0] != padY || y[18*64+63] != padY {
		t.Errorf("edge luma = %d/%d, want padding %d", y[18*64], y[18*64+63], padY)
	}
	if y[18*64+32] != white {
		t.Errorf("center luma = %d, want %d", y[18*64+32], white)
	}
	if u := s.Frame.Data[1][0]; u != ToYUV(pad).U {
		t.Errorf("padding chroma U = %d, want %d", u, ToYUV(pad).U)
	}
}

func TestFrameProcessorRepaintsOnGeometryChange(t *testing.T) {
	black := color.RGBA{0, 0, 0, 255}
	p, _ := NewFrameProcessor(ProcessorConfig{Width: 64, Height: 36, Mode: ScaleModeFit, PadColor: black, PoolSize: 1})
	white := color.RGBA{255, 255, 255, 255}

	// Full-frame content first, then a pillarboxed one through the same
	// buffer: the old pixels outside the new image must be cleared.
	s, _ := p.Process(context.Background(), solidCaptureFrame(64, 36, PixelFormatRGBA32, white, nil), 0)
	s.Release()
	s, _ = p.Process(context.Background(), solidCaptureFrame(36, 36, PixelFormatRGBA32, white, nil), 0)
	defer s.Release()

	if got, want := s.Frame.Data[0][0], ToYUV(black).Y; got != want {
		t.Errorf("stale pixel at origin = %d, want padding %d", got, want)
	}
}

func TestFrameProcessorRejectsBadFrames(t *testing.T) {
	p, _ := NewFrameProcessor(ProcessorConfig{Width: 16, Height: 16, PoolSize: 1})

	released := 0
	short := NewCaptureFrame(make([]byte, 10), 64, 16, 16, PixelFormatBGRA32, 0, func() { released++ })
	if _, err := p.Process(context.Background(), short, 0); !errors.Is(err, ErrBufferTooSmall) {
		t.Errorf("short frame = %v, want ErrBufferTooSmall", err)
	}
	i420 := NewCaptureFrame(make([]byte, 16*16*4), 64, 16, 16, PixelFormatI420, 0, func() { released++ })
	if _, err := p.Process(context.Background(), i420, 0); !errors.Is(err, ErrNotSupported) {
		t.Errorf("planar frame = %v, want ErrNotSupported", err)
	}
	if released != 2 {
		t.Errorf("rejected frames released %d times, want 2", released)
	}
	if p.Stats().FramesRejected != 2 {
		t.Errorf("FramesRejected = %d, want 2", p.Stats().FramesRejected)
	}
}

func TestFrameProcessorPoolExhaustion(t *testing.T) {
	p, _ := NewFrameProcessor(ProcessorConfig{Width: 16, Height: 16, PoolSize: 1})
	white := color.RGBA{255, 255, 255, 255}

	held, err := p.Process(context.Background(), solidCaptureFrame(16, 16, PixelFormatRGBA32, white, nil), 0)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	released := 0
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Process(ctx, solidCaptureFrame(16, 16, PixelFormatRGBA32, white, &released), 0)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Process with empty pool = %v, want DeadlineExceeded", err)
	}
	if released != 1 {
		t.Error("captured frame not released when the pool was empty")
	}

	held.Release()
	held.Release()
	if p.Pool().Outstanding() != 0 {
		t.Errorf("Outstanding = %d, want 0", p.Pool().Outstanding())
	}
	if p.Stats().PoolWaits != 1 {
		t.Errorf("PoolWaits = %d, want 1", p.Stats().PoolWaits)
	}
}

func TestNewFrameProcessorEvenSize(t *testing.T) {
	p, err := NewFrameProcessor(ProcessorConfig{Width: 641, Height: 481, PoolSize: 1})
	if err != nil {
		t.Fatalf("NewFrameProcessor failed: %v", err)
	}
	if w, h := p.OutputSize(); w != 642 || h != 482 {
		t.Errorf("OutputSize = %dx%d, want 642x482", w, h)
	}
	if _, err := NewFrameProcessor(ProcessorConfig{}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("zero size = %v, want ErrInvalidConfig", err)
	}
}

func TestComputeGeometry(t *testing.T) {
	tests := []struct {
		name       string
		srcW, srcH int
		mode       ScaleMode
		wantSrc    image.Rectangle
		wantDst    image.Rectangle
	}{
		{"fit same aspect", 1280, 720, ScaleModeFit, image.Rect(0, 0, 1280, 720), image.Rect(0, 0, 640, 360)},
		{"fit pillarbox", 720, 720, ScaleModeFit, image.Rect(0, 0, 720, 720), image.Rect(140, 0, 500, 360)},
		{"fill crop sides", 720, 720, ScaleModeFill, image.Rect(0, 157, 720, 562), image.Rect(0, 0, 640, 360)},
		{"stretch", 720, 720, ScaleModeStretch, image.Rect(0, 0, 720, 720), image.Rect(0, 0, 640, 360)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := ComputeGeometry(tt.srcW, tt.srcH, 640, 360, tt.mode)
			if g.Src != tt.wantSrc {
				t.Errorf("Src = %v, want %v", g.Src, tt.wantSrc)
			}
			if g.Dst != tt.wantDst {
				t.Errorf("Dst = %v, want %v", g.Dst, tt.wantDst)
			}
		})
	}
}

func TestParseHexColor(t *testing.T) {
	c, err := ParseHexColor("#1e90FF")
	if err != nil {
		t.Fatalf("ParseHexColor failed: %v", err)
	}
	if c != (color.RGBA{0x1e, 0x90, 0xff, 0xff}) {
		t.Errorf("ParseHexColor = %v", c)
	}
	for _, bad := range []string{"", "#fff", "#gggggg"} {
		if _, err := ParseHexColor(bad); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("ParseHexColor(%q) = %v, want ErrInvalidConfig", bad, err)
		}
	}
}

func TestToYUV(t *testing.T) {
	if got := ToYUV(color.RGBA{0, 0, 0, 255}); got != (YUV{16, 128, 128}) {
		t.Errorf("black = %v, want {16 128 128}", got)
	}
	if got := ToYUV(color.RGBA{255, 255, 255, 255}); got.Y != 235 {
		t.Errorf("white luma = %d, want 235", got.Y)
	}
}
