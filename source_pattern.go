package screenrec

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// PatternConfig configures a PatternSource.
type PatternConfig struct {
	Width  int // Frame width (default: 1280)
	Height int // Frame height (default: 720)
	FPS    int // Frames per second (default: 30)

	// Alternate size used every ResizeEvery frames to exercise resize
	// handling downstream. Zero disables resizing.
	AltWidth    int
	AltHeight   int
	ResizeEvery int
}

// DefaultPatternConfig returns a 720p30 pattern.
func DefaultPatternConfig() PatternConfig {
	return PatternConfig{Width: 1280, Height: 720, FPS: 30}
}

// PatternSource generates BGRA frames with a moving box. Timestamps are in
// 100ns ticks.
type PatternSource struct {
	config        PatternConfig
	frameDuration time.Duration

	// Reused between deliveries; the callback releases each frame before
	// the next one is generated.
	primary []byte
	alt     []byte

	frameCount uint64
	running    atomic.Bool
	cancel     context.CancelFunc
	doneCh     chan struct{}
}

// NewPatternSource creates a new pattern source.
func NewPatternSource(config PatternConfig) *PatternSource {
	if config.Width <= 0 {
		config.Width = 1280
	}
	if config.Height <= 0 {
		config.Height = 720
	}
	if config.FPS <= 0 {
		config.FPS = 30
	}
	s := &PatternSource{
		config:        config,
		frameDuration: time.Second / time.Duration(config.FPS),
		primary:       make([]byte, config.Width*config.Height*4),
	}
	if config.ResizeEvery > 0 && config.AltWidth > 0 && config.AltHeight > 0 {
		s.alt = make([]byte, config.AltWidth*config.AltHeight*4)
	}
	return s
}

// NativeSize returns the primary frame size.
func (s *PatternSource) NativeSize() (int, int) {
	return s.config.Width, s.config.Height
}

// Start begins generating frames.
func (s *PatternSource) Start(ctx context.Context, onFrame FrameCallback, onLost LostCallback) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("pattern source already running")
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.doneCh = make(chan struct{})
	go s.generateLoop(ctx, onFrame)
	return nil
}

// Stop stops generating frames and waits for the goroutine to exit.
func (s *PatternSource) Stop() error {
	if !s.running.Swap(false) {
		return nil
	}
	s.cancel()
	<-s.doneCh
	return nil
}

// TimeBase implements FrameSource.
func (s *PatternSource) TimeBase() TimeBase {
	return TimeBase100ns
}

func (s *PatternSource) generateLoop(ctx context.Context, onFrame FrameCallback) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.frameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		onFrame(s.nextFrame())
	}
}

func (s *PatternSource) nextFrame() *CaptureFrame {
	s.frameCount++
	w, h, pix := s.config.Width, s.config.Height, s.primary
	if s.alt != nil && (s.frameCount/uint64(s.config.ResizeEvery))%2 == 1 {
		w, h, pix = s.config.AltWidth, s.config.AltHeight, s.alt
	}
	drawMovingBox(pix, w, h, s.frameCount)
	return NewCaptureFrame(pix, w*4, w, h, PixelFormatBGRA32, monotonicNow()/100, nil)
}

// drawMovingBox paints a dark gradient with a white box that travels
// horizontally one step per frame.
func drawMovingBox(pix []byte, w, h int, frame uint64) {
	boxW, boxH := w/8, h/8
	if boxW < 2 {
		boxW = 2
	}
	if boxH < 2 {
		boxH = 2
	}
	span := w - boxW
	if span < 1 {
		span = 1
	}
	boxX := int(frame*8) % span
	boxY := (h - boxH) / 2

	for y := 0; y < h; y++ {
		row := pix[y*w*4 : (y+1)*w*4]
		shade := byte(32 + y*64/h)
		inRow := y >= boxY && y < boxY+boxH
		for x := 0; x < w; x++ {
			p := row[x*4 : x*4+4]
			if inRow && x >= boxX && x < boxX+boxW {
				p[0], p[1], p[2] = 0xff, 0xff, 0xff
			} else {
				p[0], p[1], p[2] = shade, 16, 16
			}
			p[3] = 0xff
		}
	}
}

func init() {
	RegisterFrameSource(SourceTypePattern, func(opts SourceOptions) (FrameSource, error) {
		cfg := DefaultPatternConfig()
		if opts.Width > 0 && opts.Height > 0 {
			cfg.Width, cfg.Height = opts.Width, opts.Height
		}
		if opts.FPS > 0 {
			cfg.FPS = opts.FPS
		}
		return NewPatternSource(cfg), nil
	})
}
