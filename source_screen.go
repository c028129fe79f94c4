//go:build !darwin || cgo

package screenrec

import (
	"context"
	"fmt"
	"image"
	"sync/atomic"
	"time"

	"github.com/kbinani/screenshot"
	"go.uber.org/zap"
)

// Indirections over the screenshot package so tests can simulate display
// changes.
var (
	numActiveDisplays = screenshot.NumActiveDisplays
	displayBounds     = screenshot.GetDisplayBounds
	captureRect       = screenshot.CaptureRect
)

// maxCaptureFailures is how many consecutive capture errors are tolerated
// before the display is considered lost.
const maxCaptureFailures = 10

// DisplayInfo describes one active display.
type DisplayInfo struct {
	Index   int
	Bounds  image.Rectangle
	Primary bool
}

// ListDisplays returns the currently active displays.
func ListDisplays() ([]DisplayInfo, error) {
	n := numActiveDisplays()
	out := make([]DisplayInfo, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, DisplayInfo{Index: i, Bounds: displayBounds(i), Primary: i == 0})
	}
	return out, nil
}

// DisplaySource captures a display, or a region of it, by polling at a fixed
// frame rate. A tick that arrives while the previous delivery is still running
// is skipped, so only the newest image is ever materialized.
type DisplaySource struct {
	target CaptureTarget
	period time.Duration
	log    *zap.Logger

	running atomic.Bool
	cancel  context.CancelFunc
	doneCh  chan struct{}

	frames   atomic.Uint64
	failures atomic.Uint64
}

// NewDisplaySource validates the target and returns a stopped source.
func NewDisplaySource(opts SourceOptions) (*DisplaySource, error) {
	fps := opts.FPS
	if fps <= 0 {
		fps = 30
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	s := &DisplaySource{
		target: opts.Target,
		period: time.Second / time.Duration(fps),
		log:    log.Named("display"),
	}
	if _, err := s.bounds(); err != nil {
		return nil, err
	}
	return s, nil
}

// bounds resolves the capture rectangle in virtual-screen coordinates.
func (s *DisplaySource) bounds() (image.Rectangle, error) {
	n := numActiveDisplays()
	if s.target.Display < 0 || s.target.Display >= n {
		return image.Rectangle{}, fmt.Errorf("%w: display %d not active (%d displays)", ErrCaptureLost, s.target.Display, n)
	}
	b := displayBounds(s.target.Display)
	if s.target.Region.Empty() {
		return b, nil
	}
	r := s.target.Region.Add(b.Min).Intersect(b)
	if r.Empty() {
		return image.Rectangle{}, fmt.Errorf("%w: region %v outside display %d", ErrCaptureLost, s.target.Region, s.target.Display)
	}
	return r, nil
}

// Start begins polling.
func (s *DisplaySource) Start(ctx context.Context, onFrame FrameCallback, onLost LostCallback) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("display source already running")
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.doneCh = make(chan struct{})
	go s.captureLoop(ctx, onFrame, onLost)
	return nil
}

// Stop halts polling and waits for the capture goroutine to exit.
func (s *DisplaySource) Stop() error {
	if !s.running.Swap(false) {
		return nil
	}
	s.cancel()
	<-s.doneCh
	return nil
}

// NativeSize returns the current capture rectangle size.
func (s *DisplaySource) NativeSize() (int, int) {
	b, err := s.bounds()
	if err != nil {
		return 0, 0
	}
	return b.Dx(), b.Dy()
}

// TimeBase implements FrameSource.
func (s *DisplaySource) TimeBase() TimeBase {
	return TimeBaseNanoseconds
}

func (s *DisplaySource) captureLoop(ctx context.Context, onFrame FrameCallback, onLost LostCallback) {
	defer close(s.doneCh)

	lost := func(err error) {
		s.log.Warn("capture lost", zap.Int("display", s.target.Display), zap.Error(err))
		if onLost != nil {
			onLost(err)
		}
	}

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	consecutive := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		rect, err := s.bounds()
		if err != nil {
			lost(err)
			return
		}

		img, err := captureRect(rect)
		if err != nil {
			s.failures.Add(1)
			consecutive++
			s.log.Debug("capture failed", zap.Int("consecutive", consecutive), zap.Error(err))
			if consecutive >= maxCaptureFailures {
				lost(fmt.Errorf("%w: %d consecutive capture failures: %v", ErrCaptureLost, consecutive, err))
				return
			}
			continue
		}
		consecutive = 0

		if ctx.Err() != nil {
			return
		}
		b := img.Bounds()
		frame := NewCaptureFrame(img.Pix, img.Stride, b.Dx(), b.Dy(), PixelFormatRGBA32, monotonicNow(), nil)
		s.frames.Add(1)
		onFrame(frame)
	}
}

// Frames returns the number of delivered frames.
func (s *DisplaySource) Frames() uint64 {
	return s.frames.Load()
}

func init() {
	RegisterFrameSource(SourceTypeDisplay, func(opts SourceOptions) (FrameSource, error) {
		return NewDisplaySource(opts)
	})
}
