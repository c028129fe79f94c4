package screenrec

import (
	"context"
	"fmt"
	"image/color"
	"sync/atomic"
	"time"
)

// ProcessorConfig configures a FrameProcessor.
type ProcessorConfig struct {
	Width    int        // Output width (rounded up to even)
	Height   int        // Output height (rounded up to even)
	FPS      int        // Nominal frame rate, sets VideoFrame.Duration
	Mode     ScaleMode  // Fit letterboxes, Fill crops
	PadColor color.RGBA // Letterbox color
	PoolSize int        // Staging buffers
}

// ProcessorStats provides processing metrics.
type ProcessorStats struct {
	FramesProcessed uint64
	FramesRejected  uint64
	Resizes         uint64
	PoolWaits       uint64
}

// FrameProcessor converts captured frames of any size into fixed-geometry
// I420 samples held in pooled staging buffers.
type FrameProcessor struct {
	width, height int
	mode          ScaleMode
	pad           YUV
	frameDuration time.Duration
	pool          *StagingPool

	// Last input size; only touched by the video producer.
	lastW, lastH int

	processed atomic.Uint64
	rejected  atomic.Uint64
	resizes   atomic.Uint64
}

// NewFrameProcessor creates a processor and its staging pool.
func NewFrameProcessor(cfg ProcessorConfig) (*FrameProcessor, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: output size %dx%d", ErrInvalidConfig, cfg.Width, cfg.Height)
	}
	w, h := EnsureEven(cfg.Width, cfg.Height)

	var frameDuration time.Duration
	if cfg.FPS > 0 {
		frameDuration = time.Second / time.Duration(cfg.FPS)
	}

	return &FrameProcessor{
		width:         w,
		height:        h,
		mode:          cfg.Mode,
		pad:           ToYUV(cfg.PadColor),
		frameDuration: frameDuration,
		pool:          NewStagingPool(w, h, cfg.PoolSize),
	}, nil
}

// Process copies frame into a staging buffer at the output geometry and
// stamps it with ts. The captured frame is released on every path.
func (p *FrameProcessor) Process(ctx context.Context, frame *CaptureFrame, ts time.Duration) (*VideoSample, error) {
	defer frame.Release()

	order, err := channelOrderFor(frame.Format)
	if err != nil {
		p.rejected.Add(1)
		return nil, err
	}
	if frame.Width <= 0 || frame.Height <= 0 || frame.Stride < frame.Width*4 {
		p.rejected.Add(1)
		return nil, fmt.Errorf("invalid frame geometry %dx%d stride %d", frame.Width, frame.Height, frame.Stride)
	}
	if need := (frame.Height-1)*frame.Stride + frame.Width*4; len(frame.Data) < need {
		p.rejected.Add(1)
		return nil, fmt.Errorf("%w: frame data %d < %d", ErrBufferTooSmall, len(frame.Data), need)
	}

	if frame.Width != p.lastW || frame.Height != p.lastH {
		if p.lastW != 0 {
			p.resizes.Add(1)
		}
		p.lastW, p.lastH = frame.Width, frame.Height
	}

	buf, err := p.pool.Get(ctx)
	if err != nil {
		return nil, err
	}

	g := ComputeGeometry(frame.Width, frame.Height, p.width, p.height, p.mode)
	if !buf.painted || buf.geom != g {
		if g.Letterboxed(p.width, p.height) {
			fillI420(&buf.frame, p.pad)
		}
		buf.geom = g
		buf.painted = true
	}

	scaleToI420(frame.Data, frame.Stride, order, g, &buf.frame)

	buf.frame.Timestamp = ts
	buf.frame.Duration = p.frameDuration
	p.processed.Add(1)

	return &VideoSample{Frame: buf.frame, buf: buf}, nil
}

// OutputSize returns the fixed output geometry.
func (p *FrameProcessor) OutputSize() (int, int) {
	return p.width, p.height
}

// Pool returns the staging pool.
func (p *FrameProcessor) Pool() *StagingPool {
	return p.pool
}

// Stats returns processing statistics.
func (p *FrameProcessor) Stats() ProcessorStats {
	return ProcessorStats{
		FramesProcessed: p.processed.Load(),
		FramesRejected:  p.rejected.Load(),
		Resizes:         p.resizes.Load(),
		PoolWaits:       p.pool.Waits(),
	}
}
