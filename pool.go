package screenrec

import (
	"context"
	"sync/atomic"
)

// StagingBuffer is a pre-allocated I420 frame owned by a StagingPool.
type StagingBuffer struct {
	frame VideoFrame

	// Geometry the padding was last painted for.
	geom    Geometry
	painted bool

	pool  *StagingPool
	inUse atomic.Bool
}

func newStagingBuffer(width, height int, pool *StagingPool) *StagingBuffer {
	ySize := width * height
	uvSize := (width / 2) * (height / 2)
	data := make([]byte, ySize+2*uvSize)

	return &StagingBuffer{
		frame: VideoFrame{
			Data: [3][]byte{
				data[:ySize],
				data[ySize : ySize+uvSize],
				data[ySize+uvSize:],
			},
			Stride: [3]int{width, width / 2, width / 2},
			Width:  width,
			Height: height,
		},
		pool: pool,
	}
}

// Frame returns the frame view over the buffer's planes.
func (b *StagingBuffer) Frame() *VideoFrame {
	return &b.frame
}

func (b *StagingBuffer) release() {
	if b.inUse.CompareAndSwap(true, false) {
		b.pool.put(b)
	}
}

// StagingPool is a fixed set of output-sized staging buffers. Get blocks when
// all buffers are out rather than allocating more.
type StagingPool struct {
	width, height int
	size          int

	free        chan *StagingBuffer
	outstanding atomic.Int64
	waits       atomic.Uint64
}

// NewStagingPool allocates size buffers of width×height I420.
func NewStagingPool(width, height, size int) *StagingPool {
	if size <= 0 {
		size = 1
	}
	p := &StagingPool{
		width:  width,
		height: height,
		size:   size,
		free:   make(chan *StagingBuffer, size),
	}
	for i := 0; i < size; i++ {
		p.free <- newStagingBuffer(width, height, p)
	}
	return p
}

// Get takes a free buffer, waiting for one to be released if necessary.
func (p *StagingPool) Get(ctx context.Context) (*StagingBuffer, error) {
	select {
	case b := <-p.free:
		return p.checkout(b), nil
	default:
	}

	p.waits.Add(1)
	select {
	case b := <-p.free:
		return p.checkout(b), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *StagingPool) checkout(b *StagingBuffer) *StagingBuffer {
	b.inUse.Store(true)
	p.outstanding.Add(1)
	return b
}

func (p *StagingPool) put(b *StagingBuffer) {
	p.outstanding.Add(-1)
	p.free <- b
}

// Size returns the fixed number of buffers.
func (p *StagingPool) Size() int { return p.size }

// Outstanding returns how many buffers are checked out.
func (p *StagingPool) Outstanding() int { return int(p.outstanding.Load()) }

// Waits returns how many Get calls had to wait for a release.
func (p *StagingPool) Waits() uint64 { return p.waits.Load() }
