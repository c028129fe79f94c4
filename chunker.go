package screenrec

import (
	"encoding/binary"
	"math"
	"time"
)

// resyncThreshold is how far the sample-count timeline may drift from
// arrival times before chunk timestamps are re-anchored (device glitch or
// xrun).
const resyncThreshold = 200 * time.Millisecond

// chunker re-frames arbitrarily sized device callbacks into fixed-size
// chunks. Chunk timestamps follow the sample count from an anchor taken at
// the first callback. Not safe for concurrent use.
type chunker struct {
	format      AudioFormat
	channels    int
	sampleRate  int
	frameBytes  int
	chunkFrames int

	buf    []byte
	filled int

	anchor   int64 // ns timestamp of the first frame of the timeline
	anchored bool
	framesIn int64 // frames accepted since the anchor
	chunkTS  int64
	resyncs  uint64
	emit     ChunkCallback
}

func newChunker(format AudioFormat, channels, sampleRate int, chunk time.Duration, emit ChunkCallback) *chunker {
	frames := int(int64(sampleRate) * int64(chunk) / int64(time.Second))
	if frames <= 0 {
		frames = 1
	}
	fb := channels * format.BytesPerSample()
	return &chunker{
		format:      format,
		channels:    channels,
		sampleRate:  sampleRate,
		frameBytes:  fb,
		chunkFrames: frames,
		buf:         make([]byte, frames*fb),
		emit:        emit,
	}
}

func (c *chunker) framesToNs(frames int64) int64 {
	return frames * int64(time.Second) / int64(c.sampleRate)
}

// write accepts frames of interleaved PCM that finished arriving at the
// monotonic time arrival (ns).
func (c *chunker) write(data []byte, frames int, arrival int64) {
	if frames <= 0 {
		return
	}
	if n := len(data) / c.frameBytes; n < frames {
		frames = n
	}

	batchStart := arrival - c.framesToNs(int64(frames))
	expected := c.anchor + c.framesToNs(c.framesIn)
	if !c.anchored {
		c.anchor, c.anchored = batchStart, true
		expected = batchStart
	} else if d := time.Duration(batchStart - expected); d > resyncThreshold || d < -resyncThreshold {
		// partial chunk keeps its own start; re-anchor the rest
		c.anchor = batchStart
		c.framesIn = 0
		c.resyncs++
	}

	offset := 0
	for offset < frames {
		if c.filled == 0 {
			c.chunkTS = c.anchor + c.framesToNs(c.framesIn)
		}
		n := c.chunkFrames - c.filled
		if rem := frames - offset; rem < n {
			n = rem
		}
		copy(c.buf[c.filled*c.frameBytes:], data[offset*c.frameBytes:(offset+n)*c.frameBytes])
		c.filled += n
		c.framesIn += int64(n)
		offset += n
		if c.filled == c.chunkFrames {
			c.flush()
		}
	}
}

// flush emits whatever is buffered as a (possibly short) chunk.
func (c *chunker) flush() {
	if c.filled == 0 {
		return
	}
	chunk := &AudioChunk{
		Data:       c.buf[:c.filled*c.frameBytes],
		Format:     c.format,
		Channels:   c.channels,
		SampleRate: c.sampleRate,
		FrameCount: c.filled,
		Timestamp:  c.chunkTS,
	}
	c.filled = 0
	c.emit(chunk)
}

// convertF32ToS16 converts little-endian float32 PCM into little-endian
// int16 PCM, clamping to [-1, 1]. dst must hold len(src)/2 bytes.
func convertF32ToS16(dst, src []byte) []byte {
	n := len(src) / 4
	if cap(dst) < n*2 {
		dst = make([]byte, n*2)
	}
	dst = dst[:n*2]
	for i := 0; i < n; i++ {
		f := math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
		if f > 1 {
			f = 1
		} else if f < -1 {
			f = -1
		}
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(int16(f*32767)))
	}
	return dst
}
