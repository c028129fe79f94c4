// Core frame and sample types used across the pipeline.
package screenrec

import (
	"sync"
	"time"
)

// PixelFormat represents video pixel formats.
type PixelFormat int

const (
	PixelFormatI420   PixelFormat = iota // YUV 4:2:0 planar (Y + U + V)
	PixelFormatRGBA32                    // Packed RGBA, 4 bytes per pixel
	PixelFormatBGRA32                    // Packed BGRA, 4 bytes per pixel
)

func (p PixelFormat) String() string {
	switch p {
	case PixelFormatI420:
		return "I420"
	case PixelFormatRGBA32:
		return "RGBA32"
	case PixelFormatBGRA32:
		return "BGRA32"
	default:
		return "Unknown"
	}
}

// BytesPerPixel returns the packed pixel size, or 0 for planar formats.
func (p PixelFormat) BytesPerPixel() int {
	switch p {
	case PixelFormatRGBA32, PixelFormatBGRA32:
		return 4
	default:
		return 0
	}
}

// AudioFormat represents audio sample formats.
type AudioFormat int

const (
	AudioFormatS16 AudioFormat = iota // Signed 16-bit PCM
	AudioFormatF32                    // 32-bit float
)

func (a AudioFormat) String() string {
	switch a {
	case AudioFormatS16:
		return "S16"
	case AudioFormatF32:
		return "F32"
	default:
		return "Unknown"
	}
}

// BytesPerSample returns the number of bytes per sample for this format.
func (a AudioFormat) BytesPerSample() int {
	switch a {
	case AudioFormatS16:
		return 2
	case AudioFormatF32:
		return 4
	default:
		return 0
	}
}

// CaptureFrame is one captured image as handed out by a FrameSource.
// The pixel data belongs to the source until Release is called; consumers
// must copy what they need first and must not cache Width/Height across
// deliveries.
type CaptureFrame struct {
	Data      []byte      // Packed pixels
	Stride    int         // Bytes per row
	Width     int         // Width at capture time
	Height    int         // Height at capture time
	Format    PixelFormat // RGBA32 or BGRA32
	Timestamp int64       // Raw monotonic timestamp in the source's TimeBase

	releaseOnce sync.Once
	release     func()
}

// NewCaptureFrame wraps captured pixels. release may be nil.
func NewCaptureFrame(data []byte, stride, width, height int, format PixelFormat, ts int64, release func()) *CaptureFrame {
	return &CaptureFrame{
		Data:      data,
		Stride:    stride,
		Width:     width,
		Height:    height,
		Format:    format,
		Timestamp: ts,
		release:   release,
	}
}

// Release hands the frame back to the capture mechanism. Safe to call more
// than once.
func (f *CaptureFrame) Release() {
	f.releaseOnce.Do(func() {
		if f.release != nil {
			f.release()
		}
		f.Data = nil
	})
}

// AudioChunk is one fixed-duration block of interleaved PCM delivered by an
// AudioSource. Data is only valid for the duration of the callback.
type AudioChunk struct {
	Data       []byte      // Interleaved samples
	Format     AudioFormat // S16 or F32
	Channels   int         // Number of channels
	SampleRate int         // Samples per second per channel
	FrameCount int         // Sample frames in Data
	Timestamp  int64       // Raw monotonic timestamp of the first frame
}

// Duration returns the play time covered by the chunk.
func (c *AudioChunk) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.FrameCount) * time.Second / time.Duration(c.SampleRate)
}

// VideoFrame is a planar I420 image ready for the encoder.
type VideoFrame struct {
	Data      [3][]byte     // Y, U, V planes
	Stride    [3]int        // Stride for each plane in bytes
	Width     int           // Frame width in pixels
	Height    int           // Frame height in pixels
	Timestamp time.Duration // Relative presentation time
	Duration  time.Duration // Nominal frame interval
}

// I420Size returns the total buffer size needed for an I420 frame.
func I420Size(width, height int) int {
	ySize := width * height
	uvSize := (width / 2) * (height / 2)
	return ySize + uvSize*2
}

// EnsureEven rounds both dimensions up to the next even value. I420 chroma
// planes require even geometry.
func EnsureEven(width, height int) (int, int) {
	return (width + 1) &^ 1, (height + 1) &^ 1
}

// AudioSamples is pipeline-owned PCM copied out of an AudioChunk.
type AudioSamples struct {
	Data        []byte        // Sample data
	SampleRate  int           // Sample rate (e.g., 48000)
	Channels    int           // Number of channels (1 = mono, 2 = stereo)
	SampleCount int           // Number of samples (per channel)
	Format      AudioFormat   // Sample format
	Timestamp   time.Duration // Relative timestamp of the first sample
}

// Duration returns the play time covered by the samples.
func (s *AudioSamples) Duration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	return time.Duration(s.SampleCount) * time.Second / time.Duration(s.SampleRate)
}

// FrameType indicates whether a frame is a keyframe or delta frame.
type FrameType int

const (
	FrameTypeUnknown FrameType = iota
	FrameTypeKey               // Can be decoded independently
	FrameTypeDelta             // Requires previous frames
)

func (f FrameType) String() string {
	switch f {
	case FrameTypeKey:
		return "Key"
	case FrameTypeDelta:
		return "Delta"
	default:
		return "Unknown"
	}
}

// EncodedFrame holds encoded video data.
// Data is owned by the encoder and valid until the next Encode() call.
type EncodedFrame struct {
	Data      []byte
	FrameType FrameType
	Timestamp time.Duration // Relative presentation time
	Duration  time.Duration
}

// IsKeyframe returns true if this is a keyframe.
func (f *EncodedFrame) IsKeyframe() bool {
	return f.FrameType == FrameTypeKey
}

// EncodedAudio holds one encoded audio packet.
type EncodedAudio struct {
	Data       []byte
	Timestamp  time.Duration // Relative timestamp of the first sample
	Duration   time.Duration
	SampleRate int
}
