//go:build (darwin || linux) && !novpx

// VP8/VP9 encoding via the libmedia_vpx shim, a thin primitive-only wrapper
// around libvpx loaded at runtime with purego.

package screenrec

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/ebitengine/purego"
)

var (
	mediaVPXOnce    sync.Once
	mediaVPXHandle  uintptr
	mediaVPXInitErr error
)

// libmedia_vpx function pointers
var (
	mediaVPXEncoderCreate        func(codec, width, height, fps, bitrateKbps, threads int32) uint64
	mediaVPXEncoderEncode        func(encoder uint64, yPlane, uPlane, vPlane uintptr, yStride, uvStride, forceKeyframe int32, outData uintptr, outCapacity int32, outFrameType, outPts uintptr) int32
	mediaVPXEncoderMaxOutputSize func(encoder uint64) int32
	mediaVPXEncoderSetBitrate    func(encoder uint64, bitrateKbps int32) int32
	mediaVPXEncoderDestroy       func(encoder uint64)

	mediaVPXGetError       func() uintptr
	mediaVPXCodecAvailable func(codec int32) int32
)

// Constants from media_vpx.h
const (
	mediaVPXCodecVP8 = 0
	mediaVPXCodecVP9 = 1

	mediaVPXFrameKey = 0

	mediaVPXOK = 0
)

func loadMediaVPX() error {
	mediaVPXOnce.Do(func() {
		mediaVPXInitErr = loadMediaVPXLib()
	})
	return mediaVPXInitErr
}

func loadMediaVPXLib() error {
	var lastErr error
	for _, path := range nativeLibPaths("libmedia_vpx") {
		handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			lastErr = err
			continue
		}
		mediaVPXHandle = handle
		purego.RegisterLibFunc(&mediaVPXEncoderCreate, handle, "media_vpx_encoder_create")
		purego.RegisterLibFunc(&mediaVPXEncoderEncode, handle, "media_vpx_encoder_encode")
		purego.RegisterLibFunc(&mediaVPXEncoderMaxOutputSize, handle, "media_vpx_encoder_max_output_size")
		purego.RegisterLibFunc(&mediaVPXEncoderSetBitrate, handle, "media_vpx_encoder_set_bitrate")
		purego.RegisterLibFunc(&mediaVPXEncoderDestroy, handle, "media_vpx_encoder_destroy")
		purego.RegisterLibFunc(&mediaVPXGetError, handle, "media_vpx_get_error")
		purego.RegisterLibFunc(&mediaVPXCodecAvailable, handle, "media_vpx_codec_available")
		return nil
	}
	if lastErr != nil {
		return fmt.Errorf("failed to load libmedia_vpx: %w", lastErr)
	}
	return errors.New("libmedia_vpx not found in any standard location")
}

// IsVP8Available checks if VP8 encoding is available.
func IsVP8Available() bool {
	return loadMediaVPX() == nil && mediaVPXCodecAvailable(mediaVPXCodecVP8) != 0
}

// IsVP9Available checks if VP9 encoding is available.
func IsVP9Available() bool {
	return loadMediaVPX() == nil && mediaVPXCodecAvailable(mediaVPXCodecVP9) != 0
}

func getVPXError() string {
	ptr := mediaVPXGetError()
	if ptr == 0 {
		return "unknown error"
	}
	return goStringFromPtr(ptr)
}

// VPXEncoder implements VideoEncoder using libmedia_vpx via purego. It is
// configured for realtime with no lag, so every input yields at most one
// output and Flush has nothing to drain.
type VPXEncoder struct {
	config VideoEncoderConfig
	codec  VideoCodec

	handle    uint64
	outputBuf []byte

	stats   EncoderStats
	statsMu sync.Mutex

	keyframeReq atomic.Bool
	mu          sync.Mutex
}

// NewVP8Encoder creates a new VP8 encoder.
func NewVP8Encoder(config VideoEncoderConfig) (*VPXEncoder, error) {
	return newVPXEncoder(config, VideoCodecVP8)
}

// NewVP9Encoder creates a new VP9 encoder.
func NewVP9Encoder(config VideoEncoderConfig) (*VPXEncoder, error) {
	return newVPXEncoder(config, VideoCodecVP9)
}

func newVPXEncoder(config VideoEncoderConfig, codec VideoCodec) (*VPXEncoder, error) {
	if err := loadMediaVPX(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrProviderNotFound, codec, err)
	}

	var codecType int32
	switch codec {
	case VideoCodecVP8:
		codecType = mediaVPXCodecVP8
	case VideoCodecVP9:
		codecType = mediaVPXCodecVP9
	default:
		return nil, fmt.Errorf("%w: %s", ErrCodecNotSupported, codec)
	}
	if config.Width <= 0 || config.Height <= 0 || config.Width%2 != 0 || config.Height%2 != 0 {
		return nil, fmt.Errorf("%w: %s needs even dimensions, got %dx%d", ErrInvalidConfig, codec, config.Width, config.Height)
	}

	threads := config.Threads
	if threads <= 0 {
		threads = 4
	}
	bitrateKbps := config.BitrateBps / 1000
	if bitrateKbps <= 0 {
		bitrateKbps = 8000
	}
	fps := config.FPS
	if fps <= 0 {
		fps = 30
	}

	handle := mediaVPXEncoderCreate(codecType, int32(config.Width), int32(config.Height), int32(fps), int32(bitrateKbps), int32(threads))
	if handle == 0 {
		return nil, fmt.Errorf("failed to create %s encoder: %s", codec, getVPXError())
	}

	maxOutput := mediaVPXEncoderMaxOutputSize(handle)
	if maxOutput <= 0 {
		maxOutput = int32(I420Size(config.Width, config.Height))
	}

	enc := &VPXEncoder{
		config:    config,
		codec:     codec,
		handle:    handle,
		outputBuf: make([]byte, maxOutput),
	}
	enc.keyframeReq.Store(true)
	return enc, nil
}

// Encode implements VideoEncoder.
func (e *VPXEncoder) Encode(frame *VideoFrame) (*EncodedFrame, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handle == 0 {
		return nil, fmt.Errorf("encoder not initialized")
	}
	if frame.Width != e.config.Width || frame.Height != e.config.Height {
		return nil, fmt.Errorf("%w: frame %dx%d, encoder %dx%d", ErrInvalidConfig, frame.Width, frame.Height, e.config.Width, e.config.Height)
	}

	forceKeyframe := int32(0)
	if e.keyframeReq.Swap(false) {
		forceKeyframe = 1
	}

	var frameType int32
	var pts int64
	result := mediaVPXEncoderEncode(
		e.handle,
		uintptr(unsafe.Pointer(&frame.Data[0][0])),
		uintptr(unsafe.Pointer(&frame.Data[1][0])),
		uintptr(unsafe.Pointer(&frame.Data[2][0])),
		int32(frame.Stride[0]),
		int32(frame.Stride[1]),
		forceKeyframe,
		uintptr(unsafe.Pointer(&e.outputBuf[0])),
		int32(len(e.outputBuf)),
		uintptr(unsafe.Pointer(&frameType)),
		uintptr(unsafe.Pointer(&pts)),
	)
	if result < 0 {
		return nil, fmt.Errorf("encode failed: %s", getVPXError())
	}
	if result == 0 {
		e.statsMu.Lock()
		e.stats.DroppedFrames++
		e.statsMu.Unlock()
		return nil, nil
	}

	ft := FrameTypeDelta
	if frameType == mediaVPXFrameKey {
		ft = FrameTypeKey
	}

	e.statsMu.Lock()
	e.stats.FramesEncoded++
	if ft == FrameTypeKey {
		e.stats.KeyframesEncoded++
	}
	e.stats.BytesEncoded += uint64(result)
	e.statsMu.Unlock()

	return &EncodedFrame{
		Data:      e.outputBuf[:result],
		FrameType: ft,
		Timestamp: frame.Timestamp,
		Duration:  frame.Duration,
	}, nil
}

// SetBitrate updates the target bitrate.
func (e *VPXEncoder) SetBitrate(bitrateBps int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handle == 0 {
		return fmt.Errorf("encoder not initialized")
	}
	if mediaVPXEncoderSetBitrate(e.handle, int32(bitrateBps/1000)) != mediaVPXOK {
		return fmt.Errorf("failed to set bitrate: %s", getVPXError())
	}
	e.config.BitrateBps = bitrateBps
	return nil
}

// Provider implements VideoEncoder.
func (e *VPXEncoder) Provider() Provider { return ProviderLibvpx }

// Config implements VideoEncoder.
func (e *VPXEncoder) Config() VideoEncoderConfig { return e.config }

// Codec implements VideoEncoder.
func (e *VPXEncoder) Codec() VideoCodec { return e.codec }

// Stats implements VideoEncoder.
func (e *VPXEncoder) Stats() EncoderStats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.stats
}

// Flush implements VideoEncoder.
func (e *VPXEncoder) Flush() ([]*EncodedFrame, error) {
	return nil, nil
}

// Close implements VideoEncoder.
func (e *VPXEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handle != 0 {
		mediaVPXEncoderDestroy(e.handle)
		e.handle = 0
	}
	return nil
}

func init() {
	if err := loadMediaVPX(); err != nil {
		return
	}
	if mediaVPXCodecAvailable(mediaVPXCodecVP8) != 0 {
		setProviderAvailable(ProviderLibvpx)
		registerVideoEncoder(VideoCodecVP8, ProviderLibvpx, func(config VideoEncoderConfig) (VideoEncoder, error) {
			return NewVP8Encoder(config)
		})
	}
	if mediaVPXCodecAvailable(mediaVPXCodecVP9) != 0 {
		setProviderAvailable(ProviderLibvpx)
		registerVideoEncoder(VideoCodecVP9, ProviderLibvpx, func(config VideoEncoderConfig) (VideoEncoder, error) {
			return NewVP9Encoder(config)
		})
	}
}
