//go:build (darwin || linux) && !noopus && !cgo

// Opus via the libstream_opus shim, loaded at runtime with purego.

package screenrec

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

var (
	streamOpusOnce    sync.Once
	streamOpusHandle  uintptr
	streamOpusInitErr error
)

// libstream_opus function pointers
var (
	streamOpusEncoderCreate     func(sampleRate, channels, application int32) uint64
	streamOpusEncoderEncode     func(encoder uint64, pcm uintptr, frameSize int32, outData uintptr, outCapacity int32) int32
	streamOpusEncoderSetBitrate func(encoder uint64, bitrate int32) int32
	streamOpusEncoderDestroy    func(encoder uint64)
	streamOpusGetError          func() uintptr
	streamOpusGetVersion        func() uintptr
)

// Constants from stream_opus.h
const (
	streamOpusApplicationAudio = 2049
	streamOpusOK               = 0
)

func loadStreamOpus() error {
	streamOpusOnce.Do(func() {
		streamOpusInitErr = loadStreamOpusLib()
	})
	return streamOpusInitErr
}

func loadStreamOpusLib() error {
	var lastErr error
	for _, path := range nativeLibPaths("libstream_opus") {
		handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			lastErr = err
			continue
		}
		streamOpusHandle = handle
		purego.RegisterLibFunc(&streamOpusEncoderCreate, handle, "stream_opus_encoder_create")
		purego.RegisterLibFunc(&streamOpusEncoderEncode, handle, "stream_opus_encoder_encode")
		purego.RegisterLibFunc(&streamOpusEncoderSetBitrate, handle, "stream_opus_encoder_set_bitrate")
		purego.RegisterLibFunc(&streamOpusEncoderDestroy, handle, "stream_opus_encoder_destroy")
		purego.RegisterLibFunc(&streamOpusGetError, handle, "stream_opus_get_error")
		purego.RegisterLibFunc(&streamOpusGetVersion, handle, "stream_opus_get_version")
		return nil
	}
	if lastErr != nil {
		return fmt.Errorf("failed to load libstream_opus: %w", lastErr)
	}
	return errors.New("libstream_opus not found in any standard location")
}

// IsOpusAvailable checks if libstream_opus is available.
func IsOpusAvailable() bool {
	return loadStreamOpus() == nil
}

// OpusVersion returns the libopus version string.
func OpusVersion() string {
	if !IsOpusAvailable() {
		return ""
	}
	return goStringFromPtr(streamOpusGetVersion())
}

func getOpusError() string {
	ptr := streamOpusGetError()
	if ptr == 0 {
		return "unknown error"
	}
	return goStringFromPtr(ptr)
}

type streamOpusBackend struct {
	handle   uint64
	channels int
}

func (b *streamOpusBackend) encode(pcm []int16, out []byte) (int, error) {
	frameSize := len(pcm) / b.channels
	n := streamOpusEncoderEncode(
		b.handle,
		uintptr(unsafe.Pointer(&pcm[0])),
		int32(frameSize),
		uintptr(unsafe.Pointer(&out[0])),
		int32(len(out)),
	)
	if n < 0 {
		return 0, fmt.Errorf("opus encode: %s", getOpusError())
	}
	return int(n), nil
}

func (b *streamOpusBackend) setBitrate(bps int) error {
	if streamOpusEncoderSetBitrate(b.handle, int32(bps)) != streamOpusOK {
		return fmt.Errorf("failed to set bitrate: %s", getOpusError())
	}
	return nil
}

func (b *streamOpusBackend) close() error {
	if b.handle != 0 {
		streamOpusEncoderDestroy(b.handle)
		b.handle = 0
	}
	return nil
}

// NewOpusEncoder creates an Opus encoder backed by libstream_opus.
func NewOpusEncoder(config AudioEncoderConfig) (*OpusEncoder, error) {
	if err := loadStreamOpus(); err != nil {
		return nil, fmt.Errorf("%w: opus: %v", ErrProviderNotFound, err)
	}
	if err := validateOpusConfig(&config); err != nil {
		return nil, err
	}

	handle := streamOpusEncoderCreate(int32(config.SampleRate), int32(config.Channels), streamOpusApplicationAudio)
	if handle == 0 {
		return nil, fmt.Errorf("failed to create Opus encoder: %s", getOpusError())
	}
	backend := &streamOpusBackend{handle: handle, channels: config.Channels}
	if err := backend.setBitrate(config.BitrateBps); err != nil {
		backend.close()
		return nil, err
	}
	return newOpusEncoder(config, ProviderLibopus, backend), nil
}

func init() {
	if err := loadStreamOpus(); err != nil {
		return
	}
	setProviderAvailable(ProviderLibopus)
	registerAudioEncoder(AudioCodecOpus, ProviderLibopus, func(config AudioEncoderConfig) (AudioEncoder, error) {
		return NewOpusEncoder(config)
	})
}
