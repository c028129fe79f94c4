package screenrec

import (
	"fmt"
	"io"
	"sort"
	"sync"
)

// VideoEncoderConfig configures a video encoder.
type VideoEncoderConfig struct {
	Codec    VideoCodec // Codec type (VP8, VP9)
	Provider Provider   // Provider to use (ProviderAuto = registry chooses)

	Width      int // Frame width
	Height     int // Frame height
	FPS        int // Target framerate
	BitrateBps int // Target bitrate in bits per second
	Threads    int // Encoder threads (0 = auto)
}

// DefaultVideoEncoderConfig returns a default encoder configuration.
func DefaultVideoEncoderConfig(codec VideoCodec, width, height int) VideoEncoderConfig {
	return VideoEncoderConfig{
		Codec:      codec,
		Provider:   ProviderAuto,
		Width:      width,
		Height:     height,
		FPS:        30,
		BitrateBps: 8_000_000,
	}
}

// EncoderStats provides encoding metrics.
type EncoderStats struct {
	FramesEncoded    uint64 // Total frames encoded
	KeyframesEncoded uint64 // Total keyframes encoded
	BytesEncoded     uint64 // Total bytes of encoded data
	DroppedFrames    uint64 // Frames the encoder produced no output for
}

// VideoEncoder encodes raw video frames to a compressed bitstream.
type VideoEncoder interface {
	io.Closer

	// Encode encodes a video frame.
	// Returns nil if the encoder is buffering and no output is ready.
	// The returned EncodedFrame data is valid until the next Encode() call.
	Encode(frame *VideoFrame) (*EncodedFrame, error)

	// Flush drains any buffered frames.
	Flush() ([]*EncodedFrame, error)

	Provider() Provider
	Config() VideoEncoderConfig
	Codec() VideoCodec
	Stats() EncoderStats
}

// AudioEncoderConfig configures an audio encoder.
type AudioEncoderConfig struct {
	Codec    AudioCodec // Codec type (Opus)
	Provider Provider   // Provider to use (ProviderAuto = registry chooses)

	SampleRate  int // Sample rate (e.g., 48000)
	Channels    int // Number of channels (1 or 2)
	BitrateBps  int // Target bitrate in bps
	FrameSizeMs int // Packet duration in milliseconds
}

// DefaultAudioEncoderConfig returns a default audio encoder configuration.
func DefaultAudioEncoderConfig(codec AudioCodec) AudioEncoderConfig {
	return AudioEncoderConfig{
		Codec:       codec,
		Provider:    ProviderAuto,
		SampleRate:  48000,
		Channels:    2,
		BitrateBps:  128000,
		FrameSizeMs: 20,
	}
}

// AudioEncoderStats provides audio encoding metrics.
type AudioEncoderStats struct {
	FramesEncoded  uint64
	BytesEncoded   uint64
	SamplesEncoded uint64
	PaddedSamples  uint64
}

// AudioEncoder encodes PCM into fixed-duration packets. Input need not be
// aligned to packet boundaries; Encode returns however many packets became
// complete, and Flush pads out the remainder.
type AudioEncoder interface {
	io.Closer

	Encode(samples *AudioSamples) ([]*EncodedAudio, error)
	Flush() ([]*EncodedAudio, error)

	Provider() Provider
	Config() AudioEncoderConfig
	Codec() AudioCodec
	Stats() AudioEncoderStats
}

// --- Registry ---

type videoEncoderFactory func(VideoEncoderConfig) (VideoEncoder, error)
type audioEncoderFactory func(AudioEncoderConfig) (AudioEncoder, error)

type encoderRegistry struct {
	mu sync.RWMutex

	// codec -> provider -> factory
	videoProviders map[VideoCodec]map[Provider]videoEncoderFactory
	audioProviders map[AudioCodec]map[Provider]audioEncoderFactory

	// Default provider per codec: the first one registered.
	videoDefaults map[VideoCodec]Provider
	audioDefaults map[AudioCodec]Provider
}

var globalEncoderRegistry = &encoderRegistry{
	videoProviders: make(map[VideoCodec]map[Provider]videoEncoderFactory),
	audioProviders: make(map[AudioCodec]map[Provider]audioEncoderFactory),
	videoDefaults:  make(map[VideoCodec]Provider),
	audioDefaults:  make(map[AudioCodec]Provider),
}

func registerVideoEncoder(codec VideoCodec, provider Provider, factory videoEncoderFactory) {
	globalEncoderRegistry.mu.Lock()
	defer globalEncoderRegistry.mu.Unlock()

	if globalEncoderRegistry.videoProviders[codec] == nil {
		globalEncoderRegistry.videoProviders[codec] = make(map[Provider]videoEncoderFactory)
	}
	globalEncoderRegistry.videoProviders[codec][provider] = factory
	if _, ok := globalEncoderRegistry.videoDefaults[codec]; !ok {
		globalEncoderRegistry.videoDefaults[codec] = provider
	}
}

func registerAudioEncoder(codec AudioCodec, provider Provider, factory audioEncoderFactory) {
	globalEncoderRegistry.mu.Lock()
	defer globalEncoderRegistry.mu.Unlock()

	if globalEncoderRegistry.audioProviders[codec] == nil {
		globalEncoderRegistry.audioProviders[codec] = make(map[Provider]audioEncoderFactory)
	}
	globalEncoderRegistry.audioProviders[codec][provider] = factory
	if _, ok := globalEncoderRegistry.audioDefaults[codec]; !ok {
		globalEncoderRegistry.audioDefaults[codec] = provider
	}
}

// NewVideoEncoder creates a video encoder.
func NewVideoEncoder(config VideoEncoderConfig) (VideoEncoder, error) {
	globalEncoderRegistry.mu.RLock()
	providers := globalEncoderRegistry.videoProviders[config.Codec]
	p := config.Provider
	if p == ProviderAuto {
		p = globalEncoderRegistry.videoDefaults[config.Codec]
	}
	factory, ok := providers[p]
	globalEncoderRegistry.mu.RUnlock()

	if providers == nil {
		return nil, fmt.Errorf("%w: no providers for %s", ErrCodecNotSupported, config.Codec)
	}
	if !ok || !p.Available() {
		return nil, fmt.Errorf("%w: %s for %s", ErrProviderNotFound, p, config.Codec)
	}
	return factory(config)
}

// NewAudioEncoder creates an audio encoder.
func NewAudioEncoder(config AudioEncoderConfig) (AudioEncoder, error) {
	globalEncoderRegistry.mu.RLock()
	providers := globalEncoderRegistry.audioProviders[config.Codec]
	p := config.Provider
	if p == ProviderAuto {
		p = globalEncoderRegistry.audioDefaults[config.Codec]
	}
	factory, ok := providers[p]
	globalEncoderRegistry.mu.RUnlock()

	if providers == nil {
		return nil, fmt.Errorf("%w: no providers for %s", ErrCodecNotSupported, config.Codec)
	}
	if !ok || !p.Available() {
		return nil, fmt.Errorf("%w: %s for %s", ErrProviderNotFound, p, config.Codec)
	}
	return factory(config)
}

// VideoEncoderProviders returns available providers for a video codec.
func VideoEncoderProviders(codec VideoCodec) []Provider {
	globalEncoderRegistry.mu.RLock()
	defer globalEncoderRegistry.mu.RUnlock()

	providers := globalEncoderRegistry.videoProviders[codec]
	result := make([]Provider, 0, len(providers))
	for p := range providers {
		if p.Available() {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// AudioEncoderProviders returns available providers for an audio codec.
func AudioEncoderProviders(codec AudioCodec) []Provider {
	globalEncoderRegistry.mu.RLock()
	defer globalEncoderRegistry.mu.RUnlock()

	providers := globalEncoderRegistry.audioProviders[codec]
	result := make([]Provider, 0, len(providers))
	for p := range providers {
		if p.Available() {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// EncoderInfo describes one registered encoder for listing.
type EncoderInfo struct {
	Kind      string // "video" or "audio"
	Codec     string
	Provider  Provider
	Available bool
	Default   bool
}

// ListEncoders returns every registered codec/provider pair.
func ListEncoders() []EncoderInfo {
	globalEncoderRegistry.mu.RLock()
	defer globalEncoderRegistry.mu.RUnlock()

	var out []EncoderInfo
	for codec, providers := range globalEncoderRegistry.videoProviders {
		for p := range providers {
			out = append(out, EncoderInfo{
				Kind:      "video",
				Codec:     codec.String(),
				Provider:  p,
				Available: p.Available(),
				Default:   globalEncoderRegistry.videoDefaults[codec] == p,
			})
		}
	}
	for codec, providers := range globalEncoderRegistry.audioProviders {
		for p := range providers {
			out = append(out, EncoderInfo{
				Kind:      "audio",
				Codec:     codec.String(),
				Provider:  p,
				Available: p.Available(),
				Default:   globalEncoderRegistry.audioDefaults[codec] == p,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind > out[j].Kind
		}
		if out[i].Codec != out[j].Codec {
			return out[i].Codec < out[j].Codec
		}
		return out[i].Provider < out[j].Provider
	})
	return out
}
