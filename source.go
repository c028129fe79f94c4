package screenrec

import (
	"context"
	"fmt"
	"image"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SourceType identifies the type of media source.
type SourceType int

const (
	SourceTypeUnknown    SourceType = iota
	SourceTypeDisplay               // Screen capture of a display or region
	SourceTypePattern               // Synthetic moving-box video
	SourceTypeLoopback              // System audio output (loopback)
	SourceTypeMicrophone            // Default capture device
	SourceTypeTone                  // Synthetic sine audio
)

func (s SourceType) String() string {
	switch s {
	case SourceTypeDisplay:
		return "display"
	case SourceTypePattern:
		return "pattern"
	case SourceTypeLoopback:
		return "loopback"
	case SourceTypeMicrophone:
		return "microphone"
	case SourceTypeTone:
		return "tone"
	default:
		return "unknown"
	}
}

// ParseSourceType maps a configuration name to a SourceType.
func ParseSourceType(s string) SourceType {
	for t := SourceTypeDisplay; t <= SourceTypeTone; t++ {
		if t.String() == s {
			return t
		}
	}
	return SourceTypeUnknown
}

// CaptureTarget selects what a video source captures. An empty Region means
// the whole display.
type CaptureTarget struct {
	Display int
	Region  image.Rectangle
}

// SourceOptions carries everything a source factory may need.
type SourceOptions struct {
	Target CaptureTarget
	FPS    int

	// Synthetic video size
	Width, Height int

	SampleRate    int
	Channels      int
	ChunkDuration time.Duration

	Logger *zap.Logger
}

// FrameCallback receives each captured frame synchronously. The frame must be
// released (directly or via FrameProcessor.Process) before returning.
type FrameCallback func(frame *CaptureFrame)

// ChunkCallback receives each audio chunk synchronously. Data is only valid
// until the callback returns.
type ChunkCallback func(chunk *AudioChunk)

// LostCallback reports that a source's underlying resource became invalid.
// It is called at most once and no deliveries follow it.
type LostCallback func(err error)

// FrameSource produces captured frames on its own cadence.
type FrameSource interface {
	// Start begins delivery. onLost may be nil.
	Start(ctx context.Context, onFrame FrameCallback, onLost LostCallback) error

	// Stop halts delivery and releases capture resources. Idempotent.
	Stop() error

	// TimeBase declares the unit of CaptureFrame.Timestamp.
	TimeBase() TimeBase
}

// AudioSource produces fixed-duration PCM chunks on its own cadence.
type AudioSource interface {
	// Start begins delivery. onLost may be nil.
	Start(ctx context.Context, onChunk ChunkCallback, onLost LostCallback) error

	// Stop flushes any partial chunk and halts delivery. Idempotent.
	Stop() error

	// TimeBase declares the unit of AudioChunk.Timestamp.
	TimeBase() TimeBase
}

// SizedSource is implemented by frame sources that know their native frame
// size before the first delivery.
type SizedSource interface {
	NativeSize() (width, height int)
}

// FrameSourceFactory creates a video source.
type FrameSourceFactory func(opts SourceOptions) (FrameSource, error)

// AudioSourceFactory creates an audio source.
type AudioSourceFactory func(opts SourceOptions) (AudioSource, error)

type sourceRegistry struct {
	mu    sync.RWMutex
	video map[SourceType]FrameSourceFactory
	audio map[SourceType]AudioSourceFactory
}

var globalSourceRegistry = &sourceRegistry{
	video: make(map[SourceType]FrameSourceFactory),
	audio: make(map[SourceType]AudioSourceFactory),
}

// RegisterFrameSource registers a video source factory for a source type.
func RegisterFrameSource(stype SourceType, factory FrameSourceFactory) {
	globalSourceRegistry.mu.Lock()
	defer globalSourceRegistry.mu.Unlock()
	globalSourceRegistry.video[stype] = factory
}

// RegisterAudioSource registers an audio source factory for a source type.
func RegisterAudioSource(stype SourceType, factory AudioSourceFactory) {
	globalSourceRegistry.mu.Lock()
	defer globalSourceRegistry.mu.Unlock()
	globalSourceRegistry.audio[stype] = factory
}

// CreateFrameSource creates a video source of the specified type.
func CreateFrameSource(stype SourceType, opts SourceOptions) (FrameSource, error) {
	globalSourceRegistry.mu.RLock()
	factory, ok := globalSourceRegistry.video[stype]
	globalSourceRegistry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: video source %v", ErrNotSupported, stype)
	}
	return factory(opts)
}

// CreateAudioSource creates an audio source of the specified type.
func CreateAudioSource(stype SourceType, opts SourceOptions) (AudioSource, error) {
	globalSourceRegistry.mu.RLock()
	factory, ok := globalSourceRegistry.audio[stype]
	globalSourceRegistry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: audio source %v", ErrNotSupported, stype)
	}
	return factory(opts)
}

// AvailableFrameSources returns the registered video source types.
func AvailableFrameSources() []SourceType {
	globalSourceRegistry.mu.RLock()
	defer globalSourceRegistry.mu.RUnlock()
	types := make([]SourceType, 0, len(globalSourceRegistry.video))
	for t := range globalSourceRegistry.video {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// AvailableAudioSources returns the registered audio source types.
func AvailableAudioSources() []SourceType {
	globalSourceRegistry.mu.RLock()
	defer globalSourceRegistry.mu.RUnlock()
	types := make([]SourceType, 0, len(globalSourceRegistry.audio))
	for t := range globalSourceRegistry.audio {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
