//go:build cgo

package screenrec

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
	"go.uber.org/zap"
)

// DeviceAudioSource captures from a miniaudio device: the default capture
// device (microphone) or, on WASAPI, the default output in loopback mode.
type DeviceAudioSource struct {
	input      SourceType
	sampleRate int
	channels   int
	chunk      time.Duration
	log        *zap.Logger

	mctx   *malgo.AllocatedContext
	device *malgo.Device

	// Guards chunker between the device thread and Stop's final flush.
	mu      sync.Mutex
	chunker *chunker

	running  atomic.Bool
	stopping atomic.Bool
	lostOnce sync.Once
	onLost   LostCallback
	done     chan struct{}
}

// NewDeviceAudioSource creates a stopped device source. input must be
// SourceTypeLoopback or SourceTypeMicrophone.
func NewDeviceAudioSource(input SourceType, opts SourceOptions) (*DeviceAudioSource, error) {
	if input != SourceTypeLoopback && input != SourceTypeMicrophone {
		return nil, fmt.Errorf("%w: audio input %v", ErrNotSupported, input)
	}
	if input == SourceTypeLoopback && runtime.GOOS != "windows" {
		return nil, fmt.Errorf("%w: loopback capture requires WASAPI", ErrNotSupported)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s := &DeviceAudioSource{
		input:      input,
		sampleRate: opts.SampleRate,
		channels:   opts.Channels,
		chunk:      opts.ChunkDuration,
		log:        log.Named("audio"),
	}
	if s.sampleRate <= 0 {
		s.sampleRate = 48000
	}
	if s.channels <= 0 {
		s.channels = 2
	}
	if s.chunk <= 0 {
		s.chunk = 10 * time.Millisecond
	}
	return s, nil
}

// Start opens the device and begins delivery.
func (s *DeviceAudioSource) Start(ctx context.Context, onChunk ChunkCallback, onLost LostCallback) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("audio source already running")
	}
	s.stopping.Store(false)
	s.onLost = onLost
	s.done = make(chan struct{})
	s.chunker = newChunker(AudioFormatS16, s.channels, s.sampleRate, s.chunk, onChunk)

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		s.log.Debug("miniaudio", zap.String("msg", strings.TrimSpace(msg)))
	})
	if err != nil {
		s.running.Store(false)
		return fmt.Errorf("%w: init context: %v", ErrAudioDeviceLost, err)
	}

	devType := malgo.Capture
	if s.input == SourceTypeLoopback {
		devType = malgo.Loopback
	}
	cfg := malgo.DefaultDeviceConfig(devType)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(s.channels)
	cfg.SampleRate = uint32(s.sampleRate)
	cfg.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(mctx.Context, cfg, malgo.DeviceCallbacks{
		Data: s.onData,
		Stop: s.onStop,
	})
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		s.running.Store(false)
		return fmt.Errorf("%w: init %s device: %v", ErrAudioDeviceLost, s.input, err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		s.running.Store(false)
		return fmt.Errorf("%w: start %s device: %v", ErrAudioDeviceLost, s.input, err)
	}

	s.mctx, s.device = mctx, device
	s.log.Info("audio capture started",
		zap.Stringer("input", s.input),
		zap.Int("sample_rate", s.sampleRate),
		zap.Int("channels", s.channels),
		zap.Duration("chunk", s.chunk))

	done := s.done
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Stop()
		case <-done:
		}
	}()
	return nil
}

func (s *DeviceAudioSource) onData(_, input []byte, frameCount uint32) {
	if !s.running.Load() {
		return
	}
	s.mu.Lock()
	s.chunker.write(input, int(frameCount), monotonicNow())
	s.mu.Unlock()
}

// onStop runs on the device thread both for requested and unexpected stops.
func (s *DeviceAudioSource) onStop() {
	if s.stopping.Load() {
		return
	}
	s.lostOnce.Do(func() {
		s.log.Warn("audio device stopped unexpectedly", zap.Stringer("input", s.input))
		s.running.Store(false)
		if s.onLost != nil {
			s.onLost(fmt.Errorf("%w: %s device stopped", ErrAudioDeviceLost, s.input))
		}
	})
}

// Stop closes the device and delivers any partial chunk. Idempotent.
func (s *DeviceAudioSource) Stop() error {
	if !s.stopping.CompareAndSwap(false, true) {
		return nil
	}
	s.running.Store(false)

	if s.device != nil {
		s.device.Uninit()
		s.device = nil
	}

	s.mu.Lock()
	if s.chunker != nil {
		s.chunker.flush()
	}
	s.mu.Unlock()

	if s.mctx != nil {
		_ = s.mctx.Uninit()
		s.mctx.Free()
		s.mctx = nil
	}
	if s.done != nil {
		close(s.done)
	}
	return nil
}

// TimeBase implements AudioSource.
func (s *DeviceAudioSource) TimeBase() TimeBase {
	return TimeBaseNanoseconds
}

func init() {
	RegisterAudioSource(SourceTypeMicrophone, func(opts SourceOptions) (AudioSource, error) {
		return NewDeviceAudioSource(SourceTypeMicrophone, opts)
	})
	RegisterAudioSource(SourceTypeLoopback, func(opts SourceOptions) (AudioSource, error) {
		return NewDeviceAudioSource(SourceTypeLoopback, opts)
	})
}
