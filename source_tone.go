package screenrec

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync/atomic"
	"time"
)

// ToneConfig configures a ToneSource.
type ToneConfig struct {
	SampleRate    int           // Sample rate (default: 48000)
	Channels      int           // Number of channels (default: 2)
	ChunkDuration time.Duration // Chunk length (default: 10ms)
	Frequency     float64       // Tone frequency in Hz (default: 440)
	Amplitude     float64       // Amplitude 0.0-1.0 (default: 0.5)
}

// ToneSource generates a continuous S16 sine wave in fixed chunks. Chunk
// timestamps advance by sample count from the first delivery.
type ToneSource struct {
	config      ToneConfig
	chunkFrames int
	data        []byte
	phase       float64
	framesOut   int64
	origin      int64

	running atomic.Bool
	cancel  context.CancelFunc
	doneCh  chan struct{}
}

// NewToneSource creates a new tone source.
func NewToneSource(config ToneConfig) *ToneSource {
	if config.SampleRate <= 0 {
		config.SampleRate = 48000
	}
	if config.Channels <= 0 {
		config.Channels = 2
	}
	if config.ChunkDuration <= 0 {
		config.ChunkDuration = 10 * time.Millisecond
	}
	if config.Frequency <= 0 {
		config.Frequency = 440.0
	}
	if config.Amplitude <= 0 {
		config.Amplitude = 0.5
	}
	if config.Amplitude > 1.0 {
		config.Amplitude = 1.0
	}

	frames := int(int64(config.SampleRate) * int64(config.ChunkDuration) / int64(time.Second))
	if frames <= 0 {
		frames = 1
	}
	return &ToneSource{
		config:      config,
		chunkFrames: frames,
		data:        make([]byte, frames*config.Channels*2),
	}
}

// Start begins generating chunks.
func (s *ToneSource) Start(ctx context.Context, onChunk ChunkCallback, onLost LostCallback) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("tone source already running")
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.doneCh = make(chan struct{})
	s.origin = monotonicNow()
	s.framesOut = 0
	go s.generateLoop(ctx, onChunk)
	return nil
}

// Stop halts generation. Tone chunks are always whole, so there is nothing
// to flush.
func (s *ToneSource) Stop() error {
	if !s.running.Swap(false) {
		return nil
	}
	s.cancel()
	<-s.doneCh
	return nil
}

// TimeBase implements AudioSource.
func (s *ToneSource) TimeBase() TimeBase {
	return TimeBaseNanoseconds
}

func (s *ToneSource) generateLoop(ctx context.Context, onChunk ChunkCallback) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.config.ChunkDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		onChunk(s.nextChunk())
	}
}

func (s *ToneSource) nextChunk() *AudioChunk {
	ch := s.config.Channels
	step := 2 * math.Pi * s.config.Frequency / float64(s.config.SampleRate)
	amp := s.config.Amplitude * 32767
	for i := 0; i < s.chunkFrames; i++ {
		v := int16(math.Sin(s.phase) * amp)
		s.phase += step
		if s.phase > 2*math.Pi {
			s.phase -= 2 * math.Pi
		}
		for c := 0; c < ch; c++ {
			binary.LittleEndian.PutUint16(s.data[(i*ch+c)*2:], uint16(v))
		}
	}

	ts := s.origin + s.framesOut*int64(time.Second)/int64(s.config.SampleRate)
	s.framesOut += int64(s.chunkFrames)

	return &AudioChunk{
		Data:       s.data,
		Format:     AudioFormatS16,
		Channels:   ch,
		SampleRate: s.config.SampleRate,
		FrameCount: s.chunkFrames,
		Timestamp:  ts,
	}
}

func init() {
	RegisterAudioSource(SourceTypeTone, func(opts SourceOptions) (AudioSource, error) {
		return NewToneSource(ToneConfig{
			SampleRate:    opts.SampleRate,
			Channels:      opts.Channels,
			ChunkDuration: opts.ChunkDuration,
		}), nil
	})
}
