package screenrec

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

// RecorderOption overrides a component the Recorder would otherwise build
// from its Config.
type RecorderOption func(*recorderParts)

type recorderParts struct {
	frameSource  FrameSource
	audioSource  AudioSource
	videoEncoder VideoEncoder
	audioEncoder AudioEncoder
	output       OutputTarget
}

// WithFrameSource uses src instead of the configured video source.
func WithFrameSource(src FrameSource) RecorderOption {
	return func(p *recorderParts) { p.frameSource = src }
}

// WithAudioSource uses src instead of the configured audio input.
func WithAudioSource(src AudioSource) RecorderOption {
	return func(p *recorderParts) { p.audioSource = src }
}

// WithVideoEncoder uses enc instead of a registry encoder.
func WithVideoEncoder(enc VideoEncoder) RecorderOption {
	return func(p *recorderParts) { p.videoEncoder = enc }
}

// WithAudioEncoder uses enc instead of a registry encoder.
func WithAudioEncoder(enc AudioEncoder) RecorderOption {
	return func(p *recorderParts) { p.audioEncoder = enc }
}

// WithOutput writes to out instead of opening Config.Output.
func WithOutput(out OutputTarget) RecorderOption {
	return func(p *recorderParts) { p.output = out }
}

// Recorder wires sources, the clock, the frame processor and a Session
// together and owns the source lifetimes.
type Recorder struct {
	cfg Config
	log *zap.Logger

	videoSrc FrameSource
	audioSrc AudioSource
	output   OutputTarget
	session  *Session

	clock     *Clock
	pacer     *FramePacer
	processor *FrameProcessor
	videoTB   TimeBase
	audioTB   TimeBase

	ctx    context.Context
	cancel context.CancelFunc

	haltOnce  sync.Once
	halted    chan struct{}
	sourceErr error
}

// NewRecorder validates cfg and builds every component. Nothing is started.
func NewRecorder(cfg Config, log *zap.Logger, opts ...RecorderOption) (_ *Recorder, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	parts := &recorderParts{}
	for _, opt := range opts {
		opt(parts)
	}

	r := &Recorder{
		cfg:   cfg,
		log:   log.Named("recorder"),
		clock: NewClock(),
		pacer: NewFramePacer(cfg.FPS),
	}

	var built []interface{ Close() error }
	defer func() {
		if err == nil {
			return
		}
		for i := len(built) - 1; i >= 0; i-- {
			built[i].Close()
		}
		if r.output != nil && parts.output == nil {
			RemoveOutputFiles(r.output)
		}
	}()

	target, _ := cfg.CaptureTarget()
	srcOpts := SourceOptions{
		Target:        target,
		FPS:           cfg.FPS,
		Width:         cfg.Width,
		Height:        cfg.Height,
		SampleRate:    cfg.AudioSampleRate,
		Channels:      cfg.AudioChannels,
		ChunkDuration: time.Duration(cfg.AudioChunkMs) * time.Millisecond,
		Logger:        log,
	}

	r.videoSrc = parts.frameSource
	if r.videoSrc == nil {
		if r.videoSrc, err = CreateFrameSource(ParseSourceType(cfg.VideoSource), srcOpts); err != nil {
			return nil, err
		}
	}

	width, height := cfg.Width, cfg.Height
	if width == 0 || height == 0 {
		sized, ok := r.videoSrc.(SizedSource)
		if ok {
			width, height = sized.NativeSize()
		}
		if width <= 0 || height <= 0 {
			return nil, fmt.Errorf("%w: output size unknown, set width and height", ErrInvalidConfig)
		}
	}
	width, height = EnsureEven(width, height)

	withAudio := !cfg.AudioDisabled()
	if withAudio {
		r.audioSrc = parts.audioSource
		if r.audioSrc == nil {
			if r.audioSrc, err = CreateAudioSource(ParseSourceType(cfg.AudioInput), srcOpts); err != nil {
				return nil, err
			}
		}
	}

	codec := ParseVideoCodec(cfg.VideoCodec)
	venc := parts.videoEncoder
	if venc == nil {
		vcfg := DefaultVideoEncoderConfig(codec, width, height)
		vcfg.FPS = cfg.FPS
		vcfg.BitrateBps = int(cfg.VideoBitrateMbps * 1e6)
		vcfg.Provider, _ = ParseProvider(cfg.VideoProvider)
		if venc, err = NewVideoEncoder(vcfg); err != nil {
			return nil, fmt.Errorf("video encoder: %w", err)
		}
	}
	built = append(built, venc)

	var aenc AudioEncoder
	if withAudio {
		aenc = parts.audioEncoder
		if aenc == nil {
			acfg := DefaultAudioEncoderConfig(AudioCodecOpus)
			acfg.SampleRate = cfg.AudioSampleRate
			acfg.Channels = cfg.AudioChannels
			acfg.BitrateBps = cfg.AudioBitrateKbps * 1000
			acfg.Provider, _ = ParseProvider(cfg.AudioProvider)
			if aenc, err = NewAudioEncoder(acfg); err != nil {
				return nil, fmt.Errorf("audio encoder: %w", err)
			}
		}
		built = append(built, aenc)
	}

	r.output = parts.output
	if r.output == nil {
		if err = cfg.ValidateOutputPath(); err != nil {
			return nil, err
		}
		container, _ := cfg.ResolveContainer()
		r.output, err = OpenOutput(cfg.Output, OutputOptions{
			Container:  container,
			VideoCodec: codec,
			Width:      width,
			Height:     height,
			FPS:        cfg.FPS,
			Audio:      withAudio,
			AudioCodec: AudioCodecOpus,
			SampleRate: cfg.AudioSampleRate,
			Channels:   cfg.AudioChannels,
		})
		if err != nil {
			return nil, err
		}
	}
	built = append(built, r.output)

	pad, _ := ParseHexColor(cfg.PadColor)
	if r.processor, err = NewFrameProcessor(ProcessorConfig{
		Width:    width,
		Height:   height,
		FPS:      cfg.FPS,
		Mode:     ParseScaleMode(cfg.ScaleMode),
		PadColor: pad,
		PoolSize: cfg.VideoQueueCapacity + cfg.MaxInFlight + 2,
	}); err != nil {
		return nil, err
	}

	policy, _ := ParseAudioLossPolicy(cfg.AudioLossPolicy)
	if r.session, err = NewSession(venc, aenc, r.output, SessionConfig{
		VideoQueueCapacity: cfg.VideoQueueCapacity,
		AudioQueueCapacity: cfg.AudioQueueCapacity,
		MaxInFlight:        cfg.MaxInFlight,
		InterleaveWindow:   cfg.InterleaveWindow,
		StopTimeout:        cfg.StopTimeout,
		AudioLossPolicy:    policy,
		Clock:              r.clock,
		Logger:             log,
	}); err != nil {
		return nil, err
	}

	r.log.Info("recorder ready",
		zap.String("video_source", cfg.VideoSource),
		zap.String("audio_input", cfg.AudioInput),
		zap.Int("width", width),
		zap.Int("height", height),
		zap.Int("fps", cfg.FPS),
		zap.Stringer("codec", codec),
		zap.Strings("output", r.output.Paths()))
	return r, nil
}

// Session returns the underlying session.
func (r *Recorder) Session() *Session { return r.session }

// Start starts the session and then the sources. Cancelling ctx behaves
// like Stop.
func (r *Recorder) Start(ctx context.Context) error {
	// Sources outlive ctx until they have flushed into the session.
	r.ctx, r.cancel = context.WithCancel(context.WithoutCancel(ctx))
	if err := r.session.Start(r.ctx); err != nil {
		r.cancel()
		return err
	}
	go func() {
		select {
		case <-ctx.Done():
			r.Stop()
			<-r.session.Done()
		case <-r.session.Done():
		}
		r.cancel()
		r.haltSources()
	}()

	r.videoTB = r.videoSrc.TimeBase()
	if err := r.videoSrc.Start(r.ctx, r.onFrame, r.onVideoLost); err != nil {
		r.fail(fmt.Errorf("start video source: %w", err))
		return err
	}
	if r.audioSrc != nil {
		r.audioTB = r.audioSrc.TimeBase()
		if err := r.audioSrc.Start(r.ctx, r.onChunk, r.onAudioLost); err != nil {
			r.fail(fmt.Errorf("start audio source: %w", err))
			return err
		}
	}
	return nil
}

// fail stops everything after a start failure and records the error.
func (r *Recorder) fail(err error) {
	r.log.Error("recorder start failed", zap.Error(err))
	r.sourceErr = err
	r.session.Stop()
}

// Stop requests a graceful stop. The sources stop first so a final partial
// chunk still reaches the audio queue, then the session drains. Waiting for
// the sources is bounded by StopTimeout. Use Wait for the result.
func (r *Recorder) Stop() {
	t := time.NewTimer(r.cfg.StopTimeout)
	defer t.Stop()
	select {
	case <-r.haltSources():
	case <-r.session.Done():
	case <-t.C:
		r.log.Warn("sources did not stop in time", zap.Duration("timeout", r.cfg.StopTimeout))
	}
	r.session.Stop()
}

// Wait blocks until the session ends, stops the sources and returns the
// result. With RemovePartialOnError the output files of a failed session
// are deleted.
func (r *Recorder) Wait() Result {
	res := r.session.Wait()
	if r.cancel != nil {
		r.cancel()
	}
	t := time.NewTimer(r.cfg.StopTimeout)
	select {
	case <-r.haltSources():
	case <-t.C:
		r.log.Warn("sources still stopping after the session ended")
	}
	t.Stop()
	if r.sourceErr != nil && res.Err == nil {
		res.Err = r.sourceErr
	}

	if res.State == StateErrored && r.cfg.RemovePartialOnError {
		if err := RemoveOutputFiles(r.output); err != nil {
			r.log.Warn("removing partial output", zap.Error(err))
		} else {
			r.log.Info("removed partial output", zap.Strings("paths", r.output.Paths()))
		}
	}
	return res
}

// Record runs a full recording: it starts, waits for ctx cancellation, the
// configured Duration or a session end, then stops and returns the result.
func (r *Recorder) Record(ctx context.Context) Result {
	if err := r.Start(ctx); err != nil {
		if r.session.State() == StateIdle {
			r.Close()
			return Result{State: StateErrored, Err: err}
		}
		return r.Wait()
	}

	var limit <-chan time.Time
	if r.cfg.Duration > 0 {
		t := time.NewTimer(r.cfg.Duration)
		defer t.Stop()
		limit = t.C
	}
	select {
	case <-ctx.Done():
		r.log.Info("stop requested")
	case <-limit:
		r.log.Info("duration reached", zap.Duration("duration", r.cfg.Duration))
	case <-r.session.Done():
	}
	r.Stop()
	return r.Wait()
}

// Close releases a recorder that was never started.
func (r *Recorder) Close() error {
	if r.session.State() != StateIdle {
		return fmt.Errorf("%w: close after start, use Stop and Wait", ErrInvalidState)
	}
	var result *multierror.Error
	if err := r.session.video.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if r.session.audio != nil {
		if err := r.session.audio.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := r.output.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// haltSources stops both sources once, in the background. The returned
// channel is closed when they have returned from Stop.
func (r *Recorder) haltSources() <-chan struct{} {
	r.haltOnce.Do(func() {
		r.halted = make(chan struct{})
		go func() {
			defer close(r.halted)
			var result *multierror.Error
			if err := r.videoSrc.Stop(); err != nil {
				result = multierror.Append(result, fmt.Errorf("stop video source: %w", err))
			}
			if r.audioSrc != nil {
				if err := r.audioSrc.Stop(); err != nil {
					result = multierror.Append(result, fmt.Errorf("stop audio source: %w", err))
				}
			}
			if err := result.ErrorOrNil(); err != nil {
				r.log.Warn("stopping sources", zap.Error(err))
			}
		}()
	})
	return r.halted
}

func (r *Recorder) onFrame(frame *CaptureFrame) {
	ts := r.clock.Relative(frame.Timestamp, r.videoTB)
	if !r.pacer.Accept(ts) {
		frame.Release()
		r.session.RecordPacedFrame()
		return
	}
	sample, err := r.processor.Process(r.ctx, frame, ts)
	if err != nil {
		if r.ctx.Err() == nil {
			r.log.Warn("frame rejected", zap.Error(err))
		}
		return
	}
	if err := r.session.EnqueueVideo(r.ctx, sample); err != nil && !errors.Is(err, ErrQueueClosed) && r.ctx.Err() == nil {
		r.log.Warn("video enqueue failed", zap.Error(err))
	}
}

func (r *Recorder) onChunk(chunk *AudioChunk) {
	ts := r.clock.Relative(chunk.Timestamp, r.audioTB)

	var data []byte
	if chunk.Format == AudioFormatF32 {
		data = convertF32ToS16(nil, chunk.Data)
	} else {
		data = append([]byte(nil), chunk.Data...)
	}
	sample := &AudioSample{Samples: AudioSamples{
		Data:        data,
		SampleRate:  chunk.SampleRate,
		Channels:    chunk.Channels,
		SampleCount: chunk.FrameCount,
		Format:      AudioFormatS16,
		Timestamp:   ts,
	}}
	if err := r.session.EnqueueAudio(r.ctx, sample); err != nil && !errors.Is(err, ErrQueueClosed) && r.ctx.Err() == nil {
		r.log.Warn("audio enqueue failed", zap.Error(err))
	}
}

func (r *Recorder) onVideoLost(err error) {
	r.session.SourceLost(err)
}

func (r *Recorder) onAudioLost(err error) {
	r.session.SourceLost(err)
	// The device thread reports the loss; stopping it from here would wait
	// on itself.
	go func() {
		if err := r.audioSrc.Stop(); err != nil {
			r.log.Debug("stopping lost audio source", zap.Error(err))
		}
	}()
}
