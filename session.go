package screenrec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Session defaults.
const (
	DefaultVideoQueueCapacity = 4
	DefaultAudioQueueCapacity = 8
	DefaultMaxInFlight        = 4
	DefaultStopTimeout        = 5 * time.Second
)

// AudioLossPolicy decides what a session does when the audio device
// disappears mid-recording.
type AudioLossPolicy int

const (
	// AudioLossVideoOnly closes the audio stream and keeps recording video.
	AudioLossVideoOnly AudioLossPolicy = iota
	// AudioLossAbort stops the session with ErrAudioDeviceLost.
	AudioLossAbort
)

func (p AudioLossPolicy) String() string {
	if p == AudioLossAbort {
		return "abort"
	}
	return "video-only"
}

// ParseAudioLossPolicy parses "video-only" or "abort".
func ParseAudioLossPolicy(s string) (AudioLossPolicy, error) {
	switch strings.ToLower(s) {
	case "", "video-only", "video_only", "continue":
		return AudioLossVideoOnly, nil
	case "abort":
		return AudioLossAbort, nil
	default:
		return AudioLossVideoOnly, fmt.Errorf("%w: unknown audio loss policy %q", ErrInvalidConfig, s)
	}
}

// SessionConfig configures queues, admission and shutdown of a Session.
type SessionConfig struct {
	VideoQueueCapacity int
	AudioQueueCapacity int
	MaxInFlight        int
	InterleaveWindow   time.Duration
	StopTimeout        time.Duration
	AudioLossPolicy    AudioLossPolicy

	// Clock is shared with the producers. A new one is created when nil.
	Clock  *Clock
	Logger *zap.Logger
}

// DefaultSessionConfig returns the default queue and timing parameters.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		VideoQueueCapacity: DefaultVideoQueueCapacity,
		AudioQueueCapacity: DefaultAudioQueueCapacity,
		MaxInFlight:        DefaultMaxInFlight,
		InterleaveWindow:   DefaultInterleaveWindow,
		StopTimeout:        DefaultStopTimeout,
	}
}

func (c *SessionConfig) applyDefaults() {
	d := DefaultSessionConfig()
	if c.VideoQueueCapacity <= 0 {
		c.VideoQueueCapacity = d.VideoQueueCapacity
	}
	if c.AudioQueueCapacity <= 0 {
		c.AudioQueueCapacity = d.AudioQueueCapacity
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = d.MaxInFlight
	}
	if c.InterleaveWindow <= 0 {
		c.InterleaveWindow = d.InterleaveWindow
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = d.StopTimeout
	}
	if c.Clock == nil {
		c.Clock = NewClock()
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// Result is the terminal outcome of a Session.
type Result struct {
	State    SessionState
	Err      error
	Stats    SessionStats
	Duration time.Duration

	// AudioLost is set when the audio device disappeared and recording
	// continued video-only. AudioLostAt is the end of the last audio sample.
	AudioLost   bool
	AudioLostAt time.Duration
}

// Session drives the encoders from the two staging queues and writes the
// output. Producers call EnqueueVideo and EnqueueAudio; a consumption loop
// merges the queues and an encode worker completes the submissions.
type Session struct {
	cfg   SessionConfig
	clock *Clock
	log   *zap.Logger

	video VideoEncoder
	audio AudioEncoder
	out   *GuardedOutput

	videoQ *RingBuffer[StagedSample]
	audioQ *RingBuffer[StagedSample]

	videoStamp   streamStamper
	audioStamp   streamStamper
	lastAudioEnd atomic.Int64

	state    stateMachine
	counters sessionCounters
	worker   *encodeWorker

	stopOnce  sync.Once
	stopTimer *time.Timer
	timeout   chan struct{} // closed when StopTimeout elapses
	cancel    context.CancelFunc

	mu          sync.Mutex
	timedOut    bool
	finishing   bool
	sourceErr   error
	audioLost   bool
	audioLostAt time.Duration

	done   chan struct{}
	result Result
}

// NewSession creates an idle session around open encoders and an open
// output. audio may be nil for a video-only recording. The session owns all
// three from here on and closes them when it ends.
func NewSession(video VideoEncoder, audio AudioEncoder, out OutputTarget, cfg SessionConfig) (*Session, error) {
	if video == nil || out == nil {
		return nil, fmt.Errorf("%w: session needs a video encoder and an output", ErrInvalidConfig)
	}
	cfg.applyDefaults()

	s := &Session{
		cfg:     cfg,
		clock:   cfg.Clock,
		log:     cfg.Logger.Named("session"),
		video:   video,
		audio:   audio,
		out:     NewGuardedOutput(out),
		timeout: make(chan struct{}),
		done:    make(chan struct{}),
	}
	s.state.onChange = func(from, to SessionState) {
		s.log.Info("state changed", zap.Stringer("from", from), zap.Stringer("to", to))
	}
	s.videoQ = NewRingBuffer(cfg.VideoQueueCapacity, OverflowDropOldest, s.onVideoEvicted)
	s.audioQ = NewRingBuffer[StagedSample](cfg.AudioQueueCapacity, OverflowBlock, nil)
	if audio == nil {
		s.audioQ.Close()
	}
	s.log.Debug("queues ready",
		zap.Int("video_capacity", s.videoQ.Cap()),
		zap.Stringer("video_overflow", s.videoQ.Policy()),
		zap.Int("audio_capacity", s.audioQ.Cap()),
		zap.Stringer("audio_overflow", s.audioQ.Policy()))
	s.worker = newEncodeWorker(video, audio, s.out, cfg.MaxInFlight, &s.counters, s.log)
	return s, nil
}

func (s *Session) onVideoEvicted(v StagedSample) {
	v.Release()
	n := s.counters.videoDropped.Add(1)
	s.log.Debug("video frame dropped",
		zap.Duration("timestamp", v.Timestamp),
		zap.Uint64("dropped_total", n))
}

// Clock returns the clock producers stamp samples with.
func (s *Session) Clock() *Clock { return s.clock }

// State returns the current lifecycle state.
func (s *Session) State() SessionState { return s.state.load() }

// Done is closed once the session reached a terminal state.
func (s *Session) Done() <-chan struct{} { return s.done }

// HasAudio reports whether the session was created with an audio encoder.
func (s *Session) HasAudio() bool { return s.audio != nil }

// Start launches the encode worker and the consumption loop. Cancelling ctx
// behaves like Stop.
func (s *Session) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Lock()
	err := s.state.transition(StateIdle, StateStarting)
	if err == nil {
		s.cancel = cancel
	}
	s.mu.Unlock()
	if err != nil {
		cancel()
		return err
	}

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return s.worker.run(gctx) })
	g.Go(func() error { return s.loop(gctx) })

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.done:
		}
	}()
	waitErr := make(chan error, 1)
	go func() {
		waitErr <- g.Wait()
	}()
	go s.finish(waitErr)
	return nil
}

// loop is the consumption loop: merge, admit, submit.
func (s *Session) loop(ctx context.Context) error {
	defer close(s.worker.jobs)

	select {
	case <-s.worker.ready:
	case <-ctx.Done():
		return ctx.Err()
	}

	m := newMerger(s.videoQ, s.audioQ, s.cfg.InterleaveWindow)
	m.reordered = &s.counters.reordered
	defer m.release()

	first := true
	for {
		sample, err := m.next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if first {
			first = false
			// A concurrent Stop may already have moved Starting to Stopping.
			_ = s.state.transition(StateStarting, StateRunning)
		}

		if err := s.worker.sem.Acquire(ctx, 1); err != nil {
			sample.Release()
			return err
		}
		s.counters.submitted(sample)
		select {
		case s.worker.jobs <- encodeJob{sample: sample}:
		case <-ctx.Done():
			sample.Release()
			return ctx.Err()
		}
	}

	// Both queues are closed and drained: only a stop gets here.
	select {
	case s.worker.jobs <- encodeJob{flush: true}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EnqueueVideo hands a processed frame to the session. The sample's
// timestamp is made non-decreasing for the stream before it is queued. On
// error the sample is released; ErrQueueClosed marks a late delivery.
func (s *Session) EnqueueVideo(ctx context.Context, v *VideoSample) error {
	ts, seq := s.videoStamp.stamp(v.Frame.Timestamp)
	v.Frame.Timestamp = ts
	err := s.videoQ.Push(ctx, StagedSample{Stream: StreamVideo, Timestamp: ts, Seq: seq, Video: v})
	if err != nil {
		v.Release()
		if errors.Is(err, ErrQueueClosed) {
			s.counters.lateDeliveries.Add(1)
		}
		return err
	}
	return nil
}

// EnqueueAudio hands PCM to the session. Under the block policy this waits
// while the audio queue is full.
func (s *Session) EnqueueAudio(ctx context.Context, a *AudioSample) error {
	ts, seq := s.audioStamp.stamp(a.Samples.Timestamp)
	a.Samples.Timestamp = ts
	err := s.audioQ.Push(ctx, StagedSample{Stream: StreamAudio, Timestamp: ts, Seq: seq, Audio: a})
	if err != nil {
		if errors.Is(err, ErrQueueClosed) {
			s.counters.lateDeliveries.Add(1)
		}
		return err
	}
	s.lastAudioEnd.Store(int64(ts + a.Samples.Duration()))
	return nil
}

// RecordPacedFrame counts a capture the frame pacer skipped.
func (s *Session) RecordPacedFrame() {
	s.counters.videoPaced.Add(1)
}

// Stop requests a graceful stop: both queues close, queued samples drain in
// order, the encoders flush and the output is finalized. The drain must end
// within StopTimeout. Stop is idempotent and does not wait; use Wait.
func (s *Session) Stop() error {
	if s.state.load() == StateIdle {
		return fmt.Errorf("%w: stop before start", ErrInvalidState)
	}
	s.stopOnce.Do(func() {
		s.videoQ.Close()
		s.audioQ.Close()
		for {
			cur := s.state.load()
			if cur != StateStarting && cur != StateRunning {
				break
			}
			if s.state.transition(cur, StateStopping) == nil {
				break
			}
		}
		s.mu.Lock()
		s.stopTimer = time.AfterFunc(s.cfg.StopTimeout, s.onStopTimeout)
		s.mu.Unlock()
	})
	return nil
}

// onStopTimeout runs on the stop timer. It has no effect once finish has
// begun; Timer.Stop does not wait for a callback already running.
func (s *Session) onStopTimeout() {
	s.mu.Lock()
	if s.finishing {
		s.mu.Unlock()
		return
	}
	s.timedOut = true
	cancel := s.cancel
	s.mu.Unlock()

	s.log.Error("stop timed out", zap.Duration("timeout", s.cfg.StopTimeout))
	s.state.fail()
	cancel()
	close(s.timeout)
}

// SourceLost reports a source failure. ErrCaptureLost stops the session with
// that error. ErrAudioDeviceLost follows the configured AudioLossPolicy.
func (s *Session) SourceLost(err error) {
	if errors.Is(err, ErrAudioDeviceLost) && s.cfg.AudioLossPolicy == AudioLossVideoOnly {
		s.mu.Lock()
		first := !s.audioLost
		s.audioLost = true
		s.audioLostAt = time.Duration(s.lastAudioEnd.Load())
		at := s.audioLostAt
		s.mu.Unlock()
		if first {
			s.log.Warn("audio device lost, continuing video-only",
				zap.Error(err), zap.Duration("at", at))
		}
		s.audioQ.Close()
		return
	}

	s.mu.Lock()
	if s.sourceErr == nil {
		s.sourceErr = err
	}
	s.mu.Unlock()
	s.log.Warn("source lost, stopping", zap.Error(err))
	if s.state.load() == StateIdle {
		return
	}
	s.Stop()
}

// Wait blocks until the session ends and returns its result.
func (s *Session) Wait() Result {
	<-s.done
	return s.result
}

// Stats returns a snapshot of the live counters.
func (s *Session) Stats() SessionStats {
	st := s.counters.snapshot(s.clock.Clamped())
	st.VideoQueued = s.videoQ.Pushed()
	st.AudioQueued = s.audioQ.Pushed()
	return st
}

// stopGrace is how long a timed-out session waits for its goroutines to
// observe cancellation before it gives up on them.
const stopGrace = 100 * time.Millisecond

func (s *Session) finish(waitErr <-chan error) {
	var runErr error
	abandoned := false
	select {
	case runErr = <-waitErr:
	case <-s.timeout:
		select {
		case runErr = <-waitErr:
		case <-time.After(stopGrace):
			abandoned = true
		}
	}

	s.mu.Lock()
	s.finishing = true
	if s.stopTimer != nil {
		s.stopTimer.Stop()
	}
	timedOut := s.timedOut
	cancel := s.cancel
	s.mu.Unlock()
	cancel()

	if timedOut {
		runErr = fmt.Errorf("%w: %w", ErrStopTimeout, ErrEncoderFailure)
	}

	var teardown *multierror.Error
	if abandoned {
		// The worker is stuck inside an encoder call. Encoders and output
		// are closed once it returns.
		s.log.Warn("encoder still busy, deferring teardown")
		go func() {
			<-waitErr
			if err := s.teardown().ErrorOrNil(); err != nil {
				s.log.Warn("deferred teardown failed", zap.Error(err))
			}
		}()
	} else {
		teardown = s.teardown()
	}

	if runErr == nil && teardown.ErrorOrNil() != nil {
		runErr = teardown.ErrorOrNil()
		teardown = nil
	}

	s.mu.Lock()
	sourceErr := s.sourceErr
	audioLost, audioLostAt := s.audioLost, s.audioLostAt
	s.mu.Unlock()

	var resultErr error
	if runErr != nil {
		s.state.fail()
		resultErr = runErr
		if teardown != nil && len(teardown.Errors) > 0 {
			resultErr = multierror.Append(runErr, teardown.Errors...)
		}
		s.log.Error("session failed", zap.Error(resultErr))
	} else {
		if err := s.state.transition(StateStopping, StateFinalized); err != nil {
			s.state.fail()
			resultErr = err
		} else {
			resultErr = sourceErr
		}
	}

	stats := s.Stats()
	s.result = Result{
		State:       s.state.load(),
		Err:         resultErr,
		Stats:       stats,
		Duration:    stats.Duration(),
		AudioLost:   audioLost,
		AudioLostAt: audioLostAt,
	}
	s.log.Info("session ended",
		zap.Stringer("state", s.result.State),
		zap.Duration("duration", s.result.Duration),
		zap.Uint64("video_submitted", stats.VideoSubmitted),
		zap.Uint64("audio_submitted", stats.AudioSubmitted),
		zap.Uint64("video_dropped", stats.VideoDropped),
		zap.Uint64("late_deliveries", stats.LateDeliveries))
	close(s.done)
}

// teardown releases queued samples and closes the encoders and the output.
// It runs after the loop and the worker have exited.
func (s *Session) teardown() *multierror.Error {
	for job := range s.worker.jobs {
		job.sample.Release()
	}
	s.videoQ.Close()
	s.audioQ.Close()
	if n := discard(s.videoQ) + discard(s.audioQ); n > 0 {
		s.log.Debug("discarded queued samples", zap.Int("count", n))
	}

	var errs *multierror.Error
	if err := s.video.Close(); err != nil {
		errs = multierror.Append(errs, encoderFailure("close video", err))
	}
	if s.audio != nil {
		if err := s.audio.Close(); err != nil {
			errs = multierror.Append(errs, encoderFailure("close audio", err))
		}
	}
	if err := s.out.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	return errs
}

// discard empties a closed queue without counting drops.
func discard(q *RingBuffer[StagedSample]) int {
	return q.Drain(func(v StagedSample) { v.Release() })
}
