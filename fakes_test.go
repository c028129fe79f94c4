package screenrec

import (
	"errors"
	"sync"
	"time"
)

var errFake = errors.New("fake failure")

// submissionLog records what the encoders saw, across both streams, in the
// order the encode worker handed it over.
type submissionLog struct {
	mu      sync.Mutex
	entries []StagedSample
}

func (l *submissionLog) add(s Stream, ts time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, StagedSample{Stream: s, Timestamp: ts})
}

func (l *submissionLog) snapshot() []StagedSample {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]StagedSample(nil), l.entries...)
}

type fakeVideoEncoder struct {
	log     *submissionLog
	failAt  int           // 1-based frame index that fails; 0 never fails
	gate    chan struct{} // when set, Encode waits for it to close
	entered chan struct{}

	mu        sync.Mutex
	frames    int
	flushed   bool
	closed    int
	enterOnce sync.Once
}

func (e *fakeVideoEncoder) Encode(frame *VideoFrame) (*EncodedFrame, error) {
	if e.entered != nil {
		e.enterOnce.Do(func() { close(e.entered) })
	}
	if e.gate != nil {
		<-e.gate
	}
	e.mu.Lock()
	e.frames++
	n := e.frames
	e.mu.Unlock()
	if e.failAt > 0 && n == e.failAt {
		return nil, errFake
	}
	if e.log != nil {
		e.log.add(StreamVideo, frame.Timestamp)
	}
	ft := FrameTypeDelta
	if n == 1 {
		ft = FrameTypeKey
	}
	return &EncodedFrame{
		Data:      []byte{0x9d, 0x01, 0x2a, byte(n)},
		FrameType: ft,
		Timestamp: frame.Timestamp,
		Duration:  frame.Duration,
	}, nil
}

func (e *fakeVideoEncoder) Flush() ([]*EncodedFrame, error) {
	e.mu.Lock()
	e.flushed = true
	e.mu.Unlock()
	return nil, nil
}

func (e *fakeVideoEncoder) Provider() Provider { return ProviderAuto }
func (e *fakeVideoEncoder) Config() VideoEncoderConfig {
	return VideoEncoderConfig{Codec: VideoCodecVP8}
}
func (e *fakeVideoEncoder) Codec() VideoCodec { return VideoCodecVP8 }
func (e *fakeVideoEncoder) Stats() EncoderStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return EncoderStats{FramesEncoded: uint64(e.frames)}
}

func (e *fakeVideoEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed++
	return nil
}

func (e *fakeVideoEncoder) closeCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

type fakeAudioEncoder struct {
	log *submissionLog

	mu     sync.Mutex
	chunks int
	closed int
}

func (e *fakeAudioEncoder) Encode(samples *AudioSamples) ([]*EncodedAudio, error) {
	e.mu.Lock()
	e.chunks++
	e.mu.Unlock()
	if e.log != nil {
		e.log.add(StreamAudio, samples.Timestamp)
	}
	return []*EncodedAudio{{
		Data:       []byte{0xfc, 0xff, 0xfe},
		Timestamp:  samples.Timestamp,
		Duration:   samples.Duration(),
		SampleRate: samples.SampleRate,
	}}, nil
}

func (e *fakeAudioEncoder) Flush() ([]*EncodedAudio, error) { return nil, nil }
func (e *fakeAudioEncoder) Provider() Provider              { return ProviderAuto }
func (e *fakeAudioEncoder) Config() AudioEncoderConfig {
	return DefaultAudioEncoderConfig(AudioCodecOpus)
}
func (e *fakeAudioEncoder) Codec() AudioCodec { return AudioCodecOpus }
func (e *fakeAudioEncoder) Stats() AudioEncoderStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return AudioEncoderStats{FramesEncoded: uint64(e.chunks)}
}

func (e *fakeAudioEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed++
	return nil
}

type fakeOutput struct {
	failWrites bool

	mu     sync.Mutex
	video  []time.Duration
	audio  []time.Duration
	closed int
}

func (o *fakeOutput) WriteVideo(frame *EncodedFrame) error {
	if o.failWrites {
		return errFake
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.video = append(o.video, frame.Timestamp)
	return nil
}

func (o *fakeOutput) WriteAudio(packet *EncodedAudio) error {
	if o.failWrites {
		return errFake
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.audio = append(o.audio, packet.Timestamp)
	return nil
}

func (o *fakeOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed++
	return nil
}

func (o *fakeOutput) Paths() []string { return nil }

func (o *fakeOutput) counts() (video, audio, closed int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.video), len(o.audio), o.closed
}

func testVideoSample(ts, dur time.Duration) *VideoSample {
	return &VideoSample{Frame: VideoFrame{Width: 16, Height: 16, Timestamp: ts, Duration: dur}}
}

func testAudioSample(ts, dur time.Duration) *AudioSample {
	const rate, channels = 48000, 2
	n := int(dur * rate / time.Second)
	return &AudioSample{Samples: AudioSamples{
		Data:        make([]byte, n*channels*2),
		SampleRate:  rate,
		Channels:    channels,
		SampleCount: n,
		Format:      AudioFormatS16,
		Timestamp:   ts,
	}}
}
