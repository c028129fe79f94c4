package screenrec

import "time"

// Stream identifies one of the two media streams.
type Stream uint8

const (
	StreamVideo Stream = iota
	StreamAudio
)

func (s Stream) String() string {
	switch s {
	case StreamVideo:
		return "video"
	case StreamAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// VideoSample is an encoder-ready frame held in a pooled staging buffer.
type VideoSample struct {
	Frame VideoFrame
	buf   *StagingBuffer
}

// Release returns the staging buffer to its pool.
func (v *VideoSample) Release() {
	if v == nil || v.buf == nil {
		return
	}
	v.buf.release()
	v.buf = nil
}

// AudioSample is pipeline-owned PCM.
type AudioSample struct {
	Samples AudioSamples
}

// StagedSample is the unit moved through the staging queues: exactly one of
// Video or Audio is set, matching Stream.
type StagedSample struct {
	Stream    Stream
	Timestamp time.Duration // Relative to the clock origin
	Seq       uint64        // Strictly increasing within a stream
	Video     *VideoSample
	Audio     *AudioSample
}

// Before reports whether s is submitted ahead of o: earlier timestamp first,
// video ahead of audio on equal timestamps, then by sequence.
func (s StagedSample) Before(o StagedSample) bool {
	if s.Timestamp != o.Timestamp {
		return s.Timestamp < o.Timestamp
	}
	if s.Stream != o.Stream {
		return s.Stream == StreamVideo
	}
	return s.Seq < o.Seq
}

// Duration returns the nominal play time of the payload.
func (s StagedSample) Duration() time.Duration {
	switch {
	case s.Video != nil:
		return s.Video.Frame.Duration
	case s.Audio != nil:
		return s.Audio.Samples.Duration()
	default:
		return 0
	}
}

// restamp moves the sample and its payload to ts.
func (s *StagedSample) restamp(ts time.Duration) {
	s.Timestamp = ts
	switch {
	case s.Video != nil:
		s.Video.Frame.Timestamp = ts
	case s.Audio != nil:
		s.Audio.Samples.Timestamp = ts
	}
}

// Release frees pooled resources held by the sample.
func (s StagedSample) Release() {
	if s.Video != nil {
		s.Video.Release()
	}
}

// streamStamper assigns sequence numbers for one stream and keeps its
// timestamps non-decreasing. Owned by a single producer.
type streamStamper struct {
	seq     uint64
	last    time.Duration
	started bool
}

func (s *streamStamper) stamp(ts time.Duration) (time.Duration, uint64) {
	if s.started && ts < s.last {
		ts = s.last
	}
	s.started = true
	s.last = ts
	s.seq++
	return ts, s.seq
}
