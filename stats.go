package screenrec

import (
	"sync"
	"sync/atomic"
	"time"
)

// SessionStats is a snapshot of session counters.
type SessionStats struct {
	VideoQueued    uint64 // Accepted into the video queue
	AudioQueued    uint64
	VideoSubmitted uint64
	AudioSubmitted uint64
	VideoCompleted uint64 // Encoded packets written
	AudioCompleted uint64

	VideoDropped   uint64 // Evicted from the video queue on overflow
	VideoPaced     uint64 // Skipped by the frame pacer
	LateDeliveries uint64 // Arrived after the queues closed
	ClampedSamples uint64 // Stamped before the clock origin
	Reordered      uint64 // Restamped to keep submission order after a stall

	BytesWritten uint64

	FirstTimestamp time.Duration
	LastTimestamp  time.Duration
	LastDuration   time.Duration
}

// Duration is the span covered by submitted samples: first to last
// timestamp plus the last sample's own interval.
func (s SessionStats) Duration() time.Duration {
	if s.VideoSubmitted+s.AudioSubmitted == 0 {
		return 0
	}
	return s.LastTimestamp - s.FirstTimestamp + s.LastDuration
}

// sessionCounters is the live, concurrently updated form of SessionStats.
type sessionCounters struct {
	videoSubmitted atomic.Uint64
	audioSubmitted atomic.Uint64
	videoCompleted atomic.Uint64
	audioCompleted atomic.Uint64
	videoDropped   atomic.Uint64
	videoPaced     atomic.Uint64
	lateDeliveries atomic.Uint64
	reordered      atomic.Uint64
	bytesWritten   atomic.Uint64

	mu       sync.Mutex
	started  bool
	first    time.Duration
	last     time.Duration
	lastSpan time.Duration
}

// submitted records one sample handed to the encoder.
func (c *sessionCounters) submitted(s StagedSample) {
	if s.Stream == StreamVideo {
		c.videoSubmitted.Add(1)
	} else {
		c.audioSubmitted.Add(1)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		c.started = true
		c.first = s.Timestamp
	}
	end := s.Timestamp + s.Duration()
	if s.Timestamp < c.first {
		c.first = s.Timestamp
	}
	if end >= c.last+c.lastSpan {
		c.last = s.Timestamp
		c.lastSpan = s.Duration()
	}
}

func (c *sessionCounters) snapshot(clamped uint64) SessionStats {
	c.mu.Lock()
	first, last, span := c.first, c.last, c.lastSpan
	c.mu.Unlock()
	return SessionStats{
		VideoSubmitted: c.videoSubmitted.Load(),
		AudioSubmitted: c.audioSubmitted.Load(),
		VideoCompleted: c.videoCompleted.Load(),
		AudioCompleted: c.audioCompleted.Load(),
		VideoDropped:   c.videoDropped.Load(),
		VideoPaced:     c.videoPaced.Load(),
		LateDeliveries: c.lateDeliveries.Load(),
		ClampedSamples: clamped,
		Reordered:      c.reordered.Load(),
		BytesWritten:   c.bytesWritten.Load(),
		FirstTimestamp: first,
		LastTimestamp:  last,
		LastDuration:   span,
	}
}
