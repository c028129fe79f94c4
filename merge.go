package screenrec

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"
)

// DefaultInterleaveWindow bounds how long one stream's head waits for the
// other stream before it is submitted alone.
const DefaultInterleaveWindow = 250 * time.Millisecond

// merger pops from the video and audio queues in submission order. It holds
// at most one head per stream. Only the consumption loop calls it.
//
// A stream that stays silent for a whole window is marked stalled and the
// other stream passes straight through until it delivers again. Samples that
// arrive behind what was already submitted are restamped to the last
// submitted timestamp, so the output never goes backwards.
type merger struct {
	video  *RingBuffer[StagedSample]
	audio  *RingBuffer[StagedSample]
	window time.Duration

	head     [2]StagedSample
	haveHead [2]bool
	drained  [2]bool
	stalled  [2]bool
	seen     [2]bool
	lastTS   [2]time.Duration

	emitted bool
	lastOut time.Duration

	// Counts restamped samples; may be nil.
	reordered *atomic.Uint64

	heldSince time.Time
	now       func() time.Time
}

func newMerger(video, audio *RingBuffer[StagedSample], window time.Duration) *merger {
	if window <= 0 {
		window = DefaultInterleaveWindow
	}
	return &merger{video: video, audio: audio, window: window, now: time.Now}
}

func (m *merger) queue(s Stream) *RingBuffer[StagedSample] {
	if s == StreamVideo {
		return m.video
	}
	return m.audio
}

// refill tops up the head for each stream that has none.
func (m *merger) refill() {
	for _, s := range [...]Stream{StreamVideo, StreamAudio} {
		if m.haveHead[s] || m.drained[s] {
			continue
		}
		v, ok, err := m.queue(s).TryPop()
		switch {
		case ok:
			m.head[s] = v
			m.haveHead[s] = true
			m.stalled[s] = false
		case errors.Is(err, ErrQueueClosed):
			m.drained[s] = true
		}
	}
}

func (m *merger) take(s Stream) StagedSample {
	v := m.head[s]
	m.head[s] = StagedSample{}
	m.haveHead[s] = false
	m.heldSince = time.Time{}

	if m.emitted && v.Timestamp < m.lastOut {
		v.restamp(m.lastOut)
		if m.reordered != nil {
			m.reordered.Add(1)
		}
	}
	m.emitted = true
	m.lastOut = v.Timestamp
	m.seen[s] = true
	m.lastTS[s] = v.Timestamp
	return v
}

// canPass reports whether the lone head of stream s may go without waiting
// for the other stream: it is stalled, or nothing it can still deliver
// would be ordered ahead of the head.
func (m *merger) canPass(s Stream) bool {
	o := other(s)
	if m.stalled[o] {
		return true
	}
	return m.seen[o] && m.head[s].Before(StagedSample{Stream: o, Timestamp: m.lastTS[o]})
}

func other(s Stream) Stream {
	if s == StreamVideo {
		return StreamAudio
	}
	return StreamVideo
}

// next returns the next sample to submit. It returns io.EOF once both queues
// are closed and drained.
func (m *merger) next(ctx context.Context) (StagedSample, error) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		m.refill()

		hv, ha := m.haveHead[StreamVideo], m.haveHead[StreamAudio]
		switch {
		case hv && ha:
			if m.head[StreamVideo].Before(m.head[StreamAudio]) {
				return m.take(StreamVideo), nil
			}
			return m.take(StreamAudio), nil
		case hv && m.drained[StreamAudio]:
			return m.take(StreamVideo), nil
		case ha && m.drained[StreamVideo]:
			return m.take(StreamAudio), nil
		case m.drained[StreamVideo] && m.drained[StreamAudio]:
			return StagedSample{}, io.EOF
		}

		// One stream has a head, or neither has; wait for the missing side.
		var expire <-chan time.Time
		if hv || ha {
			held := StreamVideo
			if ha {
				held = StreamAudio
			}
			if m.canPass(held) {
				return m.take(held), nil
			}
			if m.heldSince.IsZero() {
				m.heldSince = m.now()
			}
			remaining := m.window - m.now().Sub(m.heldSince)
			if remaining <= 0 {
				m.stalled[other(held)] = true
				return m.take(held), nil
			}
			if timer == nil {
				timer = time.NewTimer(remaining)
			} else {
				timer.Reset(remaining)
			}
			expire = timer.C
		}

		var vReady, aReady, vDone, aDone <-chan struct{}
		if !hv && !m.drained[StreamVideo] {
			vReady, vDone = m.video.Readable(), m.video.Done()
		}
		if !ha && !m.drained[StreamAudio] {
			aReady, aDone = m.audio.Readable(), m.audio.Done()
		}

		select {
		case <-vReady:
		case <-aReady:
		case <-vDone:
		case <-aDone:
		case <-expire:
		case <-ctx.Done():
			return StagedSample{}, ctx.Err()
		}
	}
}

// release frees held heads. Called when the loop exits early.
func (m *merger) release() {
	for _, s := range [...]Stream{StreamVideo, StreamAudio} {
		if m.haveHead[s] {
			m.take(s).Release()
		}
	}
}
