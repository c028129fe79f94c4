package screenrec

import "time"

// FramePacer keeps video on a 1/FPS grid by rejecting deliveries that arrive
// before the next slot. Owned by the video producer.
type FramePacer struct {
	period    time.Duration
	tolerance time.Duration
	next      time.Duration
	started   bool
	skipped   uint64
}

// NewFramePacer returns a pacer for fps; fps <= 0 accepts everything.
func NewFramePacer(fps int) *FramePacer {
	p := &FramePacer{}
	if fps > 0 {
		p.period = time.Second / time.Duration(fps)
		// deliveries within a quarter period of the slot count as on time
		p.tolerance = p.period / 4
	}
	return p
}

// Accept reports whether a frame at relative time ts should be kept.
func (p *FramePacer) Accept(ts time.Duration) bool {
	if p.period == 0 {
		return true
	}
	if !p.started {
		p.started = true
		p.next = ts + p.period
		return true
	}
	if ts+p.tolerance < p.next {
		p.skipped++
		return false
	}
	if ts < p.next {
		p.next += p.period
		return true
	}
	slots := (ts-p.next)/p.period + 1
	p.next += slots * p.period
	return true
}

// Skipped returns the number of rejected deliveries.
func (p *FramePacer) Skipped() uint64 {
	return p.skipped
}

// Period returns the frame interval.
func (p *FramePacer) Period() time.Duration {
	return p.period
}
