package screenrec

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// encodeJob is one unit of work for the encode worker: a sample, or the
// final flush.
type encodeJob struct {
	sample StagedSample
	flush  bool
}

// encodeWorker is the session's completion path. It encodes jobs in
// submission order, writes the packets to the output, returns staging
// buffers to their pool and releases one admission unit per sample.
type encodeWorker struct {
	video VideoEncoder
	audio AudioEncoder
	out   OutputTarget

	jobs     chan encodeJob
	sem      *semaphore.Weighted
	counters *sessionCounters
	ready    chan struct{}
	log      *zap.Logger
}

func newEncodeWorker(video VideoEncoder, audio AudioEncoder, out OutputTarget, maxInFlight int, counters *sessionCounters, log *zap.Logger) *encodeWorker {
	return &encodeWorker{
		video: video,
		audio: audio,
		out:   out,
		// One extra slot so the flush job never waits on admission.
		jobs:     make(chan encodeJob, maxInFlight+1),
		sem:      semaphore.NewWeighted(int64(maxInFlight)),
		counters: counters,
		ready:    make(chan struct{}),
		log:      log,
	}
}

// run processes jobs until the flush job completes, the job channel closes,
// or ctx is cancelled.
func (w *encodeWorker) run(ctx context.Context) error {
	close(w.ready)
	for {
		select {
		case job, ok := <-w.jobs:
			if !ok {
				return nil
			}
			if job.flush {
				return w.flush()
			}
			err := w.encode(job.sample)
			job.sample.Release()
			w.sem.Release(1)
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *encodeWorker) encode(s StagedSample) error {
	switch s.Stream {
	case StreamVideo:
		pkt, err := w.video.Encode(&s.Video.Frame)
		if err != nil {
			return encoderFailure("encode video", err)
		}
		if pkt == nil {
			return nil
		}
		return w.writeVideo(pkt)
	case StreamAudio:
		pkts, err := w.audio.Encode(&s.Audio.Samples)
		if err != nil {
			return encoderFailure("encode audio", err)
		}
		return w.writeAudio(pkts)
	}
	return nil
}

func (w *encodeWorker) flush() error {
	frames, err := w.video.Flush()
	if err != nil {
		return encoderFailure("flush video", err)
	}
	for _, f := range frames {
		if err := w.writeVideo(f); err != nil {
			return err
		}
	}
	if w.audio != nil {
		pkts, err := w.audio.Flush()
		if err != nil {
			return encoderFailure("flush audio", err)
		}
		if err := w.writeAudio(pkts); err != nil {
			return err
		}
	}
	w.log.Debug("encoders flushed",
		zap.Uint64("video_packets", w.counters.videoCompleted.Load()),
		zap.Uint64("audio_packets", w.counters.audioCompleted.Load()))
	return nil
}

func (w *encodeWorker) writeVideo(f *EncodedFrame) error {
	if err := w.out.WriteVideo(f); err != nil {
		return err
	}
	w.counters.videoCompleted.Add(1)
	w.counters.bytesWritten.Add(uint64(len(f.Data)))
	return nil
}

func (w *encodeWorker) writeAudio(pkts []*EncodedAudio) error {
	for _, p := range pkts {
		if err := w.out.WriteAudio(p); err != nil {
			return err
		}
		w.counters.audioCompleted.Add(1)
		w.counters.bytesWritten.Add(uint64(len(p.Data)))
	}
	return nil
}
