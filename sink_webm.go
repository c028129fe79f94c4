package screenrec

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/at-wat/ebml-go/mkvcore"
	"github.com/at-wat/ebml-go/webm"
	"github.com/hashicorp/go-multierror"
)

const (
	webmTrackVideo = 1
	webmTrackAudio = 2

	webmTrackTypeVideo = 1
	webmTrackTypeAudio = 2

	// Decoder warm-up after a seek, as recommended for Opus in Matroska.
	opusSeekPreRoll = 80 * time.Millisecond

	// Upper bound for the block writer to drain after its tracks close.
	webmFlushTimeout = 5 * time.Second
)

type writeSeekCloser interface {
	io.WriteSeeker
	io.Closer
}

// webmFile sits between the block writer and the file. ebml-go marshals on
// its own goroutine and gives up on the first I/O error, which would leave
// Write blocked forever. webmFile keeps the first error for the caller and
// reports success to the block writer so it keeps draining.
type webmFile struct {
	f writeSeekCloser

	mu     sync.Mutex
	err    error
	closed chan struct{}
	once   sync.Once
}

func newWebMFile(f writeSeekCloser) *webmFile {
	return &webmFile{f: f, closed: make(chan struct{})}
}

func (w *webmFile) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return len(p), nil
	}
	if _, err := w.f.Write(p); err != nil {
		w.err = err
	}
	return len(p), nil
}

func (w *webmFile) Seek(offset int64, whence int) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return offset, nil
	}
	n, err := w.f.Seek(offset, whence)
	if err != nil {
		w.err = err
		return offset, nil
	}
	return n, nil
}

func (w *webmFile) Close() error {
	var err error
	w.once.Do(func() {
		err = w.f.Close()
		close(w.closed)
	})
	return err
}

func (w *webmFile) fail(err error) {
	w.mu.Lock()
	if w.err == nil {
		w.err = err
	}
	w.mu.Unlock()
}

func (w *webmFile) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// webmOutput writes one WebM file with a video track and an optional Opus
// track. Blocks are timestamped in milliseconds, the default timecode scale.
type webmOutput struct {
	path  string
	file  *webmFile
	video webm.BlockWriteCloser
	audio webm.BlockWriteCloser
}

func newWebMOutput(path string, opts OutputOptions) (*webmOutput, error) {
	tracks, err := webmTracks(opts)
	if err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, outputFailure("create", err)
	}
	out, err := newWebMWriter(f, path, tracks, opts.Audio)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	return out, nil
}

func webmTracks(opts OutputOptions) ([]webm.TrackEntry, error) {
	if opts.VideoCodec.MatroskaID() == "" {
		return nil, fmt.Errorf("%w: webm video %s", ErrCodecNotSupported, opts.VideoCodec)
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("%w: webm needs output dimensions", ErrInvalidConfig)
	}

	tracks := []webm.TrackEntry{{
		Name:        "Video",
		TrackNumber: webmTrackVideo,
		TrackUID:    uint64(webmTrackVideo),
		CodecID:     opts.VideoCodec.MatroskaID(),
		TrackType:   webmTrackTypeVideo,
		Video: &webm.Video{
			PixelWidth:  uint64(opts.Width),
			PixelHeight: uint64(opts.Height),
		},
	}}
	if opts.FPS > 0 {
		tracks[0].DefaultDuration = uint64(time.Second / time.Duration(opts.FPS))
	}
	if opts.Audio {
		if opts.AudioCodec.MatroskaID() == "" {
			return nil, fmt.Errorf("%w: webm audio %s", ErrCodecNotSupported, opts.AudioCodec)
		}
		tracks = append(tracks, webm.TrackEntry{
			Name:         "Audio",
			TrackNumber:  webmTrackAudio,
			TrackUID:     uint64(webmTrackAudio),
			CodecID:      opts.AudioCodec.MatroskaID(),
			CodecPrivate: OpusHead(opts.Channels, opts.SampleRate),
			SeekPreRoll:  uint64(opusSeekPreRoll),
			TrackType:    webmTrackTypeAudio,
			Audio: &webm.Audio{
				SamplingFrequency: float64(opts.SampleRate),
				Channels:          uint64(opts.Channels),
			},
		})
	}

	return tracks, nil
}

func newWebMWriter(f writeSeekCloser, path string, tracks []webm.TrackEntry, audio bool) (*webmOutput, error) {
	file := newWebMFile(f)
	writers, err := webm.NewSimpleBlockWriter(file, tracks,
		mkvcore.WithOnErrorHandler(file.fail),
		mkvcore.WithOnFatalHandler(file.fail))
	if err != nil {
		return nil, outputFailure("webm header", err)
	}

	out := &webmOutput{path: path, file: file, video: writers[0]}
	if audio {
		out.audio = writers[1]
	}
	return out, nil
}

// WriteVideo queues a block. Payloads are copied: the block writer marshals
// them later and encoders reuse their output buffers.
func (o *webmOutput) WriteVideo(frame *EncodedFrame) error {
	if err := o.file.Err(); err != nil {
		return err
	}
	data := append([]byte(nil), frame.Data...)
	_, err := o.video.Write(frame.IsKeyframe(), frame.Timestamp.Milliseconds(), data)
	return err
}

func (o *webmOutput) WriteAudio(packet *EncodedAudio) error {
	if o.audio == nil {
		return fmt.Errorf("%w: no audio track", ErrInvalidState)
	}
	if err := o.file.Err(); err != nil {
		return err
	}
	data := append([]byte(nil), packet.Data...)
	_, err := o.audio.Write(true, packet.Timestamp.Milliseconds(), data)
	return err
}

// Close finalizes every track and waits for the block writer to flush and
// close the file.
func (o *webmOutput) Close() error {
	var result *multierror.Error
	if err := o.video.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if o.audio != nil {
		if err := o.audio.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}

	t := time.NewTimer(webmFlushTimeout)
	defer t.Stop()
	select {
	case <-o.file.closed:
	case <-t.C:
		result = multierror.Append(result, fmt.Errorf("webm writer did not flush within %v", webmFlushTimeout))
		o.file.Close()
	}
	if err := o.file.Err(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

func (o *webmOutput) Paths() []string { return []string{o.path} }
