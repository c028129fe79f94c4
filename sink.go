package screenrec

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
)

// OutputTarget is the container sink for encoded samples. The session is its
// only writer and closes it exactly once.
type OutputTarget interface {
	WriteVideo(frame *EncodedFrame) error
	WriteAudio(packet *EncodedAudio) error
	Close() error
	// Paths lists the files the target writes.
	Paths() []string
}

// Container selects the on-disk output format.
type Container int

const (
	ContainerAuto       Container = iota // Inferred from the output extension
	ContainerWebM                        // Single .webm file, VP8/VP9 + Opus
	ContainerElementary                  // <base>.ivf video + <base>.ogg audio
)

func (c Container) String() string {
	switch c {
	case ContainerWebM:
		return "webm"
	case ContainerElementary:
		return "ivf+ogg"
	default:
		return "auto"
	}
}

// ParseContainer parses a container name as used in configuration.
func ParseContainer(s string) (Container, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return ContainerAuto, nil
	case "webm", "mkv":
		return ContainerWebM, nil
	case "ivf+ogg", "ivf", "elementary":
		return ContainerElementary, nil
	default:
		return ContainerAuto, fmt.Errorf("%w: unknown container %q", ErrInvalidConfig, s)
	}
}

// ContainerForPath infers the container from the file extension.
func ContainerForPath(path string) (Container, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".webm", ".mkv":
		return ContainerWebM, nil
	case ".ivf":
		return ContainerElementary, nil
	default:
		return ContainerAuto, fmt.Errorf("%w: cannot infer container from %q", ErrInvalidConfig, path)
	}
}

// OutputOptions describes the streams written to an output.
type OutputOptions struct {
	Container  Container
	VideoCodec VideoCodec
	Width      int
	Height     int
	FPS        int

	Audio      bool
	AudioCodec AudioCodec
	SampleRate int
	Channels   int

	// MTU bounds RTP packets for the elementary writers.
	MTU int
}

// OpenOutput creates the files for path and returns a close-once target.
func OpenOutput(path string, opts OutputOptions) (OutputTarget, error) {
	if opts.Container == ContainerAuto {
		c, err := ContainerForPath(path)
		if err != nil {
			return nil, err
		}
		opts.Container = c
	}

	var (
		target OutputTarget
		err    error
	)
	switch opts.Container {
	case ContainerWebM:
		target, err = newWebMOutput(path, opts)
	case ContainerElementary:
		target, err = newElementaryOutput(path, opts)
	default:
		return nil, fmt.Errorf("%w: container %s", ErrInvalidConfig, opts.Container)
	}
	if err != nil {
		return nil, err
	}
	return NewGuardedOutput(target), nil
}

// RemoveOutputFiles deletes the files a target wrote. Missing files are
// ignored.
func RemoveOutputFiles(target OutputTarget) error {
	var result *multierror.Error
	for _, p := range target.Paths() {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// GuardedOutput wraps an OutputTarget so Close runs once and every failure is
// classified as ErrOutputWriteFailure.
type GuardedOutput struct {
	inner OutputTarget

	closeOnce sync.Once
	closeErr  error
	closed    atomic.Bool
	bytes     atomic.Uint64
}

// NewGuardedOutput wraps target.
func NewGuardedOutput(target OutputTarget) *GuardedOutput {
	if g, ok := target.(*GuardedOutput); ok {
		return g
	}
	return &GuardedOutput{inner: target}
}

// WriteVideo implements OutputTarget.
func (g *GuardedOutput) WriteVideo(frame *EncodedFrame) error {
	if g.closed.Load() {
		return outputFailure("write video", os.ErrClosed)
	}
	if err := g.inner.WriteVideo(frame); err != nil {
		return classifyOutput("write video", err)
	}
	g.bytes.Add(uint64(len(frame.Data)))
	return nil
}

// WriteAudio implements OutputTarget.
func (g *GuardedOutput) WriteAudio(packet *EncodedAudio) error {
	if g.closed.Load() {
		return outputFailure("write audio", os.ErrClosed)
	}
	if err := g.inner.WriteAudio(packet); err != nil {
		return classifyOutput("write audio", err)
	}
	g.bytes.Add(uint64(len(packet.Data)))
	return nil
}

// Close implements OutputTarget. Later calls return the first result.
func (g *GuardedOutput) Close() error {
	g.closeOnce.Do(func() {
		g.closed.Store(true)
		if err := g.inner.Close(); err != nil {
			g.closeErr = classifyOutput("close", err)
		}
	})
	return g.closeErr
}

// Paths implements OutputTarget.
func (g *GuardedOutput) Paths() []string { return g.inner.Paths() }

// BytesWritten returns the payload bytes accepted so far.
func (g *GuardedOutput) BytesWritten() uint64 { return g.bytes.Load() }

func classifyOutput(op string, err error) error {
	if errors.Is(err, ErrOutputWriteFailure) {
		return err
	}
	return outputFailure(op, err)
}
