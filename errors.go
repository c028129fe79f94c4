package screenrec

import (
	"errors"
	"fmt"
)

// Terminal error taxonomy. Callers classify with errors.Is.
var (
	ErrCaptureLost        = errors.New("capture lost")
	ErrAudioDeviceLost    = errors.New("audio device lost")
	ErrEncoderFailure     = errors.New("encoder failure")
	ErrOutputWriteFailure = errors.New("output write failure")
)

// Common errors
var (
	ErrQueueClosed       = errors.New("queue closed")
	ErrInvalidState      = errors.New("invalid session state")
	ErrStopTimeout       = errors.New("stop timed out")
	ErrNotSupported      = errors.New("not supported")
	ErrBufferTooSmall    = errors.New("buffer too small")
	ErrProviderNotFound  = errors.New("provider not available")
	ErrCodecNotSupported = errors.New("codec not supported by provider")
	ErrInvalidConfig     = errors.New("invalid config")
)

// Process exit codes derived from a session's terminal error.
const (
	ExitOK                 = 0
	ExitFailure            = 1
	ExitCaptureUnavailable = 2
	ExitEncodeFailure      = 3
	ExitAudioDeviceLost    = 4
)

// ExitCode maps a terminal error to a process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrCaptureLost):
		return ExitCaptureUnavailable
	case errors.Is(err, ErrEncoderFailure), errors.Is(err, ErrOutputWriteFailure):
		return ExitEncodeFailure
	case errors.Is(err, ErrAudioDeviceLost):
		return ExitAudioDeviceLost
	default:
		return ExitFailure
	}
}

func encoderFailure(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrEncoderFailure, op, err)
}

func outputFailure(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrOutputWriteFailure, op, err)
}
