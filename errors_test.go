package screenrec

import (
	"errors"
	"fmt"
	"testing"

	"github.com/hashicorp/go-multierror"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"capture lost", fmt.Errorf("display 1: %w", ErrCaptureLost), ExitCaptureUnavailable},
		{"encoder", encoderFailure("encode video", errors.New("boom")), ExitEncodeFailure},
		{"output", outputFailure("write", errors.New("disk full")), ExitEncodeFailure},
		{"stop timeout", fmt.Errorf("%w: %w", ErrStopTimeout, ErrEncoderFailure), ExitEncodeFailure},
		{"audio lost", ErrAudioDeviceLost, ExitAudioDeviceLost},
		{"config", ErrInvalidConfig, ExitFailure},
		{"aggregated", multierror.Append(errors.New("a"), ErrCaptureLost), ExitCaptureUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestFailureWrappersKeepCause(t *testing.T) {
	err := encoderFailure("flush video", errors.New("native error -2"))
	if !errors.Is(err, ErrEncoderFailure) {
		t.Errorf("%v does not match ErrEncoderFailure", err)
	}
	if got := err.Error(); got != "encoder failure: flush video: native error -2" {
		t.Errorf("Error() = %q", got)
	}
}
