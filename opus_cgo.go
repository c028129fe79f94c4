//go:build cgo && !noopus

// Opus via libopus linked directly through gopkg.in/hraban/opus.v2.

package screenrec

import (
	"fmt"

	"gopkg.in/hraban/opus.v2"
)

type hrabanOpusBackend struct {
	enc *opus.Encoder
}

func (b *hrabanOpusBackend) encode(pcm []int16, out []byte) (int, error) {
	n, err := b.enc.Encode(pcm, out)
	if err != nil {
		return 0, fmt.Errorf("opus encode: %w", err)
	}
	return n, nil
}

func (b *hrabanOpusBackend) setBitrate(bps int) error {
	return b.enc.SetBitrate(bps)
}

func (b *hrabanOpusBackend) close() error {
	b.enc = nil
	return nil
}

// NewOpusEncoder creates an Opus encoder backed by cgo libopus.
func NewOpusEncoder(config AudioEncoderConfig) (*OpusEncoder, error) {
	if err := validateOpusConfig(&config); err != nil {
		return nil, err
	}
	enc, err := opus.NewEncoder(config.SampleRate, config.Channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("failed to create Opus encoder: %w", err)
	}
	if err := enc.SetBitrate(config.BitrateBps); err != nil {
		return nil, fmt.Errorf("failed to set Opus bitrate: %w", err)
	}
	return newOpusEncoder(config, ProviderHraban, &hrabanOpusBackend{enc: enc}), nil
}

// IsOpusAvailable reports whether an Opus encoder can be created.
func IsOpusAvailable() bool {
	return true
}

func init() {
	setProviderAvailable(ProviderHraban)
	registerAudioEncoder(AudioCodecOpus, ProviderHraban, func(config AudioEncoderConfig) (AudioEncoder, error) {
		return NewOpusEncoder(config)
	})
}
