package screenrec

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"
)

// opusMaxPacket is the largest packet libopus will produce for one frame.
const opusMaxPacket = 4000

// opusBackend is the native encoder behind an OpusEncoder.
type opusBackend interface {
	encode(pcm []int16, out []byte) (int, error)
	setBitrate(bps int) error
	close() error
}

// OpusEncoder frames arbitrary PCM input into fixed-duration Opus packets.
type OpusEncoder struct {
	config   AudioEncoderConfig
	provider Provider
	backend  opusBackend

	frameSamples int // per channel
	frameDur     time.Duration

	pending   []int16
	pendingTS time.Duration
	scratch   []byte
	out       []byte

	stats AudioEncoderStats
	mu    sync.Mutex
}

func validateOpusConfig(config *AudioEncoderConfig) error {
	if config.SampleRate == 0 {
		config.SampleRate = 48000
	}
	if config.Channels == 0 {
		config.Channels = 2
	}
	if config.FrameSizeMs == 0 {
		config.FrameSizeMs = 20
	}
	if config.BitrateBps == 0 {
		config.BitrateBps = 128000
	}
	switch config.SampleRate {
	case 8000, 12000, 16000, 24000, 48000:
	default:
		return fmt.Errorf("%w: opus sample rate %d", ErrInvalidConfig, config.SampleRate)
	}
	if config.Channels != 1 && config.Channels != 2 {
		return fmt.Errorf("%w: opus channels %d", ErrInvalidConfig, config.Channels)
	}
	switch config.FrameSizeMs {
	case 10, 20, 40, 60:
	default:
		return fmt.Errorf("%w: opus frame size %dms", ErrInvalidConfig, config.FrameSizeMs)
	}
	return nil
}

func newOpusEncoder(config AudioEncoderConfig, provider Provider, backend opusBackend) *OpusEncoder {
	frameSamples := config.SampleRate * config.FrameSizeMs / 1000
	return &OpusEncoder{
		config:       config,
		provider:     provider,
		backend:      backend,
		frameSamples: frameSamples,
		frameDur:     time.Duration(config.FrameSizeMs) * time.Millisecond,
		pending:      make([]int16, 0, frameSamples*config.Channels*2),
		out:          make([]byte, opusMaxPacket),
	}
}

// Encode appends samples and returns every packet that became complete.
// Packet timestamps continue from the first buffered sample; the timeline is
// re-anchored whenever the buffer runs empty.
func (e *OpusEncoder) Encode(samples *AudioSamples) ([]*EncodedAudio, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.backend == nil {
		return nil, fmt.Errorf("encoder closed")
	}
	if samples.Channels != e.config.Channels || samples.SampleRate != e.config.SampleRate {
		return nil, fmt.Errorf("%w: got %dHz/%dch, encoder is %dHz/%dch", ErrInvalidConfig,
			samples.SampleRate, samples.Channels, e.config.SampleRate, e.config.Channels)
	}

	data := samples.Data
	if samples.Format == AudioFormatF32 {
		e.scratch = convertF32ToS16(e.scratch, data)
		data = e.scratch
	}

	if len(e.pending) == 0 {
		e.pendingTS = samples.Timestamp
	}
	for i := 0; i+1 < len(data); i += 2 {
		e.pending = append(e.pending, int16(binary.LittleEndian.Uint16(data[i:])))
	}

	var packets []*EncodedAudio
	frameLen := e.frameSamples * e.config.Channels
	for len(e.pending) >= frameLen {
		pkt, err := e.encodeFrame(e.pending[:frameLen])
		if err != nil {
			return packets, err
		}
		packets = append(packets, pkt)
		n := copy(e.pending, e.pending[frameLen:])
		e.pending = e.pending[:n]
	}
	return packets, nil
}

// Flush pads any remaining samples with silence and encodes them.
func (e *OpusEncoder) Flush() ([]*EncodedAudio, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.backend == nil || len(e.pending) == 0 {
		return nil, nil
	}
	frameLen := e.frameSamples * e.config.Channels
	pad := frameLen - len(e.pending)
	e.stats.PaddedSamples += uint64(pad / e.config.Channels)
	for i := 0; i < pad; i++ {
		e.pending = append(e.pending, 0)
	}
	pkt, err := e.encodeFrame(e.pending)
	e.pending = e.pending[:0]
	if err != nil {
		return nil, err
	}
	return []*EncodedAudio{pkt}, nil
}

func (e *OpusEncoder) encodeFrame(pcm []int16) (*EncodedAudio, error) {
	n, err := e.backend.encode(pcm, e.out)
	if err != nil {
		return nil, err
	}
	pkt := &EncodedAudio{
		Data:       append([]byte(nil), e.out[:n]...),
		Timestamp:  e.pendingTS,
		Duration:   e.frameDur,
		SampleRate: e.config.SampleRate,
	}
	e.pendingTS += e.frameDur

	e.stats.FramesEncoded++
	e.stats.BytesEncoded += uint64(n)
	e.stats.SamplesEncoded += uint64(e.frameSamples)
	return pkt, nil
}

// SetBitrate updates the target bitrate.
func (e *OpusEncoder) SetBitrate(bitrateBps int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.backend == nil {
		return fmt.Errorf("encoder closed")
	}
	if err := e.backend.setBitrate(bitrateBps); err != nil {
		return err
	}
	e.config.BitrateBps = bitrateBps
	return nil
}

// Provider implements AudioEncoder.
func (e *OpusEncoder) Provider() Provider { return e.provider }

// Config implements AudioEncoder.
func (e *OpusEncoder) Config() AudioEncoderConfig { return e.config }

// Codec implements AudioEncoder.
func (e *OpusEncoder) Codec() AudioCodec { return AudioCodecOpus }

// Stats implements AudioEncoder.
func (e *OpusEncoder) Stats() AudioEncoderStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Close implements AudioEncoder.
func (e *OpusEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.backend == nil {
		return nil
	}
	err := e.backend.close()
	e.backend = nil
	return err
}

// OpusHead builds the Ogg/Matroska identification header (RFC 7845 §5.1).
func OpusHead(channels, inputSampleRate int) []byte {
	head := make([]byte, 19)
	copy(head, "OpusHead")
	head[8] = 1 // version
	head[9] = byte(channels)
	binary.LittleEndian.PutUint16(head[10:], 312) // pre-skip at 48kHz
	binary.LittleEndian.PutUint32(head[12:], uint32(inputSampleRate))
	// output gain 0, mapping family 0
	return head
}
