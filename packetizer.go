package screenrec

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
)

// DefaultMTU is the packet size budget used when splitting encoded frames.
const DefaultMTU = 1200

// rtpHeaderSize is the fixed RTP header without CSRCs or extensions.
const rtpHeaderSize = 12

// Packetizer splits encoded payloads into RTP packets for one stream. The
// elementary-stream writers consume RTP, so this is the bridge between the
// encoders and those writers.
type Packetizer struct {
	payloader   rtp.Payloader
	payloadType uint8
	ssrc        uint32
	clockRate   uint32
	mtu         int
	sequencer   rtp.Sequencer
}

// NewVideoPacketizer creates a packetizer for a video codec.
func NewVideoPacketizer(codec VideoCodec, mtu int) (*Packetizer, error) {
	var payloader rtp.Payloader
	switch codec {
	case VideoCodecVP8:
		payloader = &codecs.VP8Payloader{}
	case VideoCodecVP9:
		payloader = &codecs.VP9Payloader{}
	default:
		return nil, fmt.Errorf("%w: packetize %s", ErrCodecNotSupported, codec)
	}
	return newPacketizer(payloader, codec.DefaultPayloadType(), codec.ClockRate(), mtu), nil
}

// NewAudioPacketizer creates a packetizer for an audio codec.
func NewAudioPacketizer(codec AudioCodec, mtu int) (*Packetizer, error) {
	if codec != AudioCodecOpus {
		return nil, fmt.Errorf("%w: packetize %s", ErrCodecNotSupported, codec)
	}
	return newPacketizer(&codecs.OpusPayloader{}, codec.DefaultPayloadType(), codec.ClockRate(), mtu), nil
}

func newPacketizer(payloader rtp.Payloader, pt uint8, clockRate uint32, mtu int) *Packetizer {
	if mtu <= rtpHeaderSize {
		mtu = DefaultMTU
	}
	return &Packetizer{
		payloader:   payloader,
		payloadType: pt,
		ssrc:        rand.Uint32(),
		clockRate:   clockRate,
		mtu:         mtu,
		sequencer:   rtp.NewRandomSequencer(),
	}
}

// Packetize converts one encoded payload into RTP packets. The marker bit is
// set on the last packet of the payload.
func (p *Packetizer) Packetize(data []byte, ts time.Duration) []*rtp.Packet {
	if len(data) == 0 {
		return nil
	}
	payloads := p.payloader.Payload(uint16(p.mtu-rtpHeaderSize), data)
	if len(payloads) == 0 {
		return nil
	}

	timestamp := RTPTimestamp(ts, p.clockRate)
	packets := make([]*rtp.Packet, len(payloads))
	for i, payload := range payloads {
		packets[i] = &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         i == len(payloads)-1,
				PayloadType:    p.payloadType,
				SequenceNumber: p.sequencer.NextSequenceNumber(),
				Timestamp:      timestamp,
				SSRC:           p.ssrc,
			},
			Payload: payload,
		}
	}
	return packets
}

// SSRC returns the stream's synchronization source.
func (p *Packetizer) SSRC() uint32 { return p.ssrc }

// RTPTimestamp converts a relative time to RTP clock ticks, wrapping at 2^32.
func RTPTimestamp(ts time.Duration, clockRate uint32) uint32 {
	if ts < 0 {
		ts = 0
	}
	sec := ts / time.Second
	rem := ts % time.Second
	ticks := uint64(sec)*uint64(clockRate) + uint64(rem)*uint64(clockRate)/uint64(time.Second)
	return uint32(ticks)
}
