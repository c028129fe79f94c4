package screenrec

import (
	"errors"
	"testing"
	"time"
)

func TestVideoPacketizerSplitsLargeFrames(t *testing.T) {
	p, err := NewVideoPacketizer(VideoCodecVP8, 1200)
	if err != nil {
		t.Fatalf("NewVideoPacketizer failed: %v", err)
	}

	data := make([]byte, 5000)
	for i := range data {
		data[i] = byte(i)
	}
	packets := p.Packetize(data, time.Second)
	if len(packets) < 2 {
		t.Fatalf("got %d packets, want several", len(packets))
	}

	for i, pkt := range packets {
		if pkt.Header.Timestamp != 90000 {
			t.Errorf("packet %d timestamp = %d, want 90000", i, pkt.Header.Timestamp)
		}
		if pkt.Header.SSRC != p.SSRC() {
			t.Errorf("packet %d SSRC = %d, want %d", i, pkt.Header.SSRC, p.SSRC())
		}
		if pkt.Header.PayloadType != 96 {
			t.Errorf("packet %d payload type = %d, want 96", i, pkt.Header.PayloadType)
		}
		if last := i == len(packets)-1; pkt.Header.Marker != last {
			t.Errorf("packet %d marker = %v, want %v", i, pkt.Header.Marker, last)
		}
		if i > 0 && pkt.Header.SequenceNumber != packets[i-1].Header.SequenceNumber+1 {
			t.Errorf("packet %d sequence not consecutive", i)
		}
		if size := len(pkt.Payload) + rtpHeaderSize; size > 1200 {
			t.Errorf("packet %d is %d bytes, over MTU", i, size)
		}
	}
}

func TestAudioPacketizer(t *testing.T) {
	p, err := NewAudioPacketizer(AudioCodecOpus, 0)
	if err != nil {
		t.Fatalf("NewAudioPacketizer failed: %v", err)
	}
	packets := p.Packetize([]byte{0xfc, 0xff, 0xfe}, 20*time.Millisecond)
	if len(packets) != 1 {
		t.Fatalf("got %d packets, want 1", len(packets))
	}
	if packets[0].Header.Timestamp != 960 {
		t.Errorf("timestamp = %d, want 960", packets[0].Header.Timestamp)
	}
	if !packets[0].Header.Marker {
		t.Error("single packet should carry the marker")
	}
	if p.Packetize(nil, 0) != nil {
		t.Error("empty payload produced packets")
	}
}

func TestPacketizerUnknownCodec(t *testing.T) {
	if _, err := NewVideoPacketizer(VideoCodecUnknown, 1200); !errors.Is(err, ErrCodecNotSupported) {
		t.Errorf("NewVideoPacketizer = %v, want ErrCodecNotSupported", err)
	}
	if _, err := NewAudioPacketizer(AudioCodecUnknown, 1200); !errors.Is(err, ErrCodecNotSupported) {
		t.Errorf("NewAudioPacketizer = %v, want ErrCodecNotSupported", err)
	}
}

func TestRTPTimestamp(t *testing.T) {
	tests := []struct {
		ts    time.Duration
		clock uint32
		want  uint32
	}{
		{0, 90000, 0},
		{time.Second, 90000, 90000},
		{33 * time.Millisecond, 90000, 2970},
		{20 * time.Millisecond, 48000, 960},
		{-time.Second, 48000, 0},
	}
	for _, tt := range tests {
		if got := RTPTimestamp(tt.ts, tt.clock); got != tt.want {
			t.Errorf("RTPTimestamp(%v, %d) = %d, want %d", tt.ts, tt.clock, got, tt.want)
		}
	}
}
