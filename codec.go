package screenrec

import "strings"

// VideoCodec identifies the video codec type.
type VideoCodec int

const (
	VideoCodecUnknown VideoCodec = iota
	VideoCodecVP8
	VideoCodecVP9
)

func (c VideoCodec) String() string {
	switch c {
	case VideoCodecVP8:
		return "VP8"
	case VideoCodecVP9:
		return "VP9"
	default:
		return "Unknown"
	}
}

// ParseVideoCodec parses a codec name as used in configuration ("vp8", "vp9").
func ParseVideoCodec(s string) VideoCodec {
	switch strings.ToLower(s) {
	case "vp8":
		return VideoCodecVP8
	case "vp9":
		return VideoCodecVP9
	default:
		return VideoCodecUnknown
	}
}

// MimeType returns the MIME type for this codec.
func (c VideoCodec) MimeType() string {
	switch c {
	case VideoCodecVP8:
		return "video/VP8"
	case VideoCodecVP9:
		return "video/VP9"
	default:
		return ""
	}
}

// MatroskaID returns the Matroska/WebM CodecID for this codec.
func (c VideoCodec) MatroskaID() string {
	switch c {
	case VideoCodecVP8:
		return "V_VP8"
	case VideoCodecVP9:
		return "V_VP9"
	default:
		return ""
	}
}

// ClockRate returns the RTP clock rate for this codec.
func (c VideoCodec) ClockRate() uint32 {
	// All video codecs use 90kHz clock
	return 90000
}

// DefaultPayloadType returns a typical payload type for this codec.
func (c VideoCodec) DefaultPayloadType() uint8 {
	switch c {
	case VideoCodecVP9:
		return 98
	default:
		return 96
	}
}

// AudioCodec identifies the audio codec type.
type AudioCodec int

const (
	AudioCodecUnknown AudioCodec = iota
	AudioCodecOpus
)

func (c AudioCodec) String() string {
	switch c {
	case AudioCodecOpus:
		return "Opus"
	default:
		return "Unknown"
	}
}

// MimeType returns the MIME type for this codec.
func (c AudioCodec) MimeType() string {
	switch c {
	case AudioCodecOpus:
		return "audio/opus"
	default:
		return ""
	}
}

// MatroskaID returns the Matroska/WebM CodecID for this codec.
func (c AudioCodec) MatroskaID() string {
	switch c {
	case AudioCodecOpus:
		return "A_OPUS"
	default:
		return ""
	}
}

// ClockRate returns the RTP clock rate for this codec.
func (c AudioCodec) ClockRate() uint32 {
	return 48000
}

// DefaultPayloadType returns a typical payload type for this codec.
func (c AudioCodec) DefaultPayloadType() uint8 {
	return 111
}
