package screenrec

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// channelOrder gives the byte offsets of R, G and B inside a 4-byte pixel.
type channelOrder struct{ r, g, b int }

var (
	orderRGBA = channelOrder{r: 0, g: 1, b: 2}
	orderBGRA = channelOrder{r: 2, g: 1, b: 0}
)

func channelOrderFor(f PixelFormat) (channelOrder, error) {
	switch f {
	case PixelFormatRGBA32:
		return orderRGBA, nil
	case PixelFormatBGRA32:
		return orderBGRA, nil
	default:
		return channelOrder{}, fmt.Errorf("%w: pixel format %s", ErrNotSupported, f)
	}
}

// BT.601 studio swing, fixed-point. For 0-255 input, Y stays in [16,235] and
// U/V in [16,240].
func lumaBT601(r, g, b int) byte {
	return byte((66*r+129*g+25*b+128)>>8 + 16)
}

func chromaBT601(r, g, b int) (u, v byte) {
	u = byte((-38*r-74*g+112*b+128)>>8 + 128)
	v = byte((112*r-94*g-18*b+128)>>8 + 128)
	return u, v
}

// YUV is a single I420 color used for padding.
type YUV struct{ Y, U, V byte }

// ToYUV converts an RGB color to BT.601 YUV.
func ToYUV(c color.RGBA) YUV {
	u, v := chromaBT601(int(c.R), int(c.G), int(c.B))
	return YUV{Y: lumaBT601(int(c.R), int(c.G), int(c.B)), U: u, V: v}
}

// ParseHexColor parses "#rrggbb" or "rrggbb".
func ParseHexColor(s string) (color.RGBA, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return color.RGBA{}, fmt.Errorf("%w: color %q", ErrInvalidConfig, s)
	}
	n, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("%w: color %q: %v", ErrInvalidConfig, s, err)
	}
	return color.RGBA{R: uint8(n >> 16), G: uint8(n >> 8), B: uint8(n), A: 0xff}, nil
}

// fillI420 paints the whole frame with c.
func fillI420(f *VideoFrame, c YUV) {
	fillPlane(f.Data[0], c.Y)
	fillPlane(f.Data[1], c.U)
	fillPlane(f.Data[2], c.V)
}

func fillPlane(p []byte, v byte) {
	if len(p) == 0 {
		return
	}
	p[0] = v
	for filled := 1; filled < len(p); filled *= 2 {
		copy(p[filled:], p[:filled])
	}
}
