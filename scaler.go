package screenrec

import "image"

// ScaleMode defines how scaling handles aspect ratio mismatches.
type ScaleMode int

const (
	// ScaleModeFit scales to fit within target dimensions, preserving aspect ratio (letterbox).
	ScaleModeFit ScaleMode = iota
	// ScaleModeFill scales to fill target dimensions, preserving aspect ratio (crop).
	ScaleModeFill
	// ScaleModeStretch scales to exactly match target dimensions (may distort).
	ScaleModeStretch
)

func (m ScaleMode) String() string {
	switch m {
	case ScaleModeFit:
		return "fit"
	case ScaleModeFill:
		return "fill"
	case ScaleModeStretch:
		return "stretch"
	default:
		return "unknown"
	}
}

// ParseScaleMode parses "fit", "fill" or "stretch". Unknown values fall back
// to ScaleModeFit.
func ParseScaleMode(s string) ScaleMode {
	switch s {
	case "fill":
		return ScaleModeFill
	case "stretch":
		return ScaleModeStretch
	default:
		return ScaleModeFit
	}
}

// Geometry maps a source region onto a destination rectangle inside the
// output frame. Everything outside Dst is padding.
type Geometry struct {
	SrcW, SrcH int
	Src        image.Rectangle
	Dst        image.Rectangle
}

// ComputeGeometry places a srcW×srcH image into a dstW×dstH output.
// Destination rectangles are even-aligned so chroma planes line up.
func ComputeGeometry(srcW, srcH, dstW, dstH int, mode ScaleMode) Geometry {
	g := Geometry{
		SrcW: srcW,
		SrcH: srcH,
		Src:  image.Rect(0, 0, srcW, srcH),
		Dst:  image.Rect(0, 0, dstW, dstH),
	}
	if srcW <= 0 || srcH <= 0 {
		return g
	}

	switch mode {
	case ScaleModeFit:
		w, h := CalculateScaledSize(srcW, srcH, dstW, dstH, mode)
		x := ((dstW - w) / 2) &^ 1
		y := ((dstH - h) / 2) &^ 1
		g.Dst = image.Rect(x, y, x+w, y+h)

	case ScaleModeFill:
		srcAspect := float64(srcW) / float64(srcH)
		dstAspect := float64(dstW) / float64(dstH)
		if srcAspect > dstAspect {
			// Source is wider, crop horizontally
			newW := int(float64(srcH) * dstAspect)
			x := (srcW - newW) / 2
			g.Src = image.Rect(x, 0, x+newW, srcH)
		} else if srcAspect < dstAspect {
			// Source is taller, crop vertically
			newH := int(float64(srcW) / dstAspect)
			y := (srcH - newH) / 2
			g.Src = image.Rect(0, y, srcW, y+newH)
		}
	}
	return g
}

// Letterboxed reports whether the geometry leaves padding around the image.
func (g Geometry) Letterboxed(dstW, dstH int) bool {
	return g.Dst != image.Rect(0, 0, dstW, dstH)
}

// CalculateScaledSize returns the output dimensions when scaling with a given mode.
func CalculateScaledSize(srcW, srcH, maxW, maxH int, mode ScaleMode) (w, h int) {
	switch mode {
	case ScaleModeFit:
		srcAspect := float64(srcW) / float64(srcH)
		dstAspect := float64(maxW) / float64(maxH)

		if srcAspect > dstAspect {
			// Source is wider, fit to width
			w = maxW
			h = int(float64(maxW) / srcAspect)
		} else {
			// Source is taller, fit to height
			h = maxH
			w = int(float64(maxH) * srcAspect)
		}
		w, h = EnsureEven(w, h)
		if w > maxW {
			w = maxW &^ 1
		}
		if h > maxH {
			h = maxH &^ 1
		}
		if w < 2 {
			w = 2
		}
		if h < 2 {
			h = 2
		}
		return w, h

	default:
		return maxW, maxH
	}
}

// scaleToI420 bilinearly resamples g.Src of a packed 32-bit image into g.Dst
// of an I420 frame. Chroma takes the top-left sample of each 2×2 block.
func scaleToI420(src []byte, srcStride int, order channelOrder, g Geometry, dst *VideoFrame) {
	srcX, srcY := g.Src.Min.X, g.Src.Min.Y
	srcW, srcH := g.Src.Dx(), g.Src.Dy()
	dstW, dstH := g.Dst.Dx(), g.Dst.Dy()
	if srcW <= 0 || srcH <= 0 || dstW <= 0 || dstH <= 0 {
		return
	}

	// Fixed-point scaling factors (16.16)
	xRatio := (srcW << 16) / dstW
	yRatio := (srcH << 16) / dstH

	yPlane, uPlane, vPlane := dst.Data[0], dst.Data[1], dst.Data[2]
	yStride, uvStride := dst.Stride[0], dst.Stride[1]

	for y := 0; y < dstH; y++ {
		srcYFP := y * yRatio
		y0 := (srcYFP >> 16) + srcY
		yFrac := srcYFP & 0xFFFF
		y1 := y0 + 1
		if y1 >= srcY+srcH {
			y1 = y0
		}
		row0 := src[y0*srcStride:]
		row1 := src[y1*srcStride:]

		oy := g.Dst.Min.Y + y
		yRow := yPlane[oy*yStride:]
		chromaRow := oy&1 == 0

		for x := 0; x < dstW; x++ {
			srcXFP := x * xRatio
			x0 := (srcXFP >> 16) + srcX
			xFrac := srcXFP & 0xFFFF
			x1 := x0 + 1
			if x1 >= srcX+srcW {
				x1 = x0
			}

			r, gr, b := bilinearRGB(row0, row1, x0*4, x1*4, xFrac, yFrac, order)

			ox := g.Dst.Min.X + x
			yRow[ox] = lumaBT601(r, gr, b)
			if chromaRow && ox&1 == 0 {
				ci := (oy/2)*uvStride + ox/2
				uPlane[ci], vPlane[ci] = chromaBT601(r, gr, b)
			}
		}
	}
}

func bilinearRGB(row0, row1 []byte, p0, p1, xFrac, yFrac int, order channelOrder) (r, g, b int) {
	lerp := func(off int) int {
		a := int(row0[p0+off])
		c := int(row0[p1+off])
		d := int(row1[p0+off])
		e := int(row1[p1+off])
		top := (a*(0x10000-xFrac) + c*xFrac) >> 16
		bottom := (d*(0x10000-xFrac) + e*xFrac) >> 16
		return (top*(0x10000-yFrac) + bottom*yFrac) >> 16
	}
	return lerp(order.r), lerp(order.g), lerp(order.b)
}
