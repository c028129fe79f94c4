package screenrec

import (
	"image"
	"testing"
)

func TestCalculateScaledSize(t *testing.T) {
	tests := []struct {
		name         string
		srcW, srcH   int
		maxW, maxH   int
		mode         ScaleMode
		wantW, wantH int
	}{
		{"16:9 to 4:3 fit", 1920, 1080, 640, 480, ScaleModeFit, 640, 360},
		{"4:3 to 16:9 fit", 640, 480, 1280, 720, ScaleModeFit, 960, 720},
		{"same aspect fit", 1280, 720, 640, 360, ScaleModeFit, 640, 360},
		{"odd result rounded even", 1000, 333, 640, 480, ScaleModeFit, 640, 214},
		{"stretch ignores aspect", 1920, 1080, 640, 480, ScaleModeStretch, 640, 480},
		{"fill keeps target", 1920, 1080, 640, 480, ScaleModeFill, 640, 480},
		{"tiny clamps to 2", 4000, 10, 100, 100, ScaleModeFit, 100, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := CalculateScaledSize(tt.srcW, tt.srcH, tt.maxW, tt.maxH, tt.mode)
			if w != tt.wantW || h != tt.wantH {
				t.Errorf("CalculateScaledSize = %dx%d, want %dx%d", w, h, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestParseScaleMode(t *testing.T) {
	for in, want := range map[string]ScaleMode{
		"fit":     ScaleModeFit,
		"fill":    ScaleModeFill,
		"stretch": ScaleModeStretch,
		"bogus":   ScaleModeFit,
	} {
		if got := ParseScaleMode(in); got != want {
			t.Errorf("ParseScaleMode(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestGeometryLetterboxed(t *testing.T) {
	if g := ComputeGeometry(1920, 1080, 640, 480, ScaleModeFit); !g.Letterboxed(640, 480) {
		t.Errorf("fit 16:9 into 4:3 not letterboxed: %v", g.Dst)
	}
	if g := ComputeGeometry(1920, 1080, 640, 480, ScaleModeStretch); g.Letterboxed(640, 480) {
		t.Errorf("stretch letterboxed: %v", g.Dst)
	}
	g := ComputeGeometry(1920, 1080, 640, 480, ScaleModeFill)
	if g.Letterboxed(640, 480) {
		t.Errorf("fill letterboxed: %v", g.Dst)
	}
	if g.Src.Dy() != 1080 || g.Src.Dx() >= 1920 {
		t.Errorf("fill should crop horizontally, src = %v", g.Src)
	}
}

func TestScaleToI420SolidColor(t *testing.T) {
	const srcW, srcH = 32, 16
	src := make([]byte, srcW*srcH*4)
	for i := 0; i < len(src); i += 4 {
		// BGRA red
		src[i], src[i+1], src[i+2], src[i+3] = 0, 0, 255, 255
	}

	dst := newI420Frame(16, 8)
	g := Geometry{SrcW: srcW, SrcH: srcH, Src: image.Rect(0, 0, srcW, srcH), Dst: image.Rect(0, 0, 16, 8)}
	scaleToI420(src, srcW*4, orderBGRA, g, dst)

	wantY := lumaBT601(255, 0, 0)
	wantU, wantV := chromaBT601(255, 0, 0)
	for i, y := range dst.Data[0] {
		if y != wantY {
			t.Fatalf("Y[%d] = %d, want %d", i, y, wantY)
		}
	}
	for i := range dst.Data[1] {
		if dst.Data[1][i] != wantU || dst.Data[2][i] != wantV {
			t.Fatalf("chroma[%d] = (%d,%d), want (%d,%d)", i, dst.Data[1][i], dst.Data[2][i], wantU, wantV)
		}
	}
}

func TestScaleToI420LeavesPadding(t *testing.T) {
	src := make([]byte, 8*8*4)
	for i := range src {
		src[i] = 255
	}
	dst := newI420Frame(16, 8)
	fillI420(dst, YUV{Y: 16, U: 128, V: 128})

	g := ComputeGeometry(8, 8, 16, 8, ScaleModeFit)
	scaleToI420(src, 8*4, orderRGBA, g, dst)

	if dst.Data[0][0] != 16 {
		t.Errorf("padding overwritten: Y[0] = %d", dst.Data[0][0])
	}
	mid := g.Dst.Min.Y*dst.Stride[0] + g.Dst.Min.X
	if dst.Data[0][mid] != lumaBT601(255, 255, 255) {
		t.Errorf("image Y = %d, want white", dst.Data[0][mid])
	}
}

func newI420Frame(w, h int) *VideoFrame {
	return &VideoFrame{
		Data:   [3][]byte{make([]byte, w*h), make([]byte, w*h/4), make([]byte, w*h/4)},
		Stride: [3]int{w, w / 2, w / 2},
		Width:  w,
		Height: h,
	}
}

func benchmarkScale(b *testing.B, srcW, srcH, dstW, dstH int) {
	src := make([]byte, srcW*srcH*4)
	for i := range src {
		src[i] = byte(i)
	}
	dst := newI420Frame(dstW, dstH)
	g := ComputeGeometry(srcW, srcH, dstW, dstH, ScaleModeFit)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		scaleToI420(src, srcW*4, orderBGRA, g, dst)
	}
}

func BenchmarkScaleToI420_1080pTo720p(b *testing.B) { benchmarkScale(b, 1920, 1080, 1280, 720) }
func BenchmarkScaleToI420_1440pTo1080p(b *testing.B) {
	benchmarkScale(b, 2560, 1440, 1920, 1080)
}
