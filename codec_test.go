package screenrec

import "testing"

func TestParseVideoCodec(t *testing.T) {
	tests := map[string]VideoCodec{
		"vp8":  VideoCodecVP8,
		"VP9":  VideoCodecVP9,
		"h264": VideoCodecUnknown,
	}
	for in, want := range tests {
		if got := ParseVideoCodec(in); got != want {
			t.Errorf("ParseVideoCodec(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestCodecIdentifiers(t *testing.T) {
	if VideoCodecVP8.MatroskaID() != "V_VP8" || VideoCodecVP9.MatroskaID() != "V_VP9" {
		t.Error("unexpected video Matroska IDs")
	}
	if AudioCodecOpus.MatroskaID() != "A_OPUS" {
		t.Errorf("Opus Matroska ID = %q", AudioCodecOpus.MatroskaID())
	}
	if VideoCodecVP8.ClockRate() != 90000 || AudioCodecOpus.ClockRate() != 48000 {
		t.Error("unexpected RTP clock rates")
	}
	if VideoCodecUnknown.MimeType() != "" {
		t.Error("unknown codec has a MIME type")
	}
}

func TestProviders(t *testing.T) {
	for _, p := range Providers() {
		if p == ProviderAuto {
			t.Error("Providers includes auto")
		}
		if p.String() == "unknown" {
			t.Errorf("provider %d has no name", p)
		}
	}
	if ProviderHraban.Library() != "libopus" || !ProviderHraban.Cgo() {
		t.Error("unexpected metadata for the cgo Opus provider")
	}
	if Provider(200).Available() {
		t.Error("out-of-range provider reported available")
	}
}

func TestListEncodersSorted(t *testing.T) {
	list := ListEncoders()
	for i := 1; i < len(list); i++ {
		a, b := list[i-1], list[i]
		if a.Kind == b.Kind && a.Codec == b.Codec && a.Provider > b.Provider {
			t.Errorf("entries %d and %d out of order", i-1, i)
		}
	}
	for _, e := range list {
		if e.Available != e.Provider.Available() {
			t.Errorf("%s/%s availability mismatch", e.Codec, e.Provider)
		}
	}
}
