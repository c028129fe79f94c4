package screenrec

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Provider identifies a codec implementation.
type Provider uint8

const (
	ProviderAuto    Provider = iota // Let the registry choose the best available
	ProviderLibvpx                  // VP8/VP9 via the libmedia_vpx shim
	ProviderLibopus                 // Opus via the libstream_opus shim
	ProviderHraban                  // Opus via gopkg.in/hraban/opus.v2 (cgo)
	providerCount
)

// providerMeta contains static metadata about a provider.
type providerMeta struct {
	Name    string
	Library string
	Cgo     bool
	Video   bool
}

// Static metadata table - indexed by Provider.
var providerInfo = [providerCount]providerMeta{
	ProviderAuto:    {"auto", "", false, false},
	ProviderLibvpx:  {"libvpx", "libmedia_vpx", false, true},
	ProviderLibopus: {"libopus", "libstream_opus", false, false},
	ProviderHraban:  {"libopus-cgo", "libopus", true, false},
}

// Runtime availability - set by init() in provider implementations.
var providerAvailable [providerCount]atomic.Bool

// String returns the provider name.
func (p Provider) String() string {
	if p >= providerCount {
		return "unknown"
	}
	return providerInfo[p].Name
}

// Library returns the native library the provider loads or links.
func (p Provider) Library() string {
	if p >= providerCount {
		return ""
	}
	return providerInfo[p].Library
}

// Cgo reports whether the provider links through cgo rather than purego.
func (p Provider) Cgo() bool {
	if p >= providerCount {
		return false
	}
	return providerInfo[p].Cgo
}

// ParseProvider maps a provider name to its value. The empty string is
// ProviderAuto.
func ParseProvider(s string) (Provider, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ProviderAuto, nil
	}
	for p := ProviderAuto; p < providerCount; p++ {
		if providerInfo[p].Name == s {
			return p, nil
		}
	}
	return ProviderAuto, fmt.Errorf("%w: unknown provider %q", ErrProviderNotFound, s)
}

// encodesVideo reports whether the provider can serve video codecs.
// ProviderAuto fits either kind.
func (p Provider) encodesVideo() bool {
	return p == ProviderAuto || (p < providerCount && providerInfo[p].Video)
}

func (p Provider) encodesAudio() bool {
	return p == ProviderAuto || (p < providerCount && !providerInfo[p].Video)
}

// Available returns true if the provider is usable at runtime.
func (p Provider) Available() bool {
	if p >= providerCount {
		return false
	}
	return providerAvailable[p].Load()
}

// Providers returns every concrete provider, available or not.
func Providers() []Provider {
	out := make([]Provider, 0, providerCount-1)
	for p := ProviderAuto + 1; p < providerCount; p++ {
		out = append(out, p)
	}
	return out
}

func setProviderAvailable(p Provider) {
	if p < providerCount {
		providerAvailable[p].Store(true)
	}
}
