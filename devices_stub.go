//go:build !cgo

package screenrec

import "fmt"

// ListAudioDevices needs the cgo miniaudio backend.
func ListAudioDevices() ([]DeviceInfo, error) {
	return nil, fmt.Errorf("%w: audio devices require cgo", ErrNotSupported)
}
