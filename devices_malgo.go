//go:build cgo

package screenrec

import (
	"fmt"

	"github.com/gen2brain/malgo"
	"github.com/hashicorp/go-multierror"
)

// ListAudioDevices enumerates capture and playback devices through
// miniaudio. Playback devices are only recordable in loopback mode, which
// requires WASAPI.
func ListAudioDevices() ([]DeviceInfo, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: init context: %v", ErrNotSupported, err)
	}
	defer func() {
		_ = mctx.Uninit()
		mctx.Free()
	}()

	var (
		devices []DeviceInfo
		result  *multierror.Error
	)
	for _, kind := range []DeviceKind{DeviceKindAudioInput, DeviceKindAudioOutput} {
		devType := malgo.Capture
		if kind == DeviceKindAudioOutput {
			devType = malgo.Playback
		}
		infos, err := mctx.Devices(devType)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("list %s devices: %w", kind, err))
			continue
		}
		for i := range infos {
			info := &infos[i]
			devices = append(devices, DeviceInfo{
				DeviceID: info.ID.String(),
				Kind:     kind,
				Label:    info.Name(),
				Default:  info.IsDefault != 0,
			})
		}
	}
	if len(devices) == 0 {
		return nil, result.ErrorOrNil()
	}
	return devices, nil
}
