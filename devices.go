package screenrec

// DeviceKind represents the type of audio device.
type DeviceKind int

const (
	DeviceKindAudioInput  DeviceKind = iota // Microphone
	DeviceKindAudioOutput                   // Speaker/headphones, usable for loopback
)

func (k DeviceKind) String() string {
	switch k {
	case DeviceKindAudioInput:
		return "audioinput"
	case DeviceKindAudioOutput:
		return "audiooutput"
	default:
		return "unknown"
	}
}

// DeviceInfo describes an audio endpoint the backend can open.
type DeviceInfo struct {
	DeviceID string     // Backend-specific identifier
	Kind     DeviceKind // Device type
	Label    string     // Human-readable device name
	Default  bool       // System default for its kind
}

// Input reports which AudioInput setting records from a device of this
// kind: microphone for inputs, loopback for outputs.
func (d DeviceInfo) Input() SourceType {
	if d.Kind == DeviceKindAudioOutput {
		return SourceTypeLoopback
	}
	return SourceTypeMicrophone
}
