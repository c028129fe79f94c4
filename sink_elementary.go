package screenrec

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
)

// elementaryOutput writes the video stream to <base>.ivf and the audio stream
// to <base>.ogg. Both writers consume RTP, so payloads pass through a
// Packetizer first.
type elementaryOutput struct {
	videoPath string
	audioPath string

	ivf *ivfwriter.IVFWriter
	ogg *oggwriter.OggWriter

	videoPkt *Packetizer
	audioPkt *Packetizer
}

// elementaryPaths derives the two file names from the requested output path.
func elementaryPaths(path string) (video, audio string) {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	return base + ".ivf", base + ".ogg"
}

func newElementaryOutput(path string, opts OutputOptions) (_ *elementaryOutput, err error) {
	// IVF through the RTP writer is limited to VP8.
	if opts.VideoCodec != VideoCodecVP8 {
		return nil, fmt.Errorf("%w: ivf video %s", ErrCodecNotSupported, opts.VideoCodec)
	}

	out := &elementaryOutput{}
	out.videoPath, out.audioPath = elementaryPaths(path)
	defer func() {
		if err != nil {
			out.Close()
			RemoveOutputFiles(out)
		}
	}()

	if out.videoPkt, err = NewVideoPacketizer(opts.VideoCodec, opts.MTU); err != nil {
		return nil, err
	}
	vf, err := os.Create(out.videoPath)
	if err != nil {
		return nil, outputFailure("create", err)
	}
	if out.ivf, err = ivfwriter.NewWith(vf); err != nil {
		vf.Close()
		return nil, outputFailure("ivf header", err)
	}

	if !opts.Audio {
		out.audioPath = ""
		return out, nil
	}
	if out.audioPkt, err = NewAudioPacketizer(opts.AudioCodec, opts.MTU); err != nil {
		return nil, err
	}
	af, err := os.Create(out.audioPath)
	if err != nil {
		return nil, outputFailure("create", err)
	}
	if out.ogg, err = oggwriter.NewWith(af, uint32(opts.SampleRate), uint16(opts.Channels)); err != nil {
		af.Close()
		return nil, outputFailure("ogg header", err)
	}
	return out, nil
}

func (o *elementaryOutput) WriteVideo(frame *EncodedFrame) error {
	for _, pkt := range o.videoPkt.Packetize(frame.Data, frame.Timestamp) {
		if err := o.ivf.WriteRTP(pkt); err != nil {
			return err
		}
	}
	return nil
}

func (o *elementaryOutput) WriteAudio(packet *EncodedAudio) error {
	if o.ogg == nil {
		return fmt.Errorf("%w: no audio stream", ErrInvalidState)
	}
	for _, pkt := range o.audioPkt.Packetize(packet.Data, packet.Timestamp) {
		if err := o.ogg.WriteRTP(pkt); err != nil {
			return err
		}
	}
	return nil
}

// Close finalizes both writers, which also close their files.
func (o *elementaryOutput) Close() error {
	var result *multierror.Error
	if o.ivf != nil {
		if err := o.ivf.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if o.ogg != nil {
		if err := o.ogg.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (o *elementaryOutput) Paths() []string {
	paths := []string{o.videoPath}
	if o.audioPath != "" {
		paths = append(paths, o.audioPath)
	}
	return paths
}
