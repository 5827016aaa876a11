package media

import (
	"context"
	"errors"
	"fmt"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"     // register camera driver
	_ "github.com/pion/mediadevices/pkg/driver/microphone" // register microphone driver
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
)

// DeviceOpener captures from the machine's camera and microphone via
// pion/mediadevices, encoding with VP8 and Opus.
type DeviceOpener struct {
	width     int
	height    int
	frameRate int
	selector  *mediadevices.CodecSelector
}

// NewDeviceOpener configures the codec selector for device capture.
func NewDeviceOpener(width, height, frameRate int) (*DeviceOpener, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("vp8 params: %w", err)
	}
	vpxParams.BitRate = 500_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("opus params: %w", err)
	}
	opusParams.BitRate = 32_000

	return &DeviceOpener{
		width:     width,
		height:    height,
		frameRate: frameRate,
		selector: mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vpxParams),
			mediadevices.WithAudioEncoders(&opusParams),
		),
	}, nil
}

// ConfigureEngine registers the selected codecs on the media engine.
func (o *DeviceOpener) ConfigureEngine(engine *webrtc.MediaEngine) error {
	if err := engine.RegisterDefaultCodecs(); err != nil {
		return err
	}
	o.selector.Populate(engine)
	return nil
}

// Open acquires camera and/or microphone tracks.
func (o *DeviceOpener) Open(_ context.Context, c Constraints) (*Stream, error) {
	constraints := mediadevices.MediaStreamConstraints{Codec: o.selector}
	if c.Audio {
		constraints.Audio = func(mt *mediadevices.MediaTrackConstraints) {
			mt.SampleRate = prop.Int(48000)
			mt.ChannelCount = prop.Int(1)
		}
	}
	if c.Video {
		constraints.Video = func(mt *mediadevices.MediaTrackConstraints) {
			mt.Width = prop.Int(o.width)
			mt.Height = prop.Int(o.height)
			mt.FrameRate = prop.Float(float32(o.frameRate))
		}
	}

	ms, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		return nil, fmt.Errorf("get user media: %w", err)
	}

	s := &Stream{}
	for _, track := range ms.GetAudioTracks() {
		s.audio = track
		s.closers = append(s.closers, track.Close)
	}
	for _, track := range ms.GetVideoTracks() {
		s.video = track
		s.closers = append(s.closers, track.Close)
	}
	if s.audio == nil && s.video == nil {
		return nil, errors.New("get user media returned no tracks")
	}
	return s, nil
}
