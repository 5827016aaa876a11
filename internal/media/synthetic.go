package media

import (
	"context"
	"fmt"
	"time"

	"github.com/pion/webrtc/v4"
	pkgmedia "github.com/pion/webrtc/v4/pkg/media"
)

// opusSilence is a single 20ms Opus silence frame.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// SyntheticOpener produces generated tracks without touching any capture
// device. It backs the --fake-media flag and the tests.
type SyntheticOpener struct {
	// FailVideo and FailAudio force Open errors, for exercising the
	// fallback path.
	FailVideo bool
	FailAudio bool

	FrameRate int
}

// NewSyntheticOpener returns an opener generating silence and counter frames.
func NewSyntheticOpener(frameRate int) *SyntheticOpener {
	return &SyntheticOpener{FrameRate: frameRate}
}

// ConfigureEngine registers pion's default codecs.
func (o *SyntheticOpener) ConfigureEngine(engine *webrtc.MediaEngine) error {
	return engine.RegisterDefaultCodecs()
}

// Open builds generated tracks for the requested kinds.
func (o *SyntheticOpener) Open(_ context.Context, c Constraints) (*Stream, error) {
	if c.Video && o.FailVideo {
		return nil, fmt.Errorf("synthetic video source unavailable")
	}
	if c.Audio && o.FailAudio {
		return nil, fmt.Errorf("synthetic audio source unavailable")
	}

	s := &Stream{}
	if c.Audio {
		track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeOpus,
			ClockRate: 48000,
			Channels:  2,
		}, "audio", "peercall-synthetic")
		if err != nil {
			return nil, fmt.Errorf("synthetic audio track: %w", err)
		}
		stop := make(chan struct{})
		go pumpAudio(track, stop)
		s.audio = track
		s.closers = append(s.closers, closeChan(stop))
	}
	if c.Video {
		track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeVP8,
			ClockRate: 90000,
		}, "video", "peercall-synthetic")
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("synthetic video track: %w", err)
		}
		stop := make(chan struct{})
		go pumpVideo(track, o.FrameRate, stop)
		s.video = track
		s.closers = append(s.closers, closeChan(stop))
	}
	return s, nil
}

func closeChan(ch chan struct{}) func() error {
	return func() error {
		close(ch)
		return nil
	}
}

func pumpAudio(track *webrtc.TrackLocalStaticSample, stop <-chan struct{}) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			_ = track.WriteSample(pkgmedia.Sample{Data: opusSilence, Duration: 20 * time.Millisecond})
		}
	}
}

func pumpVideo(track *webrtc.TrackLocalStaticSample, frameRate int, stop <-chan struct{}) {
	if frameRate <= 0 {
		frameRate = 30
	}
	interval := time.Second / time.Duration(frameRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	var seq byte
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			// Not a decodable VP8 frame; carries a counter so receivers
			// see changing payloads.
			frame := []byte{0x10, 0x02, 0x00, 0x9d, 0x01, 0x2a, seq}
			seq++
			_ = track.WriteSample(pkgmedia.Sample{Data: frame, Duration: interval})
		}
	}
}
