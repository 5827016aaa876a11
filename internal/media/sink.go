package media

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	pkgmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/rs/zerolog"
)

// Recorder writes remote tracks to disk, one file per track. It is the
// command-line stand-in for a UI's video surfaces.
type Recorder struct {
	dir string
	log zerolog.Logger
}

// NewRecorder creates a recorder writing into dir.
func NewRecorder(dir string, log zerolog.Logger) *Recorder {
	return &Recorder{dir: dir, log: log.With().Str("component", "recorder").Logger()}
}

// Record starts copying the remote track into a new sink file and returns
// its path. The copy goroutine exits when the track ends.
func (r *Recorder) Record(track *webrtc.TrackRemote) (string, error) {
	w, path, err := newWriter(track.Codec(), r.dir, track.Kind().String())
	if err != nil {
		return "", err
	}
	r.log.Info().Str("path", path).Str("codec", track.Codec().MimeType).Msg("recording remote track")

	go func() {
		defer w.Close()
		for {
			pkt, _, err := track.ReadRTP()
			if err != nil {
				r.log.Debug().Err(err).Str("path", path).Msg("remote track ended")
				return
			}
			if err := w.WriteRTP(pkt); err != nil {
				r.log.Warn().Err(err).Str("path", path).Msg("sink write failed")
				return
			}
		}
	}()
	return path, nil
}

// newWriter maps a codec to a container writer: VP8 to IVF, Opus to OGG.
func newWriter(codec webrtc.RTPCodecParameters, dir, kind string) (pkgmedia.Writer, string, error) {
	name := fmt.Sprintf("%s-%d", kind, time.Now().UnixNano())
	switch {
	case strings.EqualFold(codec.MimeType, webrtc.MimeTypeVP8):
		path := filepath.Join(dir, name+".ivf")
		w, err := ivfwriter.New(path)
		if err != nil {
			return nil, "", fmt.Errorf("open ivf sink: %w", err)
		}
		return w, path, nil
	case strings.EqualFold(codec.MimeType, webrtc.MimeTypeOpus):
		path := filepath.Join(dir, name+".ogg")
		w, err := oggwriter.New(path, codec.ClockRate, codec.Channels)
		if err != nil {
			return nil, "", fmt.Errorf("open ogg sink: %w", err)
		}
		return w, path, nil
	default:
		return nil, "", fmt.Errorf("no sink for codec %s", codec.MimeType)
	}
}
