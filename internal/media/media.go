package media

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// ErrNoMedia is returned when no capture source could be opened at all,
// even after falling back to audio only.
var ErrNoMedia = errors.New("media: no capture source available")

// Constraints selects which kinds of local media to open.
type Constraints struct {
	Audio bool
	Video bool
}

// Opener produces local media streams. Implementations also register their
// codecs on the media engine used to build peer connections.
type Opener interface {
	Open(ctx context.Context, c Constraints) (*Stream, error)
	ConfigureEngine(engine *webrtc.MediaEngine) error
}

// Stream owns the local capture tracks for one call. Closing it stops every
// capture source; Close is idempotent.
type Stream struct {
	audio webrtc.TrackLocal
	video webrtc.TrackLocal

	closers   []func() error
	closeOnce sync.Once
	closeErr  error
}

// AudioTrack returns the local audio track, or nil.
func (s *Stream) AudioTrack() webrtc.TrackLocal { return s.audio }

// VideoTrack returns the local video track, or nil when the stream is
// audio only.
func (s *Stream) VideoTrack() webrtc.TrackLocal { return s.video }

// HasVideo reports whether the stream carries a video track.
func (s *Stream) HasVideo() bool { return s.video != nil }

// Tracks returns the stream's tracks in a stable order.
func (s *Stream) Tracks() []webrtc.TrackLocal {
	var out []webrtc.TrackLocal
	if s.audio != nil {
		out = append(out, s.audio)
	}
	if s.video != nil {
		out = append(out, s.video)
	}
	return out
}

// Close stops all capture sources backing the stream.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		for _, c := range s.closers {
			if err := c(); err != nil && s.closeErr == nil {
				s.closeErr = err
			}
		}
	})
	return s.closeErr
}

// Acquire opens local media with the browser-style fallback order: if video
// was requested and cannot be opened, retry audio only before giving up.
func Acquire(ctx context.Context, o Opener, c Constraints, log zerolog.Logger) (*Stream, error) {
	if c.Video {
		s, err := o.Open(ctx, c)
		if err == nil {
			return s, nil
		}
		log.Warn().Err(err).Msg("video capture failed, falling back to audio only")
	}
	s, err := o.Open(ctx, Constraints{Audio: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoMedia, err)
	}
	return s, nil
}
