package media

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireVideoAndAudio(t *testing.T) {
	o := NewSyntheticOpener(30)
	s, err := Acquire(context.Background(), o, Constraints{Audio: true, Video: true}, zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()

	assert.True(t, s.HasVideo())
	assert.NotNil(t, s.AudioTrack())
	assert.NotNil(t, s.VideoTrack())
	assert.Len(t, s.Tracks(), 2)
}

func TestAcquireFallsBackToAudioOnly(t *testing.T) {
	o := NewSyntheticOpener(30)
	o.FailVideo = true

	s, err := Acquire(context.Background(), o, Constraints{Audio: true, Video: true}, zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()

	assert.False(t, s.HasVideo())
	assert.NotNil(t, s.AudioTrack())
	assert.Nil(t, s.VideoTrack())
	assert.Len(t, s.Tracks(), 1)
}

func TestAcquireTotalFailure(t *testing.T) {
	o := NewSyntheticOpener(30)
	o.FailVideo = true
	o.FailAudio = true

	s, err := Acquire(context.Background(), o, Constraints{Audio: true, Video: true}, zerolog.Nop())
	assert.Nil(t, s)
	assert.ErrorIs(t, err, ErrNoMedia)
}

func TestAcquireAudioOnlyRequest(t *testing.T) {
	o := NewSyntheticOpener(30)
	o.FailVideo = true // must not matter, video is not requested

	s, err := Acquire(context.Background(), o, Constraints{Audio: true}, zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()
	assert.False(t, s.HasVideo())
}

func TestStreamCloseIdempotent(t *testing.T) {
	o := NewSyntheticOpener(30)
	s, err := o.Open(context.Background(), Constraints{Audio: true, Video: true})
	require.NoError(t, err)

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

func TestSyntheticConfigureEngine(t *testing.T) {
	var engine webrtc.MediaEngine
	assert.NoError(t, NewSyntheticOpener(30).ConfigureEngine(&engine))
}

func TestNewWriterCodecMapping(t *testing.T) {
	dir := t.TempDir()

	w, path, err := newWriter(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
	}, dir, "video")
	require.NoError(t, err)
	assert.Equal(t, ".ivf", filepath.Ext(path))
	require.NoError(t, w.Close())

	w, path, err = newWriter(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
	}, dir, "audio")
	require.NoError(t, err)
	assert.Equal(t, ".ogg", filepath.Ext(path))
	require.NoError(t, w.Close())

	_, _, err = newWriter(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: "video/h264"},
	}, dir, "video")
	assert.Error(t, err)
}
