package peer

import (
	"encoding/json"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"peercall/internal/media"
	"peercall/internal/transport"
)

// Config assembles the collaborators for one call leg.
type Config struct {
	RemoteID    string
	Signaler    Signaler
	Engine      EngineConfigurer
	STUNServers []string
	Logger      zerolog.Logger
}

// Call is one peer connection leg of a call, offering or answering. It
// forwards ICE candidates through the signaler and carries an in-call
// control channel next to the media tracks.
type Call struct {
	pc       *webrtc.PeerConnection
	sig      Signaler
	remoteID string
	control  *transport.Control
	log      zerolog.Logger

	mu          sync.Mutex
	audioSender *webrtc.RTPSender
	videoSender *webrtc.RTPSender

	onTrack       func(track *webrtc.TrackRemote)
	onStateChange func(state webrtc.PeerConnectionState)
}

// NewCall creates a call leg toward cfg.RemoteID. Callbacks must be
// registered before Dial or Answer.
func NewCall(cfg Config) (*Call, error) {
	log := cfg.Logger.With().Str("component", "peer").Str("remote", cfg.RemoteID).Logger()
	pc, err := newPeerConnection(cfg.STUNServers, cfg.Engine, log)
	if err != nil {
		return nil, err
	}

	c := &Call{
		pc:       pc,
		sig:      cfg.Signaler,
		remoteID: cfg.RemoteID,
		control:  transport.NewControl(),
		log:      log,
	}

	pc.OnICECandidate(func(ic *webrtc.ICECandidate) {
		if ic == nil {
			return
		}
		data, err := json.Marshal(ic.ToJSON())
		if err != nil {
			c.log.Warn().Err(err).Msg("marshal ICE candidate")
			return
		}
		if err := c.sig.SendCandidate(c.remoteID, data); err != nil {
			c.log.Warn().Err(err).Msg("send ICE candidate")
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		c.log.Info().Str("kind", track.Kind().String()).Msg("remote track")
		if c.onTrack != nil {
			c.onTrack(track)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		c.log.Debug().Str("state", state.String()).Msg("peer connection state")
		if c.onStateChange != nil {
			c.onStateChange(state)
		}
	})

	// The answering side receives the control channel from the dialer.
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() == transport.ControlLabel {
			c.control.Attach(dc)
		}
	})

	return c, nil
}

// RemoteID returns the identity this leg is connected to.
func (c *Call) RemoteID() string { return c.remoteID }

// Control returns the in-call control transport.
func (c *Call) Control() *transport.Control { return c.control }

// OnTrack registers the remote track callback.
func (c *Call) OnTrack(cb func(track *webrtc.TrackRemote)) { c.onTrack = cb }

// OnStateChange registers the connection state callback.
func (c *Call) OnStateChange(cb func(state webrtc.PeerConnectionState)) { c.onStateChange = cb }

// AddStream attaches the local stream's tracks to the connection.
func (c *Call) AddStream(s *media.Stream) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if a := s.AudioTrack(); a != nil {
		sender, err := c.pc.AddTrack(a)
		if err != nil {
			return err
		}
		c.audioSender = sender
	}
	if v := s.VideoTrack(); v != nil {
		sender, err := c.pc.AddTrack(v)
		if err != nil {
			return err
		}
		c.videoSender = sender
	}
	return nil
}

// SetAudioTrack replaces the audio sender's track; nil stops sending, the
// pion equivalent of flipping a browser track's enabled flag. No-op when no
// audio sender exists.
func (c *Call) SetAudioTrack(track webrtc.TrackLocal) error {
	c.mu.Lock()
	sender := c.audioSender
	c.mu.Unlock()
	if sender == nil {
		return nil
	}
	return sender.ReplaceTrack(track)
}

// SetVideoTrack replaces the video sender's track; nil stops sending.
func (c *Call) SetVideoTrack(track webrtc.TrackLocal) error {
	c.mu.Lock()
	sender := c.videoSender
	c.mu.Unlock()
	if sender == nil {
		return nil
	}
	return sender.ReplaceTrack(track)
}

// HandleCandidate adds a remote ICE candidate.
func (c *Call) HandleCandidate(payload json.RawMessage) error {
	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal(payload, &candidate); err != nil {
		return err
	}
	return c.pc.AddICECandidate(candidate)
}

// Close shuts down the peer connection.
func (c *Call) Close() {
	if c.pc != nil {
		c.pc.Close()
	}
}
