package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"peercall/internal/config"
	"peercall/internal/media"
	"peercall/internal/peer"
	"peercall/internal/signaling"
)

// Signaler is the slice of the signaling client the session drives.
type Signaler interface {
	Connect(ctx context.Context) error
	Close()
	ID() string
	SendOffer(target string, payload json.RawMessage) error
	SendAnswer(target string, payload json.RawMessage) error
	SendCandidate(target string, payload json.RawMessage) error
	SendLeave(target string) error
}

// SignalerFactory builds a signaling client for one identity.
type SignalerFactory func(url, identity string, h signaling.Handler, log zerolog.Logger) Signaler

func defaultSignalerFactory(url, identity string, h signaling.Handler, log zerolog.Logger) Signaler {
	return signaling.NewClient(url, identity, h, log)
}

// Events are the session's user-facing callbacks, the Go analog of the UI
// bindings. All fields are optional and invoked without the session lock.
type Events struct {
	OnStatus           func(status Status, err error)
	OnIncomingCall     func(remoteID string)
	OnCallStarted      func(remoteID string, video bool)
	OnCallEnded        func(remoteID string)
	OnRemoteTrack      func(remoteID string, track *webrtc.TrackRemote)
	OnRemoteMediaState func(audio, video bool)
}

// Option customizes a Session.
type Option func(*Session)

// WithSignalerFactory replaces how signaling clients are built.
func WithSignalerFactory(f SignalerFactory) Option {
	return func(s *Session) { s.newSignaler = f }
}

// Session is the call controller: it owns the signaling identity, at most
// one active call with its local media stream, and the status state machine.
type Session struct {
	cfg         *config.Config
	opener      media.Opener
	events      Events
	newSignaler SignalerFactory
	log         zerolog.Logger

	mu        sync.Mutex
	status    Status
	identity  string
	sig       Signaler
	call      *peer.Call
	stream    *media.Stream
	muted     bool
	videoOff  bool
	gotRemote bool
	openTimer *time.Timer
	callTimer *time.Timer
}

// New creates a session. Initialize must be called to connect.
func New(cfg *config.Config, opener media.Opener, events Events, log zerolog.Logger, opts ...Option) *Session {
	s := &Session{
		cfg:         cfg,
		opener:      opener,
		events:      events,
		newSignaler: defaultSignalerFactory,
		log:         log.With().Str("component", "session").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the current signaling identity, empty before Initialize.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Status returns the current connection status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// ActiveRemote returns the remote identity of the call in flight, or empty.
func (s *Session) ActiveRemote() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.call == nil {
		return ""
	}
	return s.call.RemoteID()
}

// Muted reports whether local audio is muted.
func (s *Session) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

// VideoOff reports whether local video sending is disabled.
func (s *Session) VideoOff() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.videoOff
}

// Initialize requests a signaling identity. The connected status arrives
// asynchronously via OnStatus once the server acknowledges us; if no
// acknowledgement lands within the open timeout the session moves to error.
func (s *Session) Initialize() error {
	s.mu.Lock()
	if s.sig != nil {
		s.mu.Unlock()
		return ErrAlreadyInitialized
	}
	s.mu.Unlock()

	identity := s.cfg.Identity
	if identity == "" {
		identity = uuid.NewString()
	}
	return s.start(identity)
}

// Retry recovers from error or disconnected states: it tears down the
// current identity and media, generates a distinct identity, and
// re-initializes.
func (s *Session) Retry() error {
	s.EndCall()

	s.mu.Lock()
	old := s.identity
	sig := s.sig
	s.sig = nil
	if s.openTimer != nil {
		s.openTimer.Stop()
		s.openTimer = nil
	}
	s.mu.Unlock()
	if sig != nil {
		sig.Close()
	}

	identity := uuid.NewString()
	for identity == old {
		identity = uuid.NewString()
	}
	return s.start(identity)
}

// Close tears the session down: active call, signaling identity, timers.
func (s *Session) Close() {
	s.EndCall()

	s.mu.Lock()
	sig := s.sig
	s.sig = nil
	if s.openTimer != nil {
		s.openTimer.Stop()
		s.openTimer = nil
	}
	s.mu.Unlock()

	if sig != nil {
		sig.Close()
	}
	s.transition(StatusDisconnected, nil)
}

func (s *Session) start(identity string) error {
	sig := s.newSignaler(s.cfg.SignalingURL, identity, s.handler(), s.log)

	s.mu.Lock()
	s.identity = identity
	s.sig = sig
	s.mu.Unlock()

	s.transition(StatusConnecting, nil)

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.OpenTimeout)
	defer cancel()
	if err := sig.Connect(ctx); err != nil {
		cerr := classify(ErrorNetwork, err)
		s.transition(StatusError, cerr)
		return cerr
	}

	s.mu.Lock()
	s.openTimer = time.AfterFunc(s.cfg.OpenTimeout, func() { s.openTimedOut(sig) })
	s.mu.Unlock()
	return nil
}

func (s *Session) openTimedOut(sig Signaler) {
	s.mu.Lock()
	if s.sig != sig || s.status != StatusConnecting {
		s.mu.Unlock()
		return
	}
	s.sig = nil
	s.mu.Unlock()

	sig.Close()
	s.transition(StatusError, classify(ErrorNetwork, ErrOpenTimeout))
}

func (s *Session) handler() signaling.Handler {
	return signaling.Handler{
		OnOpen: func(id string) {
			s.mu.Lock()
			s.identity = id
			if s.openTimer != nil {
				s.openTimer.Stop()
				s.openTimer = nil
			}
			s.mu.Unlock()
			s.log.Info().Str("id", id).Msg("signaling open")
			s.transition(StatusConnected, nil)
		},
		OnReconnected: func(id string) {
			s.log.Info().Str("id", id).Msg("signaling reconnected")
			s.transition(StatusConnected, nil)
		},
		OnOffer: func(from string, payload json.RawMessage) {
			if err := s.AcceptIncoming(from, payload); err != nil {
				s.log.Error().Err(err).Str("from", from).Msg("accept incoming call")
			}
		},
		OnAnswer: func(from string, payload json.RawMessage) {
			s.mu.Lock()
			call := s.call
			s.mu.Unlock()
			if call == nil || call.RemoteID() != from {
				return
			}
			if err := call.HandleAnswer(payload); err != nil {
				s.log.Error().Err(err).Str("from", from).Msg("handle answer")
			}
		},
		OnCandidate: func(from string, payload json.RawMessage) {
			s.mu.Lock()
			call := s.call
			s.mu.Unlock()
			if call == nil || call.RemoteID() != from {
				return
			}
			if err := call.HandleCandidate(payload); err != nil {
				s.log.Warn().Err(err).Str("from", from).Msg("handle candidate")
			}
		},
		OnLeave: func(from string) {
			s.mu.Lock()
			active := s.call != nil && s.call.RemoteID() == from
			s.mu.Unlock()
			if active {
				s.log.Info().Str("from", from).Msg("remote left the call")
				s.EndCall()
			}
		},
		OnError: func(code, msg string) {
			err := classify(kindForCode(code), fmt.Errorf("signaling: %s (%s)", msg, code))
			s.log.Error().Str("code", code).Str("msg", msg).Msg("signaling error")
			s.transition(StatusError, err)
		},
		OnDisconnected: func(err error) {
			s.EndCall()
			s.transition(StatusDisconnected, classify(ErrorNetwork, err))
		},
	}
}

// StartOutgoing acquires local media (falling back to audio only) and calls
// remoteID. A call timeout aborts the attempt if no remote media arrives.
func (s *Session) StartOutgoing(remoteID string) error {
	s.mu.Lock()
	if s.status != StatusConnected {
		s.mu.Unlock()
		return ErrNotConnected
	}
	if s.call != nil {
		s.mu.Unlock()
		return ErrCallInProgress
	}
	sig := s.sig
	s.mu.Unlock()

	stream, err := media.Acquire(context.Background(), s.opener, media.Constraints{Audio: true, Video: true}, s.log)
	if err != nil {
		// Media failure is user-facing but not a status transition.
		return err
	}

	call, err := s.newCall(remoteID, sig)
	if err != nil {
		stream.Close()
		return classify(ErrorIncompatible, err)
	}

	if err := s.adopt(call, stream, true); err != nil {
		call.Close()
		stream.Close()
		return err
	}

	if err := call.AddStream(stream); err != nil {
		s.EndCall()
		return classify(ErrorIncompatible, err)
	}
	if err := call.Dial(); err != nil {
		s.EndCall()
		return classify(ErrorNetwork, err)
	}

	if s.events.OnCallStarted != nil {
		s.events.OnCallStarted(remoteID, stream.HasVideo())
	}
	return nil
}

// AcceptIncoming answers an inbound offer from remoteID. On media failure
// the call stays unanswered and the error is surfaced to the caller.
func (s *Session) AcceptIncoming(remoteID string, offer json.RawMessage) error {
	s.mu.Lock()
	if s.call != nil {
		sig := s.sig
		s.mu.Unlock()
		// Busy: at most one call at a time.
		if sig != nil {
			_ = sig.SendLeave(remoteID)
		}
		return ErrCallInProgress
	}
	sig := s.sig
	s.mu.Unlock()
	if sig == nil {
		return ErrNotConnected
	}

	if s.events.OnIncomingCall != nil {
		s.events.OnIncomingCall(remoteID)
	}

	stream, err := media.Acquire(context.Background(), s.opener, media.Constraints{Audio: true, Video: true}, s.log)
	if err != nil {
		return err
	}

	call, err := s.newCall(remoteID, sig)
	if err != nil {
		stream.Close()
		return classify(ErrorIncompatible, err)
	}

	if err := s.adopt(call, stream, false); err != nil {
		call.Close()
		stream.Close()
		return err
	}

	if err := call.AddStream(stream); err != nil {
		s.EndCall()
		return classify(ErrorIncompatible, err)
	}
	if err := call.Answer(offer); err != nil {
		s.EndCall()
		return classify(ErrorNetwork, err)
	}

	if s.events.OnCallStarted != nil {
		s.events.OnCallStarted(remoteID, stream.HasVideo())
	}
	return nil
}

func (s *Session) newCall(remoteID string, sig Signaler) (*peer.Call, error) {
	call, err := peer.NewCall(peer.Config{
		RemoteID:    remoteID,
		Signaler:    sig,
		Engine:      s.opener,
		STUNServers: s.cfg.STUNServers,
		Logger:      s.log,
	})
	if err != nil {
		return nil, err
	}

	call.OnTrack(func(track *webrtc.TrackRemote) {
		s.remoteTrackArrived(call, track)
	})
	call.OnStateChange(func(state webrtc.PeerConnectionState) {
		if state != webrtc.PeerConnectionStateFailed {
			return
		}
		s.mu.Lock()
		active := s.call == call
		s.mu.Unlock()
		if active {
			s.log.Warn().Str("remote", remoteID).Msg("peer connection failed")
			s.EndCall()
		}
	})
	call.Control().OnHangup(func() {
		s.log.Info().Str("remote", remoteID).Msg("remote hung up")
		s.EndCall()
	})
	call.Control().OnMediaState(func(audio, video bool) {
		if s.events.OnRemoteMediaState != nil {
			s.events.OnRemoteMediaState(audio, video)
		}
	})
	return call, nil
}

// adopt installs the call and stream as the session's single active call.
func (s *Session) adopt(call *peer.Call, stream *media.Stream, outgoing bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.call != nil {
		return ErrCallInProgress
	}
	s.call = call
	s.stream = stream
	s.muted = false
	s.videoOff = false
	s.gotRemote = false
	if outgoing {
		s.callTimer = time.AfterFunc(s.cfg.CallTimeout, func() { s.callTimedOut(call) })
	}
	return nil
}

func (s *Session) remoteTrackArrived(call *peer.Call, track *webrtc.TrackRemote) {
	s.mu.Lock()
	if s.call != call {
		s.mu.Unlock()
		return
	}
	s.gotRemote = true
	if s.callTimer != nil {
		s.callTimer.Stop()
		s.callTimer = nil
	}
	s.mu.Unlock()

	if s.events.OnRemoteTrack != nil {
		s.events.OnRemoteTrack(call.RemoteID(), track)
	}
}

func (s *Session) callTimedOut(call *peer.Call) {
	s.mu.Lock()
	stale := s.call != call || s.gotRemote
	s.mu.Unlock()
	if stale {
		return
	}
	s.log.Error().Str("remote", call.RemoteID()).Msg("no remote media before timeout")
	s.EndCall()
	s.transition(StatusError, classify(ErrorNetwork, ErrCallTimeout))
}

// EndCall closes any active connection, stops local media, clears handles
// and resets the mute/video flags. Safe to call with no active call.
func (s *Session) EndCall() {
	s.mu.Lock()
	call := s.call
	stream := s.stream
	timer := s.callTimer
	sig := s.sig
	s.call = nil
	s.stream = nil
	s.callTimer = nil
	s.muted = false
	s.videoOff = false
	s.gotRemote = false
	s.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if call == nil && stream == nil {
		return
	}

	var remote string
	if call != nil {
		remote = call.RemoteID()
		_ = call.Control().SendHangup()
		call.Close()
	}
	if stream != nil {
		stream.Close()
	}
	if sig != nil && remote != "" {
		_ = sig.SendLeave(remote)
	}
	s.log.Info().Str("remote", remote).Msg("call ended")
	if s.events.OnCallEnded != nil {
		s.events.OnCallEnded(remote)
	}
}

// ToggleMute flips local audio sending and returns the new muted flag.
// No-op without a local audio track.
func (s *Session) ToggleMute() bool {
	s.mu.Lock()
	if s.stream == nil || s.stream.AudioTrack() == nil {
		muted := s.muted
		s.mu.Unlock()
		return muted
	}
	s.muted = !s.muted
	muted := s.muted
	videoOn := !s.videoOff && s.stream.HasVideo()
	call := s.call
	var track webrtc.TrackLocal
	if !muted {
		track = s.stream.AudioTrack()
	}
	s.mu.Unlock()

	if call != nil {
		if err := call.SetAudioTrack(track); err != nil {
			s.log.Warn().Err(err).Msg("toggle mute")
		}
		_ = call.Control().SendMediaState(!muted, videoOn)
	}
	return muted
}

// ToggleVideo flips local video sending and returns the new video-off flag.
// No-op without a local video track (audio-only fallback included).
func (s *Session) ToggleVideo() bool {
	s.mu.Lock()
	if s.stream == nil || s.stream.VideoTrack() == nil {
		off := s.videoOff
		s.mu.Unlock()
		return off
	}
	s.videoOff = !s.videoOff
	off := s.videoOff
	muted := s.muted
	call := s.call
	var track webrtc.TrackLocal
	if !off {
		track = s.stream.VideoTrack()
	}
	s.mu.Unlock()

	if call != nil {
		if err := call.SetVideoTrack(track); err != nil {
			s.log.Warn().Err(err).Msg("toggle video")
		}
		_ = call.Control().SendMediaState(!muted, !off)
	}
	return off
}

func (s *Session) transition(status Status, err error) {
	s.mu.Lock()
	if s.status == status && err == nil {
		s.mu.Unlock()
		return
	}
	s.status = status
	s.mu.Unlock()

	evt := s.log.Info()
	if err != nil {
		evt = s.log.Error().Err(err)
	}
	evt.Str("status", status.String()).Msg("status change")

	if s.events.OnStatus != nil {
		s.events.OnStatus(status, err)
	}
}

var _ Signaler = (*signaling.Client)(nil)
