package peer

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// Signaler delivers SDP and ICE candidates to a remote identity. Satisfied
// by the signaling client.
type Signaler interface {
	SendOffer(target string, payload json.RawMessage) error
	SendAnswer(target string, payload json.RawMessage) error
	SendCandidate(target string, payload json.RawMessage) error
}

// EngineConfigurer registers codecs on the media engine used for a peer
// connection. Media openers implement it.
type EngineConfigurer interface {
	ConfigureEngine(engine *webrtc.MediaEngine) error
}

// newPeerConnection builds a PeerConnection with the configured ICE servers
// and pion's internal logs routed through zerolog.
func newPeerConnection(stunServers []string, engine EngineConfigurer, log zerolog.Logger) (*webrtc.PeerConnection, error) {
	var mediaEngine webrtc.MediaEngine
	if err := engine.ConfigureEngine(&mediaEngine); err != nil {
		return nil, fmt.Errorf("configure media engine: %w", err)
	}

	settingEngine := webrtc.SettingEngine{
		LoggerFactory: newLoggerFactory(log),
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(&mediaEngine),
		webrtc.WithSettingEngine(settingEngine),
	)

	var servers []webrtc.ICEServer
	for _, u := range stunServers {
		servers = append(servers, webrtc.ICEServer{URLs: []string{u}})
	}
	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: servers})
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	return pc, nil
}
