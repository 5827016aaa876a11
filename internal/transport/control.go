package transport

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
)

// ControlLabel is the data channel label used for in-call control events.
const ControlLabel = "control"

// Event types carried over the control channel.
const (
	eventHangup = "hangup"
	eventMedia  = "media"
)

type controlEvent struct {
	Type  string `json:"type"`
	Audio bool   `json:"audio,omitempty"`
	Video bool   `json:"video,omitempty"`
}

// Channel is the subset of webrtc.DataChannel the control transport needs.
type Channel interface {
	Send(data []byte) error
	OnMessage(f func(msg webrtc.DataChannelMessage))
}

// Control carries hangup and media-state events between the two call legs
// over a dedicated data channel.
type Control struct {
	mu sync.Mutex
	ch Channel

	onHangup func()
	onMedia  func(audio, video bool)
}

// NewControl creates an unattached control transport. Attach wires the data
// channel once it exists (created on the offering side, received on the
// answering side).
func NewControl() *Control {
	return &Control{}
}

// Attach sets or replaces the underlying data channel.
func (c *Control) Attach(ch Channel) {
	c.mu.Lock()
	c.ch = ch
	c.mu.Unlock()
	ch.OnMessage(func(msg webrtc.DataChannelMessage) {
		c.dispatch(msg.Data)
	})
}

// OnHangup registers the callback for a remote hangup.
func (c *Control) OnHangup(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onHangup = cb
}

// OnMediaState registers the callback for remote mute/video-state updates.
func (c *Control) OnMediaState(cb func(audio, video bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMedia = cb
}

// SendHangup tells the remote peer the call is over.
func (c *Control) SendHangup() error {
	return c.send(controlEvent{Type: eventHangup})
}

// SendMediaState announces our current mute/video flags.
func (c *Control) SendMediaState(audio, video bool) error {
	return c.send(controlEvent{Type: eventMedia, Audio: audio, Video: video})
}

func (c *Control) send(evt controlEvent) error {
	c.mu.Lock()
	ch := c.ch
	c.mu.Unlock()
	if ch == nil {
		return fmt.Errorf("control channel not attached")
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return ch.Send(data)
}

func (c *Control) dispatch(data []byte) {
	var evt controlEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return
	}
	c.mu.Lock()
	onHangup := c.onHangup
	onMedia := c.onMedia
	c.mu.Unlock()

	switch evt.Type {
	case eventHangup:
		if onHangup != nil {
			onHangup()
		}
	case eventMedia:
		if onMedia != nil {
			onMedia(evt.Audio, evt.Video)
		}
	}
}
