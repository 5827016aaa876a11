package peer

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"

	"peercall/internal/transport"
)

// Dial initiates the call: create the control channel, send an offer.
func (c *Call) Dial() error {
	dc, err := c.pc.CreateDataChannel(transport.ControlLabel, nil)
	if err != nil {
		return err
	}
	c.control.Attach(dc)

	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return err
	}

	payload, err := json.Marshal(offer)
	if err != nil {
		return err
	}
	return c.sig.SendOffer(c.remoteID, payload)
}

// HandleAnswer processes the remote SDP answer to our offer.
func (c *Call) HandleAnswer(payload json.RawMessage) error {
	var answer webrtc.SessionDescription
	if err := json.Unmarshal(payload, &answer); err != nil {
		return err
	}
	return c.pc.SetRemoteDescription(answer)
}
