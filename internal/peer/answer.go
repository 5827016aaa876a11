package peer

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
)

// Answer processes a remote offer and sends back our answer. Local tracks
// must already be attached via AddStream.
func (c *Call) Answer(payload json.RawMessage) error {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(payload, &offer); err != nil {
		return err
	}

	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return err
	}

	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return err
	}

	data, err := json.Marshal(answer)
	if err != nil {
		return err
	}
	return c.sig.SendAnswer(c.remoteID, data)
}
