package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ErrNotConnected is returned when sending before Connect or after Close.
var ErrNotConnected = errors.New("signaling: not connected")

const pingInterval = 25 * time.Second

// Handler callbacks for incoming signaling events.
type Handler struct {
	OnOpen         func(id string)
	OnOffer        func(from string, payload json.RawMessage)
	OnAnswer       func(from string, payload json.RawMessage)
	OnCandidate    func(from string, payload json.RawMessage)
	OnLeave        func(from string)
	OnError        func(code, msg string)
	OnReconnected  func(id string)
	OnDisconnected func(err error)
}

// Client is a WebSocket signaling client. It registers a proposed identity
// with the server and dispatches routed messages to the Handler. On abnormal
// socket loss it re-dials once with the assigned identity; a second loss
// surfaces OnDisconnected.
type Client struct {
	url        string
	proposedID string
	handler    Handler
	log        zerolog.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	id       string
	opened   bool
	redialed bool
	closed   bool
	done     chan struct{}
}

// NewClient creates a signaling client. proposedID may be empty, in which
// case the server assigns one in its open acknowledgement.
func NewClient(url, proposedID string, handler Handler, log zerolog.Logger) *Client {
	return &Client{
		url:        url,
		proposedID: proposedID,
		handler:    handler,
		log:        log.With().Str("component", "signaling").Logger(),
		done:       make(chan struct{}),
	}
}

// Connect dials the signaling server, registers, and starts reading
// messages. The open acknowledgement arrives via Handler.OnOpen.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("signaling dial: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	if err := c.send(Message{Type: TypeRegister, ID: c.proposedID}); err != nil {
		conn.Close()
		return fmt.Errorf("signaling register: %w", err)
	}

	go c.readLoop()
	go c.pingLoop()
	return nil
}

// ID returns the identity assigned by the server, or empty before open.
func (c *Client) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// Close shuts down the connection. Idempotent.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	if c.conn != nil {
		c.conn.Close()
	}
}

// SendOffer sends an SDP offer to target.
func (c *Client) SendOffer(target string, payload json.RawMessage) error {
	return c.send(Message{Type: TypeOffer, Target: target, Payload: payload})
}

// SendAnswer sends an SDP answer to target.
func (c *Client) SendAnswer(target string, payload json.RawMessage) error {
	return c.send(Message{Type: TypeAnswer, Target: target, Payload: payload})
}

// SendCandidate sends an ICE candidate to target.
func (c *Client) SendCandidate(target string, payload json.RawMessage) error {
	return c.send(Message{Type: TypeCandidate, Target: target, Payload: payload})
}

// SendLeave tells target that we are leaving the call.
func (c *Client) SendLeave(target string) error {
	return c.send(Message{Type: TypeLeave, Target: target})
}

func (c *Client) send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.conn == nil {
		return ErrNotConnected
	}
	return c.conn.WriteJSON(msg)
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) readLoop() {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if c.isClosed() {
				return
			}
			if c.redial() {
				c.log.Warn().Err(err).Msg("signaling connection lost, reconnected")
				continue
			}
			c.log.Error().Err(err).Msg("signaling connection lost")
			c.Close()
			if c.handler.OnDisconnected != nil {
				c.handler.OnDisconnected(err)
			}
			return
		}
		c.dispatch(msg)
	}
}

// redial attempts a single reconnect, re-registering the assigned identity.
func (c *Client) redial() bool {
	c.mu.Lock()
	if c.redialed {
		c.mu.Unlock()
		return false
	}
	c.redialed = true
	id := c.id
	if id == "" {
		id = c.proposedID
	}
	c.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		return false
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return false
	}
	c.conn = conn
	c.mu.Unlock()

	if err := c.send(Message{Type: TypeRegister, ID: id}); err != nil {
		return false
	}
	return true
}

func (c *Client) dispatch(msg Message) {
	switch msg.Type {
	case TypeOpen:
		c.mu.Lock()
		c.id = msg.ID
		first := !c.opened
		c.opened = true
		c.mu.Unlock()
		if first {
			if c.handler.OnOpen != nil {
				c.handler.OnOpen(msg.ID)
			}
		} else if c.handler.OnReconnected != nil {
			c.handler.OnReconnected(msg.ID)
		}
	case TypeOffer:
		if c.handler.OnOffer != nil {
			c.handler.OnOffer(msg.From, msg.Payload)
		}
	case TypeAnswer:
		if c.handler.OnAnswer != nil {
			c.handler.OnAnswer(msg.From, msg.Payload)
		}
	case TypeCandidate:
		if c.handler.OnCandidate != nil {
			c.handler.OnCandidate(msg.From, msg.Payload)
		}
	case TypeLeave:
		if c.handler.OnLeave != nil {
			c.handler.OnLeave(msg.From)
		}
	case TypeError:
		if c.handler.OnError != nil {
			c.handler.OnError(msg.Code, msg.Msg)
		}
	case TypePong:
		// heartbeat response, nothing to do
	default:
		c.log.Debug().Str("type", msg.Type).Msg("ignoring unknown signaling message")
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			_ = c.send(Message{Type: TypePing})
		}
	}
}
