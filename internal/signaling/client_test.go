package signaling

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer is a minimal in-process signaling server. It acknowledges every
// register with an open message and forwards whatever the test script tells
// it to.
type fakeServer struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conns    []*websocket.Conn
	received chan Message

	// assignID rewrites empty register identities.
	assignID string
	// dropAfterOpen closes the socket right after acknowledging register.
	dropAfterOpen bool
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{received: make(chan Message, 16)}
	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := fs.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fs.mu.Lock()
		fs.conns = append(fs.conns, conn)
		fs.mu.Unlock()
		for {
			var msg Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Type == TypeRegister {
				id := msg.ID
				if id == "" {
					id = fs.assignID
				}
				_ = conn.WriteJSON(Message{Type: TypeOpen, ID: id})
				if fs.dropAfterOpen {
					conn.Close()
					return
				}
				continue
			}
			if msg.Type == TypePing {
				_ = conn.WriteJSON(Message{Type: TypePong})
				continue
			}
			fs.received <- msg
		}
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) url() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http")
}

func (fs *fakeServer) push(t *testing.T, msg Message) {
	t.Helper()
	fs.mu.Lock()
	defer fs.mu.Unlock()
	require.NotEmpty(t, fs.conns)
	require.NoError(t, fs.conns[len(fs.conns)-1].WriteJSON(msg))
}

func (fs *fakeServer) dropLast(t *testing.T) {
	t.Helper()
	fs.mu.Lock()
	defer fs.mu.Unlock()
	require.NotEmpty(t, fs.conns)
	fs.conns[len(fs.conns)-1].Close()
}

func recv[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		panic("unreachable")
	}
}

func TestConnectOpen(t *testing.T) {
	fs := newFakeServer(t)
	opened := make(chan string, 1)

	c := NewClient(fs.url(), "alice", Handler{
		OnOpen: func(id string) { opened <- id },
	}, zerolog.Nop())
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	assert.Equal(t, "alice", recv(t, opened, "open"))
	assert.Equal(t, "alice", c.ID())
}

func TestServerAssignedIdentity(t *testing.T) {
	fs := newFakeServer(t)
	fs.assignID = "srv-0001"
	opened := make(chan string, 1)

	c := NewClient(fs.url(), "", Handler{
		OnOpen: func(id string) { opened <- id },
	}, zerolog.Nop())
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	assert.Equal(t, "srv-0001", recv(t, opened, "open"))
	assert.Equal(t, "srv-0001", c.ID())
}

func TestRoutedMessages(t *testing.T) {
	fs := newFakeServer(t)
	opened := make(chan string, 1)
	type routed struct {
		from    string
		payload json.RawMessage
	}
	offers := make(chan routed, 1)
	leaves := make(chan string, 1)

	c := NewClient(fs.url(), "alice", Handler{
		OnOpen:  func(id string) { opened <- id },
		OnOffer: func(from string, payload json.RawMessage) { offers <- routed{from, payload} },
		OnLeave: func(from string) { leaves <- from },
	}, zerolog.Nop())
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()
	recv(t, opened, "open")

	fs.push(t, Message{Type: TypeOffer, From: "bob", Payload: json.RawMessage(`{"sdp":"v=0"}`)})
	got := recv(t, offers, "offer")
	assert.Equal(t, "bob", got.from)
	assert.JSONEq(t, `{"sdp":"v=0"}`, string(got.payload))

	fs.push(t, Message{Type: TypeLeave, From: "bob"})
	assert.Equal(t, "bob", recv(t, leaves, "leave"))
}

func TestSendOffer(t *testing.T) {
	fs := newFakeServer(t)
	opened := make(chan string, 1)

	c := NewClient(fs.url(), "alice", Handler{
		OnOpen: func(id string) { opened <- id },
	}, zerolog.Nop())
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()
	recv(t, opened, "open")

	require.NoError(t, c.SendOffer("bob", json.RawMessage(`{"type":"offer"}`)))
	msg := recv(t, fs.received, "forwarded offer")
	assert.Equal(t, TypeOffer, msg.Type)
	assert.Equal(t, "bob", msg.Target)
}

func TestErrorMessage(t *testing.T) {
	fs := newFakeServer(t)
	opened := make(chan string, 1)
	errs := make(chan string, 1)

	c := NewClient(fs.url(), "alice", Handler{
		OnOpen:  func(id string) { opened <- id },
		OnError: func(code, msg string) { errs <- code },
	}, zerolog.Nop())
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()
	recv(t, opened, "open")

	fs.push(t, Message{Type: TypeError, Code: CodeIDTaken, Msg: "identity already registered"})
	assert.Equal(t, CodeIDTaken, recv(t, errs, "error"))
}

func TestReconnectOnceThenDisconnect(t *testing.T) {
	fs := newFakeServer(t)
	opened := make(chan string, 1)
	reconnected := make(chan string, 1)
	disconnected := make(chan error, 1)

	c := NewClient(fs.url(), "alice", Handler{
		OnOpen:         func(id string) { opened <- id },
		OnReconnected:  func(id string) { reconnected <- id },
		OnDisconnected: func(err error) { disconnected <- err },
	}, zerolog.Nop())
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()
	recv(t, opened, "open")

	// First loss: the client re-dials and re-registers on its own.
	fs.dropLast(t)
	assert.Equal(t, "alice", recv(t, reconnected, "reconnect"))

	// Second loss is terminal.
	fs.dropLast(t)
	assert.Error(t, recv(t, disconnected, "disconnect"))
}

func TestSendBeforeConnect(t *testing.T) {
	c := NewClient("ws://unused", "alice", Handler{}, zerolog.Nop())
	assert.ErrorIs(t, c.SendLeave("bob"), ErrNotConnected)
}

func TestCloseIdempotent(t *testing.T) {
	fs := newFakeServer(t)
	opened := make(chan string, 1)
	c := NewClient(fs.url(), "alice", Handler{
		OnOpen: func(id string) { opened <- id },
	}, zerolog.Nop())
	require.NoError(t, c.Connect(context.Background()))
	recv(t, opened, "open")

	c.Close()
	c.Close()
	assert.ErrorIs(t, c.SendLeave("bob"), ErrNotConnected)
}

func TestConnectDialFailure(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1", "alice", Handler{}, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Error(t, c.Connect(ctx))
}
