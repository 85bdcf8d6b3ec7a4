package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/events"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const waitFor = 2 * time.Second

// fakeServer is an event server that accepts connections, records
// inbound frames and lets tests push frames or drop connections.
type fakeServer struct {
	*httptest.Server

	mu       sync.Mutex
	conns    []*websocket.Conn
	received [][]byte
	tokens   []string
	accepted atomic.Int32
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fs.mu.Lock()
		fs.conns = append(fs.conns, conn)
		fs.tokens = append(fs.tokens, r.URL.Query().Get("token"))
		fs.mu.Unlock()
		fs.accepted.Add(1)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			fs.mu.Lock()
			fs.received = append(fs.received, data)
			fs.mu.Unlock()
		}
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fakeServer) wsURL() string {
	return "ws" + strings.TrimPrefix(fs.URL, "http")
}

func (fs *fakeServer) push(t *testing.T, frame string) {
	t.Helper()
	fs.mu.Lock()
	conn := fs.conns[len(fs.conns)-1]
	fs.mu.Unlock()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func (fs *fakeServer) dropAll() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for _, c := range fs.conns {
		_ = c.Close()
	}
}

func (fs *fakeServer) frames() [][]byte {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([][]byte(nil), fs.received...)
}

func startClient(t *testing.T, fs *fakeServer, machine *status.Machine) *Client {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	c := New(Options{
		URL:          fs.wsURL(),
		Token:        "secret",
		ReconnectMin: 10 * time.Millisecond,
		ReconnectMax: 50 * time.Millisecond,
	}, machine, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	require.Eventually(t, func() bool { return c.IsConnected() && fs.accepted.Load() >= 1 }, waitFor, 5*time.Millisecond)
	return c
}

func TestDeliversToAllListeners(t *testing.T) {
	fs := newFakeServer(t)
	c := startClient(t, fs, nil)

	var mu sync.Mutex
	var got []string
	for _, tag := range []string{"a", "b"} {
		c.AddEventListener(events.Typing, func(evt events.Event) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, tag+":"+evt.(*events.TypingEvent).UserID)
		})
	}

	fs.push(t, `{"type":"message:user_typing","data":{"conversation_id":"c1","user_id":"u2","is_typing":true}}`)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, waitFor, 5*time.Millisecond)
	assert.ElementsMatch(t, []string{"a:u2", "b:u2"}, got)
}

func TestMalformedFramesAreDropped(t *testing.T) {
	fs := newFakeServer(t)
	c := startClient(t, fs, nil)

	var count atomic.Int32
	c.AddEventListener(events.NoteCreate, func(events.Event) { count.Add(1) })

	fs.push(t, `not json`)
	fs.push(t, `{"type":"note.create","data":null}`)
	fs.push(t, `{"type":"note.create","data":{"id":"n1","title":"ok"}}`)

	require.Eventually(t, func() bool { return count.Load() == 1 }, waitFor, 5*time.Millisecond)
	assert.True(t, c.IsConnected(), "malformed frames must not drop the connection")
}

func TestUnsubscribe(t *testing.T) {
	c := New(Options{URL: "ws://unused"}, nil, nil)

	var count atomic.Int32
	unsub := c.AddEventListener(events.NoteDelete, func(events.Event) { count.Add(1) })
	c.HandleFrame([]byte(`{"type":"note.delete","data":{"note_id":"n1"}}`))
	unsub()
	unsub()
	c.HandleFrame([]byte(`{"type":"note.delete","data":{"note_id":"n1"}}`))

	assert.Equal(t, int32(1), count.Load())
	assert.Equal(t, 0, c.ListenerCount(events.NoteDelete))
}

func TestPanickingHandlerDoesNotStopOthers(t *testing.T) {
	c := New(Options{URL: "ws://unused"}, nil, nil)

	var count atomic.Int32
	c.AddEventListener(events.NoteDelete, func(events.Event) { panic("boom") })
	c.AddEventListener(events.NoteDelete, func(events.Event) { count.Add(1) })

	c.HandleFrame([]byte(`{"type":"note.delete","data":{"note_id":"n1"}}`))
	assert.Equal(t, int32(1), count.Load())
}

func TestSendWritesEnvelope(t *testing.T) {
	fs := newFakeServer(t)
	c := startClient(t, fs, nil)

	err := c.Send(context.Background(), events.SendTyping, map[string]any{"conversation_id": "c1", "is_typing": true})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(fs.frames()) == 1 }, waitFor, 5*time.Millisecond)
	var env events.Envelope
	require.NoError(t, json.Unmarshal(fs.frames()[0], &env))
	assert.Equal(t, "message.typing", env.Type)
	assert.JSONEq(t, `{"conversation_id":"c1","is_typing":true}`, string(env.Data))
	fs.mu.Lock()
	defer fs.mu.Unlock()
	assert.Equal(t, "secret", fs.tokens[0])
}

func TestSendWhileDisconnected(t *testing.T) {
	c := New(Options{URL: "ws://unused"}, nil, nil)
	err := c.Send(context.Background(), events.SendTyping, map[string]any{})
	assert.True(t, errors.Is(err, ErrNotConnected))
}

func TestReconnectsAfterDrop(t *testing.T) {
	fs := newFakeServer(t)
	b := bus.New()
	ch, unsub := b.Subscribe("connection.", 64)
	defer unsub()
	machine := status.NewMachine(b)
	startClient(t, fs, machine)

	fs.dropAll()

	require.Eventually(t, func() bool { return fs.accepted.Load() >= 2 }, waitFor, 5*time.Millisecond)
	require.Eventually(t, machine.IsConnected, waitFor, 5*time.Millisecond)

	var sawReconnecting bool
	for {
		select {
		case evt := <-ch:
			if evt.Payload.(status.StatusChange).To == status.Reconnecting {
				sawReconnecting = true
			}
			continue
		default:
		}
		break
	}
	assert.True(t, sawReconnecting, "drop should pass through RECONNECTING")
}

type failingDial struct {
	calls atomic.Int32
}

func (f *failingDial) dial(context.Context, string, http.Header) (Conn, error) {
	f.calls.Add(1)
	return nil, errors.New("refused")
}

func TestRunStopsOnCancel(t *testing.T) {
	fd := &failingDial{}
	machine := status.NewMachine(nil)
	c := New(Options{URL: "ws://unused", ReconnectMin: time.Millisecond, ReconnectMax: 2 * time.Millisecond, Dial: fd.dial}, machine, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return fd.calls.Load() >= 3 }, waitFor, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(waitFor):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, status.Closed, machine.Current())
}
