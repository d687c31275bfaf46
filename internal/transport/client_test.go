package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BioHazard786/Coderoom/internal/errs"
	"github.com/gorilla/websocket"
)

type testServer struct {
	*httptest.Server
	conns    chan *websocket.Conn
	received chan []byte
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		conns:    make(chan *websocket.Conn, 1),
		received: make(chan []byte, 16),
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "good" {
			http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ts.conns <- conn
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			ts.received <- data
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) url(token string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/collaboration/r1?token=" + token
}

func (ts *testServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-ts.conns:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatalf("server never accepted a connection")
		return nil
	}
}

func TestConnectUnauthorized(t *testing.T) {
	ts := newTestServer(t)
	c := NewClient(ts.url("bad"))
	err := c.Connect(context.Background())
	if !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("Connect err=%v, want ErrUnauthorized", err)
	}
}

func TestDispatchByKindInOrder(t *testing.T) {
	ts := newTestServer(t)
	c := NewClient(ts.url("good"))

	got := make(chan string, 8)
	c.Handle(KindEdit, func(f *Frame) { got <- "edit:" + f.Content })
	c.Handle(KindChat, func(f *Frame) { got <- "chat:" + f.Content })
	c.Handle(KindVideoSignal, func(f *Frame) { got <- "signal:" + string(f.VideoSignal.Type) })
	c.OnRoomClosed(func(f *Frame) { got <- "closed" })

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(c.Close)
	conn := ts.accept(t)

	frames := []string{
		`{"type":"edit","content":"a"}`,
		`garbage`,
		`{"type":"chat","content":"hello"}`,
		`{"videoSignal":{"type":"video-introduce","from":"u2"}}`,
		`{"type":"edit","content":"ab"}`,
		`{"type":"edit","content":"// Room has been closed"}`,
		`{"type":"chat","content":"Room has been closed?"}`,
		`{"type":"room_closed","content":"Room has been closed by admin."}`,
	}
	for _, f := range frames {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
			t.Fatal(err)
		}
	}

	want := []string{"edit:a", "chat:hello", "signal:video-introduce", "edit:ab",
		"edit:// Room has been closed", "chat:Room has been closed?", "closed"}
	for i, w := range want {
		select {
		case g := <-got:
			if g != w {
				t.Fatalf("frame %d=%q, want %q", i, g, w)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %q", w)
		}
	}
}

func TestSendReachesServer(t *testing.T) {
	ts := newTestServer(t)
	c := NewClient(ts.url("good"))
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(c.Close)
	ts.accept(t)

	if err := c.Send(EditFrame("r1", "abc")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case data := <-ts.received:
		f, err := Decode(data)
		if err != nil {
			t.Fatalf("server got undecodable frame %s: %v", data, err)
		}
		if f.Type != KindEdit || f.Content != "abc" || f.RoomID != "r1" {
			t.Fatalf("server got %+v", f)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("server received nothing")
	}
}

func TestServerCloseReportedWithoutReconnect(t *testing.T) {
	ts := newTestServer(t)
	c := NewClient(ts.url("good"))
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn := ts.accept(t)
	conn.Close()

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("Done never fired after server dropped the connection")
	}
	if !IsClosed(c.Err()) {
		t.Fatalf("Err=%v, want ErrChannelClosed", c.Err())
	}
	if err := c.Send(ChatFrame("r1", "late")); !errors.Is(err, errs.ErrChannelClosed) {
		t.Fatalf("Send after close err=%v, want ErrChannelClosed", err)
	}

	select {
	case <-ts.conns:
		t.Fatalf("client reconnected on its own")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestLocalCloseHasNoError(t *testing.T) {
	ts := newTestServer(t)
	c := NewClient(ts.url("good"))
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	ts.accept(t)

	c.Close()
	c.Close()

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("Done never fired after Close")
	}
	if c.Err() != nil {
		t.Fatalf("Err=%v after local close, want nil", c.Err())
	}
}

func TestSendBeforeConnect(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1/collaboration/r1?token=x")
	if err := c.Send(ChatFrame("r1", "hi")); !errors.Is(err, errs.ErrNotConnected) {
		t.Fatalf("Send err=%v, want ErrNotConnected", err)
	}
}
