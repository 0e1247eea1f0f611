package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/bounteer/restream/internal/session"
)

func newTestServer(t *testing.T, store *session.Store) *httptest.Server {
	t.Helper()
	e := echo.New()
	NewEndpoint(store, zerolog.Nop()).Register(e)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv
}

func streamURL(srv *httptest.Server, id string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + id
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestForwardsMessagesThenCloses(t *testing.T) {
	store := session.NewStore()
	sess := session.New("s1", session.JobDescription, "tok", "f.csv", 8)
	store.Insert(sess)

	srv := newTestServer(t, store)

	conn := dial(t, streamURL(srv, "s1"))
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	// The delivery channel is buffered, so the whole replay fits without a
	// consumer keeping up.
	payloads := []string{"hello", "how are you", "goodbye"}
	for i, p := range payloads {
		sess.Send(session.Message{Seq: i, Payload: []byte(p)})
	}
	store.Remove(sess.ID)
	sess.CloseDelivery()

	for i, want := range payloads {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if mt != websocket.TextMessage {
			t.Errorf("read %d: message type = %d, want text", i, mt)
		}
		if string(data) != want {
			t.Errorf("read %d = %q, want %q", i, data, want)
		}
	}

	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("after last message: err = %v, want normal closure", err)
	}
}

func TestUnknownSessionRejected(t *testing.T) {
	srv := newTestServer(t, session.NewStore())

	_, resp, err := websocket.DefaultDialer.Dial(streamURL(srv, "never-issued"), nil)
	if err == nil {
		t.Fatal("dial with unknown session id succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("handshake response = %+v, want 404", resp)
	}
}

func TestSecondConsumerRejected(t *testing.T) {
	store := session.NewStore()
	sess := session.New("s1", session.JobDescription, "tok", "f.csv", 8)
	store.Insert(sess)

	srv := newTestServer(t, store)

	first := dial(t, streamURL(srv, "s1"))
	first.SetReadDeadline(time.Now().Add(5 * time.Second))

	// Reading one message proves the first connection holds the claim
	// before the second dial races in.
	sess.Send(session.Message{Seq: 0, Payload: []byte("hello")})
	if _, _, err := first.ReadMessage(); err != nil {
		t.Fatalf("first consumer read: %v", err)
	}

	second := dial(t, streamURL(srv, "s1"))
	second.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := second.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Errorf("second consumer read err = %v, want policy violation close", err)
	}

	// The first consumer is unaffected.
	sess.Send(session.Message{Seq: 1, Payload: []byte("still here")})
	_, data, err := first.ReadMessage()
	if err != nil {
		t.Fatalf("first consumer read after rejection: %v", err)
	}
	if string(data) != "still here" {
		t.Errorf("first consumer read %q after rejection", data)
	}

	sess.CloseDelivery()
}

func TestReconnectAfterDisconnect(t *testing.T) {
	store := session.NewStore()
	sess := session.New("s1", session.JobDescription, "tok", "f.csv", 8)
	store.Insert(sess)

	srv := newTestServer(t, store)

	first := dial(t, streamURL(srv, "s1"))
	first.SetReadDeadline(time.Now().Add(5 * time.Second))
	sess.Send(session.Message{Seq: 0, Payload: []byte("one")})
	if _, _, err := first.ReadMessage(); err != nil {
		t.Fatalf("first read: %v", err)
	}
	first.Close()

	// Wait for the endpoint to notice the peer is gone and release the
	// consumer claim before producing more.
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, ok := sess.Attach(); ok {
			sess.Detach()
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("claim never released after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}

	sess.Send(session.Message{Seq: 1, Payload: []byte("two")})
	second := dial(t, streamURL(srv, "s1"))
	second.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := second.ReadMessage()
	if err != nil {
		t.Fatalf("reattached read: %v", err)
	}
	if string(data) != "two" {
		t.Errorf("reattached read %q, want %q", data, "two")
	}

	sess.CloseDelivery()
}
