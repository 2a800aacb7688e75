package events

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ASDFGHan123/unichat/internal/bus"
	"github.com/ASDFGHan123/unichat/internal/chat"
	"github.com/ASDFGHan123/unichat/internal/status"
)

func testStream(t *testing.T, frames []string) (*Stream, *bus.Bus, *status.Machine) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		// Hold the connection open so the read loop blocks instead of
		// entering the reconnect path mid-test.
		time.Sleep(5 * time.Second)
		_ = conn.Close()
	}))
	t.Cleanup(srv.Close)

	b := bus.New()
	m := status.NewMachine(b)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	s := New(url, func() string { return "tok" }, b, m, zap.NewNop())
	return s, b, m
}

func TestStreamPublishesMessageFrames(t *testing.T) {
	frame := `{"type":"message","payload":{"id":"m1","conversation":"7","conversation_type":"individual","sender":"u2","content":"hello","timestamp":"2026-08-30T10:00:00Z"}}`
	s, b, m := testStream(t, []string{frame})

	ch, unsub := b.Subscribe("remote.", 10)
	defer unsub()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	select {
	case evt := <-ch:
		if evt.Kind != bus.KindRemoteMessage {
			t.Errorf("kind = %q", evt.Kind)
		}
		msg, ok := evt.Payload.(chat.Message)
		if !ok {
			t.Fatalf("payload type = %T", evt.Payload)
		}
		if _, ok := msg.(*chat.IndividualMessage); !ok {
			t.Errorf("message type = %T, want IndividualMessage", msg)
		}
		if msg.Core().ConversationID != "7" || msg.Core().Content != "hello" {
			t.Errorf("message = %+v", msg.Core())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no remote.message published")
	}
	if got := m.Current(); got != status.Ready {
		t.Errorf("state = %s, want READY", got)
	}
}

func TestStreamPublishesPresenceFrames(t *testing.T) {
	frame := `{"type":"presence","payload":{"user_id":"u3","status":"away"}}`
	s, b, _ := testStream(t, []string{frame})

	ch, unsub := b.Subscribe("remote.presence", 10)
	defer unsub()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	select {
	case evt := <-ch:
		p, ok := evt.Payload.(chat.PresenceUpdate)
		if !ok {
			t.Fatalf("payload type = %T", evt.Payload)
		}
		if p.UserID != "u3" || p.Status != chat.Presence("away") {
			t.Errorf("presence = %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no remote.presence published")
	}
}

func TestHandleGroupFrameNamespacesConversation(t *testing.T) {
	b := bus.New()
	s := New("ws://unused", func() string { return "" }, b, nil, zap.NewNop())

	ch, unsub := b.Subscribe("remote.message", 10)
	defer unsub()

	s.handle(envelope{
		Type:    "message",
		Payload: []byte(`{"id":"m2","conversation":"42","conversation_type":"group","group_name":"devs","sender":"u2","sender_name":"bob","content":"hey","timestamp":"2026-08-30T10:00:00Z"}`),
	})

	select {
	case evt := <-ch:
		msg := evt.Payload.(chat.Message)
		gm, ok := msg.(*chat.GroupMessage)
		if !ok {
			t.Fatalf("message type = %T, want GroupMessage", msg)
		}
		if gm.Core().ConversationID != "group-42" {
			t.Errorf("conversation id = %q, want group-42", gm.Core().ConversationID)
		}
		if gm.SenderName != "bob" {
			t.Errorf("sender name = %q", gm.SenderName)
		}
	default:
		t.Fatal("no event published")
	}
}

func TestHandleIgnoresUnknownAndMalformedFrames(t *testing.T) {
	b := bus.New()
	s := New("ws://unused", func() string { return "" }, b, nil, zap.NewNop())

	ch, unsub := b.Subscribe("remote.", 10)
	defer unsub()

	s.handle(envelope{Type: "typing", Payload: []byte(`{}`)})
	s.handle(envelope{Type: "message", Payload: []byte(`{broken`)})

	select {
	case evt := <-ch:
		t.Fatalf("unexpected event %q", evt.Kind)
	default:
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s, _, _ := testStream(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Error("Run returned nil after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}
