package chat

import (
	"context"
	"testing"
	"time"

	"github.com/ASDFGHan123/unichat/internal/bus"
	"go.uber.org/zap"
)

func inbound(convID, msgID, content string) *IndividualMessage {
	return &IndividualMessage{MessageCore: MessageCore{
		ID:             msgID,
		ConversationID: convID,
		SenderID:       convID,
		Content:        content,
		Timestamp:      time.Now(),
	}}
}

func TestIngestAppendsAndBumpsUnread(t *testing.T) {
	s := testStore(t, newFakeBackend())
	seedIndividual(s, "7")
	in := NewIngest(s, bus.New(), zap.NewNop())

	in.IngestMessage(inbound("7", "m1", "hi there"))

	conv := s.Get("7")
	if conv.Core().UnreadCount != 1 {
		t.Errorf("unread = %d, want 1 (conversation not active)", conv.Core().UnreadCount)
	}
	if conv.Core().LastMessage != "hi there" {
		t.Errorf("preview = %q, want hi there", conv.Core().LastMessage)
	}
	if got := len(s.Messages("7")); got != 1 {
		t.Errorf("cache has %d messages, want 1", got)
	}
}

func TestIngestActiveConversationNoUnread(t *testing.T) {
	s := testStore(t, newFakeBackend())
	seedIndividual(s, "7")
	_ = s.Select(context.Background(), "7")
	in := NewIngest(s, bus.New(), zap.NewNop())

	in.IngestMessage(inbound("7", "m1", "hello"))

	if got := s.Get("7").Core().UnreadCount; got != 0 {
		t.Errorf("unread = %d, want 0 for the active conversation", got)
	}
}

func TestIngestIdempotentOnMessageID(t *testing.T) {
	s := testStore(t, newFakeBackend())
	seedIndividual(s, "7")
	in := NewIngest(s, bus.New(), zap.NewNop())

	in.IngestMessage(inbound("7", "m1", "first"))
	in.IngestMessage(inbound("7", "m1", "first (redelivered)"))

	if got := len(s.Messages("7")); got != 1 {
		t.Fatalf("cache has %d messages, want 1 (idempotent on id)", got)
	}
	if got := s.Get("7").Core().UnreadCount; got != 1 {
		t.Errorf("unread = %d, want 1 (redelivery must not double count)", got)
	}
}

func TestIngestSynthesizesUnknownConversation(t *testing.T) {
	s := testStore(t, newFakeBackend())
	in := NewIngest(s, bus.New(), zap.NewNop())

	in.IngestMessage(inbound("55", "m1", "new contact"))

	conv := s.Get("55")
	if conv == nil {
		t.Fatal("conversation not synthesized for first message")
	}
	ic, ok := conv.(*IndividualConversation)
	if !ok {
		t.Fatalf("synthesized type = %T, want IndividualConversation", conv)
	}
	if ic.Draft {
		t.Error("synthesized conversation marked draft; the server clearly knows it")
	}

	gmsg := &GroupMessage{MessageCore: MessageCore{
		ID: "g1", ConversationID: "group-42", SenderID: "2", Content: "group hello",
	}, SenderName: "bob"}
	in.IngestMessage(gmsg)
	if _, ok := s.Get("group-42").(*GroupConversation); !ok {
		t.Error("group conversation not synthesized from group message")
	}
}

func TestIngestEchoKeysConversationByThread(t *testing.T) {
	s := testStore(t, newFakeBackend())
	in := NewIngest(s, bus.New(), zap.NewNop())

	// An own-message echo from another session: the sender is not the other
	// participant, so the thread id and the sender id differ.
	echo := &IndividualMessage{MessageCore: MessageCore{
		ID:             "m1",
		ConversationID: "9",
		SenderID:       "me",
		FromMe:         true,
		Content:        "sent elsewhere",
		Timestamp:      time.Now(),
	}}
	in.IngestMessage(echo)

	conv := s.Get("9")
	if conv == nil {
		t.Fatal("conversation not registered under the thread id")
	}
	if s.Get("me") != nil {
		t.Error("conversation registered under the sender id")
	}
	if got := len(s.Messages("9")); got != 1 {
		t.Errorf("cache under thread id has %d messages, want 1", got)
	}
	if got := conv.Core().UnreadCount; got != 0 {
		t.Errorf("unread = %d, want 0 for an own echo", got)
	}
}

func TestIngestViaBus(t *testing.T) {
	b := bus.New()
	s := NewStore(newFakeBackend(), b, zap.NewNop())
	s.SetBackoff(instantBackoff())
	seedIndividual(s, "7")

	in := NewIngest(s, b, zap.NewNop())
	in.Start(context.Background())
	defer in.Stop()

	b.Publish(bus.Event{
		Kind:      bus.KindRemoteMessage,
		Timestamp: time.Now(),
		Payload:   Message(inbound("7", "m9", "via bus")),
	})

	waitFor(t, func() bool { return len(s.Messages("7")) == 1 })
}

func TestIngestPresenceUpdate(t *testing.T) {
	s := testStore(t, newFakeBackend())
	seedIndividual(s, "7")
	in := NewIngest(s, bus.New(), zap.NewNop())

	in.applyPresence(PresenceUpdate{UserID: "7", Status: PresenceOnline})

	parts := s.Get("7").Core().Participants
	if len(parts) == 0 || parts[0].Status != PresenceOnline {
		t.Errorf("participant status = %v, want online", parts)
	}
}
