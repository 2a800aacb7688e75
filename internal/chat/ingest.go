package chat

import (
	"context"
	"strings"

	"github.com/ASDFGHan123/unichat/internal/bus"
	"go.uber.org/zap"
)

// Ingest applies inbound events from the live stream to the store. It
// subscribes to "remote.*" on the bus and is the only writer for
// backend-originated mutations, keeping "last write wins" races out of the
// UI path.
type Ingest struct {
	store  *Store
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
}

// NewIngest creates an ingest worker for the store.
func NewIngest(store *Store, b *bus.Bus, logger *zap.Logger) *Ingest {
	return &Ingest{store: store, bus: b, logger: logger}
}

// Start subscribes to inbound remote events on the bus.
func (in *Ingest) Start(ctx context.Context) {
	ctx, in.cancel = context.WithCancel(ctx)
	ch, unsub := in.bus.Subscribe("remote.", 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				in.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the worker.
func (in *Ingest) Stop() {
	if in.cancel != nil {
		in.cancel()
	}
}

func (in *Ingest) handleEvent(evt bus.Event) {
	switch evt.Kind {
	case bus.KindRemoteMessage:
		msg, ok := evt.Payload.(Message)
		if !ok {
			return
		}
		in.IngestMessage(msg)
	case bus.KindRemotePresence:
		p, ok := evt.Payload.(PresenceUpdate)
		if !ok {
			return
		}
		in.applyPresence(p)
	}
}

// PresenceUpdate is the payload for remote presence events.
type PresenceUpdate struct {
	UserID string
	Status Presence
}

// IngestMessage applies one inbound message: appends it to the owning
// conversation's cache, bumps the unread count if that conversation is not
// active, and refreshes activity bookkeeping. Idempotent on message id.
func (in *Ingest) IngestMessage(msg Message) {
	s := in.store
	core := msg.Core()
	if core.Delivery == "" {
		core.Delivery = DeliveryReceived
	}

	s.mu.Lock()
	conv, ok := s.convs[core.ConversationID]
	if !ok {
		conv = synthesize(msg)
		if conv == nil {
			s.mu.Unlock()
			in.logger.Warn("dropping message for unknown conversation",
				zap.String("conversation", core.ConversationID))
			return
		}
		s.convs[conv.Core().ID] = conv
	}

	c := s.ensureCacheLocked(core.ConversationID)
	replaced := false
	for i, existing := range c.messages {
		if existing.Core().ID == core.ID {
			c.messages[i] = msg
			replaced = true
			break
		}
	}
	if !replaced {
		c.messages = append(c.messages, msg)
		if s.active != core.ConversationID && !core.FromMe {
			conv.Core().UnreadCount++
		}
	}
	s.touchLocked(conv, core.Content, core.Timestamp)
	s.mu.Unlock()

	s.publish(bus.KindMessageUpserted, core.ConversationID)
	s.publish(bus.KindConversationUpserted, core.ConversationID)
}

func (in *Ingest) applyPresence(p PresenceUpdate) {
	s := in.store
	s.mu.Lock()
	for _, conv := range s.convs {
		parts := conv.Core().Participants
		for i := range parts {
			if parts[i].ID == p.UserID {
				parts[i].Status = p.Status
			}
		}
	}
	s.mu.Unlock()
	s.publish(bus.KindConversationUpserted, "")
}

// synthesize builds a conversation shell for a message whose thread the
// client has not seen yet (first message from a new contact or group, or an
// own-message echo from another session). The shell is keyed by the message's
// conversation id so the list entry and the cache can never diverge; for an
// individual thread that id is the other participant's user id even when the
// sender is someone else.
func synthesize(msg Message) Conversation {
	core := msg.Core()
	if _, ok := msg.(*GroupMessage); ok {
		groupID, found := cutGroupPrefix(core.ConversationID)
		if !found {
			return nil
		}
		return NewGroupConversation(groupID, "", nil)
	}
	if core.ConversationID == "" || strings.HasPrefix(core.ConversationID, GroupIDPrefix) {
		return nil
	}
	conv := NewIndividualConversation(User{ID: core.ConversationID})
	conv.Draft = false
	return conv
}

func cutGroupPrefix(id string) (string, bool) {
	if len(id) <= len(GroupIDPrefix) || id[:len(GroupIDPrefix)] != GroupIDPrefix {
		return "", false
	}
	return id[len(GroupIDPrefix):], true
}
