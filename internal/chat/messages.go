package chat

import (
	"context"
	"time"

	"github.com/ASDFGHan123/unichat/internal/bus"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Messages returns a snapshot of the conversation's cached messages in
// chronological order. Entries are clones; the store keeps mutating its own
// records (delivery transitions, confirmed edits) under the lock, and those
// writes must never show through a snapshot a render loop is still reading.
func (s *Store) Messages(conversationID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.caches[conversationID]
	if !ok {
		return nil
	}
	out := make([]Message, len(c.messages))
	for i, m := range c.messages {
		out[i] = cloneMessage(m)
	}
	return out
}

// FetchState returns the history-fetch state for a conversation.
func (s *Store) FetchState(conversationID string) FetchState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.caches[conversationID]; ok {
		return c.fetch
	}
	return FetchState{Phase: FetchIdle}
}

// EditLoading reports whether an edit is in flight for the given message.
func (s *Store) EditLoading(conversationID, messageID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.caches[conversationID]; ok {
		return c.editing[messageID]
	}
	return false
}

// DeleteLoading reports whether a delete is in flight for the given message.
func (s *Store) DeleteLoading(conversationID, messageID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.caches[conversationID]; ok {
		return c.deleting[messageID]
	}
	return false
}

// Send validates and sends a message. The entry is appended optimistically
// with a client-generated id and DeliveryPending, then reconciled with the
// server response. A rejected send stays in the cache as DeliveryFailed so
// the user can retry or discard it; it is never rolled back silently.
func (s *Store) Send(ctx context.Context, conversationID, content string, attachments []Attachment) (Message, error) {
	if err := ValidateOutgoing(content, attachments); err != nil {
		return nil, err
	}

	s.mu.Lock()
	conv, ok := s.convs[conversationID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrConversationNotFound
	}
	optimistic := newOutgoing(conv, content, attachments)
	c := s.ensureCacheLocked(conversationID)
	c.messages = append(c.messages, optimistic)
	s.mu.Unlock()

	s.publish(bus.KindMessageUpserted, conversationID)

	return s.deliver(ctx, conv, optimistic)
}

// RetrySend re-issues a failed optimistic send.
func (s *Store) RetrySend(ctx context.Context, conversationID, messageID string) (Message, error) {
	s.mu.Lock()
	conv, ok := s.convs[conversationID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrConversationNotFound
	}
	msg := s.findLocked(conversationID, messageID)
	if msg == nil || msg.Core().Delivery != DeliveryFailed {
		s.mu.Unlock()
		return nil, ErrMessageNotFound
	}
	msg.Core().Delivery = DeliveryPending
	s.mu.Unlock()

	s.publish(bus.KindMessageUpserted, conversationID)

	return s.deliver(ctx, conv, msg)
}

// DiscardSend drops a failed optimistic entry from the cache.
func (s *Store) DiscardSend(conversationID, messageID string) error {
	s.mu.Lock()
	c, ok := s.caches[conversationID]
	if !ok {
		s.mu.Unlock()
		return ErrConversationNotFound
	}
	removed := false
	for i, m := range c.messages {
		if m.Core().ID == messageID && m.Core().Delivery == DeliveryFailed {
			c.messages = append(c.messages[:i], c.messages[i+1:]...)
			removed = true
			break
		}
	}
	s.mu.Unlock()
	if !removed {
		return ErrMessageNotFound
	}
	s.publish(bus.KindMessageDeleted, conversationID)
	return nil
}

// deliver performs the backend send for an already-appended optimistic entry
// and reconciles the cache with the outcome.
func (s *Store) deliver(ctx context.Context, conv Conversation, optimistic Message) (Message, error) {
	id := conv.Core().ID
	tempID := optimistic.Core().ID

	s.mu.RLock()
	content := optimistic.Core().Content
	attachments := optimistic.Core().Attachments
	s.mu.RUnlock()

	confirmed, err := s.backend.SendMessage(ctx, conv, content, attachments)
	if err != nil {
		s.mu.Lock()
		if m := s.findLocked(id, tempID); m != nil {
			m.Core().Delivery = DeliveryFailed
		}
		out := cloneMessage(optimistic)
		s.mu.Unlock()
		s.logger.Error("send failed", zap.String("conversation", id), zap.Error(err))
		s.publish(bus.KindMessageSendFailed, id)
		return out, err
	}

	confirmed.Core().Delivery = DeliverySent
	confirmed.Core().FromMe = true

	s.mu.Lock()
	c := s.caches[id]
	if c != nil {
		replaced := false
		for i, m := range c.messages {
			if m.Core().ID == tempID {
				c.messages[i] = confirmed
				replaced = true
				break
			}
		}
		if !replaced {
			// Discarded while in flight; keep the confirmed entry anyway so
			// a delivered message is never invisible.
			c.messages = append(c.messages, confirmed)
		}
	}
	if ic, ok := conv.(*IndividualConversation); ok {
		ic.Draft = false
	}
	s.touchLocked(conv, confirmed.Core().Content, confirmed.Core().Timestamp)
	out := cloneMessage(confirmed)
	s.mu.Unlock()

	s.publish(bus.KindMessageSendAck, id)
	return out, nil
}

// Edit changes a message's content. The edit is not optimistic: the cache is
// mutated only after the backend confirms, and a per-message loading flag
// keeps concurrent row spinners independent.
func (s *Store) Edit(ctx context.Context, conversationID, messageID, content string) error {
	if err := ValidateOutgoing(content, nil); err != nil {
		return err
	}

	s.mu.Lock()
	conv, ok := s.convs[conversationID]
	if !ok {
		s.mu.Unlock()
		return ErrConversationNotFound
	}
	c := s.ensureCacheLocked(conversationID)
	if s.findLocked(conversationID, messageID) == nil {
		s.mu.Unlock()
		return ErrMessageNotFound
	}
	c.editing[messageID] = true
	s.mu.Unlock()

	err := s.backend.EditMessage(ctx, conv, messageID, content)

	s.mu.Lock()
	delete(c.editing, messageID)
	if err == nil {
		if m := s.findLocked(conversationID, messageID); m != nil {
			m.Core().Content = content
			m.Core().Edited = true
			m.Core().EditedAt = time.Now()
		}
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("edit failed", zap.String("message", messageID), zap.Error(err))
		return err
	}
	s.publish(bus.KindMessageUpserted, conversationID)
	return nil
}

// DeleteMessage removes a message after backend confirmation, mirroring Edit.
func (s *Store) DeleteMessage(ctx context.Context, conversationID, messageID string) error {
	s.mu.Lock()
	conv, ok := s.convs[conversationID]
	if !ok {
		s.mu.Unlock()
		return ErrConversationNotFound
	}
	c := s.ensureCacheLocked(conversationID)
	if s.findLocked(conversationID, messageID) == nil {
		s.mu.Unlock()
		return ErrMessageNotFound
	}
	c.deleting[messageID] = true
	s.mu.Unlock()

	err := s.backend.DeleteMessage(ctx, conv, messageID)

	s.mu.Lock()
	delete(c.deleting, messageID)
	if err == nil {
		for i, m := range c.messages {
			if m.Core().ID == messageID {
				c.messages = append(c.messages[:i], c.messages[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("delete failed", zap.String("message", messageID), zap.Error(err))
		return err
	}
	s.publish(bus.KindMessageDeleted, conversationID)
	return nil
}

// findLocked returns the cached message with the given id. Callers hold s.mu.
func (s *Store) findLocked(conversationID, messageID string) Message {
	c, ok := s.caches[conversationID]
	if !ok {
		return nil
	}
	for _, m := range c.messages {
		if m.Core().ID == messageID {
			return m
		}
	}
	return nil
}

// newOutgoing builds the optimistic entry matching the conversation variant.
func newOutgoing(conv Conversation, content string, attachments []Attachment) Message {
	core := MessageCore{
		ID:             uuid.New().String(),
		ConversationID: conv.Core().ID,
		Content:        content,
		Timestamp:      time.Now(),
		Attachments:    attachments,
		Delivery:       DeliveryPending,
		FromMe:         true,
	}
	if _, ok := conv.(*GroupConversation); ok {
		return &GroupMessage{MessageCore: core}
	}
	return &IndividualMessage{MessageCore: core}
}
