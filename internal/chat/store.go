package chat

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ASDFGHan123/unichat/internal/backoff"
	"github.com/ASDFGHan123/unichat/internal/bus"
	"go.uber.org/zap"
)

// Backend is the remote collaborator the store talks to. Implemented by
// api.Client; faked in tests.
type Backend interface {
	ListMessages(ctx context.Context, conv Conversation) ([]Message, error)
	SendMessage(ctx context.Context, conv Conversation, content string, attachments []Attachment) (Message, error)
	EditMessage(ctx context.Context, conv Conversation, messageID, content string) error
	DeleteMessage(ctx context.Context, conv Conversation, messageID string) error
	CreateGroup(ctx context.Context, req GroupRequest) (*GroupConversation, error)
	DeleteConversation(ctx context.Context, conv Conversation) error
	MarkRead(ctx context.Context, conv Conversation) error
}

// GroupRequest is the payload for the group-creation endpoint.
type GroupRequest struct {
	Name        string
	Description string
	MemberIDs   []string
	Private     bool
}

// FetchPhase is the state of a per-conversation history fetch.
type FetchPhase string

const (
	FetchIdle     FetchPhase = "idle"
	FetchLoading  FetchPhase = "loading"
	FetchRetrying FetchPhase = "retrying"
	FetchLoaded   FetchPhase = "loaded"
	FetchFailed   FetchPhase = "failed"
)

// FetchState is the observable fetch machine:
// idle → loading → loaded | retrying (retry < 3) | failed (retries exhausted).
// Retry() moves failed → loading with the counter reset.
type FetchState struct {
	Phase FetchPhase
	Retry int
	Err   error
}

// cache holds one conversation's message list and per-operation flags.
type cache struct {
	messages []Message
	fetch    FetchState
	inflight bool
	editing  map[string]bool
	deleting map[string]bool
}

func newCache() *cache {
	return &cache{
		fetch:    FetchState{Phase: FetchIdle},
		editing:  make(map[string]bool),
		deleting: make(map[string]bool),
	}
}

// Store is the single source of truth for which conversations exist, which
// one is active, and each conversation's message cache. All state is
// in-memory and rebuilt from the backend; nothing survives a restart.
type Store struct {
	mu      sync.RWMutex
	backend Backend
	bus     *bus.Bus
	logger  *zap.Logger
	policy  backoff.Policy

	convs  map[string]Conversation
	caches map[string]*cache
	active string
}

// NewStore creates an empty conversation store.
func NewStore(backend Backend, b *bus.Bus, logger *zap.Logger) *Store {
	return &Store{
		backend: backend,
		bus:     b,
		logger:  logger,
		policy:  backoff.Default(),
		convs:   make(map[string]Conversation),
		caches:  make(map[string]*cache),
	}
}

// SetBackoff overrides the retry schedule (used by tests to avoid real sleeps).
func (s *Store) SetBackoff(p backoff.Policy) {
	s.mu.Lock()
	s.policy = p
	s.mu.Unlock()
}

// Conversations returns a snapshot sorted by last activity, newest first.
// Entries are clones; later store mutations never show through them.
func (s *Store) Conversations() []Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Conversation, 0, len(s.convs))
	for _, c := range s.convs {
		out = append(out, cloneConversation(c))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Core().LastActivity.After(out[j].Core().LastActivity)
	})
	return out
}

// Get returns a clone of the conversation with the given id, or nil.
func (s *Store) Get(id string) Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[id]
	if !ok {
		return nil
	}
	return cloneConversation(c)
}

// ActiveID returns the id of the selected conversation, or "".
func (s *Store) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Seed replaces the conversation list with backend-provided records. Existing
// caches for surviving conversations are kept.
func (s *Store) Seed(convs []Conversation) {
	s.mu.Lock()
	seen := make(map[string]bool, len(convs))
	for _, c := range convs {
		s.convs[c.Core().ID] = c
		seen[c.Core().ID] = true
	}
	for id := range s.convs {
		if !seen[id] {
			delete(s.convs, id)
			delete(s.caches, id)
		}
	}
	s.mu.Unlock()
	s.publish(bus.KindConversationUpserted, "")
}

// Select makes id the active conversation. A no-op if already active.
// Selecting zeroes the unread count and, if the conversation's history has
// never loaded, starts a background fetch. At most one fetch per conversation
// is in flight; re-selecting while it runs does not duplicate the request.
func (s *Store) Select(ctx context.Context, id string) error {
	s.mu.Lock()
	conv, ok := s.convs[id]
	if !ok {
		s.mu.Unlock()
		return ErrConversationNotFound
	}
	if s.active == id {
		s.mu.Unlock()
		return nil
	}
	s.active = id
	conv.Core().UnreadCount = 0

	c := s.ensureCacheLocked(id)
	startFetch := c.fetch.Phase == FetchIdle && !c.inflight
	if startFetch {
		c.inflight = true
		c.fetch = FetchState{Phase: FetchLoading}
	}
	serverKnown := isServerKnown(conv)
	s.mu.Unlock()

	s.publish(bus.KindConversationUpserted, id)

	if serverKnown {
		// Fire-and-forget; a failed mark-read only re-surfaces as unread.
		go func() {
			if err := s.backend.MarkRead(ctx, conv); err != nil {
				s.logger.Warn("mark read failed", zap.String("conversation", id), zap.Error(err))
			}
		}()
	}
	if startFetch {
		go s.fetch(ctx, id)
	}
	return nil
}

// Retry re-issues a failed history fetch with the retry counter reset.
func (s *Store) Retry(ctx context.Context, id string) {
	s.mu.Lock()
	c, ok := s.caches[id]
	if !ok || c.inflight || c.fetch.Phase != FetchFailed {
		s.mu.Unlock()
		return
	}
	c.inflight = true
	c.fetch = FetchState{Phase: FetchLoading}
	s.mu.Unlock()

	go s.fetch(ctx, id)
}

// fetch loads message history for the conversation it was issued for. The
// result is applied to that conversation's cache only; switching away while
// the request is in flight can never leak a late response into another
// conversation's view.
func (s *Store) fetch(ctx context.Context, id string) {
	s.mu.RLock()
	conv := s.convs[id]
	policy := s.policy
	s.mu.RUnlock()
	if conv == nil {
		return
	}

	policy.OnRetry = func(n int, err error) {
		s.logger.Warn("message fetch retrying",
			zap.String("conversation", id),
			zap.Int("retry", n),
			zap.Error(err))
		s.mu.Lock()
		if c := s.caches[id]; c != nil {
			c.fetch = FetchState{Phase: FetchRetrying, Retry: n, Err: err}
		}
		s.mu.Unlock()
	}

	var msgs []Message
	err := policy.Do(ctx, func(ctx context.Context) error {
		var ferr error
		msgs, ferr = s.backend.ListMessages(ctx, conv)
		return ferr
	})

	s.mu.Lock()
	c := s.caches[id]
	if c == nil {
		// Conversation was deleted while the fetch was in flight.
		s.mu.Unlock()
		return
	}
	c.inflight = false
	if err != nil {
		c.fetch = FetchState{Phase: FetchFailed, Retry: policy.MaxRetries, Err: err}
		s.mu.Unlock()
		s.logger.Error("message fetch failed", zap.String("conversation", id), zap.Error(err))
		s.publish(bus.KindMessageUpserted, id)
		return
	}
	// Keep optimistic entries that the server does not know about yet.
	var pending []Message
	for _, m := range c.messages {
		d := m.Core().Delivery
		if d == DeliveryPending || d == DeliveryFailed {
			pending = append(pending, m)
		}
	}
	c.messages = append(msgs, pending...)
	c.fetch = FetchState{Phase: FetchLoaded}
	s.mu.Unlock()

	s.publish(bus.KindMessageUpserted, id)
}

// CreateIndividual returns the existing 1:1 conversation with the user, or
// creates a local draft. Idempotent per user id.
func (s *Store) CreateIndividual(user User) (Conversation, error) {
	if strings.HasPrefix(user.ID, GroupIDPrefix) {
		return nil, ErrReservedConversationID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.convs[user.ID]; ok {
		return cloneConversation(existing), nil
	}
	conv := NewIndividualConversation(user)
	s.convs[conv.ID] = conv
	s.ensureCacheLocked(conv.ID)
	// A draft has no server history; there is nothing to fetch.
	s.caches[conv.ID].fetch = FetchState{Phase: FetchLoaded}
	return cloneConversation(conv), nil
}

// CreateGroup creates a group via the backend and appends the resulting
// conversation. On failure no local state is mutated.
func (s *Store) CreateGroup(ctx context.Context, req GroupRequest) (*GroupConversation, error) {
	conv, err := s.backend.CreateGroup(ctx, req)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.convs[conv.ID] = conv
	c := s.ensureCacheLocked(conv.ID)
	c.fetch = FetchState{Phase: FetchLoaded}
	s.mu.Unlock()

	s.publish(bus.KindConversationUpserted, conv.ID)
	return cloneConversation(conv).(*GroupConversation), nil
}

// Delete removes a conversation. Server-known conversations are deleted on
// the backend first and removed locally only after it confirms; local drafts
// are removed immediately.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.RLock()
	conv, ok := s.convs[id]
	s.mu.RUnlock()
	if !ok {
		return ErrConversationNotFound
	}

	if isServerKnown(conv) {
		if err := s.backend.DeleteConversation(ctx, conv); err != nil {
			return err
		}
	}

	s.mu.Lock()
	delete(s.convs, id)
	delete(s.caches, id)
	if s.active == id {
		s.active = ""
	}
	s.mu.Unlock()

	s.publish(bus.KindConversationDeleted, id)
	return nil
}

func (s *Store) ensureCacheLocked(id string) *cache {
	c, ok := s.caches[id]
	if !ok {
		c = newCache()
		s.caches[id] = c
	}
	return c
}

// touchLocked updates activity bookkeeping after a message lands in conv.
func (s *Store) touchLocked(conv Conversation, preview string, at time.Time) {
	core := conv.Core()
	if at.After(core.LastActivity) {
		core.LastActivity = at
	}
	if preview != "" {
		core.LastMessage = preview
	}
}

func (s *Store) publish(kind, conversationID string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(bus.Event{
		Kind:      kind,
		Timestamp: time.Now(),
		Payload:   map[string]string{"conversation_id": conversationID},
	})
}

// isServerKnown reports whether the backend has a record of the conversation.
func isServerKnown(conv Conversation) bool {
	if ic, ok := conv.(*IndividualConversation); ok {
		return !ic.Draft
	}
	return true
}
