package chat

import (
	"errors"
	"strings"
	"time"
)

// GroupIDPrefix namespaces group conversation ids so they can never collide
// with individual conversation ids in the flat conversation list.
const GroupIDPrefix = "group-"

// Presence is a user's availability status.
type Presence string

const (
	PresenceOnline  Presence = "online"
	PresenceAway    Presence = "away"
	PresenceOffline Presence = "offline"
)

// User is a chat participant as reported by the backend.
type User struct {
	ID       string
	Username string
	Avatar   string
	Status   Presence
	Role     string
}

// Attachment is a file attached to a message. Immutable once sent.
type Attachment struct {
	ID   string
	Name string
	Type string
	Size int64
	URL  string
}

// Delivery is the client-side delivery state of a message.
type Delivery string

const (
	// DeliveryPending marks an optimistic entry awaiting server confirmation.
	DeliveryPending Delivery = "pending"
	// DeliverySent marks a server-confirmed outgoing message.
	DeliverySent Delivery = "sent"
	// DeliveryFailed marks a send the server rejected; the entry is kept so
	// the user can retry or discard it, never silently dropped.
	DeliveryFailed Delivery = "failed"
	// DeliveryReceived marks an inbound message.
	DeliveryReceived Delivery = "received"
)

// MessageCore holds the fields shared by both message variants.
type MessageCore struct {
	ID             string
	ConversationID string
	SenderID       string
	Content        string
	Timestamp      time.Time
	Attachments    []Attachment
	Edited         bool
	EditedAt       time.Time
	Delivery       Delivery
	FromMe         bool
}

// Message is a sealed union: exactly IndividualMessage or GroupMessage.
type Message interface {
	Core() *MessageCore
	sealedMessage()
}

// IndividualMessage is a message in a 1:1 conversation.
type IndividualMessage struct {
	MessageCore
}

func (m *IndividualMessage) Core() *MessageCore { return &m.MessageCore }
func (*IndividualMessage) sealedMessage()       {}

// GroupMessage is a message in a group conversation.
type GroupMessage struct {
	MessageCore
	SenderName     string
	Forwarded      bool
	OriginalSender string
}

func (m *GroupMessage) Core() *MessageCore { return &m.MessageCore }
func (*GroupMessage) sealedMessage()       {}

// ConversationCore holds the fields shared by both conversation variants.
type ConversationCore struct {
	ID           string
	Participants []User
	LastMessage  string
	LastActivity time.Time
	UnreadCount  int
}

// Conversation is a sealed union: exactly IndividualConversation or
// GroupConversation.
type Conversation interface {
	Core() *ConversationCore
	Title() string
	sealedConversation()
}

// IndividualConversation is a 1:1 thread. Its id is the other participant's
// user id. Draft is true until the first message has been accepted by the
// server; the backend has never heard of a draft conversation.
type IndividualConversation struct {
	ConversationCore
	UserID string
	Draft  bool
}

func (c *IndividualConversation) Core() *ConversationCore { return &c.ConversationCore }
func (*IndividualConversation) sealedConversation()       {}

// Title returns the other participant's username, falling back to the id.
func (c *IndividualConversation) Title() string {
	for _, p := range c.Participants {
		if p.ID == c.UserID && p.Username != "" {
			return p.Username
		}
	}
	return c.UserID
}

// GroupConversation is a multi-party thread with a "group-" prefixed id.
type GroupConversation struct {
	ConversationCore
	GroupID     string
	GroupName   string
	GroupAvatar string
	Description string
	Private     bool
}

func (c *GroupConversation) Core() *ConversationCore { return &c.ConversationCore }
func (*GroupConversation) sealedConversation()       {}

// Title returns the group name, falling back to the id.
func (c *GroupConversation) Title() string {
	if c.GroupName != "" {
		return c.GroupName
	}
	return c.ID
}

// NewIndividualConversation builds a local draft thread with the given user.
func NewIndividualConversation(user User) *IndividualConversation {
	return &IndividualConversation{
		ConversationCore: ConversationCore{
			ID:           user.ID,
			Participants: []User{user},
			LastActivity: time.Now(),
		},
		UserID: user.ID,
		Draft:  true,
	}
}

// NewGroupConversation builds a group thread with the namespaced id.
func NewGroupConversation(groupID, name string, members []User) *GroupConversation {
	return &GroupConversation{
		ConversationCore: ConversationCore{
			ID:           GroupIDPrefix + groupID,
			Participants: members,
			LastActivity: time.Now(),
		},
		GroupID:   groupID,
		GroupName: name,
	}
}

// cloneMessage returns an independent copy of a message. Store accessors hand
// out clones so the UI can read a snapshot while the store keeps mutating its
// own records under the lock.
func cloneMessage(m Message) Message {
	switch v := m.(type) {
	case *IndividualMessage:
		cp := *v
		cp.Attachments = append([]Attachment(nil), v.Attachments...)
		return &cp
	case *GroupMessage:
		cp := *v
		cp.Attachments = append([]Attachment(nil), v.Attachments...)
		return &cp
	}
	return m
}

// cloneConversation returns an independent copy of a conversation, including
// the participant slice that presence updates mutate in place.
func cloneConversation(c Conversation) Conversation {
	switch v := c.(type) {
	case *IndividualConversation:
		cp := *v
		cp.Participants = append([]User(nil), v.Participants...)
		return &cp
	case *GroupConversation:
		cp := *v
		cp.Participants = append([]User(nil), v.Participants...)
		return &cp
	}
	return c
}

// Validation and lookup errors.
var (
	ErrEmptyMessage           = errors.New("chat: message needs content or attachments")
	ErrConversationNotFound   = errors.New("chat: conversation not found")
	ErrMessageNotFound        = errors.New("chat: message not found")
	ErrReservedConversationID = errors.New("chat: user id collides with group namespace")
)

// ValidateOutgoing enforces the persisted-message invariant before any
// network call: content and attachments may not both be empty.
func ValidateOutgoing(content string, attachments []Attachment) error {
	if strings.TrimSpace(content) == "" && len(attachments) == 0 {
		return ErrEmptyMessage
	}
	return nil
}
