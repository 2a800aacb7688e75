package api

import (
	"time"

	"github.com/ASDFGHan123/unichat/internal/chat"
)

// Wire shapes for the Django-style backend. Timestamps are RFC 3339.

type userDTO struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
	Status   string `json:"status"`
	Role     string `json:"role"`
}

func (d userDTO) toUser() chat.User {
	return chat.User{
		ID:       d.ID,
		Username: d.Username,
		Avatar:   d.Avatar,
		Status:   chat.Presence(d.Status),
		Role:     d.Role,
	}
}

type attachmentDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
	URL  string `json:"url"`
}

func (d attachmentDTO) toAttachment() chat.Attachment {
	return chat.Attachment{ID: d.ID, Name: d.Name, Type: d.Type, Size: d.Size, URL: d.URL}
}

type messageDTO struct {
	ID             string          `json:"id"`
	Content        string          `json:"content"`
	Sender         string          `json:"sender"`
	SenderName     string          `json:"sender_name"`
	Timestamp      time.Time       `json:"timestamp"`
	Attachments    []attachmentDTO `json:"attachments"`
	Edited         bool            `json:"edited"`
	EditedAt       *time.Time      `json:"edited_at"`
	Forwarded      bool            `json:"forwarded"`
	OriginalSender string          `json:"original_sender"`
}

// toMessage builds the variant matching the conversation the message belongs to.
func (d messageDTO) toMessage(conversationID string, group bool, selfID string) chat.Message {
	core := chat.MessageCore{
		ID:             d.ID,
		ConversationID: conversationID,
		SenderID:       d.Sender,
		Content:        d.Content,
		Timestamp:      d.Timestamp,
		Edited:         d.Edited,
		Delivery:       chat.DeliveryReceived,
		FromMe:         selfID != "" && d.Sender == selfID,
	}
	if core.FromMe {
		core.Delivery = chat.DeliverySent
	}
	if d.EditedAt != nil {
		core.EditedAt = *d.EditedAt
	}
	for _, a := range d.Attachments {
		core.Attachments = append(core.Attachments, a.toAttachment())
	}
	if group {
		return &chat.GroupMessage{
			MessageCore:    core,
			SenderName:     d.SenderName,
			Forwarded:      d.Forwarded,
			OriginalSender: d.OriginalSender,
		}
	}
	return &chat.IndividualMessage{MessageCore: core}
}

type conversationDTO struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"` // "individual" | "group"
	UserID       string    `json:"user_id"`
	GroupID      string    `json:"group_id"`
	GroupName    string    `json:"group_name"`
	GroupAvatar  string    `json:"group_avatar"`
	Description  string    `json:"description"`
	IsPrivate    bool      `json:"is_private"`
	Participants []userDTO `json:"participants"`
	LastMessage  string    `json:"last_message"`
	LastActivity time.Time `json:"last_activity"`
	UnreadCount  int       `json:"unread_count"`
}

func (d conversationDTO) toConversation() chat.Conversation {
	var participants []chat.User
	for _, p := range d.Participants {
		participants = append(participants, p.toUser())
	}
	core := chat.ConversationCore{
		Participants: participants,
		LastMessage:  d.LastMessage,
		LastActivity: d.LastActivity,
		UnreadCount:  d.UnreadCount,
	}
	if d.Type == "group" {
		core.ID = chat.GroupIDPrefix + d.GroupID
		return &chat.GroupConversation{
			ConversationCore: core,
			GroupID:          d.GroupID,
			GroupName:        d.GroupName,
			GroupAvatar:      d.GroupAvatar,
			Description:      d.Description,
			Private:          d.IsPrivate,
		}
	}
	core.ID = d.UserID
	return &chat.IndividualConversation{
		ConversationCore: core,
		UserID:           d.UserID,
	}
}

type groupDTO struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Avatar      string    `json:"avatar"`
	IsPrivate   bool      `json:"is_private"`
	Members     []userDTO `json:"members"`
}

// Backup is a backend-owned backup job record.
type Backup struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	BackupType  string     `json:"backup_type"` // full, users, messages, settings
	Status      string     `json:"status"`      // pending, in_progress, completed, failed
	Size        int64      `json:"size"`
	RecordCount int        `json:"record_count"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// AuditEntry is one row of the admin audit log.
type AuditEntry struct {
	ID        string    `json:"id"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Target    string    `json:"target"`
	Timestamp time.Time `json:"timestamp"`
	Detail    string    `json:"detail"`
}

// Settings is the admin settings document.
type Settings struct {
	SiteName           string `json:"site_name"`
	RetentionDays      int    `json:"retention_days"`
	AutoBackup         bool   `json:"auto_backup"`
	AutoBackupInterval int    `json:"auto_backup_interval_hours"`
	MaxUploadSize      int64  `json:"max_upload_size"`
}
