package events

import (
	"time"

	"github.com/ASDFGHan123/unichat/internal/chat"
)

// messageEvent is the payload of a "message" frame. The server names the
// owning conversation explicitly so the client does not have to guess it
// from the sender.
type messageEvent struct {
	ID               string    `json:"id"`
	ConversationID   string    `json:"conversation"`
	ConversationType string    `json:"conversation_type"`
	GroupName        string    `json:"group_name"`
	Sender           string    `json:"sender"`
	SenderName       string    `json:"sender_name"`
	Content          string    `json:"content"`
	Timestamp        time.Time `json:"timestamp"`
	Forwarded        bool      `json:"forwarded"`
	OriginalSender   string    `json:"original_sender"`
	Attachments      []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Type string `json:"type"`
		Size int64  `json:"size"`
		URL  string `json:"url"`
	} `json:"attachments"`
}

func (d messageEvent) toMessage() chat.Message {
	core := chat.MessageCore{
		ID:             d.ID,
		ConversationID: d.ConversationID,
		SenderID:       d.Sender,
		Content:        d.Content,
		Timestamp:      d.Timestamp,
		Delivery:       chat.DeliveryReceived,
	}
	for _, a := range d.Attachments {
		core.Attachments = append(core.Attachments, chat.Attachment{
			ID: a.ID, Name: a.Name, Type: a.Type, Size: a.Size, URL: a.URL,
		})
	}
	if d.ConversationType == "group" {
		core.ConversationID = chat.GroupIDPrefix + cutPrefix(d.ConversationID)
		return &chat.GroupMessage{
			MessageCore:    core,
			SenderName:     d.SenderName,
			Forwarded:      d.Forwarded,
			OriginalSender: d.OriginalSender,
		}
	}
	return &chat.IndividualMessage{MessageCore: core}
}

// cutPrefix tolerates servers that already send namespaced group ids.
func cutPrefix(id string) string {
	if len(id) > len(chat.GroupIDPrefix) && id[:len(chat.GroupIDPrefix)] == chat.GroupIDPrefix {
		return id[len(chat.GroupIDPrefix):]
	}
	return id
}

// presenceEvent is the payload of a "presence" frame.
type presenceEvent struct {
	UserID string `json:"user_id"`
	Status string `json:"status"`
}
