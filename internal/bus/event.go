package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Well-known event kinds. Subscribers filter by namespace prefix, so the
// dotted segments double as namespaces ("message." matches every message
// kind below).
const (
	KindMessageUpserted   = "message.upserted"
	KindMessageSendAck    = "message.send_ack"
	KindMessageSendFailed = "message.send_failed"
	KindMessageDeleted    = "message.deleted"

	KindConversationUpserted = "conversation.upserted"
	KindConversationDeleted  = "conversation.deleted"

	KindRemoteMessage  = "remote.message"
	KindRemotePresence = "remote.presence"

	KindSessionStatusChanged = "session.status_changed"
	KindSessionAuthRequired  = "session.auth_required"

	KindSettingsUpdated = "settings.updated"
)
