package models

import "time"

// MessageType classifies a message.
type MessageType string

const (
	MessageGeneral      MessageType = "general"
	MessageSupport      MessageType = "support"
	MessageAnnouncement MessageType = "announcement"
	MessageSystem       MessageType = "system"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageGeneral, MessageSupport, MessageAnnouncement, MessageSystem:
		return true
	}
	return false
}

// Message is a direct message between two profiles. Only ReadAt ever changes, and only once.
type Message struct {
	ID            string      `db:"id" json:"id"`
	SenderID      string      `db:"sender_id" json:"sender_id"`
	RecipientID   string      `db:"recipient_id" json:"recipient_id"`
	Subject       string      `db:"subject" json:"subject"`
	Content       string      `db:"content" json:"content"`
	MessageType   MessageType `db:"message_type" json:"message_type"`
	ReadAt        *time.Time  `db:"read_at" json:"read_at,omitempty"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
	SenderName    string      `db:"sender_name" json:"sender_name,omitempty"`
	RecipientName string      `db:"recipient_name" json:"recipient_name,omitempty"`
}

// MessageFolder restricts a listing to one side of the conversation.
type MessageFolder string

const (
	FolderAll   MessageFolder = "all"
	FolderInbox MessageFolder = "inbox"
	FolderSent  MessageFolder = "sent"
)

// MessageFilter combines optional predicates with AND; sender-or-recipient is always applied.
type MessageFilter struct {
	Folder   MessageFolder
	Type     MessageType
	Read     *bool
	Search   string
	DateFrom *time.Time
	DateTo   *time.Time
	Page     int
	PageSize int
}
