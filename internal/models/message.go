package models

import "time"

type Message struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MessageMembership links a message to its room and sender, and for
// direct sends, the addressed receiver.
type MessageMembership struct {
	MessageID  string    `json:"message_id"`
	RoomID     string    `json:"room_id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID *string   `json:"receiver_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// MessageStatus is the per-recipient read state: exactly one row per
// (message, user) pair, created at send time.
type MessageStatus struct {
	MessageID string `json:"message_id"`
	RoomID    string `json:"room_id"`
	UserID    string `json:"user_id"`
	IsRead    bool   `json:"is_read"`
}
