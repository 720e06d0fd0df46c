package models

import "time"

// Notification types.
const (
	NotificationAction  = "Action"
	NotificationMessage = "Message"
)

type Notification struct {
	ID        string    `json:"id"`
	Event     string    `json:"event,omitempty"`
	SenderID  string    `json:"sender_id"`
	Message   string    `json:"message"`
	Type      string    `json:"type"`
	URL       string    `json:"url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NotificationWithSender is the listing shape: the notification plus
// public fields of its sender.
type NotificationWithSender struct {
	Notification
	Sender *User `json:"sender,omitempty"`
}

type NotificationPage struct {
	Notifications []NotificationWithSender `json:"notifications"`
	Pagination    Pagination               `json:"pagination"`
}

type Pagination struct {
	CurrentPage  int     `json:"currentPage"`
	PageSize     int     `json:"pageSize"`
	Total        int     `json:"total"`
	HasNextPage  bool    `json:"hasNextPage"`
	NextPage     *string `json:"nextPage"`
	PreviousPage *string `json:"previousPage"`
}

// PushSubscription is a stored Web Push subscription descriptor for one
// of a user's devices.
type PushSubscription struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Endpoint  string    `json:"endpoint"`
	P256dh    string    `json:"p256dh"`
	Auth      string    `json:"auth"`
	CreatedAt time.Time `json:"created_at"`
}

type SubscribeRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}
