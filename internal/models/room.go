package models

import "time"

// Membership roles.
const (
	RoleAdmin = "ADMIN"
	RoleUser  = "USER"
)

// Membership approval states.
const (
	ApprovalNone      = "NONE"
	ApprovalRequested = "REQUESTED"
	ApprovalInvited   = "INVITED"
	ApprovalApproved  = "APPROVED"
)

type Room struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	AdminID   string    `json:"admin_id"`
	IsPublic  bool      `json:"is_public"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type RoomMembership struct {
	RoomID        string     `json:"room_id"`
	UserID        string     `json:"user_id"`
	Role          string     `json:"role"`
	ApprovalState string     `json:"approval_state"`
	IsBlocked     bool       `json:"is_blocked"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Eligible reports whether this membership makes its holder a fanout
// target: approved, not blocked, not soft-deleted.
func (m RoomMembership) Eligible() bool {
	return m.ApprovalState == ApprovalApproved && !m.IsBlocked && m.DeletedAt == nil
}

// RoomInvite names a user to invite while creating a room.
type RoomInvite struct {
	UserID string `json:"userId"`
}

type CreateRoomRequest struct {
	Name     string       `json:"name"`
	IsPublic bool         `json:"is_public"`
	Members  []RoomInvite `json:"members,omitempty"`
}

type UpdateRoomRequest struct {
	Name     *string `json:"name,omitempty"`
	IsPublic *bool   `json:"is_public,omitempty"`
}

// RoomWithLastMessage is the room listing shape: the room plus its most
// recently sent message, if any.
type RoomWithLastMessage struct {
	Room
	LastMessage *Message `json:"last_message"`
}

type RoomPage struct {
	Count    int                   `json:"count"`
	Next     *string               `json:"next"`
	Previous *string               `json:"previous"`
	Result   []RoomWithLastMessage `json:"result"`
}
