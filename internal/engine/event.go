package engine

import (
	"encoding/json"
	"fmt"
)

// Client -> server event names.
const (
	EventSendMessage        = "sendMessage"
	EventEditMessage        = "editMessage"
	EventReadMessages       = "readMessages"
	EventUnreadMessage      = "unReadMessage"
	EventJoinRoom           = "joinRoom"
	EventSentInvitation     = "sentInvitation"
	EventAcceptInvitation   = "acceptInvitation"
	EventRejectInvitation   = "rejectInvitation"
	EventAcceptRequest      = "acceptRequest"
	EventBlockUnblockMember = "blockUnblockMember"
	EventLeaveRoom          = "leaveRoom"
)

// Server -> client event names not shared with the inbound set.
const (
	EventReceiveMessage = "receiveMessage"
	EventJoinRequest    = "joinRequest"
	EventError          = "error"
)

// Envelope is the wire frame for both directions: an event name plus its
// payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Outbound is an event emitted to a recipient's live connection.
type Outbound struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Event is the tagged-variant type for inbound realtime events. Sender
// identity is never taken from these payloads; it always comes from the
// Identity bound to the connection at handshake time. Identity-shaped
// fields below exist only where they name someone other than the sender,
// or where the contract requires them to match the sender.
type Event interface {
	EventName() string
}

type SendMessage struct {
	RoomID     string  `json:"roomId"`
	Message    string  `json:"message"`
	ReceiverID *string `json:"receiverId,omitempty"`
}

type EditMessage struct {
	RoomID    string `json:"roomId"`
	MessageID string `json:"messageId"`
	Message   string `json:"message"`
}

type ReadItem struct {
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
	RoomID    string `json:"roomId"`
}

type ReadMessages struct {
	Items []ReadItem `json:"items"`
}

type UnreadMessage struct {
	RoomID string `json:"roomId"`
}

type JoinRoom struct {
	RoomID string `json:"roomId"`
}

type InviteItem struct {
	UserID string `json:"userId"`
	RoomID string `json:"roomId"`
}

// SentInvitation is the admin inviting users into rooms; each invitee
// peer-accepts with acceptRequest.
type SentInvitation struct {
	Items []InviteItem `json:"items"`
}

type AcceptInvitation struct {
	UserID string `json:"userId"`
	RoomID string `json:"roomId"`
}

type RejectInvitation struct {
	UserID string `json:"userId"`
	RoomID string `json:"roomId"`
}

type AcceptRequest struct {
	RoomID string `json:"roomId"`
}

type BlockUnblockMember struct {
	UserID    string `json:"userId"`
	RoomID    string `json:"roomId"`
	IsBlocked bool   `json:"isBlocked"`
}

type LeaveRoom struct {
	RoomID string `json:"roomId"`
}

func (SendMessage) EventName() string        { return EventSendMessage }
func (EditMessage) EventName() string        { return EventEditMessage }
func (ReadMessages) EventName() string       { return EventReadMessages }
func (UnreadMessage) EventName() string      { return EventUnreadMessage }
func (JoinRoom) EventName() string           { return EventJoinRoom }
func (SentInvitation) EventName() string     { return EventSentInvitation }
func (AcceptInvitation) EventName() string   { return EventAcceptInvitation }
func (RejectInvitation) EventName() string   { return EventRejectInvitation }
func (AcceptRequest) EventName() string      { return EventAcceptRequest }
func (BlockUnblockMember) EventName() string { return EventBlockUnblockMember }
func (LeaveRoom) EventName() string          { return EventLeaveRoom }

// ParseEvent decodes one inbound frame into its typed variant.
func ParseEvent(raw []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}

	decode := func(v Event) (Event, error) {
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, v); err != nil {
				return nil, fmt.Errorf("malformed %s payload: %w", env.Event, err)
			}
		}
		return v, nil
	}

	switch env.Event {
	case EventSendMessage:
		return decode(&SendMessage{})
	case EventEditMessage:
		return decode(&EditMessage{})
	case EventReadMessages:
		// The batch is sent as a bare array.
		var items []ReadItem
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &items); err != nil {
				return nil, fmt.Errorf("malformed %s payload: %w", env.Event, err)
			}
		}
		return &ReadMessages{Items: items}, nil
	case EventUnreadMessage:
		return decode(&UnreadMessage{})
	case EventJoinRoom:
		return decode(&JoinRoom{})
	case EventSentInvitation:
		// Invitations are sent as a bare array.
		var items []InviteItem
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &items); err != nil {
				return nil, fmt.Errorf("malformed %s payload: %w", env.Event, err)
			}
		}
		return &SentInvitation{Items: items}, nil
	case EventAcceptInvitation:
		return decode(&AcceptInvitation{})
	case EventRejectInvitation:
		return decode(&RejectInvitation{})
	case EventAcceptRequest:
		return decode(&AcceptRequest{})
	case EventBlockUnblockMember:
		return decode(&BlockUnblockMember{})
	case EventLeaveRoom:
		return decode(&LeaveRoom{})
	default:
		return nil, fmt.Errorf("unknown event %q", env.Event)
	}
}
