// Package engine is the realtime core: it authorizes each inbound event
// against durable membership state, persists its effects, computes the
// recipient set, and fans the event out to every recipient with a live
// connection, handing the rest to the offline dispatcher.
package engine

import (
	"context"
	"fmt"

	"chathub/internal/models"
	"chathub/internal/registry"
	"chathub/internal/utils"
)

// MembershipStore is the read/write surface the engine needs over durable
// room-membership state. Reads are never cached across operations:
// membership can change between the moment an event is queued and the
// moment it is processed.
type MembershipStore interface {
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	Membership(ctx context.Context, roomID, userID string) (*models.RoomMembership, error)
	IsEligible(ctx context.Context, roomID, userID string) (bool, error)
	ListEligibleMembers(ctx context.Context, roomID string) ([]string, error)
	UpsertJoin(ctx context.Context, roomID, userID, approvalState string) (*models.RoomMembership, error)
	Approve(ctx context.Context, roomID, userID string) error
	SetBlocked(ctx context.Context, roomID, userID string, blocked bool) error
	DeleteMembership(ctx context.Context, roomID, userID string) error
	SoftDeleteMembership(ctx context.Context, roomID, userID string) error
}

// MessageStore persists messages and their per-recipient read status.
// CreateMessage writes the message, its room link and one status row per
// recipient atomically: the sender's row is created read, everyone
// else's unread.
type MessageStore interface {
	CreateMessage(ctx context.Context, roomID, senderID, text string, receiverID *string, recipients []string) (*models.Message, error)
	SenderOf(ctx context.Context, messageID string) (string, error)
	UpdateMessageText(ctx context.Context, messageID, text string) (*models.Message, error)
	MarkRead(ctx context.Context, messageID, userID string) error
}

// NotificationStore persists a notification and its receiver set.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n models.Notification, receiverIDs []string) (string, error)
}

// OfflineDispatcher drives best-effort push delivery for a persisted
// notification. Implementations must not block the caller.
type OfflineDispatcher interface {
	Dispatch(notificationID string)
}

type Engine struct {
	Registry   registry.Registry
	Members    MembershipStore
	Messages   MessageStore
	Notifs     NotificationStore
	Dispatcher OfflineDispatcher
	SiteURL    string
}

// Outbound payload shapes.

type MessagePayload struct {
	RoomID    string `json:"roomId"`
	MessageID string `json:"messageId"`
	SenderID  string `json:"senderId"`
	Message   string `json:"message"`
}

type NoticePayload struct {
	RoomID   string `json:"roomId"`
	SenderID string `json:"senderId"`
	Message  string `json:"message"`
}

type MembershipPayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

type BlockPayload struct {
	RoomID    string `json:"roomId"`
	UserID    string `json:"userId"`
	IsBlocked bool   `json:"isBlocked"`
}

type ReadPayload struct {
	Items []ReadItem `json:"items"`
}

// Dispatch runs one inbound event through the authorize -> persist ->
// compute recipients -> deliver pipeline. The returned Outbound, if any,
// is the acknowledgement for the actor's own connection. Any error is
// one of ErrForbidden, ErrNotFound or *PersistenceError and means the
// event had no effect beyond what the error names.
func (e *Engine) Dispatch(ctx context.Context, id models.Identity, evt Event) (*Outbound, error) {
	switch ev := evt.(type) {
	case *SendMessage:
		return e.sendMessage(ctx, id, ev)
	case *EditMessage:
		return e.editMessage(ctx, id, ev)
	case *ReadMessages:
		return e.readMessages(ctx, id, ev)
	case *UnreadMessage:
		return e.unreadMessage(ctx, id, ev)
	case *JoinRoom:
		return e.joinRoom(ctx, id, ev)
	case *SentInvitation:
		return e.sentInvitation(ctx, id, ev)
	case *AcceptInvitation:
		return e.acceptInvitation(ctx, id, ev)
	case *RejectInvitation:
		return e.rejectInvitation(ctx, id, ev)
	case *AcceptRequest:
		return e.acceptRequest(ctx, id, ev)
	case *BlockUnblockMember:
		return e.blockUnblockMember(ctx, id, ev)
	case *LeaveRoom:
		return e.leaveRoom(ctx, id, ev)
	default:
		return nil, fmt.Errorf("unhandled event %q", evt.EventName())
	}
}

func (e *Engine) sendMessage(ctx context.Context, id models.Identity, ev *SendMessage) (*Outbound, error) {
	room, err := e.Members.GetRoom(ctx, ev.RoomID)
	if err != nil {
		return nil, persistErr("GetRoom", err)
	}

	if err := e.requireEligible(ctx, room.ID, id.UserID); err != nil {
		return nil, err
	}

	// Recipient set is fixed at persist time.
	members, err := e.Members.ListEligibleMembers(ctx, room.ID)
	if err != nil {
		return nil, persistErr("ListEligibleMembers", err)
	}

	msg, err := e.Messages.CreateMessage(ctx, room.ID, id.UserID, ev.Message, ev.ReceiverID, members)
	if err != nil {
		return nil, persistErr("CreateMessage", err)
	}

	out := Outbound{Event: EventReceiveMessage, Data: MessagePayload{
		RoomID:    room.ID,
		MessageID: msg.ID,
		SenderID:  id.UserID,
		Message:   msg.Message,
	}}
	offline := e.deliver(out, exclude(members, id.UserID))

	// A direct receiver is notified durably regardless of liveness;
	// everyone else only when unreachable.
	receivers := offline
	if ev.ReceiverID != nil && *ev.ReceiverID != id.UserID && !contains(receivers, *ev.ReceiverID) {
		receivers = append(receivers, *ev.ReceiverID)
	}
	if len(receivers) > 0 {
		e.notifyOffline(ctx, models.Notification{
			Event:    EventReceiveMessage,
			SenderID: id.UserID,
			Message:  fmt.Sprintf("%s sent a message", id.Name),
			Type:     models.NotificationMessage,
			URL:      e.SiteURL + "/rooms/" + room.ID,
		}, receivers)
	}

	return &out, nil
}

func (e *Engine) editMessage(ctx context.Context, id models.Identity, ev *EditMessage) (*Outbound, error) {
	room, err := e.Members.GetRoom(ctx, ev.RoomID)
	if err != nil {
		return nil, persistErr("GetRoom", err)
	}

	if err := e.requireEligible(ctx, room.ID, id.UserID); err != nil {
		return nil, err
	}

	senderID, err := e.Messages.SenderOf(ctx, ev.MessageID)
	if err != nil {
		return nil, persistErr("SenderOf", err)
	}
	if senderID != id.UserID {
		return nil, ErrForbidden
	}

	msg, err := e.Messages.UpdateMessageText(ctx, ev.MessageID, ev.Message)
	if err != nil {
		return nil, persistErr("UpdateMessageText", err)
	}

	members, err := e.Members.ListEligibleMembers(ctx, room.ID)
	if err != nil {
		return nil, persistErr("ListEligibleMembers", err)
	}

	out := Outbound{Event: EventEditMessage, Data: MessagePayload{
		RoomID:    room.ID,
		MessageID: msg.ID,
		SenderID:  id.UserID,
		Message:   msg.Message,
	}}
	offline := e.deliver(out, exclude(members, id.UserID))
	if len(offline) > 0 {
		e.notifyOffline(ctx, models.Notification{
			Event:    EventEditMessage,
			SenderID: id.UserID,
			Message:  fmt.Sprintf("%s edited a message", id.Name),
			Type:     models.NotificationMessage,
			URL:      e.SiteURL + "/rooms/" + room.ID,
		}, offline)
	}

	return &out, nil
}

func (e *Engine) readMessages(ctx context.Context, id models.Identity, ev *ReadMessages) (*Outbound, error) {
	for _, item := range ev.Items {
		if item.UserID != id.UserID {
			return nil, ErrForbidden
		}
	}

	for _, item := range ev.Items {
		// Marking a row that was never created is a no-op.
		if err := e.Messages.MarkRead(ctx, item.MessageID, id.UserID); err != nil {
			return nil, persistErr("MarkRead", err)
		}
	}

	// Self-echo only, so other devices of the requester can sync.
	out := Outbound{Event: EventReadMessages, Data: ReadPayload{Items: ev.Items}}
	return &out, nil
}

func (e *Engine) unreadMessage(ctx context.Context, id models.Identity, ev *UnreadMessage) (*Outbound, error) {
	room, err := e.Members.GetRoom(ctx, ev.RoomID)
	if err != nil {
		return nil, persistErr("GetRoom", err)
	}

	if err := e.requireEligible(ctx, room.ID, id.UserID); err != nil {
		return nil, err
	}

	members, err := e.Members.ListEligibleMembers(ctx, room.ID)
	if err != nil {
		return nil, persistErr("ListEligibleMembers", err)
	}

	// Pure notice: nothing is persisted and unreachable recipients are
	// simply skipped.
	out := Outbound{Event: EventUnreadMessage, Data: NoticePayload{
		RoomID:   room.ID,
		SenderID: id.UserID,
		Message:  "You got the message",
	}}
	e.deliver(out, exclude(members, id.UserID))

	return nil, nil
}

func (e *Engine) joinRoom(ctx context.Context, id models.Identity, ev *JoinRoom) (*Outbound, error) {
	room, err := e.Members.GetRoom(ctx, ev.RoomID)
	if err != nil {
		return nil, persistErr("GetRoom", err)
	}

	state := models.ApprovalRequested
	if room.IsPublic {
		state = models.ApprovalApproved
	}
	membership, err := e.Members.UpsertJoin(ctx, room.ID, id.UserID, state)
	if err != nil {
		return nil, persistErr("UpsertJoin", err)
	}

	ack := Outbound{Event: EventJoinRoom, Data: membership}
	if room.IsPublic {
		return &ack, nil
	}

	// Private room: the admin decides, so the admin is the only
	// recipient, live and durable both. The admin joining their own
	// room has nothing to decide.
	if room.AdminID != id.UserID {
		out := Outbound{Event: EventJoinRoom, Data: MembershipPayload{RoomID: room.ID, UserID: id.UserID}}
		e.deliver(out, []string{room.AdminID})
		e.notifyOffline(ctx, models.Notification{
			Event:    EventJoinRoom,
			SenderID: id.UserID,
			Message:  fmt.Sprintf("%s requested to join the group", id.Name),
			Type:     models.NotificationAction,
			URL:      e.SiteURL + "/rooms/join",
		}, []string{room.AdminID})
	}

	return &ack, nil
}

func (e *Engine) sentInvitation(ctx context.Context, id models.Identity, ev *SentInvitation) (*Outbound, error) {
	// Every named room must be administered by the actor before any
	// membership is written.
	rooms := make(map[string]*models.Room, len(ev.Items))
	for _, item := range ev.Items {
		room, err := e.requireAdmin(ctx, item.RoomID, id.UserID)
		if err != nil {
			return nil, err
		}
		rooms[item.RoomID] = room
	}

	for _, item := range ev.Items {
		if item.UserID == id.UserID {
			continue
		}
		if _, err := e.Members.UpsertJoin(ctx, item.RoomID, item.UserID, models.ApprovalInvited); err != nil {
			return nil, persistErr("UpsertJoin", err)
		}

		room := rooms[item.RoomID]
		out := Outbound{Event: EventJoinRequest, Data: MembershipPayload{RoomID: room.ID, UserID: item.UserID}}
		e.deliver(out, []string{item.UserID})
		e.notifyOffline(ctx, models.Notification{
			Event:    EventSentInvitation,
			SenderID: id.UserID,
			Message:  fmt.Sprintf("%s invited you to join the %s room", id.Name, room.Name),
			Type:     models.NotificationAction,
			URL:      e.SiteURL + "/rooms/acceptInvite",
		}, []string{item.UserID})
	}

	out := Outbound{Event: EventSentInvitation, Data: ev.Items}
	return &out, nil
}

func (e *Engine) acceptInvitation(ctx context.Context, id models.Identity, ev *AcceptInvitation) (*Outbound, error) {
	room, err := e.requireAdmin(ctx, ev.RoomID, id.UserID)
	if err != nil {
		return nil, err
	}

	if err := e.Members.Approve(ctx, room.ID, ev.UserID); err != nil {
		return nil, persistErr("Approve", err)
	}

	out := Outbound{Event: EventAcceptInvitation, Data: MembershipPayload{RoomID: room.ID, UserID: ev.UserID}}
	e.deliver(out, []string{ev.UserID})
	e.notifyOffline(ctx, models.Notification{
		Event:    EventAcceptInvitation,
		SenderID: id.UserID,
		Message:  fmt.Sprintf("%s has accepted your request to join the %s room", id.Name, room.Name),
		Type:     models.NotificationMessage,
		URL:      e.SiteURL + "/rooms/" + room.ID,
	}, []string{ev.UserID})

	return &out, nil
}

func (e *Engine) rejectInvitation(ctx context.Context, id models.Identity, ev *RejectInvitation) (*Outbound, error) {
	room, err := e.requireAdmin(ctx, ev.RoomID, id.UserID)
	if err != nil {
		return nil, err
	}

	if err := e.Members.DeleteMembership(ctx, room.ID, ev.UserID); err != nil {
		return nil, persistErr("DeleteMembership", err)
	}

	out := Outbound{Event: EventRejectInvitation, Data: MembershipPayload{RoomID: room.ID, UserID: ev.UserID}}
	e.deliver(out, []string{ev.UserID})
	e.notifyOffline(ctx, models.Notification{
		Event:    EventRejectInvitation,
		SenderID: id.UserID,
		Message:  fmt.Sprintf("your request to join the %s room was rejected", room.Name),
		Type:     models.NotificationMessage,
	}, []string{ev.UserID})

	return &out, nil
}

func (e *Engine) acceptRequest(ctx context.Context, id models.Identity, ev *AcceptRequest) (*Outbound, error) {
	room, err := e.Members.GetRoom(ctx, ev.RoomID)
	if err != nil {
		return nil, persistErr("GetRoom", err)
	}

	// Peer-accept: the actor approves their own pending invitation.
	membership, err := e.Members.Membership(ctx, room.ID, id.UserID)
	if err != nil {
		return nil, persistErr("Membership", err)
	}
	if membership.ApprovalState != models.ApprovalInvited {
		return nil, ErrForbidden
	}

	if err := e.Members.Approve(ctx, room.ID, id.UserID); err != nil {
		return nil, persistErr("Approve", err)
	}

	members, err := e.Members.ListEligibleMembers(ctx, room.ID)
	if err != nil {
		return nil, persistErr("ListEligibleMembers", err)
	}

	out := Outbound{Event: EventAcceptRequest, Data: NoticePayload{
		RoomID:   room.ID,
		SenderID: id.UserID,
		Message:  fmt.Sprintf("%s has joined the room", id.Name),
	}}
	offline := e.deliver(out, exclude(members, id.UserID))
	if len(offline) > 0 {
		e.notifyOffline(ctx, models.Notification{
			Event:    EventAcceptRequest,
			SenderID: id.UserID,
			Message:  fmt.Sprintf("%s has joined the %s room", id.Name, room.Name),
			Type:     models.NotificationMessage,
		}, offline)
	}

	return &out, nil
}

func (e *Engine) blockUnblockMember(ctx context.Context, id models.Identity, ev *BlockUnblockMember) (*Outbound, error) {
	room, err := e.requireAdmin(ctx, ev.RoomID, id.UserID)
	if err != nil {
		return nil, err
	}

	if err := e.Members.SetBlocked(ctx, room.ID, ev.UserID, ev.IsBlocked); err != nil {
		return nil, persistErr("SetBlocked", err)
	}

	verb := "unblocked"
	if ev.IsBlocked {
		verb = "blocked"
	}
	out := Outbound{Event: EventBlockUnblockMember, Data: BlockPayload{
		RoomID:    room.ID,
		UserID:    ev.UserID,
		IsBlocked: ev.IsBlocked,
	}}
	e.deliver(out, []string{ev.UserID})
	e.notifyOffline(ctx, models.Notification{
		Event:    EventBlockUnblockMember,
		SenderID: id.UserID,
		Message:  fmt.Sprintf("%s has %s you", id.Name, verb),
		Type:     models.NotificationAction,
		URL:      e.SiteURL + "/rooms/blockMember",
	}, []string{ev.UserID})

	return &out, nil
}

func (e *Engine) leaveRoom(ctx context.Context, id models.Identity, ev *LeaveRoom) (*Outbound, error) {
	room, err := e.Members.GetRoom(ctx, ev.RoomID)
	if err != nil {
		return nil, persistErr("GetRoom", err)
	}

	if _, err := e.Members.Membership(ctx, room.ID, id.UserID); err != nil {
		return nil, persistErr("Membership", err)
	}

	if err := e.Members.SoftDeleteMembership(ctx, room.ID, id.UserID); err != nil {
		return nil, persistErr("SoftDeleteMembership", err)
	}

	members, err := e.Members.ListEligibleMembers(ctx, room.ID)
	if err != nil {
		return nil, persistErr("ListEligibleMembers", err)
	}

	out := Outbound{Event: EventLeaveRoom, Data: NoticePayload{
		RoomID:   room.ID,
		SenderID: id.UserID,
		Message:  fmt.Sprintf("%s has left the room", id.Name),
	}}
	e.deliver(out, exclude(members, id.UserID))

	return &out, nil
}

// requireEligible rejects senders who are not approved, are blocked, or
// have left the room.
func (e *Engine) requireEligible(ctx context.Context, roomID, userID string) error {
	ok, err := e.Members.IsEligible(ctx, roomID, userID)
	if err != nil {
		return persistErr("IsEligible", err)
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

func (e *Engine) requireAdmin(ctx context.Context, roomID, userID string) (*models.Room, error) {
	room, err := e.Members.GetRoom(ctx, roomID)
	if err != nil {
		return nil, persistErr("GetRoom", err)
	}
	if room.AdminID != userID {
		return nil, ErrForbidden
	}
	return room, nil
}

// deliver emits out to every recipient with a live connection and
// returns the rest. A write failure is treated exactly as "recipient not
// live": the connection closed between lookup and emit. No lock is held
// here beyond the registry's own lookup.
func (e *Engine) deliver(out Outbound, recipients []string) (offline []string) {
	for _, userID := range recipients {
		conn, ok := e.Registry.Lookup(userID)
		if !ok {
			offline = append(offline, userID)
			continue
		}
		if err := conn.WriteJSON(out); err != nil {
			utils.LogError(err, "deliver "+out.Event)
			offline = append(offline, userID)
		}
	}
	return offline
}

// notifyOffline persists a notification for the given receivers and
// kicks off best-effort push delivery. The triggering event already
// succeeded; failures here are logged and never surfaced to the actor.
func (e *Engine) notifyOffline(ctx context.Context, n models.Notification, receiverIDs []string) {
	notificationID, err := e.Notifs.CreateNotification(ctx, n, receiverIDs)
	if err != nil {
		utils.LogError(err, "CreateNotification "+n.Event)
		return
	}
	e.Dispatcher.Dispatch(notificationID)
}

func exclude(userIDs []string, userID string) []string {
	out := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if id != userID {
			out = append(out, id)
		}
	}
	return out
}

func contains(userIDs []string, userID string) bool {
	for _, id := range userIDs {
		if id == userID {
			return true
		}
	}
	return false
}
