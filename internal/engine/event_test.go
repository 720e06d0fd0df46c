package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseEventSendMessage(t *testing.T) {
	raw := []byte(`{"event":"sendMessage","data":{"roomId":"r1","message":"hi","receiverId":"u2"}}`)

	evt, err := ParseEvent(raw)
	require.NoError(t, err)

	sm, ok := evt.(*SendMessage)
	require.True(t, ok)
	require.Equal(t, "r1", sm.RoomID)
	require.Equal(t, "hi", sm.Message)
	require.NotNil(t, sm.ReceiverID)
	require.Equal(t, "u2", *sm.ReceiverID)
}

func TestParseEventReadMessagesBareArray(t *testing.T) {
	raw := []byte(`{"event":"readMessages","data":[{"messageId":"m1","userId":"u1","roomId":"r1"},{"messageId":"m2","userId":"u1","roomId":"r1"}]}`)

	evt, err := ParseEvent(raw)
	require.NoError(t, err)

	rm, ok := evt.(*ReadMessages)
	require.True(t, ok)
	require.Len(t, rm.Items, 2)
	require.Equal(t, "m2", rm.Items[1].MessageID)
}

func TestParseEventSentInvitationBareArray(t *testing.T) {
	raw := []byte(`{"event":"sentInvitation","data":[{"userId":"u1","roomId":"r1"},{"userId":"u2","roomId":"r1"}]}`)

	evt, err := ParseEvent(raw)
	require.NoError(t, err)

	si, ok := evt.(*SentInvitation)
	require.True(t, ok)
	require.Len(t, si.Items, 2)
	require.Equal(t, "u2", si.Items[1].UserID)
	require.Equal(t, "r1", si.Items[1].RoomID)
}

func TestParseEventIgnoresIdentityFieldsItDoesNotDeclare(t *testing.T) {
	// A client asserting a senderId in the payload has no effect: the
	// variant has no such field to decode into.
	raw := []byte(`{"event":"leaveRoom","data":{"roomId":"r1","senderId":"someone-else"}}`)

	evt, err := ParseEvent(raw)
	require.NoError(t, err)
	lr, ok := evt.(*LeaveRoom)
	require.True(t, ok)
	require.Equal(t, "r1", lr.RoomID)
}

func TestParseEventRejectsUnknownAndMalformed(t *testing.T) {
	_, err := ParseEvent([]byte(`{"event":"dropTables","data":{}}`))
	require.Error(t, err)

	_, err = ParseEvent([]byte(`not json`))
	require.Error(t, err)

	_, err = ParseEvent([]byte(`{"event":"sendMessage","data":"not an object"}`))
	require.Error(t, err)
}

func TestParseEventMissingDataYieldsZeroPayload(t *testing.T) {
	evt, err := ParseEvent([]byte(`{"event":"acceptRequest"}`))
	require.NoError(t, err)
	ar, ok := evt.(*AcceptRequest)
	require.True(t, ok)
	require.Empty(t, ar.RoomID)
}
