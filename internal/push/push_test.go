package push

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"chathub/internal/models"

	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	notification *models.Notification
	receivers    []string
	subs         []models.PushSubscription
}

func (f *fakeStore) GetNotification(ctx context.Context, id string) (*models.Notification, error) {
	if f.notification == nil {
		return nil, errors.New("no such notification")
	}
	return f.notification, nil
}

func (f *fakeStore) Receivers(ctx context.Context, id string) ([]string, error) {
	return f.receivers, nil
}

func (f *fakeStore) SubscriptionsFor(ctx context.Context, userIDs []string) ([]models.PushSubscription, error) {
	return f.subs, nil
}

type fakeProvider struct {
	sent     []models.PushSubscription
	payloads [][]byte
	failFor  string
}

func (f *fakeProvider) Send(sub models.PushSubscription, payload []byte) error {
	if sub.Endpoint == f.failFor {
		return errors.New("endpoint gone")
	}
	f.sent = append(f.sent, sub)
	f.payloads = append(f.payloads, payload)
	return nil
}

func TestDeliverSendsToEverySubscription(t *testing.T) {
	store := &fakeStore{
		notification: &models.Notification{ID: "n1", Message: "hello", URL: "/rooms/r1"},
		receivers:    []string{"u1", "u2"},
		subs: []models.PushSubscription{
			{UserID: "u1", Endpoint: "https://push/1"},
			{UserID: "u2", Endpoint: "https://push/2"},
			{UserID: "u2", Endpoint: "https://push/3"},
		},
	}
	provider := &fakeProvider{}
	d := &Dispatcher{Store: store, Provider: provider, Title: "Chat App", Timeout: time.Second}

	d.Deliver(context.Background(), "n1")

	require.Len(t, provider.sent, 3)

	var body map[string]string
	require.NoError(t, json.Unmarshal(provider.payloads[0], &body))
	require.Equal(t, "Chat App", body["title"])
	require.Equal(t, "hello", body["body"])
	require.Equal(t, "/rooms/r1", body["url"])
}

func TestDeliverOneFailureDoesNotAbortTheRest(t *testing.T) {
	store := &fakeStore{
		notification: &models.Notification{ID: "n1", Message: "hello"},
		receivers:    []string{"u1", "u2"},
		subs: []models.PushSubscription{
			{UserID: "u1", Endpoint: "https://push/dead"},
			{UserID: "u2", Endpoint: "https://push/2"},
		},
	}
	provider := &fakeProvider{failFor: "https://push/dead"}
	d := &Dispatcher{Store: store, Provider: provider}

	d.Deliver(context.Background(), "n1")

	require.Len(t, provider.sent, 1)
	require.Equal(t, "https://push/2", provider.sent[0].Endpoint)
}

func TestDeliverNoReceiversIsQuiet(t *testing.T) {
	store := &fakeStore{notification: &models.Notification{ID: "n1"}}
	provider := &fakeProvider{}
	d := &Dispatcher{Store: store, Provider: provider}

	d.Deliver(context.Background(), "n1")

	require.Empty(t, provider.sent)
}
