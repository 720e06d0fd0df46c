// Package push drives best-effort Web Push delivery for persisted
// notifications whose receivers had no live connection.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"chathub/internal/models"
	"chathub/internal/utils"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// Provider sends one payload to one subscription. Satisfied by WebPush
// and by test fakes.
type Provider interface {
	Send(sub models.PushSubscription, payload []byte) error
}

// Store is the notification persistence the dispatcher reads.
type Store interface {
	GetNotification(ctx context.Context, notificationID string) (*models.Notification, error)
	Receivers(ctx context.Context, notificationID string) ([]string, error)
	SubscriptionsFor(ctx context.Context, userIDs []string) ([]models.PushSubscription, error)
}

// WebPush is the VAPID-keyed Web Push provider.
type WebPush struct {
	Subscriber      string
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	TTL             int
}

func (w *WebPush) Send(sub models.PushSubscription, payload []byte) error {
	resp, err := webpush.SendNotification(payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{P256dh: sub.P256dh, Auth: sub.Auth},
	}, &webpush.Options{
		Subscriber:      w.Subscriber,
		VAPIDPublicKey:  w.VAPIDPublicKey,
		VAPIDPrivateKey: w.VAPIDPrivateKey,
		TTL:             w.TTL,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("push endpoint returned %s", resp.Status)
	}
	return nil
}

type Dispatcher struct {
	Store    Store
	Provider Provider
	Title    string
	Icon     string
	Timeout  time.Duration
}

// Dispatch kicks off delivery for a persisted notification without
// blocking the caller.
func (d *Dispatcher) Dispatch(notificationID string) {
	go func() {
		timeout := d.Timeout
		if timeout == 0 {
			timeout = 5 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		d.Deliver(ctx, notificationID)
	}()
}

// Deliver loads the notification and its receivers, resolves each
// receiver's stored subscriptions, and attempts delivery independently
// per subscription. One failed subscription never aborts the rest and
// nothing is retried.
func (d *Dispatcher) Deliver(ctx context.Context, notificationID string) {
	n, err := d.Store.GetNotification(ctx, notificationID)
	if err != nil {
		utils.LogError(err, "GetNotification")
		return
	}

	receiverIDs, err := d.Store.Receivers(ctx, notificationID)
	if err != nil {
		utils.LogError(err, "Receivers")
		return
	}
	if len(receiverIDs) == 0 {
		return
	}

	subs, err := d.Store.SubscriptionsFor(ctx, receiverIDs)
	if err != nil {
		utils.LogError(err, "SubscriptionsFor")
		return
	}

	payload, err := json.Marshal(map[string]string{
		"title": d.Title,
		"body":  n.Message,
		"icon":  d.Icon,
		"url":   n.URL,
	})
	if err != nil {
		utils.LogError(err, "push payload")
		return
	}

	for _, sub := range subs {
		if err := d.Provider.Send(sub, payload); err != nil {
			utils.LogError(err, "push "+sub.Endpoint)
		}
	}
}
