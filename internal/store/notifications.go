package store

import (
	"context"
	"fmt"
	"time"

	"chathub/internal/db"
	"chathub/internal/models"
)

type NotificationStore struct{}

func NewNotificationStore() *NotificationStore {
	return &NotificationStore{}
}

// CreateNotification writes the notification and one receiver row per
// intended recipient atomically, and returns the notification id.
func (s *NotificationStore) CreateNotification(ctx context.Context, n models.Notification, receiverIDs []string) (string, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	var id string
	err = tx.QueryRow(ctx,
		`INSERT INTO notifications (event, sender_id, message, type, url) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		n.Event, n.SenderID, n.Message, n.Type, n.URL).Scan(&id)
	if err != nil {
		return "", err
	}

	for _, receiverID := range receiverIDs {
		_, err = tx.Exec(ctx,
			`INSERT INTO notification_receivers (notification_id, receiver_id) VALUES ($1, $2)`,
			id, receiverID)
		if err != nil {
			return "", err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return id, nil
}

func (s *NotificationStore) GetNotification(ctx context.Context, notificationID string) (*models.Notification, error) {
	var n models.Notification
	var event, url *string
	err := db.Pool.QueryRow(ctx,
		`SELECT id, event, sender_id, message, type, url, created_at FROM notifications WHERE id = $1`,
		notificationID).Scan(&n.ID, &event, &n.SenderID, &n.Message, &n.Type, &url, &n.CreatedAt)
	if err != nil {
		return nil, err
	}
	if event != nil {
		n.Event = *event
	}
	if url != nil {
		n.URL = *url
	}
	return &n, nil
}

func (s *NotificationStore) Receivers(ctx context.Context, notificationID string) ([]string, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT receiver_id FROM notification_receivers WHERE notification_id = $1`, notificationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var receiverIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		receiverIDs = append(receiverIDs, id)
	}
	return receiverIDs, rows.Err()
}

// ListForUser returns one page of the user's notifications, newest
// first, each with its sender's public fields.
func (s *NotificationStore) ListForUser(ctx context.Context, userID string, page int) (*models.NotificationPage, error) {
	if page < 1 {
		page = 1
	}

	var total int
	err := db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications n
		WHERE EXISTS (SELECT 1 FROM notification_receivers r
			WHERE r.notification_id = n.id AND r.receiver_id = $1)`,
		userID).Scan(&total)
	if err != nil {
		return nil, err
	}

	rows, err := db.Pool.Query(ctx,
		`SELECT n.id, n.event, n.sender_id, n.message, n.type, n.url, n.created_at,
			u.id, u.name, u.email, u.created_at
		FROM notifications n
		LEFT JOIN users u ON u.id = n.sender_id
		WHERE EXISTS (SELECT 1 FROM notification_receivers r
			WHERE r.notification_id = n.id AND r.receiver_id = $1)
		ORDER BY n.created_at DESC
		LIMIT $2 OFFSET $3`,
		userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notifications := make([]models.NotificationWithSender, 0)
	for rows.Next() {
		var item models.NotificationWithSender
		var event, url *string
		var senderID, senderName, senderEmail *string
		var senderCreated *time.Time
		if err := rows.Scan(&item.ID, &event, &item.SenderID, &item.Message, &item.Type, &url, &item.CreatedAt,
			&senderID, &senderName, &senderEmail, &senderCreated); err != nil {
			return nil, err
		}
		if event != nil {
			item.Event = *event
		}
		if url != nil {
			item.URL = *url
		}
		if senderID != nil {
			item.Sender = &models.User{
				ID:        *senderID,
				Name:      *senderName,
				Email:     *senderEmail,
				CreatedAt: *senderCreated,
			}
		}
		notifications = append(notifications, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hasNext := page*pageSize < total
	p := &models.NotificationPage{
		Notifications: notifications,
		Pagination: models.Pagination{
			CurrentPage: page,
			PageSize:    pageSize,
			Total:       total,
			HasNextPage: hasNext,
		},
	}
	if hasNext {
		next := fmt.Sprintf("/notifications?page=%d", page+1)
		p.Pagination.NextPage = &next
	}
	if page > 1 {
		prev := fmt.Sprintf("/notifications?page=%d", page-1)
		p.Pagination.PreviousPage = &prev
	}
	return p, nil
}

// SaveSubscription stores a Web Push subscription for the user.
func (s *NotificationStore) SaveSubscription(ctx context.Context, userID string, req models.SubscribeRequest) (*models.PushSubscription, error) {
	var sub models.PushSubscription
	err := db.Pool.QueryRow(ctx,
		`INSERT INTO push_subscriptions (user_id, endpoint, p256dh, auth) VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, endpoint) DO UPDATE SET p256dh = EXCLUDED.p256dh, auth = EXCLUDED.auth
		RETURNING id, user_id, endpoint, p256dh, auth, created_at`,
		userID, req.Endpoint, req.Keys.P256dh, req.Keys.Auth).
		Scan(&sub.ID, &sub.UserID, &sub.Endpoint, &sub.P256dh, &sub.Auth, &sub.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// SubscriptionsFor returns every stored subscription of the given users.
func (s *NotificationStore) SubscriptionsFor(ctx context.Context, userIDs []string) ([]models.PushSubscription, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, user_id, endpoint, p256dh, auth, created_at
		FROM push_subscriptions WHERE user_id = ANY($1)`, userIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []models.PushSubscription
	for rows.Next() {
		var sub models.PushSubscription
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.Endpoint, &sub.P256dh, &sub.Auth, &sub.CreatedAt); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}
