package store

import (
	"context"
	"errors"

	"chathub/internal/db"
	"chathub/internal/engine"
	"chathub/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type MessageStore struct{}

func NewMessageStore() *MessageStore {
	return &MessageStore{}
}

// CreateMessage writes the message, its room link and the per-recipient
// status rows in one transaction: the sender's row is read, every other
// recipient's unread. The recipient set is the eligible-member set the
// engine computed at persist time.
func (s *MessageStore) CreateMessage(ctx context.Context, roomID, senderID, text string, receiverID *string, recipients []string) (*models.Message, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var msg models.Message
	err = tx.QueryRow(ctx,
		`INSERT INTO messages (id, message) VALUES ($1, $2) RETURNING id, message, created_at, updated_at`,
		uuid.NewString(), text).Scan(&msg.ID, &msg.Message, &msg.CreatedAt, &msg.UpdatedAt)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO message_memberships (message_id, room_id, sender_id, receiver_id) VALUES ($1, $2, $3, $4)`,
		msg.ID, roomID, senderID, receiverID)
	if err != nil {
		return nil, err
	}

	for _, userID := range recipients {
		_, err = tx.Exec(ctx,
			`INSERT INTO message_statuses (message_id, room_id, user_id, is_read) VALUES ($1, $2, $3, $4)`,
			msg.ID, roomID, userID, userID == senderID)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *MessageStore) SenderOf(ctx context.Context, messageID string) (string, error) {
	var senderID string
	err := db.Pool.QueryRow(ctx,
		`SELECT sender_id FROM message_memberships WHERE message_id = $1`, messageID).
		Scan(&senderID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", engine.ErrNotFound
	}
	return senderID, err
}

func (s *MessageStore) UpdateMessageText(ctx context.Context, messageID, text string) (*models.Message, error) {
	var msg models.Message
	err := db.Pool.QueryRow(ctx,
		`UPDATE messages SET message = $2, updated_at = now()
		WHERE id = $1
		RETURNING id, message, created_at, updated_at`,
		messageID, text).Scan(&msg.ID, &msg.Message, &msg.CreatedAt, &msg.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, engine.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkRead flips one (message, user) status row to read. A pair that was
// never marked unread is a no-op, so the call is idempotent.
func (s *MessageStore) MarkRead(ctx context.Context, messageID, userID string) error {
	_, err := db.Pool.Exec(ctx,
		`UPDATE message_statuses SET is_read = true WHERE message_id = $1 AND user_id = $2`,
		messageID, userID)
	return err
}

func (s *MessageStore) UnreadCount(ctx context.Context, roomID, userID string) (int, error) {
	var count int
	err := db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM message_statuses WHERE room_id = $1 AND user_id = $2 AND NOT is_read`,
		roomID, userID).Scan(&count)
	return count, err
}

// UserMessages lists the messages addressed to the user in a room,
// oldest first.
func (s *MessageStore) UserMessages(ctx context.Context, roomID, userID string) ([]models.Message, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT m.id, m.message, m.created_at, m.updated_at
		FROM messages m
		JOIN message_statuses st ON st.message_id = m.id
		WHERE st.room_id = $1 AND st.user_id = $2
		ORDER BY m.created_at`,
		roomID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.Message, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
