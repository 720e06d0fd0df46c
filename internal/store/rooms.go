// Package store holds the postgres adapters behind the realtime engine
// and the REST handlers. All queries run against the shared pool in
// internal/db; multi-row writes use a transaction.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chathub/internal/db"
	"chathub/internal/engine"
	"chathub/internal/models"

	"github.com/jackc/pgx/v5"
)

const pageSize = 10

type RoomStore struct{}

func NewRoomStore() *RoomStore {
	return &RoomStore{}
}

func (s *RoomStore) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	var r models.Room
	query := `SELECT id, name, admin_id, is_public, created_at, updated_at FROM rooms WHERE id = $1`
	err := db.Pool.QueryRow(ctx, query, roomID).
		Scan(&r.ID, &r.Name, &r.AdminID, &r.IsPublic, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, engine.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *RoomStore) CreateRoom(ctx context.Context, adminID string, req models.CreateRoomRequest) (*models.Room, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var r models.Room
	err = tx.QueryRow(ctx,
		`INSERT INTO rooms (name, admin_id, is_public) VALUES ($1, $2, $3)
		 RETURNING id, name, admin_id, is_public, created_at, updated_at`,
		req.Name, adminID, req.IsPublic).
		Scan(&r.ID, &r.Name, &r.AdminID, &r.IsPublic, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}

	// The creator is an approved admin member from the start.
	_, err = tx.Exec(ctx,
		`INSERT INTO room_memberships (room_id, user_id, role, approval_state) VALUES ($1, $2, $3, $4)`,
		r.ID, adminID, models.RoleAdmin, models.ApprovalApproved)
	if err != nil {
		return nil, err
	}

	// Named members start invited; each peer-accepts to become eligible.
	for _, m := range req.Members {
		if m.UserID == adminID {
			continue
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO room_memberships (room_id, user_id, role, approval_state) VALUES ($1, $2, $3, $4)
			ON CONFLICT (room_id, user_id) DO NOTHING`,
			r.ID, m.UserID, models.RoleUser, models.ApprovalInvited)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *RoomStore) UpdateRoom(ctx context.Context, roomID string, req models.UpdateRoomRequest) (*models.Room, error) {
	var r models.Room
	query := `UPDATE rooms
		SET name = COALESCE($2, name), is_public = COALESCE($3, is_public), updated_at = now()
		WHERE id = $1
		RETURNING id, name, admin_id, is_public, created_at, updated_at`
	err := db.Pool.QueryRow(ctx, query, roomID, req.Name, req.IsPublic).
		Scan(&r.ID, &r.Name, &r.AdminID, &r.IsPublic, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, engine.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *RoomStore) DeleteRoom(ctx context.Context, roomID string) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, roomID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return engine.ErrNotFound
	}
	return nil
}

// ListRooms returns one page of all rooms, each with its latest message.
func (s *RoomStore) ListRooms(ctx context.Context, page int) (*models.RoomPage, error) {
	return s.listRooms(ctx, page, "", "/rooms")
}

// ListUserRooms returns one page of the rooms the user is a member of.
func (s *RoomStore) ListUserRooms(ctx context.Context, userID string, page int) (*models.RoomPage, error) {
	return s.listRooms(ctx, page, userID, "/rooms/user/"+userID)
}

func (s *RoomStore) listRooms(ctx context.Context, page int, userID, basePath string) (*models.RoomPage, error) {
	if page < 1 {
		page = 1
	}

	filter := ""
	args := []interface{}{pageSize, (page - 1) * pageSize}
	countQuery := `SELECT COUNT(*) FROM rooms r`
	var countArgs []interface{}
	if userID != "" {
		filter = ` WHERE EXISTS (
			SELECT 1 FROM room_memberships m
			WHERE m.room_id = r.id AND m.user_id = $3 AND m.deleted_at IS NULL)`
		args = append(args, userID)
		countQuery += ` WHERE EXISTS (
			SELECT 1 FROM room_memberships m
			WHERE m.room_id = r.id AND m.user_id = $1 AND m.deleted_at IS NULL)`
		countArgs = append(countArgs, userID)
	}

	var count int
	if err := db.Pool.QueryRow(ctx, countQuery, countArgs...).Scan(&count); err != nil {
		return nil, err
	}

	rows, err := db.Pool.Query(ctx,
		`SELECT r.id, r.name, r.admin_id, r.is_public, r.created_at, r.updated_at,
			m.id, m.message, m.created_at, m.updated_at
		FROM rooms r
		LEFT JOIN LATERAL (
			SELECT msg.id, msg.message, msg.created_at, msg.updated_at
			FROM message_memberships mm
			JOIN messages msg ON msg.id = mm.message_id
			WHERE mm.room_id = r.id
			ORDER BY mm.created_at DESC
			LIMIT 1
		) m ON true`+filter+`
		ORDER BY r.created_at DESC
		LIMIT $1 OFFSET $2`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]models.RoomWithLastMessage, 0)
	for rows.Next() {
		var item models.RoomWithLastMessage
		var lastID, lastText *string
		var lastCreated, lastUpdated *time.Time
		if err := rows.Scan(&item.ID, &item.Name, &item.AdminID, &item.IsPublic,
			&item.CreatedAt, &item.UpdatedAt,
			&lastID, &lastText, &lastCreated, &lastUpdated); err != nil {
			return nil, err
		}
		if lastID != nil {
			item.LastMessage = &models.Message{
				ID:        *lastID,
				Message:   *lastText,
				CreatedAt: *lastCreated,
				UpdatedAt: *lastUpdated,
			}
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	p := &models.RoomPage{Count: count, Result: result}
	if page*pageSize < count {
		next := fmt.Sprintf("%s?page=%d", basePath, page+1)
		p.Next = &next
	}
	if page > 1 {
		prev := fmt.Sprintf("%s?page=%d", basePath, page-1)
		p.Previous = &prev
	}
	return p, nil
}

// RoomMembers returns every user with a non-deleted membership in the
// room, regardless of approval state.
func (s *RoomStore) RoomMembers(ctx context.Context, roomID string) ([]models.User, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT u.id, u.name, u.email, u.created_at
		FROM users u
		JOIN room_memberships m ON m.user_id = u.id
		WHERE m.room_id = $1 AND m.deleted_at IS NULL
		ORDER BY u.name`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// PendingMemberships lists the room's non-approved memberships, i.e. the
// open invitations and join requests.
func (s *RoomStore) PendingMemberships(ctx context.Context, roomID string) ([]models.RoomMembership, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT room_id, user_id, role, approval_state, is_blocked, deleted_at, created_at
		FROM room_memberships
		WHERE room_id = $1 AND approval_state <> $2 AND deleted_at IS NULL`,
		roomID, models.ApprovalApproved)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memberships []models.RoomMembership
	for rows.Next() {
		var m models.RoomMembership
		if err := rows.Scan(&m.RoomID, &m.UserID, &m.Role, &m.ApprovalState,
			&m.IsBlocked, &m.DeletedAt, &m.CreatedAt); err != nil {
			return nil, err
		}
		memberships = append(memberships, m)
	}
	return memberships, rows.Err()
}

func (s *RoomStore) Membership(ctx context.Context, roomID, userID string) (*models.RoomMembership, error) {
	var m models.RoomMembership
	query := `SELECT room_id, user_id, role, approval_state, is_blocked, deleted_at, created_at
		FROM room_memberships WHERE room_id = $1 AND user_id = $2 AND deleted_at IS NULL`
	err := db.Pool.QueryRow(ctx, query, roomID, userID).
		Scan(&m.RoomID, &m.UserID, &m.Role, &m.ApprovalState, &m.IsBlocked, &m.DeletedAt, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, engine.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *RoomStore) IsEligible(ctx context.Context, roomID, userID string) (bool, error) {
	var ok bool
	query := `SELECT EXISTS (
		SELECT 1 FROM room_memberships
		WHERE room_id = $1 AND user_id = $2
			AND approval_state = $3 AND NOT is_blocked AND deleted_at IS NULL)`
	err := db.Pool.QueryRow(ctx, query, roomID, userID, models.ApprovalApproved).Scan(&ok)
	return ok, err
}

func (s *RoomStore) ListEligibleMembers(ctx context.Context, roomID string) ([]string, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT user_id FROM room_memberships
		WHERE room_id = $1 AND approval_state = $2 AND NOT is_blocked AND deleted_at IS NULL`,
		roomID, models.ApprovalApproved)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var userIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		userIDs = append(userIDs, id)
	}
	return userIDs, rows.Err()
}

// UpsertJoin creates or revives the user's membership in the given
// approval state. An existing approved membership is left as is.
func (s *RoomStore) UpsertJoin(ctx context.Context, roomID, userID, approvalState string) (*models.RoomMembership, error) {
	var m models.RoomMembership
	query := `INSERT INTO room_memberships (room_id, user_id, role, approval_state)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (room_id, user_id) DO UPDATE
		SET approval_state = CASE
				WHEN room_memberships.approval_state = 'APPROVED' AND room_memberships.deleted_at IS NULL
					THEN room_memberships.approval_state
				ELSE EXCLUDED.approval_state
			END,
			deleted_at = NULL
		RETURNING room_id, user_id, role, approval_state, is_blocked, deleted_at, created_at`
	err := db.Pool.QueryRow(ctx, query, roomID, userID, models.RoleUser, approvalState).
		Scan(&m.RoomID, &m.UserID, &m.Role, &m.ApprovalState, &m.IsBlocked, &m.DeletedAt, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *RoomStore) Approve(ctx context.Context, roomID, userID string) error {
	tag, err := db.Pool.Exec(ctx,
		`UPDATE room_memberships SET approval_state = $3
		WHERE room_id = $1 AND user_id = $2 AND deleted_at IS NULL`,
		roomID, userID, models.ApprovalApproved)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return engine.ErrNotFound
	}
	return nil
}

func (s *RoomStore) SetBlocked(ctx context.Context, roomID, userID string, blocked bool) error {
	tag, err := db.Pool.Exec(ctx,
		`UPDATE room_memberships SET is_blocked = $3
		WHERE room_id = $1 AND user_id = $2 AND deleted_at IS NULL`,
		roomID, userID, blocked)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return engine.ErrNotFound
	}
	return nil
}

func (s *RoomStore) DeleteMembership(ctx context.Context, roomID, userID string) error {
	tag, err := db.Pool.Exec(ctx,
		`DELETE FROM room_memberships WHERE room_id = $1 AND user_id = $2`, roomID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return engine.ErrNotFound
	}
	return nil
}

func (s *RoomStore) SoftDeleteMembership(ctx context.Context, roomID, userID string) error {
	tag, err := db.Pool.Exec(ctx,
		`UPDATE room_memberships SET deleted_at = now()
		WHERE room_id = $1 AND user_id = $2 AND deleted_at IS NULL`, roomID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return engine.ErrNotFound
	}
	return nil
}
