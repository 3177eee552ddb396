package chatrooms

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/campuslink/portal/internal/common/errors"
	"github.com/campuslink/portal/internal/common/pagination"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, room *Room) error {
	rules, err := json.Marshal(room.Rules)
	if err != nil {
		return fmt.Errorf("marshal rules: %w", err)
	}
	pinned, err := json.Marshal(room.PinnedMessages)
	if err != nil {
		return fmt.Errorf("marshal pinned: %w", err)
	}
	settings, err := json.Marshal(room.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO chat_rooms (id, name, type, category, created_by, max_participants,
			rules, pinned_messages, settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`,
		room.ID, room.Name, room.Type, room.Category, room.CreatedBy, room.MaxParticipants,
		rules, pinned, settings, room.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert room: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO chat_room_members (room_id, user_id, role, joined_at)
		VALUES ($1, $2, $3, $4)`,
		room.ID, room.CreatedBy, RoleAdmin, room.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert creator membership: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

const roomColumns = `r.id, r.name, r.type, r.category, r.created_by, r.max_participants,
	r.rules, r.pinned_messages, r.settings, r.is_active, r.created_at, r.updated_at,
	(SELECT COUNT(*) FROM chat_room_members m WHERE m.room_id = r.id AND m.is_active)`

func scanRoom(row pgx.Row) (*Room, error) {
	var (
		room     Room
		rules    []byte
		pinned   []byte
		settings []byte
	)

	err := row.Scan(
		&room.ID, &room.Name, &room.Type, &room.Category, &room.CreatedBy, &room.MaxParticipants,
		&rules, &pinned, &settings, &room.IsActive, &room.CreatedAt, &room.UpdatedAt,
		&room.CurrentParticipants,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(rules, &room.Rules); err != nil {
		return nil, fmt.Errorf("unmarshal rules: %w", err)
	}
	if err := json.Unmarshal(pinned, &room.PinnedMessages); err != nil {
		return nil, fmt.Errorf("unmarshal pinned: %w", err)
	}
	if err := json.Unmarshal(settings, &room.Settings); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if room.Rules == nil {
		room.Rules = []string{}
	}
	if room.PinnedMessages == nil {
		room.PinnedMessages = []int64{}
	}

	return &room, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Room, error) {
	room, err := scanRoom(r.pool.QueryRow(ctx, `
		SELECT `+roomColumns+`
		FROM chat_rooms r
		WHERE r.id = $1`,
		id,
	))
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("room not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}

	return room, nil
}

func (r *Repository) List(ctx context.Context, filter ListFilter, page pagination.Page) ([]*Room, int, error) {
	where := " FROM chat_rooms r WHERE r.is_active"
	args := []interface{}{}

	if filter.Type != nil {
		args = append(args, *filter.Type)
		where += fmt.Sprintf(" AND r.type = $%d", len(args))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		where += fmt.Sprintf(" AND r.category = $%d", len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*)"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count rooms: %w", err)
	}

	args = append(args, page.PageSize, page.Offset)
	rows, err := r.pool.Query(ctx,
		"SELECT "+roomColumns+where+fmt.Sprintf(" ORDER BY r.name LIMIT $%d OFFSET $%d", len(args)-1, len(args)),
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var rooms []*Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate rooms: %w", err)
	}

	return rooms, total, nil
}

func (r *Repository) GetMember(ctx context.Context, roomID, userID uuid.UUID) (*Member, error) {
	var m Member
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, role, is_active, joined_at, left_at
		FROM chat_room_members
		WHERE room_id = $1 AND user_id = $2`,
		roomID, userID,
	).Scan(&m.UserID, &m.Role, &m.IsActive, &m.JoinedAt, &m.LeftAt)
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("member not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}

	return &m, nil
}

// Join admits the user while holding a row lock on the room, so the capacity
// check and the membership insert cannot race with a concurrent join. A
// former member is reactivated, never re-inserted.
func (r *Repository) Join(ctx context.Context, roomID, userID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		maxParticipants *int
		isActive        bool
	)
	err = tx.QueryRow(ctx, `
		SELECT max_participants, is_active
		FROM chat_rooms
		WHERE id = $1
		FOR UPDATE`,
		roomID,
	).Scan(&maxParticipants, &isActive)
	if err == pgx.ErrNoRows {
		return apperrors.NotFound("room not found")
	}
	if err != nil {
		return fmt.Errorf("lock room: %w", err)
	}
	if !isActive {
		return apperrors.Conflict("room is closed")
	}

	var member struct {
		exists bool
		active bool
	}
	err = tx.QueryRow(ctx, `
		SELECT TRUE, is_active
		FROM chat_room_members
		WHERE room_id = $1 AND user_id = $2`,
		roomID, userID,
	).Scan(&member.exists, &member.active)
	if err != nil && err != pgx.ErrNoRows {
		return fmt.Errorf("check membership: %w", err)
	}

	if member.active {
		return apperrors.Conflict("already a member of this room")
	}

	if maxParticipants != nil {
		var count int
		err = tx.QueryRow(ctx, `
			SELECT COUNT(*)
			FROM chat_room_members
			WHERE room_id = $1 AND is_active`,
			roomID,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("count members: %w", err)
		}
		if count >= *maxParticipants {
			return apperrors.Conflict("room is full")
		}
	}

	if member.exists {
		_, err = tx.Exec(ctx, `
			UPDATE chat_room_members
			SET is_active = TRUE, left_at = NULL, joined_at = NOW()
			WHERE room_id = $1 AND user_id = $2`,
			roomID, userID,
		)
	} else {
		_, err = tx.Exec(ctx, `
			INSERT INTO chat_room_members (room_id, user_id, role)
			VALUES ($1, $2, $3)`,
			roomID, userID, RoleMember,
		)
	}
	if err != nil {
		return fmt.Errorf("join room: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// Leave deactivates the membership. Returns false when the user was not an
// active member.
func (r *Repository) Leave(ctx context.Context, roomID, userID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE chat_room_members
		SET is_active = FALSE, left_at = NOW()
		WHERE room_id = $1 AND user_id = $2 AND is_active`,
		roomID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("leave room: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

func (r *Repository) SetPinned(ctx context.Context, roomID uuid.UUID, pinned []int64) error {
	if pinned == nil {
		pinned = []int64{}
	}
	data, err := json.Marshal(pinned)
	if err != nil {
		return fmt.Errorf("marshal pinned: %w", err)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE chat_rooms
		SET pinned_messages = $2, updated_at = NOW()
		WHERE id = $1`,
		roomID, data,
	)
	if err != nil {
		return fmt.Errorf("set pinned: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("room not found")
	}

	return nil
}

func (r *Repository) UpdateSettings(ctx context.Context, roomID uuid.UUID, settings Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE chat_rooms
		SET settings = $2, updated_at = NOW()
		WHERE id = $1`,
		roomID, data,
	)
	if err != nil {
		return fmt.Errorf("update settings: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("room not found")
	}

	return nil
}
