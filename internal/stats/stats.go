package stats

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Overview is the caller's communication footprint, computed on demand from
// the live tables rather than maintained counters.
type Overview struct {
	MessagesSent        int `json:"messages_sent"`
	ActiveConversations int `json:"active_conversations"`
	UnreadTotal         int `json:"unread_total"`
	RoomsJoined         int `json:"rooms_joined"`
	Contacts            int `json:"contacts"`
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Overview(ctx context.Context, userID uuid.UUID) (*Overview, error) {
	var o Overview

	err := r.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM messages
			 WHERE sender_id = $1 AND deleted_at IS NULL),
			(SELECT COUNT(*) FROM conversation_participants
			 WHERE user_id = $1 AND is_active),
			(SELECT COALESCE(SUM(unread_count), 0) FROM conversation_participants
			 WHERE user_id = $1 AND is_active),
			(SELECT COUNT(*) FROM chat_room_members
			 WHERE user_id = $1 AND is_active),
			(SELECT COUNT(*) FROM contacts
			 WHERE owner_id = $1)`,
		userID,
	).Scan(&o.MessagesSent, &o.ActiveConversations, &o.UnreadTotal, &o.RoomsJoined, &o.Contacts)
	if err != nil {
		return nil, fmt.Errorf("load stats: %w", err)
	}

	return &o, nil
}
