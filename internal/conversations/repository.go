package conversations

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/campuslink/portal/internal/common/errors"
	"github.com/campuslink/portal/internal/common/pagination"
	"github.com/campuslink/portal/internal/infra/cache"
)

const membershipTTL = 5 * time.Minute

type Repository struct {
	pool  *pgxpool.Pool
	cache *cache.Cache
}

// NewRepository wires the Postgres store with an optional redis cache for hot
// membership checks. A nil cache disables caching.
func NewRepository(pool *pgxpool.Pool, c *cache.Cache) *Repository {
	return &Repository{pool: pool, cache: c}
}

func membershipKey(conversationID, userID uuid.UUID) string {
	return fmt.Sprintf("conv:member:%s:%s", conversationID, userID)
}

func (r *Repository) Create(ctx context.Context, conv *Conversation, participants []Participant) error {
	settings, err := json.Marshal(conv.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO conversations (id, type, title, description, created_by, settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		conv.ID, conv.Type, conv.Title, conv.Description, conv.CreatedBy, settings, conv.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}

	for _, p := range participants {
		_, err = tx.Exec(ctx, `
			INSERT INTO conversation_participants (conversation_id, user_id, display_name, role, joined_at)
			VALUES ($1, $2, $3, $4, $5)`,
			conv.ID, p.UserID, p.DisplayName, p.Role, p.JoinedAt,
		)
		if err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	conv, err := r.scanConversation(r.pool.QueryRow(ctx, `
		SELECT id, type, title, description, created_by, settings,
		       last_message_id, last_message_preview, last_message_sender_id, last_message_at,
		       is_active, is_archived, created_at, updated_at
		FROM conversations
		WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT user_id, display_name, role, unread_count, is_active, joined_at, left_at
		FROM conversation_participants
		WHERE conversation_id = $1
		ORDER BY joined_at`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p Participant
		if err := rows.Scan(&p.UserID, &p.DisplayName, &p.Role, &p.UnreadCount, &p.IsActive, &p.JoinedAt, &p.LeftAt); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		conv.Participants = append(conv.Participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participants: %w", err)
	}

	return conv, nil
}

func (r *Repository) scanConversation(row pgx.Row) (*Conversation, error) {
	var (
		conv     Conversation
		settings []byte
		lmID     *int64
		lmSender *uuid.UUID
		lmAt     *time.Time
		lmText   string
	)

	err := row.Scan(
		&conv.ID, &conv.Type, &conv.Title, &conv.Description, &conv.CreatedBy, &settings,
		&lmID, &lmText, &lmSender, &lmAt,
		&conv.IsActive, &conv.IsArchived, &conv.CreatedAt, &conv.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("conversation not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}

	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &conv.Settings); err != nil {
			return nil, fmt.Errorf("unmarshal settings: %w", err)
		}
	}

	if lmID != nil && lmSender != nil && lmAt != nil {
		conv.LastMessage = &LastMessage{
			ID:       *lmID,
			Preview:  lmText,
			SenderID: *lmSender,
			At:       *lmAt,
		}
	}

	return &conv, nil
}

// GetParticipant returns the membership row whether or not it is active.
// NotFound means the user was never in the conversation.
func (r *Repository) GetParticipant(ctx context.Context, conversationID, userID uuid.UUID) (*Participant, error) {
	var p Participant
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, display_name, role, unread_count, is_active, joined_at, left_at
		FROM conversation_participants
		WHERE conversation_id = $1 AND user_id = $2`,
		conversationID, userID,
	).Scan(&p.UserID, &p.DisplayName, &p.Role, &p.UnreadCount, &p.IsActive, &p.JoinedAt, &p.LeftAt)
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("participant not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get participant: %w", err)
	}

	return &p, nil
}

// IsActiveParticipant is the hot path behind every message write, so it goes
// through the cache first.
func (r *Repository) IsActiveParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	key := membershipKey(conversationID, userID)

	if r.cache != nil {
		var active bool
		if err := r.cache.Get(ctx, key, &active); err == nil {
			return active, nil
		}
	}

	var active bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM conversation_participants
			WHERE conversation_id = $1 AND user_id = $2 AND is_active
		)`,
		conversationID, userID,
	).Scan(&active)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}

	if r.cache != nil {
		_ = r.cache.Set(ctx, key, active, membershipTTL)
	}

	return active, nil
}

// ReadReceiptsEnabled reports the conversation's read-receipts toggle.
func (r *Repository) ReadReceiptsEnabled(ctx context.Context, conversationID uuid.UUID) (bool, error) {
	var settings []byte
	err := r.pool.QueryRow(ctx,
		`SELECT settings FROM conversations WHERE id = $1`,
		conversationID,
	).Scan(&settings)
	if err == pgx.ErrNoRows {
		return false, apperrors.NotFound("conversation not found")
	}
	if err != nil {
		return false, fmt.Errorf("get settings: %w", err)
	}

	s := DefaultSettings()
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &s); err != nil {
			return false, fmt.Errorf("unmarshal settings: %w", err)
		}
	}

	return s.ReadReceipts, nil
}

func (r *Repository) AddParticipant(ctx context.Context, conversationID uuid.UUID, p Participant) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO conversation_participants (conversation_id, user_id, display_name, role, joined_at)
		VALUES ($1, $2, $3, $4, NOW())`,
		conversationID, p.UserID, p.DisplayName, p.Role,
	)
	if err != nil {
		return fmt.Errorf("add participant: %w", err)
	}

	r.invalidateMembership(ctx, conversationID, p.UserID)
	return nil
}

// Reactivate flips a left participant back to active under the requested
// role, keeping the original row so join history is not duplicated.
func (r *Repository) Reactivate(ctx context.Context, conversationID, userID uuid.UUID, role Role) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE conversation_participants
		SET is_active = TRUE, left_at = NULL, unread_count = 0, joined_at = NOW(), role = $3
		WHERE conversation_id = $1 AND user_id = $2 AND NOT is_active`,
		conversationID, userID, role,
	)
	if err != nil {
		return fmt.Errorf("reactivate participant: %w", err)
	}

	r.invalidateMembership(ctx, conversationID, userID)
	return nil
}

// RemoveParticipant deactivates the membership. Returns false when the user
// was not an active participant.
func (r *Repository) RemoveParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE conversation_participants
		SET is_active = FALSE, left_at = NOW()
		WHERE conversation_id = $1 AND user_id = $2 AND is_active`,
		conversationID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("remove participant: %w", err)
	}

	r.invalidateMembership(ctx, conversationID, userID)
	return tag.RowsAffected() > 0, nil
}

// RecordMessage applies the send side effects in one transaction: refresh the
// last-message snapshot and bump every other active participant's unread
// counter with a single relative update. Returns the number of counters
// incremented.
func (r *Repository) RecordMessage(ctx context.Context, conversationID, senderID uuid.UUID, messageID int64, preview string, at time.Time) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE conversations
		SET last_message_id = $2, last_message_preview = $3,
		    last_message_sender_id = $4, last_message_at = $5, updated_at = $5
		WHERE id = $1`,
		conversationID, messageID, preview, senderID, at,
	)
	if err != nil {
		return 0, fmt.Errorf("update last message: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE conversation_participants
		SET unread_count = unread_count + 1
		WHERE conversation_id = $1 AND user_id <> $2 AND is_active`,
		conversationID, senderID,
	)
	if err != nil {
		return 0, fmt.Errorf("increment unread: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return tag.RowsAffected(), nil
}

// ResetUnread zeroes the caller's counter. Already-zero is a no-op, which
// makes markConversationRead idempotent.
func (r *Repository) ResetUnread(ctx context.Context, conversationID, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE conversation_participants
		SET unread_count = 0
		WHERE conversation_id = $1 AND user_id = $2 AND is_active`,
		conversationID, userID,
	)
	if err != nil {
		return fmt.Errorf("reset unread: %w", err)
	}

	return nil
}

func (r *Repository) SetArchived(ctx context.Context, conversationID uuid.UUID, archived bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE conversations
		SET is_archived = $2, updated_at = NOW()
		WHERE id = $1`,
		conversationID, archived,
	)
	if err != nil {
		return fmt.Errorf("set archived: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("conversation not found")
	}

	return nil
}

// ActiveParticipantIDs feeds the notification fan-out.
func (r *Repository) ActiveParticipantIDs(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id
		FROM conversation_participants
		WHERE conversation_id = $1 AND is_active`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list active participants: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan participant id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participants: %w", err)
	}

	return ids, nil
}

// ListForUser pages the conversations the caller actively participates in,
// most recently active first, carrying the caller's unread counter on each row.
func (r *Repository) ListForUser(ctx context.Context, userID uuid.UUID, filter ListFilter, page pagination.Page) ([]*Conversation, int, error) {
	where := `
		FROM conversations c
		JOIN conversation_participants cp
		  ON cp.conversation_id = c.id AND cp.user_id = $1 AND cp.is_active
		WHERE TRUE`

	args := []interface{}{userID}

	if filter.Type != nil {
		args = append(args, *filter.Type)
		where += fmt.Sprintf(" AND c.type = $%d", len(args))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		where += fmt.Sprintf(" AND c.is_active = $%d", len(args))
	}
	if filter.Archived != nil {
		args = append(args, *filter.Archived)
		where += fmt.Sprintf(" AND c.is_archived = $%d", len(args))
	}
	if filter.HasUnread {
		where += " AND cp.unread_count > 0"
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*)"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count conversations: %w", err)
	}

	args = append(args, page.PageSize, page.Offset)
	rows, err := r.pool.Query(ctx, `
		SELECT c.id, c.type, c.title, c.description, c.created_by, c.settings,
		       c.last_message_id, c.last_message_preview, c.last_message_sender_id, c.last_message_at,
		       c.is_active, c.is_archived, c.created_at, c.updated_at,
		       cp.unread_count`+
		where+fmt.Sprintf(`
		ORDER BY c.last_message_at DESC NULLS LAST, c.created_at DESC
		LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		var (
			conv     Conversation
			settings []byte
			lmID     *int64
			lmSender *uuid.UUID
			lmAt     *time.Time
			lmText   string
		)
		err := rows.Scan(
			&conv.ID, &conv.Type, &conv.Title, &conv.Description, &conv.CreatedBy, &settings,
			&lmID, &lmText, &lmSender, &lmAt,
			&conv.IsActive, &conv.IsArchived, &conv.CreatedAt, &conv.UpdatedAt,
			&conv.UnreadCount,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("scan conversation: %w", err)
		}

		if len(settings) > 0 {
			if err := json.Unmarshal(settings, &conv.Settings); err != nil {
				return nil, 0, fmt.Errorf("unmarshal settings: %w", err)
			}
		}
		if lmID != nil && lmSender != nil && lmAt != nil {
			conv.LastMessage = &LastMessage{ID: *lmID, Preview: lmText, SenderID: *lmSender, At: *lmAt}
		}

		convs = append(convs, &conv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate conversations: %w", err)
	}

	return convs, total, nil
}

func (r *Repository) invalidateMembership(ctx context.Context, conversationID, userID uuid.UUID) {
	if r.cache != nil {
		_ = r.cache.Delete(ctx, membershipKey(conversationID, userID))
	}
}
