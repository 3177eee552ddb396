package messages

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
)

const (
	ReceiptRead      = "read"
	ReceiptDelivered = "delivered"
)

// SearchQuery scopes a full-text-ish search. Every field except Query is
// optional; results are always restricted to conversations the caller is an
// active participant of.
type SearchQuery struct {
	Query          string
	ConversationID *uuid.UUID
	SenderID       *uuid.UUID
	ContentType    *ContentType
	From           *time.Time
	To             *time.Time
	HasAttachments *bool
	Limit          int
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const messageColumns = `id, conversation_id, sender_id, sender_name, sender_role,
	content, content_type, attachments, reply_to_id, priority,
	edited_at, deleted_at, expires_at, created_at`

func scanMessage(row pgx.Row) (*Message, error) {
	var (
		m           Message
		attachments []byte
	)

	err := row.Scan(
		&m.ID, &m.ConversationID, &m.SenderID, &m.SenderName, &m.SenderRole,
		&m.Content, &m.ContentType, &attachments, &m.ReplyToID, &m.Priority,
		&m.EditedAt, &m.DeletedAt, &m.ExpiresAt, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &m.Attachments); err != nil {
			return nil, fmt.Errorf("unmarshal attachments: %w", err)
		}
	}

	m.Edited = m.EditedAt != nil
	m.Deleted = m.DeletedAt != nil

	return &m, nil
}

func (r *Repository) Create(ctx context.Context, m *Message) error {
	attachments, err := json.Marshal(m.Attachments)
	if err != nil {
		return fmt.Errorf("marshal attachments: %w", err)
	}
	if m.Attachments == nil {
		attachments = []byte("[]")
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, sender_name, sender_role,
			content, content_type, attachments, reply_to_id, priority, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		m.ID, m.ConversationID, m.SenderID, m.SenderName, m.SenderRole,
		m.Content, m.ContentType, attachments, m.ReplyToID, m.Priority,
		m.ExpiresAt, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	return nil
}

// GetByID returns the raw row, deleted or not. Callers decide whether a
// tombstone is acceptable for their operation.
func (r *Repository) GetByID(ctx context.Context, id int64) (*Message, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE id = $1`,
		id,
	)

	m, err := scanMessage(row)
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("message not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}

	if err := r.hydrate(ctx, []*Message{m}); err != nil {
		return nil, err
	}

	return m, nil
}

// Edit rewrites the content only while the row is still live and still owned
// by the sender; the WHERE clause re-validates both at write time.
func (r *Repository) Edit(ctx context.Context, id int64, senderID uuid.UUID, content string) (*Message, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE messages
		SET content = $3, edited_at = NOW()
		WHERE id = $1 AND sender_id = $2 AND deleted_at IS NULL
		RETURNING `+messageColumns,
		id, senderID, content,
	)

	m, err := scanMessage(row)
	if err == pgx.ErrNoRows {
		return nil, apperrors.Conflict("message can no longer be edited")
	}
	if err != nil {
		return nil, fmt.Errorf("edit message: %w", err)
	}

	return m, nil
}

// SoftDelete tombstones the message. Returns false when the row was already
// deleted, which callers treat as success.
func (r *Repository) SoftDelete(ctx context.Context, id int64, senderID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE messages
		SET deleted_at = NOW()
		WHERE id = $1 AND sender_id = $2 AND deleted_at IS NULL`,
		id, senderID,
	)
	if err != nil {
		return false, fmt.Errorf("delete message: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// UpsertReceipt records a read or delivery acknowledgment. Re-acknowledging
// is a no-op thanks to the (message_id, user_id, kind) primary key.
func (r *Repository) UpsertReceipt(ctx context.Context, messageID int64, userID uuid.UUID, kind string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO message_receipts (message_id, user_id, kind)
		VALUES ($1, $2, $3)
		ON CONFLICT (message_id, user_id, kind) DO NOTHING`,
		messageID, userID, kind,
	)
	if err != nil {
		return fmt.Errorf("upsert receipt: %w", err)
	}

	return nil
}

// MarkConversationDelivered stamps a delivery receipt on every live message in
// the conversation that the user did not send. Runs as one statement so a
// history fetch stays cheap.
func (r *Repository) MarkConversationDelivered(ctx context.Context, conversationID, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO message_receipts (message_id, user_id, kind)
		SELECT id, $2, 'delivered'
		FROM messages
		WHERE conversation_id = $1 AND sender_id <> $2 AND deleted_at IS NULL
		ON CONFLICT (message_id, user_id, kind) DO NOTHING`,
		conversationID, userID,
	)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}

	return nil
}

// UpsertReaction sets the user's reaction, replacing any previous emoji.
func (r *Repository) UpsertReaction(ctx context.Context, messageID int64, userID uuid.UUID, emoji string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO message_reactions (message_id, user_id, emoji)
		VALUES ($1, $2, $3)
		ON CONFLICT (message_id, user_id)
		DO UPDATE SET emoji = EXCLUDED.emoji, created_at = NOW()`,
		messageID, userID, emoji,
	)
	if err != nil {
		return fmt.Errorf("upsert reaction: %w", err)
	}

	return nil
}

// ListByConversation pages newest-first. Deleted rows are returned so the
// service can render tombstones; expired rows are dropped entirely.
func (r *Repository) ListByConversation(ctx context.Context, conversationID uuid.UUID, page pagination.Page) ([]*Message, int, error) {
	var total int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM messages
		WHERE conversation_id = $1
		  AND (expires_at IS NULL OR expires_at > NOW())`,
		conversationID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = $1
		  AND (expires_at IS NULL OR expires_at > NOW())
		ORDER BY id DESC
		LIMIT $2 OFFSET $3`,
		conversationID, page.PageSize, page.Offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	msgs, err := collectMessages(rows)
	if err != nil {
		return nil, 0, err
	}

	if err := r.hydrate(ctx, msgs); err != nil {
		return nil, 0, err
	}

	return msgs, total, nil
}

// Search matches content and sender name case-insensitively, scoped to the
// caller's active conversations. Tombstones and expired messages never match.
func (r *Repository) Search(ctx context.Context, callerID uuid.UUID, q SearchQuery) ([]*Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages m
		WHERE m.deleted_at IS NULL
		  AND (m.expires_at IS NULL OR m.expires_at > NOW())
		  AND EXISTS (
			SELECT 1 FROM conversation_participants cp
			WHERE cp.conversation_id = m.conversation_id
			  AND cp.user_id = $1 AND cp.is_active
		  )
		  AND (m.content ILIKE $2 OR m.sender_name ILIKE $2)`

	args := []interface{}{callerID, "%" + q.Query + "%"}

	if q.ConversationID != nil {
		args = append(args, *q.ConversationID)
		query += fmt.Sprintf(" AND m.conversation_id = $%d", len(args))
	}
	if q.SenderID != nil {
		args = append(args, *q.SenderID)
		query += fmt.Sprintf(" AND m.sender_id = $%d", len(args))
	}
	if q.ContentType != nil {
		args = append(args, *q.ContentType)
		query += fmt.Sprintf(" AND m.content_type = $%d", len(args))
	}
	if q.From != nil {
		args = append(args, *q.From)
		query += fmt.Sprintf(" AND m.created_at >= $%d", len(args))
	}
	if q.To != nil {
		args = append(args, *q.To)
		query += fmt.Sprintf(" AND m.created_at <= $%d", len(args))
	}
	if q.HasAttachments != nil {
		if *q.HasAttachments {
			query += " AND jsonb_array_length(m.attachments) > 0"
		} else {
			query += " AND jsonb_array_length(m.attachments) = 0"
		}
	}

	limit := q.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY m.id DESC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

func collectMessages(rows pgx.Rows) ([]*Message, error) {
	var msgs []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return msgs, nil
}

// hydrate attaches receipts and reactions for a page of messages in two
// queries instead of 2N.
func (r *Repository) hydrate(ctx context.Context, msgs []*Message) error {
	if len(msgs) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(msgs))
	byID := make(map[int64]*Message, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
		byID[m.ID] = m
	}

	rows, err := r.pool.Query(ctx, `
		SELECT message_id, user_id, kind, created_at
		FROM message_receipts
		WHERE message_id = ANY($1)`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("load receipts: %w", err)
	}
	for rows.Next() {
		var (
			messageID int64
			userID    uuid.UUID
			kind      string
			at        time.Time
		)
		if err := rows.Scan(&messageID, &userID, &kind, &at); err != nil {
			rows.Close()
			return fmt.Errorf("scan receipt: %w", err)
		}
		m := byID[messageID]
		switch kind {
		case ReceiptRead:
			m.ReadBy = append(m.ReadBy, Receipt{UserID: userID, At: at})
		case ReceiptDelivered:
			m.DeliveredTo = append(m.DeliveredTo, Receipt{UserID: userID, At: at})
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate receipts: %w", err)
	}

	rows, err = r.pool.Query(ctx, `
		SELECT message_id, user_id, emoji, created_at
		FROM message_reactions
		WHERE message_id = ANY($1)`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("load reactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			messageID int64
			reaction  Reaction
		)
		if err := rows.Scan(&messageID, &reaction.UserID, &reaction.Emoji, &reaction.At); err != nil {
			return fmt.Errorf("scan reaction: %w", err)
		}
		m := byID[messageID]
		m.Reactions = append(m.Reactions, reaction)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate reactions: %w", err)
	}

	return nil
}
