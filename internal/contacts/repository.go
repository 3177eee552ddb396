package contacts

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/campuslink/portal/internal/common/errors"
	"github.com/campuslink/portal/internal/common/pagination"
)

const uniqueViolation = "23505"

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const contactColumns = `id, owner_id, contact_id, display_name, role, status,
	is_favorite, is_blocked, blocked_at, block_reason, notes, tags, groups,
	created_at, updated_at`

func scanContact(row pgx.Row) (*Contact, error) {
	var c Contact
	err := row.Scan(
		&c.ID, &c.OwnerID, &c.ContactID, &c.DisplayName, &c.Role, &c.Status,
		&c.IsFavorite, &c.IsBlocked, &c.BlockedAt, &c.BlockReason, &c.Notes, &c.Tags, &c.Groups,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if c.Tags == nil {
		c.Tags = []string{}
	}
	if c.Groups == nil {
		c.Groups = []string{}
	}

	return &c, nil
}

// Create inserts the edge, relying on the (owner_id, contact_id) unique
// constraint to reject duplicates atomically.
func (r *Repository) Create(ctx context.Context, c *Contact) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO contacts (id, owner_id, contact_id, display_name, role, status,
			is_favorite, notes, tags, groups, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`,
		c.ID, c.OwnerID, c.ContactID, c.DisplayName, c.Role, c.Status,
		c.IsFavorite, c.Notes, c.Tags, c.Groups, c.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperrors.Conflict("contact already exists")
		}
		return fmt.Errorf("insert contact: %w", err)
	}

	return nil
}

func (r *Repository) GetByPair(ctx context.Context, ownerID, contactID uuid.UUID) (*Contact, error) {
	c, err := scanContact(r.pool.QueryRow(ctx, `
		SELECT `+contactColumns+`
		FROM contacts
		WHERE owner_id = $1 AND contact_id = $2`,
		ownerID, contactID,
	))
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("contact not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get contact: %w", err)
	}

	return c, nil
}

func (r *Repository) UpdateStatus(ctx context.Context, ownerID, contactID uuid.UUID, status Status) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE contacts
		SET status = $3, updated_at = NOW()
		WHERE owner_id = $1 AND contact_id = $2`,
		ownerID, contactID, status,
	)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("contact not found")
	}

	return nil
}

func (r *Repository) SetFavorite(ctx context.Context, ownerID, contactID uuid.UUID, favorite bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE contacts
		SET is_favorite = $3, updated_at = NOW()
		WHERE owner_id = $1 AND contact_id = $2`,
		ownerID, contactID, favorite,
	)
	if err != nil {
		return fmt.Errorf("set favorite: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("contact not found")
	}

	return nil
}

// Block flags the edge. Blocking an already-blocked contact matches zero rows
// and stays a success, which keeps the operation idempotent.
func (r *Repository) Block(ctx context.Context, ownerID, contactID uuid.UUID, reason string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE contacts
		SET is_blocked = TRUE, blocked_at = NOW(), block_reason = $3, updated_at = NOW()
		WHERE owner_id = $1 AND contact_id = $2 AND NOT is_blocked`,
		ownerID, contactID, reason,
	)
	if err != nil {
		return fmt.Errorf("block contact: %w", err)
	}

	return nil
}

func (r *Repository) Unblock(ctx context.Context, ownerID, contactID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE contacts
		SET is_blocked = FALSE, blocked_at = NULL, block_reason = '', updated_at = NOW()
		WHERE owner_id = $1 AND contact_id = $2 AND is_blocked`,
		ownerID, contactID,
	)
	if err != nil {
		return fmt.Errorf("unblock contact: %w", err)
	}

	return nil
}

func (r *Repository) List(ctx context.Context, ownerID uuid.UUID, filter ListFilter, page pagination.Page) ([]*Contact, int, error) {
	where := " FROM contacts WHERE owner_id = $1"
	args := []interface{}{ownerID}

	if filter.IsFavorite != nil {
		args = append(args, *filter.IsFavorite)
		where += fmt.Sprintf(" AND is_favorite = $%d", len(args))
	}
	if filter.IsBlocked != nil {
		args = append(args, *filter.IsBlocked)
		where += fmt.Sprintf(" AND is_blocked = $%d", len(args))
	}
	if len(filter.Tags) > 0 {
		args = append(args, filter.Tags)
		where += fmt.Sprintf(" AND tags && $%d", len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*)"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count contacts: %w", err)
	}

	args = append(args, page.PageSize, page.Offset)
	rows, err := r.pool.Query(ctx,
		"SELECT "+contactColumns+where+fmt.Sprintf(" ORDER BY display_name LIMIT $%d OFFSET $%d", len(args)-1, len(args)),
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	var list []*Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan contact: %w", err)
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate contacts: %w", err)
	}

	return list, total, nil
}
