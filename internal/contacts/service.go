package contacts

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/campuslink/portal/internal/common/errors"
	"github.com/campuslink/portal/internal/common/pagination"
	"github.com/campuslink/portal/internal/principal"
)

type Store interface {
	Create(ctx context.Context, c *Contact) error
	GetByPair(ctx context.Context, ownerID, contactID uuid.UUID) (*Contact, error)
	UpdateStatus(ctx context.Context, ownerID, contactID uuid.UUID, status Status) error
	SetFavorite(ctx context.Context, ownerID, contactID uuid.UUID, favorite bool) error
	Block(ctx context.Context, ownerID, contactID uuid.UUID, reason string) error
	Unblock(ctx context.Context, ownerID, contactID uuid.UUID) error
	List(ctx context.Context, ownerID uuid.UUID, filter ListFilter, page pagination.Page) ([]*Contact, int, error)
}

type Service struct {
	store     Store
	directory principal.Directory
	logger    *zap.Logger
}

func NewService(store Store, directory principal.Directory, logger *zap.Logger) *Service {
	return &Service{
		store:     store,
		directory: directory,
		logger:    logger,
	}
}

type AddContactInput struct {
	ContactID uuid.UUID
	Notes     string
	Tags      []string
	Groups    []string
}

// AddContact resolves the target through the directory and inserts the edge.
// A duplicate pair surfaces as a conflict from the store.
func (s *Service) AddContact(ctx context.Context, ownerID uuid.UUID, in AddContactInput) (*Contact, error) {
	if in.ContactID == uuid.Nil {
		return nil, apperrors.BadRequest("contact id is required")
	}
	if in.ContactID == ownerID {
		return nil, apperrors.BadRequest("cannot add yourself as a contact")
	}

	resolved, err := s.directory.Resolve(ctx, in.ContactID.String())
	if err != nil {
		return nil, err
	}

	if in.Tags == nil {
		in.Tags = []string{}
	}
	if in.Groups == nil {
		in.Groups = []string{}
	}

	now := time.Now().UTC()
	c := &Contact{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		ContactID:   in.ContactID,
		DisplayName: resolved.Name,
		Role:        resolved.Role,
		Status:      StatusOffline,
		Notes:       strings.TrimSpace(in.Notes),
		Tags:        in.Tags,
		Groups:      in.Groups,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.Create(ctx, c); err != nil {
		return nil, err
	}

	return c, nil
}

func (s *Service) UpdateStatus(ctx context.Context, ownerID, contactID uuid.UUID, status Status) error {
	if !validStatuses[status] {
		return apperrors.BadRequest("unsupported status")
	}

	return s.store.UpdateStatus(ctx, ownerID, contactID, status)
}

func (s *Service) SetFavorite(ctx context.Context, ownerID, contactID uuid.UUID, favorite bool) error {
	return s.store.SetFavorite(ctx, ownerID, contactID, favorite)
}

// Block flags the contact. The contact must exist; blocking twice is a no-op
// success.
func (s *Service) Block(ctx context.Context, ownerID, contactID uuid.UUID, reason string) error {
	if _, err := s.store.GetByPair(ctx, ownerID, contactID); err != nil {
		return err
	}

	return s.store.Block(ctx, ownerID, contactID, strings.TrimSpace(reason))
}

// Unblock clears the flag. Unblocking a contact that is not blocked is a
// no-op success.
func (s *Service) Unblock(ctx context.Context, ownerID, contactID uuid.UUID) error {
	if _, err := s.store.GetByPair(ctx, ownerID, contactID); err != nil {
		return err
	}

	return s.store.Unblock(ctx, ownerID, contactID)
}

func (s *Service) List(ctx context.Context, ownerID uuid.UUID, filter ListFilter, page pagination.Page) ([]*Contact, int, error) {
	return s.store.List(ctx, ownerID, filter, page)
}
