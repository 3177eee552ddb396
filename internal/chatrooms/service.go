package chatrooms

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/campuslink/portal/internal/common/errors"
	"github.com/campuslink/portal/internal/common/pagination"
)

type Store interface {
	Create(ctx context.Context, room *Room) error
	GetByID(ctx context.Context, id uuid.UUID) (*Room, error)
	List(ctx context.Context, filter ListFilter, page pagination.Page) ([]*Room, int, error)
	GetMember(ctx context.Context, roomID, userID uuid.UUID) (*Member, error)
	Join(ctx context.Context, roomID, userID uuid.UUID) error
	Leave(ctx context.Context, roomID, userID uuid.UUID) (bool, error)
	SetPinned(ctx context.Context, roomID uuid.UUID, pinned []int64) error
	UpdateSettings(ctx context.Context, roomID uuid.UUID, settings Settings) error
}

type Service struct {
	store  Store
	logger *zap.Logger
}

func NewService(store Store, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logger}
}

type CreateRoomInput struct {
	Name            string
	Type            Type
	Category        string
	MaxParticipants *int
	Rules           []string
	Settings        Settings
}

func (s *Service) CreateRoom(ctx context.Context, creatorID uuid.UUID, in CreateRoomInput) (*Room, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, apperrors.BadRequest("room name is required")
	}

	if in.Type == "" {
		in.Type = TypePublic
	}
	if !validTypes[in.Type] {
		return nil, apperrors.BadRequest("unsupported room type")
	}

	if in.MaxParticipants != nil && *in.MaxParticipants < 2 {
		return nil, apperrors.BadRequest("max participants must be at least 2")
	}
	if in.Settings.SlowModeSeconds < 0 {
		return nil, apperrors.BadRequest("slow mode interval cannot be negative")
	}

	if in.Rules == nil {
		in.Rules = []string{}
	}

	room := &Room{
		ID:              uuid.New(),
		Name:            in.Name,
		Type:            in.Type,
		Category:        strings.TrimSpace(in.Category),
		CreatedBy:       creatorID,
		MaxParticipants: in.MaxParticipants,
		Rules:           in.Rules,
		PinnedMessages:  []int64{},
		Settings:        in.Settings,
		IsActive:        true,
		CreatedAt:       time.Now().UTC(),
	}
	room.UpdatedAt = room.CreatedAt

	if err := s.store.Create(ctx, room); err != nil {
		return nil, err
	}

	room.CurrentParticipants = 1
	return room, nil
}

func (s *Service) Get(ctx context.Context, roomID uuid.UUID) (*Room, error) {
	return s.store.GetByID(ctx, roomID)
}

func (s *Service) List(ctx context.Context, filter ListFilter, page pagination.Page) ([]*Room, int, error) {
	if filter.Type != nil && !validTypes[*filter.Type] {
		return nil, 0, apperrors.BadRequest("unsupported room type")
	}

	return s.store.List(ctx, filter, page)
}

// Join admits the caller, re-using a left membership when one exists. The
// capacity and duplicate checks happen inside the store's transaction.
func (s *Service) Join(ctx context.Context, roomID, userID uuid.UUID) error {
	return s.store.Join(ctx, roomID, userID)
}

// Leave is idempotent: leaving a room the caller is not in succeeds without
// effect.
func (s *Service) Leave(ctx context.Context, roomID, userID uuid.UUID) error {
	_, err := s.store.Leave(ctx, roomID, userID)
	return err
}

// Pin adds a message id to the room's pinned list. Moderator or admin only.
func (s *Service) Pin(ctx context.Context, roomID, callerID uuid.UUID, messageID int64) error {
	room, err := s.moderatedRoom(ctx, roomID, callerID)
	if err != nil {
		return err
	}

	for _, id := range room.PinnedMessages {
		if id == messageID {
			return nil
		}
	}

	return s.store.SetPinned(ctx, roomID, append(room.PinnedMessages, messageID))
}

func (s *Service) Unpin(ctx context.Context, roomID, callerID uuid.UUID, messageID int64) error {
	room, err := s.moderatedRoom(ctx, roomID, callerID)
	if err != nil {
		return err
	}

	pinned := make([]int64, 0, len(room.PinnedMessages))
	for _, id := range room.PinnedMessages {
		if id != messageID {
			pinned = append(pinned, id)
		}
	}
	if len(pinned) == len(room.PinnedMessages) {
		return nil
	}

	return s.store.SetPinned(ctx, roomID, pinned)
}

// SetSlowMode stores the per-sender posting interval. Admin only.
func (s *Service) SetSlowMode(ctx context.Context, roomID, callerID uuid.UUID, seconds int) error {
	if seconds < 0 {
		return apperrors.BadRequest("slow mode interval cannot be negative")
	}

	member, err := s.activeMember(ctx, roomID, callerID)
	if err != nil {
		return err
	}
	if member.Role != RoleAdmin {
		return apperrors.Forbidden("only admins can change room settings")
	}

	room, err := s.store.GetByID(ctx, roomID)
	if err != nil {
		return err
	}

	settings := room.Settings
	settings.SlowModeSeconds = seconds
	return s.store.UpdateSettings(ctx, roomID, settings)
}

func (s *Service) moderatedRoom(ctx context.Context, roomID, callerID uuid.UUID) (*Room, error) {
	member, err := s.activeMember(ctx, roomID, callerID)
	if err != nil {
		return nil, err
	}
	if member.Role != RoleAdmin && member.Role != RoleModerator {
		return nil, apperrors.Forbidden("only moderators and admins can manage pins")
	}

	return s.store.GetByID(ctx, roomID)
}

// activeMember authorizes the caller against the membership row. A missing or
// deactivated row is a Forbidden; storage failures propagate unchanged.
func (s *Service) activeMember(ctx context.Context, roomID, userID uuid.UUID) (*Member, error) {
	member, err := s.store.GetMember(ctx, roomID, userID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.Forbidden("not a member of this room")
		}
		return nil, err
	}
	if !member.IsActive {
		return nil, apperrors.Forbidden("not a member of this room")
	}
	return member, nil
}
