package messages

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/campuslink/portal/internal/common/errors"
)

// Store is the persistence surface the service needs. *Repository satisfies
// it; tests swap in an in-memory fake.
type Store interface {
	Create(ctx context.Context, m *Message) error
	GetByID(ctx context.Context, id int64) (*Message, error)
	Edit(ctx context.Context, id int64, senderID uuid.UUID, content string) (*Message, error)
	SoftDelete(ctx context.Context, id int64, senderID uuid.UUID) (bool, error)
	UpsertReceipt(ctx context.Context, messageID int64, userID uuid.UUID, kind string) error
	UpsertReaction(ctx context.Context, messageID int64, userID uuid.UUID, emoji string) error
	Search(ctx context.Context, callerID uuid.UUID, q SearchQuery) ([]*Message, error)
}

// MembershipChecker answers participant and policy questions the message
// layer cannot answer itself. The conversation layer owns that state.
type MembershipChecker interface {
	IsActiveParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error)
	ReadReceiptsEnabled(ctx context.Context, conversationID uuid.UUID) (bool, error)
}

type IDGenerator interface {
	Generate() int64
}

type Service struct {
	store      Store
	membership MembershipChecker
	ids        IDGenerator
	logger     *zap.Logger
}

func NewService(store Store, membership MembershipChecker, ids IDGenerator, logger *zap.Logger) *Service {
	return &Service{
		store:      store,
		membership: membership,
		ids:        ids,
		logger:     logger,
	}
}

type CreateInput struct {
	ConversationID uuid.UUID
	SenderID       uuid.UUID
	SenderName     string
	SenderRole     string
	Content        string
	ContentType    ContentType
	Attachments    []Attachment
	ReplyToID      *int64
	Priority       Priority
	ExpiresAt      *time.Time
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*Message, error) {
	active, err := s.membership.IsActiveParticipant(ctx, in.ConversationID, in.SenderID)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, apperrors.Forbidden("not a participant of this conversation")
	}

	if err := validateContent(in.Content, in.Attachments); err != nil {
		return nil, err
	}

	if in.ContentType == "" {
		in.ContentType = ContentText
	}
	if !validContentTypes[in.ContentType] {
		return nil, apperrors.BadRequest("unsupported content type")
	}

	if in.Priority == "" {
		in.Priority = PriorityNormal
	}
	if !validPriorities[in.Priority] {
		return nil, apperrors.BadRequest("unsupported priority")
	}

	if in.ReplyToID != nil {
		parent, err := s.store.GetByID(ctx, *in.ReplyToID)
		if err != nil {
			if apperrors.IsNotFound(err) {
				return nil, apperrors.BadRequest("replied-to message does not exist")
			}
			return nil, err
		}
		if parent.ConversationID != in.ConversationID {
			return nil, apperrors.BadRequest("replied-to message belongs to another conversation")
		}
	}

	m := &Message{
		ID:             s.ids.Generate(),
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		SenderName:     in.SenderName,
		SenderRole:     in.SenderRole,
		Content:        in.Content,
		ContentType:    in.ContentType,
		Attachments:    in.Attachments,
		ReplyToID:      in.ReplyToID,
		Priority:       in.Priority,
		ExpiresAt:      in.ExpiresAt,
		CreatedAt:      time.Now().UTC(),
	}

	if err := s.store.Create(ctx, m); err != nil {
		return nil, err
	}

	return m, nil
}

func (s *Service) Get(ctx context.Context, id int64, callerID uuid.UUID) (*Message, error) {
	m, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	active, err := s.membership.IsActiveParticipant(ctx, m.ConversationID, callerID)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, apperrors.Forbidden("not a participant of this conversation")
	}

	if m.Deleted {
		m.Tombstone()
	}

	return m, nil
}

// Edit replaces the content of the caller's own message. The edit marker is
// permanent once set.
func (s *Service) Edit(ctx context.Context, id int64, editorID uuid.UUID, content string) (*Message, error) {
	m, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if m.SenderID != editorID {
		return nil, apperrors.Forbidden("only the sender can edit a message")
	}
	if m.Deleted {
		return nil, apperrors.Conflict("message has been deleted")
	}

	if err := validateContent(content, m.Attachments); err != nil {
		return nil, err
	}

	return s.store.Edit(ctx, id, editorID, content)
}

// Delete tombstones the caller's own message. Deleting an already-deleted
// message succeeds without effect.
func (s *Service) Delete(ctx context.Context, id int64, requesterID uuid.UUID) error {
	m, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if m.SenderID != requesterID {
		return apperrors.Forbidden("only the sender can delete a message")
	}
	if m.Deleted {
		return nil
	}

	_, err = s.store.SoftDelete(ctx, id, requesterID)
	return err
}

func (s *Service) MarkRead(ctx context.Context, id int64, userID uuid.UUID) error {
	return s.mark(ctx, id, userID, ReceiptRead)
}

func (s *Service) MarkDelivered(ctx context.Context, id int64, userID uuid.UUID) error {
	return s.mark(ctx, id, userID, ReceiptDelivered)
}

func (s *Service) mark(ctx context.Context, id int64, userID uuid.UUID, kind string) error {
	m, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}

	active, err := s.membership.IsActiveParticipant(ctx, m.ConversationID, userID)
	if err != nil {
		return err
	}
	if !active {
		return apperrors.Forbidden("not a participant of this conversation")
	}

	// A disabled read-receipts setting suppresses the receipt row, not the
	// acknowledgment itself, so the call still succeeds.
	if kind == ReceiptRead {
		enabled, err := s.membership.ReadReceiptsEnabled(ctx, m.ConversationID)
		if err != nil {
			return err
		}
		if !enabled {
			return nil
		}
	}

	return s.store.UpsertReceipt(ctx, id, userID, kind)
}

// React sets the caller's reaction on a message, replacing any earlier one,
// and returns the refreshed message.
func (s *Service) React(ctx context.Context, id int64, userID uuid.UUID, emoji string) (*Message, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return nil, apperrors.BadRequest("emoji is required")
	}
	if utf8.RuneCountInString(emoji) > 16 {
		return nil, apperrors.BadRequest("emoji too long")
	}

	m, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.Deleted {
		return nil, apperrors.Conflict("cannot react to a deleted message")
	}

	active, err := s.membership.IsActiveParticipant(ctx, m.ConversationID, userID)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, apperrors.Forbidden("not a participant of this conversation")
	}

	if err := s.store.UpsertReaction(ctx, id, userID, emoji); err != nil {
		return nil, err
	}

	return s.store.GetByID(ctx, id)
}

func (s *Service) Search(ctx context.Context, callerID uuid.UUID, q SearchQuery) ([]*Message, error) {
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		return nil, apperrors.BadRequest("search query is required")
	}

	return s.store.Search(ctx, callerID, q)
}

func validateContent(content string, attachments []Attachment) error {
	if strings.TrimSpace(content) == "" && len(attachments) == 0 {
		return apperrors.BadRequest("message content is required")
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return apperrors.BadRequest("message content too long")
	}

	return nil
}
