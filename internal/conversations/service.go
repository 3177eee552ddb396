package conversations

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/campuslink/portal/internal/common/errors"
	"github.com/campuslink/portal/internal/common/pagination"
	"github.com/campuslink/portal/internal/messages"
	"github.com/campuslink/portal/internal/notify"
	"github.com/campuslink/portal/internal/observability"
	"github.com/campuslink/portal/internal/principal"
)

const previewLength = 120

type Store interface {
	Create(ctx context.Context, conv *Conversation, participants []Participant) error
	GetByID(ctx context.Context, id uuid.UUID) (*Conversation, error)
	GetParticipant(ctx context.Context, conversationID, userID uuid.UUID) (*Participant, error)
	AddParticipant(ctx context.Context, conversationID uuid.UUID, p Participant) error
	Reactivate(ctx context.Context, conversationID, userID uuid.UUID, role Role) error
	RemoveParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error)
	RecordMessage(ctx context.Context, conversationID, senderID uuid.UUID, messageID int64, preview string, at time.Time) (int64, error)
	ResetUnread(ctx context.Context, conversationID, userID uuid.UUID) error
	SetArchived(ctx context.Context, conversationID uuid.UUID, archived bool) error
	ActiveParticipantIDs(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error)
	ListForUser(ctx context.Context, userID uuid.UUID, filter ListFilter, page pagination.Page) ([]*Conversation, int, error)
}

// MessageWriter persists the message itself; the conversation layer owns the
// surrounding side effects.
type MessageWriter interface {
	Create(ctx context.Context, in messages.CreateInput) (*messages.Message, error)
}

// MessagePager reads history pages and stamps delivery receipts.
type MessagePager interface {
	ListByConversation(ctx context.Context, conversationID uuid.UUID, page pagination.Page) ([]*messages.Message, int, error)
	MarkConversationDelivered(ctx context.Context, conversationID, userID uuid.UUID) error
}

type Service struct {
	store      Store
	msgs       MessageWriter
	pager      MessagePager
	directory  principal.Directory
	dispatcher notify.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
}

func NewService(store Store, msgs MessageWriter, pager MessagePager, directory principal.Directory, dispatcher notify.Dispatcher, metrics *observability.Metrics, logger *zap.Logger) *Service {
	return &Service{
		store:      store,
		msgs:       msgs,
		pager:      pager,
		directory:  directory,
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger,
	}
}

type CreateConversationInput struct {
	Type           Type
	Title          string
	Description    string
	ParticipantIDs []uuid.UUID
	AdminIDs       []uuid.UUID
	ModeratorIDs   []uuid.UUID
	Settings       *Settings
}

func (s *Service) CreateConversation(ctx context.Context, creator principal.Principal, in CreateConversationInput) (*Conversation, error) {
	creatorID, err := parsePrincipalID(creator)
	if err != nil {
		return nil, err
	}

	if in.Type == "" {
		in.Type = TypeDirect
	}
	if !validTypes[in.Type] {
		return nil, apperrors.BadRequest("unsupported conversation type")
	}
	if in.Type != TypeDirect && strings.TrimSpace(in.Title) == "" {
		return nil, apperrors.BadRequest("title is required")
	}

	now := time.Now().UTC()

	participants := []Participant{{
		UserID:      creatorID,
		DisplayName: creator.Name,
		Role:        RoleOwner,
		JoinedAt:    now,
	}}

	roles := make(map[uuid.UUID]Role, len(in.AdminIDs)+len(in.ModeratorIDs))
	for _, id := range in.ModeratorIDs {
		roles[id] = RoleModerator
	}
	for _, id := range in.AdminIDs {
		roles[id] = RoleAdmin
	}

	seen := map[uuid.UUID]bool{creatorID: true}
	for _, id := range in.ParticipantIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		member, err := s.directory.Resolve(ctx, id.String())
		if err != nil {
			return nil, err
		}

		role := roles[id]
		if role == "" {
			role = RoleMember
		}

		participants = append(participants, Participant{
			UserID:      id,
			DisplayName: member.Name,
			Role:        role,
			JoinedAt:    now,
		})
	}

	if in.Type == TypeDirect && len(participants) != 2 {
		return nil, apperrors.BadRequest("a direct conversation has exactly two participants")
	}
	if len(participants) < 2 {
		return nil, apperrors.BadRequest("at least one other participant is required")
	}

	settings := DefaultSettings()
	if in.Settings != nil {
		settings = *in.Settings
	}

	conv := &Conversation{
		ID:          uuid.New(),
		Type:        in.Type,
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		CreatedBy:   creatorID,
		Settings:    settings,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.Create(ctx, conv, participants); err != nil {
		return nil, err
	}

	conv.Participants = participants
	return conv, nil
}

func (s *Service) Get(ctx context.Context, conversationID uuid.UUID, caller principal.Principal) (*Conversation, error) {
	callerID, err := parsePrincipalID(caller)
	if err != nil {
		return nil, err
	}

	conv, err := s.store.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	var member *Participant
	for i := range conv.Participants {
		if conv.Participants[i].UserID == callerID {
			member = &conv.Participants[i]
			break
		}
	}
	if member == nil || !member.IsActive {
		return nil, apperrors.Forbidden("not a participant of this conversation")
	}

	conv.UnreadCount = member.UnreadCount
	return conv, nil
}

type SendInput struct {
	ConversationID uuid.UUID
	Content        string
	ContentType    messages.ContentType
	Attachments    []messages.Attachment
	ReplyToID      *int64
	Priority       messages.Priority
}

// SendMessage is the write path: authorize against the participant row,
// persist the message, then apply the pointer update and unread increments in
// one transaction. Notification fan-out is best-effort and never fails the
// send.
func (s *Service) SendMessage(ctx context.Context, sender principal.Principal, in SendInput) (*messages.Message, error) {
	senderID, err := parsePrincipalID(sender)
	if err != nil {
		return nil, err
	}

	conv, err := s.store.GetByID(ctx, in.ConversationID)
	if err != nil {
		return nil, err
	}
	if !conv.IsActive {
		return nil, apperrors.Conflict("conversation is closed")
	}
	if conv.IsArchived {
		return nil, apperrors.Conflict("conversation is archived")
	}

	member, err := s.activeParticipant(ctx, in.ConversationID, senderID)
	if err != nil {
		return nil, err
	}

	if member.Role == RoleReadonly {
		return nil, apperrors.Forbidden("read-only participants cannot post")
	}
	if (conv.Type == TypeAnnouncement || conv.Type == TypeBroadcast) && member.Role == RoleMember {
		return nil, apperrors.Forbidden("only staff can post here")
	}

	if len(in.Attachments) > 0 {
		if !conv.Settings.AllowFileSharing {
			return nil, apperrors.BadRequest("file sharing is disabled in this conversation")
		}
		for _, a := range in.Attachments {
			if conv.Settings.MaxAttachmentSize > 0 && a.Size > conv.Settings.MaxAttachmentSize {
				return nil, apperrors.BadRequest(fmt.Sprintf("attachment %q exceeds the size limit", a.Filename))
			}
		}
	}

	var expiresAt *time.Time
	if conv.Settings.RetentionDays > 0 {
		t := time.Now().UTC().AddDate(0, 0, conv.Settings.RetentionDays)
		expiresAt = &t
	}

	msg, err := s.msgs.Create(ctx, messages.CreateInput{
		ConversationID: in.ConversationID,
		SenderID:       senderID,
		SenderName:     sender.Name,
		SenderRole:     sender.Role,
		Content:        in.Content,
		ContentType:    in.ContentType,
		Attachments:    in.Attachments,
		ReplyToID:      in.ReplyToID,
		Priority:       in.Priority,
		ExpiresAt:      expiresAt,
	})
	if err != nil {
		return nil, err
	}

	preview := buildPreview(msg)
	increments, err := s.store.RecordMessage(ctx, in.ConversationID, senderID, msg.ID, preview, msg.CreatedAt)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordUnreadIncrements(increments)
	}

	s.fanOut(ctx, conv, msg, senderID, preview)

	return msg, nil
}

func (s *Service) fanOut(ctx context.Context, conv *Conversation, msg *messages.Message, senderID uuid.UUID, preview string) {
	ids, err := s.store.ActiveParticipantIDs(ctx, conv.ID)
	if err != nil {
		s.logger.Warn("notification fan-out skipped",
			zap.String("conversation_id", conv.ID.String()),
			zap.Error(err),
		)
		return
	}

	title := "New message from " + msg.SenderName
	if conv.Title != "" {
		title = conv.Title + ": " + msg.SenderName
	}

	for _, id := range ids {
		if id == senderID {
			continue
		}
		s.dispatcher.Notify(notify.Notification{
			UserID:    id.String(),
			Title:     title,
			Message:   preview,
			Category:  "message",
			Priority:  string(msg.Priority),
			ActionURL: "/conversations/" + conv.ID.String(),
		})
	}
}

// History pages the conversation newest-first. Fetching history stamps
// delivery receipts and zeroes the caller's unread counter; failures there
// are logged but never fail the read.
func (s *Service) History(ctx context.Context, conversationID uuid.UUID, caller principal.Principal, page pagination.Page) ([]*messages.Message, int, error) {
	callerID, err := parsePrincipalID(caller)
	if err != nil {
		return nil, 0, err
	}

	if _, err := s.activeParticipant(ctx, conversationID, callerID); err != nil {
		return nil, 0, err
	}

	msgs, total, err := s.pager.ListByConversation(ctx, conversationID, page)
	if err != nil {
		return nil, 0, err
	}

	for _, m := range msgs {
		if m.Deleted {
			m.Tombstone()
		}
	}

	if err := s.pager.MarkConversationDelivered(ctx, conversationID, callerID); err != nil {
		s.logger.Warn("mark delivered failed",
			zap.String("conversation_id", conversationID.String()),
			zap.Error(err),
		)
	}
	if err := s.store.ResetUnread(ctx, conversationID, callerID); err != nil {
		s.logger.Warn("unread reset failed",
			zap.String("conversation_id", conversationID.String()),
			zap.Error(err),
		)
	}

	return msgs, total, nil
}

// AddParticipant adds a new member or reactivates one who left, applying the
// requested role either way. Adding an already-active participant is a
// conflict, never a duplicate row.
func (s *Service) AddParticipant(ctx context.Context, conversationID uuid.UUID, caller principal.Principal, userID uuid.UUID, role Role) error {
	callerID, err := parsePrincipalID(caller)
	if err != nil {
		return err
	}

	if role == "" {
		role = RoleMember
	}
	if !validRoles[role] {
		return apperrors.BadRequest("invalid participant role")
	}

	conv, err := s.store.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv.Type == TypeDirect {
		return apperrors.Conflict("cannot add participants to a direct conversation")
	}

	if _, err := s.activeParticipant(ctx, conversationID, callerID); err != nil {
		return err
	}

	existing, err := s.store.GetParticipant(ctx, conversationID, userID)
	if err == nil {
		if existing.IsActive {
			return apperrors.Conflict("user is already a participant")
		}
		return s.store.Reactivate(ctx, conversationID, userID, role)
	}
	if !apperrors.IsNotFound(err) {
		return err
	}

	resolved, err := s.directory.Resolve(ctx, userID.String())
	if err != nil {
		return err
	}

	return s.store.AddParticipant(ctx, conversationID, Participant{
		UserID:      userID,
		DisplayName: resolved.Name,
		Role:        role,
	})
}

// RemoveParticipant deactivates a membership. Participants can remove
// themselves; removing others requires an owner or admin role. Removing
// someone already gone succeeds without effect.
func (s *Service) RemoveParticipant(ctx context.Context, conversationID uuid.UUID, caller principal.Principal, userID uuid.UUID) error {
	callerID, err := parsePrincipalID(caller)
	if err != nil {
		return err
	}

	member, err := s.activeParticipant(ctx, conversationID, callerID)
	if err != nil {
		return err
	}

	if callerID != userID && member.Role != RoleOwner && member.Role != RoleAdmin && member.Role != RoleModerator {
		return apperrors.Forbidden("removing others requires a moderation role")
	}

	_, err = s.store.RemoveParticipant(ctx, conversationID, userID)
	return err
}

// MarkRead zeroes the caller's unread counter for the conversation.
func (s *Service) MarkRead(ctx context.Context, conversationID uuid.UUID, caller principal.Principal) error {
	callerID, err := parsePrincipalID(caller)
	if err != nil {
		return err
	}

	if _, err := s.activeParticipant(ctx, conversationID, callerID); err != nil {
		return err
	}

	return s.store.ResetUnread(ctx, conversationID, callerID)
}

func (s *Service) SetArchived(ctx context.Context, conversationID uuid.UUID, caller principal.Principal, archived bool) error {
	callerID, err := parsePrincipalID(caller)
	if err != nil {
		return err
	}

	member, err := s.activeParticipant(ctx, conversationID, callerID)
	if err != nil {
		return err
	}
	if member.Role != RoleOwner && member.Role != RoleAdmin {
		return apperrors.Forbidden("only owners and admins can archive a conversation")
	}

	return s.store.SetArchived(ctx, conversationID, archived)
}

func (s *Service) List(ctx context.Context, caller principal.Principal, filter ListFilter, page pagination.Page) ([]*Conversation, int, error) {
	callerID, err := parsePrincipalID(caller)
	if err != nil {
		return nil, 0, err
	}

	return s.store.ListForUser(ctx, callerID, filter, page)
}

func buildPreview(m *messages.Message) string {
	content := strings.TrimSpace(m.Content)
	if content == "" && len(m.Attachments) > 0 {
		return "[attachment]"
	}

	runes := []rune(content)
	if len(runes) > previewLength {
		return string(runes[:previewLength])
	}
	return content
}

// activeParticipant authorizes a caller against the membership row. A missing
// or deactivated row is a Forbidden; storage failures propagate unchanged.
func (s *Service) activeParticipant(ctx context.Context, conversationID, userID uuid.UUID) (*Participant, error) {
	member, err := s.store.GetParticipant(ctx, conversationID, userID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.Forbidden("not a participant of this conversation")
		}
		return nil, err
	}
	if !member.IsActive {
		return nil, apperrors.Forbidden("not a participant of this conversation")
	}
	return member, nil
}

func parsePrincipalID(p principal.Principal) (uuid.UUID, error) {
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return uuid.Nil, apperrors.Unauthorized("invalid principal id")
	}
	return id, nil
}
