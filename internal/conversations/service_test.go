package conversations

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/campuslink/portal/internal/common/errors"
	"github.com/campuslink/portal/internal/common/pagination"
	"github.com/campuslink/portal/internal/messages"
	"github.com/campuslink/portal/internal/notify"
	"github.com/campuslink/portal/internal/principal"
)

type fakeStore struct {
	convs          map[uuid.UUID]*Conversation
	parts          map[uuid.UUID]map[uuid.UUID]*Participant
	participantErr error
	reactivated    int
	resets         int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		convs: make(map[uuid.UUID]*Conversation),
		parts: make(map[uuid.UUID]map[uuid.UUID]*Participant),
	}
}

func (f *fakeStore) Create(_ context.Context, conv *Conversation, participants []Participant) error {
	cp := *conv
	f.convs[conv.ID] = &cp
	f.parts[conv.ID] = make(map[uuid.UUID]*Participant)
	for i := range participants {
		p := participants[i]
		p.IsActive = true
		f.parts[conv.ID][p.UserID] = &p
	}
	return nil
}

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*Conversation, error) {
	conv, ok := f.convs[id]
	if !ok {
		return nil, apperrors.NotFound("conversation not found")
	}
	cp := *conv
	cp.Participants = nil
	for _, p := range f.parts[id] {
		cp.Participants = append(cp.Participants, *p)
	}
	return &cp, nil
}

func (f *fakeStore) GetParticipant(_ context.Context, conversationID, userID uuid.UUID) (*Participant, error) {
	if f.participantErr != nil {
		return nil, f.participantErr
	}
	p, ok := f.parts[conversationID][userID]
	if !ok {
		return nil, apperrors.NotFound("participant not found")
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) AddParticipant(_ context.Context, conversationID uuid.UUID, p Participant) error {
	p.IsActive = true
	f.parts[conversationID][p.UserID] = &p
	return nil
}

func (f *fakeStore) Reactivate(_ context.Context, conversationID, userID uuid.UUID, role Role) error {
	p := f.parts[conversationID][userID]
	p.IsActive = true
	p.LeftAt = nil
	p.UnreadCount = 0
	p.Role = role
	f.reactivated++
	return nil
}

func (f *fakeStore) RemoveParticipant(_ context.Context, conversationID, userID uuid.UUID) (bool, error) {
	p, ok := f.parts[conversationID][userID]
	if !ok || !p.IsActive {
		return false, nil
	}
	now := time.Now()
	p.IsActive = false
	p.LeftAt = &now
	return true, nil
}

func (f *fakeStore) RecordMessage(_ context.Context, conversationID, senderID uuid.UUID, messageID int64, preview string, at time.Time) (int64, error) {
	conv := f.convs[conversationID]
	conv.LastMessage = &LastMessage{ID: messageID, Preview: preview, SenderID: senderID, At: at}

	var n int64
	for _, p := range f.parts[conversationID] {
		if p.UserID != senderID && p.IsActive {
			p.UnreadCount++
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) ResetUnread(_ context.Context, conversationID, userID uuid.UUID) error {
	if p, ok := f.parts[conversationID][userID]; ok {
		p.UnreadCount = 0
	}
	f.resets++
	return nil
}

func (f *fakeStore) SetArchived(_ context.Context, conversationID uuid.UUID, archived bool) error {
	conv, ok := f.convs[conversationID]
	if !ok {
		return apperrors.NotFound("conversation not found")
	}
	conv.IsArchived = archived
	return nil
}

func (f *fakeStore) ActiveParticipantIDs(_ context.Context, conversationID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, p := range f.parts[conversationID] {
		if p.IsActive {
			ids = append(ids, p.UserID)
		}
	}
	return ids, nil
}

func (f *fakeStore) ListForUser(_ context.Context, userID uuid.UUID, filter ListFilter, _ pagination.Page) ([]*Conversation, int, error) {
	var out []*Conversation
	for id, conv := range f.convs {
		p, ok := f.parts[id][userID]
		if !ok || !p.IsActive {
			continue
		}
		if filter.Type != nil && conv.Type != *filter.Type {
			continue
		}
		if filter.Active != nil && conv.IsActive != *filter.Active {
			continue
		}
		if filter.Archived != nil && conv.IsArchived != *filter.Archived {
			continue
		}
		if filter.HasUnread && p.UnreadCount == 0 {
			continue
		}
		cp := *conv
		cp.UnreadCount = p.UnreadCount
		out = append(out, &cp)
	}
	return out, len(out), nil
}

type fakeWriter struct{ next int64 }

func (f *fakeWriter) Create(_ context.Context, in messages.CreateInput) (*messages.Message, error) {
	f.next++
	priority := in.Priority
	if priority == "" {
		priority = messages.PriorityNormal
	}
	return &messages.Message{
		ID:             f.next,
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		SenderName:     in.SenderName,
		SenderRole:     in.SenderRole,
		Content:        in.Content,
		ContentType:    in.ContentType,
		Attachments:    in.Attachments,
		Priority:       priority,
		ExpiresAt:      in.ExpiresAt,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

type fakePager struct {
	msgs      []*messages.Message
	delivered int
}

func (f *fakePager) ListByConversation(_ context.Context, _ uuid.UUID, _ pagination.Page) ([]*messages.Message, int, error) {
	return f.msgs, len(f.msgs), nil
}

func (f *fakePager) MarkConversationDelivered(_ context.Context, _, _ uuid.UUID) error {
	f.delivered++
	return nil
}

type captureDispatcher struct {
	sent []notify.Notification
}

func (d *captureDispatcher) Notify(n notify.Notification) {
	d.sent = append(d.sent, n)
}

type fixture struct {
	svc        *Service
	store      *fakeStore
	pager      *fakePager
	dispatcher *captureDispatcher

	teacher principal.Principal
	student principal.Principal
	parent  principal.Principal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	teacher := principal.Principal{ID: uuid.NewString(), Name: "Dana Reeves", Role: "teacher"}
	student := principal.Principal{ID: uuid.NewString(), Name: "Sam Ortiz", Role: "student"}
	parent := principal.Principal{ID: uuid.NewString(), Name: "Kim Ortiz", Role: "parent"}

	store := newFakeStore()
	pager := &fakePager{}
	dispatcher := &captureDispatcher{}
	directory := principal.NewStaticDirectory(teacher, student, parent)

	svc := NewService(store, &fakeWriter{}, pager, directory, dispatcher, nil, zap.NewNop())

	return &fixture{
		svc:        svc,
		store:      store,
		pager:      pager,
		dispatcher: dispatcher,
		teacher:    teacher,
		student:    student,
		parent:     parent,
	}
}

func mustUUID(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	require.NoError(t, err)
	return id
}

func (fx *fixture) createGroup(t *testing.T) *Conversation {
	t.Helper()

	conv, err := fx.svc.CreateConversation(context.Background(), fx.teacher, CreateConversationInput{
		Type:           TypeGroup,
		Title:          "Math 7B",
		ParticipantIDs: []uuid.UUID{mustUUID(t, fx.student.ID), mustUUID(t, fx.parent.ID)},
	})
	require.NoError(t, err)
	return conv
}

func TestCreateConversation(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	t.Run("creator becomes owner", func(t *testing.T) {
		conv := fx.createGroup(t)
		p, err := fx.store.GetParticipant(ctx, conv.ID, mustUUID(t, fx.teacher.ID))
		require.NoError(t, err)
		assert.Equal(t, RoleOwner, p.Role)
		assert.Len(t, conv.Participants, 3)
	})

	t.Run("direct requires exactly two participants", func(t *testing.T) {
		_, err := fx.svc.CreateConversation(ctx, fx.teacher, CreateConversationInput{
			Type:           TypeDirect,
			ParticipantIDs: []uuid.UUID{mustUUID(t, fx.student.ID), mustUUID(t, fx.parent.ID)},
		})
		assert.Equal(t, 400, apperrors.HTTPStatus(err))
	})

	t.Run("group requires a title", func(t *testing.T) {
		_, err := fx.svc.CreateConversation(ctx, fx.teacher, CreateConversationInput{
			Type:           TypeGroup,
			ParticipantIDs: []uuid.UUID{mustUUID(t, fx.student.ID)},
		})
		assert.Equal(t, 400, apperrors.HTTPStatus(err))
	})

	t.Run("unknown participant rejected", func(t *testing.T) {
		_, err := fx.svc.CreateConversation(ctx, fx.teacher, CreateConversationInput{
			Type:           TypeGroup,
			Title:          "Ghost chat",
			ParticipantIDs: []uuid.UUID{uuid.New()},
		})
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("duplicate participant ids are collapsed", func(t *testing.T) {
		sid := mustUUID(t, fx.student.ID)
		conv, err := fx.svc.CreateConversation(ctx, fx.teacher, CreateConversationInput{
			Type:           TypeGroup,
			Title:          "Dedup",
			ParticipantIDs: []uuid.UUID{sid, sid},
		})
		require.NoError(t, err)
		assert.Len(t, conv.Participants, 2)
	})
}

func TestSendMessage(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	conv := fx.createGroup(t)
	studentID := mustUUID(t, fx.student.ID)
	parentID := mustUUID(t, fx.parent.ID)

	t.Run("increments unread for other active participants only", func(t *testing.T) {
		// The parent has left; only the student should be counted and
		// notified.
		_, err := fx.store.RemoveParticipant(ctx, conv.ID, parentID)
		require.NoError(t, err)

		msg, err := fx.svc.SendMessage(ctx, fx.teacher, SendInput{
			ConversationID: conv.ID,
			Content:        "Homework is due Friday",
		})
		require.NoError(t, err)
		require.NotNil(t, msg)

		student, _ := fx.store.GetParticipant(ctx, conv.ID, studentID)
		parent, _ := fx.store.GetParticipant(ctx, conv.ID, parentID)
		sender, _ := fx.store.GetParticipant(ctx, conv.ID, mustUUID(t, fx.teacher.ID))
		assert.Equal(t, 1, student.UnreadCount)
		assert.Equal(t, 0, parent.UnreadCount)
		assert.Equal(t, 0, sender.UnreadCount)

		require.Len(t, fx.dispatcher.sent, 1)
		assert.Equal(t, fx.student.ID, fx.dispatcher.sent[0].UserID)
		assert.Equal(t, "message", fx.dispatcher.sent[0].Category)

		updated, _ := fx.store.GetByID(ctx, conv.ID)
		require.NotNil(t, updated.LastMessage)
		assert.Equal(t, msg.ID, updated.LastMessage.ID)
		assert.Equal(t, "Homework is due Friday", updated.LastMessage.Preview)
	})

	t.Run("non-participant cannot send", func(t *testing.T) {
		outsider := principal.Principal{ID: uuid.NewString(), Name: "Out Sider", Role: "student"}
		_, err := fx.svc.SendMessage(ctx, outsider, SendInput{
			ConversationID: conv.ID,
			Content:        "let me in",
		})
		assert.Equal(t, 403, apperrors.HTTPStatus(err))
	})

	t.Run("archived conversation rejects sends", func(t *testing.T) {
		require.NoError(t, fx.store.SetArchived(ctx, conv.ID, true))
		_, err := fx.svc.SendMessage(ctx, fx.teacher, SendInput{
			ConversationID: conv.ID,
			Content:        "too late",
		})
		assert.Equal(t, 409, apperrors.HTTPStatus(err))
		require.NoError(t, fx.store.SetArchived(ctx, conv.ID, false))
	})
}

func TestSendMessagePolicies(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	t.Run("announcement posts are staff only", func(t *testing.T) {
		conv, err := fx.svc.CreateConversation(ctx, fx.teacher, CreateConversationInput{
			Type:           TypeAnnouncement,
			Title:          "School news",
			ParticipantIDs: []uuid.UUID{mustUUID(t, fx.student.ID)},
		})
		require.NoError(t, err)

		_, err = fx.svc.SendMessage(ctx, fx.student, SendInput{
			ConversationID: conv.ID,
			Content:        "can I post here?",
		})
		assert.Equal(t, 403, apperrors.HTTPStatus(err))

		_, err = fx.svc.SendMessage(ctx, fx.teacher, SendInput{
			ConversationID: conv.ID,
			Content:        "Assembly at noon",
		})
		assert.NoError(t, err)
	})

	t.Run("readonly participants cannot post", func(t *testing.T) {
		conv, err := fx.svc.CreateConversation(ctx, fx.teacher, CreateConversationInput{
			Type:           TypeGroup,
			Title:          "Observers welcome",
			ParticipantIDs: []uuid.UUID{mustUUID(t, fx.student.ID)},
		})
		require.NoError(t, err)

		studentID := mustUUID(t, fx.student.ID)
		p := fx.store.parts[conv.ID][studentID]
		p.Role = RoleReadonly

		_, err = fx.svc.SendMessage(ctx, fx.student, SendInput{
			ConversationID: conv.ID,
			Content:        "just watching",
		})
		assert.Equal(t, 403, apperrors.HTTPStatus(err))
	})

	t.Run("file sharing gate", func(t *testing.T) {
		settings := DefaultSettings()
		settings.AllowFileSharing = false

		conv, err := fx.svc.CreateConversation(ctx, fx.teacher, CreateConversationInput{
			Type:           TypeGroup,
			Title:          "No files",
			ParticipantIDs: []uuid.UUID{mustUUID(t, fx.student.ID)},
			Settings:       &settings,
		})
		require.NoError(t, err)

		_, err = fx.svc.SendMessage(ctx, fx.teacher, SendInput{
			ConversationID: conv.ID,
			ContentType:    messages.ContentFile,
			Attachments:    []messages.Attachment{{Filename: "a.pdf", Size: 100}},
		})
		assert.Equal(t, 400, apperrors.HTTPStatus(err))
	})

	t.Run("attachment size gate", func(t *testing.T) {
		settings := DefaultSettings()
		settings.MaxAttachmentSize = 1024

		conv, err := fx.svc.CreateConversation(ctx, fx.teacher, CreateConversationInput{
			Type:           TypeGroup,
			Title:          "Small files",
			ParticipantIDs: []uuid.UUID{mustUUID(t, fx.student.ID)},
			Settings:       &settings,
		})
		require.NoError(t, err)

		_, err = fx.svc.SendMessage(ctx, fx.teacher, SendInput{
			ConversationID: conv.ID,
			ContentType:    messages.ContentFile,
			Attachments:    []messages.Attachment{{Filename: "big.bin", Size: 4096}},
		})
		assert.Equal(t, 400, apperrors.HTTPStatus(err))
	})

	t.Run("retention sets message expiry", func(t *testing.T) {
		settings := DefaultSettings()
		settings.RetentionDays = 30

		conv, err := fx.svc.CreateConversation(ctx, fx.teacher, CreateConversationInput{
			Type:           TypeGroup,
			Title:          "Ephemeral",
			ParticipantIDs: []uuid.UUID{mustUUID(t, fx.student.ID)},
			Settings:       &settings,
		})
		require.NoError(t, err)

		msg, err := fx.svc.SendMessage(ctx, fx.teacher, SendInput{
			ConversationID: conv.ID,
			Content:        "this fades",
		})
		require.NoError(t, err)
		require.NotNil(t, msg.ExpiresAt)
		assert.WithinDuration(t, time.Now().AddDate(0, 0, 30), *msg.ExpiresAt, time.Minute)
	})
}

func TestParticipantLifecycle(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	conv := fx.createGroup(t)
	studentID := mustUUID(t, fx.student.ID)

	t.Run("adding an active participant conflicts", func(t *testing.T) {
		err := fx.svc.AddParticipant(ctx, conv.ID, fx.teacher, studentID, RoleMember)
		assert.True(t, apperrors.IsConflict(err))
	})

	t.Run("leave then rejoin reactivates the original row", func(t *testing.T) {
		require.NoError(t, fx.svc.RemoveParticipant(ctx, conv.ID, fx.student, studentID))

		p, err := fx.store.GetParticipant(ctx, conv.ID, studentID)
		require.NoError(t, err)
		assert.False(t, p.IsActive)
		assert.NotNil(t, p.LeftAt)

		require.NoError(t, fx.svc.AddParticipant(ctx, conv.ID, fx.teacher, studentID, ""))
		assert.Equal(t, 1, fx.store.reactivated)

		p, err = fx.store.GetParticipant(ctx, conv.ID, studentID)
		require.NoError(t, err)
		assert.True(t, p.IsActive)
		assert.Nil(t, p.LeftAt)
		assert.Equal(t, RoleMember, p.Role)
	})

	t.Run("rejoining under a new role applies it", func(t *testing.T) {
		require.NoError(t, fx.svc.RemoveParticipant(ctx, conv.ID, fx.student, studentID))
		require.NoError(t, fx.svc.AddParticipant(ctx, conv.ID, fx.teacher, studentID, RoleModerator))

		p, err := fx.store.GetParticipant(ctx, conv.ID, studentID)
		require.NoError(t, err)
		assert.Equal(t, RoleModerator, p.Role)

		require.NoError(t, fx.svc.RemoveParticipant(ctx, conv.ID, fx.teacher, studentID))
		require.NoError(t, fx.svc.AddParticipant(ctx, conv.ID, fx.teacher, studentID, RoleMember))
	})

	t.Run("members cannot remove others", func(t *testing.T) {
		err := fx.svc.RemoveParticipant(ctx, conv.ID, fx.student, mustUUID(t, fx.parent.ID))
		assert.Equal(t, 403, apperrors.HTTPStatus(err))
	})

	t.Run("removing an absent participant is a no-op", func(t *testing.T) {
		require.NoError(t, fx.svc.RemoveParticipant(ctx, conv.ID, fx.teacher, mustUUID(t, fx.parent.ID)))
		require.NoError(t, fx.svc.RemoveParticipant(ctx, conv.ID, fx.teacher, mustUUID(t, fx.parent.ID)))
	})

	t.Run("direct conversations reject additions", func(t *testing.T) {
		direct, err := fx.svc.CreateConversation(ctx, fx.teacher, CreateConversationInput{
			Type:           TypeDirect,
			ParticipantIDs: []uuid.UUID{studentID},
		})
		require.NoError(t, err)

		err = fx.svc.AddParticipant(ctx, direct.ID, fx.teacher, mustUUID(t, fx.parent.ID), RoleMember)
		assert.True(t, apperrors.IsConflict(err))
	})
}

func TestMarkReadAndHistory(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	conv := fx.createGroup(t)
	studentID := mustUUID(t, fx.student.ID)

	_, err := fx.svc.SendMessage(ctx, fx.teacher, SendInput{
		ConversationID: conv.ID,
		Content:        "unread material",
	})
	require.NoError(t, err)

	t.Run("mark read zeroes the counter and is idempotent", func(t *testing.T) {
		p, _ := fx.store.GetParticipant(ctx, conv.ID, studentID)
		require.Equal(t, 1, p.UnreadCount)

		require.NoError(t, fx.svc.MarkRead(ctx, conv.ID, fx.student))
		require.NoError(t, fx.svc.MarkRead(ctx, conv.ID, fx.student))

		p, _ = fx.store.GetParticipant(ctx, conv.ID, studentID)
		assert.Equal(t, 0, p.UnreadCount)
	})

	t.Run("history tombstones deleted messages and marks delivery", func(t *testing.T) {
		fx.pager.msgs = []*messages.Message{
			{ID: 1, Content: "live"},
			{ID: 2, Content: "gone", Deleted: true},
		}

		msgs, total, err := fx.svc.History(ctx, conv.ID, fx.student, pagination.Parse(1, 50))
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Equal(t, "live", msgs[0].Content)
		assert.Empty(t, msgs[1].Content)
		assert.True(t, msgs[1].Deleted)
		assert.Equal(t, 1, fx.pager.delivered)
	})

	t.Run("history requires membership", func(t *testing.T) {
		outsider := principal.Principal{ID: uuid.NewString(), Name: "Out Sider", Role: "student"}
		_, _, err := fx.svc.History(ctx, conv.ID, outsider, pagination.Parse(1, 50))
		assert.Equal(t, 403, apperrors.HTTPStatus(err))
	})
}

func TestStorageFailuresKeepTheirStatus(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	conv := fx.createGroup(t)
	fx.store.participantErr = apperrors.Internal("participant lookup failed", errors.New("db connection lost"))

	err := fx.svc.MarkRead(ctx, conv.ID, fx.teacher)
	assert.Equal(t, 500, apperrors.HTTPStatus(err))

	_, err = fx.svc.SendMessage(ctx, fx.teacher, SendInput{
		ConversationID: conv.ID,
		Content:        "hello",
	})
	assert.Equal(t, 500, apperrors.HTTPStatus(err))

	_, _, err = fx.svc.History(ctx, conv.ID, fx.teacher, pagination.Parse(1, 50))
	assert.Equal(t, 500, apperrors.HTTPStatus(err))

	err = fx.svc.SetArchived(ctx, conv.ID, fx.teacher, true)
	assert.Equal(t, 500, apperrors.HTTPStatus(err))
}

func TestArchiveAndList(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	conv := fx.createGroup(t)

	t.Run("only owners and admins archive", func(t *testing.T) {
		err := fx.svc.SetArchived(ctx, conv.ID, fx.student, true)
		assert.Equal(t, 403, apperrors.HTTPStatus(err))

		require.NoError(t, fx.svc.SetArchived(ctx, conv.ID, fx.teacher, true))
	})

	t.Run("archived filter", func(t *testing.T) {
		archived := true
		convs, total, err := fx.svc.List(ctx, fx.teacher, ListFilter{Archived: &archived}, pagination.Parse(1, 50))
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, convs, 1)
		assert.True(t, convs[0].IsArchived)
	})

	t.Run("unread filter", func(t *testing.T) {
		convs, _, err := fx.svc.List(ctx, fx.student, ListFilter{HasUnread: true}, pagination.Parse(1, 50))
		require.NoError(t, err)
		assert.Empty(t, convs)
	})
}

func TestBuildPreview(t *testing.T) {
	long := make([]rune, 200)
	for i := range long {
		long[i] = 'x'
	}

	tests := []struct {
		name string
		msg  *messages.Message
		want int
	}{
		{"short content", &messages.Message{Content: "hello"}, 5},
		{"long content truncated", &messages.Message{Content: string(long)}, previewLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, []rune(buildPreview(tt.msg)), tt.want)
		})
	}

	assert.Equal(t, "[attachment]", buildPreview(&messages.Message{
		Attachments: []messages.Attachment{{Filename: "a.png"}},
	}))
}
