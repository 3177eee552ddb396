package messages

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/campuslink/portal/internal/common/errors"
)

type fakeStore struct {
	msgs      map[int64]*Message
	receipts  map[string]bool
	reactions map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		msgs:      make(map[int64]*Message),
		receipts:  make(map[string]bool),
		reactions: make(map[string]string),
	}
}

func receiptKey(id int64, userID uuid.UUID, kind string) string {
	return fmt.Sprintf("%d/%s/%s", id, userID, kind)
}

func (f *fakeStore) Create(_ context.Context, m *Message) error {
	cp := *m
	f.msgs[m.ID] = &cp
	return nil
}

func (f *fakeStore) GetByID(_ context.Context, id int64) (*Message, error) {
	m, ok := f.msgs[id]
	if !ok {
		return nil, apperrors.NotFound("message not found")
	}
	cp := *m
	return &cp, nil
}

func (f *fakeStore) Edit(_ context.Context, id int64, senderID uuid.UUID, content string) (*Message, error) {
	m, ok := f.msgs[id]
	if !ok || m.SenderID != senderID || m.Deleted {
		return nil, apperrors.Conflict("message can no longer be edited")
	}
	m.Content = content
	m.Edited = true
	cp := *m
	return &cp, nil
}

func (f *fakeStore) SoftDelete(_ context.Context, id int64, senderID uuid.UUID) (bool, error) {
	m, ok := f.msgs[id]
	if !ok || m.SenderID != senderID || m.Deleted {
		return false, nil
	}
	m.Deleted = true
	return true, nil
}

func (f *fakeStore) UpsertReceipt(_ context.Context, id int64, userID uuid.UUID, kind string) error {
	f.receipts[receiptKey(id, userID, kind)] = true
	return nil
}

func (f *fakeStore) UpsertReaction(_ context.Context, id int64, userID uuid.UUID, emoji string) error {
	f.reactions[receiptKey(id, userID, "reaction")] = emoji
	return nil
}

func (f *fakeStore) Search(_ context.Context, _ uuid.UUID, q SearchQuery) ([]*Message, error) {
	var out []*Message
	for _, m := range f.msgs {
		if !m.Deleted {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeMembership struct {
	members  map[string]bool
	receipts bool
}

func memberKey(conversationID, userID uuid.UUID) string {
	return conversationID.String() + "/" + userID.String()
}

func (f *fakeMembership) IsActiveParticipant(_ context.Context, conversationID, userID uuid.UUID) (bool, error) {
	return f.members[memberKey(conversationID, userID)], nil
}

func (f *fakeMembership) ReadReceiptsEnabled(_ context.Context, _ uuid.UUID) (bool, error) {
	return f.receipts, nil
}

type seqIDs struct{ next int64 }

func (s *seqIDs) Generate() int64 {
	s.next++
	return s.next
}

func newTestService(t *testing.T) (*Service, *fakeStore, *fakeMembership, uuid.UUID, uuid.UUID) {
	t.Helper()

	store := newFakeStore()
	conv := uuid.New()
	sender := uuid.New()
	membership := &fakeMembership{
		members:  map[string]bool{memberKey(conv, sender): true},
		receipts: true,
	}
	svc := NewService(store, membership, &seqIDs{}, zap.NewNop())

	return svc, store, membership, conv, sender
}

func TestCreateMessage(t *testing.T) {
	svc, store, membership, conv, sender := newTestService(t)
	ctx := context.Background()

	t.Run("persists with defaults", func(t *testing.T) {
		msg, err := svc.Create(ctx, CreateInput{
			ConversationID: conv,
			SenderID:       sender,
			SenderName:     "Dana Reeves",
			SenderRole:     "teacher",
			Content:        "hello class",
		})
		require.NoError(t, err)
		assert.Equal(t, ContentText, msg.ContentType)
		assert.Equal(t, PriorityNormal, msg.Priority)
		assert.Equal(t, "Dana Reeves", msg.SenderName)
		assert.NotZero(t, msg.ID)
		assert.Contains(t, store.msgs, msg.ID)
	})

	t.Run("rejects non-participant", func(t *testing.T) {
		_, err := svc.Create(ctx, CreateInput{
			ConversationID: conv,
			SenderID:       uuid.New(),
			Content:        "hi",
		})
		assert.Equal(t, 403, apperrors.HTTPStatus(err))
	})

	t.Run("rejects empty content without attachments", func(t *testing.T) {
		_, err := svc.Create(ctx, CreateInput{
			ConversationID: conv,
			SenderID:       sender,
			Content:        "   ",
		})
		assert.Equal(t, 400, apperrors.HTTPStatus(err))
	})

	t.Run("accepts attachment-only message", func(t *testing.T) {
		msg, err := svc.Create(ctx, CreateInput{
			ConversationID: conv,
			SenderID:       sender,
			ContentType:    ContentFile,
			Attachments: []Attachment{
				{Filename: "notes.pdf", Mime: "application/pdf", Size: 1024, URL: "/files/notes.pdf"},
			},
		})
		require.NoError(t, err)
		assert.Len(t, msg.Attachments, 1)
	})

	t.Run("rejects unsupported content type", func(t *testing.T) {
		_, err := svc.Create(ctx, CreateInput{
			ConversationID: conv,
			SenderID:       sender,
			Content:        "hi",
			ContentType:    "sticker",
		})
		assert.Equal(t, 400, apperrors.HTTPStatus(err))
	})

	t.Run("rejects reply across conversations", func(t *testing.T) {
		otherConv := uuid.New()
		membership.members[memberKey(otherConv, sender)] = true

		parent, err := svc.Create(ctx, CreateInput{
			ConversationID: otherConv,
			SenderID:       sender,
			Content:        "original",
		})
		require.NoError(t, err)

		_, err = svc.Create(ctx, CreateInput{
			ConversationID: conv,
			SenderID:       sender,
			Content:        "reply",
			ReplyToID:      &parent.ID,
		})
		assert.Equal(t, 400, apperrors.HTTPStatus(err))
	})

	t.Run("rejects reply to missing message", func(t *testing.T) {
		missing := int64(999999)
		_, err := svc.Create(ctx, CreateInput{
			ConversationID: conv,
			SenderID:       sender,
			Content:        "reply",
			ReplyToID:      &missing,
		})
		assert.Equal(t, 400, apperrors.HTTPStatus(err))
	})
}

func TestEditMessage(t *testing.T) {
	svc, _, _, conv, sender := newTestService(t)
	ctx := context.Background()

	msg, err := svc.Create(ctx, CreateInput{
		ConversationID: conv,
		SenderID:       sender,
		Content:        "first",
	})
	require.NoError(t, err)

	t.Run("sender can edit", func(t *testing.T) {
		edited, err := svc.Edit(ctx, msg.ID, sender, "second")
		require.NoError(t, err)
		assert.Equal(t, "second", edited.Content)
		assert.True(t, edited.Edited)
	})

	t.Run("others cannot edit", func(t *testing.T) {
		_, err := svc.Edit(ctx, msg.ID, uuid.New(), "hijack")
		assert.Equal(t, 403, apperrors.HTTPStatus(err))
	})

	t.Run("deleted message cannot be edited", func(t *testing.T) {
		require.NoError(t, svc.Delete(ctx, msg.ID, sender))
		_, err := svc.Edit(ctx, msg.ID, sender, "third")
		assert.Equal(t, 409, apperrors.HTTPStatus(err))
	})
}

func TestDeleteMessage(t *testing.T) {
	svc, store, _, conv, sender := newTestService(t)
	ctx := context.Background()

	msg, err := svc.Create(ctx, CreateInput{
		ConversationID: conv,
		SenderID:       sender,
		Content:        "to delete",
	})
	require.NoError(t, err)

	t.Run("only the sender can delete", func(t *testing.T) {
		err := svc.Delete(ctx, msg.ID, uuid.New())
		assert.Equal(t, 403, apperrors.HTTPStatus(err))
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, svc.Delete(ctx, msg.ID, sender))
		require.NoError(t, svc.Delete(ctx, msg.ID, sender))
		assert.True(t, store.msgs[msg.ID].Deleted)
	})

	t.Run("missing message is not found", func(t *testing.T) {
		err := svc.Delete(ctx, 424242, sender)
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestReceipts(t *testing.T) {
	svc, store, membership, conv, sender := newTestService(t)
	ctx := context.Background()

	reader := uuid.New()
	membership.members[memberKey(conv, reader)] = true

	msg, err := svc.Create(ctx, CreateInput{
		ConversationID: conv,
		SenderID:       sender,
		Content:        "read me",
	})
	require.NoError(t, err)

	t.Run("read receipt recorded once", func(t *testing.T) {
		require.NoError(t, svc.MarkRead(ctx, msg.ID, reader))
		require.NoError(t, svc.MarkRead(ctx, msg.ID, reader))
		assert.Len(t, store.receipts, 1)
	})

	t.Run("delivered receipt is separate", func(t *testing.T) {
		require.NoError(t, svc.MarkDelivered(ctx, msg.ID, reader))
		assert.Len(t, store.receipts, 2)
	})

	t.Run("non-participant cannot acknowledge", func(t *testing.T) {
		err := svc.MarkRead(ctx, msg.ID, uuid.New())
		assert.Equal(t, 403, apperrors.HTTPStatus(err))
	})

	t.Run("disabled read receipts suppress the row", func(t *testing.T) {
		membership.receipts = false
		other := uuid.New()
		membership.members[memberKey(conv, other)] = true

		require.NoError(t, svc.MarkRead(ctx, msg.ID, other))
		assert.Len(t, store.receipts, 2, "no new receipt row")
	})
}

func TestReactions(t *testing.T) {
	svc, store, membership, conv, sender := newTestService(t)
	ctx := context.Background()

	reactor := uuid.New()
	membership.members[memberKey(conv, reactor)] = true

	msg, err := svc.Create(ctx, CreateInput{
		ConversationID: conv,
		SenderID:       sender,
		Content:        "react to me",
	})
	require.NoError(t, err)

	t.Run("reacting again replaces the emoji", func(t *testing.T) {
		_, err := svc.React(ctx, msg.ID, reactor, "👍")
		require.NoError(t, err)
		_, err = svc.React(ctx, msg.ID, reactor, "🎉")
		require.NoError(t, err)
		assert.Len(t, store.reactions, 1)
		assert.Equal(t, "🎉", store.reactions[receiptKey(msg.ID, reactor, "reaction")])
	})

	t.Run("empty emoji rejected", func(t *testing.T) {
		_, err := svc.React(ctx, msg.ID, reactor, "  ")
		assert.Equal(t, 400, apperrors.HTTPStatus(err))
	})

	t.Run("deleted message rejects reactions", func(t *testing.T) {
		require.NoError(t, svc.Delete(ctx, msg.ID, sender))
		_, err := svc.React(ctx, msg.ID, reactor, "👍")
		assert.Equal(t, 409, apperrors.HTTPStatus(err))
	})
}

func TestSearchValidation(t *testing.T) {
	svc, _, _, _, sender := newTestService(t)

	_, err := svc.Search(context.Background(), sender, SearchQuery{Query: "   "})
	assert.Equal(t, 400, apperrors.HTTPStatus(err))
}

func TestTombstone(t *testing.T) {
	m := &Message{
		Content:     "secret",
		ContentType: ContentImage,
		Attachments: []Attachment{{Filename: "a.png"}},
		Reactions:   []Reaction{{Emoji: "👍"}},
	}
	m.Tombstone()

	assert.Empty(t, m.Content)
	assert.Nil(t, m.Attachments)
	assert.Nil(t, m.Reactions)
	assert.True(t, m.Deleted)
}
