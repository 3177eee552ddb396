//go:build integration

package integration_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuslink/portal/internal/chatrooms"
	"github.com/campuslink/portal/internal/conversations"
	"github.com/campuslink/portal/internal/infra"
	"github.com/campuslink/portal/internal/messages"
	"github.com/campuslink/portal/tests/testutil"
)

func TestRoomCapacityUnderConcurrentJoins(t *testing.T) {
	database := testutil.GetDB(t)
	ctx := context.Background()

	repo := chatrooms.NewRepository(database.Pool)

	max := 5
	room := &chatrooms.Room{
		ID:              uuid.New(),
		Name:            "Crowded",
		Type:            chatrooms.TypePublic,
		CreatedBy:       uuid.New(),
		MaxParticipants: &max,
		Rules:           []string{},
		PinnedMessages:  []int64{},
		CreatedAt:       time.Now().UTC(),
	}
	require.NoError(t, repo.Create(ctx, room))

	const joiners = 20
	var (
		wg       sync.WaitGroup
		admitted int64
	)
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := repo.Join(ctx, room.ID, uuid.New()); err == nil {
				atomic.AddInt64(&admitted, 1)
			}
		}()
	}
	wg.Wait()

	// The creator holds one seat, so only max-1 joiners fit.
	assert.EqualValues(t, int64(max-1), admitted)

	got, err := repo.GetByID(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, max, got.CurrentParticipants)
}

func TestReceiptAndReactionUpserts(t *testing.T) {
	database := testutil.GetDB(t)
	ctx := context.Background()

	convRepo := conversations.NewRepository(database.Pool, nil)
	msgRepo := messages.NewRepository(database.Pool)
	ids := infra.NewSnowflakeGenerator(1)

	owner := uuid.New()
	reader := uuid.New()
	now := time.Now().UTC()

	conv := &conversations.Conversation{
		ID:        uuid.New(),
		Type:      conversations.TypeGroup,
		Title:     "Homework",
		CreatedBy: owner,
		Settings:  conversations.DefaultSettings(),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	parts := []conversations.Participant{
		{UserID: owner, Role: conversations.RoleOwner, JoinedAt: now},
		{UserID: reader, Role: conversations.RoleMember, JoinedAt: now},
	}
	require.NoError(t, convRepo.Create(ctx, conv, parts))

	msg := &messages.Message{
		ID:             ids.Generate(),
		ConversationID: conv.ID,
		SenderID:       owner,
		Content:        "read me",
		ContentType:    messages.ContentText,
		Priority:       messages.PriorityNormal,
		CreatedAt:      now,
	}
	require.NoError(t, msgRepo.Create(ctx, msg))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = msgRepo.UpsertReceipt(ctx, msg.ID, reader, messages.ReceiptRead)
		}()
	}
	wg.Wait()

	var receipts int
	require.NoError(t, database.Pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM message_receipts WHERE message_id = $1 AND user_id = $2",
		msg.ID, reader).Scan(&receipts))
	assert.Equal(t, 1, receipts)

	require.NoError(t, msgRepo.UpsertReaction(ctx, msg.ID, reader, "👍"))
	require.NoError(t, msgRepo.UpsertReaction(ctx, msg.ID, reader, "🎉"))

	var (
		reactions int
		emoji     string
	)
	require.NoError(t, database.Pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM message_reactions WHERE message_id = $1", msg.ID).Scan(&reactions))
	require.NoError(t, database.Pool.QueryRow(ctx,
		"SELECT emoji FROM message_reactions WHERE message_id = $1 AND user_id = $2",
		msg.ID, reader).Scan(&emoji))
	assert.Equal(t, 1, reactions)
	assert.Equal(t, "🎉", emoji)
}

func TestConcurrentSendsKeepUnreadCountsExact(t *testing.T) {
	database := testutil.GetDB(t)
	ctx := context.Background()

	convRepo := conversations.NewRepository(database.Pool, nil)
	ids := infra.NewSnowflakeGenerator(2)

	sender := uuid.New()
	receiver := uuid.New()
	now := time.Now().UTC()

	conv := &conversations.Conversation{
		ID:        uuid.New(),
		Type:      conversations.TypeGroup,
		Title:     "Busy thread",
		CreatedBy: sender,
		Settings:  conversations.DefaultSettings(),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	parts := []conversations.Participant{
		{UserID: sender, Role: conversations.RoleOwner, JoinedAt: now},
		{UserID: receiver, Role: conversations.RoleMember, JoinedAt: now},
	}
	require.NoError(t, convRepo.Create(ctx, conv, parts))

	const sends = 20
	var wg sync.WaitGroup
	for i := 0; i < sends; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := convRepo.RecordMessage(ctx, conv.ID, sender, ids.Generate(), "ping", time.Now().UTC())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	p, err := convRepo.GetParticipant(ctx, conv.ID, receiver)
	require.NoError(t, err)
	assert.Equal(t, sends, p.UnreadCount)

	own, err := convRepo.GetParticipant(ctx, conv.ID, sender)
	require.NoError(t, err)
	assert.Equal(t, 0, own.UnreadCount)
}
