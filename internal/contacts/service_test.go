package contacts

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/campuslink/portal/internal/common/errors"
	"github.com/campuslink/portal/internal/common/pagination"
	"github.com/campuslink/portal/internal/principal"
)

type fakeStore struct {
	byPair map[string]*Contact
}

func newFakeStore() *fakeStore {
	return &fakeStore{byPair: make(map[string]*Contact)}
}

func pairKey(ownerID, contactID uuid.UUID) string {
	return ownerID.String() + "/" + contactID.String()
}

func (f *fakeStore) Create(_ context.Context, c *Contact) error {
	key := pairKey(c.OwnerID, c.ContactID)
	if _, ok := f.byPair[key]; ok {
		return apperrors.Conflict("contact already exists")
	}
	cp := *c
	f.byPair[key] = &cp
	return nil
}

func (f *fakeStore) GetByPair(_ context.Context, ownerID, contactID uuid.UUID) (*Contact, error) {
	c, ok := f.byPair[pairKey(ownerID, contactID)]
	if !ok {
		return nil, apperrors.NotFound("contact not found")
	}
	cp := *c
	return &cp, nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, ownerID, contactID uuid.UUID, status Status) error {
	c, ok := f.byPair[pairKey(ownerID, contactID)]
	if !ok {
		return apperrors.NotFound("contact not found")
	}
	c.Status = status
	return nil
}

func (f *fakeStore) SetFavorite(_ context.Context, ownerID, contactID uuid.UUID, favorite bool) error {
	c, ok := f.byPair[pairKey(ownerID, contactID)]
	if !ok {
		return apperrors.NotFound("contact not found")
	}
	c.IsFavorite = favorite
	return nil
}

func (f *fakeStore) Block(_ context.Context, ownerID, contactID uuid.UUID, reason string) error {
	c := f.byPair[pairKey(ownerID, contactID)]
	if c == nil || c.IsBlocked {
		return nil
	}
	now := time.Now()
	c.IsBlocked = true
	c.BlockedAt = &now
	c.BlockReason = reason
	return nil
}

func (f *fakeStore) Unblock(_ context.Context, ownerID, contactID uuid.UUID) error {
	c := f.byPair[pairKey(ownerID, contactID)]
	if c == nil || !c.IsBlocked {
		return nil
	}
	c.IsBlocked = false
	c.BlockedAt = nil
	c.BlockReason = ""
	return nil
}

func (f *fakeStore) List(_ context.Context, ownerID uuid.UUID, filter ListFilter, _ pagination.Page) ([]*Contact, int, error) {
	var out []*Contact
	for _, c := range f.byPair {
		if c.OwnerID != ownerID {
			continue
		}
		if filter.IsFavorite != nil && c.IsFavorite != *filter.IsFavorite {
			continue
		}
		if filter.IsBlocked != nil && c.IsBlocked != *filter.IsBlocked {
			continue
		}
		if len(filter.Tags) > 0 && !overlaps(c.Tags, filter.Tags) {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func overlaps(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

func newTestService(t *testing.T) (*Service, *fakeStore, uuid.UUID, uuid.UUID) {
	t.Helper()

	owner := uuid.New()
	other := uuid.New()
	directory := principal.NewStaticDirectory(principal.Principal{
		ID:   other.String(),
		Name: "Sam Ortiz",
		Role: "student",
	})

	store := newFakeStore()
	return NewService(store, directory, zap.NewNop()), store, owner, other
}

func TestAddContact(t *testing.T) {
	svc, _, owner, other := newTestService(t)
	ctx := context.Background()

	t.Run("resolves display name from the directory", func(t *testing.T) {
		c, err := svc.AddContact(ctx, owner, AddContactInput{ContactID: other, Tags: []string{"class-7b"}})
		require.NoError(t, err)
		assert.Equal(t, "Sam Ortiz", c.DisplayName)
		assert.Equal(t, "student", c.Role)
		assert.Equal(t, StatusOffline, c.Status)
	})

	t.Run("duplicate pair conflicts", func(t *testing.T) {
		_, err := svc.AddContact(ctx, owner, AddContactInput{ContactID: other})
		assert.True(t, apperrors.IsConflict(err))
	})

	t.Run("self contact rejected", func(t *testing.T) {
		_, err := svc.AddContact(ctx, owner, AddContactInput{ContactID: owner})
		assert.Equal(t, 400, apperrors.HTTPStatus(err))
	})

	t.Run("unknown user rejected", func(t *testing.T) {
		_, err := svc.AddContact(ctx, owner, AddContactInput{ContactID: uuid.New()})
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestStatusAndFavorite(t *testing.T) {
	svc, store, owner, other := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddContact(ctx, owner, AddContactInput{ContactID: other})
	require.NoError(t, err)

	t.Run("status updates", func(t *testing.T) {
		require.NoError(t, svc.UpdateStatus(ctx, owner, other, StatusOnline))
		c, _ := store.GetByPair(ctx, owner, other)
		assert.Equal(t, StatusOnline, c.Status)
	})

	t.Run("invalid status rejected", func(t *testing.T) {
		err := svc.UpdateStatus(ctx, owner, other, "ghost")
		assert.Equal(t, 400, apperrors.HTTPStatus(err))
	})

	t.Run("invisible is a valid status", func(t *testing.T) {
		require.NoError(t, svc.UpdateStatus(ctx, owner, other, StatusInvisible))
		c, _ := store.GetByPair(ctx, owner, other)
		assert.Equal(t, StatusInvisible, c.Status)
	})

	t.Run("unknown contact not found", func(t *testing.T) {
		err := svc.UpdateStatus(ctx, owner, uuid.New(), StatusAway)
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("favorite toggle", func(t *testing.T) {
		require.NoError(t, svc.SetFavorite(ctx, owner, other, true))
		c, _ := store.GetByPair(ctx, owner, other)
		assert.True(t, c.IsFavorite)
	})
}

func TestBlocking(t *testing.T) {
	svc, store, owner, other := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddContact(ctx, owner, AddContactInput{ContactID: other})
	require.NoError(t, err)

	t.Run("block records reason and timestamp", func(t *testing.T) {
		require.NoError(t, svc.Block(ctx, owner, other, "inappropriate messages"))
		c, _ := store.GetByPair(ctx, owner, other)
		assert.True(t, c.IsBlocked)
		assert.NotNil(t, c.BlockedAt)
		assert.Equal(t, "inappropriate messages", c.BlockReason)
	})

	t.Run("blocking twice keeps the first block", func(t *testing.T) {
		before, _ := store.GetByPair(ctx, owner, other)
		require.NoError(t, svc.Block(ctx, owner, other, "different reason"))

		after, _ := store.GetByPair(ctx, owner, other)
		assert.Equal(t, before.BlockReason, after.BlockReason)
		assert.Equal(t, before.BlockedAt, after.BlockedAt)
	})

	t.Run("unblock clears and is idempotent", func(t *testing.T) {
		require.NoError(t, svc.Unblock(ctx, owner, other))
		require.NoError(t, svc.Unblock(ctx, owner, other))

		c, _ := store.GetByPair(ctx, owner, other)
		assert.False(t, c.IsBlocked)
		assert.Nil(t, c.BlockedAt)
	})

	t.Run("blocking an unknown contact is not found", func(t *testing.T) {
		err := svc.Block(ctx, owner, uuid.New(), "")
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestListFilters(t *testing.T) {
	svc, _, owner, other := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddContact(ctx, owner, AddContactInput{ContactID: other, Tags: []string{"class-7b"}})
	require.NoError(t, err)
	require.NoError(t, svc.SetFavorite(ctx, owner, other, true))

	page := pagination.Parse(1, 50)

	t.Run("favorite filter", func(t *testing.T) {
		fav := true
		list, total, err := svc.List(ctx, owner, ListFilter{IsFavorite: &fav}, page)
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		assert.Len(t, list, 1)
	})

	t.Run("tag filter", func(t *testing.T) {
		list, _, err := svc.List(ctx, owner, ListFilter{Tags: []string{"class-7b"}}, page)
		require.NoError(t, err)
		assert.Len(t, list, 1)

		list, _, err = svc.List(ctx, owner, ListFilter{Tags: []string{"chess"}}, page)
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("blocked filter excludes the unblocked", func(t *testing.T) {
		blocked := true
		list, _, err := svc.List(ctx, owner, ListFilter{IsBlocked: &blocked}, page)
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}
