package memory

import (
	"context"
	"testing"

	"github.com/MrEthical07/otpAuth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, s *Store, id, username, email string) {
	t.Helper()
	require.NoError(t, s.Create(context.Background(), &otpAuth.Account{
		ID:       id,
		Username: username,
		Email:    email,
		Role:     otpAuth.RoleUser,
	}))
}

func TestCreateAndFind(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed(t, s, "u1", "alice_1", "alice@example.com")

	byEmail, err := s.FindByIdentifier(ctx, "alice@example.com")
	require.NoError(t, err)
	byName, err := s.FindByIdentifier(ctx, "alice_1")
	require.NoError(t, err)
	assert.Equal(t, "u1", byEmail.ID)
	assert.Equal(t, "u1", byName.ID)
	assert.False(t, byEmail.CreatedAt.IsZero())

	_, err = s.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, otpAuth.ErrStoreNotFound)

	assert.ErrorIs(t, s.Create(ctx, &otpAuth.Account{ID: "u2", Username: "other_1", Email: "alice@example.com"}), otpAuth.ErrStoreConflict)
	assert.ErrorIs(t, s.Create(ctx, &otpAuth.Account{ID: "u2", Username: "alice_1", Email: "x@example.com"}), otpAuth.ErrStoreConflict)
}

func TestExists(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed(t, s, "u1", "alice_1", "alice@example.com")

	ok, err := s.Exists(ctx, "alice@example.com", "")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Exists(ctx, "", "alice_1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Exists(ctx, "", "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdateUsernameMovesIndex(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed(t, s, "u1", "alice_1", "alice@example.com")
	seed(t, s, "u2", "bobby_2", "bob@example.com")

	assert.ErrorIs(t, s.UpdateUsername(ctx, "u1", "bobby_2"), otpAuth.ErrStoreConflict)
	require.NoError(t, s.UpdateUsername(ctx, "u1", "alice_new"))

	_, err := s.FindByIdentifier(ctx, "alice_1")
	assert.ErrorIs(t, err, otpAuth.ErrStoreNotFound)
	a, err := s.FindByIdentifier(ctx, "alice_new")
	require.NoError(t, err)
	assert.Equal(t, "u1", a.ID)
}

func TestUpdatesOnUnknownAccount(t *testing.T) {
	ctx := context.Background()
	s := New()
	assert.ErrorIs(t, s.UpdatePasswordHash(ctx, "x", "h"), otpAuth.ErrStoreNotFound)
	assert.ErrorIs(t, s.UpdateRole(ctx, "x", otpAuth.RoleAdmin), otpAuth.ErrStoreNotFound)
	assert.ErrorIs(t, s.SetEmailVerified(ctx, "x", true), otpAuth.ErrStoreNotFound)
}

func TestListOrder(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed(t, s, "u1", "alice_1", "alice@example.com")
	seed(t, s, "u2", "bobby_2", "bob@example.com")
	require.NoError(t, s.UpdateRole(ctx, "u2", otpAuth.RoleAdmin))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "u1", list[0].ID)
	assert.Equal(t, otpAuth.RoleAdmin, list[1].Role)
}
