package user

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserServiceImpl_GetUserByUid(t *testing.T) {
	ctx := context.Background()
	repo := NewStubUserRepository()
	service := NewUserService(repo)
	id, err := repo.CreateUser(ctx, User{Uid: "abc", Username: "alice"})
	require.NoError(t, err)

	t.Run("should resolve known uid", func(t *testing.T) {
		u, err := service.GetUserByUid(ctx, "abc")

		require.NoError(t, err)
		assert.Equal(t, id, u.Id)
		assert.Equal(t, "alice", u.Username)
	})

	t.Run("should fail for unknown uid", func(t *testing.T) {
		_, err := service.GetUserByUid(ctx, "nope")

		assert.ErrorIs(t, err, ErrUserNotFound)
	})
}

func TestUserServiceImpl_GetCurrentUser(t *testing.T) {
	repo := NewStubUserRepository()
	service := NewUserService(repo)
	id, err := repo.CreateUser(context.Background(), User{Uid: "abc", Username: "alice"})
	require.NoError(t, err)

	t.Run("should return user stored in context", func(t *testing.T) {
		ctx := WithUser(context.Background(), User{Id: id})

		u, err := service.GetCurrentUser(ctx)

		require.NoError(t, err)
		assert.Equal(t, "alice", u.Username)
	})

	t.Run("should return error when context has no user", func(t *testing.T) {
		_, err := service.GetCurrentUser(context.Background())

		assert.ErrorIs(t, err, ErrNoUser)
		assert.Contains(t, err.Error(), "failed to get current user")
	})
}
