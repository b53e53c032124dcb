package test_utils

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pocket/pocket/pkg/user"
)

// CreateUser stores a user with the given uid and returns a context carrying it.
func CreateUser(t *testing.T, db *pgxpool.Pool, uid string) (context.Context, user.User) {
	t.Helper()
	u := user.User{Uid: uid, Username: "user_" + uid, DisplayName: fmt.Sprintf("Test User %s", uid)}
	id, err := user.NewUserRepo(db).CreateUser(context.Background(), u)
	if err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	u.Id = id
	return user.WithUser(context.Background(), u), u
}
