package auth

import (
	"context"

	"go.uber.org/zap"
)

type userKeyType struct{}

var userKey userKeyType

// User is the caller principal. Core logic treats it opaquely: the pair
// (Organization, Username) identifies an owner, Admin bypasses ownership
// checks.
type User struct {
	Username     string
	Organization string
	Admin        bool
}

func UserFromContext(ctx context.Context) (User, bool) {
	val := ctx.Value(userKey)
	if val == nil {
		return User{}, false
	}
	return val.(User), true
}

func MustHaveUser(ctx context.Context) User {
	user, found := UserFromContext(ctx)
	if !found {
		zap.S().Named("auth").Panic("failed to find user in context")
	}
	return user
}

func NewUserContext(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, userKey, u)
}
