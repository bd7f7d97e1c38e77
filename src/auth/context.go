package auth

import (
	"context"
)

type contextKey string

// UserIDKey holds the authenticated user id placed by an upstream auth layer.
const UserIDKey contextKey = "userID"

// AnonymousUser is reported when no user id is attached to the request.
const AnonymousUser = "anonymous"

func GetUserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(UserIDKey).(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// UserIDOrAnonymous returns the user id or "anonymous".
func UserIDOrAnonymous(ctx context.Context) string {
	if id, ok := GetUserIDFromContext(ctx); ok {
		return id
	}
	return AnonymousUser
}

// WithUserID returns a copy of ctx carrying the user id.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, UserIDKey, id)
}
