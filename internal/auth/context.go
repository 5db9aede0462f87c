package auth

import (
	"context"
	"errors"
)

type ctxKey int

const ctxIdentity ctxKey = iota

// ErrNoIdentity is returned when a request reached a handler without RequireAccessToken.
var ErrNoIdentity = errors.New("identity not in context")

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxIdentity, id)
}

func IdentityFrom(ctx context.Context) (Identity, error) {
	v := ctx.Value(ctxIdentity)
	if id, ok := v.(Identity); ok && id.Username != "" {
		return id, nil
	}
	return Identity{}, ErrNoIdentity
}
