package service

import "context"

type identityKey struct{}

// Identity es la identidad autenticada que el guard adjunta a la petición.
type Identity struct {
	UserID   int64
	Username string
	Email    string
}

func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

func (c Claims) Identity() Identity {
	return Identity{
		UserID:   c.UserID,
		Username: c.Username,
		Email:    c.Email,
	}
}
