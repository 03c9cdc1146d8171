package auth

import (
	"context"
	"errors"
)

// ErrNoIdentity is returned when a request did not pass RequireToken.
var ErrNoIdentity = errors.New("auth: no identity in context")

type identityKey struct{}

type identity struct {
	subject string
	role    string
}

func WithIdentity(ctx context.Context, subject, role string) context.Context {
	return context.WithValue(ctx, identityKey{}, identity{subject: subject, role: role})
}

func fromContext(ctx context.Context) (identity, bool) {
	id, ok := ctx.Value(identityKey{}).(identity)
	return id, ok
}

// Subject is the operator or service name the token was issued to.
func Subject(ctx context.Context) (string, error) {
	if id, ok := fromContext(ctx); ok && id.subject != "" {
		return id.subject, nil
	}
	return "", ErrNoIdentity
}

func Role(ctx context.Context) (string, error) {
	if id, ok := fromContext(ctx); ok && id.role != "" {
		return id.role, nil
	}
	return "", ErrNoIdentity
}
