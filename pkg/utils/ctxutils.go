package utils

import (
	"context"

	"delivery-system/internal/authz"
	"delivery-system/pkg/contextkeys"
	apperrors "delivery-system/pkg/errors"
)

func GetIdentityFromCtx(ctx context.Context) (authz.Identity, error) {
	identity, ok := ctx.Value(contextkeys.IdentityKey).(authz.Identity)
	if !ok || identity.UserID == 0 {
		return authz.Identity{}, apperrors.ErrIdentityNotFoundInContext
	}
	return identity, nil
}

func WithIdentity(ctx context.Context, identity authz.Identity) context.Context {
	return context.WithValue(ctx, contextkeys.IdentityKey, identity)
}
