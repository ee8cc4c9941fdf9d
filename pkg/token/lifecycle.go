package token

import (
	"context"
	"time"
)

// Refresher performs a refresh-grant exchange against the provider's token
// endpoint. Implemented by provider.Client.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*Bundle, error)
}

// EnsureValid returns the bundle unchanged while its access token is still
// fresh, and otherwise exchanges the refresh token for a new bundle. A
// failed refresh propagates so the caller can treat the session as
// disconnected; it is never swallowed here.
func EnsureValid(ctx context.Context, bundle *Bundle, refresher Refresher) (*Bundle, error) {
	if bundle.Valid(time.Now()) {
		return bundle, nil
	}
	return refresher.Refresh(ctx, bundle.RefreshToken)
}
