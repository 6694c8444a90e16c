package auth

import (
	"context"
	"time"
)

// TokenBlacklist stores revoked JWT IDs until their original expiry.
type TokenBlacklist interface {
	// Add blacklists the jti until originalTokenExpTime, after which the
	// entry may be dropped automatically.
	Add(ctx context.Context, jti string, originalTokenExpTime time.Time) error
	// IsBlacklisted reports whether the jti has been revoked.
	IsBlacklisted(ctx context.Context, jti string) (bool, error)
}
