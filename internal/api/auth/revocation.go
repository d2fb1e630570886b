package auth

import (
	"context"
	"strconv"
	"time"

	"github.com/medicalq/backend/app/cache"
)

const revokedKeyPrefix = "revoked_uid:"

// revocationTTL comfortably outlives any provider-issued token, so a marker
// only needs to survive until every token minted before it has expired.
const revocationTTL = 24 * time.Hour

// RevocationList is a Redis-backed denylist of revoked identities. The
// provider also revokes sessions on its side, but its revocation is only
// observed on full token verification; this marker lets the middleware
// reject stale tokens immediately, including cached principals.
type RevocationList struct {
	cache *cache.Client
}

func NewRevocationList(c *cache.Client) *RevocationList {
	return &RevocationList{cache: c}
}

// Revoke records that every token for uid issued up to now is invalid.
func (l *RevocationList) Revoke(ctx context.Context, uid string) {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	_ = l.cache.Set(ctx, revokedKeyPrefix+uid, []byte(now), revocationTTL)
}

// RevokedSince reports whether a token issued at issuedAt has been revoked.
// Redis being unreachable reads as "not revoked" (fail-safe, matching the
// cache wrapper's semantics).
func (l *RevocationList) RevokedSince(ctx context.Context, uid string, issuedAt time.Time) bool {
	data, _ := l.cache.Get(ctx, revokedKeyPrefix+uid)
	if data == nil {
		return false
	}
	marker, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return false
	}
	return !issuedAt.After(time.Unix(marker, 0))
}
