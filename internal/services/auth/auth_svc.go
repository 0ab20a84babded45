package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const tokenCacheKeyPrefix = "tok:"

var (
	ErrTokenMissing = errors.New("token missing")
	ErrTokenInvalid = errors.New("token invalid or expired")
)

// ITokenVerifier resolves a raw opaque token to a user id. Callers must
// refuse the connection on any error: no connection state may exist for an
// unverified user.
type ITokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

type tokenVerifier struct {
	rdc      *redis.Client
	db       *sql.DB
	cacheTTL time.Duration
}

func NewTokenVerifier(rdc *redis.Client, db *sql.DB, cacheTTL time.Duration) ITokenVerifier {
	return &tokenVerifier{
		rdc:      rdc,
		db:       db,
		cacheTTL: cacheTTL,
	}
}

// Verify checks the Redis cache first and falls back to Postgres. Cache
// failures degrade to a database lookup, never to a rejected token.
func (svc *tokenVerifier) Verify(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrTokenMissing
	}

	cacheKey := tokenCacheKeyPrefix + token
	if userID, err := svc.rdc.Get(ctx, cacheKey).Result(); err == nil && userID != "" {
		return userID, nil
	} else if err != nil && !errors.Is(err, redis.Nil) {
		zap.L().Warn("auth.cache_read", zap.Error(err))
	}

	const q = `SELECT user_id FROM auth_tokens
	            WHERE token = $1 AND (expires_at IS NULL OR expires_at > now())`
	var userID string
	err := svc.db.QueryRowContext(ctx, q, token).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrTokenInvalid
	}
	if err != nil {
		return "", err
	}

	if err := svc.rdc.Set(ctx, cacheKey, userID, svc.cacheTTL).Err(); err != nil {
		zap.L().Warn("auth.cache_write", zap.Error(err))
	}
	return userID, nil
}
