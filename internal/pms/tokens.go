package pms

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisTokens reads the OAuth access token another process keeps in a redis
// hash with fields access_token and expires_at (unix seconds or RFC 3339).
type RedisTokens struct {
	client *redis.Client
	key    string
}

func NewRedisTokens(client *redis.Client, key string) *RedisTokens {
	return &RedisTokens{
		client: client,
		key:    key,
	}
}

func (t *RedisTokens) AccessToken(ctx context.Context) (Token, error) {
	fields, err := t.client.HGetAll(ctx, t.key).Result()
	if err != nil {
		return Token{}, fmt.Errorf("read token hash %v: %w", t.key, err)
	}

	if len(fields) == 0 || fields["access_token"] == "" {
		return Token{}, ErrNoToken
	}

	expiresAt, err := parseExpiry(fields["expires_at"])
	if err != nil {
		return Token{}, fmt.Errorf("parse token expiry: %w", err)
	}

	return Token{AccessToken: fields["access_token"], ExpiresAt: expiresAt}, nil
}

func parseExpiry(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}

	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0), nil
	}

	return time.Parse(time.RFC3339, raw)
}
