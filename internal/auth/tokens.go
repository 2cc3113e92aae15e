package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/meridian-ops/meridian-ops/internal/shared"
)

// TokenStore keeps opaque bearer tokens in redis with a sliding TTL.
type TokenStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTokenStore constructs a token store.
func NewTokenStore(client *redis.Client, ttl time.Duration) *TokenStore {
	return &TokenStore{client: client, ttl: ttl}
}

func tokenKey(token string) string {
	return fmt.Sprintf("auth:token:%s", token)
}

type tokenRecord struct {
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
}

// Issue mints a new token for the user.
func (s *TokenStore) Issue(ctx context.Context, user User) (string, error) {
	token := uuid.NewString()
	payload, err := json.Marshal(tokenRecord{UserID: user.ID, Email: user.Email})
	if err != nil {
		return "", err
	}
	if err := s.client.Set(ctx, tokenKey(token), payload, s.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// Lookup resolves a token to its actor and refreshes the TTL.
func (s *TokenStore) Lookup(ctx context.Context, token string) (shared.Actor, error) {
	raw, err := s.client.Get(ctx, tokenKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return shared.Actor{}, ErrTokenInvalid
		}
		return shared.Actor{}, err
	}
	var record tokenRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return shared.Actor{}, ErrTokenInvalid
	}
	_ = s.client.Expire(ctx, tokenKey(token), s.ttl).Err()
	return shared.Actor{ID: record.UserID, Email: record.Email}, nil
}

// Revoke deletes the token. Revoking an unknown token is not an error.
func (s *TokenStore) Revoke(ctx context.Context, token string) error {
	return s.client.Del(ctx, tokenKey(token)).Err()
}
