package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/fameforge/token-market/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for the hot read paths: token state and positions. Trade commits go
// to the primary store and invalidate both keys; the next read re-populates.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{primary: primary, rdb: rdb, ttl: ttl}
}

// --- Writes (primary first, then cache maintenance) ---

func (s *CachedStore) CreateToken(ctx context.Context, t *model.Token) error {
	if err := s.primary.CreateToken(ctx, t); err != nil {
		return err
	}
	s.cacheToken(ctx, t)
	return nil
}

func (s *CachedStore) CommitTrade(ctx context.Context, t *model.Trade, newSupply, newPrice decimal.Decimal) error {
	if err := s.primary.CommitTrade(ctx, t, newSupply, newPrice); err != nil {
		return err
	}
	s.rdb.Del(ctx, tokenKey(t.TokenID), positionKey(t.UserID, t.TokenID))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetToken(ctx context.Context, id string) (*model.Token, error) {
	data, err := s.rdb.Get(ctx, tokenKey(id)).Bytes()
	if err == nil {
		var t model.Token
		if json.Unmarshal(data, &t) == nil {
			return &t, nil
		}
	}

	t, err := s.primary.GetToken(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheToken(ctx, t)
	return t, nil
}

// GetTokenForUpdate always hits the primary. A reader that fetched from
// the primary just before a commit can re-populate the cache with
// pre-commit supply after the commit's invalidation; quotes tolerate
// that staleness for one TTL, but the write path must not.
func (s *CachedStore) GetTokenForUpdate(ctx context.Context, id string) (*model.Token, error) {
	return s.primary.GetToken(ctx, id)
}

func (s *CachedStore) GetPosition(ctx context.Context, userID, tokenID string) (*model.Position, error) {
	data, err := s.rdb.Get(ctx, positionKey(userID, tokenID)).Bytes()
	if err == nil {
		var p model.Position
		if json.Unmarshal(data, &p) == nil {
			return &p, nil
		}
	}

	p, err := s.primary.GetPosition(ctx, userID, tokenID)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(p); err == nil {
		s.rdb.Set(ctx, positionKey(userID, tokenID), data, s.ttl)
	}
	return p, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListTokens(ctx context.Context) ([]model.Token, error) {
	return s.primary.ListTokens(ctx)
}

func (s *CachedStore) Tape(ctx context.Context, tokenID string, limit int) ([]model.Trade, error) {
	return s.primary.Tape(ctx, tokenID, limit)
}

func (s *CachedStore) CountTradesSince(ctx context.Context, tokenID, userID string, since time.Time) (int, error) {
	return s.primary.CountTradesSince(ctx, tokenID, userID, since)
}

// --- Cache helpers ---

func (s *CachedStore) cacheToken(ctx context.Context, t *model.Token) {
	if data, err := json.Marshal(t); err == nil {
		s.rdb.Set(ctx, tokenKey(t.ID), data, s.ttl)
	}
}

func tokenKey(id string) string          { return fmt.Sprintf("token:%s", id) }
func positionKey(uid, tid string) string { return fmt.Sprintf("position:%s:%s", uid, tid) }
