package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fameforge/token-market/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	tokens    map[string]*model.Token
	ledger    map[string][]model.Trade // tokenID → trades in commit order
	positions map[string]*model.Position
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tokens:    make(map[string]*model.Token),
		ledger:    make(map[string][]model.Trade),
		positions: make(map[string]*model.Position),
	}
}

func posKey(userID, tokenID string) string { return userID + "\x00" + tokenID }

func (s *MemoryStore) CreateToken(_ context.Context, t *model.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[t.ID]; ok {
		return ErrTokenExists
	}
	// Store a copy to avoid external mutation.
	cp := *t
	s.tokens[t.ID] = &cp
	return nil
}

func (s *MemoryStore) GetToken(_ context.Context, id string) (*model.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tokens[id]
	if !ok {
		return nil, ErrTokenNotFound
	}
	cp := *t
	return &cp, nil
}

// GetTokenForUpdate is GetToken; there is no cache layer to bypass.
func (s *MemoryStore) GetTokenForUpdate(ctx context.Context, id string) (*model.Token, error) {
	return s.GetToken(ctx, id)
}

func (s *MemoryStore) ListTokens(_ context.Context) ([]model.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tokens := make([]model.Token, 0, len(s.tokens))
	for _, t := range s.tokens {
		tokens = append(tokens, *t)
	}
	sort.Slice(tokens, func(i, j int) bool {
		return tokens[i].CreatedAt.After(tokens[j].CreatedAt)
	})
	return tokens, nil
}

// CommitTrade applies the whole trade under one lock: sequence assignment,
// ledger append, supply move, and position update become visible together.
func (s *MemoryStore) CommitTrade(_ context.Context, t *model.Trade, newSupply, newPrice decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, ok := s.tokens[t.TokenID]
	if !ok {
		return ErrTokenNotFound
	}

	key := posKey(t.UserID, t.TokenID)
	pos, ok := s.positions[key]
	if !ok {
		pos = &model.Position{UserID: t.UserID, TokenID: t.TokenID}
	}
	// Copy-apply-swap so a failed sell leaves the stored position untouched.
	next := *pos
	switch t.Side {
	case model.SideBuy:
		next.ApplyBuy(t.Amount, t.Price)
	case model.SideSell:
		if err := next.ApplySell(t.Amount, t.Price); err != nil {
			return err
		}
	}

	t.Seq = int64(len(s.ledger[t.TokenID])) + 1
	s.ledger[t.TokenID] = append(s.ledger[t.TokenID], *t)
	tok.Supply = newSupply
	tok.Price = newPrice
	s.positions[key] = &next
	return nil
}

func (s *MemoryStore) Tape(_ context.Context, tokenID string, limit int) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trades := s.ledger[tokenID]
	if limit > len(trades) {
		limit = len(trades)
	}
	out := make([]model.Trade, 0, limit)
	for i := len(trades) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, trades[i])
	}
	return out, nil
}

func (s *MemoryStore) CountTradesSince(_ context.Context, tokenID, userID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, t := range s.ledger[tokenID] {
		if t.UserID == userID && !t.Timestamp.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) GetPosition(_ context.Context, userID, tokenID string) (*model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.positions[posKey(userID, tokenID)]
	if !ok {
		return nil, ErrPositionNotFound
	}
	cp := *pos
	return &cp, nil
}
