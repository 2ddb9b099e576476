// Package store defines persistence for the token market. Implementations
// include PostgreSQL (source of truth), Redis (read-through cache), and
// in-memory (for testing and development).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fameforge/token-market/internal/model"
)

var (
	// ErrTokenNotFound is returned when a token id is unknown.
	ErrTokenNotFound = errors.New("store: token not found")

	// ErrTokenExists is returned when creating a token whose id is taken.
	ErrTokenExists = errors.New("store: token already exists")

	// ErrPositionNotFound is returned when a user has never traded a token.
	ErrPositionNotFound = errors.New("store: position not found")
)

// Store is the persistence interface. Writes to a token happen only through
// CommitTrade, which the engine calls inside that token's serialization
// domain.
type Store interface {
	// --- Token registry ---

	// CreateToken persists a new token. Fails with ErrTokenExists on
	// duplicate ids.
	CreateToken(ctx context.Context, t *model.Token) error

	// GetToken returns a copy of the token state. Implementations may
	// serve it from a cache.
	GetToken(ctx context.Context, id string) (*model.Token, error)

	// GetTokenForUpdate returns the last committed token state, bypassing
	// any read cache. The engine calls it inside the token's critical
	// section before pricing a trade: a cached supply can lag a commit,
	// and pricing from it would erase that commit from the supply path.
	GetTokenForUpdate(ctx context.Context, id string) (*model.Token, error)

	// ListTokens returns all tokens, newest first.
	ListTokens(ctx context.Context) ([]model.Token, error)

	// --- Trade commit (ledger + supply + position, atomically) ---

	// CommitTrade assigns the next per-token sequence id to t, appends it
	// to the ledger, moves the token to newSupply/newPrice, and applies
	// the fill to the caller's position — all as one atomic unit. Either
	// every effect is visible or none is.
	CommitTrade(ctx context.Context, t *model.Trade, newSupply, newPrice decimal.Decimal) error

	// --- Ledger reads ---

	// Tape returns up to limit trades for a token, most recent first.
	Tape(ctx context.Context, tokenID string, limit int) ([]model.Trade, error)

	// CountTradesSince counts a user's trades on a token since the given
	// time. Backs the rolling 7-day trade counter.
	CountTradesSince(ctx context.Context, tokenID, userID string, since time.Time) (int, error)

	// --- Position reads ---

	// GetPosition returns the user's position, or ErrPositionNotFound if
	// the user never traded this token.
	GetPosition(ctx context.Context, userID, tokenID string) (*model.Position, error)
}
