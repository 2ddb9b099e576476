// Package market orchestrates trade execution against the bonding curve:
// validation, wallet prepare, pricing, atomic commit, and post-commit
// notification. It is the only component allowed to move a token's supply.
//
// Each token is a single-writer domain: all executes for one token run
// strictly one at a time behind a per-token mutex, while different tokens
// trade fully in parallel. Reads (quote, tape, position) never take the
// token lock; they work from consistent snapshots.
package market

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fameforge/token-market/internal/curve"
	"github.com/fameforge/token-market/internal/depth"
	"github.com/fameforge/token-market/internal/event"
	"github.com/fameforge/token-market/internal/metrics"
	"github.com/fameforge/token-market/internal/model"
	"github.com/fameforge/token-market/internal/store"
	"github.com/fameforge/token-market/internal/wallet"
)

var (
	// ErrInvalidAmount is returned when a trade amount is not positive.
	ErrInvalidAmount = errors.New("market: amount must be positive")

	// ErrInvalidSide is returned when the side is neither buy nor sell.
	ErrInvalidSide = errors.New("market: side must be buy or sell")
)

// tradeWindow is the rolling window for the per-position trade counter.
const tradeWindow = 7 * 24 * time.Hour

// Engine executes trades and serves market reads. Commit is the point of
// no return: a caller disconnecting after commit still gets its trade.
type Engine struct {
	store     store.Store
	wallet    wallet.Wallet
	publisher event.Publisher // optional
	hub       *WSHub          // optional

	mu    sync.Mutex
	locks map[string]*sync.Mutex // tokenID → serialization slot
}

// NewEngine creates a trade engine. Pass nil publisher/hub when outbound
// notification is not needed.
func NewEngine(st store.Store, w wallet.Wallet, pub event.Publisher, hub *WSHub) *Engine {
	return &Engine{
		store:     st,
		wallet:    w,
		publisher: pub,
		hub:       hub,
		locks:     make(map[string]*sync.Mutex),
	}
}

// tokenLock returns the serialization mutex for one token, creating it on
// first use. Lock striping stays per token so distinct tokens never contend.
func (e *Engine) tokenLock(tokenID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	l, ok := e.locks[tokenID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[tokenID] = l
	}
	return l
}

// CreateToken registers a new tradable token. Curve parameters must be
// positive; a zero value picks the caller-supplied defaults upstream.
func (e *Engine) CreateToken(ctx context.Context, id string, basePrice, slope decimal.Decimal) (*model.Token, error) {
	if _, err := curve.New(basePrice, slope); err != nil {
		return nil, err
	}
	if id == "" {
		id = uuid.New().String()
	}
	tok := &model.Token{
		ID:        id,
		BasePrice: basePrice,
		Slope:     slope,
		Supply:    decimal.Zero,
		Price:     basePrice, // marginal price at zero supply
		CreatedAt: time.Now().UTC(),
	}
	if err := e.store.CreateToken(ctx, tok); err != nil {
		return nil, err
	}
	metrics.ActiveTokens.Inc()

	slog.Info("token created",
		"token", tok.ID,
		"base_price", tok.BasePrice.String(),
		"slope", tok.Slope.String(),
	)
	return tok, nil
}

// ExecResult is the outcome of a committed trade.
type ExecResult struct {
	Trade     *model.Trade
	NewPrice  decimal.Decimal
	NewSupply decimal.Decimal
}

// Execute runs one trade through the full pipeline. On any error before
// commit nothing is written; on a commit failure after a buy debit the
// debit is refunded.
func (e *Engine) Execute(ctx context.Context, userID, tokenID string, side model.Side, amount decimal.Decimal) (*ExecResult, error) {
	if !side.Valid() {
		return nil, ErrInvalidSide
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}

	start := time.Now()

	// Serialize per token. Pricing, checks, and commit all happen inside
	// the critical section so the supply they see cannot move underneath.
	l := e.tokenLock(tokenID)
	l.Lock()
	defer l.Unlock()

	// Cache-bypassing read: a cached supply can lag the previous commit,
	// and pricing from it would overwrite that commit's supply.
	tok, err := e.store.GetTokenForUpdate(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	c, err := curve.New(tok.BasePrice, tok.Slope)
	if err != nil {
		return nil, err
	}

	var total, newSupply, avgPrice decimal.Decimal
	switch side {
	case model.SideBuy:
		total, newSupply, avgPrice, err = c.BuyCost(tok.Supply, amount)
	case model.SideSell:
		total, newSupply, avgPrice, err = c.SellProceeds(tok.Supply, amount)
	}
	if err != nil {
		return nil, err
	}

	if side == model.SideSell {
		pos, err := e.store.GetPosition(ctx, userID, tokenID)
		if errors.Is(err, store.ErrPositionNotFound) {
			return nil, model.ErrInsufficientBalance
		}
		if err != nil {
			return nil, err
		}
		if amount.GreaterThan(pos.Balance) {
			return nil, model.ErrInsufficientBalance
		}
	}

	// Wallet prepare: the buy debit must land before the token-side commit
	// so a wallet failure never needs ledger compensation.
	if side == model.SideBuy {
		if err := e.wallet.ReserveAndDebit(ctx, userID, total); err != nil {
			return nil, err
		}
	}

	newPrice, err := c.Price(newSupply)
	if err != nil {
		return nil, err
	}

	trade := &model.Trade{
		UID:          uuid.New().String(),
		TokenID:      tokenID,
		UserID:       userID,
		Side:         side,
		Amount:       amount,
		Price:        avgPrice,
		SupplyBefore: tok.Supply,
		SupplyAfter:  newSupply,
		Timestamp:    time.Now().UTC(),
	}

	if err := e.store.CommitTrade(ctx, trade, newSupply, newPrice); err != nil {
		if side == model.SideBuy {
			// Compensate the prepare step. A failed refund leaves the
			// wallet and ledger inconsistent and must reach operators.
			if rerr := e.wallet.Refund(ctx, userID, total); rerr != nil {
				metrics.WalletRefundFailures.Inc()
				slog.Error("wallet refund failed after commit failure",
					"user", userID, "token", tokenID,
					"amount", total.String(), "err", rerr)
			}
		}
		return nil, err
	}

	if side == model.SideSell {
		// Proceeds credit after commit. Credits cannot fail for funds;
		// a collaborator fault here is an operator-visible inconsistency.
		if err := e.wallet.Credit(ctx, userID, total); err != nil {
			slog.Error("wallet credit failed after sell commit",
				"user", userID, "token", tokenID,
				"trade_uid", trade.UID, "amount", total.String(), "err", err)
		}
	}

	metrics.TradesTotal.WithLabelValues(string(side)).Inc()
	metrics.TradeLatency.WithLabelValues(string(side)).Observe(time.Since(start).Seconds())

	slog.Info("trade executed",
		"trade_uid", trade.UID,
		"seq", trade.Seq,
		"user", userID,
		"token", tokenID,
		"side", side,
		"amount", amount.String(),
		"price", avgPrice.String(),
		"new_price", newPrice.String(),
		"new_supply", newSupply.String(),
	)

	e.notify(ctx, trade, newPrice)

	return &ExecResult{Trade: trade, NewPrice: newPrice, NewSupply: newSupply}, nil
}

// notify emits the trade-executed fact. Commit already happened; failures
// here are logged and never unwind the trade.
func (e *Engine) notify(ctx context.Context, trade *model.Trade, newPrice decimal.Decimal) {
	if e.publisher != nil {
		ev := event.NewTradeExecuted(trade, newPrice)
		if err := e.publisher.PublishTradeExecuted(ctx, ev); err != nil {
			slog.Error("trade event publish failed", "trade_uid", trade.UID, "err", err)
		}
	}
	if e.hub != nil {
		e.hub.Broadcast(WSMessage{
			Type:      "trade_executed",
			TokenID:   trade.TokenID,
			TradeID:   trade.Seq,
			Side:      string(trade.Side),
			Amount:    trade.Amount.String(),
			Price:     trade.Price.String(),
			NewPrice:  newPrice.String(),
			NewSupply: trade.SupplyAfter.String(),
		})
	}
}

// Quote builds a depth book for one token from a single supply snapshot.
func (e *Engine) Quote(ctx context.Context, tokenID string, levels int, tierSize decimal.Decimal) (*depth.Book, error) {
	tok, err := e.store.GetToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	c, err := curve.New(tok.BasePrice, tok.Slope)
	if err != nil {
		return nil, err
	}
	return depth.Quote(c, tok.Supply, levels, tierSize)
}

// Tape returns the most recent trades for a token, newest first.
func (e *Engine) Tape(ctx context.Context, tokenID string, limit int) ([]model.Trade, error) {
	if _, err := e.store.GetToken(ctx, tokenID); err != nil {
		return nil, err
	}
	return e.store.Tape(ctx, tokenID, limit)
}

// PositionView is a position enriched with the rolling trade counter.
type PositionView struct {
	model.Position
	Trades7d int `json:"trades_7d"`
}

// Position returns the user's position with its 7-day trade count.
func (e *Engine) Position(ctx context.Context, userID, tokenID string) (*PositionView, error) {
	pos, err := e.store.GetPosition(ctx, userID, tokenID)
	if err != nil {
		return nil, err
	}
	count, err := e.store.CountTradesSince(ctx, tokenID, userID, time.Now().UTC().Add(-tradeWindow))
	if err != nil {
		return nil, err
	}
	return &PositionView{Position: *pos, Trades7d: count}, nil
}

// Token returns current token state.
func (e *Engine) Token(ctx context.Context, tokenID string) (*model.Token, error) {
	return e.store.GetToken(ctx, tokenID)
}

// Tokens lists all tradable tokens.
func (e *Engine) Tokens(ctx context.Context) ([]model.Token, error) {
	return e.store.ListTokens(ctx)
}
