// Package model defines the core domain types shared across the token market.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInsufficientBalance is returned when a sell exceeds the caller's
// token balance.
var ErrInsufficientBalance = errors.New("model: insufficient token balance")

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether s is a known trade side.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Token is the tradable unit for one influencer. Supply is the sole input
// to the pricing curve and is mutated only through trade commits.
type Token struct {
	ID        string          `json:"token_id" db:"id"`
	BasePrice decimal.Decimal `json:"base_price" db:"base_price"` // curve intercept, > 0
	Slope     decimal.Decimal `json:"slope" db:"slope"`           // curve slope, > 0
	Supply    decimal.Decimal `json:"supply" db:"supply"`         // >= 0
	Price     decimal.Decimal `json:"price" db:"price"`           // marginal price at Supply
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// Trade is an immutable record of one executed trade. Once committed these
// are never modified or deleted. Seq is assigned at commit and is strictly
// increasing and gap-free per token; UID is globally unique and serves as
// the idempotency key for downstream consumers.
type Trade struct {
	Seq          int64           `json:"id" db:"seq"`
	UID          string          `json:"uid" db:"uid"`
	TokenID      string          `json:"token_id" db:"token_id"`
	UserID       string          `json:"user_id" db:"user_id"`
	Side         Side            `json:"side" db:"side"`
	Amount       decimal.Decimal `json:"amount" db:"amount"` // > 0
	Price        decimal.Decimal `json:"price" db:"price"`   // avg execution price
	SupplyBefore decimal.Decimal `json:"supply_before" db:"supply_before"`
	SupplyAfter  decimal.Decimal `json:"supply_after" db:"supply_after"`
	Timestamp    time.Time       `json:"timestamp" db:"timestamp"`
}

// Position is a user's aggregate holding in one token, materialized from
// the trade ledger. AvgBuyPrice is meaningful only while Balance > 0.
type Position struct {
	UserID         string          `json:"user_id"`
	TokenID        string          `json:"token_id"`
	Balance        decimal.Decimal `json:"balance"`
	AvgBuyPrice    decimal.Decimal `json:"avg_buy_price"`
	LastTradePrice decimal.Decimal `json:"last_trade_price"`
}

// ApplyBuy folds a buy fill into the position. A buy from a flat position
// resets the cost basis to the fill price; otherwise the basis becomes the
// amount-weighted average of the old basis and the fill.
func (p *Position) ApplyBuy(amount, avgPrice decimal.Decimal) {
	if p.Balance.IsZero() {
		p.AvgBuyPrice = avgPrice
	} else {
		notional := p.Balance.Mul(p.AvgBuyPrice).Add(amount.Mul(avgPrice))
		p.AvgBuyPrice = notional.Div(p.Balance.Add(amount))
	}
	p.Balance = p.Balance.Add(amount)
	p.LastTradePrice = avgPrice
}

// ApplySell folds a sell fill into the position. Selling never moves the
// cost basis of the remaining units; a sell that empties the position
// clears the basis.
func (p *Position) ApplySell(amount, avgPrice decimal.Decimal) error {
	if amount.GreaterThan(p.Balance) {
		return ErrInsufficientBalance
	}
	p.Balance = p.Balance.Sub(amount)
	if p.Balance.IsZero() {
		p.AvgBuyPrice = decimal.Zero
	}
	p.LastTradePrice = avgPrice
	return nil
}
