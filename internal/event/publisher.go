// Package event carries executed-trade facts to external consumers
// (notifications, analytics) over Redis pub/sub. Emission happens only
// after the trade has committed; delivery is at-least-once, so consumers
// must be idempotent on the trade uid.
package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/fameforge/token-market/internal/model"
)

// DefaultChannel is the pub/sub channel trade facts are published on.
const DefaultChannel = "tokenmarket:events"

// bigBuyNotional is the buy notional at and above which the fact is
// flagged for the "big buy" notification.
var bigBuyNotional = decimal.NewFromInt(1000)

// TradeExecuted is the outbound fact for one committed trade.
type TradeExecuted struct {
	Type      string          `json:"type"`
	TradeID   int64           `json:"trade_id"`
	TradeUID  string          `json:"trade_uid"`
	TokenID   string          `json:"token_id"`
	UserID    string          `json:"user_id"`
	Side      model.Side      `json:"side"`
	Amount    decimal.Decimal `json:"amount"`
	Price     decimal.Decimal `json:"price"`
	NewPrice  decimal.Decimal `json:"new_price"`
	NewSupply decimal.Decimal `json:"new_supply"`
	Notional  decimal.Decimal `json:"notional"`
	BigBuy    bool            `json:"big_buy"`
}

// NewTradeExecuted builds the fact for a committed trade.
func NewTradeExecuted(t *model.Trade, newPrice decimal.Decimal) TradeExecuted {
	notional := t.Amount.Mul(t.Price)
	return TradeExecuted{
		Type:      "trade_executed",
		TradeID:   t.Seq,
		TradeUID:  t.UID,
		TokenID:   t.TokenID,
		UserID:    t.UserID,
		Side:      t.Side,
		Amount:    t.Amount,
		Price:     t.Price,
		NewPrice:  newPrice,
		NewSupply: t.SupplyAfter,
		Notional:  notional,
		BigBuy:    t.Side == model.SideBuy && notional.GreaterThanOrEqual(bigBuyNotional),
	}
}

// Publisher delivers trade facts to external consumers.
type Publisher interface {
	PublishTradeExecuted(ctx context.Context, ev TradeExecuted) error
}

// RedisPublisher publishes facts on a Redis pub/sub channel so other
// service instances and workers can fan them out.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
}

// NewRedisPublisher creates a publisher on the given channel; an empty
// channel selects DefaultChannel.
func NewRedisPublisher(rdb *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{rdb: rdb, channel: channel}
}

func (p *RedisPublisher) PublishTradeExecuted(ctx context.Context, ev TradeExecuted) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("event: marshal: %w", err)
	}
	if err := p.rdb.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("event: publish: %w", err)
	}
	return nil
}
