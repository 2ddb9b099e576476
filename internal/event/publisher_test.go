package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fameforge/token-market/internal/model"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestNewTradeExecuted(t *testing.T) {
	trade := &model.Trade{
		Seq:          7,
		UID:          "uid-7",
		TokenID:      "alice",
		UserID:       "u1",
		Side:         model.SideBuy,
		Amount:       d("10"),
		Price:        d("1.05"),
		SupplyBefore: d("0"),
		SupplyAfter:  d("10"),
		Timestamp:    time.Now().UTC(),
	}

	ev := NewTradeExecuted(trade, d("1.1"))
	if ev.Type != "trade_executed" {
		t.Errorf("expected type trade_executed, got %q", ev.Type)
	}
	if ev.TradeID != 7 || ev.TradeUID != "uid-7" {
		t.Errorf("expected trade identity carried through, got %d %q", ev.TradeID, ev.TradeUID)
	}
	if !ev.Notional.Equal(d("10.5")) {
		t.Errorf("expected notional 10.5, got %s", ev.Notional)
	}
	if ev.BigBuy {
		t.Error("10.5 notional must not flag big_buy")
	}
}

func TestNewTradeExecuted_BigBuy(t *testing.T) {
	trade := &model.Trade{
		Side:   model.SideBuy,
		Amount: d("500"),
		Price:  d("2"),
	}
	if ev := NewTradeExecuted(trade, d("2.5")); !ev.BigBuy {
		t.Error("1000 notional buy must flag big_buy")
	}

	// Sells never flag, whatever the notional.
	trade.Side = model.SideSell
	if ev := NewTradeExecuted(trade, d("2.5")); ev.BigBuy {
		t.Error("sells must never flag big_buy")
	}
}

func TestTradeExecuted_WireFormat(t *testing.T) {
	ev := NewTradeExecuted(&model.Trade{
		Seq: 1, UID: "uid-1", TokenID: "alice", UserID: "u1",
		Side: model.SideBuy, Amount: d("1"), Price: d("1.005"),
		SupplyAfter: d("1"),
	}, d("1.01"))

	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"type", "trade_id", "trade_uid", "token_id", "user_id", "side", "amount", "price", "new_price", "new_supply", "notional", "big_buy"} {
		if _, ok := m[key]; !ok {
			t.Errorf("missing wire field %q", key)
		}
	}
}
