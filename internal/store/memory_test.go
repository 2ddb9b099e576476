package store

import (
	"context"
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

func seedToken(t *testing.T, ms *MemoryStore, id string) *model.Token {
	t.Helper()
	tok := &model.Token{
		ID:        id,
		BasePrice: d("1.0"),
		Slope:     d("0.01"),
		Supply:    decimal.Zero,
		Price:     d("1.0"),
		CreatedAt: time.Now().UTC(),
	}
	if err := ms.CreateToken(context.Background(), tok); err != nil {
		t.Fatalf("failed to seed token: %v", err)
	}
	return tok
}

func commit(t *testing.T, ms *MemoryStore, tokenID, userID string, side model.Side, amount, price, before, after string) *model.Trade {
	t.Helper()
	tr := &model.Trade{
		UID:          "uid-" + tokenID + "-" + userID + "-" + amount,
		TokenID:      tokenID,
		UserID:       userID,
		Side:         side,
		Amount:       d(amount),
		Price:        d(price),
		SupplyBefore: d(before),
		SupplyAfter:  d(after),
		Timestamp:    time.Now().UTC(),
	}
	newPrice := d("1.0").Add(d("0.01").Mul(d(after)))
	if err := ms.CommitTrade(context.Background(), tr, d(after), newPrice); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	return tr
}

func TestCreateToken_Duplicate(t *testing.T) {
	ms := NewMemoryStore()
	seedToken(t, ms, "alice")

	err := ms.CreateToken(context.Background(), &model.Token{ID: "alice"})
	if err != ErrTokenExists {
		t.Errorf("expected ErrTokenExists, got %v", err)
	}
}

func TestGetToken_NotFound(t *testing.T) {
	ms := NewMemoryStore()
	if _, err := ms.GetToken(context.Background(), "ghost"); err != ErrTokenNotFound {
		t.Errorf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestCommitTrade_SequencesAreGapFree(t *testing.T) {
	ms := NewMemoryStore()
	seedToken(t, ms, "alice")
	seedToken(t, ms, "bob")

	t1 := commit(t, ms, "alice", "u1", model.SideBuy, "10", "1.05", "0", "10")
	t2 := commit(t, ms, "alice", "u2", model.SideBuy, "10", "1.15", "10", "20")
	t3 := commit(t, ms, "bob", "u1", model.SideBuy, "5", "1.025", "0", "5")

	if t1.Seq != 1 || t2.Seq != 2 {
		t.Errorf("expected per-token seqs 1,2, got %d,%d", t1.Seq, t2.Seq)
	}
	if t3.Seq != 1 {
		t.Errorf("sequences must be per token: expected 1, got %d", t3.Seq)
	}
}

func TestCommitTrade_UpdatesSupplyAtomically(t *testing.T) {
	ms := NewMemoryStore()
	seedToken(t, ms, "alice")

	commit(t, ms, "alice", "u1", model.SideBuy, "10", "1.05", "0", "10")

	tok, err := ms.GetToken(context.Background(), "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tok.Supply.Equal(d("10")) {
		t.Errorf("expected supply=10, got %s", tok.Supply)
	}
	if !tok.Price.Equal(d("1.1")) {
		t.Errorf("expected price=1.1, got %s", tok.Price)
	}

	pos, err := ms.GetPosition(context.Background(), "u1", "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !pos.Balance.Equal(d("10")) || !pos.AvgBuyPrice.Equal(d("1.05")) {
		t.Errorf("position not applied with commit: balance=%s avg=%s",
			pos.Balance, pos.AvgBuyPrice)
	}
}

func TestCommitTrade_RejectedSellLeavesNothingBehind(t *testing.T) {
	ms := NewMemoryStore()
	seedToken(t, ms, "alice")
	commit(t, ms, "alice", "u1", model.SideBuy, "10", "1.05", "0", "10")

	tr := &model.Trade{
		UID:     "uid-oversell",
		TokenID: "alice", UserID: "u1", Side: model.SideSell,
		Amount: d("50"), Price: d("1.0"),
		SupplyBefore: d("10"), SupplyAfter: d("-40"),
		Timestamp: time.Now().UTC(),
	}
	err := ms.CommitTrade(context.Background(), tr, d("-40"), d("0.6"))
	if err != model.ErrInsufficientBalance {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	tok, _ := ms.GetToken(context.Background(), "alice")
	if !tok.Supply.Equal(d("10")) {
		t.Errorf("failed commit must not move supply, got %s", tok.Supply)
	}
	tape, _ := ms.Tape(context.Background(), "alice", 10)
	if len(tape) != 1 {
		t.Errorf("failed commit must not append to ledger, got %d trades", len(tape))
	}
}

func TestTape_MostRecentFirstWithLimit(t *testing.T) {
	ms := NewMemoryStore()
	seedToken(t, ms, "alice")

	commit(t, ms, "alice", "u1", model.SideBuy, "1", "1.005", "0", "1")
	commit(t, ms, "alice", "u1", model.SideBuy, "2", "1.02", "1", "3")
	commit(t, ms, "alice", "u2", model.SideBuy, "3", "1.045", "3", "6")

	tape, err := ms.Tape(context.Background(), "alice", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tape) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(tape))
	}
	if tape[0].Seq != 3 || tape[1].Seq != 2 {
		t.Errorf("expected seqs [3,2], got [%d,%d]", tape[0].Seq, tape[1].Seq)
	}
}

func TestCountTradesSince_FiltersUserAndWindow(t *testing.T) {
	ms := NewMemoryStore()
	seedToken(t, ms, "alice")

	old := &model.Trade{
		UID: "uid-old", TokenID: "alice", UserID: "u1", Side: model.SideBuy,
		Amount: d("1"), Price: d("1.0"),
		SupplyBefore: d("0"), SupplyAfter: d("1"),
		Timestamp: time.Now().UTC().Add(-30 * 24 * time.Hour),
	}
	if err := ms.CommitTrade(context.Background(), old, d("1"), d("1.01")); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	commit(t, ms, "alice", "u1", model.SideBuy, "2", "1.02", "1", "3")
	commit(t, ms, "alice", "u2", model.SideBuy, "3", "1.045", "3", "6")

	since := time.Now().UTC().Add(-7 * 24 * time.Hour)
	n, err := ms.CountTradesSince(context.Background(), "alice", "u1", since)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 recent trade for u1, got %d", n)
	}
}

func TestGetPosition_NotFound(t *testing.T) {
	ms := NewMemoryStore()
	seedToken(t, ms, "alice")

	if _, err := ms.GetPosition(context.Background(), "nobody", "alice"); err != ErrPositionNotFound {
		t.Errorf("expected ErrPositionNotFound, got %v", err)
	}
}
