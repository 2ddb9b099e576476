package wallet

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestReserveAndDebit(t *testing.T) {
	w := NewMemoryWallet()
	w.Seed("u1", d("100"))

	if err := w.ReserveAndDebit(context.Background(), "u1", d("40")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !w.Balance("u1").Equal(d("60")) {
		t.Errorf("expected balance=60, got %s", w.Balance("u1"))
	}
}

func TestReserveAndDebit_InsufficientFunds(t *testing.T) {
	w := NewMemoryWallet()
	w.Seed("u1", d("10"))

	if err := w.ReserveAndDebit(context.Background(), "u1", d("10.00000001")); err != ErrInsufficientFunds {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if !w.Balance("u1").Equal(d("10")) {
		t.Errorf("rejected debit must not change balance, got %s", w.Balance("u1"))
	}
}

func TestCreditAndRefund(t *testing.T) {
	w := NewMemoryWallet()

	if err := w.Credit(context.Background(), "u1", d("25.5")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.Refund(context.Background(), "u1", d("4.5")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !w.Balance("u1").Equal(d("30")) {
		t.Errorf("expected balance=30, got %s", w.Balance("u1"))
	}
}

func TestUnlimited_ApprovesEverything(t *testing.T) {
	var w Unlimited
	if err := w.ReserveAndDebit(context.Background(), "u1", d("1000000")); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
