// Package wallet is the boundary to the external currency ledger. The
// engine treats the debit as a prepare step: it must succeed before the
// token-side commit, and a commit failure afterwards is compensated with
// a refund.
package wallet

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"
)

// ErrInsufficientFunds is returned when a debit exceeds the user's
// currency balance.
var ErrInsufficientFunds = errors.New("wallet: insufficient funds")

// Wallet is the currency-ledger collaborator.
type Wallet interface {
	// ReserveAndDebit atomically checks and debits amount from the user.
	ReserveAndDebit(ctx context.Context, userID string, amount decimal.Decimal) error

	// Credit pays proceeds to the user.
	Credit(ctx context.Context, userID string, amount decimal.Decimal) error

	// Refund compensates a debit whose trade failed to commit.
	Refund(ctx context.Context, userID string, amount decimal.Decimal) error
}

// MemoryWallet implements Wallet with in-memory balances. Used for testing
// and development; production deployments point the engine at the real
// currency-ledger service instead.
type MemoryWallet struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
}

// NewMemoryWallet creates an empty in-memory wallet.
func NewMemoryWallet() *MemoryWallet {
	return &MemoryWallet{balances: make(map[string]decimal.Decimal)}
}

// Seed sets a user's starting balance.
func (w *MemoryWallet) Seed(userID string, amount decimal.Decimal) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balances[userID] = amount
}

// Balance returns the user's current balance.
func (w *MemoryWallet) Balance(userID string) decimal.Decimal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balances[userID]
}

func (w *MemoryWallet) ReserveAndDebit(_ context.Context, userID string, amount decimal.Decimal) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	bal := w.balances[userID]
	if amount.GreaterThan(bal) {
		return ErrInsufficientFunds
	}
	w.balances[userID] = bal.Sub(amount)
	return nil
}

func (w *MemoryWallet) Credit(_ context.Context, userID string, amount decimal.Decimal) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balances[userID] = w.balances[userID].Add(amount)
	return nil
}

func (w *MemoryWallet) Refund(ctx context.Context, userID string, amount decimal.Decimal) error {
	return w.Credit(ctx, userID, amount)
}

// Unlimited is a Wallet that approves every debit. Useful when the
// deployment handles currency entirely outside this service.
type Unlimited struct{}

func (Unlimited) ReserveAndDebit(context.Context, string, decimal.Decimal) error { return nil }
func (Unlimited) Credit(context.Context, string, decimal.Decimal) error         { return nil }
func (Unlimited) Refund(context.Context, string, decimal.Decimal) error         { return nil }
