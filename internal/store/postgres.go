package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/fameforge/token-market/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
// Per-token trade sequences come from tokens.last_seq bumped inside the
// commit transaction, which keeps them gap-free and strictly increasing
// in commit order.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreateToken(ctx context.Context, t *model.Token) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO tokens (id, base_price, slope, supply, price, last_seq, created_at)
		 VALUES ($1, $2::NUMERIC, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, 0, $6)
		 ON CONFLICT (id) DO NOTHING`,
		t.ID, t.BasePrice.String(), t.Slope.String(),
		t.Supply.String(), t.Price.String(), t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create token %s: %w", t.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTokenExists
	}
	return nil
}

func (s *PostgresStore) GetToken(ctx context.Context, id string) (*model.Token, error) {
	return scanToken(s.pool.QueryRow(ctx,
		`SELECT id, base_price::TEXT, slope::TEXT, supply::TEXT, price::TEXT, created_at
		 FROM tokens WHERE id = $1`, id))
}

// GetTokenForUpdate is GetToken; PostgreSQL is the source of truth, so
// every read here already sees the last committed state.
func (s *PostgresStore) GetTokenForUpdate(ctx context.Context, id string) (*model.Token, error) {
	return s.GetToken(ctx, id)
}

func (s *PostgresStore) ListTokens(ctx context.Context) ([]model.Token, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, base_price::TEXT, slope::TEXT, supply::TEXT, price::TEXT, created_at
		 FROM tokens ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []model.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, *t)
	}
	return tokens, rows.Err()
}

// CommitTrade runs the whole commit in one transaction: the row lock taken
// by the last_seq bump doubles as a database-level guard behind the
// engine's per-token mutex.
func (s *PostgresStore) CommitTrade(ctx context.Context, t *model.Trade, newSupply, newPrice decimal.Decimal) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("commit trade: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var seq int64
	err = tx.QueryRow(ctx,
		`UPDATE tokens
		 SET supply = $2::NUMERIC, price = $3::NUMERIC, last_seq = last_seq + 1
		 WHERE id = $1
		 RETURNING last_seq`,
		t.TokenID, newSupply.String(), newPrice.String(),
	).Scan(&seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrTokenNotFound
	}
	if err != nil {
		return fmt.Errorf("commit trade: bump seq: %w", err)
	}
	t.Seq = seq

	if _, err := tx.Exec(ctx,
		`INSERT INTO trades (uid, token_id, seq, user_id, side, amount, price, supply_before, supply_after, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10)`,
		t.UID, t.TokenID, t.Seq, t.UserID, string(t.Side),
		t.Amount.String(), t.Price.String(),
		t.SupplyBefore.String(), t.SupplyAfter.String(), t.Timestamp,
	); err != nil {
		return fmt.Errorf("commit trade: append ledger: %w", err)
	}

	if err := applyPositionTx(ctx, tx, t); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit trade: %w", err)
	}
	return nil
}

// applyPositionTx reads the caller's position under a row lock, applies the
// fill with the shared model math, and writes it back.
func applyPositionTx(ctx context.Context, tx pgx.Tx, t *model.Trade) error {
	pos := model.Position{UserID: t.UserID, TokenID: t.TokenID}
	var balS, avgS, lastS string

	err := tx.QueryRow(ctx,
		`SELECT balance::TEXT, avg_buy_price::TEXT, last_trade_price::TEXT
		 FROM positions WHERE user_id = $1 AND token_id = $2 FOR UPDATE`,
		t.UserID, t.TokenID,
	).Scan(&balS, &avgS, &lastS)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// First trade on this token creates the position.
	case err != nil:
		return fmt.Errorf("commit trade: load position: %w", err)
	default:
		pos.Balance, _ = decimal.NewFromString(balS)
		pos.AvgBuyPrice, _ = decimal.NewFromString(avgS)
		pos.LastTradePrice, _ = decimal.NewFromString(lastS)
	}

	switch t.Side {
	case model.SideBuy:
		pos.ApplyBuy(t.Amount, t.Price)
	case model.SideSell:
		if err := pos.ApplySell(t.Amount, t.Price); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO positions (user_id, token_id, balance, avg_buy_price, last_trade_price)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC)
		 ON CONFLICT (user_id, token_id) DO UPDATE
		 SET balance = EXCLUDED.balance,
		     avg_buy_price = EXCLUDED.avg_buy_price,
		     last_trade_price = EXCLUDED.last_trade_price`,
		t.UserID, t.TokenID,
		pos.Balance.String(), pos.AvgBuyPrice.String(), pos.LastTradePrice.String(),
	); err != nil {
		return fmt.Errorf("commit trade: apply position: %w", err)
	}
	return nil
}

func (s *PostgresStore) Tape(ctx context.Context, tokenID string, limit int) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT uid, token_id, seq, user_id, side,
		        amount::TEXT, price::TEXT, supply_before::TEXT, supply_after::TEXT, timestamp
		 FROM trades WHERE token_id = $1 ORDER BY seq DESC LIMIT $2`,
		tokenID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []model.Trade
	for rows.Next() {
		var t model.Trade
		var side, amountS, priceS, beforeS, afterS string
		if err := rows.Scan(&t.UID, &t.TokenID, &t.Seq, &t.UserID, &side,
			&amountS, &priceS, &beforeS, &afterS, &t.Timestamp); err != nil {
			return nil, err
		}
		t.Side = model.Side(side)
		t.Amount, _ = decimal.NewFromString(amountS)
		t.Price, _ = decimal.NewFromString(priceS)
		t.SupplyBefore, _ = decimal.NewFromString(beforeS)
		t.SupplyAfter, _ = decimal.NewFromString(afterS)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (s *PostgresStore) CountTradesSince(ctx context.Context, tokenID, userID string, since time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM trades
		 WHERE token_id = $1 AND user_id = $2 AND timestamp >= $3`,
		tokenID, userID, since,
	).Scan(&n)
	return n, err
}

func (s *PostgresStore) GetPosition(ctx context.Context, userID, tokenID string) (*model.Position, error) {
	pos := model.Position{UserID: userID, TokenID: tokenID}
	var balS, avgS, lastS string

	err := s.pool.QueryRow(ctx,
		`SELECT balance::TEXT, avg_buy_price::TEXT, last_trade_price::TEXT
		 FROM positions WHERE user_id = $1 AND token_id = $2`,
		userID, tokenID,
	).Scan(&balS, &avgS, &lastS)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPositionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get position %s/%s: %w", userID, tokenID, err)
	}

	pos.Balance, _ = decimal.NewFromString(balS)
	pos.AvgBuyPrice, _ = decimal.NewFromString(avgS)
	pos.LastTradePrice, _ = decimal.NewFromString(lastS)
	return &pos, nil
}

// rowScanner abstracts pgx.Row/pgx.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (*model.Token, error) {
	var t model.Token
	var baseS, slopeS, supplyS, priceS string

	if err := row.Scan(&t.ID, &baseS, &slopeS, &supplyS, &priceS, &t.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	t.BasePrice, _ = decimal.NewFromString(baseS)
	t.Slope, _ = decimal.NewFromString(slopeS)
	t.Supply, _ = decimal.NewFromString(supplyS)
	t.Price, _ = decimal.NewFromString(priceS)
	return &t, nil
}
