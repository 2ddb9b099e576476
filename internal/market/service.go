package market

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/fameforge/token-market/internal/curve"
	"github.com/fameforge/token-market/internal/metrics"
	"github.com/fameforge/token-market/internal/model"
	"github.com/fameforge/token-market/internal/store"
	"github.com/fameforge/token-market/internal/wallet"
)

// Depth-quote defaults mirror the original market UI: six rows per side.
const (
	defaultLevels = 6
	maxLevels     = 32
	defaultLimit  = 30
	maxLimit      = 200
)

var defaultTierSize = decimal.NewFromInt(10)

// Service exposes the engine over HTTP. Handlers only translate between
// JSON and engine calls; every business rule lives in the engine.
type Service struct {
	engine *Engine

	// Curve defaults applied when token creation omits parameters.
	defaultBase  decimal.Decimal
	defaultSlope decimal.Decimal
}

// NewService creates the HTTP service with the given curve defaults.
func NewService(engine *Engine, defaultBase, defaultSlope decimal.Decimal) *Service {
	return &Service{
		engine:       engine,
		defaultBase:  defaultBase,
		defaultSlope: defaultSlope,
	}
}

// --- Request/Response types ---

// CreateTokenRequest is the JSON body for POST /tokens.
type CreateTokenRequest struct {
	TokenID   string          `json:"token_id"`
	BasePrice decimal.Decimal `json:"base_price"` // 0 → service default
	Slope     decimal.Decimal `json:"slope"`      // 0 → service default
}

// TradeRequest is the JSON body for POST /trade.
type TradeRequest struct {
	TokenID string          `json:"token_id"`
	Side    string          `json:"side"` // "buy" or "sell"
	Amount  decimal.Decimal `json:"amount"`
}

// TradeResponse is the JSON body returned from POST /trade.
type TradeResponse struct {
	TradeID   int64           `json:"trade_id"`
	TradeUID  string          `json:"trade_uid"`
	TokenID   string          `json:"token_id"`
	Side      model.Side      `json:"side"`
	Amount    decimal.Decimal `json:"amount"`
	Price     decimal.Decimal `json:"price"`
	NewPrice  decimal.Decimal `json:"new_price"`
	NewSupply decimal.Decimal `json:"new_supply"`
}

// TapeEntry is one row of GET /tokens/{tokenID}/tape.
type TapeEntry struct {
	ID        int64           `json:"id"`
	UserID    string          `json:"user_id"`
	Side      model.Side      `json:"side"`
	Amount    decimal.Decimal `json:"amount"`
	Price     decimal.Decimal `json:"price"`
	Timestamp string          `json:"timestamp"`
}

// PositionResponse is the JSON body of GET /tokens/{tokenID}/position.
// AvgBuyPrice is null while the position is flat: a cost basis is only
// meaningful over units actually held.
type PositionResponse struct {
	UserID         string           `json:"user_id"`
	TokenID        string           `json:"token_id"`
	Balance        decimal.Decimal  `json:"balance"`
	AvgBuyPrice    *decimal.Decimal `json:"avg_buy_price"`
	LastTradePrice decimal.Decimal  `json:"last_trade_price"`
	Trades7d       int              `json:"trades_7d"`
}

// OrderbookResponse is the JSON body of GET /tokens/{tokenID}/orderbook.
type OrderbookResponse struct {
	TokenID       string          `json:"token_id"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	CurrentSupply decimal.Decimal `json:"current_supply"`
	Asks          any             `json:"asks"`
	Bids          any             `json:"bids"`
}

// --- Auth boundary ---

type ctxKey int

const userKey ctxKey = 0

// RequireUser is the boundary to the external auth collaborator: it expects
// the authenticated user id in X-User-ID (placed there by the auth layer in
// front of this service) and rejects requests without one.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			writeError(w, "unauthenticated", "missing caller identity", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, userID)))
	})
}

func userFrom(r *http.Request) string {
	userID, _ := r.Context().Value(userKey).(string)
	return userID
}

// --- HTTP Handlers ---

// CreateToken handles POST /api/v1/tokens.
func (s *Service) CreateToken(w http.ResponseWriter, r *http.Request) {
	var req CreateTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid_request", "invalid request body", http.StatusBadRequest)
		return
	}

	base := req.BasePrice
	if base.IsZero() {
		base = s.defaultBase
	}
	slope := req.Slope
	if slope.IsZero() {
		slope = s.defaultSlope
	}

	tok, err := s.engine.CreateToken(r.Context(), req.TokenID, base, slope)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, tok)
}

// ListTokens handles GET /api/v1/tokens.
func (s *Service) ListTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := s.engine.Tokens(r.Context())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if tokens == nil {
		tokens = []model.Token{}
	}
	writeJSON(w, http.StatusOK, tokens)
}

// GetToken handles GET /api/v1/tokens/{tokenID}.
func (s *Service) GetToken(w http.ResponseWriter, r *http.Request) {
	tok, err := s.engine.Token(r.Context(), chi.URLParam(r, "tokenID"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

// GetOrderbook handles GET /api/v1/tokens/{tokenID}/orderbook.
// Depth is computed from the bonding curve; there are no resting orders.
func (s *Service) GetOrderbook(w http.ResponseWriter, r *http.Request) {
	tokenID := chi.URLParam(r, "tokenID")

	levels := clampInt(queryInt(r, "levels", defaultLevels), 1, maxLevels)
	tierSize := defaultTierSize
	if raw := r.URL.Query().Get("tier"); raw != "" {
		d, err := decimal.NewFromString(raw)
		if err != nil || d.LessThanOrEqual(decimal.Zero) {
			writeError(w, "invalid_request", "tier must be a positive decimal", http.StatusBadRequest)
			return
		}
		tierSize = d
	}

	book, err := s.engine.Quote(r.Context(), tokenID, levels, tierSize)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, OrderbookResponse{
		TokenID:       tokenID,
		CurrentPrice:  book.CurrentPrice,
		CurrentSupply: book.CurrentSupply,
		Asks:          book.Asks,
		Bids:          book.Bids,
	})
}

// GetTape handles GET /api/v1/tokens/{tokenID}/tape.
func (s *Service) GetTape(w http.ResponseWriter, r *http.Request) {
	tokenID := chi.URLParam(r, "tokenID")
	limit := clampInt(queryInt(r, "limit", defaultLimit), 1, maxLimit)

	trades, err := s.engine.Tape(r.Context(), tokenID, limit)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	entries := make([]TapeEntry, 0, len(trades))
	for _, t := range trades {
		entries = append(entries, TapeEntry{
			ID:        t.Seq,
			UserID:    t.UserID,
			Side:      t.Side,
			Amount:    t.Amount,
			Price:     t.Price,
			Timestamp: t.Timestamp.UTC().Format(time.RFC3339Nano),
		})
	}
	writeJSON(w, http.StatusOK, entries)
}

// GetPosition handles GET /api/v1/tokens/{tokenID}/position for the
// authenticated user.
func (s *Service) GetPosition(w http.ResponseWriter, r *http.Request) {
	tokenID := chi.URLParam(r, "tokenID")

	view, err := s.engine.Position(r.Context(), userFrom(r), tokenID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	resp := PositionResponse{
		UserID:         view.UserID,
		TokenID:        view.TokenID,
		Balance:        view.Balance,
		LastTradePrice: view.LastTradePrice,
		Trades7d:       view.Trades7d,
	}
	if !view.Balance.IsZero() {
		avg := view.AvgBuyPrice
		resp.AvgBuyPrice = &avg
	}
	writeJSON(w, http.StatusOK, resp)
}

// ExecuteTrade handles POST /api/v1/trade.
func (s *Service) ExecuteTrade(w http.ResponseWriter, r *http.Request) {
	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid_request", "invalid request body", http.StatusBadRequest)
		return
	}
	if req.TokenID == "" {
		writeError(w, "invalid_request", "token_id is required", http.StatusBadRequest)
		return
	}

	res, err := s.engine.Execute(r.Context(), userFrom(r), req.TokenID, model.Side(req.Side), req.Amount)
	if err != nil {
		kind, message, status := mapError(err)
		if status != http.StatusInternalServerError {
			metrics.TradeRejections.WithLabelValues(kind).Inc()
		}
		writeError(w, kind, message, status)
		return
	}

	writeJSON(w, http.StatusCreated, TradeResponse{
		TradeID:   res.Trade.Seq,
		TradeUID:  res.Trade.UID,
		TokenID:   res.Trade.TokenID,
		Side:      res.Trade.Side,
		Amount:    res.Trade.Amount,
		Price:     res.Trade.Price,
		NewPrice:  res.NewPrice,
		NewSupply: res.NewSupply,
	})
}

// --- Error mapping ---

// mapError translates engine/store errors onto the structured error
// contract: validation 400, unknown resources 404, business rules 409,
// anything else a persistence fault 500.
func mapError(err error) (kind, message string, status int) {
	switch {
	case errors.Is(err, ErrInvalidSide),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, curve.ErrInvalidAmount),
		errors.Is(err, curve.ErrInvalidParams):
		return "invalid_amount", err.Error(), http.StatusBadRequest
	case errors.Is(err, store.ErrTokenNotFound):
		return "not_found", "token not found", http.StatusNotFound
	case errors.Is(err, store.ErrPositionNotFound):
		return "not_found", "position not found", http.StatusNotFound
	case errors.Is(err, store.ErrTokenExists):
		return "token_exists", err.Error(), http.StatusConflict
	case errors.Is(err, model.ErrInsufficientBalance),
		errors.Is(err, curve.ErrInsufficientSupply):
		return "insufficient_balance", err.Error(), http.StatusConflict
	case errors.Is(err, wallet.ErrInsufficientFunds):
		return "insufficient_funds", err.Error(), http.StatusConflict
	default:
		slog.Error("request failed", "err", err)
		return "persistence", "internal error", http.StatusInternalServerError
	}
}

func (s *Service) writeEngineError(w http.ResponseWriter, err error) {
	kind, message, status := mapError(err)
	writeError(w, kind, message, status)
}

// writeError writes the structured JSON error {kind, message}.
func writeError(w http.ResponseWriter, kind, message string, status int) {
	writeJSON(w, status, map[string]string{"kind": kind, "message": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func clampInt(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
