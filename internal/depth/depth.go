// Package depth builds orderbook-style quote views from the bonding curve.
//
// There is no real orderbook (no resting limit orders). Each side of the
// book is a sequence of hypothetical fixed-size fills replayed against the
// curve: asks walk supply upward through successive buys, bids walk it
// downward through successive sells. Tier 0 is nearest the current price.
// Each tier's average price covers that tier only, not the cumulative walk.
package depth

import (
	"github.com/shopspring/decimal"

	"github.com/fameforge/token-market/internal/curve"
)

// Tier is one depth row: the cost of trading Amount units starting from
// the supply the walk has reached, and the marginal price afterwards.
type Tier struct {
	Amount   decimal.Decimal `json:"amount"`
	AvgPrice decimal.Decimal `json:"avg_price"`
	NewPrice decimal.Decimal `json:"new_price"`
}

// Book is a depth quote computed from a single supply snapshot.
type Book struct {
	CurrentPrice  decimal.Decimal `json:"current_price"`
	CurrentSupply decimal.Decimal `json:"current_supply"`
	Asks          []Tier          `json:"asks"`
	Bids          []Tier          `json:"bids"`
}

// Quote builds a depth book of up to levels tiers per side, each of
// tierSize units, from the given supply snapshot. The caller must pass one
// consistent supply value; Quote never re-reads state mid-walk. The bid
// side truncates once another full tier would take supply negative — an
// empty bid side is valid at zero supply.
func Quote(c *curve.Curve, supply decimal.Decimal, levels int, tierSize decimal.Decimal) (*Book, error) {
	price, err := c.Price(supply)
	if err != nil {
		return nil, err
	}
	if tierSize.LessThanOrEqual(decimal.Zero) {
		return nil, curve.ErrInvalidAmount
	}
	if levels < 0 {
		return nil, curve.ErrInvalidAmount
	}

	book := &Book{
		CurrentPrice:  price,
		CurrentSupply: supply,
		Asks:          make([]Tier, 0, levels),
		Bids:          make([]Tier, 0, levels),
	}

	s := supply
	for i := 0; i < levels; i++ {
		_, newSupply, avg, err := c.BuyCost(s, tierSize)
		if err != nil {
			return nil, err
		}
		newPrice, err := c.Price(newSupply)
		if err != nil {
			return nil, err
		}
		book.Asks = append(book.Asks, Tier{Amount: tierSize, AvgPrice: avg, NewPrice: newPrice})
		s = newSupply
	}

	s = supply
	for i := 0; i < levels; i++ {
		if tierSize.GreaterThan(s) {
			break
		}
		_, newSupply, avg, err := c.SellProceeds(s, tierSize)
		if err != nil {
			return nil, err
		}
		newPrice, err := c.Price(newSupply)
		if err != nil {
			return nil, err
		}
		book.Bids = append(book.Bids, Tier{Amount: tierSize, AvgPrice: avg, NewPrice: newPrice})
		s = newSupply
	}

	return book, nil
}
