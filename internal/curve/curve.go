// Package curve implements the linear bonding curve that prices every
// influencer token:
//
//	p(s) = base + slope*s
//
// A trade of size a is filled at the average price over the supply interval
// it crosses, which for a linear curve has the closed form
//
//	avg = base + slope*(2s ± a)/2
//
// (+a for buys walking supply up, −a for sells walking it down). The total
// cost is avg*a, the integral of p over the interval.
//
// All monetary values use shopspring/decimal — never float64 for money.
// Every operation here is exact decimal arithmetic (add, mul, halving), so
// replaying the trade ledger reproduces prices bit-for-bit.
package curve

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidParams is returned when base or slope is not positive.
	ErrInvalidParams = errors.New("curve: base price and slope must be positive")

	// ErrInvalidState is returned when supply is negative.
	ErrInvalidState = errors.New("curve: supply must be non-negative")

	// ErrInvalidAmount is returned when a trade amount is not positive.
	ErrInvalidAmount = errors.New("curve: amount must be positive")

	// ErrInsufficientSupply is returned when a sell would take supply
	// below zero.
	ErrInsufficientSupply = errors.New("curve: cannot sell more than circulating supply")
)

var (
	two = decimal.NewFromInt(2)
	// half is used for the interval midpoint: multiplying by 0.5 is exact
	// decimal arithmetic, unlike Div which rounds at DivisionPrecision.
	half = decimal.New(5, -1)
)

// Curve is a stateless pricing model — supply is passed as an argument,
// never stored.
type Curve struct {
	base  decimal.Decimal
	slope decimal.Decimal
}

// New creates a curve with the given intercept and slope, both strictly
// positive.
func New(base, slope decimal.Decimal) (*Curve, error) {
	if base.LessThanOrEqual(decimal.Zero) || slope.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidParams
	}
	return &Curve{base: base, slope: slope}, nil
}

// Base returns the curve intercept, the price at zero supply.
func (c *Curve) Base() decimal.Decimal { return c.base }

// Slope returns the curve slope.
func (c *Curve) Slope() decimal.Decimal { return c.slope }

// Price returns the marginal price at the given supply.
func (c *Curve) Price(supply decimal.Decimal) (decimal.Decimal, error) {
	if supply.IsNegative() {
		return decimal.Decimal{}, ErrInvalidState
	}
	return c.base.Add(c.slope.Mul(supply)), nil
}

// BuyCost prices a buy of amount units starting at supply. It returns the
// total cost over [supply, supply+amount], the new supply, and the average
// price per unit.
func (c *Curve) BuyCost(supply, amount decimal.Decimal) (total, newSupply, avgPrice decimal.Decimal, err error) {
	if supply.IsNegative() {
		return total, newSupply, avgPrice, ErrInvalidState
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return total, newSupply, avgPrice, ErrInvalidAmount
	}
	// avg = base + slope*(2s + a)/2
	avgPrice = c.base.Add(c.slope.Mul(two.Mul(supply).Add(amount)).Mul(half))
	total = avgPrice.Mul(amount)
	newSupply = supply.Add(amount)
	return total, newSupply, avgPrice, nil
}

// SellProceeds prices a sell of amount units starting at supply. It returns
// the total proceeds over [supply-amount, supply], the new supply, and the
// average price per unit. Supply can never go negative.
func (c *Curve) SellProceeds(supply, amount decimal.Decimal) (total, newSupply, avgPrice decimal.Decimal, err error) {
	if supply.IsNegative() {
		return total, newSupply, avgPrice, ErrInvalidState
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return total, newSupply, avgPrice, ErrInvalidAmount
	}
	if amount.GreaterThan(supply) {
		return total, newSupply, avgPrice, ErrInsufficientSupply
	}
	// avg = base + slope*(2s - a)/2, the same integral taken downward.
	avgPrice = c.base.Add(c.slope.Mul(two.Mul(supply).Sub(amount)).Mul(half))
	total = avgPrice.Mul(amount)
	newSupply = supply.Sub(amount)
	return total, newSupply, avgPrice, nil
}
