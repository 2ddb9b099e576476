package curve

import (
	"testing"

	"github.com/shopspring/decimal"
)

// d is a test helper for creating decimals from strings, so test inputs
// stay exact.
func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func mustCurve(t *testing.T, base, slope string) *Curve {
	t.Helper()
	c, err := New(d(base), d(slope))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return c
}

// --- Constructor tests ---

func TestNew_Valid(t *testing.T) {
	c := mustCurve(t, "1.0", "0.0025")
	if !c.Base().Equal(d("1.0")) {
		t.Errorf("expected base=1.0, got %s", c.Base())
	}
	if !c.Slope().Equal(d("0.0025")) {
		t.Errorf("expected slope=0.0025, got %s", c.Slope())
	}
}

func TestNew_RejectsNonPositiveParams(t *testing.T) {
	cases := []struct{ base, slope string }{
		{"0", "0.0025"},
		{"-1", "0.0025"},
		{"1.0", "0"},
		{"1.0", "-0.01"},
	}
	for _, tt := range cases {
		if _, err := New(d(tt.base), d(tt.slope)); err != ErrInvalidParams {
			t.Errorf("expected ErrInvalidParams for base=%s slope=%s, got %v",
				tt.base, tt.slope, err)
		}
	}
}

// --- Price tests ---

func TestPrice_AtZeroSupplyIsBase(t *testing.T) {
	c := mustCurve(t, "1.0", "0.01")
	p, err := c.Price(decimal.Zero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.Equal(d("1.0")) {
		t.Errorf("expected price(0)=base, got %s", p)
	}
}

func TestPrice_NonDecreasingInSupply(t *testing.T) {
	c := mustCurve(t, "1.0", "0.01")
	supplies := []string{"0", "0.5", "1", "10", "10.000001", "1000", "1000000"}

	prev := decimal.Zero
	for i, s := range supplies {
		p, err := c.Price(d(s))
		if err != nil {
			t.Fatalf("unexpected error at supply=%s: %v", s, err)
		}
		if i > 0 && p.LessThan(prev) {
			t.Errorf("price decreased: supply=%s price=%s prev=%s", s, p, prev)
		}
		prev = p
	}
}

func TestPrice_NegativeSupply(t *testing.T) {
	c := mustCurve(t, "1.0", "0.01")
	if _, err := c.Price(d("-1")); err != ErrInvalidState {
		t.Errorf("expected ErrInvalidState for negative supply, got %v", err)
	}
}

// --- Buy cost tests ---

func TestBuyCost_ConcreteScenario(t *testing.T) {
	// b=1.0, m=0.01, supply=0. Buy 10:
	// total = 10*1 + 0.01*(10*0 + 100/2) = 10.5, avg = 1.05.
	c := mustCurve(t, "1.0", "0.01")

	total, newSupply, avg, err := c.BuyCost(d("0"), d("10"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !total.Equal(d("10.5")) {
		t.Errorf("expected total=10.5, got %s", total)
	}
	if !avg.Equal(d("1.05")) {
		t.Errorf("expected avg=1.05, got %s", avg)
	}
	if !newSupply.Equal(d("10")) {
		t.Errorf("expected newSupply=10, got %s", newSupply)
	}

	// Buy 10 more from supply=10:
	// total = 10*1 + 0.01*(10*10 + 100/2) = 15.0, avg = 1.5.
	total, newSupply, avg, err = c.BuyCost(d("10"), d("10"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !total.Equal(d("15")) {
		t.Errorf("expected total=15, got %s", total)
	}
	if !avg.Equal(d("1.5")) {
		t.Errorf("expected avg=1.5, got %s", avg)
	}
	if !newSupply.Equal(d("20")) {
		t.Errorf("expected newSupply=20, got %s", newSupply)
	}
}

func TestBuyCost_InvalidAmount(t *testing.T) {
	c := mustCurve(t, "1.0", "0.01")
	for _, amt := range []string{"0", "-5"} {
		if _, _, _, err := c.BuyCost(d("10"), d(amt)); err != ErrInvalidAmount {
			t.Errorf("expected ErrInvalidAmount for amount=%s, got %v", amt, err)
		}
	}
}

// --- Sell proceeds tests ---

func TestSellProceeds_MirrorsBuy(t *testing.T) {
	// Buying then immediately selling the same amount walks the same
	// supply interval, so proceeds must equal cost exactly.
	c := mustCurve(t, "1.0", "0.0025")

	cases := []struct{ supply, amount string }{
		{"0", "10"},
		{"20", "5"},
		{"123.456", "7.89"},
		{"1000000", "0.00000001"},
	}
	for _, tt := range cases {
		cost, mid, _, err := c.BuyCost(d(tt.supply), d(tt.amount))
		if err != nil {
			t.Fatalf("buy failed: %v", err)
		}
		proceeds, back, _, err := c.SellProceeds(mid, d(tt.amount))
		if err != nil {
			t.Fatalf("sell failed: %v", err)
		}
		if !proceeds.Equal(cost) {
			t.Errorf("round trip not reversible: supply=%s amount=%s cost=%s proceeds=%s",
				tt.supply, tt.amount, cost, proceeds)
		}
		if !back.Equal(d(tt.supply)) {
			t.Errorf("supply not restored: expected %s, got %s", tt.supply, back)
		}
	}
}

func TestSellProceeds_ExceedsSupply(t *testing.T) {
	c := mustCurve(t, "1.0", "0.01")
	if _, _, _, err := c.SellProceeds(d("5"), d("6")); err != ErrInsufficientSupply {
		t.Errorf("expected ErrInsufficientSupply, got %v", err)
	}
}

func TestSellProceeds_EntireSupply(t *testing.T) {
	c := mustCurve(t, "1.0", "0.01")
	total, newSupply, avg, err := c.SellProceeds(d("10"), d("10"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// avg = 1 + 0.01*(20-10)/2 = 1.05, total = 10.5 — mirrors the first buy.
	if !avg.Equal(d("1.05")) {
		t.Errorf("expected avg=1.05, got %s", avg)
	}
	if !total.Equal(d("10.5")) {
		t.Errorf("expected total=10.5, got %s", total)
	}
	if !newSupply.IsZero() {
		t.Errorf("expected newSupply=0, got %s", newSupply)
	}
}

// --- Determinism ---

func TestPricing_Reproducible(t *testing.T) {
	// The same rational inputs must produce bit-identical outputs, or
	// ledger replay would drift.
	c := mustCurve(t, "1.0", "0.0025")

	t1, s1, a1, _ := c.BuyCost(d("333.333333"), d("7.777777"))
	t2, s2, a2, _ := c.BuyCost(d("333.333333"), d("7.777777"))

	if t1.String() != t2.String() || s1.String() != s2.String() || a1.String() != a2.String() {
		t.Errorf("pricing not reproducible: (%s,%s,%s) vs (%s,%s,%s)",
			t1, s1, a1, t2, s2, a2)
	}
}
