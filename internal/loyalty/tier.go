// Package loyalty holds the reward decision logic: spend tiers, spend
// aggregation, customer grouping and offer generation.
package loyalty

import (
	"fmt"
	"strconv"
)

// Tier is one loyalty level: customers whose cumulative spend reaches
// Threshold earn DiscountPercent off their next order.
type Tier struct {
	Threshold       float64 `json:"threshold"`
	DiscountPercent int     `json:"discount_percent"`
}

// Label is the threshold without decimals ("500", "2000"). It appears in the
// coupon code and the message body.
func (t Tier) Label() string {
	return strconv.FormatFloat(t.Threshold, 'f', -1, 64)
}

// Tiers is the authoritative threshold table, ascending by Threshold.
type Tiers []Tier

// DefaultTiers is the stock program: 500→5%, 1000→10%, 2000→15%, 5000→20%.
var DefaultTiers = Tiers{
	{Threshold: 500, DiscountPercent: 5},
	{Threshold: 1000, DiscountPercent: 10},
	{Threshold: 2000, DiscountPercent: 15},
	{Threshold: 5000, DiscountPercent: 20},
}

// Validate enforces a monotonic step function: thresholds and discounts both
// strictly increasing, discounts within 1..100.
func (ts Tiers) Validate() error {
	if len(ts) == 0 {
		return fmt.Errorf("tiers: table is empty")
	}
	for i, t := range ts {
		if t.Threshold <= 0 {
			return fmt.Errorf("tiers[%d]: threshold %v must be positive", i, t.Threshold)
		}
		if t.DiscountPercent < 1 || t.DiscountPercent > 100 {
			return fmt.Errorf("tiers[%d]: discount %d%% out of range 1-100", i, t.DiscountPercent)
		}
		if i == 0 {
			continue
		}
		prev := ts[i-1]
		if t.Threshold <= prev.Threshold {
			return fmt.Errorf("tiers[%d]: threshold %v not above %v", i, t.Threshold, prev.Threshold)
		}
		if t.DiscountPercent <= prev.DiscountPercent {
			return fmt.Errorf("tiers[%d]: discount %d%% not above %d%%", i, t.DiscountPercent, prev.DiscountPercent)
		}
	}
	return nil
}

// Lookup returns the highest tier whose threshold is <= total.
func (ts Tiers) Lookup(total float64) (Tier, bool) {
	for i := len(ts) - 1; i >= 0; i-- {
		if total >= ts[i].Threshold {
			return ts[i], true
		}
	}
	return Tier{}, false
}

// Resolve maps total spend to (discount percent, tier label). Spend below the
// first threshold resolves to (0, "0"), meaning no offer.
func (ts Tiers) Resolve(total float64) (int, string) {
	t, ok := ts.Lookup(total)
	if !ok {
		return 0, "0"
	}
	return t.DiscountPercent, t.Label()
}
