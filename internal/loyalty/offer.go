package loyalty

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/loyalty-rewards/internal/pkg/logger"
)

// CouponRequest asks the commerce platform for a one-time discount. Tier is
// the already-resolved level; issuers must not recompute breakpoints.
type CouponRequest struct {
	CustomerID string
	Name       string
	Phone      string
	TotalSpent float64
	Tier       Tier
}

// Coupon is an issued discount code.
type Coupon struct {
	Code            string    `json:"code"`
	DiscountPercent int       `json:"discount_percent"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// CouponIssuer creates discount codes on the commerce platform.
type CouponIssuer interface {
	CreateCoupon(ctx context.Context, req CouponRequest) (*Coupon, error)
}

// SendLedger gates offers to one per customer.
type SendLedger interface {
	IsEligible(customerID string) bool
	RecordSent(ctx context.Context, customerID string, now time.Time) error
}

// Offer is a generated discount message plus its backing coupon.
type Offer struct {
	CustomerID      string    `json:"customer_id"`
	Text            string    `json:"text"`
	DiscountPercent int       `json:"discount_percent"`
	TierLabel       string    `json:"tier"`
	CouponCode      string    `json:"coupon_code"`
	DiscountURL     string    `json:"discount_url"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// OfferGenerator decides whether a customer gets an offer and produces it.
type OfferGenerator struct {
	tiers    Tiers
	ledger   SendLedger
	coupons  CouponIssuer
	renderer *MessageRenderer
	shopURL  string
	now      func() time.Time
}

// NewOfferGenerator wires the generator. shopURL is the storefront base used
// for discount links.
func NewOfferGenerator(tiers Tiers, ledger SendLedger, coupons CouponIssuer, renderer *MessageRenderer, shopURL string) *OfferGenerator {
	return &OfferGenerator{
		tiers:    tiers,
		ledger:   ledger,
		coupons:  coupons,
		renderer: renderer,
		shopURL:  strings.TrimRight(shopURL, "/"),
		now:      time.Now,
	}
}

// SetClock overrides the time source used for ledger timestamps.
func (g *OfferGenerator) SetClock(now func() time.Time) { g.now = now }

// Generate returns an offer for c, or nil when the customer already received
// one, does not qualify, or the coupon could not be created. A successful
// call records exactly one ledger entry; every other path records none.
// Ledger persistence failures are logged and do not void the offer.
func (g *OfferGenerator) Generate(ctx context.Context, c Customer) *Offer {
	tier, qualifies := g.tiers.Lookup(c.TotalSpent)

	if !g.ledger.IsEligible(c.ID) {
		logger.Info("offer already sent", "customer_id", c.ID)
		return nil
	}
	if !qualifies {
		logger.Info("no tier reached", "customer_id", c.ID, "total_spent", fmt.Sprintf("%.2f", c.TotalSpent))
		return nil
	}

	coupon, err := g.coupons.CreateCoupon(ctx, CouponRequest{
		CustomerID: c.ID,
		Name:       c.Name,
		Phone:      c.Phone,
		TotalSpent: c.TotalSpent,
		Tier:       tier,
	})
	if err != nil {
		logger.Error("coupon creation failed, customer stays eligible", "customer_id", c.ID, "error", err)
		return nil
	}

	discountURL := fmt.Sprintf("%s/discount/%s", g.shopURL, coupon.Code)
	text, err := g.renderer.Render(c, tier, coupon, discountURL)
	if err != nil {
		logger.Error("offer message failed to render", "customer_id", c.ID, "coupon_code", coupon.Code, "error", err)
		return nil
	}

	if err := g.ledger.RecordSent(ctx, c.ID, g.now()); err != nil {
		logger.Error("ledger not persisted, a duplicate offer is possible after restart", "customer_id", c.ID, "error", err)
	}

	logger.Info("offer generated", "customer_id", c.ID, "tier", tier.Label(), "discount", coupon.DiscountPercent, "coupon_code", coupon.Code)
	return &Offer{
		CustomerID:      c.ID,
		Text:            text,
		DiscountPercent: coupon.DiscountPercent,
		TierLabel:       tier.Label(),
		CouponCode:      coupon.Code,
		DiscountURL:     discountURL,
		ExpiresAt:       coupon.ExpiresAt,
	}
}
