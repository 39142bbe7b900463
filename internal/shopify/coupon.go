package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/ignite/loyalty-rewards/internal/loyalty"
	"github.com/ignite/loyalty-rewards/internal/pkg/logger"
)

// CreateCoupon creates a single-use percentage price rule for the request's
// tier and attaches a discount code to it. The tier is taken as resolved.
func (c *Client) CreateCoupon(ctx context.Context, req loyalty.CouponRequest) (*loyalty.Coupon, error) {
	discount := req.Tier.DiscountPercent
	if discount <= 0 {
		return nil, fmt.Errorf("no discount for customer %s", req.CustomerID)
	}

	code := CouponCode(req.Name, req.Phone, req.Tier.Label())
	start := c.now().UTC()
	end := start.Add(c.couponValidity)

	body, _, err := c.doRequest(ctx, http.MethodPost, "/price_rules.json", priceRuleEnvelope{
		PriceRule: priceRule{
			Title:             fmt.Sprintf("%d%% loyalty discount for %s", discount, req.Name),
			TargetType:        "line_item",
			TargetSelection:   "all",
			AllocationMethod:  "across",
			ValueType:         "percentage",
			Value:             fmt.Sprintf("-%d.0", discount),
			CustomerSelection: "all",
			UsageLimit:        1,
			StartsAt:          start.Format(time.RFC3339),
			EndsAt:            end.Format(time.RFC3339),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating price rule: %w", err)
	}
	var rule priceRuleEnvelope
	if err := json.Unmarshal(body, &rule); err != nil {
		return nil, fmt.Errorf("failed to decode price rule: %w", err)
	}

	path := fmt.Sprintf("/price_rules/%d/discount_codes.json", rule.PriceRule.ID)
	_, _, err = c.doRequest(ctx, http.MethodPost, path, discountCodeEnvelope{
		DiscountCode: discountCode{Code: code, PriceRuleID: rule.PriceRule.ID},
	})
	if err != nil {
		return nil, fmt.Errorf("creating discount code %s: %w", code, err)
	}

	logger.Info("coupon created", "customer_id", req.CustomerID, "code", code, "discount", discount, "expires_at", end.Format("2006-01-02"))
	return &loyalty.Coupon{Code: code, DiscountPercent: discount, ExpiresAt: end}, nil
}

// CouponCode builds the customer-facing code: the first five ASCII letters of
// the name uppercased (padded with X), the last five phone digits, then the
// tier label. "Ana Souza", "5551999212222", "2000" gives "ANASO122222000".
func CouponCode(name, phone, tierLabel string) string {
	var letters strings.Builder
	for _, r := range name {
		if r < unicode.MaxASCII && unicode.IsLetter(r) {
			letters.WriteRune(unicode.ToUpper(r))
			if letters.Len() == 5 {
				break
			}
		}
	}
	prefix := letters.String() + strings.Repeat("X", 5-letters.Len())

	suffix := phone
	if len(suffix) >= 5 {
		suffix = suffix[len(suffix)-5:]
	} else {
		suffix = strings.Repeat("0", 5-len(suffix)) + suffix
	}
	return prefix + suffix + tierLabel
}
