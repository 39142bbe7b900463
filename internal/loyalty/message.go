package loyalty

import (
	"fmt"
	"strings"

	"github.com/osteele/liquid"
)

// MessageRenderer turns an offer into notification text using a Liquid
// template. The template is parsed once at construction.
type MessageRenderer struct {
	tpl          *liquid.Template
	storeName    string
	supportPhone string
	dateLayout   string
}

// MessageOptions configures a MessageRenderer.
type MessageOptions struct {
	Template     string
	StoreName    string
	SupportPhone string
	DateLayout   string // Go layout for expires_at, default 02/01/2006
}

// NewMessageRenderer parses the template. Syntax errors are returned so a bad
// template fails startup instead of every send.
func NewMessageRenderer(opts MessageOptions) (*MessageRenderer, error) {
	engine := liquid.NewEngine()
	engine.RegisterFilter("titlecase", func(s string) string {
		words := strings.Fields(strings.ToLower(s))
		for i, w := range words {
			r := []rune(w)
			words[i] = strings.ToUpper(string(r[:1])) + string(r[1:])
		}
		return strings.Join(words, " ")
	})

	tpl, err := engine.ParseString(opts.Template)
	if err != nil {
		return nil, fmt.Errorf("parsing message template: %w", err)
	}
	if opts.DateLayout == "" {
		opts.DateLayout = "02/01/2006"
	}
	return &MessageRenderer{
		tpl:          tpl,
		storeName:    opts.StoreName,
		supportPhone: opts.SupportPhone,
		dateLayout:   opts.DateLayout,
	}, nil
}

// Render fills the template for one customer and their coupon.
func (r *MessageRenderer) Render(c Customer, tier Tier, coupon *Coupon, discountURL string) (string, error) {
	bindings := map[string]interface{}{
		"name":          c.Name,
		"tier":          tier.Label(),
		"discount":      coupon.DiscountPercent,
		"coupon_code":   coupon.Code,
		"discount_url":  discountURL,
		"expires_at":    coupon.ExpiresAt.Format(r.dateLayout),
		"store_name":    r.storeName,
		"support_phone": r.supportPhone,
	}
	// Leave first_name unbound when unknown so `default` applies.
	if first := c.FirstName(); first != "" {
		bindings["first_name"] = first
	}
	out, err := r.tpl.RenderString(bindings)
	if err != nil {
		return "", fmt.Errorf("rendering offer message: %w", err)
	}
	return out, nil
}
