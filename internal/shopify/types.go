package shopify

import (
	"fmt"
	"time"
)

// Config holds the Admin API connection settings.
type Config struct {
	ShopName       string // e.g. "my-store.myshopify.com"
	AccessToken    string
	APIVersion     string        // default 2023-01
	BaseURL        string        // overrides https://<shop>/admin/api/<version>
	CouponValidity time.Duration // default 7 days
	Timeout        time.Duration
	MaxRetries     int
}

// APIError is a non-2xx response from the Admin API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("shopify API error (status %d): %s", e.StatusCode, e.Body)
}

// ==================== Wire types ====================

type ordersResponse struct {
	Orders []order `json:"orders"`
}

type customersResponse struct {
	Customers []customerRef `json:"customers"`
}

type order struct {
	ID              int64            `json:"id"`
	Email           string           `json:"email"`
	TotalPrice      string           `json:"total_price"`
	Customer        *customerRef     `json:"customer"`
	ShippingAddress *shippingAddress `json:"shipping_address"`
}

type customerRef struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

type shippingAddress struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type shopResponse struct {
	Shop struct {
		ID     int64  `json:"id"`
		Name   string `json:"name"`
		Domain string `json:"domain"`
	} `json:"shop"`
}

type priceRule struct {
	ID                int64  `json:"id,omitempty"`
	Title             string `json:"title"`
	TargetType        string `json:"target_type"`
	TargetSelection   string `json:"target_selection"`
	AllocationMethod  string `json:"allocation_method"`
	ValueType         string `json:"value_type"`
	Value             string `json:"value"`
	CustomerSelection string `json:"customer_selection"`
	UsageLimit        int    `json:"usage_limit,omitempty"`
	StartsAt          string `json:"starts_at"`
	EndsAt            string `json:"ends_at"`
}

type priceRuleEnvelope struct {
	PriceRule priceRule `json:"price_rule"`
}

type discountCode struct {
	ID          int64  `json:"id,omitempty"`
	Code        string `json:"code"`
	PriceRuleID int64  `json:"price_rule_id"`
}

type discountCodeEnvelope struct {
	DiscountCode discountCode `json:"discount_code"`
}
