package loyalty

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/loyalty-rewards/internal/pkg/logger"
)

// Order is the slice of a commerce order the reward pipeline needs.
type Order struct {
	ID            string
	CustomerID    string
	TotalPrice    float64
	ShippingName  string
	ShippingPhone string
	Email         string
}

// Customer is one unique buyer in a batch with their lifetime spend.
// Built per run from order data, never persisted.
type Customer struct {
	ID         string  `json:"customer_id"`
	Name       string  `json:"name"`
	Phone      string  `json:"phone"`
	Email      string  `json:"email"`
	TotalSpent float64 `json:"total_spent"`
}

// FirstName returns the first word of the display name.
func (c Customer) FirstName() string {
	if f := strings.Fields(c.Name); len(f) > 0 {
		return f[0]
	}
	return ""
}

// OrderSource is the commerce platform's order API, already paginated and
// flattened by the implementation.
type OrderSource interface {
	OrdersForDate(ctx context.Context, day time.Time) ([]Order, error)
	OrdersForCustomer(ctx context.Context, customerID string) ([]Order, error)
}

// SpendAggregator totals a customer's historical spend.
type SpendAggregator struct {
	orders OrderSource
}

// NewSpendAggregator creates an aggregator over the given order source.
func NewSpendAggregator(orders OrderSource) *SpendAggregator {
	return &SpendAggregator{orders: orders}
}

// TotalSpent sums TotalPrice over every order the customer has placed.
func (a *SpendAggregator) TotalSpent(ctx context.Context, customerID string) (float64, error) {
	orders, err := a.orders.OrdersForCustomer(ctx, customerID)
	if err != nil {
		return 0, fmt.Errorf("fetching orders for customer %s: %w", customerID, err)
	}
	var total float64
	for _, o := range orders {
		total += o.TotalPrice
	}
	logger.Debug("spend aggregated", "customer_id", customerID, "orders", len(orders), "total_spent", fmt.Sprintf("%.2f", total))
	return total, nil
}

// ExtractCustomers groups a day's orders into unique customers, in the order
// they were first seen. Contact details come from the customer's first order;
// spend comes from the aggregator. Orders without a customer and customers
// whose spend cannot be computed are logged and skipped.
func ExtractCustomers(ctx context.Context, orders []Order, agg *SpendAggregator, countryCode string) []Customer {
	seen := make(map[string]bool, len(orders))
	customers := make([]Customer, 0, len(orders))

	for _, o := range orders {
		if ctx.Err() != nil {
			break
		}
		if o.CustomerID == "" {
			logger.Warn("order has no customer, skipping", "order_id", o.ID)
			continue
		}
		if seen[o.CustomerID] {
			continue
		}
		seen[o.CustomerID] = true

		total, err := agg.TotalSpent(ctx, o.CustomerID)
		if err != nil {
			logger.Error("could not compute spend, skipping customer", "customer_id", o.CustomerID, "error", err)
			continue
		}

		phone := NormalizePhone(o.ShippingPhone, countryCode)
		if phone == "" && o.ShippingPhone != "" {
			logger.Warn("unusable shipping phone", "customer_id", o.CustomerID, "phone", o.ShippingPhone)
		}

		customers = append(customers, Customer{
			ID:         o.CustomerID,
			Name:       strings.TrimSpace(o.ShippingName),
			Phone:      phone,
			Email:      o.Email,
			TotalSpent: total,
		})
	}

	logger.Info("customers extracted", "orders", len(orders), "customers", len(customers))
	return customers
}

// NormalizePhone reduces raw to digits, prefixes countryCode when missing and
// keeps at most 13 digits. Numbers shorter than 12 digits are unusable and
// return "".
func NormalizePhone(raw, countryCode string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}
	if countryCode != "" && !strings.HasPrefix(digits, countryCode) {
		digits = countryCode + digits
	}
	if len(digits) < 12 {
		return ""
	}
	if len(digits) > 13 {
		digits = digits[:13]
	}
	return digits
}
