package loyalty

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOrders struct {
	byDay      []Order
	byCustomer map[string][]Order
	failFor    map[string]bool
	calls      map[string]int
}

func (f *fakeOrders) OrdersForDate(ctx context.Context, day time.Time) ([]Order, error) {
	return f.byDay, nil
}

func (f *fakeOrders) OrdersForCustomer(ctx context.Context, id string) ([]Order, error) {
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[id]++
	if f.failFor[id] {
		return nil, errors.New("shopify unavailable")
	}
	return f.byCustomer[id], nil
}

func TestSpendAggregator_TotalSpent(t *testing.T) {
	src := &fakeOrders{byCustomer: map[string][]Order{
		"42": {{TotalPrice: 1200.50}, {TotalPrice: 799.50}, {TotalPrice: 500}},
	}}
	agg := NewSpendAggregator(src)

	total, err := agg.TotalSpent(context.Background(), "42")
	require.NoError(t, err)
	assert.InDelta(t, 2500.0, total, 0.001)

	total, err = agg.TotalSpent(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestSpendAggregator_Error(t *testing.T) {
	agg := NewSpendAggregator(&fakeOrders{failFor: map[string]bool{"7": true}})
	_, err := agg.TotalSpent(context.Background(), "7")
	assert.Error(t, err)
}

func TestExtractCustomers(t *testing.T) {
	src := &fakeOrders{
		byCustomer: map[string][]Order{
			"1": {{TotalPrice: 600}, {TotalPrice: 400}},
			"2": {{TotalPrice: 50}},
			"3": {{TotalPrice: 9000}},
		},
		failFor: map[string]bool{"3": true},
	}
	orders := []Order{
		{ID: "o1", CustomerID: "1", ShippingName: "Ana Souza", ShippingPhone: "(51) 99969-2122", Email: "ana@example.com"},
		{ID: "o2", CustomerID: ""},
		{ID: "o3", CustomerID: "2", ShippingName: "Bruno", ShippingPhone: "123"},
		{ID: "o4", CustomerID: "1", ShippingName: "Other Name", ShippingPhone: "000"},
		{ID: "o5", CustomerID: "3", ShippingName: "Carla"},
	}

	customers := ExtractCustomers(context.Background(), orders, NewSpendAggregator(src), "55")

	require.Len(t, customers, 2)
	assert.Equal(t, Customer{
		ID: "1", Name: "Ana Souza", Phone: "5551999692122", Email: "ana@example.com", TotalSpent: 1000,
	}, customers[0])
	assert.Equal(t, "2", customers[1].ID)
	assert.Equal(t, "", customers[1].Phone)
	assert.Equal(t, 1, src.calls["1"], "spend fetched once per customer")
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"", ""},
		{"abc", ""},
		{"(51) 99969-2122", "5551999692122"},
		{"+55 51 99969-2122", "5551999692122"},
		{"51 9969-2122", "555199692122"},
		{"9969-2122", ""},
		{"55 51 99969 2122 999", "5551999692122"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizePhone(tt.raw, "55"), tt.raw)
	}
}

func TestCustomer_FirstName(t *testing.T) {
	assert.Equal(t, "Ana", Customer{Name: "Ana  Souza"}.FirstName())
	assert.Equal(t, "", Customer{}.FirstName())
}
