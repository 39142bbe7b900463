package loyalty

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLedger struct {
	sent    map[string]time.Time
	saveErr error
	writes  int
}

func newFakeLedger() *fakeLedger { return &fakeLedger{sent: map[string]time.Time{}} }

func (l *fakeLedger) IsEligible(id string) bool {
	_, ok := l.sent[id]
	return !ok
}

func (l *fakeLedger) RecordSent(ctx context.Context, id string, now time.Time) error {
	l.sent[id] = now
	l.writes++
	return l.saveErr
}

type fakeIssuer struct {
	requests []CouponRequest
	err      error
}

func (f *fakeIssuer) CreateCoupon(ctx context.Context, req CouponRequest) (*Coupon, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &Coupon{
		Code:            "ANASO92122" + req.Tier.Label(),
		DiscountPercent: req.Tier.DiscountPercent,
		ExpiresAt:       time.Date(2026, 10, 20, 9, 0, 0, 0, time.UTC),
	}, nil
}

var fixedNow = time.Date(2026, 10, 13, 9, 0, 0, 0, time.UTC)

func newTestGenerator(t *testing.T, ledger SendLedger, issuer CouponIssuer) *OfferGenerator {
	t.Helper()
	r, err := NewMessageRenderer(MessageOptions{
		Template:  "{{ first_name }}: {{ discount }}% at {{ discount_url }} until {{ expires_at }} (tier {{ tier }})",
		StoreName: "Fiber",
	})
	require.NoError(t, err)
	g := NewOfferGenerator(DefaultTiers, ledger, issuer, r, "https://fiber.example/")
	g.SetClock(func() time.Time { return fixedNow })
	return g
}

func TestGenerate_QualifyingCustomer(t *testing.T) {
	ledger := newFakeLedger()
	issuer := &fakeIssuer{}
	g := newTestGenerator(t, ledger, issuer)

	offer := g.Generate(context.Background(), Customer{ID: "A", Name: "Ana Souza", Phone: "5551999692122", TotalSpent: 2500})

	require.NotNil(t, offer)
	assert.Equal(t, 15, offer.DiscountPercent)
	assert.Equal(t, "2000", offer.TierLabel)
	assert.Equal(t, "ANASO921222000", offer.CouponCode)
	assert.Equal(t, "https://fiber.example/discount/ANASO921222000", offer.DiscountURL)
	assert.Equal(t, "Ana: 15% at https://fiber.example/discount/ANASO921222000 until 20/10/2026 (tier 2000)", offer.Text)

	require.Len(t, issuer.requests, 1)
	assert.Equal(t, 2500.0, issuer.requests[0].TotalSpent)
	assert.Equal(t, Tier{Threshold: 2000, DiscountPercent: 15}, issuer.requests[0].Tier)

	assert.Equal(t, 1, ledger.writes)
	assert.Equal(t, fixedNow, ledger.sent["A"])
}

func TestGenerate_Idempotent(t *testing.T) {
	ledger := newFakeLedger()
	issuer := &fakeIssuer{}
	g := newTestGenerator(t, ledger, issuer)
	c := Customer{ID: "A", Name: "Ana", TotalSpent: 2500}

	assert.NotNil(t, g.Generate(context.Background(), c))
	assert.Nil(t, g.Generate(context.Background(), c))
	assert.Len(t, issuer.requests, 1)
	assert.Equal(t, 1, ledger.writes)
}

func TestGenerate_BelowFirstTier(t *testing.T) {
	ledger := newFakeLedger()
	issuer := &fakeIssuer{}
	g := newTestGenerator(t, ledger, issuer)

	assert.Nil(t, g.Generate(context.Background(), Customer{ID: "B", TotalSpent: 100}))
	assert.Empty(t, issuer.requests)
	assert.Empty(t, ledger.sent)
}

func TestGenerate_CouponFailureLeavesCustomerEligible(t *testing.T) {
	ledger := newFakeLedger()
	issuer := &fakeIssuer{err: errors.New("price rule rejected")}
	g := newTestGenerator(t, ledger, issuer)

	assert.Nil(t, g.Generate(context.Background(), Customer{ID: "C", TotalSpent: 6000}))
	assert.Zero(t, ledger.writes)
	assert.True(t, ledger.IsEligible("C"))
}

func TestGenerate_PersistFailureStillReturnsOffer(t *testing.T) {
	ledger := newFakeLedger()
	ledger.saveErr = errors.New("disk full")
	g := newTestGenerator(t, ledger, &fakeIssuer{})

	offer := g.Generate(context.Background(), Customer{ID: "D", Name: "Dora", TotalSpent: 500})
	require.NotNil(t, offer)
	assert.Equal(t, 5, offer.DiscountPercent)
	assert.False(t, ledger.IsEligible("D"))
}

func TestGenerate_AlreadySentSkipsIssuer(t *testing.T) {
	ledger := newFakeLedger()
	ledger.sent["E"] = fixedNow.Add(-48 * time.Hour)
	issuer := &fakeIssuer{}
	g := newTestGenerator(t, ledger, issuer)

	assert.Nil(t, g.Generate(context.Background(), Customer{ID: "E", TotalSpent: 9000}))
	assert.Empty(t, issuer.requests)
}
