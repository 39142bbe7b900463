// Package worker runs the daily reward pipeline: it paces offer delivery,
// drives one run end to end and schedules runs at a fixed time of day.
package worker

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/ignite/loyalty-rewards/internal/loyalty"
	"github.com/ignite/loyalty-rewards/internal/notify"
	"github.com/ignite/loyalty-rewards/internal/pkg/logger"
)

// Default pacing bounds between successful sends.
const (
	DefaultMinDelay = 120 * time.Second
	DefaultMaxDelay = 300 * time.Second
)

// OfferMaker produces an offer for a customer, or nil when none is due.
type OfferMaker interface {
	Generate(ctx context.Context, c loyalty.Customer) *loyalty.Offer
}

// PacerStats counts what happened to each customer in a batch.
type PacerStats struct {
	Processed int  `json:"processed"`
	Offers    int  `json:"offers"`
	Sent      int  `json:"sent"`
	Failed    int  `json:"failed"`
	Skipped   int  `json:"skipped"` // no offer due
	Delays    int  `json:"delays"`
	Cancelled bool `json:"cancelled"`
}

// Pacer sends offers one customer at a time with a random pause after every
// successful send, keeping outbound volume under gateway rate limits.
type Pacer struct {
	offers   OfferMaker
	notifier notify.Notifier
	subject  string
	minDelay time.Duration
	maxDelay time.Duration

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(n int64) int64
}

// NewPacer creates a pacer. The defaults apply only when both delays are
// unset; otherwise the window is used as given, negatives count as zero and
// maxDelay below minDelay is raised to minDelay.
func NewPacer(offers OfferMaker, notifier notify.Notifier, minDelay, maxDelay time.Duration) *Pacer {
	minDelay, maxDelay = max(minDelay, 0), max(maxDelay, 0)
	if minDelay == 0 && maxDelay == 0 {
		minDelay, maxDelay = DefaultMinDelay, DefaultMaxDelay
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &Pacer{
		offers:   offers,
		notifier: notifier,
		minDelay: minDelay,
		maxDelay: maxDelay,
		sleep:    sleepContext,
		jitter:   rand.Int64N,
	}
}

// SetSubject sets the subject used by email channels.
func (p *Pacer) SetSubject(subject string) { p.subject = subject }

// Run processes customers in order until done or ctx is cancelled.
// Cancellation is observed between customers and during pauses, never in
// the middle of a customer.
func (p *Pacer) Run(ctx context.Context, customers []loyalty.Customer) PacerStats {
	var stats PacerStats

	for i, c := range customers {
		if ctx.Err() != nil {
			stats.Cancelled = true
			logger.Info("pacer stopped", "processed", stats.Processed, "remaining", len(customers)-i)
			break
		}

		offered, sent := p.process(ctx, c, &stats)
		stats.Processed++
		if !offered || !sent || i == len(customers)-1 {
			continue
		}

		d := p.nextDelay()
		stats.Delays++
		logger.Info("pausing before next customer", "delay", d.String(), "remaining", len(customers)-i-1)
		if err := p.sleep(ctx, d); err != nil {
			stats.Cancelled = true
			logger.Info("pacer stopped during pause", "processed", stats.Processed, "remaining", len(customers)-i-1)
			break
		}
	}

	logger.Info("pacer finished",
		"processed", stats.Processed,
		"offers", stats.Offers,
		"sent", stats.Sent,
		"failed", stats.Failed,
		"skipped", stats.Skipped,
		"delays", stats.Delays,
	)
	return stats
}

// process handles one customer. A panic is contained to that customer.
func (p *Pacer) process(ctx context.Context, c loyalty.Customer, stats *PacerStats) (offered, sent bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("customer processing panicked", "customer_id", c.ID, "panic", fmt.Sprint(r))
			stats.Failed++
			offered, sent = false, false
		}
	}()

	// Once started, a customer's step runs to completion: the coupon, the
	// ledger record and the send all ignore cancellation of the run.
	ctx = context.WithoutCancel(ctx)

	offer := p.offers.Generate(ctx, c)
	if offer == nil {
		stats.Skipped++
		return false, false
	}
	stats.Offers++

	err := p.notifier.Send(ctx, notify.Message{
		Phone:   c.Phone,
		Email:   c.Email,
		Name:    c.Name,
		Subject: p.subject,
		Text:    offer.Text,
	})
	if err != nil {
		stats.Failed++
		logger.Error("offer not delivered", "customer_id", c.ID, "coupon_code", offer.CouponCode, "error", err)
		return true, false
	}

	stats.Sent++
	logger.Info("offer delivered", "customer_id", c.ID, "coupon_code", offer.CouponCode, "phone", c.Phone)
	return true, true
}

// nextDelay is uniform in [minDelay, maxDelay].
func (p *Pacer) nextDelay() time.Duration {
	span := int64(p.maxDelay - p.minDelay)
	if span <= 0 {
		return p.minDelay
	}
	return p.minDelay + time.Duration(p.jitter(span+1))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
