// Package ledger is the send-once record: which customers have received an
// offer and when. At most one active record exists per customer; a customer
// becomes eligible again only after their record ages out.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ignite/loyalty-rewards/internal/pkg/logger"
)

// DefaultMaxAge is the age at which a send record is purged.
const DefaultMaxAge = 30 * 24 * time.Hour

// ErrNotFound is returned by stores that have never been written.
var ErrNotFound = errors.New("ledger: store not found")

// Store persists the full customer → sent_at mapping.
type Store interface {
	Load(ctx context.Context) (map[string]time.Time, error)
	Save(ctx context.Context, records map[string]time.Time) error
}

// SendRecord is one customer's last offer.
type SendRecord struct {
	CustomerID string    `json:"customer_id"`
	SentAt     time.Time `json:"sent_at"`
}

// Ledger is the in-memory view of a Store. Every mutation rewrites the store
// in full.
type Ledger struct {
	store   Store
	mu      sync.RWMutex
	records map[string]time.Time
}

// Open loads the ledger from store. A store that does not exist yet yields an
// empty ledger; any other load error is returned.
func Open(ctx context.Context, store Store) (*Ledger, error) {
	records, err := store.Load(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
		logger.Warn("ledger store not found, starting empty")
		records = map[string]time.Time{}
	case err != nil:
		return nil, fmt.Errorf("loading ledger: %w", err)
	case records == nil:
		records = map[string]time.Time{}
	}
	logger.Info("ledger loaded", "records", len(records))
	return &Ledger{store: store, records: records}, nil
}

// Reload refreshes the ledger from its store so records written by other
// processes are seen. A local record is kept when the store has none for the
// customer or an older one, which covers saves that failed in this process.
// It returns the number of records after the merge.
func (l *Ledger) Reload(ctx context.Context) (int, error) {
	stored, err := l.store.Load(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
		stored = map[string]time.Time{}
	case err != nil:
		return 0, fmt.Errorf("reloading ledger: %w", err)
	case stored == nil:
		stored = map[string]time.Time{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for id, t := range l.records {
		if cur, ok := stored[id]; !ok || t.After(cur) {
			stored[id] = t
		}
	}
	l.records = stored
	return len(stored), nil
}

// IsEligible reports whether customerID has no active record.
func (l *Ledger) IsEligible(customerID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, sent := l.records[customerID]
	return !sent
}

// RecordSent stores now as customerID's send time and persists the ledger.
// The in-memory record is kept even when persisting fails, so this process
// will not send twice; the error is returned for the caller to log.
func (l *Ledger) RecordSent(ctx context.Context, customerID string, now time.Time) error {
	l.mu.Lock()
	l.records[customerID] = now
	snapshot := l.snapshotLocked()
	l.mu.Unlock()

	if err := l.store.Save(ctx, snapshot); err != nil {
		return fmt.Errorf("persisting send record for %s: %w", customerID, err)
	}
	return nil
}

// PurgeExpired drops every record whose age is at least maxAge and persists
// the result. It returns how many records were removed.
func (l *Ledger) PurgeExpired(ctx context.Context, now time.Time, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	l.mu.Lock()
	removed := 0
	for id, sentAt := range l.records {
		if now.Sub(sentAt) >= maxAge {
			delete(l.records, id)
			removed++
		}
	}
	snapshot := l.snapshotLocked()
	l.mu.Unlock()

	if err := l.store.Save(ctx, snapshot); err != nil {
		return removed, fmt.Errorf("persisting purged ledger: %w", err)
	}
	logger.Info("ledger purged", "removed", removed, "remaining", len(snapshot))
	return removed, nil
}

// SentAt returns the send time recorded for customerID.
func (l *Ledger) SentAt(customerID string) (time.Time, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.records[customerID]
	return t, ok
}

// Len returns the number of active records.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Records returns a snapshot sorted by customer id.
func (l *Ledger) Records() []SendRecord {
	l.mu.RLock()
	out := make([]SendRecord, 0, len(l.records))
	for id, t := range l.records {
		out = append(out, SendRecord{CustomerID: id, SentAt: t})
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CustomerID < out[j].CustomerID })
	return out
}

func (l *Ledger) snapshotLocked() map[string]time.Time {
	cp := make(map[string]time.Time, len(l.records))
	for id, t := range l.records {
		cp[id] = t
	}
	return cp
}
