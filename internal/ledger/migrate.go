package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/loyalty-rewards/internal/pkg/logger"
)

// KeyResolver maps a legacy ledger key (a customer e-mail) to the customer
// id the ledger is keyed by. An empty id with no error means the customer is
// unknown and the record is dropped.
type KeyResolver func(ctx context.Context, key string) (string, error)

// MigrateReport counts what an import did.
type MigrateReport struct {
	Written  int // records in dst after the merge
	Resolved int // e-mail keys mapped to customer ids
	Dropped  int // e-mail keys with no matching customer
}

// Migrate copies every record from src into dst. Where both hold a record
// for the same customer the later send time wins. It returns the number of
// records written to dst.
func Migrate(ctx context.Context, src, dst Store) (int, error) {
	rep, err := MigrateResolved(ctx, src, dst, nil)
	return rep.Written, err
}

// MigrateResolved is Migrate for files keyed by e-mail. Keys containing "@"
// are passed through resolve; other keys are copied as they are. A nil
// resolve copies every key unchanged.
func MigrateResolved(ctx context.Context, src, dst Store, resolve KeyResolver) (MigrateReport, error) {
	var rep MigrateReport

	from, err := src.Load(ctx)
	if errors.Is(err, ErrNotFound) {
		return rep, nil
	}
	if err != nil {
		return rep, fmt.Errorf("loading source ledger: %w", err)
	}

	merged, err := dst.Load(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
		merged = make(map[string]time.Time, len(from))
	case err != nil:
		return rep, fmt.Errorf("loading destination ledger: %w", err)
	}

	for key, sentAt := range from {
		id := key
		if resolve != nil && strings.Contains(key, "@") {
			id, err = resolve(ctx, key)
			if err != nil {
				return rep, fmt.Errorf("resolving ledger key %s: %w", key, err)
			}
			if id == "" {
				rep.Dropped++
				logger.Warn("no customer for legacy ledger entry, dropped", "email", key)
				continue
			}
			rep.Resolved++
		}
		if cur, ok := merged[id]; !ok || sentAt.After(cur) {
			merged[id] = sentAt
		}
	}

	if err := dst.Save(ctx, merged); err != nil {
		return rep, fmt.Errorf("saving destination ledger: %w", err)
	}
	rep.Written = len(merged)
	return rep, nil
}
