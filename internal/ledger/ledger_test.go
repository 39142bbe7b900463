package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	records map[string]time.Time
	loadErr error
	saveErr error
	saves   int
}

func (m *memStore) Load(ctx context.Context) (map[string]time.Time, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.records == nil {
		return nil, ErrNotFound
	}
	cp := make(map[string]time.Time, len(m.records))
	for k, v := range m.records {
		cp[k] = v
	}
	return cp, nil
}

func (m *memStore) Save(ctx context.Context, records map[string]time.Time) error {
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.records = records
	return nil
}

var now = time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

func TestOpen_MissingStoreIsEmpty(t *testing.T) {
	l, err := Open(context.Background(), &memStore{})
	require.NoError(t, err)
	assert.Equal(t, 0, l.Len())
	assert.True(t, l.IsEligible("c1"))
}

func TestOpen_LoadError(t *testing.T) {
	_, err := Open(context.Background(), &memStore{loadErr: errors.New("disk on fire")})
	assert.ErrorContains(t, err, "disk on fire")
}

func TestRecordSent(t *testing.T) {
	store := &memStore{}
	l, err := Open(context.Background(), store)
	require.NoError(t, err)

	require.NoError(t, l.RecordSent(context.Background(), "c1", now))
	assert.False(t, l.IsEligible("c1"))
	assert.True(t, l.IsEligible("c2"))
	assert.Equal(t, now, store.records["c1"])

	sentAt, ok := l.SentAt("c1")
	assert.True(t, ok)
	assert.Equal(t, now, sentAt)
}

func TestRecordSent_PersistFailureKeepsRecord(t *testing.T) {
	store := &memStore{saveErr: errors.New("read-only filesystem")}
	l, err := Open(context.Background(), store)
	require.NoError(t, err)

	err = l.RecordSent(context.Background(), "c1", now)
	assert.ErrorContains(t, err, "read-only filesystem")
	assert.False(t, l.IsEligible("c1"))
}

func TestPurgeExpired(t *testing.T) {
	store := &memStore{records: map[string]time.Time{
		"exactly30": now.Add(-30 * 24 * time.Hour),
		"day29":     now.Add(-29 * 24 * time.Hour),
		"day45":     now.Add(-45 * 24 * time.Hour),
		"fresh":     now.Add(-time.Hour),
	}}
	l, err := Open(context.Background(), store)
	require.NoError(t, err)

	removed, err := l.PurgeExpired(context.Background(), now, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	assert.True(t, l.IsEligible("exactly30"))
	assert.True(t, l.IsEligible("day45"))
	assert.False(t, l.IsEligible("day29"))
	assert.False(t, l.IsEligible("fresh"))
	assert.Len(t, store.records, 2)
}

func TestPurgeExpired_EmptyLedger(t *testing.T) {
	store := &memStore{}
	l, err := Open(context.Background(), store)
	require.NoError(t, err)

	removed, err := l.PurgeExpired(context.Background(), now, DefaultMaxAge)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
	assert.Equal(t, 1, store.saves)
}

func TestRecords_Sorted(t *testing.T) {
	store := &memStore{records: map[string]time.Time{"b": now, "a": now, "c": now}}
	l, err := Open(context.Background(), store)
	require.NoError(t, err)

	recs := l.Records()
	require.Len(t, recs, 3)
	assert.Equal(t, "a", recs[0].CustomerID)
	assert.Equal(t, "c", recs[2].CustomerID)
}

func TestLedger_SurvivesReopen(t *testing.T) {
	store := NewFileStore(t.TempDir() + "/sent.json")
	l, err := Open(context.Background(), store)
	require.NoError(t, err)
	require.NoError(t, l.RecordSent(context.Background(), "c1", now))

	reopened, err := Open(context.Background(), store)
	require.NoError(t, err)
	assert.False(t, reopened.IsEligible("c1"))
	sentAt, _ := reopened.SentAt("c1")
	assert.True(t, now.Equal(sentAt))
}

func TestReload_SharedStore(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(t.TempDir() + "/sent.json")
	a, err := Open(ctx, store)
	require.NoError(t, err)
	b, err := Open(ctx, store)
	require.NoError(t, err)

	require.NoError(t, a.RecordSent(ctx, "c1", now))

	n, err := b.Reload(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, b.IsEligible("c1"))

	require.NoError(t, b.RecordSent(ctx, "c2", now))

	persisted, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, persisted, 2)
	assert.Contains(t, persisted, "c1")
	assert.Contains(t, persisted, "c2")
}

func TestReload_KeepsUnpersistedRecord(t *testing.T) {
	ctx := context.Background()
	store := &memStore{records: map[string]time.Time{"c1": now.Add(-time.Hour)}}
	l, err := Open(ctx, store)
	require.NoError(t, err)

	store.saveErr = errors.New("disk full")
	require.Error(t, l.RecordSent(ctx, "c2", now))
	require.Error(t, l.RecordSent(ctx, "c1", now))

	store.records["c3"] = now
	_, err = l.Reload(ctx)
	require.NoError(t, err)

	assert.False(t, l.IsEligible("c2"))
	assert.False(t, l.IsEligible("c3"))
	sentAt, _ := l.SentAt("c1")
	assert.True(t, now.Equal(sentAt))
}

func TestReload_Errors(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	l, err := Open(ctx, store)
	require.NoError(t, err)
	require.NoError(t, l.RecordSent(ctx, "c1", now))

	store.records = nil
	n, err := l.Reload(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	store.loadErr = errors.New("connection refused")
	_, err = l.Reload(ctx)
	assert.ErrorContains(t, err, "connection refused")
	assert.False(t, l.IsEligible("c1"))
}
