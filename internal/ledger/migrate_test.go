package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrate_MergesLaterWins(t *testing.T) {
	src := &memStore{records: map[string]time.Time{
		"c1": now,
		"c2": now.Add(-48 * time.Hour),
	}}
	dst := &memStore{records: map[string]time.Time{
		"c2": now.Add(-time.Hour),
		"c3": now,
	}}

	n, err := Migrate(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, now, dst.records["c1"])
	assert.Equal(t, now.Add(-time.Hour), dst.records["c2"])
}

func TestMigrate_EmptySource(t *testing.T) {
	dst := &memStore{}
	n, err := Migrate(context.Background(), &memStore{}, dst)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, dst.saves)
}

func TestMigrate_IntoEmptyDestination(t *testing.T) {
	src := &memStore{records: map[string]time.Time{"c1": now}}
	dst := NewFileStore(t.TempDir() + "/sent.json")

	n, err := Migrate(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	out, err := dst.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, now.Equal(out["c1"]))
}

func TestMigrateResolved_MapsEmailKeys(t *testing.T) {
	src := &memStore{records: map[string]time.Time{
		"ana@shop.com":  now,
		"gone@shop.com": now,
		"c9":            now.Add(-time.Hour),
	}}
	dst := &memStore{records: map[string]time.Time{"601": now.Add(-48 * time.Hour)}}

	ids := map[string]string{"ana@shop.com": "601"}
	resolve := func(ctx context.Context, email string) (string, error) { return ids[email], nil }

	rep, err := MigrateResolved(context.Background(), src, dst, resolve)
	require.NoError(t, err)
	assert.Equal(t, MigrateReport{Written: 2, Resolved: 1, Dropped: 1}, rep)
	assert.Equal(t, now, dst.records["601"])
	assert.Contains(t, dst.records, "c9")
	assert.NotContains(t, dst.records, "ana@shop.com")
}

func TestMigrateResolved_ResolverError(t *testing.T) {
	src := &memStore{records: map[string]time.Time{"ana@shop.com": now}}
	dst := &memStore{}
	resolve := func(ctx context.Context, email string) (string, error) { return "", errors.New("429") }

	_, err := MigrateResolved(context.Background(), src, dst, resolve)
	assert.ErrorContains(t, err, "429")
	assert.Equal(t, 0, dst.saves)
}
