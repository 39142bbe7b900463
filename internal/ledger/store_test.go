package ledger

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/loyalty-rewards/internal/config"
)

// ==================== File ====================

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sent.json")
	s := NewFileStore(path)

	_, err := s.Load(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)

	in := map[string]time.Time{"c1": now, "c2": now.Add(-time.Hour)}
	require.NoError(t, s.Save(context.Background(), in))

	out, err := s.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.True(t, in["c2"].Equal(out["c2"]))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file should be renamed away")
}

func TestFileStore_LegacyTimestamps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sent.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"c1": "2026-09-01T09:30:00.123456"}`), 0644))

	out, err := NewFileStore(path).Load(context.Background())
	require.NoError(t, err)
	want := time.Date(2026, 9, 1, 9, 30, 0, 123456000, time.Local)
	assert.True(t, want.Equal(out["c1"]))
}

func TestFileStore_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sent.json")
	require.NoError(t, os.WriteFile(path, []byte(`not json`), 0644))

	_, err := NewFileStore(path).Load(context.Background())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

// ==================== S3 ====================

type fakeS3 struct {
	objects map[string][]byte
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Bucket+"/"+*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func TestS3Store_RoundTrip(t *testing.T) {
	client := &fakeS3{objects: map[string][]byte{}}
	s := NewS3Store(client, "bucket", "ledger/sent.json")

	_, err := s.Load(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Save(context.Background(), map[string]time.Time{"c1": now}))
	assert.Contains(t, string(client.objects["bucket/ledger/sent.json"]), `"c1"`)

	out, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, now.Equal(out["c1"]))
}

// ==================== DynamoDB ====================

type fakeDynamo struct {
	items   map[string]map[string]dbtypes.AttributeValue
	deletes int
	puts    int
}

func (f *fakeDynamo) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	pk := in.ExpressionAttributeValues[":pk"].(*dbtypes.AttributeValueMemberS).Value
	var out []map[string]dbtypes.AttributeValue
	for _, item := range f.items {
		if item["PK"].(*dbtypes.AttributeValueMemberS).Value == pk {
			out = append(out, item)
		}
	}
	return &dynamodb.QueryOutput{Items: out}, nil
}

func (f *fakeDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.puts++
	f.items[in.Item["SK"].(*dbtypes.AttributeValueMemberS).Value] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.deletes++
	delete(f.items, in.Key["SK"].(*dbtypes.AttributeValueMemberS).Value)
	return &dynamodb.DeleteItemOutput{}, nil
}

func TestDynamoDBStore_Sync(t *testing.T) {
	client := &fakeDynamo{items: map[string]map[string]dbtypes.AttributeValue{}}
	s := NewDynamoDBStore(client, "ledger", "rewards", 0)

	_, err := s.Load(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Save(context.Background(), map[string]time.Time{"c1": now, "c2": now}))
	assert.Equal(t, 2, client.puts)

	var item dynamoItem
	require.NoError(t, attributevalue.UnmarshalMap(client.items["c1"], &item))
	assert.Equal(t, "ledger#rewards", item.PK)
	assert.Equal(t, now.Add(DefaultMaxAge).Unix(), item.TTL)

	// c2 purged, c1 unchanged: one delete, no rewrite of c1.
	require.NoError(t, s.Save(context.Background(), map[string]time.Time{"c1": now}))
	assert.Equal(t, 1, client.deletes)
	assert.Equal(t, 2, client.puts)

	out, err := s.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, now.Equal(out["c1"]))
}

// ==================== Postgres ====================

func TestPostgresStore_Load(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT customer_id, sent_at FROM loyalty_send_ledger").
		WillReturnRows(sqlmock.NewRows([]string{"customer_id", "sent_at"}).AddRow("c1", now))

	out, err := NewPostgresStore(db).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, now, out["c1"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT customer_id, sent_at FROM loyalty_send_ledger").
		WillReturnRows(sqlmock.NewRows([]string{"customer_id", "sent_at"}))

	_, err = NewPostgresStore(db).Load(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStore_Save(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM loyalty_send_ledger WHERE customer_id <> ALL").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO loyalty_send_ledger").
		WithArgs("c1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, NewPostgresStore(db).Save(context.Background(), map[string]time.Time{"c1": now}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_EnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS loyalty_send_ledger").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, NewPostgresStore(db).EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==================== Redis ====================

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestRedisStore_RoundTrip(t *testing.T) {
	mr, client := setupTestRedis(t)
	s := NewRedisStore(client, "rewards")

	_, err := s.Load(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Save(context.Background(), map[string]time.Time{"c1": now, "c2": now}))
	assert.Equal(t, now.Format(time.RFC3339Nano), mr.HGet("rewards:ledger", "c1"))

	require.NoError(t, s.Save(context.Background(), map[string]time.Time{"c2": now}))
	out, err := s.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, now.Equal(out["c2"]))

	require.NoError(t, s.Save(context.Background(), map[string]time.Time{}))
	assert.False(t, mr.Exists("rewards:ledger"))
}

// ==================== Factory ====================

func TestNewStore(t *testing.T) {
	store, closeFn, err := NewStore(context.Background(), config.LedgerConfig{Type: "file", Path: "x.json"}, 0)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)
	assert.NoError(t, closeFn())

	mr, _ := setupTestRedis(t)
	store, closeFn, err = NewStore(context.Background(), config.LedgerConfig{Type: "redis", RedisURL: "redis://" + mr.Addr(), Name: "r"}, 0)
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, store)
	assert.NoError(t, closeFn())

	_, _, err = NewStore(context.Background(), config.LedgerConfig{Type: "s3"}, 0)
	assert.ErrorContains(t, err, "s3_bucket")

	_, _, err = NewStore(context.Background(), config.LedgerConfig{Type: "cassandra"}, 0)
	assert.ErrorContains(t, err, "unknown ledger type")
}
