package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/loyalty-rewards/internal/config"
	"github.com/ignite/loyalty-rewards/internal/pkg/logger"
)

// NewStore builds the store selected by cfg.Type. The returned closer
// releases any connection the store opened and is never nil.
func NewStore(ctx context.Context, cfg config.LedgerConfig, maxAge time.Duration) (Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Type {
	case "", "file":
		logger.Info("using file ledger", "path", cfg.Path)
		return NewFileStore(cfg.Path), noop, nil

	case "s3":
		if cfg.S3Bucket == "" {
			return nil, noop, fmt.Errorf("ledger.s3_bucket is required for s3 ledger")
		}
		awsCfg, err := LoadAWSConfig(ctx, cfg.AWSRegion, cfg.GetAWSProfile())
		if err != nil {
			return nil, noop, err
		}
		logger.Info("using S3 ledger", "bucket", cfg.S3Bucket, "key", cfg.S3Key)
		return NewS3Store(s3.NewFromConfig(awsCfg), cfg.S3Bucket, cfg.S3Key), noop, nil

	case "dynamodb":
		if cfg.DynamoDBTable == "" {
			return nil, noop, fmt.Errorf("ledger.dynamodb_table is required for dynamodb ledger")
		}
		awsCfg, err := LoadAWSConfig(ctx, cfg.AWSRegion, cfg.GetAWSProfile())
		if err != nil {
			return nil, noop, err
		}
		logger.Info("using DynamoDB ledger", "table", cfg.DynamoDBTable, "name", cfg.Name)
		return NewDynamoDBStore(dynamodb.NewFromConfig(awsCfg), cfg.DynamoDBTable, cfg.Name, maxAge), noop, nil

	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, noop, fmt.Errorf("ledger.database_url is required for postgres ledger")
		}
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, noop, fmt.Errorf("opening database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, noop, fmt.Errorf("connecting to database: %w", err)
		}
		store := NewPostgresStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, noop, err
		}
		logger.Info("using Postgres ledger")
		return store, db.Close, nil

	case "redis":
		if cfg.RedisURL == "" {
			return nil, noop, fmt.Errorf("ledger.redis_url is required for redis ledger")
		}
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, noop, fmt.Errorf("parsing redis url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, noop, fmt.Errorf("connecting to redis: %w", err)
		}
		logger.Info("using Redis ledger", "name", cfg.Name)
		return NewRedisStore(client, cfg.Name), client.Close, nil
	}

	return nil, noop, fmt.Errorf("unknown ledger type %q", cfg.Type)
}
