package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// LoadAWSConfig resolves AWS credentials for the ledger stores. An empty
// profile uses the default chain (IAM role on ECS).
func LoadAWSConfig(ctx context.Context, region, profile string) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return cfg, nil
}

// ==================== S3 ====================

// S3API is the subset of *s3.Client the store uses.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store keeps the same JSON document as FileStore in a single S3 object.
type S3Store struct {
	client S3API
	bucket string
	key    string
}

// NewS3Store creates a store for s3://bucket/key.
func NewS3Store(client S3API, bucket, key string) *S3Store {
	return &S3Store{client: client, bucket: bucket, key: key}
}

// Load fetches the ledger object. A missing key returns ErrNotFound.
func (s *S3Store) Load(ctx context.Context) (map[string]time.Time, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting s3://%s/%s: %w", s.bucket, s.key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading S3 object body: %w", err)
	}
	return decodeRecords(data)
}

// Save overwrites the ledger object.
func (s *S3Store) Save(ctx context.Context, records map[string]time.Time) error {
	data, err := encodeRecords(records)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("putting s3://%s/%s: %w", s.bucket, s.key, err)
	}
	return nil
}

// ==================== DynamoDB ====================

// DynamoDBAPI is the subset of *dynamodb.Client the store uses.
type DynamoDBAPI interface {
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// dynamoItem is one send record. TTL lets DynamoDB expire records on its own
// once they pass the purge age.
type dynamoItem struct {
	PK     string `dynamodbav:"PK"`
	SK     string `dynamodbav:"SK"`
	SentAt string `dynamodbav:"SentAt"`
	TTL    int64  `dynamodbav:"TTL,omitempty"`
}

// DynamoDBStore stores one item per customer under PK "ledger#<name>".
type DynamoDBStore struct {
	client    DynamoDBAPI
	tableName string
	pk        string
	ttl       time.Duration
}

// NewDynamoDBStore creates a store in tableName namespaced by name. Items get
// a TTL of sent_at+ttl (DefaultMaxAge when ttl is zero).
func NewDynamoDBStore(client DynamoDBAPI, tableName, name string, ttl time.Duration) *DynamoDBStore {
	if ttl <= 0 {
		ttl = DefaultMaxAge
	}
	return &DynamoDBStore{
		client:    client,
		tableName: tableName,
		pk:        "ledger#" + name,
		ttl:       ttl,
	}
}

// Load queries every item under the ledger's partition. An empty partition
// returns ErrNotFound.
func (s *DynamoDBStore) Load(ctx context.Context) (map[string]time.Time, error) {
	items, err := s.query(ctx)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNotFound
	}
	records := make(map[string]time.Time, len(items))
	for _, it := range items {
		t, err := time.Parse(time.RFC3339Nano, it.SentAt)
		if err != nil {
			return nil, fmt.Errorf("decoding ledger item %s: %w", it.SK, err)
		}
		records[it.SK] = t
	}
	return records, nil
}

// Save syncs the partition to records: items for customers no longer in the
// mapping are deleted, changed or new ones are put.
func (s *DynamoDBStore) Save(ctx context.Context, records map[string]time.Time) error {
	existing, err := s.query(ctx)
	if err != nil {
		return err
	}

	current := make(map[string]string, len(existing))
	for _, it := range existing {
		current[it.SK] = it.SentAt
	}

	for sk := range current {
		if _, keep := records[sk]; keep {
			continue
		}
		_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(s.tableName),
			Key: map[string]dbtypes.AttributeValue{
				"PK": &dbtypes.AttributeValueMemberS{Value: s.pk},
				"SK": &dbtypes.AttributeValueMemberS{Value: sk},
			},
		})
		if err != nil {
			return fmt.Errorf("deleting ledger item %s: %w", sk, err)
		}
	}

	for id, sentAt := range records {
		stamp := sentAt.UTC().Format(time.RFC3339Nano)
		if current[id] == stamp {
			continue
		}
		av, err := attributevalue.MarshalMap(dynamoItem{
			PK:     s.pk,
			SK:     id,
			SentAt: stamp,
			TTL:    sentAt.Add(s.ttl).Unix(),
		})
		if err != nil {
			return fmt.Errorf("marshaling ledger item: %w", err)
		}
		_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(s.tableName),
			Item:      av,
		})
		if err != nil {
			return fmt.Errorf("putting ledger item %s: %w", id, err)
		}
	}
	return nil
}

func (s *DynamoDBStore) query(ctx context.Context) ([]dynamoItem, error) {
	var items []dynamoItem
	var startKey map[string]dbtypes.AttributeValue
	for {
		out, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			KeyConditionExpression: aws.String("PK = :pk"),
			ExpressionAttributeValues: map[string]dbtypes.AttributeValue{
				":pk": &dbtypes.AttributeValueMemberS{Value: s.pk},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("querying ledger partition: %w", err)
		}
		var page []dynamoItem
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshaling ledger items: %w", err)
		}
		items = append(items, page...)
		if len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}
		startKey = out.LastEvaluatedKey
	}
}
