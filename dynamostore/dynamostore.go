// Package dynamostore is a trove.FlatStore kept in a DynamoDB table.
//
// Each flat key is one item with a string partition key "pk" and the
// value in attribute "v". The table must already exist with "pk" as its
// only key attribute. Reads are strongly consistent by default so a
// Store sees its own metadata updates immediately.
package dynamostore

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// API is the subset of *dynamodb.Client the store uses.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Config holds configuration for the Store.
type Config struct {
	// Table is the DynamoDB table name.
	// Default: "trove"
	Table string

	// Timeout bounds each request.
	// Default: 10s
	Timeout time.Duration

	// EventualReads switches GetItem to eventually consistent reads. They
	// cost half as much but a save may not be visible to the next load.
	EventualReads bool

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// validate fills in defaults.
func (c *Config) validate() {
	if c.Table == "" {
		c.Table = "trove"
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// item is the stored shape of one flat key.
type item struct {
	Key   string `dynamodbav:"pk"`
	Value string `dynamodbav:"v"`
}

// Store is a FlatStore backed by DynamoDB.
type Store struct {
	client API
	config Config
	log    *zap.Logger
}

// New returns a Store using client.
func New(client API, config Config) *Store {
	config.validate()
	return &Store{
		client: client,
		config: config,
		log:    config.Logger.With(zap.String("table", config.Table)),
	}
}

// NewFromEnv builds a client from the default AWS configuration chain
// (environment, shared config files, instance role).
func NewFromEnv(ctx context.Context, config Config) (*Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("dynamostore: load aws config: %w", err)
	}
	return New(dynamodb.NewFromConfig(cfg), config), nil
}

func (s *Store) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.config.Timeout)
}

func itemKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: key},
	}
}

func (s *Store) Get(key string) (string, bool, error) {
	ctx, cancel := s.ctx()
	defer cancel()
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.config.Table),
		Key:            itemKey(key),
		ConsistentRead: aws.Bool(!s.config.EventualReads),
	})
	if err != nil {
		return "", false, fmt.Errorf("dynamostore: get %q: %w", key, err)
	}
	if out.Item == nil {
		return "", false, nil
	}

	var it item
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return "", false, fmt.Errorf("dynamostore: get %q: %w", key, err)
	}
	return it.Value, true, nil
}

func (s *Store) Set(key, value string) error {
	av, err := attributevalue.MarshalMap(item{Key: key, Value: value})
	if err != nil {
		return fmt.Errorf("dynamostore: set %q: %w", key, err)
	}

	ctx, cancel := s.ctx()
	defer cancel()
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.config.Table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("dynamostore: set %q: %w", key, err)
	}
	s.log.Debug("put", zap.String("key", key), zap.Int("size", len(value)))
	return nil
}

func (s *Store) Remove(key string) error {
	ctx, cancel := s.ctx()
	defer cancel()
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.config.Table),
		Key:       itemKey(key),
	})
	if err != nil {
		return fmt.Errorf("dynamostore: remove %q: %w", key, err)
	}
	return nil
}
