package kvstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

const dynamoKeyAttribute = "storage_key"

// DynamoDBAPI is the subset of the DynamoDB client used by DynamoDBStore.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error)
	PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error)
	DescribeTable(ctx context.Context, params *dyn.DescribeTableInput, optFns ...func(*dyn.Options)) (*dyn.DescribeTableOutput, error)
}

// DynamoDBStore keeps each key as an item in a table keyed by storage_key.
type DynamoDBStore struct {
	client    DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

type dynamoItem struct {
	Key       string `dynamodbav:"storage_key"`
	Value     string `dynamodbav:"value"`
	UpdatedAt string `dynamodbav:"updated_at"`
}

var (
	_ Store   = (*DynamoDBStore)(nil)
	_ Deleter = (*DynamoDBStore)(nil)
)

// NewDynamoDBStore constructs a store over an existing client.
func NewDynamoDBStore(client DynamoDBAPI, tableName string) (*DynamoDBStore, error) {
	if client == nil {
		return nil, errors.New("kvstore: dynamodb client is required")
	}
	tableName = strings.TrimSpace(tableName)
	if tableName == "" {
		return nil, errors.New("kvstore: dynamodb table is required")
	}
	return &DynamoDBStore{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}, nil
}

// NewDynamoDBClient loads the default AWS configuration. A non-empty endpoint targets
// DynamoDB Local or LocalStack.
func NewDynamoDBClient(ctx context.Context, region, endpoint string) (*dyn.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return dyn.NewFromConfig(cfg, func(o *dyn.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// Get implements Store.
func (s *DynamoDBStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := validateKey("dynamodb get", key); err != nil {
		return "", false, err
	}
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			dynamoKeyAttribute: &types.AttributeValueMemberS{Value: key},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", false, classifyDynamoError("dynamodb get", key, err)
	}
	if len(out.Item) == 0 {
		return "", false, nil
	}
	var item dynamoItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return "", false, unavailable("dynamodb decode", key, err)
	}
	return item.Value, true, nil
}

// Set implements Store.
func (s *DynamoDBStore) Set(ctx context.Context, key, value string) error {
	if err := validateKey("dynamodb set", key); err != nil {
		return err
	}
	item, err := attributevalue.MarshalMap(dynamoItem{
		Key:       key,
		Value:     value,
		UpdatedAt: s.nowFunc().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	}); err != nil {
		return classifyDynamoError("dynamodb set", key, err)
	}
	return nil
}

// Delete implements Deleter.
func (s *DynamoDBStore) Delete(ctx context.Context, key string) error {
	if err := validateKey("dynamodb delete", key); err != nil {
		return err
	}
	if _, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			dynamoKeyAttribute: &types.AttributeValueMemberS{Value: key},
		},
	}); err != nil {
		return classifyDynamoError("dynamodb delete", key, err)
	}
	return nil
}

// Ping describes the table to confirm it exists and is reachable.
func (s *DynamoDBStore) Ping(ctx context.Context) error {
	if _, err := s.client.DescribeTable(ctx, &dyn.DescribeTableInput{TableName: &s.tableName}); err != nil {
		return classifyDynamoError("dynamodb ping", "", err)
	}
	return nil
}

// Close is a no-op; the AWS client holds no long-lived connections that need releasing.
func (s *DynamoDBStore) Close() error { return nil }

func classifyDynamoError(op, key string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ConditionalCheckFailedException" {
		return &Error{op: op, key: key, err: err, conflict: true}
	}
	return unavailable(op, key, err)
}
