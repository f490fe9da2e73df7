package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

type dynamoRecord struct {
	SenderID  string `dynamodbav:"senderId"`
	State     string `dynamodbav:"state"`
	Version   int64  `dynamodbav:"version"`
	Payload   string `dynamodbav:"payload"`
	UpdatedAt string `dynamodbav:"updatedAt"`
	ExpiresAt int64  `dynamodbav:"expiresAt,omitempty"`
}

// DynamoStore persists sessions in DynamoDB using conditional writes.
type DynamoStore struct {
	client    dynamoAPI
	tableName string
	policy    policy
}

var _ Store = (*DynamoStore)(nil)

// NewDynamoStore builds a store backed by the provided DynamoDB client.
func NewDynamoStore(client dynamoAPI, tableName string, idleTimeout time.Duration, opts ...Option) *DynamoStore {
	if client == nil {
		panic("session: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("session: table name cannot be empty")
	}
	return &DynamoStore{client: client, tableName: tableName, policy: newPolicy(idleTimeout, opts...)}
}

func (s *DynamoStore) LoadOrCreate(ctx context.Context, senderID string) (Session, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            senderKey(senderID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return Session{}, unavailable("load", err)
	}
	if len(out.Item) == 0 {
		return s.policy.resolve(senderID, Session{}, false), nil
	}
	var rec dynamoRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return Session{}, unavailable("decode", err)
	}
	var stored Session
	if err := json.Unmarshal([]byte(rec.Payload), &stored); err != nil {
		return Session{}, unavailable("decode", err)
	}
	return s.policy.resolve(senderID, stored, true), nil
}

func (s *DynamoStore) CompareAndSwap(ctx context.Context, senderID string, expectedVersion int64, next Session) (bool, error) {
	if err := validateWrite(senderID, expectedVersion, next); err != nil {
		return false, err
	}
	payload, err := json.Marshal(next)
	if err != nil {
		return false, fmt.Errorf("session: encode: %w", err)
	}
	rec := dynamoRecord{
		SenderID:  senderID,
		State:     string(next.State),
		Version:   next.Version,
		Payload:   string(payload),
		UpdatedAt: next.LastUpdated.UTC().Format(time.RFC3339Nano),
	}
	if ttl := s.policy.storageTTL(); ttl > 0 {
		rec.ExpiresAt = s.policy.now().Add(ttl).Unix()
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return false, fmt.Errorf("session: marshal item: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	}
	if expectedVersion == 0 {
		input.ConditionExpression = aws.String("attribute_not_exists(senderId)")
	} else {
		input.ConditionExpression = aws.String("version = :expected")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: strconv.FormatInt(expectedVersion, 10)},
		}
	}

	if _, err := s.client.PutItem(ctx, input); err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return false, nil
		}
		return false, unavailable("compare_and_swap", err)
	}
	return true, nil
}

func (s *DynamoStore) Delete(ctx context.Context, senderID string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       senderKey(senderID),
	})
	if err != nil {
		return unavailable("delete", err)
	}
	return nil
}

func senderKey(senderID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"senderId": &types.AttributeValueMemberS{Value: senderID},
	}
}
