package session

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDynamo evaluates the two condition expressions DynamoStore issues.
type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
	err   error
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func keyOf(item map[string]types.AttributeValue) string {
	return item["senderId"].(*types.AttributeValueMemberS).Value
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	key := keyOf(in.Item)
	existing, exists := f.items[key]
	switch aws.ToString(in.ConditionExpression) {
	case "attribute_not_exists(senderId)":
		if exists {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("exists")}
		}
	case "version = :expected":
		want := in.ExpressionAttributeValues[":expected"].(*types.AttributeValueMemberN).Value
		if !exists || existing["version"].(*types.AttributeValueMemberN).Value != want {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("version")}
		}
	}
	f.items[key] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &dynamodb.GetItemOutput{Item: f.items[keyOf(in.Key)]}, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, keyOf(in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func TestDynamoStoreContract(t *testing.T) {
	runStoreContract(t, func(_ *testing.T, clock *testClock) Store {
		return NewDynamoStore(newFakeDynamo(), "remit_sessions", testIdle, WithClock(clock.Now))
	})
}

func TestDynamoStoreWritesTTLAttribute(t *testing.T) {
	fake := newFakeDynamo()
	clock := newTestClock()
	store := NewDynamoStore(fake, "remit_sessions", testIdle, WithClock(clock.Now))
	ctx := context.Background()

	sess, err := store.LoadOrCreate(ctx, "+1555")
	require.NoError(t, err)
	ok, err := store.CompareAndSwap(ctx, "+1555", 0, advance(sess, StateCorridorSelection, clock.Now()))
	require.NoError(t, err)
	require.True(t, ok)

	item := fake.items["+1555"]
	want := strconv.FormatInt(clock.Now().Add(2*testIdle).Unix(), 10)
	assert.Equal(t, want, item["expiresAt"].(*types.AttributeValueMemberN).Value)
	assert.Equal(t, "corridor_selection", item["state"].(*types.AttributeValueMemberS).Value)
}

func TestDynamoStoreUnavailable(t *testing.T) {
	fake := newFakeDynamo()
	fake.err = errors.New("throttled")
	store := NewDynamoStore(fake, "remit_sessions", testIdle)

	_, err := store.LoadOrCreate(context.Background(), "+1555")
	assert.ErrorIs(t, err, ErrUnavailable)

	sess := New("+1555", newTestClock().Now())
	_, err = store.CompareAndSwap(context.Background(), "+1555", 0, advance(sess, StateCorridorSelection, sess.LastUpdated))
	assert.ErrorIs(t, err, ErrUnavailable)
}
