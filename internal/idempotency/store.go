package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/aws"
)

// Store encapsulates idempotency operations against DynamoDB.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	ttlWindow time.Duration // default TTL window when creating entries
	nowFunc   func() time.Time
}

// NewStore returns a configured Store.
// ttlWindow: default TTL window (e.g., 48*time.Hour)
func NewStore(client aws.DynamoDBAPI, tableName string, ttlWindow time.Duration) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		ttlWindow: ttlWindow,
		nowFunc:   time.Now,
	}
}

// TableName is the idempotency table, needed by callers that write records
// inside their own transactions.
func (s *Store) TableName() string { return s.tableName }

// NewRecord builds an IN_PROGRESS record for a checkout. It is not written here;
// the orders store puts it together with the order.
func (s *Store) NewRecord(key, ownerID, orderID string) Record {
	now := s.nowFunc()
	return Record{
		IdempotencyKey: key,
		Status:         StatusInProgress,
		OwnerID:        ownerID,
		OrderID:        orderID,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(s.ttlWindow).Unix(),
	}
}

// Claim creates a standalone IN_PROGRESS record if the key does not exist.
// Returns (created=true, nil) if successfully created.
// Returns (created=false, nil) if the record already exists (caller should Get to inspect).
func (s *Store) Claim(ctx context.Context, key, ownerID string) (bool, error) {
	item, err := attributevalue.MarshalMap(s.NewRecord(key, ownerID, ""))
	if err != nil {
		return false, fmt.Errorf("marshal record: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(idempotency_key)"),
	})
	if err != nil {
		var sc smithy.APIError
		if errors.As(err, &sc) && sc.ErrorCode() == "ConditionalCheckFailedException" {
			return false, nil
		}
		return false, fmt.Errorf("put item: %w", err)
	}
	return true, nil
}

// Get retrieves an idempotency record by key. If not found, returns (nil, nil).
// Records past their TTL are treated as absent; DynamoDB deletes them lazily.
func (s *Store) Get(ctx context.Context, key string) (*Record, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"idempotency_key": &types.AttributeValueMemberS{Value: key},
		},
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	if rec.ExpiresAt > 0 && s.nowFunc().Unix() >= rec.ExpiresAt {
		return nil, nil
	}
	return &rec, nil
}

// MarkDone sets status to DONE and records the order and response status that a
// replay should return.
func (s *Store) MarkDone(ctx context.Context, key, orderID string, responseStatus int) error {
	return s.update(ctx, key, "SET #s = :st, order_id = :oid, response_status = :rs, updated_at = :ua", map[string]types.AttributeValue{
		":st":  &types.AttributeValueMemberS{Value: StatusDone},
		":oid": &types.AttributeValueMemberS{Value: orderID},
		":rs":  &types.AttributeValueMemberN{Value: strconv.Itoa(responseStatus)},
	})
}

// MarkFailed marks the idempotency record as FAILED and stores a note.
func (s *Store) MarkFailed(ctx context.Context, key, note string) error {
	return s.update(ctx, key, "SET #s = :st, note = :n, updated_at = :ua", map[string]types.AttributeValue{
		":st": &types.AttributeValueMemberS{Value: StatusFailed},
		":n":  &types.AttributeValueMemberS{Value: note},
	})
}

func (s *Store) update(ctx context.Context, key, expr string, values map[string]types.AttributeValue) error {
	ua, err := attributevalue.Marshal(s.nowFunc())
	if err != nil {
		return fmt.Errorf("marshal updated_at: %w", err)
	}
	values[":ua"] = ua
	_, err = s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"idempotency_key": &types.AttributeValueMemberS{Value: key},
		},
		UpdateExpression:          awsString(expr),
		ConditionExpression:       awsString("attribute_exists(idempotency_key)"),
		ExpressionAttributeNames:  map[string]string{"#s": "status"},
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return fmt.Errorf("update item (%s): %w", key, err)
	}
	return nil
}

// Helper
func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
