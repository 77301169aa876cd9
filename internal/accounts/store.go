// Package accounts reads customer profiles needed at payment time.
package accounts

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/aws"
)

// Account is the item stored in the users table.
type Account struct {
	UserID      string `dynamodbav:"user_id" json:"userId"` // PK
	Email       string `dynamodbav:"email,omitempty" json:"email,omitempty"`
	DisplayName string `dynamodbav:"display_name,omitempty" json:"displayName,omitempty"`
}

// Store encapsulates reads and writes on the users table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
}

// NewStore creates a new accounts Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

// Get fetches an account. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, userID string) (*Account, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var a Account
	if err := attributevalue.UnmarshalMap(out.Item, &a); err != nil {
		return nil, fmt.Errorf("unmarshal account: %w", err)
	}
	return &a, nil
}

// Put creates or replaces an account.
func (s *Store) Put(ctx context.Context, a Account) error {
	item, err := attributevalue.MarshalMap(a)
	if err != nil {
		return fmt.Errorf("marshal account: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dyn.PutItemInput{TableName: &s.tableName, Item: item}); err != nil {
		return fmt.Errorf("put account: %w", err)
	}
	return nil
}
