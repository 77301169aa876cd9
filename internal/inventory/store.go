package inventory

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/aws"
)

// ErrProductExists is returned by Create when the product is already stored.
var ErrProductExists = errors.New("product already exists")

// Store encapsulates operations on the products table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
}

// NewStore creates a new products Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

func (s *Store) key(ref Ref) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"owner_id":    &types.AttributeValueMemberS{Value: ref.OwnerID},
		"product_key": &types.AttributeValueMemberS{Value: ref.SortKey()},
	}
}

// Get fetches a product with a strongly consistent read. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, ref Ref) (*Product, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            s.key(ref),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get product %s: %w", ref, err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var p Product
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, fmt.Errorf("unmarshal product: %w", err)
	}
	return &p, nil
}

// Create stores a new product.
func (s *Store) Create(ctx context.Context, p Product) error {
	p.ProductKey = p.Ref().SortKey()
	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return fmt.Errorf("marshal product: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(product_key)"),
	})
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return ErrProductExists
		}
		return fmt.Errorf("put product: %w", err)
	}
	return nil
}

// PlanDecrement reads every product an order draws from and returns the
// transaction members that take the stock, clamped at zero.
//
// Each member is conditioned on the quantity observed here, so a concurrent
// change cancels the whole transaction instead of being overwritten. Deleted
// products are skipped but guarded with attribute_not_exists so a product
// re-created mid-flight also forces a retry.
func (s *Store) PlanDecrement(ctx context.Context, demands []Demand) ([]types.TransactWriteItem, []Adjustment, error) {
	items := make([]types.TransactWriteItem, 0, len(demands))
	adjustments := make([]Adjustment, 0, len(demands))

	for _, d := range demands {
		p, err := s.Get(ctx, d.Ref)
		if err != nil {
			return nil, nil, err
		}
		if p == nil {
			items = append(items, types.TransactWriteItem{
				ConditionCheck: &types.ConditionCheck{
					TableName:           &s.tableName,
					Key:                 s.key(d.Ref),
					ConditionExpression: awsString("attribute_not_exists(product_key)"),
				},
			})
			adjustments = append(adjustments, Adjustment{Ref: d.Ref, Missing: true})
			continue
		}

		next := p.Quantity - d.Quantity
		if next < 0 {
			next = 0
		}
		items = append(items, types.TransactWriteItem{
			Update: &types.Update{
				TableName:        &s.tableName,
				Key:              s.key(d.Ref),
				UpdateExpression: awsString("SET quantity = :next"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":next":     numberOf(next),
					":observed": numberOf(p.Quantity),
				},
				ConditionExpression: awsString("attribute_exists(product_key) AND quantity = :observed"),
			},
		})
		adjustments = append(adjustments, Adjustment{Ref: d.Ref, Before: p.Quantity, After: next})
	}
	return items, adjustments, nil
}

func numberOf(n int) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.Itoa(n)}
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
