package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/aws"
)

var (
	// ErrStatusMismatch is returned when a conditional status write finds the order
	// in a different status than expected.
	ErrStatusMismatch = errors.New("status mismatch/conditional failed")
	// ErrTransactionConflict is returned when a transaction was cancelled because an
	// item changed since it was read. Callers re-read and retry.
	ErrTransactionConflict = errors.New("transaction conflict")
	// ErrIdempotencyKeyExists is returned when a checkout replays a used key.
	ErrIdempotencyKeyExists = errors.New("idempotency key already used")
	// ErrOrderExists is returned when an order id collides with an existing order.
	ErrOrderExists = errors.New("order already exists")
)

// Store encapsulates operations on the orders table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a new orders Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

func (s *Store) key(ownerID, orderID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"owner_id": &types.AttributeValueMemberS{Value: ownerID},
		"order_id": &types.AttributeValueMemberS{Value: orderID},
	}
}

func (s *Store) prepare(o *Order) (map[string]types.AttributeValue, error) {
	if o.OrderID == "" {
		o.OrderID = uuid.NewString()
	}
	now := s.nowFunc()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = o.CreatedAt
	}
	item, err := attributevalue.MarshalMap(o)
	if err != nil {
		return nil, fmt.Errorf("marshal order item: %w", err)
	}
	return item, nil
}

// Create writes a new order. The store assigns the order id when it is empty.
func (s *Store) Create(ctx context.Context, o *Order) error {
	item, err := s.prepare(o)
	if err != nil {
		return err
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(order_id)"),
	})
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return ErrOrderExists
		}
		return fmt.Errorf("put order: %w", err)
	}
	return nil
}

// CreateWithIdempotencyTransaction atomically creates:
//   - idempotency record in idempotencyTable (with ConditionExpression attribute_not_exists(idempotency_key))
//   - order record in orders table
//
// idempotencyItem must marshal to a map holding idempotency_key. The order id is
// assigned here when empty, so the caller can store it on the record first.
func (s *Store) CreateWithIdempotencyTransaction(ctx context.Context, idempotencyTable string, idempotencyItem interface{}, o *Order) error {
	idempMap, err := attributevalue.MarshalMap(idempotencyItem)
	if err != nil {
		return fmt.Errorf("marshal idempotency item: %w", err)
	}
	orderMap, err := s.prepare(o)
	if err != nil {
		return err
	}

	transactItems := []types.TransactWriteItem{
		{
			Put: &types.Put{
				TableName:           &idempotencyTable,
				Item:                idempMap,
				ConditionExpression: awsString("attribute_not_exists(idempotency_key)"),
			},
		},
		{
			Put: &types.Put{
				TableName:           &s.tableName,
				Item:                orderMap,
				ConditionExpression: awsString("attribute_not_exists(order_id)"),
			},
		},
	}

	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: transactItems})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) && reasonFailed(tce, 0) {
			return ErrIdempotencyKeyExists
		}
		return fmt.Errorf("transact write: %w", err)
	}
	return nil
}

// Get fetches an order with a strongly consistent read. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, ownerID, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            s.key(ownerID, orderID),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// ListByOwner returns every order of an account, newest first.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]Order, error) {
	return s.query(ctx, ownerID, "")
}

// ListPending returns the account's orders still awaiting payment, newest first.
func (s *Store) ListPending(ctx context.Context, ownerID string) ([]Order, error) {
	return s.query(ctx, ownerID, StatusPending)
}

func (s *Store) query(ctx context.Context, ownerID string, status Status) ([]Order, error) {
	input := &dyn.QueryInput{
		TableName:              &s.tableName,
		KeyConditionExpression: awsString("owner_id = :o"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":o": &types.AttributeValueMemberS{Value: ownerID},
		},
		ConsistentRead: awsBool(true),
	}
	if status != "" {
		input.FilterExpression = awsString("#s = :status")
		input.ExpressionAttributeNames = map[string]string{"#s": "status"}
		input.ExpressionAttributeValues[":status"] = &types.AttributeValueMemberS{Value: string(status)}
	}

	var result []Order
	for {
		out, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("query orders: %w", err)
		}
		var page []Order
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshal orders: %w", err)
		}
		result = append(result, page...)
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// AttachPayment stores the gateway's payment intent and QR on a pending order.
// Returns ErrStatusMismatch if the order is no longer pending.
func (s *Store) AttachPayment(ctx context.Context, ownerID, orderID string, d PaymentDetails) error {
	qr, err := attributevalue.Marshal(d.QR)
	if err != nil {
		return fmt.Errorf("marshal payment qr: %w", err)
	}
	ua, err := attributevalue.Marshal(s.nowFunc())
	if err != nil {
		return fmt.Errorf("marshal updated_at: %w", err)
	}
	_, err = s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              s.key(ownerID, orderID),
		UpdateExpression: awsString("SET payment_intent_id = :pi, payment_client_secret = :cs, payment_qr = :qr, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pi":      &types.AttributeValueMemberS{Value: d.IntentID},
			":cs":      &types.AttributeValueMemberS{Value: d.ClientSecret},
			":qr":      qr,
			":ua":      ua,
			":pending": &types.AttributeValueMemberS{Value: string(StatusPending)},
		},
		ConditionExpression: awsString("#s = :pending"),
	})
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return ErrStatusMismatch
		}
		return fmt.Errorf("update item (attach payment): %w", err)
	}
	return nil
}

// Apply persists a status transition produced by one of the Order.Mark methods.
// Returns ErrStatusMismatch if the order left t.From in the meantime.
func (s *Store) Apply(ctx context.Context, o *Order, t Transition) error {
	u, err := s.transitionUpdate(o, t)
	if err != nil {
		return err
	}
	_, err = s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 u.TableName,
		Key:                       u.Key,
		UpdateExpression:          u.UpdateExpression,
		ConditionExpression:       u.ConditionExpression,
		ExpressionAttributeNames:  u.ExpressionAttributeNames,
		ExpressionAttributeValues: u.ExpressionAttributeValues,
	})
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return ErrStatusMismatch
		}
		return fmt.Errorf("update item (%s -> %s): %w", t.From, t.To, err)
	}
	return nil
}

// TransitionItem returns the transition as a transaction member so it can commit
// together with inventory writes.
func (s *Store) TransitionItem(o *Order, t Transition) (types.TransactWriteItem, error) {
	u, err := s.transitionUpdate(o, t)
	if err != nil {
		return types.TransactWriteItem{}, err
	}
	return types.TransactWriteItem{Update: u}, nil
}

func (s *Store) transitionUpdate(o *Order, t Transition) (*types.Update, error) {
	ua, err := attributevalue.Marshal(t.At)
	if err != nil {
		return nil, fmt.Errorf("marshal updated_at: %w", err)
	}
	names := map[string]string{"#s": "status"}
	values := map[string]types.AttributeValue{
		":to":   &types.AttributeValueMemberS{Value: string(t.To)},
		":from": &types.AttributeValueMemberS{Value: string(t.From)},
		":ua":   ua,
	}
	expr := "SET #s = :to, updated_at = :ua"

	fields := make([]string, 0, len(t.Fields))
	for k := range t.Fields {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	for i, k := range fields {
		av, err := attributevalue.Marshal(t.Fields[k])
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", k, err)
		}
		n, v := fmt.Sprintf("#f%d", i), fmt.Sprintf(":f%d", i)
		names[n] = k
		values[v] = av
		expr += fmt.Sprintf(", %s = %s", n, v)
	}

	return &types.Update{
		TableName:                 &s.tableName,
		Key:                       s.key(o.OwnerID, o.OrderID),
		UpdateExpression:          &expr,
		ConditionExpression:       awsString("#s = :from"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	}, nil
}

// FlagLatePayment records a gateway success that arrived after the order failed.
func (s *Store) FlagLatePayment(ctx context.Context, ownerID, orderID, intentID string, at time.Time) error {
	av, err := attributevalue.Marshal(at)
	if err != nil {
		return fmt.Errorf("marshal late_payment_at: %w", err)
	}
	_, err = s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      s.key(ownerID, orderID),
		UpdateExpression:         awsString("SET late_payment_intent_id = :pi, late_payment_at = :at, updated_at = :at"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pi":     &types.AttributeValueMemberS{Value: intentID},
			":at":     av,
			":failed": &types.AttributeValueMemberS{Value: string(StatusFailed)},
		},
		ConditionExpression: awsString("#s = :failed"),
	})
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return ErrStatusMismatch
		}
		return fmt.Errorf("update item (late payment): %w", err)
	}
	return nil
}

// Transact commits items atomically. A cancellation caused by a failed condition
// or a concurrent transaction maps to ErrTransactionConflict.
func (s *Store) Transact(ctx context.Context, items []types.TransactWriteItem) error {
	_, err := s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: items})
	if err == nil {
		return nil
	}
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		for _, r := range tce.CancellationReasons {
			if r.Code == nil {
				continue
			}
			switch *r.Code {
			case "ConditionalCheckFailed", "TransactionConflict":
				return fmt.Errorf("%w: %v", ErrTransactionConflict, err)
			}
		}
		return fmt.Errorf("transaction canceled: %w", err)
	}
	var conflict *types.TransactionConflictException
	if errors.As(err, &conflict) {
		return fmt.Errorf("%w: %v", ErrTransactionConflict, err)
	}
	return fmt.Errorf("transact write: %w", err)
}

func reasonFailed(tce *types.TransactionCanceledException, idx int) bool {
	if idx >= len(tce.CancellationReasons) {
		return false
	}
	code := tce.CancellationReasons[idx].Code
	return code != nil && *code == "ConditionalCheckFailed"
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
