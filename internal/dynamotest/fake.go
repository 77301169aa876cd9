// Package dynamotest provides an in-memory DynamoDB used by package tests.
//
// It understands the small expression grammar the stores emit: conditions are
// AND-joined clauses of attribute_exists(x), attribute_not_exists(x), "x = :v" and
// "x <> :v"; updates are "SET a = :x, b = :y". Anything else is rejected so a store
// change that outgrows the fake fails loudly instead of silently passing.
package dynamotest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type table struct {
	keys  []string
	items map[string]map[string]types.AttributeValue
}

// Fake is a concurrency-safe in-memory DynamoDB.
type Fake struct {
	mu     sync.Mutex
	tables map[string]*table
	calls  map[string]int

	// BeforeTransact, when set, runs before every TransactWriteItems call and
	// outside the fake's lock. Tests use it to line up concurrent writers.
	BeforeTransact func(in *dyn.TransactWriteItemsInput)
	// TransactErr, when set, is consulted before applying a transaction; a non-nil
	// result is returned as-is and nothing is written.
	TransactErr func(in *dyn.TransactWriteItemsInput) error
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		tables: map[string]*table{},
		calls:  map[string]int{},
	}
}

// CreateTable registers a table with its key attributes (partition key first).
func (f *Fake) CreateTable(name string, keyAttrs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[name] = &table{keys: keyAttrs, items: map[string]map[string]types.AttributeValue{}}
}

// Seed writes an item without evaluating any condition.
func (f *Fake) Seed(tableName string, item map[string]types.AttributeValue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.mustTable(tableName)
	k, err := t.keyOf(item)
	if err != nil {
		panic(err)
	}
	t.items[k] = copyItem(item)
}

// Item returns a copy of the stored item, or nil.
func (f *Fake) Item(tableName string, keyValues ...string) map[string]types.AttributeValue {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.mustTable(tableName)
	item, ok := t.items[strings.Join(keyValues, "|")]
	if !ok {
		return nil
	}
	return copyItem(item)
}

// Delete removes an item without evaluating any condition.
func (f *Fake) Delete(tableName string, keyValues ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.mustTable(tableName).items, strings.Join(keyValues, "|"))
}

// Len returns the number of items stored in a table.
func (f *Fake) Len(tableName string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.mustTable(tableName).items)
}

// Calls returns how many times an operation (e.g. "TransactWriteItems") ran.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *Fake) mustTable(name string) *table {
	t, ok := f.tables[name]
	if !ok {
		panic(fmt.Sprintf("dynamotest: unknown table %q", name))
	}
	return t
}

func (f *Fake) table(name *string) (*table, error) {
	if name == nil {
		return nil, errors.New("ValidationException: missing table name")
	}
	t, ok := f.tables[*name]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("table not found: " + *name)}
	}
	return t, nil
}

func (t *table) keyOf(item map[string]types.AttributeValue) (string, error) {
	parts := make([]string, 0, len(t.keys))
	for _, k := range t.keys {
		v, ok := item[k]
		if !ok {
			return "", fmt.Errorf("ValidationException: missing key attribute %q", k)
		}
		s, ok := scalar(v)
		if !ok {
			return "", fmt.Errorf("ValidationException: key attribute %q must be S or N", k)
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, "|"), nil
}

func (f *Fake) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["PutItem"]++
	t, err := f.table(params.TableName)
	if err != nil {
		return nil, err
	}
	k, err := t.keyOf(params.Item)
	if err != nil {
		return nil, err
	}
	ok, err := evalCondition(params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, t.items[k])
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	}
	t.items[k] = copyItem(params.Item)
	return &dyn.PutItemOutput{}, nil
}

func (f *Fake) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["GetItem"]++
	t, err := f.table(params.TableName)
	if err != nil {
		return nil, err
	}
	k, err := t.keyOf(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := t.items[k]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: copyItem(item)}, nil
}

func (f *Fake) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["UpdateItem"]++
	t, err := f.table(params.TableName)
	if err != nil {
		return nil, err
	}
	k, err := t.keyOf(params.Key)
	if err != nil {
		return nil, err
	}
	current := t.items[k]
	ok, err := evalCondition(params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, current)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	}
	next, err := applyUpdate(current, params.Key, params.UpdateExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	t.items[k] = next
	out := &dyn.UpdateItemOutput{}
	if params.ReturnValues == types.ReturnValueAllNew {
		out.Attributes = copyItem(next)
	}
	return out, nil
}

func (f *Fake) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Query"]++
	t, err := f.table(params.TableName)
	if err != nil {
		return nil, err
	}
	if params.KeyConditionExpression == nil {
		return nil, errors.New("ValidationException: missing key condition")
	}
	keys := make([]string, 0, len(t.items))
	for k := range t.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := &dyn.QueryOutput{}
	for _, k := range keys {
		item := t.items[k]
		match, err := evalCondition(params.KeyConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, item)
		if err != nil {
			return nil, err
		}
		if !match {
			continue
		}
		keep, err := evalCondition(params.FilterExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, item)
		if err != nil {
			return nil, err
		}
		if keep {
			out.Items = append(out.Items, copyItem(item))
		}
	}
	out.Count = int32(len(out.Items))
	return out, nil
}

func (f *Fake) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	if f.BeforeTransact != nil {
		f.BeforeTransact(params)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["TransactWriteItems"]++
	if f.TransactErr != nil {
		if err := f.TransactErr(params); err != nil {
			return nil, err
		}
	}
	if len(params.TransactItems) > 100 {
		return nil, errors.New("ValidationException: too many items in transaction")
	}

	type op struct {
		t    *table
		key  string
		item types.TransactWriteItem
	}
	ops := make([]op, 0, len(params.TransactItems))
	seen := map[string]bool{}
	reasons := make([]types.CancellationReason, len(params.TransactItems))
	failed := false

	for i, it := range params.TransactItems {
		var (
			tableName *string
			keyAttrs  map[string]types.AttributeValue
			cond      *string
			names     map[string]string
			values    map[string]types.AttributeValue
		)
		switch {
		case it.Put != nil:
			tableName, keyAttrs, cond, names, values = it.Put.TableName, it.Put.Item, it.Put.ConditionExpression, it.Put.ExpressionAttributeNames, it.Put.ExpressionAttributeValues
		case it.Update != nil:
			tableName, keyAttrs, cond, names, values = it.Update.TableName, it.Update.Key, it.Update.ConditionExpression, it.Update.ExpressionAttributeNames, it.Update.ExpressionAttributeValues
		case it.ConditionCheck != nil:
			tableName, keyAttrs, cond, names, values = it.ConditionCheck.TableName, it.ConditionCheck.Key, it.ConditionCheck.ConditionExpression, it.ConditionCheck.ExpressionAttributeNames, it.ConditionCheck.ExpressionAttributeValues
		case it.Delete != nil:
			tableName, keyAttrs, cond, names, values = it.Delete.TableName, it.Delete.Key, it.Delete.ConditionExpression, it.Delete.ExpressionAttributeNames, it.Delete.ExpressionAttributeValues
		default:
			return nil, errors.New("ValidationException: empty transact item")
		}
		t, err := f.table(tableName)
		if err != nil {
			return nil, err
		}
		k, err := t.keyOf(keyAttrs)
		if err != nil {
			return nil, err
		}
		full := *tableName + "/" + k
		if seen[full] {
			return nil, errors.New("ValidationException: Transaction request cannot include multiple operations on one item")
		}
		seen[full] = true

		ok, err := evalCondition(cond, names, values, t.items[k])
		if err != nil {
			return nil, err
		}
		if ok {
			reasons[i] = types.CancellationReason{Code: aws.String("None")}
		} else {
			reasons[i] = types.CancellationReason{Code: aws.String("ConditionalCheckFailed"), Message: aws.String("The conditional request failed")}
			failed = true
		}
		ops = append(ops, op{t: t, key: k, item: it})
	}

	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             aws.String("Transaction cancelled, please refer cancellation reasons for specific reasons"),
			CancellationReasons: reasons,
		}
	}

	for _, o := range ops {
		switch {
		case o.item.Put != nil:
			o.t.items[o.key] = copyItem(o.item.Put.Item)
		case o.item.Update != nil:
			u := o.item.Update
			next, err := applyUpdate(o.t.items[o.key], u.Key, u.UpdateExpression, u.ExpressionAttributeNames, u.ExpressionAttributeValues)
			if err != nil {
				return nil, err
			}
			o.t.items[o.key] = next
		case o.item.Delete != nil:
			delete(o.t.items, o.key)
		}
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

func evalCondition(expr *string, names map[string]string, values map[string]types.AttributeValue, item map[string]types.AttributeValue) (bool, error) {
	if expr == nil || strings.TrimSpace(*expr) == "" {
		return true, nil
	}
	for _, clause := range strings.Split(*expr, " AND ") {
		clause = strings.TrimSpace(clause)
		ok, err := evalClause(clause, names, values, item)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func evalClause(clause string, names map[string]string, values map[string]types.AttributeValue, item map[string]types.AttributeValue) (bool, error) {
	for _, fn := range []string{"attribute_not_exists", "attribute_exists"} {
		if strings.HasPrefix(clause, fn+"(") && strings.HasSuffix(clause, ")") {
			attr, err := resolveName(strings.TrimSuffix(strings.TrimPrefix(clause, fn+"("), ")"), names)
			if err != nil {
				return false, err
			}
			_, exists := item[attr]
			if fn == "attribute_exists" {
				return exists, nil
			}
			return !exists, nil
		}
	}

	fields := strings.Fields(clause)
	if len(fields) != 3 || (fields[1] != "=" && fields[1] != "<>") {
		return false, fmt.Errorf("dynamotest: unsupported condition %q", clause)
	}
	attr, err := resolveName(fields[0], names)
	if err != nil {
		return false, err
	}
	want, ok := values[fields[2]]
	if !ok {
		return false, fmt.Errorf("ValidationException: missing value %s", fields[2])
	}
	got, exists := item[attr]
	equal := exists && sameValue(got, want)
	if fields[1] == "=" {
		return equal, nil
	}
	return exists && !equal, nil
}

func applyUpdate(current, key map[string]types.AttributeValue, expr *string, names map[string]string, values map[string]types.AttributeValue) (map[string]types.AttributeValue, error) {
	next := copyItem(current)
	if next == nil {
		next = copyItem(key)
	}
	if expr == nil {
		return next, nil
	}
	body := strings.TrimSpace(*expr)
	if !strings.HasPrefix(body, "SET ") {
		return nil, fmt.Errorf("dynamotest: unsupported update %q", body)
	}
	for _, assign := range strings.Split(strings.TrimPrefix(body, "SET "), ",") {
		parts := strings.SplitN(assign, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("dynamotest: unsupported assignment %q", assign)
		}
		attr, err := resolveName(strings.TrimSpace(parts[0]), names)
		if err != nil {
			return nil, err
		}
		placeholder := strings.TrimSpace(parts[1])
		v, ok := values[placeholder]
		if !ok {
			return nil, fmt.Errorf("ValidationException: missing value %s", placeholder)
		}
		next[attr] = v
	}
	return next, nil
}

func resolveName(token string, names map[string]string) (string, error) {
	if !strings.HasPrefix(token, "#") {
		return token, nil
	}
	n, ok := names[token]
	if !ok {
		return "", fmt.Errorf("ValidationException: missing name %s", token)
	}
	return n, nil
}

func scalar(v types.AttributeValue) (string, bool) {
	switch tv := v.(type) {
	case *types.AttributeValueMemberS:
		return tv.Value, true
	case *types.AttributeValueMemberN:
		return tv.Value, true
	}
	return "", false
}

func sameValue(a, b types.AttributeValue) bool {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberBOOL:
		bv, ok := b.(*types.AttributeValueMemberBOOL)
		return ok && av.Value == bv.Value
	}
	return false
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	if item == nil {
		return nil
	}
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}
