package dynadoc

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the interface satisfied by both the real AWS DynamoDB client
// and any test doubles / local stubs.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *ddb.GetItemInput, optFns ...func(*ddb.Options)) (*ddb.GetItemOutput, error)
	PutItem(ctx context.Context, params *ddb.PutItemInput, optFns ...func(*ddb.Options)) (*ddb.PutItemOutput, error)
	Scan(ctx context.Context, params *ddb.ScanInput, optFns ...func(*ddb.Options)) (*ddb.ScanOutput, error)
	BatchGetItem(ctx context.Context, params *ddb.BatchGetItemInput, optFns ...func(*ddb.Options)) (*ddb.BatchGetItemOutput, error)

	CreateTable(ctx context.Context, params *ddb.CreateTableInput, optFns ...func(*ddb.Options)) (*ddb.CreateTableOutput, error)
	DeleteTable(ctx context.Context, params *ddb.DeleteTableInput, optFns ...func(*ddb.Options)) (*ddb.DeleteTableOutput, error)
	DescribeTable(ctx context.Context, params *ddb.DescribeTableInput, optFns ...func(*ddb.Options)) (*ddb.DescribeTableOutput, error)
}

// NewClient creates a DynamoDB client from the ambient AWS configuration.
func NewClient(ctx context.Context, optFns ...func(*config.LoadOptions) error) (*ddb.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, NewError("unable to load AWS config", WithCause(err))
	}
	return ddb.NewFromConfig(cfg), nil
}

// DynamoStore adapts a DynamoDB client to the StoreClient surface.
type DynamoStore struct {
	client DynamoAPI
	log    Logger
}

// NewDynamoStore wraps a DynamoDB client. logger may be nil.
func NewDynamoStore(client DynamoAPI, logger Logger) *DynamoStore {
	if logger == nil {
		logger = nopLogger{}
	}
	return &DynamoStore{client: client, log: logger}
}

func marshalItem(item Item) (map[string]types.AttributeValue, error) {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return nil, NewError("cannot marshal item", WithCause(err))
	}
	return av, nil
}

func unmarshalItem(av map[string]types.AttributeValue) (Item, error) {
	var item Item
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return nil, NewError("cannot unmarshal item", WithCause(err))
	}
	return item, nil
}

// PutItem writes a full item. NotExists conditions become an
// attribute_not_exists guard; a conditional failure maps to a
// ValidationError.
func (s *DynamoStore) PutItem(ctx context.Context, table string, item Item, cond *PutConditions) error {
	av, err := marshalItem(item)
	if err != nil {
		return err
	}
	input := &ddb.PutItemInput{TableName: &table, Item: av}
	if cond != nil && len(cond.NotExists) > 0 {
		names := map[string]string{}
		var parts []string
		for i, attr := range cond.NotExists {
			token := fmt.Sprintf("#_%d", i)
			names[token] = attr
			parts = append(parts, fmt.Sprintf("attribute_not_exists(%s)", token))
		}
		expr := strings.Join(parts, " AND ")
		input.ConditionExpression = &expr
		input.ExpressionAttributeNames = names
	}
	logData(s.log, "PutItem", Item{"table": table})
	if _, err := s.client.PutItem(ctx, input); err != nil {
		if strings.Contains(err.Error(), "ConditionalCheckFailed") {
			return NewError(fmt.Sprintf("conditional put failed on table %q", table),
				WithCode(ErrValidation), WithCause(err))
		}
		return NewError(fmt.Sprintf("put failed on table %q", table),
			WithCode(ErrRuntime), WithCause(err))
	}
	return nil
}

// GetItem reads one item by its key attributes. Returns (nil, nil) when the
// item does not exist.
func (s *DynamoStore) GetItem(ctx context.Context, table string, key Item, consistent bool) (Item, error) {
	av, err := marshalItem(key)
	if err != nil {
		return nil, err
	}
	input := &ddb.GetItemInput{TableName: &table, Key: av, ConsistentRead: &consistent}
	logData(s.log, "GetItem", Item{"table": table, "consistent": consistent})
	out, err := s.client.GetItem(ctx, input)
	if err != nil {
		return nil, NewError(fmt.Sprintf("get failed on table %q", table),
			WithCode(ErrRuntime), WithCause(err))
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	return unmarshalItem(out.Item)
}

// expression accumulates a filter expression with substitution tokens so
// attribute names never collide with reserved words.
type expression struct {
	parts  []string
	names  map[string]string
	values map[string]types.AttributeValue
}

func newExpression() *expression {
	return &expression{names: map[string]string{}, values: map[string]types.AttributeValue{}}
}

func (e *expression) addName(name string) string {
	token := fmt.Sprintf("#_%d", len(e.names))
	e.names[token] = name
	return token
}

func (e *expression) addValue(v any) (string, error) {
	av, err := attributevalue.Marshal(v)
	if err != nil {
		return "", NewError("cannot marshal filter value", WithCause(err))
	}
	token := fmt.Sprintf(":_%d", len(e.values))
	e.values[token] = av
	return token, nil
}

// addPredicate appends one predicate term. A []any value becomes an IN list.
func (e *expression) addPredicate(name string, value any) error {
	n := e.addName(name)
	if list, ok := value.([]any); ok {
		var tokens []string
		for _, v := range list {
			t, err := e.addValue(v)
			if err != nil {
				return err
			}
			tokens = append(tokens, t)
		}
		e.parts = append(e.parts, fmt.Sprintf("%s IN (%s)", n, strings.Join(tokens, ", ")))
		return nil
	}
	t, err := e.addValue(value)
	if err != nil {
		return err
	}
	e.parts = append(e.parts, fmt.Sprintf("%s = %s", n, t))
	return nil
}

func (e *expression) filter() string { return strings.Join(e.parts, " AND ") }

func sortedKeys(m Item) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func buildFilter(predicate Item) (*expression, error) {
	if len(predicate) == 0 {
		return nil, nil
	}
	e := newExpression()
	for _, name := range sortedKeys(predicate) {
		if err := e.addPredicate(name, predicate[name]); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// QueryExists reports whether any item matches the predicate. The scan stops
// at the first matching page.
func (s *DynamoStore) QueryExists(ctx context.Context, table string, predicate Item) (bool, error) {
	expr, err := buildFilter(predicate)
	if err != nil {
		return false, err
	}
	one := int32(1)
	input := &ddb.ScanInput{TableName: &table}
	if expr != nil {
		f := expr.filter()
		input.FilterExpression = &f
		input.ExpressionAttributeNames = expr.names
		input.ExpressionAttributeValues = expr.values
	} else {
		input.Limit = &one
	}
	logData(s.log, "QueryExists", Item{"table": table})
	for {
		out, err := s.client.Scan(ctx, input)
		if err != nil {
			return false, NewError(fmt.Sprintf("scan failed on table %q", table),
				WithCode(ErrRuntime), WithCause(err))
		}
		if out.Count > 0 {
			return true, nil
		}
		if out.LastEvaluatedKey == nil {
			return false, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// CountItems counts items matching the predicate, following pagination.
func (s *DynamoStore) CountItems(ctx context.Context, table string, predicate Item) (int64, error) {
	expr, err := buildFilter(predicate)
	if err != nil {
		return 0, err
	}
	input := &ddb.ScanInput{TableName: &table, Select: types.SelectCount}
	if expr != nil {
		f := expr.filter()
		input.FilterExpression = &f
		input.ExpressionAttributeNames = expr.names
		input.ExpressionAttributeValues = expr.values
	}
	logData(s.log, "CountItems", Item{"table": table})
	var total int64
	for {
		out, err := s.client.Scan(ctx, input)
		if err != nil {
			return 0, NewError(fmt.Sprintf("scan failed on table %q", table),
				WithCode(ErrRuntime), WithCause(err))
		}
		total += int64(out.Count)
		if out.LastEvaluatedKey == nil {
			return total, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

const batchGetLimit = 100

// BatchGetExistence reports whether at least one key resolves to an existing
// item. Unprocessed keys are retried with backoff.
func (s *DynamoStore) BatchGetExistence(ctx context.Context, table string, keys []Item) (bool, error) {
	for start := 0; start < len(keys); start += batchGetLimit {
		end := start + batchGetLimit
		if end > len(keys) {
			end = len(keys)
		}
		var avKeys []map[string]types.AttributeValue
		for _, k := range keys[start:end] {
			av, err := marshalItem(k)
			if err != nil {
				return false, err
			}
			avKeys = append(avKeys, av)
		}
		request := map[string]types.KeysAndAttributes{table: {Keys: avKeys}}
		for attempt := 0; len(request) > 0; attempt++ {
			logData(s.log, "BatchGetItem", Item{"table": table, "keys": len(request[table].Keys)})
			out, err := s.client.BatchGetItem(ctx, &ddb.BatchGetItemInput{RequestItems: request})
			if err != nil {
				return false, NewError(fmt.Sprintf("batch get failed on table %q", table),
					WithCode(ErrRuntime), WithCause(err))
			}
			if len(out.Responses[table]) > 0 {
				return true, nil
			}
			if len(out.UnprocessedKeys) == 0 {
				break
			}
			if attempt >= 5 {
				return false, NewError(fmt.Sprintf("batch get on table %q left unprocessed keys", table),
					WithCode(ErrRuntime))
			}
			request = out.UnprocessedKeys
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(time.Duration(1<<attempt) * 25 * time.Millisecond):
			}
		}
	}
	return false, nil
}

func scalarAttrType(t FieldType) types.ScalarAttributeType {
	switch t {
	case FieldTypeInteger, FieldTypeNumber:
		return types.ScalarAttributeTypeN
	case FieldTypeBinary:
		return types.ScalarAttributeTypeB
	default:
		return types.ScalarAttributeTypeS
	}
}

// CreateTable provisions the table backing a document type from its declared
// key. Capacities of zero select on-demand billing.
func (s *DynamoStore) CreateTable(ctx context.Context, t *DocumentType) error {
	pk := t.PrimaryKey()
	table := t.Table()
	input := &ddb.CreateTableInput{
		TableName: &table.Name,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: &pk.Hash, AttributeType: scalarAttrType(pk.HashType)},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: &pk.Hash, KeyType: types.KeyTypeHash},
		},
	}
	if pk.Range != "" {
		input.AttributeDefinitions = append(input.AttributeDefinitions,
			types.AttributeDefinition{AttributeName: &pk.Range, AttributeType: scalarAttrType(pk.RangeType)})
		input.KeySchema = append(input.KeySchema,
			types.KeySchemaElement{AttributeName: &pk.Range, KeyType: types.KeyTypeRange})
	}
	if table.ReadCapacity > 0 && table.WriteCapacity > 0 {
		input.BillingMode = types.BillingModeProvisioned
		input.ProvisionedThroughput = &types.ProvisionedThroughput{
			ReadCapacityUnits:  &table.ReadCapacity,
			WriteCapacityUnits: &table.WriteCapacity,
		}
	} else {
		input.BillingMode = types.BillingModePayPerRequest
	}
	logInfo(s.log, "Creating table", Item{"table": table.Name})
	if _, err := s.client.CreateTable(ctx, input); err != nil {
		return NewError(fmt.Sprintf("create failed for table %q", table.Name),
			WithCode(ErrRuntime), WithCause(err))
	}
	return nil
}

// DeleteTable drops the table backing a document type.
func (s *DynamoStore) DeleteTable(ctx context.Context, t *DocumentType) error {
	name := t.Table().Name
	logInfo(s.log, "Deleting table", Item{"table": name})
	if _, err := s.client.DeleteTable(ctx, &ddb.DeleteTableInput{TableName: &name}); err != nil {
		return NewError(fmt.Sprintf("delete failed for table %q", name),
			WithCode(ErrRuntime), WithCause(err))
	}
	return nil
}

// EnsureTable creates the table when it does not already exist.
func (s *DynamoStore) EnsureTable(ctx context.Context, t *DocumentType) error {
	name := t.Table().Name
	_, err := s.client.DescribeTable(ctx, &ddb.DescribeTableInput{TableName: &name})
	if err == nil {
		return nil
	}
	var nf *types.ResourceNotFoundException
	if !errors.As(err, &nf) {
		return NewError(fmt.Sprintf("describe failed for table %q", name),
			WithCode(ErrRuntime), WithCause(err))
	}
	return s.CreateTable(ctx, t)
}
