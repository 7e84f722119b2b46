// Shared test infrastructure: an in-memory DynamoDB double and assert helpers.
package dynadoc_test

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	dd "github.com/dynadoc/dynadoc"
)

var (
	reULID = regexp.MustCompile(`^[0-9A-Z]{26}$`)
	reUUID = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

func bg() context.Context { return context.Background() }

// mockTable holds two snapshots of one table: latest reflects every
// acknowledged write, visible lags behind until flush. Consistent reads serve
// latest, everything else serves visible.
type mockTable struct {
	keyAttrs []string
	latest   map[string]map[string]types.AttributeValue
	visible  map[string]map[string]types.AttributeValue
}

type mockDynamo struct {
	mu      sync.Mutex
	tables  map[string]*mockTable
	lagging bool // when true, writes stay invisible to eventual reads until flush
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{tables: map[string]*mockTable{}}
}

func (m *mockDynamo) addTable(name string, keyAttrs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[name] = &mockTable{
		keyAttrs: keyAttrs,
		latest:   map[string]map[string]types.AttributeValue{},
		visible:  map[string]map[string]types.AttributeValue{},
	}
}

// flush propagates all writes to the eventually-consistent snapshot.
func (m *mockDynamo) flush() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tbl := range m.tables {
		for k, v := range tbl.latest {
			tbl.visible[k] = v
		}
		for k := range tbl.visible {
			if _, ok := tbl.latest[k]; !ok {
				delete(tbl.visible, k)
			}
		}
	}
}

func avString(av types.AttributeValue) string {
	var v any
	if err := attributevalue.Unmarshal(av, &v); err != nil {
		return fmt.Sprintf("!%v", err)
	}
	return fmt.Sprintf("%v", v)
}

func (t *mockTable) keyOf(item map[string]types.AttributeValue) string {
	parts := make([]string, 0, len(t.keyAttrs))
	for _, attr := range t.keyAttrs {
		av, ok := item[attr]
		if !ok {
			return ""
		}
		parts = append(parts, avString(av))
	}
	return strings.Join(parts, "/")
}

func (m *mockDynamo) table(name *string) (*mockTable, error) {
	if name == nil {
		return nil, fmt.Errorf("missing table name")
	}
	tbl, ok := m.tables[*name]
	if !ok {
		return nil, &types.ResourceNotFoundException{}
	}
	return tbl, nil
}

func (m *mockDynamo) PutItem(_ context.Context, in *ddb.PutItemInput, _ ...func(*ddb.Options)) (*ddb.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tbl, err := m.table(in.TableName)
	if err != nil {
		return nil, err
	}
	key := tbl.keyOf(in.Item)
	if in.ConditionExpression != nil {
		if _, exists := tbl.latest[key]; exists {
			return nil, fmt.Errorf("ConditionalCheckFailedException: the conditional request failed")
		}
	}
	tbl.latest[key] = in.Item
	if !m.lagging {
		tbl.visible[key] = in.Item
	}
	return &ddb.PutItemOutput{}, nil
}

func (m *mockDynamo) GetItem(_ context.Context, in *ddb.GetItemInput, _ ...func(*ddb.Options)) (*ddb.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tbl, err := m.table(in.TableName)
	if err != nil {
		return nil, err
	}
	snapshot := tbl.visible
	if in.ConsistentRead != nil && *in.ConsistentRead {
		snapshot = tbl.latest
	}
	item, ok := snapshot[tbl.keyOf(in.Key)]
	if !ok {
		return &ddb.GetItemOutput{}, nil
	}
	return &ddb.GetItemOutput{Item: item}, nil
}

// matchFilter evaluates the subset of filter grammar the store emits:
// "#_N = :_N" and "#_N IN (:_a, :_b)" terms joined by AND.
func matchFilter(item map[string]types.AttributeValue, expr string,
	names map[string]string, vals map[string]types.AttributeValue) bool {
	for _, term := range strings.Split(expr, " AND ") {
		term = strings.TrimSpace(term)
		if idx := strings.Index(term, " IN ("); idx >= 0 {
			attr := names[strings.TrimSpace(term[:idx])]
			got, ok := item[attr]
			if !ok {
				return false
			}
			hit := false
			list := strings.TrimSuffix(term[idx+len(" IN ("):], ")")
			for _, tok := range strings.Split(list, ",") {
				if avString(vals[strings.TrimSpace(tok)]) == avString(got) {
					hit = true
					break
				}
			}
			if !hit {
				return false
			}
			continue
		}
		parts := strings.SplitN(term, "=", 2)
		if len(parts) != 2 {
			return false
		}
		attr := names[strings.TrimSpace(parts[0])]
		want := vals[strings.TrimSpace(parts[1])]
		got, ok := item[attr]
		if !ok || avString(got) != avString(want) {
			return false
		}
	}
	return true
}

func (m *mockDynamo) Scan(_ context.Context, in *ddb.ScanInput, _ ...func(*ddb.Options)) (*ddb.ScanOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tbl, err := m.table(in.TableName)
	if err != nil {
		return nil, err
	}
	var count int32
	var items []map[string]types.AttributeValue
	for _, item := range tbl.visible {
		if in.FilterExpression != nil &&
			!matchFilter(item, *in.FilterExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues) {
			continue
		}
		count++
		if in.Select != types.SelectCount {
			items = append(items, item)
		}
	}
	return &ddb.ScanOutput{Count: count, ScannedCount: int32(len(tbl.visible)), Items: items}, nil
}

func (m *mockDynamo) BatchGetItem(_ context.Context, in *ddb.BatchGetItemInput, _ ...func(*ddb.Options)) (*ddb.BatchGetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := &ddb.BatchGetItemOutput{Responses: map[string][]map[string]types.AttributeValue{}}
	for name, req := range in.RequestItems {
		tbl, ok := m.tables[name]
		if !ok {
			return nil, &types.ResourceNotFoundException{}
		}
		for _, key := range req.Keys {
			if item, ok := tbl.visible[tbl.keyOf(key)]; ok {
				out.Responses[name] = append(out.Responses[name], item)
			}
		}
	}
	return out, nil
}

func (m *mockDynamo) CreateTable(_ context.Context, in *ddb.CreateTableInput, _ ...func(*ddb.Options)) (*ddb.CreateTableOutput, error) {
	var keyAttrs []string
	for _, ks := range in.KeySchema {
		keyAttrs = append(keyAttrs, *ks.AttributeName)
	}
	m.addTable(*in.TableName, keyAttrs...)
	return &ddb.CreateTableOutput{}, nil
}

func (m *mockDynamo) DeleteTable(_ context.Context, in *ddb.DeleteTableInput, _ ...func(*ddb.Options)) (*ddb.DeleteTableOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[*in.TableName]; !ok {
		return nil, &types.ResourceNotFoundException{}
	}
	delete(m.tables, *in.TableName)
	return &ddb.DeleteTableOutput{}, nil
}

func (m *mockDynamo) DescribeTable(_ context.Context, in *ddb.DescribeTableInput, _ ...func(*ddb.Options)) (*ddb.DescribeTableOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[*in.TableName]; !ok {
		return nil, &types.ResourceNotFoundException{}
	}
	return &ddb.DescribeTableOutput{}, nil
}

// makeRegistry builds a registry over a fresh mock store.
func makeRegistry(params dd.RegistryParams) (*dd.Registry, *mockDynamo) {
	mock := newMockDynamo()
	params.Namespace = "test"
	params.Store = dd.NewDynamoStore(mock, dd.NopLogger())
	params.Logger = dd.NopLogger()
	return dd.NewRegistry(params), mock
}

// ─── assert helpers ──────────────────────────────────────────────────────────

func assertNoErr(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func assertEqual(t *testing.T, got, want any) {
	t.Helper()
	if fmt.Sprintf("%v", got) != fmt.Sprintf("%v", want) {
		t.Errorf("got %v (%T), want %v (%T)", got, got, want, want)
	}
}

func assertTrue(t *testing.T, cond bool, msg string) {
	t.Helper()
	if !cond {
		t.Error(msg)
	}
}

func assertPanics(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	fn()
}
