package dynadoc

import "context"

// Item is the wire-level attribute map.
type Item = map[string]any

// Key addresses one item in a table.
type Key struct {
	Hash  any
	Range any
}

// PutConditions restricts a put. NotExists lists attribute names that must be
// absent on any pre-existing item for the put to succeed.
type PutConditions struct {
	NotExists []string
}

// StoreClient is the narrow persistence surface the document runtime needs
// from a partition-oriented KV store. Implementations must treat a missing
// item as a nil Item from GetItem, not an error.
type StoreClient interface {
	// PutItem writes a full item, optionally guarded by conditions.
	PutItem(ctx context.Context, table string, item Item, cond *PutConditions) error

	// GetItem reads one item by key. When consistent is true the read must
	// reflect all writes acknowledged before the call.
	GetItem(ctx context.Context, table string, key Item, consistent bool) (Item, error)

	// QueryExists reports whether any item matches the predicate. A nil
	// predicate matches any item in the table. Predicate values may be
	// []any, meaning any-of.
	QueryExists(ctx context.Context, table string, predicate Item) (bool, error)

	// CountItems counts items matching the predicate (nil counts the table).
	CountItems(ctx context.Context, table string, predicate Item) (int64, error)

	// BatchGetExistence reports whether at least one key in keys resolves
	// to an existing item.
	BatchGetExistence(ctx context.Context, table string, keys []Item) (bool, error)
}
