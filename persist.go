package dynadoc

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/google/uuid"

	"github.com/dynadoc/dynadoc/internal/uid"
)

var uidGenRe = regexp.MustCompile(`^uid\((\d+)\)$`)

// generate produces a value for a Generate-marked field: "uuid", "ulid" or
// "uid(n)".
func (r *Registry) generate(gen string) any {
	switch gen {
	case "uuid":
		return uuid.NewString()
	case "ulid":
		return uid.New().String()
	default:
		if m := uidGenRe.FindStringSubmatch(gen); m != nil {
			n, _ := strconv.Atoi(m[1])
			return uid.UID(n)
		}
		panic(NewArgError(fmt.Sprintf("unknown generator %q", gen)).Error())
	}
}

// scopePredicate returns the discriminator filter for table-wide queries, or
// nil when the type does not scope them.
func (t *DocumentType) scopePredicate() Item {
	if !t.table.ScopedQueries {
		return nil
	}
	names := t.stiTypeNames()
	vals := make([]any, len(names))
	for i, n := range names {
		vals[i] = n
	}
	return Item{t.typeField(): vals}
}

// dumpAttributes renders a document's stored attributes through the declared
// field types. Nil values are omitted; the store has no notion of an
// explicitly null attribute.
func (d *Document) dumpAttributes() (Item, error) {
	out := Item{}
	for name, v := range d.values {
		if v == nil {
			continue
		}
		def, ok := d.dt.fieldDef(name)
		if !ok {
			continue
		}
		dumped, err := Dump(def.Type, v)
		if err != nil {
			return nil, NewError(fmt.Sprintf("cannot dump field %q of type %q", name, d.dt.Name),
				WithCode(ErrCast), WithCause(err))
		}
		out[name] = dumped
	}
	return out, nil
}

// keyItem renders the document's key attributes for a point read.
func (d *Document) keyItem() (Item, error) {
	pk := d.dt.PrimaryKey()
	kt := d.KeyTuple()
	if kt.Hash == nil {
		return nil, NewError(fmt.Sprintf("document of type %q has no hash key value", d.dt.Name),
			WithCode(ErrMissing))
	}
	key := Item{pk.Hash: kt.Hash}
	if kt.HasRange {
		if kt.Range == nil {
			return nil, NewError(fmt.Sprintf("document of type %q has no range key value", d.dt.Name),
				WithCode(ErrMissing))
		}
		key[pk.Range] = kt.Range
	}
	return key, nil
}

// Create builds a document from raw attributes and persists it. Defaults are
// materialized, generated key fields filled in, the discriminator stamped and
// timestamps set before the write. The write is guarded so an item with the
// same key is never silently replaced.
func (t *DocumentType) Create(ctx context.Context, raw Item) (*Document, error) {
	r := t.registry
	if r.store == nil {
		return nil, NewError("registry has no store client", WithCode(ErrMissing))
	}
	d := New(t, raw)
	for _, name := range t.FieldNames() {
		if _, set := d.values[name]; set {
			continue
		}
		def, _ := t.fieldDef(name)
		switch {
		case def.Generate != "":
			d.Write(name, r.generate(def.Generate))
		case def.Default != nil:
			d.Write(name, def.Default())
		}
	}
	if _, set := d.values[t.typeField()]; !set {
		d.Write(t.typeField(), t.Name)
	}
	if r.params.Timestamps {
		now := r.now()
		if _, set := d.values[r.params.CreatedField]; !set {
			d.Write(r.params.CreatedField, now)
		}
		d.Write(r.params.UpdatedField, now)
	}
	if !d.Valid() {
		return nil, NewError(fmt.Sprintf("document of type %q has invalid attributes", t.Name),
			WithCode(ErrValidation), WithContext(map[string]any{"errors": d.errs}))
	}
	pk := t.PrimaryKey()
	if pk.Hash == "" || d.Get(pk.Hash) == nil {
		return nil, NewError(fmt.Sprintf("document of type %q is missing its hash key %q", t.Name, pk.Hash),
			WithCode(ErrValidation))
	}
	if pk.Range != "" && d.Get(pk.Range) == nil {
		return nil, NewError(fmt.Sprintf("document of type %q is missing its range key %q", t.Name, pk.Range),
			WithCode(ErrValidation))
	}
	item, err := d.dumpAttributes()
	if err != nil {
		return nil, err
	}
	logInfo(r.log, "Creating document", Item{"type": t.Name, "table": t.table.Name})
	cond := &PutConditions{NotExists: []string{pk.Hash}}
	if err := r.store.PutItem(ctx, t.table.Name, item, cond); err != nil {
		return nil, err
	}
	d.newRecord = false
	d.MarkClean()
	return d, nil
}

// Save persists the document's current attributes with a full overwrite,
// refreshing the updated timestamp.
func (d *Document) Save(ctx context.Context) error {
	t := d.dt
	r := t.registry
	if r.store == nil {
		return NewError("registry has no store client", WithCode(ErrMissing))
	}
	if _, set := d.values[t.typeField()]; !set {
		d.Write(t.typeField(), t.Name)
	}
	if r.params.Timestamps {
		d.Write(r.params.UpdatedField, r.now())
	}
	if !d.Valid() {
		return NewError(fmt.Sprintf("document of type %q has invalid attributes", t.Name),
			WithCode(ErrValidation), WithContext(map[string]any{"errors": d.errs}))
	}
	item, err := d.dumpAttributes()
	if err != nil {
		return err
	}
	logInfo(r.log, "Saving document", Item{"type": t.Name, "table": t.table.Name})
	if err := r.store.PutItem(ctx, t.table.Name, item, nil); err != nil {
		return err
	}
	d.newRecord = false
	d.MarkClean()
	return nil
}

// Reload re-reads the document from the store with a strongly consistent
// read, so a reload immediately after a write observes that write. The
// document is updated in place and returned; a vanished item is a
// NotFoundError.
func (d *Document) Reload(ctx context.Context) (*Document, error) {
	t := d.dt
	r := t.registry
	if r.store == nil {
		return nil, NewError("registry has no store client", WithCode(ErrMissing))
	}
	key, err := d.keyItem()
	if err != nil {
		return nil, err
	}
	item, err := r.store.GetItem(ctx, t.table.Name, key, true)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, NewError(fmt.Sprintf("document of type %q not found", t.Name),
			WithCode(ErrNotFound), WithContext(map[string]any{"key": key}))
	}
	d.values = map[string]any{}
	d.errs = map[string][]string{}
	for _, name := range t.FieldNames() {
		if v, ok := item[name]; ok {
			d.loadValue(name, v)
		}
	}
	if _, ok := d.values[t.typeField()]; !ok {
		d.values[t.typeField()] = t.Name
	}
	d.MarkClean()
	d.newRecord = false
	return d, nil
}

// load materializes a persisted item as a document, resolving the stored
// discriminator to the concrete subtype.
func load(t *DocumentType, item Item) *Document {
	concrete := t
	if name, ok := item[t.typeField()].(string); ok {
		concrete = t.resolveConcrete(name)
	}
	d := &Document{
		dt:        concrete,
		values:    map[string]any{},
		dirty:     map[string]struct{}{},
		newRecord: false,
		hooks:     map[string][]WillChangeFunc{},
		errs:      map[string][]string{},
		inSetter:  map[string]bool{},
	}
	for _, name := range concrete.FieldNames() {
		if v, ok := item[name]; ok {
			d.loadValue(name, v)
		}
	}
	if _, ok := d.values[concrete.typeField()]; !ok {
		d.values[concrete.typeField()] = concrete.Name
	}
	return d
}

// Find reads one document by key. Consistent point read; returns a
// NotFoundError when no item matches.
func (t *DocumentType) Find(ctx context.Context, key Key) (*Document, error) {
	r := t.registry
	if r.store == nil {
		return nil, NewError("registry has no store client", WithCode(ErrMissing))
	}
	keyAttrs, err := t.keyAttrs(key)
	if err != nil {
		return nil, err
	}
	item, err := r.store.GetItem(ctx, t.table.Name, keyAttrs, true)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, NewError(fmt.Sprintf("document of type %q not found", t.Name),
			WithCode(ErrNotFound), WithContext(map[string]any{"key": keyAttrs}))
	}
	return load(t, item), nil
}

// keyAttrs renders a Key as dumped key attributes.
func (t *DocumentType) keyAttrs(key Key) (Item, error) {
	pk := t.PrimaryKey()
	if key.Hash == nil {
		return nil, NewError(fmt.Sprintf("key for type %q needs a hash value", t.Name),
			WithCode(ErrMissing))
	}
	hash, err := Dump(pk.HashType, key.Hash)
	if err != nil {
		return nil, err
	}
	attrs := Item{pk.Hash: hash}
	if pk.Range != "" {
		if key.Range == nil {
			return nil, NewError(fmt.Sprintf("key for type %q needs a range value", t.Name),
				WithCode(ErrMissing))
		}
		rng, err := Dump(pk.RangeType, key.Range)
		if err != nil {
			return nil, err
		}
		attrs[pk.Range] = rng
	}
	return attrs, nil
}

// Exists answers presence questions against the store. criteria selects the
// probe shape:
//
//	nil                  any document of this type exists
//	Key                  the addressed document exists
//	[]Key                at least one addressed document exists
//	Item / map[string]any  any document matches the attribute predicate
func (t *DocumentType) Exists(ctx context.Context, criteria any) (bool, error) {
	r := t.registry
	if r.store == nil {
		return false, NewError("registry has no store client", WithCode(ErrMissing))
	}
	switch c := criteria.(type) {
	case nil:
		return r.store.QueryExists(ctx, t.table.Name, t.scopePredicate())

	case Key:
		keyAttrs, err := t.keyAttrs(c)
		if err != nil {
			return false, err
		}
		item, err := r.store.GetItem(ctx, t.table.Name, keyAttrs, false)
		if err != nil {
			return false, err
		}
		return item != nil, nil

	case []Key:
		if len(c) == 0 {
			return false, nil
		}
		keys := make([]Item, 0, len(c))
		for _, k := range c {
			keyAttrs, err := t.keyAttrs(k)
			if err != nil {
				return false, err
			}
			keys = append(keys, keyAttrs)
		}
		return r.store.BatchGetExistence(ctx, t.table.Name, keys)

	case Item:
		predicate := Item{}
		for name, v := range c {
			if def, ok := t.fieldDef(name); ok {
				dumped, err := Dump(def.Type, v)
				if err != nil {
					return false, err
				}
				predicate[name] = dumped
			} else {
				predicate[name] = v
			}
		}
		for name, v := range t.scopePredicate() {
			if _, set := predicate[name]; !set {
				predicate[name] = v
			}
		}
		return r.store.QueryExists(ctx, t.table.Name, predicate)

	default:
		return false, NewArgError(fmt.Sprintf("unsupported existence criteria %T", criteria))
	}
}

// Count returns the number of documents of this type. With scoped queries the
// count is restricted to this type and its subtypes; otherwise it is the
// table count.
func (t *DocumentType) Count(ctx context.Context) (int64, error) {
	r := t.registry
	if r.store == nil {
		return 0, NewError("registry has no store client", WithCode(ErrMissing))
	}
	return r.store.CountItems(ctx, t.table.Name, t.scopePredicate())
}
