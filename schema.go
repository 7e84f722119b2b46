/*
Package dynadoc maps typed documents onto a schemaless, partition-oriented
key-value store addressed by a hash key and an optional range key.

A Registry holds one DocumentType per document type name. A DocumentType
carries the field definitions, the primary-key descriptor and the table
metadata, and is the entry point for the persistence protocol (Create,
Exists, Count). Instances are Documents.
*/
package dynadoc

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// FieldType names the declared type tag of a field.
type FieldType string

const (
	FieldTypeString   FieldType = "string"
	FieldTypeInteger  FieldType = "integer"
	FieldTypeNumber   FieldType = "number"
	FieldTypeBoolean  FieldType = "boolean"
	FieldTypeDate     FieldType = "date"
	FieldTypeDateTime FieldType = "datetime"
	FieldTypeSet      FieldType = "set"
	FieldTypeMap      FieldType = "map"
	FieldTypeArray    FieldType = "array"
	FieldTypeBinary   FieldType = "binary"
)

var validFieldTypes = map[FieldType]bool{
	FieldTypeString: true, FieldTypeInteger: true, FieldTypeNumber: true,
	FieldTypeBoolean: true, FieldTypeDate: true, FieldTypeDateTime: true,
	FieldTypeSet: true, FieldTypeMap: true, FieldTypeArray: true,
	FieldTypeBinary: true,
}

// Setter is a custom write interceptor for one field. It receives the raw
// value before coercion; whatever the setter writes back (via Document.Write)
// is what lands in the attribute store.
type Setter func(d *Document, raw any)

// FieldDef is a single field definition inside a document type.
// Immutable after registration; redefining a field name replaces the whole
// definition (last write wins).
type FieldDef struct {
	Type     FieldType
	Default  func() any // lazy default producer; never eagerly materialized
	Generate string     // "uuid" | "ulid" | "uid(n)" – auto value on create
	Set      Setter     // custom setter hook
}

// PrimaryKey describes the composite identity of a document type.
// Hash is required for persistence; Range is optional. A PrimaryKey with an
// empty Hash may only come from an explicit override, and accessing the key
// of such a type is a programming error.
type PrimaryKey struct {
	Hash      string
	HashType  FieldType
	Range     string
	RangeType FieldType
}

// TableOptions holds per-type table metadata. Zero values are filled with
// defaults at declaration time (inferred table name, "_type" discriminator).
type TableOptions struct {
	Name          string
	ReadCapacity  int64
	WriteCapacity int64
	TypeField     string // STI discriminator attribute name
	ScopedQueries bool   // count/exists filtered by discriminator
}

// RegistryParams configures a Registry.
type RegistryParams struct {
	Namespace    string // prefix for inferred table names
	Store        StoreClient
	Logger       Logger
	Timestamps   bool   // auto-declare and stamp created/updated fields
	CreatedField string // default "created"
	UpdatedField string // default "updated"
}

// Registry is the schema registry: a table of document types, each with its
// field definitions, key descriptor and table metadata. Registries are plain
// values so tests can construct isolated ones.
type Registry struct {
	params RegistryParams
	store  StoreClient
	log    Logger
	types  map[string]*DocumentType
	now    func() time.Time
}

// NewRegistry creates a Registry.
func NewRegistry(params RegistryParams) *Registry {
	if params.CreatedField == "" {
		params.CreatedField = "created"
	}
	if params.UpdatedField == "" {
		params.UpdatedField = "updated"
	}
	r := &Registry{
		params: params,
		store:  params.Store,
		types:  map[string]*DocumentType{},
		now:    time.Now,
	}
	if params.Logger != nil {
		r.log = params.Logger
	} else {
		r.log = defaultLogger{}
	}
	logTrace(r.log, "Loading dynadoc registry", nil)
	return r
}

// DocumentType describes one document type: its fields, key and table.
type DocumentType struct {
	registry *Registry
	Name     string

	parent   *DocumentType
	children []*DocumentType

	fields map[string]*FieldDef
	order  []string // registration order of own fields

	key   *PrimaryKey // nil until declared; subtypes inherit
	table *TableOptions
}

// DefineType registers a document type. Re-registering a name replaces the
// prior type. opts may be nil; missing table metadata gets defaults.
func (r *Registry) DefineType(name string, opts *TableOptions) *DocumentType {
	if name == "" {
		panic(NewArgError("document type name must not be empty").Error())
	}
	table := TableOptions{}
	if opts != nil {
		table = *opts
	}
	if table.Name == "" {
		table.Name = r.inferTableName(name)
	}
	if table.TypeField == "" {
		table.TypeField = "_type"
	}
	t := &DocumentType{
		registry: r,
		Name:     name,
		fields:   map[string]*FieldDef{},
		table:    &table,
	}
	// discriminator is always declared so the hook point and accessor exist
	t.DefineField(table.TypeField, &FieldDef{Type: FieldTypeString})
	if r.params.Timestamps {
		t.DefineField(r.params.CreatedField, &FieldDef{Type: FieldTypeDateTime})
		t.DefineField(r.params.UpdatedField, &FieldDef{Type: FieldTypeDateTime})
	}
	r.types[name] = t
	return t
}

// DefineSubtype registers a subtype of parent. The subtype shares the
// parent's table and primary key and inherits all parent fields; it may add
// or redefine fields but never remove them.
func (r *Registry) DefineSubtype(parent *DocumentType, name string) *DocumentType {
	if parent == nil {
		panic(NewArgError("subtype requires a parent type").Error())
	}
	if name == "" {
		panic(NewArgError("document type name must not be empty").Error())
	}
	t := &DocumentType{
		registry: r,
		Name:     name,
		parent:   parent,
		fields:   map[string]*FieldDef{},
		table:    parent.table,
	}
	parent.children = append(parent.children, t)
	r.types[name] = t
	return t
}

// TypeOf returns a registered type by name, or nil.
func (r *Registry) TypeOf(name string) *DocumentType { return r.types[name] }

// inferTableName derives a table name from a type name: optional namespace
// prefix plus the snake-cased, pluralized type name ("OrderItem" → "order_items").
func (r *Registry) inferTableName(name string) string {
	snake := toSnake(name)
	if !strings.HasSuffix(snake, "s") {
		snake += "s"
	}
	if r.params.Namespace != "" {
		return r.params.Namespace + "_" + snake
	}
	return snake
}

func toSnake(name string) string {
	var b strings.Builder
	for i, c := range name {
		if unicode.IsUpper(c) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(c))
		} else {
			b.WriteRune(c)
		}
	}
	return b.String()
}

// DefineField registers (or replaces) a field definition. def may be nil for
// a plain string field. Returns the type for chaining.
func (t *DocumentType) DefineField(name string, def *FieldDef) *DocumentType {
	if name == "" {
		panic(NewArgError("field name must not be empty").Error())
	}
	if def == nil {
		def = &FieldDef{}
	}
	d := *def
	if d.Type == "" {
		d.Type = FieldTypeString
	}
	d.Type = FieldType(strings.ToLower(string(d.Type)))
	if !validFieldTypes[d.Type] {
		panic(NewArgError(fmt.Sprintf("unknown type %q for field %q in type %q",
			d.Type, name, t.Name)).Error())
	}
	if _, exists := t.fields[name]; !exists {
		t.order = append(t.order, name)
	}
	t.fields[name] = &d
	return t
}

// DefinePrimaryKey declares the composite key. Declared once; redefining it,
// or declaring one on a subtype, is a programming error. The key fields are
// auto-registered when absent.
func (t *DocumentType) DefinePrimaryKey(key PrimaryKey) *DocumentType {
	if t.parent != nil {
		panic(NewArgError(fmt.Sprintf("subtype %q cannot redeclare the primary key", t.Name)).Error())
	}
	if t.key != nil {
		panic(NewArgError(fmt.Sprintf("primary key already declared for %q", t.Name)).Error())
	}
	if key.Hash != "" {
		if key.HashType == "" {
			key.HashType = FieldTypeString
		}
		if _, ok := t.fieldDef(key.Hash); !ok {
			t.DefineField(key.Hash, &FieldDef{Type: key.HashType})
		}
	}
	if key.Range != "" {
		if key.RangeType == "" {
			key.RangeType = FieldTypeString
		}
		if _, ok := t.fieldDef(key.Range); !ok {
			t.DefineField(key.Range, &FieldDef{Type: key.RangeType})
		}
	}
	t.key = &key
	return t
}

// PrimaryKey returns the declared key descriptor, walking up the subtype
// chain. Accessing the key of a type that never declared one is a
// programming error.
func (t *DocumentType) PrimaryKey() PrimaryKey {
	for cur := t; cur != nil; cur = cur.parent {
		if cur.key != nil {
			return *cur.key
		}
	}
	panic(NewArgError(fmt.Sprintf("no primary key declared for type %q", t.Name),
		ErrUnknownAttribute).Error())
}

// Table returns the type's table metadata.
func (t *DocumentType) Table() TableOptions { return *t.table }

// Registry returns the owning registry.
func (t *DocumentType) Registry() *Registry { return t.registry }

// FieldNames returns the declared field names in deterministic order:
// inherited fields first (in the parent's order), then own additions.
func (t *DocumentType) FieldNames() []string {
	var names []string
	seen := map[string]bool{}
	var walk func(dt *DocumentType)
	walk = func(dt *DocumentType) {
		if dt.parent != nil {
			walk(dt.parent)
		}
		for _, n := range dt.order {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	walk(t)
	return names
}

// FieldsOf returns the effective field definitions, inherited and own.
func (t *DocumentType) FieldsOf() map[string]FieldDef {
	out := map[string]FieldDef{}
	for _, name := range t.FieldNames() {
		if def, ok := t.fieldDef(name); ok {
			out[name] = *def
		}
	}
	return out
}

// fieldDef resolves a field definition, with own definitions shadowing
// inherited ones.
func (t *DocumentType) fieldDef(name string) (*FieldDef, bool) {
	for cur := t; cur != nil; cur = cur.parent {
		if def, ok := cur.fields[name]; ok {
			return def, true
		}
	}
	return nil, false
}

// typeField returns the discriminator attribute name.
func (t *DocumentType) typeField() string { return t.table.TypeField }
