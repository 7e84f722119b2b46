package dynadoc

import (
	"fmt"
	"sort"
)

// WillChangeFunc observes an impending write to a field. It fires before the
// stored value changes, even when the incoming value equals the current one.
type WillChangeFunc func(name string, next any)

// Document is a typed instance: an attribute map plus dirty-tracking state.
// Documents are not safe for concurrent use.
type Document struct {
	dt        *DocumentType
	values    map[string]any
	dirty     map[string]struct{}
	newRecord bool
	hooks     map[string][]WillChangeFunc
	errs      map[string][]string
	inSetter  map[string]bool
}

// New constructs an unsaved document from raw attributes. Declared fields
// present in raw are written through the normal Set path (custom setters
// included); unknown keys are silently dropped. Defaults are not materialized
// here, so a document built from an empty map has an empty attribute store.
func New(t *DocumentType, raw Item) *Document {
	d := &Document{
		dt:        t,
		values:    map[string]any{},
		dirty:     map[string]struct{}{},
		newRecord: true,
		hooks:     map[string][]WillChangeFunc{},
		errs:      map[string][]string{},
		inSetter:  map[string]bool{},
	}
	for _, name := range t.FieldNames() {
		if v, ok := raw[name]; ok {
			d.Set(name, v)
		}
	}
	return d
}

// Type returns the document's type.
func (d *Document) Type() *DocumentType { return d.dt }

// Set writes a field through the interception pipeline: will-change hooks
// fire first, then a custom setter (if declared) takes over, otherwise the
// value is cast and stored. Undeclared names are ignored.
func (d *Document) Set(name string, raw any) {
	def, ok := d.dt.fieldDef(name)
	if !ok {
		return
	}
	for _, fn := range d.hooks[name] {
		fn(name, raw)
	}
	if def.Set != nil && !d.inSetter[name] {
		d.inSetter[name] = true
		def.Set(d, raw)
		delete(d.inSetter, name)
		return
	}
	d.Write(name, raw)
}

// Write stores a field value directly, bypassing hooks and custom setters.
// The value is cast to the field's declared type; a failed cast keeps the raw
// value and records the failure on the document. A later successful write of
// the same field clears its recorded failures.
func (d *Document) Write(name string, raw any) {
	def, ok := d.dt.fieldDef(name)
	if !ok {
		return
	}
	v, err := Cast(def.Type, raw)
	if err != nil {
		d.errs[name] = append(d.errs[name], err.Error())
		logError(d.dt.registry.log, "Cast failure", map[string]any{
			"type": d.dt.Name, "field": name, "value": fmt.Sprintf("%v", raw),
		})
		v = raw
	} else {
		delete(d.errs, name)
	}
	d.values[name] = v
	d.dirty[name] = struct{}{}
}

// loadValue stores a field value from the store, best-effort cast, without
// touching dirty state or recording errors.
func (d *Document) loadValue(name string, raw any) {
	def, ok := d.dt.fieldDef(name)
	if !ok {
		return
	}
	v, _ := Cast(def.Type, raw)
	d.values[name] = v
}

// Get reads a field. Unset fields fall back to the declared default producer;
// the discriminator field falls back to the concrete type name. Reading an
// undeclared field panics, since that is a programming error.
func (d *Document) Get(name string) any {
	def, ok := d.dt.fieldDef(name)
	if !ok {
		panic(NewArgError(fmt.Sprintf("unknown attribute %q for type %q", name, d.dt.Name),
			ErrUnknownAttribute).Error())
	}
	if v, ok := d.values[name]; ok {
		return v
	}
	if def.Default != nil {
		v, err := Cast(def.Type, def.Default())
		if err != nil {
			return nil
		}
		return v
	}
	if name == d.dt.typeField() {
		return d.dt.Name
	}
	return nil
}

// Attributes returns a copy of the stored attributes. Unset defaults and the
// derived discriminator value do not appear.
func (d *Document) Attributes() Item {
	out := make(Item, len(d.values))
	for k, v := range d.values {
		out[k] = v
	}
	return out
}

// IsDirty reports whether a field was written since the last clean point.
func (d *Document) IsDirty(name string) bool {
	_, ok := d.dirty[name]
	return ok
}

// DirtyFieldNames returns the dirty field names, sorted.
func (d *Document) DirtyFieldNames() []string {
	names := make([]string, 0, len(d.dirty))
	for n := range d.dirty {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// MarkClean clears all dirty flags.
func (d *Document) MarkClean() {
	d.dirty = map[string]struct{}{}
}

// IsNewRecord reports whether the document has never been persisted.
func (d *Document) IsNewRecord() bool { return d.newRecord }

// WillChange registers a hook that fires before any write to the named field.
// Returns false when the field is not declared.
func (d *Document) WillChange(name string, fn WillChangeFunc) bool {
	if _, ok := d.dt.fieldDef(name); !ok {
		return false
	}
	d.hooks[name] = append(d.hooks[name], fn)
	return true
}

// Errors returns a copy of the per-field failure messages accumulated so far.
func (d *Document) Errors() map[string][]string {
	out := make(map[string][]string, len(d.errs))
	for name, msgs := range d.errs {
		out[name] = append([]string(nil), msgs...)
	}
	return out
}

// Valid reports whether no failures have been recorded.
func (d *Document) Valid() bool { return len(d.errs) == 0 }
