package dynadoc

// DeepSubclasses returns every descendant type, depth-first in registration
// order, excluding the receiver.
func (t *DocumentType) DeepSubclasses() []*DocumentType {
	var out []*DocumentType
	var walk func(dt *DocumentType)
	walk = func(dt *DocumentType) {
		for _, c := range dt.children {
			out = append(out, c)
			walk(c)
		}
	}
	walk(t)
	return out
}

// resolveConcrete maps a stored discriminator value to the concrete type to
// instantiate. An empty or unknown name, or the receiver's own name, resolves
// to the receiver; a descendant's name resolves to that descendant.
func (t *DocumentType) resolveConcrete(typeName string) *DocumentType {
	if typeName == "" || typeName == t.Name {
		return t
	}
	for _, sub := range t.DeepSubclasses() {
		if sub.Name == typeName {
			return sub
		}
	}
	return t
}

// stiTypeNames returns the receiver's name plus all descendant names, used to
// scope table-wide queries to one branch of the hierarchy.
func (t *DocumentType) stiTypeNames() []string {
	names := []string{t.Name}
	for _, sub := range t.DeepSubclasses() {
		names = append(names, sub.Name)
	}
	return names
}
