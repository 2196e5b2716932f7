package structured

import (
	"fmt"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ScalarKind is the primitive kind of a Scalar descriptor.
type ScalarKind string

const (
	KindString  ScalarKind = "string"
	KindNumber  ScalarKind = "number"
	KindInteger ScalarKind = "integer"
	KindBoolean ScalarKind = "boolean"
)

// Descriptor describes the expected shape of a value.
// The set of implementations is closed: *Scalar, *Object, *Array and *Optional.
// Descriptors are immutable once handed to Relax, Validate or Reconcile.
type Descriptor interface {
	// Description returns the human-readable doc attached to the node.
	Description() string
	String() string
	descriptor()
}

// ====== Scalar ======

// Scalar is a leaf descriptor with an optional literal-enum constraint.
type Scalar struct {
	Kind ScalarKind
	// Literals restricts the value to one of the listed literals.
	Literals []any
	// Open marks a literal union that also accepts any value of Kind.
	// The literals then serve as hints only.
	Open bool
	Doc  string
}

// NewString creates a string scalar.
func NewString() *Scalar { return &Scalar{Kind: KindString} }

// NewNumber creates a number scalar.
func NewNumber() *Scalar { return &Scalar{Kind: KindNumber} }

// NewInteger creates an integer scalar.
func NewInteger() *Scalar { return &Scalar{Kind: KindInteger} }

// NewBoolean creates a boolean scalar.
func NewBoolean() *Scalar { return &Scalar{Kind: KindBoolean} }

// NewLiteral creates a scalar restricted to the given literals.
func NewLiteral(kind ScalarKind, literals ...any) *Scalar {
	return &Scalar{Kind: kind, Literals: literals}
}

// NewOpenLiteral creates a scalar accepting the given literals or any value of kind.
func NewOpenLiteral(kind ScalarKind, literals ...any) *Scalar {
	return &Scalar{Kind: kind, Literals: literals, Open: true}
}

// Describe sets the description.
func (s *Scalar) Describe(doc string) *Scalar {
	s.Doc = doc
	return s
}

func (s *Scalar) Description() string { return s.Doc }

func (s *Scalar) String() string {
	if len(s.Literals) == 0 {
		return string(s.Kind)
	}
	parts := make([]string, 0, len(s.Literals)+1)
	for _, lit := range s.Literals {
		parts = append(parts, fmt.Sprintf("%#v", lit))
	}
	if s.Open {
		parts = append(parts, string(s.Kind))
	}
	return strings.Join(parts, "|")
}

func (*Scalar) descriptor() {}

// ====== Object ======

// Field is a named member of an Object.
type Field struct {
	Schema   Descriptor
	Required bool
}

// Object is an ordered mapping of field names to descriptors.
type Object struct {
	fields *orderedmap.OrderedMap[string, Field]
	Doc    string
}

// NewObject creates an empty object descriptor.
func NewObject() *Object {
	return &Object{fields: orderedmap.New[string, Field]()}
}

// Field adds a required field.
func (o *Object) Field(name string, schema Descriptor) *Object {
	o.fields.Set(name, Field{Schema: schema, Required: true})
	return o
}

// OptionalField adds a field that may be absent.
func (o *Object) OptionalField(name string, schema Descriptor) *Object {
	o.fields.Set(name, Field{Schema: schema})
	return o
}

// Describe sets the description.
func (o *Object) Describe(doc string) *Object {
	o.Doc = doc
	return o
}

// Get looks up a field by name.
func (o *Object) Get(name string) (Field, bool) {
	return o.fields.Get(name)
}

// Len returns the number of fields.
func (o *Object) Len() int {
	return o.fields.Len()
}

// Names returns field names in insertion order.
func (o *Object) Names() []string {
	names := make([]string, 0, o.fields.Len())
	for p := o.fields.Oldest(); p != nil; p = p.Next() {
		names = append(names, p.Key)
	}
	return names
}

// Each calls fn for every field in insertion order.
func (o *Object) Each(fn func(name string, f Field)) {
	for p := o.fields.Oldest(); p != nil; p = p.Next() {
		fn(p.Key, p.Value)
	}
}

func (o *Object) Description() string { return o.Doc }

func (o *Object) String() string {
	var b strings.Builder
	b.WriteByte('{')
	i := 0
	o.Each(func(name string, f Field) {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(name)
		if !f.Required {
			b.WriteByte('?')
		}
		b.WriteString(": ")
		b.WriteString(f.Schema.String())
		i++
	})
	b.WriteByte('}')
	return b.String()
}

func (*Object) descriptor() {}

// ====== Array ======

// Array describes a homogeneous sequence.
type Array struct {
	Element Descriptor
	Doc     string
}

// NewArray creates an array descriptor.
func NewArray(element Descriptor) *Array {
	return &Array{Element: element}
}

// Describe sets the description.
func (a *Array) Describe(doc string) *Array {
	a.Doc = doc
	return a
}

func (a *Array) Description() string { return a.Doc }

func (a *Array) String() string { return "[" + a.Element.String() + "]" }

func (*Array) descriptor() {}

// ====== Optional ======

// Optional marks its inner descriptor as allowed to be absent.
type Optional struct {
	Inner Descriptor
}

// NewOptional wraps inner. Wrapping an Optional returns it unchanged.
func NewOptional(inner Descriptor) *Optional {
	if o, ok := inner.(*Optional); ok {
		return o
	}
	return &Optional{Inner: inner}
}

func (o *Optional) Description() string { return o.Inner.Description() }

func (o *Optional) String() string { return "optional(" + o.Inner.String() + ")" }

func (*Optional) descriptor() {}

// ====== Equality ======

// Equal reports whether two descriptors are structurally identical.
// Descriptions are ignored.
func Equal(a, b Descriptor) bool {
	switch x := a.(type) {
	case *Scalar:
		y, ok := b.(*Scalar)
		if !ok || x.Kind != y.Kind || x.Open != y.Open || len(x.Literals) != len(y.Literals) {
			return false
		}
		for i := range x.Literals {
			if !equalValues(x.Literals[i], y.Literals[i]) {
				return false
			}
		}
		return true
	case *Object:
		y, ok := b.(*Object)
		if !ok || x.Len() != y.Len() {
			return false
		}
		for p, q := x.fields.Oldest(), y.fields.Oldest(); p != nil; p, q = p.Next(), q.Next() {
			if p.Key != q.Key || p.Value.Required != q.Value.Required || !Equal(p.Value.Schema, q.Value.Schema) {
				return false
			}
		}
		return true
	case *Array:
		y, ok := b.(*Array)
		return ok && Equal(x.Element, y.Element)
	case *Optional:
		y, ok := b.(*Optional)
		return ok && Equal(x.Inner, y.Inner)
	default:
		return a == nil && b == nil
	}
}
