package schema

import (
	"path"
	"reflect"
	"sort"
	"strings"
)

// PrimaryKeyAlias is accepted in queries in place of the primary key field name.
const PrimaryKeyAlias = "pk"

// FieldsFunc returns the current field values of a record keyed by field
// name. It must include the primary key field.
type FieldsFunc[T any] func(record T) map[string]any

// Constraint is a sorted, non-empty set of field names whose combined values
// are unique among all records of a type.
type Constraint []string

// Equal reports whether c holds exactly the given field names, in any order.
func (c Constraint) Equal(fields []string) bool {
	if len(c) != len(fields) {
		return false
	}
	sorted := append([]string(nil), fields...)
	sort.Strings(sorted)
	for i := range c {
		if c[i] != sorted[i] {
			return false
		}
	}
	return true
}

func (c Constraint) String() string {
	return "(" + strings.Join(c, ",") + ")"
}

// Option configures a type definition.
type Option func(*definition)

type definition struct {
	prefix  string
	unique  [][]string
	fields  []string
	checked bool
}

// WithPrefix overrides the key prefix derived from the Go type name.
func WithPrefix(prefix string) Option {
	return func(d *definition) {
		d.prefix = prefix
	}
}

// Unique declares a unique constraint over one or more fields.
func Unique(fields ...string) Option {
	return func(d *definition) {
		d.unique = append(d.unique, append([]string(nil), fields...))
	}
}

// WithFields declares the full set of field names so that constraints naming
// unknown fields are rejected at definition time.
func WithFields(fields ...string) Option {
	return func(d *definition) {
		d.fields = append(d.fields, fields...)
		d.checked = true
	}
}

// Type is the resolved metadata of a record type: key prefix, primary key
// field, unique constraints and the accessor for field values. It is
// immutable once defined and safe for concurrent use.
type Type[T any] struct {
	name        string
	prefix      string
	primaryKey  string
	constraints []Constraint
	fields      FieldsFunc[T]
}

// Define resolves a record type from an explicit declaration. Constraints
// equal to the primary key alone are dropped, duplicates are merged and field
// names are sorted.
func Define[T any](primaryKey string, fields FieldsFunc[T], opts ...Option) (*Type[T], error) {
	d := &definition{}
	for _, opt := range opts {
		opt(d)
	}
	return build(primaryKey, fields, d)
}

// MustDefine is like Define but panics on a ConfigurationError. Meant for
// package-level declarations.
func MustDefine[T any](primaryKey string, fields FieldsFunc[T], opts ...Option) *Type[T] {
	t, err := Define(primaryKey, fields, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

func build[T any](primaryKey string, fields FieldsFunc[T], d *definition) (*Type[T], error) {
	name := typeName[T]()

	if primaryKey == "" {
		return nil, &ConfigurationError{Type: name, Message: "missing primary key declaration"}
	}
	if fields == nil {
		return nil, &ConfigurationError{Type: name, Message: "missing field accessor"}
	}

	known := make(map[string]struct{}, len(d.fields))
	for _, f := range d.fields {
		known[f] = struct{}{}
	}
	if d.checked {
		if _, ok := known[primaryKey]; !ok {
			return nil, &ConfigurationError{Type: name, Field: primaryKey, Message: "primary key is not a declared field"}
		}
	}

	seen := make(map[string]struct{})
	var constraints []Constraint
	for _, fieldSet := range d.unique {
		if len(fieldSet) == 0 {
			return nil, &ConfigurationError{Type: name, Message: "empty unique constraint"}
		}

		c := make(Constraint, 0, len(fieldSet))
		dup := make(map[string]struct{}, len(fieldSet))
		for _, f := range fieldSet {
			if f == "" {
				return nil, &ConfigurationError{Type: name, Message: "unique constraint with empty field name"}
			}
			if d.checked {
				if _, ok := known[f]; !ok {
					return nil, &ConfigurationError{Type: name, Field: f, Message: "unique constraint names an unknown field"}
				}
			}
			if _, ok := dup[f]; ok {
				continue
			}
			dup[f] = struct{}{}
			c = append(c, f)
		}
		sort.Strings(c)

		// Handled by the primary key channel.
		if len(c) == 1 && c[0] == primaryKey {
			continue
		}

		id := strings.Join(c, "\x00")
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		constraints = append(constraints, c)
	}

	prefix := d.prefix
	if prefix == "" {
		prefix = defaultPrefix[T]()
	}

	return &Type[T]{
		name:        name,
		prefix:      prefix,
		primaryKey:  primaryKey,
		constraints: constraints,
		fields:      fields,
	}, nil
}

// Name is the Go type name, used in logs and metrics labels.
func (t *Type[T]) Name() string {
	return t.name
}

// Prefix is the key prefix shared by every cache entry of the type.
func (t *Type[T]) Prefix() string {
	return t.prefix
}

// PrimaryKeyField returns the primary key field name.
func (t *Type[T]) PrimaryKeyField() string {
	return t.primaryKey
}

// UniqueConstraints returns the declared constraints, excluding the primary key.
func (t *Type[T]) UniqueConstraints() []Constraint {
	out := make([]Constraint, len(t.constraints))
	for i, c := range t.constraints {
		out[i] = append(Constraint(nil), c...)
	}
	return out
}

// IsPrimaryKey reports whether field names the primary key or its alias.
func (t *Type[T]) IsPrimaryKey(field string) bool {
	return field == PrimaryKeyAlias || field == t.primaryKey
}

// MatchConstraint returns the constraint whose field set equals fields.
func (t *Type[T]) MatchConstraint(fields []string) (Constraint, bool) {
	for _, c := range t.constraints {
		if c.Equal(fields) {
			return c, true
		}
	}
	return nil, false
}

// Fields returns the current field values of record.
func (t *Type[T]) Fields(record T) map[string]any {
	return t.fields(record)
}

// PrimaryKeyValue extracts the primary key value of record.
func (t *Type[T]) PrimaryKeyValue(record T) (any, error) {
	v, ok := t.fields(record)[t.primaryKey]
	if !ok {
		return nil, &ConfigurationError{Type: t.name, Field: t.primaryKey, Message: "field accessor does not expose the primary key"}
	}
	return v, nil
}

// ConstraintValues returns, for each constraint, the record's values of the
// constraint fields. Fields the accessor does not expose are reported as nil.
func (t *Type[T]) ConstraintValues(record T) []map[string]any {
	values := t.fields(record)
	out := make([]map[string]any, 0, len(t.constraints))
	for _, c := range t.constraints {
		subset := make(map[string]any, len(c))
		for _, f := range c {
			subset[f] = values[f]
		}
		out = append(out, subset)
	}
	return out
}

func recordType[T any]() reflect.Type {
	rt := reflect.TypeOf((*T)(nil)).Elem()
	for rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	return rt
}

func typeName[T any]() string {
	rt := recordType[T]()
	if rt.Name() == "" {
		return rt.String()
	}
	return rt.Name()
}

// defaultPrefix is <package>.<type>, lower-cased, e.g. testapp.person.
func defaultPrefix[T any]() string {
	rt := recordType[T]()
	name := strings.ToLower(toSnake(rt.Name()))
	name = strings.ReplaceAll(name, "_", "")
	if rt.PkgPath() == "" {
		return name
	}
	return strings.ToLower(path.Base(rt.PkgPath())) + "." + name
}
