package cache

import (
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = ":"

const (
	primaryKeySegment = "pk"
	registrySuffix    = "indexes"
	allIDsSuffix      = "all"
)

// KeyBuilder produces the deterministic cache keys shared by the router and
// the synchronizer. Every key starts with the record type prefix.
type KeyBuilder interface {
	// BuildQueryKey orders fields by name and joins them as name:value pairs.
	BuildQueryKey(fields map[string]any) string
	// FormatValue renders a single field value the way it appears in keys.
	FormatValue(v any) string
	// RecordKey is <prefix>:pk:<pk>, the location of the serialized record.
	RecordKey(prefix string, pk any) string
	// IndexKey is <prefix>:<query key>, resolving to a primary key value.
	IndexKey(prefix string, fields map[string]any) string
	// RegistryKey is <record key>:indexes, the set of index keys owned by a record.
	RegistryKey(prefix string, pk any) string
	// AllIDsKey is <prefix>:all, the set of cached primary key values.
	AllIDsKey(prefix string) string
}

// defaultKeyBuilder renders values with reflection and never fails. Values
// containing the separator can collide with other field combinations.
type defaultKeyBuilder struct{}

// NewDefaultKeyBuilder creates a new instance of the default key builder.
func NewDefaultKeyBuilder() KeyBuilder {
	return &defaultKeyBuilder{}
}

// BuildQueryKey returns an empty string for an empty mapping.
func (b *defaultKeyBuilder) BuildQueryKey(fields map[string]any) string {
	if len(fields) == 0 {
		return ""
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names)*2)
	for _, name := range names {
		parts = append(parts, name, b.FormatValue(fields[name]))
	}

	return strings.Join(parts, KeySeparator)
}

func (b *defaultKeyBuilder) RecordKey(prefix string, pk any) string {
	return strings.Join([]string{prefix, primaryKeySegment, b.FormatValue(pk)}, KeySeparator)
}

// IndexKey with no fields yields "<prefix>:", a shape no other key can take.
func (b *defaultKeyBuilder) IndexKey(prefix string, fields map[string]any) string {
	return prefix + KeySeparator + b.BuildQueryKey(fields)
}

func (b *defaultKeyBuilder) RegistryKey(prefix string, pk any) string {
	return b.RecordKey(prefix, pk) + KeySeparator + registrySuffix
}

func (b *defaultKeyBuilder) AllIDsKey(prefix string) string {
	return prefix + KeySeparator + allIDsSuffix
}

// FormatValue handles individual value rendering based on type.
func (b *defaultKeyBuilder) FormatValue(v any) string {
	if v == nil {
		return "nil"
	}

	switch tv := v.(type) {
	case string:
		return tv
	case []byte:
		return hex.EncodeToString(tv)
	case time.Time:
		return tv.UTC().Format(time.RFC3339Nano)
	case driver.Valuer:
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Ptr && rv.IsNil() {
			return "nil"
		}
		if value, err := tv.Value(); err == nil {
			return b.FormatValue(value)
		}
	case fmt.Stringer:
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Ptr && rv.IsNil() {
			return "nil"
		}
		return tv.String()
	}

	rv := reflect.ValueOf(v)
	rt := rv.Type()

	// Handle pointers by dereferencing
	if rt.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return "nil"
		}
		return b.FormatValue(rv.Elem().Interface())
	}

	if b.isBasicType(rt.Kind()) {
		return fmt.Sprintf("%v", v)
	}

	if rt.Kind() == reflect.Slice || rt.Kind() == reflect.Array {
		if rt.Kind() == reflect.Slice && rv.IsNil() {
			return "nil"
		}
		parts := make([]string, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			parts[i] = b.FormatValue(rv.Index(i).Interface())
		}
		return "[" + strings.Join(parts, ",") + "]"
	}

	return b.jsonFallback(v)
}

// isBasicType checks if a kind represents a basic Go type
func (b *defaultKeyBuilder) isBasicType(kind reflect.Kind) bool {
	switch kind {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.String:
		return true
	default:
		return false
	}
}

// jsonFallback provides JSON serialization as a last resort
func (b *defaultKeyBuilder) jsonFallback(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%T:%v", v, v)
	}
	return string(data)
}
