package schema

import (
	"reflect"
	"strings"
	"unicode"
)

type bunColumn struct {
	name  string
	index []int
}

// FromBunModel resolves a record type from the bun struct tags of T, which
// must be a struct or a pointer to one. The column marked `pk` becomes the
// primary key, `unique` declares a single-column constraint and
// `unique:<group>` groups columns into one composite constraint. Columns
// without an explicit name use the snake_case form of the Go field name.
//
// The struct layout is walked once here; the returned accessor only reads the
// resolved field indexes.
func FromBunModel[T any](opts ...Option) (*Type[T], error) {
	rt := recordType[T]()
	name := typeName[T]()
	if rt.Kind() != reflect.Struct {
		return nil, &ConfigurationError{Type: name, Message: "bun models must be structs"}
	}

	var (
		columns    []bunColumn
		primaryKey string
		groups     = map[string][]string{}
		groupOrder []string
		singles    [][]string
	)

	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if field.Anonymous || !field.IsExported() {
			continue
		}

		tag, hasTag := field.Tag.Lookup("bun")
		if tag == "-" {
			continue
		}

		parts := strings.Split(tag, ",")
		// Relations are loaded by bun through joins and have no column.
		if strings.HasPrefix(parts[0], "rel:") || strings.HasPrefix(parts[0], "m2m:") {
			continue
		}
		column := ""
		if hasTag && !strings.Contains(parts[0], ":") {
			column = parts[0]
		}
		if column == "" {
			column = toSnake(field.Name)
		}

		columns = append(columns, bunColumn{name: column, index: field.Index})

		for _, opt := range parts[1:] {
			switch {
			case opt == "pk":
				if primaryKey != "" {
					return nil, &ConfigurationError{Type: name, Field: column, Message: "composite primary keys are not supported"}
				}
				primaryKey = column
			case opt == "unique":
				singles = append(singles, []string{column})
			case strings.HasPrefix(opt, "unique:"):
				group := strings.TrimPrefix(opt, "unique:")
				if _, ok := groups[group]; !ok {
					groupOrder = append(groupOrder, group)
				}
				groups[group] = append(groups[group], column)
			}
		}
	}

	d := &definition{}
	for _, c := range columns {
		d.fields = append(d.fields, c.name)
	}
	d.checked = true
	for _, single := range singles {
		d.unique = append(d.unique, single)
	}
	for _, group := range groupOrder {
		d.unique = append(d.unique, groups[group])
	}
	for _, opt := range opts {
		opt(d)
	}

	return build(primaryKey, bunAccessor[T](columns), d)
}

func bunAccessor[T any](columns []bunColumn) FieldsFunc[T] {
	return func(record T) map[string]any {
		rv := reflect.ValueOf(record)
		for rv.Kind() == reflect.Ptr {
			if rv.IsNil() {
				return map[string]any{}
			}
			rv = rv.Elem()
		}

		out := make(map[string]any, len(columns))
		for _, c := range columns {
			out[c.name] = rv.FieldByIndex(c.index).Interface()
		}
		return out
	}
}

// toSnake derives a column name from a Go identifier the way bun does
// (PersonID -> person_id). Any other rune collapses into a single separator.
func toSnake(s string) string {
	runes := []rune(s)
	var b strings.Builder
	sep := false
	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			if i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1]) ||
				i+1 < len(runes) && unicode.IsLower(runes[i+1])) {
				sep = true
			}
			r = unicode.ToLower(r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
		default:
			sep = true
			continue
		}
		if sep && b.Len() > 0 {
			b.WriteByte('_')
		}
		sep = false
		b.WriteRune(r)
	}
	return b.String()
}
