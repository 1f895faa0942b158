package field

import (
	"encoding/json"
	"reflect"
	"sort"
	"strings"
)

var (
	jsonUnmarshalerType = reflect.TypeFor[json.Unmarshaler]()
)

// CheckPresence reports required struct properties missing from doc, a
// generic decoded document (map[string]any, []any and scalars). A property
// is required unless it is a pointer or tagged omitempty or omitzero, the
// same rule the OpenAPI schema uses. A nil doc is missing when the field is
// required.
func (f *Field) CheckPresence(doc any, loc Loc) Errors {
	if doc == nil {
		if f.required {
			return Errors{Missing(loc)}
		}

		return nil
	}

	return presence(f.elem, doc, loc)
}

func presence(t reflect.Type, doc any, loc Loc) Errors {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	if doc == nil || customDecoded(t) {
		return nil
	}

	switch t.Kind() {
	case reflect.Struct:
		m, ok := asObject(doc)
		if !ok {
			return nil
		}

		return structPresence(t, m, loc, false)

	case reflect.Slice, reflect.Array:
		items, ok := doc.([]any)
		if !ok {
			return nil
		}

		var errs Errors
		for i, v := range items {
			errs = append(errs, presence(t.Elem(), v, loc.Append(i))...)
		}

		return errs

	case reflect.Map:
		m, ok := asObject(doc)
		if !ok || t.Key().Kind() != reflect.String {
			return nil
		}

		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}

		sort.Strings(keys)

		var errs Errors
		for _, k := range keys {
			errs = append(errs, presence(t.Elem(), m[k], loc.Append(k))...)
		}

		return errs
	}

	return nil
}

// structPresence walks the fields of t against m. Untagged embedded structs
// share the parent object; pointer-embedded ones make their fields optional.
func structPresence(t reflect.Type, m map[string]any, loc Loc, optional bool) Errors {
	var errs Errors

	for i := range t.NumField() {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}

		name, omitempty, skip := jsonName(sf)
		if skip {
			continue
		}

		if tagName, _, _ := strings.Cut(sf.Tag.Get("json"), ","); sf.Anonymous && tagName == "" {
			ft := sf.Type
			isPtr := ft.Kind() == reflect.Pointer
			if isPtr {
				ft = ft.Elem()
			}

			if ft.Kind() == reflect.Struct {
				errs = append(errs, structPresence(ft, m, loc, optional || isPtr)...)
				continue
			}
		}

		v, ok := m[name]
		if !ok {
			if !optional && !omitempty && sf.Type.Kind() != reflect.Pointer {
				errs = append(errs, Missing(loc.Append(name)))
			}

			continue
		}

		errs = append(errs, presence(sf.Type, v, loc.Append(name))...)
	}

	return errs
}

// customDecoded reports types that decode themselves, such as time.Time.
func customDecoded(t reflect.Type) bool {
	pt := reflect.PointerTo(t)

	return pt.Implements(jsonUnmarshalerType) || pt.Implements(textUnmarshalerType)
}

func asObject(doc any) (map[string]any, bool) {
	switch m := doc.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, v := range m {
			s, ok := k.(string)
			if !ok {
				return nil, false
			}

			out[s] = v
		}

		return out, true
	}

	return nil, false
}
