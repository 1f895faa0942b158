package params

import (
	"encoding"
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/vitalvas/xpresso/binder"
	"github.com/vitalvas/xpresso/field"
)

// Serialize encodes value the way a client sends it for the given
// location and style. The result is a query string for query parameters,
// a Cookie header value for cookies, a header value for headers and a raw
// path segment for path parameters.
func Serialize(in binder.Location, style binder.Style, explode bool, name string, value any) (string, error) {
	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return "", nil
		}

		rv = rv.Elem()
	}

	kind, items, err := flatten(rv)
	if err != nil {
		return "", err
	}

	switch in {
	case binder.InQuery:
		return encodeQuery(style, explode, name, kind, items).Encode(), nil
	case binder.InCookie:
		q := encodeQuery(style, explode, name, kind, items)
		keys := lo.Keys(q)
		sort.Strings(keys)

		var parts []string
		for _, k := range keys {
			for _, v := range q[k] {
				parts = append(parts, k+"="+v)
			}
		}

		return strings.Join(parts, "; "), nil
	case binder.InHeader:
		return encodeSimple(explode, kind, items, ","), nil
	case binder.InPath:
		return encodePath(style, explode, name, kind, items), nil
	}

	return "", fmt.Errorf("unknown location %q", in)
}

type item struct {
	key   string
	value string
}

// flatten renders rv as a list of strings, or key/value pairs for objects.
func flatten(rv reflect.Value) (field.Shape, []item, error) {
	if s, ok := scalarString(rv); ok {
		return field.ShapeScalar, []item{{value: s}}, nil
	}

	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]item, 0, rv.Len())
		for i := range rv.Len() {
			s, ok := scalarString(rv.Index(i))
			if !ok {
				return 0, nil, fmt.Errorf("unsupported element type %s", rv.Index(i).Type())
			}

			items = append(items, item{value: s})
		}

		return field.ShapeSequence, items, nil

	case reflect.Map:
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

		items := make([]item, 0, len(keys))
		for _, k := range keys {
			s, ok := scalarString(rv.MapIndex(k))
			if !ok {
				return 0, nil, fmt.Errorf("unsupported value type %s", rv.Type().Elem())
			}

			items = append(items, item{key: k.String(), value: s})
		}

		return field.ShapeMapping, items, nil

	case reflect.Struct:
		f, err := field.New("", rv.Type())
		if err != nil {
			return 0, nil, err
		}

		var items []item
		for _, p := range f.Properties() {
			fv := rv.Field(p.Index)
			if fv.Kind() == reflect.Pointer && fv.IsNil() {
				continue
			}

			s, ok := scalarString(fv)
			if !ok {
				return 0, nil, fmt.Errorf("unsupported property type %s", p.Type)
			}

			items = append(items, item{key: p.Name, value: s})
		}

		return field.ShapeMapping, items, nil
	}

	return 0, nil, fmt.Errorf("unsupported type %s", rv.Type())
}

func scalarString(rv reflect.Value) (string, bool) {
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return "", true
		}

		rv = rv.Elem()
	}

	switch v := rv.Interface().(type) {
	case time.Time:
		return v.Format(time.RFC3339Nano), true
	case time.Duration:
		return v.String(), true
	case []byte:
		return string(v), true
	case encoding.TextMarshaler:
		b, err := v.MarshalText()
		if err != nil {
			return "", false
		}

		return string(b), true
	}

	switch rv.Kind() {
	case reflect.String:
		return rv.String(), true
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), true
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'g', -1, 64), true
	}

	return "", false
}

func values(items []item) []string {
	return lo.Map(items, func(it item, _ int) string { return it.value })
}

func flatPairs(items []item) []string {
	out := make([]string, 0, len(items)*2)
	for _, it := range items {
		out = append(out, it.key, it.value)
	}

	return out
}

func encodeQuery(style binder.Style, explode bool, name string, shape field.Shape, items []item) url.Values {
	q := url.Values{}

	switch shape {
	case field.ShapeScalar:
		q.Set(name, items[0].value)

	case field.ShapeSequence:
		if explode {
			for _, it := range items {
				q.Add(name, it.value)
			}

			break
		}

		q.Set(name, strings.Join(values(items), delimiter(style)))

	case field.ShapeMapping:
		switch {
		case style == binder.StyleDeepObject:
			for _, it := range items {
				q.Set(name+"["+it.key+"]", it.value)
			}
		case explode:
			for _, it := range items {
				q.Set(it.key, it.value)
			}
		default:
			q.Set(name, strings.Join(flatPairs(items), delimiter(style)))
		}
	}

	return q
}

func encodeSimple(explode bool, shape field.Shape, items []item, sep string) string {
	switch shape {
	case field.ShapeSequence:
		return strings.Join(values(items), sep)
	case field.ShapeMapping:
		if explode {
			return strings.Join(lo.Map(items, func(it item, _ int) string { return it.key + "=" + it.value }), sep)
		}

		return strings.Join(flatPairs(items), sep)
	}

	return items[0].value
}

func encodePath(style binder.Style, explode bool, name string, shape field.Shape, items []item) string {
	switch style {
	case binder.StyleLabel:
		if explode && shape != field.ShapeScalar {
			return "." + encodeSimple(true, shape, items, ".")
		}

		return "." + encodeSimple(false, shape, items, ",")

	case binder.StyleMatrix:
		if explode && shape == field.ShapeSequence {
			return strings.Join(lo.Map(items, func(it item, _ int) string { return ";" + name + "=" + it.value }), "")
		}

		if explode && shape == field.ShapeMapping {
			return ";" + encodeSimple(true, shape, items, ";")
		}

		return ";" + name + "=" + encodeSimple(false, shape, items, ",")
	}

	return encodeSimple(explode, shape, items, ",")
}
