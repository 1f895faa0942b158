package params

import (
	"net/url"
	"strings"

	"github.com/vitalvas/xpresso/binder"
	"github.com/vitalvas/xpresso/field"
)

// collect reads the raw value of one parameter. It returns nil when the
// parameter is absent. The wrapped value is a string for scalars, a
// []string for sequences and a map[string]string for objects.
func collect(conn *binder.Connection, in binder.Location, name string, style binder.Style, explode bool, f *field.Field) *binder.Some[any] {
	switch in {
	case binder.InQuery:
		return collectMulti(conn.Query(), name, style, explode, f)
	case binder.InCookie:
		return collectMulti(cookieValues(conn), name, style, explode, f)
	case binder.InHeader:
		values := conn.Header().Values(name)
		if len(values) == 0 {
			return nil
		}

		return collectSimple(strings.Join(values, ","), explode, f.Shape())
	case binder.InPath:
		raw, ok := conn.PathParam(name)
		if !ok {
			return nil
		}

		return collectPath(raw, name, style, explode, f.Shape())
	}

	return nil
}

// cookieValues groups the request cookies by name, keeping repeated
// cookies in order.
func cookieValues(conn *binder.Connection) url.Values {
	out := url.Values{}
	for _, c := range conn.Request().Cookies() {
		out.Add(c.Name, c.Value)
	}

	return out
}

func delimiter(style binder.Style) string {
	switch style {
	case binder.StyleSpaceDelimited:
		return " "
	case binder.StylePipeDelimited:
		return "|"
	default:
		return ","
	}
}

// CollectValues reads one named value from a multi-map such as a decoded
// form body, using the form, delimited or deepObject style.
func CollectValues(values url.Values, name string, style binder.Style, explode bool, f *field.Field) *binder.Some[any] {
	return collectMulti(values, name, style, explode, f)
}

// collectMulti handles the form, delimited and deepObject styles over a
// multi-map such as the query string.
func collectMulti(values url.Values, name string, style binder.Style, explode bool, f *field.Field) *binder.Some[any] {
	if style == binder.StyleDeepObject {
		return collectDeepObject(values, name)
	}

	switch f.Shape() {
	case field.ShapeSequence:
		vs, ok := values[name]
		if !ok {
			return nil
		}

		if explode {
			return binder.NewSome[any](vs)
		}

		return binder.NewSome[any](split(first(vs), delimiter(style)))

	case field.ShapeMapping:
		if explode {
			return collectExplodedObject(values, f)
		}

		vs, ok := values[name]
		if !ok {
			return nil
		}

		return binder.NewSome[any](pairs(split(first(vs), delimiter(style))))
	}

	vs, ok := values[name]
	if !ok {
		return nil
	}

	return binder.NewSome[any](first(vs))
}

// collectExplodedObject reads each property of an object as its own key.
// Maps take every key of the multi-map.
func collectExplodedObject(values url.Values, f *field.Field) *binder.Some[any] {
	out := map[string]string{}

	if props := f.Properties(); props != nil {
		for _, p := range props {
			if vs, ok := values[p.Name]; ok {
				out[p.Name] = first(vs)
			}
		}
	} else {
		for k, vs := range values {
			out[k] = first(vs)
		}
	}

	if len(out) == 0 {
		return nil
	}

	return binder.NewSome[any](out)
}

// collectDeepObject regroups name[prop]=value keys into an object.
func collectDeepObject(values url.Values, name string) *binder.Some[any] {
	prefix := name + "["
	out := map[string]string{}
	found := false

	for k, vs := range values {
		if !strings.HasPrefix(k, prefix) || !strings.HasSuffix(k, "]") {
			continue
		}

		found = true
		out[k[len(prefix):len(k)-1]] = first(vs)
	}

	if !found {
		return nil
	}

	return binder.NewSome[any](out)
}

// collectSimple decodes the simple style used by headers and path
// parameters: "a,b,c" for sequences, "k1,v1,k2,v2" or "k1=v1,k2=v2" for
// objects.
func collectSimple(raw string, explode bool, shape field.Shape) *binder.Some[any] {
	switch shape {
	case field.ShapeSequence:
		return binder.NewSome[any](split(raw, ","))
	case field.ShapeMapping:
		parts := split(raw, ",")
		if explode {
			return binder.NewSome[any](assignments(parts))
		}

		return binder.NewSome[any](pairs(parts))
	}

	return binder.NewSome[any](raw)
}

func collectPath(raw, name string, style binder.Style, explode bool, shape field.Shape) *binder.Some[any] {
	switch style {
	case binder.StyleLabel:
		raw = strings.TrimPrefix(raw, ".")
		if explode && shape != field.ShapeScalar {
			parts := split(raw, ".")
			if shape == field.ShapeMapping {
				return binder.NewSome[any](assignments(parts))
			}

			return binder.NewSome[any](parts)
		}

		return collectSimple(raw, false, shape)

	case binder.StyleMatrix:
		raw = strings.TrimPrefix(raw, ";")
		if explode && shape != field.ShapeScalar {
			parts := split(raw, ";")
			if shape == field.ShapeMapping {
				return binder.NewSome[any](assignments(parts))
			}

			out := make([]string, 0, len(parts))
			for _, p := range parts {
				out = append(out, strings.TrimPrefix(p, name+"="))
			}

			return binder.NewSome[any](out)
		}

		return collectSimple(strings.TrimPrefix(raw, name+"="), false, shape)
	}

	return collectSimple(raw, explode, shape)
}

func first(vs []string) string {
	if len(vs) == 0 {
		return ""
	}

	return vs[0]
}

// split returns no elements for an empty string so an empty value decodes
// to an empty sequence.
func split(s, sep string) []string {
	if s == "" {
		return []string{}
	}

	return strings.Split(s, sep)
}

// pairs turns [k1 v1 k2 v2] into a map. A trailing key gets an empty value.
func pairs(parts []string) map[string]string {
	out := make(map[string]string, len(parts)/2)
	for i := 0; i < len(parts); i += 2 {
		v := ""
		if i+1 < len(parts) {
			v = parts[i+1]
		}

		out[parts[i]] = v
	}

	return out
}

// assignments turns [k1=v1 k2=v2] into a map.
func assignments(parts []string) map[string]string {
	out := make(map[string]string, len(parts))
	for _, p := range parts {
		k, v, _ := strings.Cut(p, "=")
		out[k] = v
	}

	return out
}
