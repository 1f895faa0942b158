// Package field turns raw request values into typed Go values.
//
// A Field wraps a declared Go type with requiredness, an optional default and
// validator tags. Binders collect raw strings from the request and hand them
// to Validate, which coerces them and reports failures as Errors with
// request locations.
package field

import (
	"reflect"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	// ErrUnsupportedType is returned by New when a type cannot be bound.
	ErrUnsupportedType = errors.New("unsupported field type")

	// ErrInvalidDefault is returned by New when a default is not assignable.
	ErrInvalidDefault = errors.New("default value does not match field type")
)

// Shape describes how a field is laid out on the wire.
type Shape int

const (
	ShapeScalar Shape = iota
	ShapeSequence
	ShapeMapping
)

func (s Shape) String() string {
	switch s {
	case ShapeSequence:
		return "sequence"
	case ShapeMapping:
		return "mapping"
	default:
		return "scalar"
	}
}

// Property is a named member of a mapping-shaped struct field.
type Property struct {
	Name     string
	Index    int
	Type     reflect.Type
	Required bool
}

// Field is a named, typed value slot.
type Field struct {
	name       string
	typ        reflect.Type
	elem       reflect.Type
	shape      Shape
	required   bool
	reqSet     bool
	def        reflect.Value
	hasDefault bool
	tag        string
	props      []Property
}

// Option configures a Field.
type Option func(*Field)

// WithDefault sets the value used when the field is absent.
func WithDefault(v any) Option {
	return func(f *Field) {
		f.def = reflect.ValueOf(v)
		f.hasDefault = true
	}
}

// WithRequired overrides the inferred requiredness.
func WithRequired(required bool) Option {
	return func(f *Field) {
		f.required = required
		f.reqSet = true
	}
}

// WithValidation sets go-playground/validator tags applied to the value.
func WithValidation(tag string) Option {
	return func(f *Field) {
		f.tag = tag
	}
}

// New creates a Field for type t.
func New(name string, t reflect.Type, opts ...Option) (*Field, error) {
	if t == nil {
		return nil, errors.Wrapf(ErrUnsupportedType, "field %q: nil type", name)
	}

	f := &Field{name: name, typ: t, elem: t}
	if t.Kind() == reflect.Pointer {
		f.elem = t.Elem()
	}

	for _, opt := range opts {
		opt(f)
	}

	switch f.elem.Kind() {
	case reflect.Chan, reflect.Func, reflect.Complex64, reflect.Complex128, reflect.UnsafePointer:
		return nil, errors.Wrapf(ErrUnsupportedType, "field %q: %s", name, t)
	}

	f.shape = shapeOf(f.elem)
	if f.shape == ShapeMapping && f.elem.Kind() == reflect.Struct {
		f.props = structProperties(f.elem)
	}

	if f.hasDefault {
		if !f.def.IsValid() {
			f.def = reflect.Zero(t)
		}

		switch {
		case f.def.Type().AssignableTo(t):
		case t.Kind() == reflect.Pointer && f.def.Type().AssignableTo(f.elem):
			ptr := reflect.New(f.elem)
			ptr.Elem().Set(f.def)
			f.def = ptr
		case f.def.Type().ConvertibleTo(t) && f.def.Kind() != reflect.String:
			f.def = f.def.Convert(t)
		default:
			return nil, errors.Wrapf(ErrInvalidDefault, "field %q: %s is not assignable to %s", name, f.def.Type(), t)
		}
	}

	if !f.reqSet {
		f.required = !f.hasDefault && t.Kind() != reflect.Pointer
	}

	return f, nil
}

func shapeOf(t reflect.Type) Shape {
	if isScalar(t) {
		return ShapeScalar
	}

	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		return ShapeSequence
	case reflect.Map, reflect.Struct:
		return ShapeMapping
	}

	return ShapeScalar
}

func structProperties(t reflect.Type) []Property {
	var props []Property

	for i := range t.NumField() {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}

		name, omitempty, skip := jsonName(sf)
		if skip {
			continue
		}

		props = append(props, Property{
			Name:     name,
			Index:    i,
			Type:     sf.Type,
			Required: !omitempty && sf.Type.Kind() != reflect.Pointer,
		})
	}

	return props
}

func jsonName(sf reflect.StructField) (string, bool, bool) {
	tag := sf.Tag.Get("json")
	if tag == "-" {
		return "", false, true
	}

	name, rest, _ := strings.Cut(tag, ",")
	if name == "" {
		name = sf.Name
	}

	return name, strings.Contains(rest, "omitempty") || strings.Contains(rest, "omitzero"), false
}

// Name returns the field name.
func (f *Field) Name() string { return f.name }

// Type returns the declared Go type.
func (f *Field) Type() reflect.Type { return f.typ }

// ElemType returns the declared type with one pointer level removed.
func (f *Field) ElemType() reflect.Type { return f.elem }

// Shape returns the wire shape.
func (f *Field) Shape() Shape { return f.shape }

// Required reports whether absence is a validation error.
func (f *Field) Required() bool { return f.required }

// Properties returns the members of a struct mapping, nil otherwise.
func (f *Field) Properties() []Property { return f.props }

// ValidationTag returns the validator tags.
func (f *Field) ValidationTag() string { return f.tag }

// Default returns the default value, if any.
func (f *Field) Default() (any, bool) {
	if !f.hasDefault {
		return nil, false
	}

	return f.def.Interface(), true
}

// Coercible reports an error when the field cannot be produced from strings.
func (f *Field) Coercible() error {
	switch f.shape {
	case ShapeScalar:
		if !isScalar(f.elem) {
			return errors.Wrapf(ErrUnsupportedType, "field %q: %s", f.name, f.typ)
		}
	case ShapeSequence:
		if !isScalar(f.elem.Elem()) {
			return errors.Wrapf(ErrUnsupportedType, "field %q: sequence of %s", f.name, f.elem.Elem())
		}
	case ShapeMapping:
		if f.elem.Kind() == reflect.Map {
			if f.elem.Key().Kind() != reflect.String || !isScalar(f.elem.Elem()) {
				return errors.Wrapf(ErrUnsupportedType, "field %q: %s", f.name, f.elem)
			}

			return nil
		}

		for _, p := range f.props {
			if !isScalar(p.Type) {
				return errors.Wrapf(ErrUnsupportedType, "field %q: property %q is %s", f.name, p.Name, p.Type)
			}
		}
	}

	return nil
}

// Absent returns the value for a missing field.
func (f *Field) Absent(loc Loc) (any, Errors) {
	if f.required {
		return nil, Errors{Missing(loc)}
	}

	if f.hasDefault {
		return f.def.Interface(), nil
	}

	return reflect.Zero(f.typ).Interface(), nil
}

// Validate coerces raw into the field type and runs validator tags.
// raw is nil for an absent value, or one of string, []string and
// map[string]string as collected from the request. Values already of the
// field type are checked as they are.
func (f *Field) Validate(raw any, loc Loc) (any, Errors) {
	if raw == nil {
		return f.Absent(loc)
	}

	var (
		out  reflect.Value
		errs Errors
	)

	switch v := raw.(type) {
	case string:
		out, errs = f.fromStrings([]string{v}, loc)
	case []string:
		out, errs = f.fromStrings(v, loc)
	case map[string]string:
		out, errs = f.fromMap(v, loc)
	default:
		rv := reflect.ValueOf(raw)
		if !rv.Type().AssignableTo(f.typ) {
			return nil, Invalid(loc, "value is not a valid "+f.typ.String(), TypeValue)
		}

		out = rv
	}

	if len(errs) > 0 {
		return nil, errs
	}

	value := out.Interface()
	if errs := f.Check(value, loc); len(errs) > 0 {
		return nil, errs
	}

	return value, nil
}

func (f *Field) fromStrings(values []string, loc Loc) (reflect.Value, Errors) {
	switch f.shape {
	case ShapeScalar:
		if len(values) == 0 {
			return reflect.Value{}, Errors{Missing(loc)}
		}

		v, fail := coerce(f.typ, values[0])
		if fail != nil {
			return reflect.Value{}, Invalid(loc, fail.msg, fail.typ)
		}

		return v, nil

	case ShapeSequence:
		var errs Errors

		slice := reflect.MakeSlice(reflect.SliceOf(f.elem.Elem()), len(values), len(values))
		for i, s := range values {
			v, fail := coerce(f.elem.Elem(), s)
			if fail != nil {
				errs = append(errs, ErrorDetail{Loc: loc.Append(i), Msg: fail.msg, Type: fail.typ})
				continue
			}

			slice.Index(i).Set(v)
		}

		if len(errs) > 0 {
			return reflect.Value{}, errs
		}

		return f.wrap(f.fitSequence(slice)), nil
	}

	return reflect.Value{}, Invalid(loc, "value is not a valid dict", TypeDict)
}

func (f *Field) fitSequence(slice reflect.Value) reflect.Value {
	if f.elem.Kind() != reflect.Array {
		return slice.Convert(f.elem)
	}

	arr := reflect.New(f.elem).Elem()
	reflect.Copy(arr, slice)

	return arr
}

func (f *Field) fromMap(values map[string]string, loc Loc) (reflect.Value, Errors) {
	if f.shape != ShapeMapping {
		if f.shape == ShapeSequence {
			return reflect.Value{}, Invalid(loc, "value is not a valid list", TypeList)
		}

		return reflect.Value{}, Invalid(loc, "value is not a valid "+f.elem.Kind().String(), TypeValue)
	}

	var errs Errors

	if f.elem.Kind() == reflect.Map {
		m := reflect.MakeMapWithSize(f.elem, len(values))
		for k, s := range values {
			v, fail := coerce(f.elem.Elem(), s)
			if fail != nil {
				errs = append(errs, ErrorDetail{Loc: loc.Append(k), Msg: fail.msg, Type: fail.typ})
				continue
			}

			m.SetMapIndex(reflect.ValueOf(k).Convert(f.elem.Key()), v)
		}

		if len(errs) > 0 {
			return reflect.Value{}, sortErrors(errs)
		}

		return f.wrap(m), nil
	}

	st := reflect.New(f.elem).Elem()
	for _, p := range f.props {
		s, ok := values[p.Name]
		if !ok {
			if p.Required {
				errs = append(errs, Missing(loc.Append(p.Name)))
			}

			continue
		}

		v, fail := coerce(p.Type, s)
		if fail != nil {
			errs = append(errs, ErrorDetail{Loc: loc.Append(p.Name), Msg: fail.msg, Type: fail.typ})
			continue
		}

		st.Field(p.Index).Set(v)
	}

	if len(errs) > 0 {
		return reflect.Value{}, errs
	}

	return f.wrap(st), nil
}

// wrap re-adds the pointer level removed by elem.
func (f *Field) wrap(v reflect.Value) reflect.Value {
	if f.typ.Kind() != reflect.Pointer {
		return v
	}

	ptr := reflect.New(f.elem)
	ptr.Elem().Set(v)

	return ptr
}
