// Package params binds query, path, header and cookie parameters.
//
// Each constructor returns a typed dependency that extracts the named value
// from the request, decodes it with the declared OpenAPI style and
// validates it as T:
//
//	limit := params.Query[int]("limit", params.Default(10), params.Validate("gte=1,lte=100"))
//	id := params.Path[uuid.UUID]("id")
//	tags := params.Query[[]string]("tag", params.Explode(false))
//	filter := params.Query[Filter]("filter", params.Style(binder.StyleDeepObject))
//
// A pointer T makes the parameter optional: an absent value resolves to nil
// while an empty value resolves to a pointer to the empty value.
package params

import (
	"context"
	"fmt"
	"reflect"

	"github.com/cockroachdb/errors"
	"golang.org/x/net/http/httpguts"

	"github.com/vitalvas/xpresso/binder"
	"github.com/vitalvas/xpresso/di"
	"github.com/vitalvas/xpresso/field"
	"github.com/vitalvas/xpresso/openapi"
)

type config struct {
	style       binder.Style
	explode     *bool
	def         any
	hasDefault  bool
	required    *bool
	description string
	deprecated  bool
	example     any
	exclude     bool
	validate    string
}

// Option configures a parameter.
type Option func(*config)

// Style sets the serialization style.
func Style(s binder.Style) Option {
	return func(c *config) {
		c.style = s
	}
}

// Explode sets the explode flag.
func Explode(v bool) Option {
	return func(c *config) {
		c.explode = &v
	}
}

// Default sets the value used when the parameter is absent. A parameter
// with a default is optional.
func Default(v any) Option {
	return func(c *config) {
		c.def = v
		c.hasDefault = true
	}
}

// Required overrides whether absence is an error.
func Required(v bool) Option {
	return func(c *config) {
		c.required = &v
	}
}

// Description sets the parameter description.
func Description(s string) Option {
	return func(c *config) {
		c.description = s
	}
}

// Deprecated marks the parameter deprecated.
func Deprecated() Option {
	return func(c *config) {
		c.deprecated = true
	}
}

// Example sets the documented example value.
func Example(v any) Option {
	return func(c *config) {
		c.example = v
	}
}

// ExcludeFromSchema hides the parameter from the OpenAPI document.
func ExcludeFromSchema() Option {
	return func(c *config) {
		c.exclude = true
	}
}

// Validate sets go-playground/validator tags checked after decoding.
func Validate(tag string) Option {
	return func(c *config) {
		c.validate = tag
	}
}

// cacheKey identifies a parameter across declarations. Declarations of the
// same location, name and type resolve once per connection.
type cacheKey struct {
	in   binder.Location
	name string
	typ  reflect.Type
}

// Param is a parameter binder producing T.
type Param[T any] struct {
	in      binder.Location
	name    string
	style   binder.Style
	explode bool
	field   *field.Field
	cfg     config
	dep     di.Dep[T]
}

// Query declares a query parameter. The default style is form with
// explode.
func Query[T any](name string, opts ...Option) *Param[T] {
	return newParam[T](binder.InQuery, name, binder.StyleForm, opts)
}

// Path declares a path parameter. Path parameters are always required.
func Path[T any](name string, opts ...Option) *Param[T] {
	return newParam[T](binder.InPath, name, binder.StyleSimple, opts)
}

// Header declares a header parameter. The default style is simple.
func Header[T any](name string, opts ...Option) *Param[T] {
	return newParam[T](binder.InHeader, name, binder.StyleSimple, opts)
}

// Cookie declares a cookie parameter. The default style is form.
func Cookie[T any](name string, opts ...Option) *Param[T] {
	return newParam[T](binder.InCookie, name, binder.StyleForm, opts)
}

func newParam[T any](in binder.Location, name string, style binder.Style, opts []Option) *Param[T] {
	cfg := config{style: style}
	for _, opt := range opts {
		opt(&cfg)
	}

	p := &Param[T]{
		in:      in,
		name:    name,
		style:   cfg.style,
		explode: cfg.style == binder.StyleForm,
		cfg:     cfg,
	}

	if cfg.explode != nil {
		p.explode = *cfg.explode
	}

	typ := reflect.TypeFor[T]()
	nodeOpts := []di.Option{
		di.WithKey(cacheKey{in: in, name: name, typ: typ}),
		di.WithName(fmt.Sprintf("%s:%s", in, name)),
		di.WithMeta(p),
	}

	f, err := p.configure(typ)
	if err != nil {
		nodeOpts = append(nodeOpts, di.WithError(err))
	}

	p.field = f
	p.dep = di.Derive1(binder.ConnectionDep, p.extract, nodeOpts...)

	return p
}

func (p *Param[T]) configure(typ reflect.Type) (*field.Field, error) {
	var fieldOpts []field.Option
	if p.cfg.hasDefault {
		fieldOpts = append(fieldOpts, field.WithDefault(p.cfg.def))
	}

	if p.cfg.required != nil {
		fieldOpts = append(fieldOpts, field.WithRequired(*p.cfg.required))
	}

	if p.cfg.validate != "" {
		fieldOpts = append(fieldOpts, field.WithValidation(p.cfg.validate))
	}

	f, err := field.New(p.name, typ, fieldOpts...)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "%s parameter %q", p.in, p.name), binder.ErrConfiguration)
	}

	if err := f.Coercible(); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "%s parameter %q", p.in, p.name), binder.ErrConfiguration)
	}

	if err := p.check(f); err != nil {
		return nil, err
	}

	return f, nil
}

var allowedStyles = map[binder.Location][]binder.Style{
	binder.InQuery:  {binder.StyleForm, binder.StyleSpaceDelimited, binder.StylePipeDelimited, binder.StyleDeepObject},
	binder.InPath:   {binder.StyleSimple, binder.StyleLabel, binder.StyleMatrix},
	binder.InHeader: {binder.StyleSimple},
	binder.InCookie: {binder.StyleForm},
}

func (p *Param[T]) check(f *field.Field) error {
	if p.name == "" {
		return binder.ConfigError("%s parameter without a name", p.in)
	}

	allowed := false
	for _, s := range allowedStyles[p.in] {
		if s == p.style {
			allowed = true
			break
		}
	}

	if !allowed {
		return binder.ConfigError("%s parameter %q: style %s is not allowed in %s", p.in, p.name, p.style, p.in)
	}

	if p.style == binder.StyleDeepObject {
		if !p.explode {
			return binder.ConfigError("%s parameter %q: deepObject requires explode", p.in, p.name)
		}

		if f.Shape() != field.ShapeMapping {
			return binder.ConfigError("%s parameter %q: deepObject requires an object type, got %s", p.in, p.name, f.Type())
		}
	}

	switch p.in {
	case binder.InPath:
		if p.cfg.hasDefault {
			return binder.ConfigError("path parameter %q cannot have a default", p.name)
		}

		if !f.Required() {
			return binder.ConfigError("path parameter %q must be required", p.name)
		}
	case binder.InHeader:
		if !httpguts.ValidHeaderFieldName(p.name) {
			return binder.ConfigError("header parameter %q is not a valid header name", p.name)
		}
	}

	return nil
}

// Node implements di.Dependency.
func (p *Param[T]) Node() *di.Node { return p.dep.Node() }

// From returns the extracted value.
func (p *Param[T]) From(v *di.Values) T { return p.dep.From(v) }

// In returns the parameter location.
func (p *Param[T]) In() binder.Location { return p.in }

// ParamName returns the wire name.
func (p *Param[T]) ParamName() string { return p.name }

// Style returns the serialization style.
func (p *Param[T]) Style() binder.Style { return p.style }

// Exploded returns the explode flag.
func (p *Param[T]) Exploded() bool { return p.explode }

// IncludeInSchema reports whether the parameter is documented.
func (p *Param[T]) IncludeInSchema() bool { return !p.cfg.exclude }

func (p *Param[T]) extract(_ context.Context, conn *binder.Connection) (T, error) {
	var zero T

	raw := collect(conn, p.in, p.name, p.style, p.explode, p.field)

	var in any
	if raw != nil {
		in = raw.Value
	}

	v, errs := p.field.Validate(in, field.Loc{string(p.in), p.name})
	if len(errs) > 0 {
		return zero, binder.Validation(errs)
	}

	out, _ := v.(T)

	return out, nil
}

// Parameter describes the parameter for the OpenAPI document.
func (p *Param[T]) Parameter(gen *openapi.SchemaGenerator) *openapi.Parameter {
	schema := gen.GenerateType(p.field.ElemType())
	if schema != nil && schema.Ref == "" {
		if def, ok := p.field.Default(); ok && def != nil {
			schema.Default = deref(def)
		}
	}

	explode := p.explode

	return &openapi.Parameter{
		Name:        p.name,
		In:          string(p.in),
		Description: p.cfg.description,
		Required:    p.in == binder.InPath || p.field.Required(),
		Deprecated:  p.cfg.deprecated,
		Style:       string(p.style),
		Explode:     &explode,
		Schema:      schema,
		Example:     p.cfg.example,
	}
}

func deref(v any) any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}

		return rv.Elem().Interface()
	}

	return v
}
