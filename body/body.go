// Package body binds request bodies: JSON (and other decoded formats),
// urlencoded and multipart forms, raw files and streams, and unions of
// these discriminated by Content-Type.
package body

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/vitalvas/xpresso/binder"
	"github.com/vitalvas/xpresso/di"
	"github.com/vitalvas/xpresso/field"
	"github.com/vitalvas/xpresso/openapi"
)

// Binder is a body binder that can take part in a OneOf union.
type Binder interface {
	di.Dependency
	binder.BodyBinder

	// Accepts reports whether the binder handles mediaType.
	Accepts(mediaType string) bool
	// Extract reads and validates the body.
	Extract(ctx context.Context, conn *binder.Connection) (any, error)
	// Content returns the request body content entries.
	Content(gen *openapi.SchemaGenerator) map[string]*openapi.MediaType
	// Required reports whether an absent body is an error.
	Required() bool
}

type config struct {
	mediaTypes  []string
	enforce     bool
	decoder     Decoder
	description string
	exclude     bool
	required    *bool
	validate    string
	example     any
	consume     bool
}

// Option configures a body binder.
type Option func(*config)

// MediaTypes sets the accepted media type patterns. The first pattern is
// the one documented.
func MediaTypes(patterns ...string) Option {
	return func(c *config) {
		c.mediaTypes = patterns
	}
}

// EnforceMediaType controls whether a non-matching Content-Type is
// rejected with 415. It is on by default.
func EnforceMediaType(v bool) Option {
	return func(c *config) {
		c.enforce = v
	}
}

// WithDecoder sets the decoder of a JSON-style binder.
func WithDecoder(d Decoder) Option {
	return func(c *config) {
		c.decoder = d
	}
}

// Description sets the request body description.
func Description(s string) Option {
	return func(c *config) {
		c.description = s
	}
}

// ExcludeFromSchema hides the body from the OpenAPI document.
func ExcludeFromSchema() Option {
	return func(c *config) {
		c.exclude = true
	}
}

// Required overrides whether an absent body is an error.
func Required(v bool) Option {
	return func(c *config) {
		c.required = &v
	}
}

// Validate sets validator tags checked on the decoded value.
func Validate(tag string) Option {
	return func(c *config) {
		c.validate = tag
	}
}

// Example sets the documented example.
func Example(v any) Option {
	return func(c *config) {
		c.example = v
	}
}

// Consume makes a File binder read the body incrementally instead of
// buffering it.
func Consume(v bool) Option {
	return func(c *config) {
		c.consume = v
	}
}

func newConfig(defaultMediaType string, opts []Option) config {
	cfg := config{mediaTypes: []string{defaultMediaType}, enforce: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg
}

func (c config) fieldOptions() []field.Option {
	var out []field.Option
	if c.required != nil {
		out = append(out, field.WithRequired(*c.required))
	}

	if c.validate != "" {
		out = append(out, field.WithValidation(c.validate))
	}

	return out
}

// base holds what every body binder shares.
type base struct {
	cfg     config
	matcher binder.MediaTypeMatcher
	field   *field.Field
}

func newBase(typ reflect.Type, cfg config) (base, error) {
	b := base{cfg: cfg, matcher: binder.NewMediaTypeMatcher(cfg.mediaTypes...)}

	f, err := field.New("body", typ, cfg.fieldOptions()...)
	if err != nil {
		return b, errors.Mark(errors.Wrap(err, "request body"), binder.ErrConfiguration)
	}

	b.field = f

	return b, nil
}

// Accepts implements Binder.
func (b *base) Accepts(mediaType string) bool { return b.matcher.Match(mediaType) }

// IncludeInSchema implements binder.BodyBinder.
func (b *base) IncludeInSchema() bool { return !b.cfg.exclude }

// Required implements Binder.
func (b *base) Required() bool { return b.field != nil && b.field.Required() }

func (b *base) documentedMediaType() string {
	if len(b.cfg.mediaTypes) == 0 {
		return "*/*"
	}

	return b.cfg.mediaTypes[0]
}

func (b *base) requestBody(content map[string]*openapi.MediaType) *openapi.RequestBody {
	return &openapi.RequestBody{
		Description: b.cfg.description,
		Required:    b.Required(),
		Content:     content,
	}
}

// checkMediaType returns the 415 error for a rejected media type. A binder
// accepting */* also takes a body without Content-Type.
func (b *base) checkMediaType(mediaType string) error {
	if !b.cfg.enforce || b.matcher.Match(mediaType) {
		return nil
	}

	if mediaType == "" && b.matcher.Match("*/*") {
		return nil
	}

	return binder.UnsupportedMediaType(mediaType)
}

func bodyLoc(elems ...any) field.Loc {
	return field.Loc{string(binder.InBody)}.Append(elems...)
}

// decodeError converts an error from a decoder into a validation error
// located under loc.
func decodeError(loc field.Loc, err error) error {
	var (
		syntax  *json.SyntaxError
		typeErr *json.UnmarshalTypeError
	)

	switch {
	case errors.As(err, &syntax):
		return binder.Validation(field.Invalid(loc.Append(int(syntax.Offset)), syntax.Error(), field.TypeJSONDecode))
	case errors.As(err, &typeErr):
		if typeErr.Field != "" {
			for _, part := range strings.Split(typeErr.Field, ".") {
				loc = loc.Append(part)
			}
		}

		return binder.Validation(field.Invalid(loc, "value is not a valid "+typeName(typeErr.Type), typeErrorType(typeErr.Type)))
	}

	return binder.Validation(field.Invalid(loc, "Invalid body: "+err.Error(), field.TypeJSONDecode))
}

func typeName(t reflect.Type) string {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "float"
	case reflect.Bool:
		return "boolean"
	case reflect.String:
		return "string"
	case reflect.Slice, reflect.Array:
		return "list"
	case reflect.Map, reflect.Struct:
		return "dict"
	}

	return t.String()
}

func typeErrorType(t reflect.Type) string {
	switch typeName(t) {
	case "integer":
		return field.TypeInteger
	case "float":
		return field.TypeFloat
	case "boolean":
		return field.TypeBool
	case "string":
		return field.TypeString
	case "list":
		return field.TypeList
	case "dict":
		return field.TypeDict
	}

	return field.TypeValue
}
