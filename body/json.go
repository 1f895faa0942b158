package body

import (
	"context"
	"reflect"

	"github.com/vitalvas/xpresso/binder"
	"github.com/vitalvas/xpresso/di"
	"github.com/vitalvas/xpresso/field"
	"github.com/vitalvas/xpresso/openapi"
)

// JSONBinder decodes the body into T. The decoder is JSON unless replaced
// with WithDecoder, so the same binder serves YAML, MessagePack or TOML
// payloads:
//
//	item := body.JSON[Item]()
//	cfg := body.JSON[Config](body.MediaTypes("application/yaml"), body.WithDecoder(body.YAMLDecoder{}))
type JSONBinder[T any] struct {
	base
	dep di.Dep[T]
}

// JSON declares a JSON body. Accepted media types default to
// application/json.
func JSON[T any](opts ...Option) *JSONBinder[T] {
	cfg := newConfig("application/json", opts)
	if cfg.decoder == nil {
		cfg.decoder = JSONDecoder{}
	}

	b := &JSONBinder[T]{}

	nodeOpts := []di.Option{di.WithName("body:json"), di.WithMeta(b)}

	base, err := newBase(reflect.TypeFor[T](), cfg)
	if err != nil {
		nodeOpts = append(nodeOpts, di.WithError(err))
	}

	b.base = base
	b.dep = di.Derive1(binder.ConnectionDep, func(ctx context.Context, conn *binder.Connection) (T, error) {
		v, err := b.Extract(ctx, conn)
		if err != nil {
			var zero T
			return zero, err
		}

		out, _ := v.(T)

		return out, nil
	}, nodeOpts...)

	return b
}

// Node implements di.Dependency.
func (b *JSONBinder[T]) Node() *di.Node { return b.dep.Node() }

// From returns the decoded body.
func (b *JSONBinder[T]) From(v *di.Values) T { return b.dep.From(v) }

// Extract implements Binder. A zero-length body without Content-Type is
// absent.
func (b *JSONBinder[T]) Extract(ctx context.Context, conn *binder.Connection) (any, error) {
	mediaType := conn.MediaType()

	data, err := conn.Body(ctx)
	if err != nil {
		return nil, err
	}

	if len(data) == 0 && mediaType == "" {
		return b.absent()
	}

	if err := b.checkMediaType(mediaType); err != nil {
		return nil, err
	}

	ptr := reflect.New(b.field.Type())
	if err := b.cfg.decoder.Decode(data, ptr.Interface()); err != nil {
		return nil, decodeError(bodyLoc(), err)
	}

	absent, errs := checkDocument(b.field, b.cfg.decoder, data, bodyLoc())
	if len(errs) > 0 {
		return nil, binder.Validation(errs)
	}

	if absent {
		return b.absent()
	}

	v := ptr.Elem().Interface()
	if errs := b.field.Check(v, bodyLoc()); len(errs) > 0 {
		return nil, binder.Validation(errs)
	}

	return v, nil
}

func (b *JSONBinder[T]) absent() (any, error) {
	v, errs := b.field.Absent(bodyLoc())
	if len(errs) > 0 {
		return nil, binder.Validation(errs)
	}

	return v, nil
}

// checkDocument decodes data again into a generic document and reports the
// required properties it lacks. A null document of an optional field is
// absent; decoders that cannot produce a generic document are not checked.
func checkDocument(f *field.Field, d Decoder, data []byte, loc field.Loc) (bool, field.Errors) {
	var doc any
	if err := d.Decode(data, &doc); err != nil {
		return false, nil
	}

	if doc == nil && !f.Required() {
		return true, nil
	}

	return false, f.CheckPresence(doc, loc)
}

// Content implements Binder.
func (b *JSONBinder[T]) Content(gen *openapi.SchemaGenerator) map[string]*openapi.MediaType {
	return map[string]*openapi.MediaType{
		b.documentedMediaType(): {
			Schema:  gen.GenerateType(b.field.ElemType()),
			Example: b.cfg.example,
		},
	}
}

// RequestBody implements binder.BodyBinder.
func (b *JSONBinder[T]) RequestBody(gen *openapi.SchemaGenerator) *openapi.RequestBody {
	return b.requestBody(b.Content(gen))
}
