package body

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	"github.com/vitalvas/xpresso/binder"
	"github.com/vitalvas/xpresso/di"
	"github.com/vitalvas/xpresso/openapi"
)

// OneOfBinder picks a branch by Content-Type. The resolved value is the
// value of the branch that handled the body:
//
//	payload := body.OneOf(body.JSON[Item](), body.Multipart[ItemForm]())
//
//	switch v := payload.From(values).(type) {
//	case Item:
//	case ItemForm:
//	}
type OneOfBinder struct {
	branches []Binder
	dep      di.Dep[any]
}

// OneOf declares a body accepted in several representations. Branches are
// tried in order and the first whose media types accept the request wins.
func OneOf(branches ...Binder) *OneOfBinder {
	b := &OneOfBinder{branches: branches}

	nodeOpts := []di.Option{di.WithName("body:oneof"), di.WithMeta(b)}

	if len(branches) == 0 {
		nodeOpts = append(nodeOpts, di.WithError(binder.ConfigError("body union without branches")))
	}

	for _, br := range branches {
		if err := br.Node().Err(); err != nil {
			nodeOpts = append(nodeOpts, di.WithError(err))
			break
		}
	}

	b.dep = di.Derive1(binder.ConnectionDep, b.Extract, nodeOpts...)

	return b
}

// Node implements di.Dependency.
func (b *OneOfBinder) Node() *di.Node { return b.dep.Node() }

// From returns the value produced by the matching branch.
func (b *OneOfBinder) From(v *di.Values) any { return b.dep.From(v) }

// Branches returns the union members in declaration order.
func (b *OneOfBinder) Branches() []Binder { return b.branches }

// Accepts implements Binder.
func (b *OneOfBinder) Accepts(mediaType string) bool {
	return lo.SomeBy(b.branches, func(br Binder) bool { return br.Accepts(mediaType) })
}

// Required implements Binder. The union is optional only when every
// branch is.
func (b *OneOfBinder) Required() bool {
	return lo.SomeBy(b.branches, func(br Binder) bool { return br.Required() })
}

// IncludeInSchema implements binder.BodyBinder.
func (b *OneOfBinder) IncludeInSchema() bool {
	return lo.SomeBy(b.branches, func(br Binder) bool { return br.IncludeInSchema() })
}

// Extract implements Binder. When several branches accept the media type
// and all fail, a validation error is preferred over other errors.
func (b *OneOfBinder) Extract(ctx context.Context, conn *binder.Connection) (any, error) {
	mediaType := conn.MediaType()

	if mediaType == "" && !b.Required() {
		data, err := conn.Body(ctx)
		if err != nil {
			return nil, err
		}

		if len(data) == 0 {
			return nil, nil
		}
	}

	var (
		failures   []error
		validation error
	)

	for _, br := range b.branches {
		if !br.Accepts(mediaType) {
			continue
		}

		v, err := br.Extract(ctx, conn)
		if err == nil {
			return v, nil
		}

		failures = append(failures, err)

		var verr *binder.ValidationError
		if validation == nil && errors.As(err, &verr) {
			validation = err
		}
	}

	if validation != nil {
		return nil, validation
	}

	if len(failures) > 0 {
		return nil, failures[len(failures)-1]
	}

	return nil, binder.UnsupportedMediaType(mediaType)
}

// Content implements Binder. Entries of later branches do not replace
// earlier ones for the same media type.
func (b *OneOfBinder) Content(gen *openapi.SchemaGenerator) map[string]*openapi.MediaType {
	out := map[string]*openapi.MediaType{}

	for _, br := range b.branches {
		if !br.IncludeInSchema() {
			continue
		}

		for mt, content := range br.Content(gen) {
			if _, ok := out[mt]; !ok {
				out[mt] = content
			}
		}
	}

	return out
}

// RequestBody implements binder.BodyBinder.
func (b *OneOfBinder) RequestBody(gen *openapi.SchemaGenerator) *openapi.RequestBody {
	rb := &openapi.RequestBody{Required: b.Required(), Content: b.Content(gen)}

	for _, br := range b.branches {
		if d := br.RequestBody(gen).Description; d != "" {
			rb.Description = d
			break
		}
	}

	return rb
}
