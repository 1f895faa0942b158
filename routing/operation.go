package routing

import (
	"context"
	"net/http"
	"reflect"
	"strings"

	"github.com/vitalvas/xpresso/di"
	"github.com/vitalvas/xpresso/openapi"
)

// Handler runs an operation once its dependencies are resolved. vals holds
// every value of the operation graph; read them with Dep.From.
type Handler func(ctx context.Context, vals *di.Values) (any, error)

// Endpoint is a handler together with its declared return type.
type Endpoint struct {
	fn       Handler
	response reflect.Type
}

// Handle wraps a typed handler. T documents the success response unless
// the operation declares one explicitly.
func Handle[T any](fn func(ctx context.Context, vals *di.Values) (T, error)) Endpoint {
	return Endpoint{
		fn: func(ctx context.Context, vals *di.Values) (any, error) {
			return fn(ctx, vals)
		},
		response: reflect.TypeFor[T](),
	}
}

// HandleFunc wraps an untyped handler. Its response is documented without a
// schema.
func HandleFunc(fn Handler) Endpoint {
	return Endpoint{fn: fn}
}

// NoContent is returned by handlers that answer 204 without a body.
type NoContent struct{}

// Responder is returned by handlers that write the response themselves.
// Headers set through ResponseDep are applied first. The responder writes
// its own status; one set with ResponseMeta.SetStatus is ignored.
type Responder interface {
	WriteResponse(w http.ResponseWriter, r *http.Request) error
}

// ResponseSpec documents one response of an operation.
type ResponseSpec struct {
	Description string
	// Model is a value whose type describes the body; nil means no body.
	Model any
	// MediaType defaults to application/json.
	MediaType string
	Headers   map[string]*openapi.Header
	Example   any
}

// OperationMeta is the documentation of an operation.
type OperationMeta struct {
	OperationID       string
	Summary           string
	Description       string
	Tags              []string
	Deprecated        bool
	Status            int
	Responses         map[string]ResponseSpec
	ExcludeFromSchema bool
}

// Operation binds a method to an endpoint and its dependencies.
type Operation struct {
	method   string
	endpoint Endpoint
	deps     []di.Dependency
	executor di.Executor
	meta     OperationMeta
}

// NewOperation returns an operation for method. deps are resolved before
// the handler runs even if it does not read them.
func NewOperation(method string, e Endpoint, deps ...di.Dependency) *Operation {
	return &Operation{
		method:   strings.ToUpper(method),
		endpoint: e,
		deps:     deps,
		meta:     OperationMeta{Responses: map[string]ResponseSpec{}},
	}
}

func Get(e Endpoint, deps ...di.Dependency) *Operation {
	return NewOperation(http.MethodGet, e, deps...)
}

func Post(e Endpoint, deps ...di.Dependency) *Operation {
	return NewOperation(http.MethodPost, e, deps...)
}

func Put(e Endpoint, deps ...di.Dependency) *Operation {
	return NewOperation(http.MethodPut, e, deps...)
}

func Patch(e Endpoint, deps ...di.Dependency) *Operation {
	return NewOperation(http.MethodPatch, e, deps...)
}

func Delete(e Endpoint, deps ...di.Dependency) *Operation {
	return NewOperation(http.MethodDelete, e, deps...)
}

func Head(e Endpoint, deps ...di.Dependency) *Operation {
	return NewOperation(http.MethodHead, e, deps...)
}

func Options(e Endpoint, deps ...di.Dependency) *Operation {
	return NewOperation(http.MethodOptions, e, deps...)
}

// Dependencies adds dependencies resolved before the handler.
func (o *Operation) Dependencies(deps ...di.Dependency) *Operation {
	o.deps = append(o.deps, deps...)
	return o
}

// Executor selects how the operation graph is resolved. The app default
// applies when unset.
func (o *Operation) Executor(ex di.Executor) *Operation {
	o.executor = ex
	return o
}

func (o *Operation) OperationID(id string) *Operation {
	o.meta.OperationID = id
	return o
}

func (o *Operation) Summary(s string) *Operation {
	o.meta.Summary = s
	return o
}

func (o *Operation) Description(d string) *Operation {
	o.meta.Description = d
	return o
}

func (o *Operation) Tags(tags ...string) *Operation {
	o.meta.Tags = append(o.meta.Tags, tags...)
	return o
}

func (o *Operation) Deprecated() *Operation {
	o.meta.Deprecated = true
	return o
}

// Status sets the success status code. It defaults to 200, or 204 for
// NoContent handlers.
func (o *Operation) Status(code int) *Operation {
	o.meta.Status = code
	return o
}

// Response documents a response. status is a code, a class such as "4XX",
// or "default".
func (o *Operation) Response(status string, spec ResponseSpec) *Operation {
	o.meta.Responses[normalizeStatus(status)] = spec
	return o
}

// ExcludeFromSchema hides the operation from the OpenAPI document.
func (o *Operation) ExcludeFromSchema() *Operation {
	o.meta.ExcludeFromSchema = true
	return o
}

// Method returns the HTTP method.
func (o *Operation) Method() string { return o.method }

// Handler returns the endpoint handler.
func (o *Operation) Handler() Handler { return o.endpoint.fn }

// ResponseType returns the declared return type, nil for HandleFunc.
func (o *Operation) ResponseType() reflect.Type { return o.endpoint.response }

// Deps returns the dependencies declared on the operation itself.
func (o *Operation) Deps() []di.Dependency { return o.deps }

// GetExecutor returns the executor set with Executor, or nil.
func (o *Operation) GetExecutor() di.Executor { return o.executor }

// Meta returns a copy of the operation documentation.
func (o *Operation) Meta() OperationMeta {
	m := o.meta
	m.Tags = append([]string(nil), o.meta.Tags...)

	m.Responses = make(map[string]ResponseSpec, len(o.meta.Responses))
	for k, v := range o.meta.Responses {
		m.Responses[k] = v
	}

	return m
}

// normalizeStatus upper-cases classes such as "4xx" and lower-cases
// "default".
func normalizeStatus(status string) string {
	if strings.EqualFold(status, "default") {
		return "default"
	}

	return strings.ToUpper(status)
}

// SuccessStatus returns the status written for a successful call.
func (o *Operation) SuccessStatus() int {
	switch {
	case o.meta.Status != 0:
		return o.meta.Status
	case o.endpoint.response == reflect.TypeFor[NoContent]():
		return http.StatusNoContent
	default:
		return http.StatusOK
	}
}
