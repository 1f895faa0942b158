package docs

import (
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/vitalvas/xpresso/binder"
	"github.com/vitalvas/xpresso/openapi"
	"github.com/vitalvas/xpresso/routing"
)

const (
	validationErrorName     = "ValidationError"
	httpValidationErrorName = "HTTPValidationError"
)

var (
	noContentType = reflect.TypeFor[routing.NoContent]()
	responderType = reflect.TypeFor[routing.Responder]()
)

// statusClass validates a response key and returns its wildcard class,
// "4XX" for "404". Classes and "default" return "".
func statusClass(status string) (string, bool) {
	if status == "default" {
		return "", true
	}

	if len(status) != 3 || status[0] < '1' || status[0] > '5' {
		return "", false
	}

	if status[1:] == "XX" {
		return "", true
	}

	if _, err := strconv.Atoi(status); err != nil {
		return "", false
	}

	return status[:1] + "XX", true
}

func buildResponses(gen *openapi.SchemaGenerator, rt *routing.Route, validated bool) (map[string]*openapi.Response, error) {
	out := make(map[string]*openapi.Response, len(rt.Responses)+2)

	success := false

	for status, spec := range rt.Responses {
		class, ok := statusClass(status)
		if !ok {
			return nil, binder.ConfigError("%s %s: invalid response status %q", rt.Method, rt.Template, status)
		}

		if class != "" {
			if _, dup := rt.Responses[class]; dup {
				return nil, binder.ConfigError("%s %s: response %s collides with %s", rt.Method, rt.Template, status, class)
			}
		}

		if status == "default" || status[0] == '2' {
			success = true
		}

		out[status] = explicitResponse(gen, status, spec)
	}

	if !success {
		code := strconv.Itoa(rt.Operation.SuccessStatus())
		out[code] = inferResponse(gen, rt.Operation.ResponseType())
	}

	if validated && !declaresValidation(rt.Responses) {
		out[strconv.Itoa(http.StatusUnprocessableEntity)] = &openapi.Response{
			Description: "Validation Error",
			Content: map[string]*openapi.MediaType{
				"application/json": {Schema: validationSchema(gen)},
			},
		}
	}

	return out, nil
}

// declaresValidation reports whether a declared response already covers
// validation failures.
func declaresValidation(responses map[string]routing.ResponseSpec) bool {
	for _, status := range []string{"422", "4XX", "default"} {
		if _, ok := responses[status]; ok {
			return true
		}
	}

	return false
}

func explicitResponse(gen *openapi.SchemaGenerator, status string, spec routing.ResponseSpec) *openapi.Response {
	resp := &openapi.Response{Description: spec.Description, Headers: spec.Headers}
	if resp.Description == "" {
		resp.Description = defaultDescription(status)
	}

	if spec.Model != nil {
		mt := spec.MediaType
		if mt == "" {
			mt = "application/json"
		}

		resp.Content = map[string]*openapi.MediaType{
			mt: {Schema: gen.Generate(spec.Model), Example: spec.Example},
		}
	}

	return resp
}

func defaultDescription(status string) string {
	switch {
	case status == "default":
		return "Default Response"
	case strings.HasSuffix(status, "XX"):
		return status + " Response"
	}

	code, _ := strconv.Atoi(status)
	if text := http.StatusText(code); text != "" {
		return text
	}

	return "Response"
}

// inferResponse documents the success response from the handler return
// type.
func inferResponse(gen *openapi.SchemaGenerator, t reflect.Type) *openapi.Response {
	resp := &openapi.Response{Description: "Successful Response"}

	switch {
	case t == noContentType:
	case t != nil && (t.Implements(responderType) || reflect.PointerTo(t).Implements(responderType)):
	case t == nil:
		resp.Content = map[string]*openapi.MediaType{"application/json": {Schema: &openapi.Schema{}}}
	default:
		resp.Content = map[string]*openapi.MediaType{"application/json": {Schema: gen.GenerateType(t)}}
	}

	return resp
}

// validationSchema defines the validation error components and returns a
// reference to HTTPValidationError.
func validationSchema(gen *openapi.SchemaGenerator) *openapi.Schema {
	item := gen.Define(validationErrorName, &openapi.Schema{
		Title:    validationErrorName,
		Type:     "object",
		Required: []string{"loc", "msg", "type"},
		Properties: map[string]*openapi.Schema{
			"loc": {
				Title: "Location",
				Type:  "array",
				Items: &openapi.Schema{AnyOf: []*openapi.Schema{{Type: "string"}, {Type: "integer"}}},
			},
			"msg":  {Title: "Message", Type: "string"},
			"type": {Title: "Error Type", Type: "string"},
		},
	})

	return gen.Define(httpValidationErrorName, &openapi.Schema{
		Title: httpValidationErrorName,
		Type:  "object",
		Properties: map[string]*openapi.Schema{
			"detail": {Title: "Detail", Type: "array", Items: item},
		},
	})
}
