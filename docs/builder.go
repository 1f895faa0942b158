// Package docs builds the OpenAPI document of a route tree.
//
// Every operation is solved into its dependency graph and the binders found
// in the graph describe its parameters, request body and security
// requirements:
//
//	b := docs.Builder{Info: openapi.Info{Title: "Items", Version: "1.0.0"}}
//	doc, err := b.Build(router)
//
// Building is deterministic: the same route tree always yields the same
// JSON document.
package docs

import (
	"net/http"
	"regexp"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/vitalvas/xpresso/binder"
	"github.com/vitalvas/xpresso/di"
	"github.com/vitalvas/xpresso/openapi"
	"github.com/vitalvas/xpresso/routing"
)

// Builder assembles documents. The zero value is usable.
type Builder struct {
	Info    openapi.Info
	Servers []openapi.Server
	// Tags adds tag descriptions; tags used by operations are always listed.
	Tags []openapi.Tag
	// Dependencies are resolved for every operation, before route
	// dependencies.
	Dependencies []di.Dependency
	// Overrides are applied when solving operation graphs.
	Overrides *di.Overrides
}

// macroTypes maps template macros to the schema of undeclared path
// variables.
var macroTypes = map[string][2]string{
	"uuid":     {"string", "uuid"},
	"int":      {"integer", ""},
	"float":    {"number", ""},
	"slug":     {"string", ""},
	"alpha":    {"string", ""},
	"alphanum": {"string", ""},
	"date":     {"string", "date"},
	"hex":      {"string", ""},
	"path":     {"string", ""},
}

// Build returns the document of r. Invalid operations, such as two bodies
// or colliding response codes, are configuration errors.
func (b *Builder) Build(r *routing.Router) (*openapi.Document, error) {
	routes, err := r.Routes()
	if err != nil {
		return nil, err
	}

	return b.BuildRoutes(routes)
}

// BuildRoutes returns the document of already flattened routes.
func (b *Builder) BuildRoutes(routes []*routing.Route) (*openapi.Document, error) {
	gen := openapi.NewSchemaGenerator()
	sec := newSecurityRegistry()

	doc := &openapi.Document{
		OpenAPI: openapi.Version,
		Info:    b.Info,
		Servers: b.Servers,
		Paths:   map[string]*openapi.PathItem{},
	}

	if doc.Info.Title == "" {
		doc.Info.Title = "API"
	}

	if doc.Info.Version == "" {
		doc.Info.Version = "0.1.0"
	}

	type pending struct {
		route *routing.Route
		op    *openapi.Operation
		sec   []securityUse
	}

	var built []pending

	for _, rt := range routes {
		if rt.Excluded {
			continue
		}

		roots := append(append([]di.Dependency(nil), b.Dependencies...), rt.Dependencies...)

		g, err := di.Solve(roots, b.Overrides)
		if err != nil {
			return nil, err
		}

		op, uses, err := buildOperation(gen, rt, g)
		if err != nil {
			return nil, err
		}

		for _, u := range uses {
			sec.add(u.binder)
		}

		built = append(built, pending{route: rt, op: op, sec: uses})
	}

	names := sec.assign()

	for _, p := range built {
		p.op.Security = sec.requirements(names, p.sec)

		item, ok := doc.Paths[p.route.OpenAPIPath]
		if !ok {
			item = &openapi.PathItem{}
			doc.Paths[p.route.OpenAPIPath] = item
		}

		if item.Summary == "" {
			item.Summary = p.route.Path.Summary()
		}

		if item.Description == "" {
			item.Description = p.route.Path.Description()
		}

		if !assignOperation(item, p.route.Method, p.op) {
			return nil, binder.ConfigError("duplicate %s operation for path %q", p.route.Method, p.route.OpenAPIPath)
		}
	}

	schemas := gen.Schemas()
	schemes := sec.schemes(names)

	if len(schemas) > 0 || len(schemes) > 0 {
		doc.Components = &openapi.Components{}
		if len(schemas) > 0 {
			doc.Components.Schemas = schemas
		}

		if len(schemes) > 0 {
			doc.Components.SecuritySchemes = schemes
		}
	}

	doc.Tags = mergeTags(b.Tags, doc.Paths)

	return doc, nil
}

// buildOperation documents one route from its solved graph.
func buildOperation(gen *openapi.SchemaGenerator, rt *routing.Route, g *di.Graph) (*openapi.Operation, []securityUse, error) {
	meta := rt.Operation.Meta()

	op := &openapi.Operation{
		Tags:        rt.Tags,
		Summary:     meta.Summary,
		Description: meta.Description,
		OperationID: meta.OperationID,
		Deprecated:  meta.Deprecated,
	}

	if op.OperationID == "" {
		op.OperationID = operationID(rt.Method, rt.OpenAPIPath)
	}

	nodes := g.Nodes()

	var (
		params []*openapi.Parameter
		seen   = map[string]bool{}
		bodies []binder.BodyBinder
		uses   []securityUse
	)

	nested := nestedBodies(g)

	for id, n := range nodes {
		switch m := n.Meta().(type) {
		case binder.ParameterBinder:
			key := string(m.In()) + "\x00" + m.ParamName()
			if seen[key] {
				continue
			}

			seen[key] = true
			if m.IncludeInSchema() {
				params = append(params, m.Parameter(gen))
			}
		case binder.BodyBinder:
			if !nested[id] && m.IncludeInSchema() {
				bodies = append(bodies, m)
			}
		case binder.SecurityBinder:
			uses = append(uses, securityUse{binder: m, scopes: m.Scopes()})
		}
	}

	if len(bodies) > 1 {
		return nil, nil, binder.ConfigError("%s %s declares %d request bodies, at most one is allowed",
			rt.Method, rt.Template, len(bodies))
	}

	for _, name := range rt.Vars() {
		key := string(binder.InPath) + "\x00" + name
		if seen[key] {
			continue
		}

		seen[key] = true
		params = append(params, pathParameter(name, rt.VarMacro(name)))
	}

	sort.SliceStable(params, func(i, j int) bool {
		if params[i].Name != params[j].Name {
			return params[i].Name < params[j].Name
		}

		return params[i].In < params[j].In
	})

	op.Parameters = params

	if len(bodies) == 1 {
		op.RequestBody = bodies[0].RequestBody(gen)
	}

	responses, err := buildResponses(gen, rt, len(params) > 0 || op.RequestBody != nil)
	if err != nil {
		return nil, nil, err
	}

	op.Responses = responses

	return op, uses, nil
}

// nestedBodies marks body nodes that are reachable from another body node,
// such as the branches of a union.
func nestedBodies(g *di.Graph) map[int]bool {
	nodes := g.Nodes()
	nested := map[int]bool{}

	isBody := func(id int) bool {
		_, ok := nodes[id].Meta().(binder.BodyBinder)
		return ok
	}

	for id := range nodes {
		if !isBody(id) {
			continue
		}

		visited := map[int]bool{}
		stack := append([]int(nil), g.DepsOf(id)...)

		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			if visited[cur] {
				continue
			}

			visited[cur] = true

			if isBody(cur) {
				nested[cur] = true
			}

			stack = append(stack, g.DepsOf(cur)...)
		}
	}

	return nested
}

func pathParameter(name, macro string) *openapi.Parameter {
	schema := &openapi.Schema{Type: "string"}
	if t, ok := macroTypes[macro]; ok {
		schema = &openapi.Schema{Type: t[0], Format: t[1]}
	}

	return &openapi.Parameter{Name: name, In: string(binder.InPath), Required: true, Schema: schema}
}

var nonWord = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// operationID derives an id such as get_items_id from GET /items/{id}.
func operationID(method, path string) string {
	p := strings.Trim(nonWord.ReplaceAllString(path, "_"), "_")
	if p == "" {
		return strings.ToLower(method)
	}

	return strings.ToLower(method) + "_" + p
}

// assignOperation sets op on the method field of item. It reports false
// when the field is already taken.
func assignOperation(item *openapi.PathItem, method string, op *openapi.Operation) bool {
	var slot **openapi.Operation

	switch method {
	case http.MethodGet:
		slot = &item.Get
	case http.MethodPost:
		slot = &item.Post
	case http.MethodPut:
		slot = &item.Put
	case http.MethodDelete:
		slot = &item.Delete
	case http.MethodPatch:
		slot = &item.Patch
	case http.MethodHead:
		slot = &item.Head
	case http.MethodOptions:
		slot = &item.Options
	case http.MethodTrace:
		slot = &item.Trace
	default:
		return true
	}

	if *slot != nil {
		return false
	}

	*slot = op

	return true
}

// mergeTags lists every tag used by an operation plus the described tags,
// sorted by name. Described tags keep their description.
func mergeTags(described []openapi.Tag, paths map[string]*openapi.PathItem) []openapi.Tag {
	byName := lo.SliceToMap(described, func(t openapi.Tag) (string, openapi.Tag) { return t.Name, t })

	for _, item := range paths {
		for _, op := range []*openapi.Operation{
			item.Get, item.Post, item.Put, item.Delete,
			item.Patch, item.Head, item.Options, item.Trace,
		} {
			if op == nil {
				continue
			}

			for _, name := range op.Tags {
				if _, ok := byName[name]; !ok {
					byName[name] = openapi.Tag{Name: name}
				}
			}
		}
	}

	if len(byName) == 0 {
		return nil
	}

	tags := lo.Values(byName)
	sort.Slice(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })

	return tags
}
