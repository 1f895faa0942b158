// Package routing declares the route tree served by an app: routers that
// mount each other, paths with templates and per-method operations.
//
//	r := routing.NewRouter()
//	r.Path("/items/{id}", routing.Get(routing.Handle(getItem), itemID))
package routing

import (
	"strings"

	"github.com/samber/lo"

	"github.com/vitalvas/xpresso/binder"
	"github.com/vitalvas/xpresso/di"
)

// Path groups the operations served under one template.
type Path struct {
	tpl         string
	ops         []*Operation
	deps        []di.Dependency
	summary     string
	description string
	excluded    bool
}

// Dependencies adds dependencies resolved for every operation of p.
func (p *Path) Dependencies(deps ...di.Dependency) *Path {
	p.deps = append(p.deps, deps...)
	return p
}

// Describe sets the path item summary and description.
func (p *Path) Describe(summary, description string) *Path {
	p.summary = summary
	p.description = description

	return p
}

// ExcludeFromSchema hides every operation of p from the OpenAPI document.
func (p *Path) ExcludeFromSchema() *Path {
	p.excluded = true
	return p
}

// Handle adds operations to p.
func (p *Path) Handle(ops ...*Operation) *Path {
	p.ops = append(p.ops, ops...)
	return p
}

// Template returns the template relative to the owning router.
func (p *Path) Template() string { return p.tpl }

// Summary returns the path item summary.
func (p *Path) Summary() string { return p.summary }

// Description returns the path item description.
func (p *Path) Description() string { return p.description }

type mount struct {
	prefix string
	router *Router
}

// Router is a tree node holding paths and mounted routers. Dependencies,
// tags, responses and schema exclusion set on a router apply to everything
// below it.
type Router struct {
	entries   []any
	deps      []di.Dependency
	tags      []string
	responses map[string]ResponseSpec
	excluded  bool
}

// NewRouter returns an empty router.
func NewRouter() *Router {
	return &Router{responses: map[string]ResponseSpec{}}
}

// Path registers tpl with ops and returns it for further configuration.
func (r *Router) Path(tpl string, ops ...*Operation) *Path {
	p := &Path{tpl: tpl, ops: ops}
	r.entries = append(r.entries, p)

	return p
}

// Mount serves sub under prefix. Paths keep their registration order
// relative to other paths and mounts.
func (r *Router) Mount(prefix string, sub *Router) *Router {
	r.entries = append(r.entries, mount{prefix: prefix, router: sub})
	return r
}

// Dependencies adds dependencies resolved for every operation below r.
func (r *Router) Dependencies(deps ...di.Dependency) *Router {
	r.deps = append(r.deps, deps...)
	return r
}

// Tags adds tags to every operation below r.
func (r *Router) Tags(tags ...string) *Router {
	r.tags = append(r.tags, tags...)
	return r
}

// Response documents a response for every operation below r. Operations
// may redefine it.
func (r *Router) Response(status string, spec ResponseSpec) *Router {
	r.responses[normalizeStatus(status)] = spec
	return r
}

// ExcludeFromSchema hides every operation below r from the OpenAPI document.
func (r *Router) ExcludeFromSchema() *Router {
	r.excluded = true
	return r
}

// Route is a flattened operation with everything inherited from its
// ancestors.
type Route struct {
	// Template is the full path template, mount prefixes included.
	Template string
	// OpenAPIPath is Template with variable patterns removed.
	OpenAPIPath string
	Method      string
	Path        *Path
	Operation   *Operation
	// Dependencies are ordered from the outermost router to the operation.
	Dependencies []di.Dependency
	Tags         []string
	Responses    map[string]ResponseSpec
	Excluded     bool

	tpl *template
}

// Match returns the path variables of p, or false when p does not match
// the template.
func (rt *Route) Match(p string) (map[string]string, bool) {
	return rt.tpl.match(p)
}

// Vars returns the names of the template variables in order.
func (rt *Route) Vars() []string {
	return append([]string(nil), rt.tpl.vars...)
}

// VarMacro returns the macro constraining the named variable, such as
// "int" for {id:int}, or "" when it has none.
func (rt *Route) VarMacro(name string) string {
	for i, v := range rt.tpl.vars {
		if v == name {
			return rt.tpl.macros[i]
		}
	}

	return ""
}

// WalkFunc is called for each route found by Walk.
type WalkFunc func(route *Route) error

type inherited struct {
	prefix    string
	deps      []di.Dependency
	tags      []string
	responses map[string]ResponseSpec
	excluded  bool
}

// Walk visits the routes of r in registration order and stops at the
// first error. Template and method conflicts are configuration errors.
func (r *Router) Walk(fn WalkFunc) error {
	routes, err := r.Routes()
	if err != nil {
		return err
	}

	for _, rt := range routes {
		if err := fn(rt); err != nil {
			return err
		}
	}

	return nil
}

// Routes flattens r.
func (r *Router) Routes() ([]*Route, error) {
	var out []*Route

	if err := r.flatten(inherited{responses: map[string]ResponseSpec{}}, &out); err != nil {
		return nil, err
	}

	return out, nil
}

func (r *Router) flatten(in inherited, out *[]*Route) error {
	in.deps = append(append([]di.Dependency(nil), in.deps...), r.deps...)
	in.tags = append(append([]string(nil), in.tags...), r.tags...)
	in.responses = lo.Assign(in.responses, r.responses)
	in.excluded = in.excluded || r.excluded

	for _, e := range r.entries {
		switch e := e.(type) {
		case *Path:
			if err := flattenPath(e, in, out); err != nil {
				return err
			}
		case mount:
			if e.router == nil {
				return binder.ConfigError("nil router mounted at %q", e.prefix)
			}

			if e.prefix != "" && !strings.HasPrefix(e.prefix, "/") {
				return binder.ConfigError("mount prefix %q must start with a slash", e.prefix)
			}

			sub := in
			sub.prefix = joinPath(in.prefix, e.prefix)

			if err := e.router.flatten(sub, out); err != nil {
				return err
			}
		}
	}

	return nil
}

func flattenPath(p *Path, in inherited, out *[]*Route) error {
	full := joinPath(in.prefix, p.tpl)

	tpl, err := parseTemplate(full)
	if err != nil {
		return binder.ConfigError("%v", err)
	}

	seen := map[string]bool{}

	for _, op := range p.ops {
		if op == nil {
			return binder.ConfigError("nil operation on path %q", full)
		}

		if op.endpoint.fn == nil {
			return binder.ConfigError("%s %s has no handler", op.method, full)
		}

		if seen[op.method] {
			return binder.ConfigError("duplicate %s operation on path %q", op.method, full)
		}

		seen[op.method] = true

		deps := make([]di.Dependency, 0, len(in.deps)+len(p.deps)+len(op.deps))
		deps = append(deps, in.deps...)
		deps = append(deps, p.deps...)
		deps = append(deps, op.deps...)

		*out = append(*out, &Route{
			Template:     full,
			OpenAPIPath:  tpl.openapi,
			Method:       op.method,
			Path:         p,
			Operation:    op,
			Dependencies: deps,
			Tags:         lo.Uniq(append(append([]string(nil), in.tags...), op.meta.Tags...)),
			Responses:    lo.Assign(in.responses, op.meta.Responses),
			Excluded:     in.excluded || p.excluded || op.meta.ExcludeFromSchema,
			tpl:          tpl,
		})
	}

	return nil
}
