package di

import (
	"context"
	"io"

	"github.com/cockroachdb/errors"
)

var (
	// ErrCycle is returned by Solve when dependencies form a cycle.
	ErrCycle = errors.New("dependency cycle")

	// ErrScopeMismatch is returned by Solve when a node depends on a
	// shorter-lived node.
	ErrScopeMismatch = errors.New("dependency has a narrower scope than its dependant")

	// ErrNotBound is returned when a bound value was not supplied.
	ErrNotBound = errors.New("bound dependency has no value")
)

// Overrides replaces dependencies by cache key. It is immutable: With
// returns a new set.
type Overrides struct {
	m map[any]Dependency
}

// NewOverrides returns an empty set.
func NewOverrides() *Overrides {
	return &Overrides{m: map[any]Dependency{}}
}

// With returns a copy of o where target resolves to replacement.
func (o *Overrides) With(target, replacement Dependency) *Overrides {
	out := &Overrides{m: make(map[any]Dependency, o.Len()+1)}
	if o != nil {
		for k, v := range o.m {
			out.m[k] = v
		}
	}

	out.m[target.Node().key] = replacement

	return out
}

// Merge returns a copy of o with every replacement of other applied on top.
func (o *Overrides) Merge(other *Overrides) *Overrides {
	out := &Overrides{m: make(map[any]Dependency, o.Len()+other.Len())}

	for _, src := range []*Overrides{o, other} {
		if src == nil {
			continue
		}

		for k, v := range src.m {
			out.m[k] = v
		}
	}

	return out
}

// Len returns the number of replacements.
func (o *Overrides) Len() int {
	if o == nil {
		return 0
	}

	return len(o.m)
}

func (o *Overrides) lookup(key any) (Dependency, bool) {
	if o == nil {
		return nil, false
	}

	d, ok := o.m[key]

	return d, ok
}

// Graph is a solved, immutable dependency graph. Nodes are stored in
// topological order so every node comes after its dependencies.
type Graph struct {
	nodes []*Node
	deps  [][]int
	ids   map[any]int
	roots []int
}

// Solve flattens roots into a Graph, applying overrides.
func Solve(roots []Dependency, overrides *Overrides) (*Graph, error) {
	s := &solver{
		g:         &Graph{ids: map[any]int{}},
		overrides: overrides,
		visiting:  map[any]bool{},
	}

	for _, root := range roots {
		id, err := s.visit(root, nil)
		if err != nil {
			return nil, err
		}

		s.g.roots = append(s.g.roots, id)
	}

	return s.g, nil
}

type solver struct {
	g         *Graph
	overrides *Overrides
	visiting  map[any]bool
}

func (s *solver) visit(d Dependency, path []string) (int, error) {
	n := d.Node()
	if n.err != nil {
		return 0, n.err
	}

	key := n.key
	if id, ok := s.g.ids[key]; ok {
		return id, nil
	}

	target := n
	if repl, ok := s.overrides.lookup(key); ok {
		target = repl.Node()
		if target.err != nil {
			return 0, target.err
		}

		if id, ok := s.g.ids[target.key]; ok {
			s.g.ids[key] = id
			return id, nil
		}
	}

	if s.visiting[target.key] {
		return 0, errors.Wrapf(ErrCycle, "%v -> %s", path, target.Name())
	}

	s.visiting[target.key] = true
	defer delete(s.visiting, target.key)

	path = append(path, target.Name())

	ids := make([]int, 0, len(target.deps))
	for _, dep := range target.deps {
		id, err := s.visit(dep, path)
		if err != nil {
			return 0, err
		}

		if child := s.g.nodes[id]; child.scope < target.scope {
			return 0, errors.Wrapf(ErrScopeMismatch, "%s (%s) depends on %s (%s)",
				target.Name(), target.scope, child.Name(), child.scope)
		}

		ids = append(ids, id)
	}

	id := len(s.g.nodes)
	s.g.nodes = append(s.g.nodes, target)
	s.g.deps = append(s.g.deps, ids)
	s.g.ids[target.key] = id
	s.g.ids[key] = id

	return id, nil
}

// Len returns the number of distinct nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Nodes returns the nodes in topological order.
func (g *Graph) Nodes() []*Node {
	return append([]*Node(nil), g.nodes...)
}

// DepsOf returns the positions of a node's dependencies in Nodes.
func (g *Graph) DepsOf(id int) []int { return g.deps[id] }

// Contains reports whether d resolves to a node of g.
func (g *Graph) Contains(d Dependency) bool {
	_, ok := g.ids[d.Node().key]
	return ok
}

// Execute resolves every node of g inside st. st is normally an endpoint
// scope; nodes of wider scopes are cached on the matching ancestor.
func (g *Graph) Execute(ctx context.Context, st *State, ex Executor) (*Values, error) {
	if err := st.activate(); err != nil {
		return nil, err
	}

	if ex == nil {
		ex = Sequential{}
	}

	vals := &Values{graph: g, vals: make([]any, len(g.nodes))}

	err := ex.Execute(ctx, g, func(ctx context.Context, id int) error {
		v, err := g.resolve(ctx, st, id, vals)
		if err != nil {
			return err
		}

		vals.vals[id] = v

		return nil
	})
	if err != nil {
		return nil, err
	}

	return vals, nil
}

func (g *Graph) resolve(ctx context.Context, st *State, id int, vals *Values) (any, error) {
	n := g.nodes[id]

	owner := st.find(n.scope)
	if owner == nil {
		return nil, errors.Wrapf(ErrScopeNotEntered, "%s requires scope %s", n.Name(), n.scope)
	}

	if n.bound {
		v, ok := owner.boundValue(n.key)
		if !ok {
			return nil, errors.Wrapf(ErrNotBound, "%s", n.Name())
		}

		return v, nil
	}

	return owner.cached(n.key, func() (any, error) {
		args := make([]any, len(g.deps[id]))
		for i, dep := range g.deps[id] {
			args[i] = vals.vals[dep]
		}

		v, err := n.fn(ctx, args)
		if err != nil {
			return nil, err
		}

		if c, ok := v.(io.Closer); ok && n.closing {
			owner.Defer(c.Close)
		}

		return v, nil
	})
}

// Values holds the results of one graph execution.
type Values struct {
	graph *Graph
	vals  []any
}

// Lookup returns the value resolved for d.
func (v *Values) Lookup(d Dependency) (any, bool) {
	if v == nil {
		return nil, false
	}

	id, ok := v.graph.ids[d.Node().key]
	if !ok {
		return nil, false
	}

	return v.vals[id], true
}
