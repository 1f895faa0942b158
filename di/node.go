package di

import (
	"context"
	"fmt"
)

// Scope is the lifetime of a cached dependency value.
type Scope int

const (
	// ScopeEndpoint values live for one handler invocation.
	ScopeEndpoint Scope = iota + 1
	// ScopeConnection values live for one request.
	ScopeConnection
	// ScopeApp values live for the application lifetime.
	ScopeApp
)

func (s Scope) String() string {
	switch s {
	case ScopeEndpoint:
		return "endpoint"
	case ScopeConnection:
		return "connection"
	case ScopeApp:
		return "app"
	default:
		return fmt.Sprintf("Scope(%d)", int(s))
	}
}

// Dependency is anything that can be resolved to a node in a graph.
type Dependency interface {
	Node() *Node
}

// Typed is a Dependency whose resolved value can be read back as T.
type Typed[T any] interface {
	Dependency
	From(v *Values) T
}

// Func computes a node value from the resolved values of its dependencies,
// passed in declaration order.
type Func func(ctx context.Context, args []any) (any, error)

// Node is a vertex of the dependency graph.
type Node struct {
	name    string
	scope   Scope
	key     any
	deps    []Dependency
	fn      Func
	bound   bool
	closing bool
	meta    any
	err     error
}

// Option configures a Node.
type Option func(*Node)

// WithScope sets the node scope. The default is ScopeConnection.
func WithScope(s Scope) Option {
	return func(n *Node) {
		n.scope = s
	}
}

// WithKey sets the cache key. Nodes sharing a key are resolved once per
// scope and deduplicated within a graph. The default key is the node itself.
func WithKey(key any) Option {
	return func(n *Node) {
		n.key = key
	}
}

// WithName sets a human readable name used in errors.
func WithName(name string) Option {
	return func(n *Node) {
		n.name = name
	}
}

// WithMeta attaches arbitrary metadata, for example a binder.
func WithMeta(meta any) Option {
	return func(n *Node) {
		n.meta = meta
	}
}

// WithError records a configuration error reported when the node is solved.
func WithError(err error) Option {
	return func(n *Node) {
		n.err = err
	}
}

// Closing closes values implementing io.Closer when their scope exits.
func Closing() Option {
	return func(n *Node) {
		n.closing = true
	}
}

// NewNode creates a node computed by fn from deps.
func NewNode(fn Func, deps []Dependency, opts ...Option) *Node {
	n := &Node{
		scope: ScopeConnection,
		deps:  deps,
		fn:    fn,
	}

	for _, opt := range opts {
		opt(n)
	}

	if n.key == nil {
		n.key = n
	}

	return n
}

// Node returns n, so a *Node is a Dependency.
func (n *Node) Node() *Node { return n }

// Name returns the node name.
func (n *Node) Name() string {
	if n.name == "" {
		return fmt.Sprintf("node(%p)", n)
	}

	return n.name
}

// Scope returns the node scope.
func (n *Node) Scope() Scope { return n.scope }

// Key returns the cache key.
func (n *Node) Key() any { return n.key }

// Deps returns the direct dependencies.
func (n *Node) Deps() []Dependency { return n.deps }

// Meta returns attached metadata.
func (n *Node) Meta() any { return n.meta }

// Err returns the configuration error recorded on the node.
func (n *Node) Err() error { return n.err }

// Bound reports whether the value is supplied at scope entry.
func (n *Node) Bound() bool { return n.bound }
