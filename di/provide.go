package di

import (
	"context"
)

// Dep is a typed handle to a node.
type Dep[T any] struct {
	node *Node
}

// Node implements Dependency.
func (d Dep[T]) Node() *Node { return d.node }

// From reads the resolved value of d.
func (d Dep[T]) From(v *Values) T {
	return Get[T](v, d)
}

// Wrap gives an existing node a typed handle.
func Wrap[T any](n *Node) Dep[T] {
	return Dep[T]{node: n}
}

func cast[T any](v any) T {
	out, _ := v.(T)
	return out
}

// Provide declares a dependency with no inputs.
func Provide[T any](fn func(ctx context.Context) (T, error), opts ...Option) Dep[T] {
	return Wrap[T](NewNode(func(ctx context.Context, _ []any) (any, error) {
		return fn(ctx)
	}, nil, opts...))
}

// Derive1 declares a dependency computed from one input.
func Derive1[T, A any](a Typed[A], fn func(ctx context.Context, a A) (T, error), opts ...Option) Dep[T] {
	return Wrap[T](NewNode(func(ctx context.Context, args []any) (any, error) {
		return fn(ctx, cast[A](args[0]))
	}, []Dependency{a}, opts...))
}

// Derive2 declares a dependency computed from two inputs.
func Derive2[T, A, B any](a Typed[A], b Typed[B], fn func(ctx context.Context, a A, b B) (T, error), opts ...Option) Dep[T] {
	return Wrap[T](NewNode(func(ctx context.Context, args []any) (any, error) {
		return fn(ctx, cast[A](args[0]), cast[B](args[1]))
	}, []Dependency{a, b}, opts...))
}

// Derive3 declares a dependency computed from three inputs.
func Derive3[T, A, B, C any](a Typed[A], b Typed[B], c Typed[C], fn func(ctx context.Context, a A, b B, c C) (T, error), opts ...Option) Dep[T] {
	return Wrap[T](NewNode(func(ctx context.Context, args []any) (any, error) {
		return fn(ctx, cast[A](args[0]), cast[B](args[1]), cast[C](args[2]))
	}, []Dependency{a, b, c}, opts...))
}

// Value declares an app-scoped constant.
func Value[T any](v T, opts ...Option) Dep[T] {
	opts = append([]Option{WithScope(ScopeApp)}, opts...)

	return Wrap[T](NewNode(func(context.Context, []any) (any, error) {
		return v, nil
	}, nil, opts...))
}

// Bound declares a value supplied with State.Bind when its scope is entered.
func Bound[T any](name string, scope Scope) Dep[T] {
	n := NewNode(nil, nil, WithName(name), WithScope(scope))
	n.bound = true

	return Wrap[T](n)
}

// Get reads the resolved value of d from v.
func Get[T any](v *Values, d Dependency) T {
	raw, _ := v.Lookup(d)
	return cast[T](raw)
}
