package di

import (
	"sync"

	"github.com/cockroachdb/errors"
)

var (
	// ErrScopeOrder is returned by Enter when scopes are not nested
	// app, connection, endpoint.
	ErrScopeOrder = errors.New("invalid scope nesting")

	// ErrScopeExited is returned when using a scope after Close.
	ErrScopeExited = errors.New("scope already exited")

	// ErrScopeNotEntered is returned when a node needs a scope that has not
	// been entered.
	ErrScopeNotEntered = errors.New("scope not entered")
)

type status int

const (
	statusEntered status = iota + 1
	statusActive
	statusExited
)

type entry struct {
	mu   sync.Mutex
	done bool
	val  any
}

// State holds the cached values of one scope instance.
type State struct {
	scope  Scope
	parent *State

	mu       sync.Mutex
	status   status
	bound    map[any]any
	cache    map[any]*entry
	cleanups []func() error
}

// Enter opens a scope below parent. The app scope has no parent, a
// connection scope needs an app parent and an endpoint scope needs a
// connection parent.
func Enter(scope Scope, parent *State) (*State, error) {
	var want Scope

	switch scope {
	case ScopeApp:
	case ScopeConnection:
		want = ScopeApp
	case ScopeEndpoint:
		want = ScopeConnection
	default:
		return nil, errors.Wrapf(ErrScopeOrder, "unknown scope %s", scope)
	}

	switch {
	case want == 0 && parent != nil:
		return nil, errors.Wrapf(ErrScopeOrder, "%s scope cannot have a parent", scope)
	case want != 0 && (parent == nil || parent.scope != want):
		return nil, errors.Wrapf(ErrScopeOrder, "%s scope must be entered inside %s", scope, want)
	case parent != nil && parent.exited():
		return nil, errors.Wrapf(ErrScopeExited, "parent %s", parent.scope)
	}

	return &State{
		scope:  scope,
		parent: parent,
		status: statusEntered,
		bound:  map[any]any{},
		cache:  map[any]*entry{},
	}, nil
}

// Scope returns the scope of s.
func (s *State) Scope() Scope { return s.scope }

// Parent returns the enclosing scope, nil for the app scope.
func (s *State) Parent() *State { return s.parent }

// Bind supplies the value of a bound dependency declared for this scope.
func (s *State) Bind(d Dependency, v any) error {
	n := d.Node()
	if !n.bound {
		return errors.Newf("%s is not a bound dependency", n.Name())
	}

	if n.scope != s.scope {
		return errors.Wrapf(ErrScopeOrder, "%s is bound in scope %s, not %s", n.Name(), n.scope, s.scope)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == statusExited {
		return ErrScopeExited
	}

	s.bound[n.key] = v

	return nil
}

// Defer registers fn to run when the scope exits. Cleanups run in reverse
// registration order.
func (s *State) Defer(fn func() error) {
	s.mu.Lock()
	s.cleanups = append(s.cleanups, fn)
	s.mu.Unlock()
}

// Close exits the scope and runs its cleanups.
func (s *State) Close() error {
	s.mu.Lock()
	if s.status == statusExited {
		s.mu.Unlock()
		return nil
	}

	s.status = statusExited
	cleanups := s.cleanups
	s.cleanups = nil
	s.mu.Unlock()

	var errs []error
	for i := len(cleanups) - 1; i >= 0; i-- {
		if err := cleanups[i](); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Active reports whether a graph has been executed in the scope and it has
// not exited yet.
func (s *State) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.status == statusActive
}

func (s *State) exited() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.status == statusExited
}

func (s *State) activate() error {
	for cur := s; cur != nil; cur = cur.parent {
		cur.mu.Lock()
		if cur.status == statusExited {
			cur.mu.Unlock()
			return errors.Wrapf(ErrScopeExited, "%s", cur.scope)
		}

		cur.status = statusActive
		cur.mu.Unlock()
	}

	return nil
}

func (s *State) find(scope Scope) *State {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.scope == scope {
			return cur
		}
	}

	return nil
}

func (s *State) boundValue(key any) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.bound[key]

	return v, ok
}

// cached evaluates fn at most once per key. Failed evaluations are not
// cached.
func (s *State) cached(key any, fn func() (any, error)) (any, error) {
	s.mu.Lock()
	e, ok := s.cache[key]
	if !ok {
		e = &entry{}
		s.cache[key] = e
	}
	s.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.done {
		return e.val, nil
	}

	v, err := fn()
	if err != nil {
		return nil, err
	}

	e.val = v
	e.done = true

	return v, nil
}
