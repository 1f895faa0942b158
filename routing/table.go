package routing

import (
	"net/http"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

var (
	// ErrNotFound is returned by Match when no template matches.
	ErrNotFound = errors.New("route not found")

	// ErrMethodNotAllowed is returned, wrapped in MethodNotAllowedError,
	// when a template matches but none of its methods do.
	ErrMethodNotAllowed = errors.New("method not allowed")
)

// MethodNotAllowedError lists the methods accepted by the matching
// templates.
type MethodNotAllowedError struct {
	Allow []string
}

func (e *MethodNotAllowedError) Error() string {
	return "method not allowed, allowed: " + strings.Join(e.Allow, ", ")
}

// Is matches ErrMethodNotAllowed.
func (e *MethodNotAllowedError) Is(target error) bool {
	return target == ErrMethodNotAllowed
}

// Table matches requests against flattened routes. It is immutable and
// safe for concurrent use.
type Table struct {
	routes []*Route
}

// NewTable returns a table over routes, matched in order.
func NewTable(routes []*Route) *Table {
	return &Table{routes: routes}
}

// Routes returns the routes of t.
func (t *Table) Routes() []*Route { return t.routes }

// Match returns the first route whose template and method match. HEAD
// falls back to a GET operation. The path is cleaned before matching.
func (t *Table) Match(method, p string) (*Route, map[string]string, error) {
	p = cleanPath(p)
	method = strings.ToUpper(method)

	var (
		allow    []string
		fallback *Route
		fbVars   map[string]string
	)

	for _, rt := range t.routes {
		vars, ok := rt.Match(p)
		if !ok {
			continue
		}

		switch {
		case rt.Method == method:
			return rt, vars, nil
		case method == http.MethodHead && rt.Method == http.MethodGet && fallback == nil:
			fallback, fbVars = rt, vars
		}

		allow = append(allow, rt.Method)
		if rt.Method == http.MethodGet {
			allow = append(allow, http.MethodHead)
		}
	}

	if fallback != nil {
		return fallback, fbVars, nil
	}

	if len(allow) == 0 {
		return nil, nil, ErrNotFound
	}

	allow = lo.Uniq(allow)
	sort.Strings(allow)

	return nil, nil, &MethodNotAllowedError{Allow: allow}
}
