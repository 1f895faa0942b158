package routing

import (
	"bytes"
	"fmt"
	"path"
	"regexp"
	"strings"
	"sync"
)

// patternMacros are the named patterns usable as {name:macro}. "path"
// matches across segments.
var patternMacros = map[string]string{
	"path":     `.+`,
	"uuid":     `[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`,
	"int":      `[0-9]+`,
	"float":    `[0-9]*\.?[0-9]+`,
	"slug":     `[a-zA-Z0-9]+(?:-[a-zA-Z0-9]+)*`,
	"alpha":    `[a-zA-Z]+`,
	"alphanum": `[a-zA-Z0-9]+`,
	"date":     `[0-9]{4}-[0-9]{2}-[0-9]{2}`,
	"hex":      `[0-9a-fA-F]+`,
}

// template is a compiled path template such as /items/{id:int}/{rest:path}.
type template struct {
	raw     string
	openapi string
	regexp  *regexp.Regexp
	vars    []string
	macros  []string
}

// regexpCache holds compiled patterns. Its size is bounded by the number
// of registered routes.
var regexpCache sync.Map

func compileRegexp(pattern string) (*regexp.Regexp, error) {
	if v, ok := regexpCache.Load(pattern); ok {
		return v.(*regexp.Regexp), nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}

	actual, _ := regexpCache.LoadOrStore(pattern, re)

	return actual.(*regexp.Regexp), nil
}

func parseTemplate(tpl string) (*template, error) {
	if !strings.HasPrefix(tpl, "/") {
		return nil, fmt.Errorf("routing: template %q must start with a slash", tpl)
	}

	idxs, err := braceIndices(tpl)
	if err != nil {
		return nil, err
	}

	var (
		pattern bytes.Buffer
		doc     bytes.Buffer
		vars    []string
		macros  []string
		end     int
	)

	pattern.WriteByte('^')

	for i := 0; i < len(idxs); i += 2 {
		raw := tpl[end:idxs[i]]
		end = idxs[i+1]

		name, patt, hasPattern := strings.Cut(tpl[idxs[i]+1:end-1], ":")
		if name == "" {
			return nil, fmt.Errorf("routing: missing name in %q from %q", tpl[idxs[i]:end], tpl)
		}

		var macro string

		switch {
		case !hasPattern:
			patt = "[^/]+"
		case patternMacros[patt] != "":
			macro, patt = patt, patternMacros[patt]
		}

		varRe, err := compileRegexp(patt)
		if err != nil {
			return nil, fmt.Errorf("routing: invalid pattern %q in variable %q: %w", patt, name, err)
		}

		if varRe.NumSubexp() > 0 {
			return nil, fmt.Errorf("routing: pattern of variable %q must not contain capturing groups", name)
		}

		fmt.Fprintf(&pattern, "%s(%s)", regexp.QuoteMeta(raw), patt)
		doc.WriteString(raw)
		doc.WriteString("{" + name + "}")

		vars = append(vars, name)
		macros = append(macros, macro)
	}

	pattern.WriteString(regexp.QuoteMeta(tpl[end:]))
	pattern.WriteByte('$')
	doc.WriteString(tpl[end:])

	if err := checkDuplicateVars(vars); err != nil {
		return nil, err
	}

	re, err := compileRegexp(pattern.String())
	if err != nil {
		return nil, err
	}

	return &template{raw: tpl, openapi: doc.String(), regexp: re, vars: vars, macros: macros}, nil
}

// match returns the variables of p, or false when p does not match.
func (t *template) match(p string) (map[string]string, bool) {
	m := t.regexp.FindStringSubmatch(p)
	if m == nil {
		return nil, false
	}

	vars := make(map[string]string, len(t.vars))
	for i, name := range t.vars {
		vars[name] = m[i+1]
	}

	return vars, true
}

// braceIndices returns the start and end+1 indices of each top-level
// {...} pair in s.
func braceIndices(s string) ([]int, error) {
	var (
		idxs  []int
		level int
	)

	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			if level++; level == 1 {
				idxs = append(idxs, i)
			}
		case '}':
			if level--; level == 0 {
				idxs = append(idxs, i+1)
			} else if level < 0 {
				return nil, fmt.Errorf("routing: unbalanced braces in %q", s)
			}
		}
	}

	if level != 0 {
		return nil, fmt.Errorf("routing: unbalanced braces in %q", s)
	}

	return idxs, nil
}

func checkDuplicateVars(vars []string) error {
	seen := make(map[string]bool, len(vars))
	for _, v := range vars {
		if seen[v] {
			return fmt.Errorf("routing: duplicated route variable %q", v)
		}

		seen[v] = true
	}

	return nil
}

// cleanPath removes dot segments and keeps a trailing slash.
func cleanPath(p string) string {
	if p == "" {
		return "/"
	}

	if p[0] != '/' {
		p = "/" + p
	}

	np := path.Clean(p)
	if p[len(p)-1] == '/' && np != "/" {
		np += "/"
	}

	return np
}

// joinPath joins a mount prefix and a template.
func joinPath(prefix, tpl string) string {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return tpl
	}

	if tpl == "/" {
		return prefix
	}

	return prefix + tpl
}
