// Package binder defines the contract shared by the parameter, body and
// security binders.
//
// A binder is a DI node that extracts one value from the request. The node
// carries the binder as metadata so the document builder can find it in a
// solved graph and describe the same value it extracts.
package binder

import (
	"path"
	"strings"

	"github.com/vitalvas/xpresso/openapi"
)

// Location is where a value is read from. It is the first element of
// every validation error location.
type Location string

const (
	InQuery  Location = "query"
	InPath   Location = "path"
	InHeader Location = "header"
	InCookie Location = "cookie"
	InBody   Location = "body"
)

// Style is an OpenAPI parameter serialization style.
type Style string

const (
	StyleForm           Style = "form"
	StyleSimple         Style = "simple"
	StyleLabel          Style = "label"
	StyleMatrix         Style = "matrix"
	StyleSpaceDelimited Style = "spaceDelimited"
	StylePipeDelimited  Style = "pipeDelimited"
	StyleDeepObject     Style = "deepObject"
)

// Some marks a value as present. A nil *Some means the value was absent,
// while a Some holding the zero value was sent empty.
type Some[T any] struct {
	Value T
}

// NewSome wraps v.
func NewSome[T any](v T) *Some[T] {
	return &Some[T]{Value: v}
}

// MediaTypeMatcher is an allow-list of media type patterns in path.Match
// syntax, for example "application/json", "application/*+json" or "*/*".
type MediaTypeMatcher struct {
	patterns []string
}

// NewMediaTypeMatcher creates a matcher. Patterns are lowercased.
func NewMediaTypeMatcher(patterns ...string) MediaTypeMatcher {
	m := MediaTypeMatcher{patterns: make([]string, len(patterns))}
	for i, p := range patterns {
		m.patterns[i] = strings.ToLower(p)
	}

	return m
}

// Match reports whether mediaType is accepted. Parameters such as charset
// must be stripped before.
func (m MediaTypeMatcher) Match(mediaType string) bool {
	mediaType = strings.ToLower(mediaType)
	for _, p := range m.patterns {
		if ok, err := path.Match(p, mediaType); err == nil && ok {
			return true
		}
	}

	return false
}

// Patterns returns the accepted patterns.
func (m MediaTypeMatcher) Patterns() []string {
	return append([]string(nil), m.patterns...)
}

// ParameterBinder is implemented by query, path, header and cookie
// binders.
type ParameterBinder interface {
	In() Location
	ParamName() string
	IncludeInSchema() bool
	Parameter(gen *openapi.SchemaGenerator) *openapi.Parameter
}

// BodyBinder is implemented by request body binders.
type BodyBinder interface {
	IncludeInSchema() bool
	RequestBody(gen *openapi.SchemaGenerator) *openapi.RequestBody
}

// SecurityBinder is implemented by credential extractors.
type SecurityBinder interface {
	// SchemeKey identifies the scheme instance. Extractors of the same
	// scheme share it.
	SchemeKey() any
	// SchemeName is the preferred component name.
	SchemeName() string
	// Seq orders schemes by declaration.
	Seq() uint64
	SecurityScheme() *openapi.SecurityScheme
	Scopes() []string
}
