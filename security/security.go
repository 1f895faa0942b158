// Package security binds credentials and describes the matching OpenAPI
// security schemes.
//
// Every constructor returns a dependency that extracts a credential from
// the request:
//
//	apiKey := security.APIKeyHeader("X-API-Key")
//	bearer := security.HTTPBearer(security.AutoError(false))
//	oauth := security.OAuth2PasswordBearer("/token", security.FlowScopes(map[string]string{"items:read": "Read items"}))
//	reader := security.RequireScopes(oauth, "items:read")
//
// Missing credentials fail with 401 "Not authenticated" and a
// WWW-Authenticate challenge. With AutoError(false) they resolve to nil
// instead. Malformed credentials always fail with 401.
package security

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	"github.com/vitalvas/xpresso/binder"
	"github.com/vitalvas/xpresso/di"
	"github.com/vitalvas/xpresso/openapi"
)

// declared orders scheme declarations. The first declared scheme keeps an
// unsuffixed component name when names collide.
var declared atomic.Uint64

type config struct {
	name         string
	description  string
	autoError    bool
	realm        string
	bearerFormat string
	scopes       map[string]string
	refreshURL   string
}

// Option configures a security scheme.
type Option func(*config)

// SchemeName sets the component name of the scheme.
func SchemeName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// Description sets the scheme description.
func Description(s string) Option {
	return func(c *config) {
		c.description = s
	}
}

// AutoError controls whether missing credentials fail the request. It is
// on by default.
func AutoError(v bool) Option {
	return func(c *config) {
		c.autoError = v
	}
}

// Realm sets the realm of Basic and Digest challenges.
func Realm(realm string) Option {
	return func(c *config) {
		c.realm = realm
	}
}

// BearerFormat documents the bearer token format, for example "JWT".
func BearerFormat(format string) Option {
	return func(c *config) {
		c.bearerFormat = format
	}
}

// FlowScopes sets the scopes documented on OAuth2 flows.
func FlowScopes(scopes map[string]string) Option {
	return func(c *config) {
		c.scopes = scopes
	}
}

// RefreshURL sets the refresh URL of OAuth2 flows.
func RefreshURL(url string) Option {
	return func(c *config) {
		c.refreshURL = url
	}
}

func newConfig(defaultName string, opts []Option) config {
	cfg := config{name: defaultName, autoError: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg
}

// scheme is one declared security scheme. Binders created from it with
// RequireScopes share it.
type scheme struct {
	cfg  config
	seq  uint64
	desc *openapi.SecurityScheme
	dep  di.Dep[*openapi.SecurityScheme]
	err  error
}

func newScheme(cfg config, desc *openapi.SecurityScheme, err error) *scheme {
	desc.Description = cfg.description

	s := &scheme{cfg: cfg, seq: declared.Add(1), desc: desc, err: err}
	s.dep = di.Value(desc, di.WithName("security-scheme:"+cfg.name))

	return s
}

// challenge returns the WWW-Authenticate value for the scheme, or "".
func (s *scheme) challenge() string {
	switch s.desc.Type {
	case "apiKey":
		return "APIKey"
	case "http":
		word := httpSchemeWord(s.desc.Scheme)
		if s.cfg.realm != "" {
			return fmt.Sprintf("%s realm=%q", word, s.cfg.realm)
		}

		return word
	case "oauth2", "openIdConnect":
		return "Bearer"
	}

	return ""
}

func httpSchemeWord(scheme string) string {
	if scheme == "" {
		return ""
	}

	return strings.ToUpper(scheme[:1]) + scheme[1:]
}

func (s *scheme) unauthorized(detail string) error {
	err := binder.NewHTTPError(http.StatusUnauthorized, detail)
	if c := s.challenge(); c != "" {
		err.WithHeader("WWW-Authenticate", c)
	}

	return err
}

// errMissing is returned by extractors for absent credentials.
var errMissing = errors.New("credentials missing")

// extractor pulls a credential. It returns errMissing when the request
// carries none.
type extractor[T any] func(s *scheme, desc *openapi.SecurityScheme, conn *binder.Connection, scopes []string) (T, error)

type extractKey struct {
	scheme *scheme
	scopes string
}

// Binder is a security dependency producing T.
type Binder[T any] struct {
	scheme  *scheme
	scopes  []string
	extract extractor[T]
	dep     di.Dep[T]
}

func newBinder[T any](s *scheme, scopes []string, extract extractor[T]) *Binder[T] {
	sorted := append([]string(nil), scopes...)
	sort.Strings(sorted)

	b := &Binder[T]{scheme: s, scopes: scopes, extract: extract}

	opts := []di.Option{
		di.WithKey(extractKey{scheme: s, scopes: strings.Join(sorted, " ")}),
		di.WithName("security:" + s.cfg.name),
		di.WithMeta(b),
	}

	if s.err != nil {
		opts = append(opts, di.WithError(s.err))
	}

	b.dep = di.Derive2(s.dep, binder.ConnectionDep, b.resolve, opts...)

	return b
}

func (b *Binder[T]) resolve(_ context.Context, desc *openapi.SecurityScheme, conn *binder.Connection) (T, error) {
	v, err := b.extract(b.scheme, desc, conn, b.scopes)
	if errors.Is(err, errMissing) {
		var zero T
		if !b.scheme.cfg.autoError {
			return zero, nil
		}

		return zero, b.scheme.unauthorized("Not authenticated")
	}

	return v, err
}

// Node implements di.Dependency.
func (b *Binder[T]) Node() *di.Node { return b.dep.Node() }

// From returns the extracted credential.
func (b *Binder[T]) From(v *di.Values) T { return b.dep.From(v) }

// SchemeKey implements binder.SecurityBinder. Binders sharing a scheme
// share the key.
func (b *Binder[T]) SchemeKey() any { return b.scheme }

// SchemeName implements binder.SecurityBinder.
func (b *Binder[T]) SchemeName() string { return b.scheme.cfg.name }

// Seq implements binder.SecurityBinder.
func (b *Binder[T]) Seq() uint64 { return b.scheme.seq }

// SecurityScheme implements binder.SecurityBinder.
func (b *Binder[T]) SecurityScheme() *openapi.SecurityScheme { return b.scheme.desc }

// Scopes implements binder.SecurityBinder.
func (b *Binder[T]) Scopes() []string {
	if b.scopes == nil {
		return []string{}
	}

	return b.scopes
}

// RequireScopes returns a binder of the same scheme that also requires
// scopes. Scope sets are united, not intersected. The token is not checked
// against them; OAuth2Token.RequiredScopes carries them to the handler.
func RequireScopes(b *Binder[*OAuth2Token], scopes ...string) *Binder[*OAuth2Token] {
	return newBinder(b.scheme, lo.Union(b.scopes, scopes), b.extract)
}
