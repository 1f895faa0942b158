package security

import (
	"golang.org/x/net/http/httpguts"

	"github.com/vitalvas/xpresso/binder"
	"github.com/vitalvas/xpresso/openapi"
)

// APIKeyHeader reads an API key from the named header.
func APIKeyHeader(name string, opts ...Option) *Binder[*string] {
	var err error
	if !httpguts.ValidHeaderFieldName(name) {
		err = binder.ConfigError("api key header %q is not a valid header name", name)
	}

	return newAPIKey("APIKeyHeader", name, binder.InHeader, err, opts)
}

// APIKeyQuery reads an API key from the named query parameter.
func APIKeyQuery(name string, opts ...Option) *Binder[*string] {
	return newAPIKey("APIKeyQuery", name, binder.InQuery, nil, opts)
}

// APIKeyCookie reads an API key from the named cookie.
func APIKeyCookie(name string, opts ...Option) *Binder[*string] {
	return newAPIKey("APIKeyCookie", name, binder.InCookie, nil, opts)
}

func newAPIKey(defaultName, name string, in binder.Location, err error, opts []Option) *Binder[*string] {
	if name == "" {
		err = binder.ConfigError("%s api key without a name", in)
	}

	cfg := newConfig(defaultName, opts)
	s := newScheme(cfg, &openapi.SecurityScheme{Type: "apiKey", Name: name, In: string(in)}, err)

	return newBinder(s, nil, extractAPIKey)
}

func extractAPIKey(_ *scheme, desc *openapi.SecurityScheme, conn *binder.Connection, _ []string) (*string, error) {
	var (
		v  string
		ok bool
	)

	switch binder.Location(desc.In) {
	case binder.InHeader:
		v = conn.Header().Get(desc.Name)
		ok = v != ""
	case binder.InQuery:
		v = conn.Query().Get(desc.Name)
		ok = v != ""
	case binder.InCookie:
		v, ok = conn.Cookie(desc.Name)
		ok = ok && v != ""
	}

	if !ok {
		return nil, errMissing
	}

	return &v, nil
}
