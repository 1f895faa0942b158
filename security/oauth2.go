package security

import (
	"strings"

	"github.com/vitalvas/xpresso/binder"
	"github.com/vitalvas/xpresso/openapi"
)

// OAuth2Token is a bearer token presented for an OAuth2 or OpenID Connect
// scheme. RequiredScopes are the scopes the route declared; checking them
// against the token is up to the caller.
type OAuth2Token struct {
	Token          string
	RequiredScopes []string
}

// OAuth2PasswordBearer documents the password flow and reads the bearer
// token from the Authorization header.
func OAuth2PasswordBearer(tokenURL string, opts ...Option) *Binder[*OAuth2Token] {
	cfg := newConfig("OAuth2PasswordBearer", opts)

	var err error
	if tokenURL == "" {
		err = binder.ConfigError("oauth2 password flow without a token URL")
	}

	flows := &openapi.OAuthFlows{Password: flow(cfg, "", tokenURL)}
	s := newScheme(cfg, &openapi.SecurityScheme{Type: "oauth2", Flows: flows}, err)

	return newBinder(s, nil, extractBearerToken)
}

// OAuth2AuthorizationCodeBearer documents the authorization code flow and
// reads the bearer token from the Authorization header.
func OAuth2AuthorizationCodeBearer(authorizationURL, tokenURL string, opts ...Option) *Binder[*OAuth2Token] {
	cfg := newConfig("OAuth2AuthorizationCodeBearer", opts)

	var err error
	if authorizationURL == "" || tokenURL == "" {
		err = binder.ConfigError("oauth2 authorization code flow needs authorization and token URLs")
	}

	flows := &openapi.OAuthFlows{AuthorizationCode: flow(cfg, authorizationURL, tokenURL)}
	s := newScheme(cfg, &openapi.SecurityScheme{Type: "oauth2", Flows: flows}, err)

	return newBinder(s, nil, extractBearerToken)
}

// OAuth2 documents arbitrary flows and reads the bearer token from the
// Authorization header.
func OAuth2(flows openapi.OAuthFlows, opts ...Option) *Binder[*OAuth2Token] {
	cfg := newConfig("OAuth2", opts)

	var err error
	if flows.Implicit == nil && flows.Password == nil && flows.ClientCredentials == nil && flows.AuthorizationCode == nil {
		err = binder.ConfigError("oauth2 scheme without flows")
	}

	s := newScheme(cfg, &openapi.SecurityScheme{Type: "oauth2", Flows: &flows}, err)

	return newBinder(s, nil, extractBearerToken)
}

// OpenIDConnect documents an OpenID Connect discovery URL and reads the
// bearer token from the Authorization header.
func OpenIDConnect(url string, opts ...Option) *Binder[*OAuth2Token] {
	cfg := newConfig("OpenIdConnect", opts)

	var err error
	if url == "" {
		err = binder.ConfigError("openid connect scheme without a discovery URL")
	}

	s := newScheme(cfg, &openapi.SecurityScheme{Type: "openIdConnect", OpenIDConnectURL: url}, err)

	return newBinder(s, nil, extractBearerToken)
}

func flow(cfg config, authorizationURL, tokenURL string) *openapi.OAuthFlow {
	scopes := cfg.scopes
	if scopes == nil {
		scopes = map[string]string{}
	}

	return &openapi.OAuthFlow{
		AuthorizationURL: authorizationURL,
		TokenURL:         tokenURL,
		RefreshURL:       cfg.refreshURL,
		Scopes:           scopes,
	}
}

func extractBearerToken(s *scheme, _ *openapi.SecurityScheme, conn *binder.Connection, scopes []string) (*OAuth2Token, error) {
	word, token, ok := authorization(conn)
	if !ok {
		return nil, errMissing
	}

	if !strings.EqualFold(word, "bearer") || token == "" {
		return nil, s.unauthorized("Invalid authentication credentials")
	}

	required := append([]string{}, scopes...)

	return &OAuth2Token{Token: token, RequiredScopes: required}, nil
}
