package security

import (
	"encoding/base64"
	"strings"

	"github.com/vitalvas/xpresso/binder"
	"github.com/vitalvas/xpresso/openapi"
)

// HTTPBasicCredentials are the decoded credentials of Basic auth.
type HTTPBasicCredentials struct {
	Username string
	Password string
}

// HTTPAuthorizationCredentials is an Authorization header split into its
// scheme word and credentials.
type HTTPAuthorizationCredentials struct {
	Scheme      string
	Credentials string
}

// HTTPBasic reads Basic credentials from the Authorization header.
func HTTPBasic(opts ...Option) *Binder[*HTTPBasicCredentials] {
	cfg := newConfig("HTTPBasic", opts)
	s := newScheme(cfg, &openapi.SecurityScheme{Type: "http", Scheme: "basic"}, nil)

	return newBinder(s, nil, extractBasic)
}

// HTTPBearer reads a bearer token from the Authorization header.
func HTTPBearer(opts ...Option) *Binder[*HTTPAuthorizationCredentials] {
	cfg := newConfig("HTTPBearer", opts)
	s := newScheme(cfg, &openapi.SecurityScheme{Type: "http", Scheme: "bearer", BearerFormat: cfg.bearerFormat}, nil)

	return newBinder(s, nil, extractAuthorization)
}

// HTTPDigest reads Digest credentials from the Authorization header. The
// credentials are passed through unverified.
func HTTPDigest(opts ...Option) *Binder[*HTTPAuthorizationCredentials] {
	cfg := newConfig("HTTPDigest", opts)
	s := newScheme(cfg, &openapi.SecurityScheme{Type: "http", Scheme: "digest"}, nil)

	return newBinder(s, nil, extractAuthorization)
}

// authorization splits the Authorization header. ok is false when the
// header is absent or empty.
func authorization(conn *binder.Connection) (string, string, bool) {
	h := strings.TrimSpace(conn.Header().Get("Authorization"))
	if h == "" {
		return "", "", false
	}

	word, credentials, _ := strings.Cut(h, " ")

	return word, strings.TrimSpace(credentials), true
}

func extractBasic(s *scheme, _ *openapi.SecurityScheme, conn *binder.Connection, _ []string) (*HTTPBasicCredentials, error) {
	word, credentials, ok := authorization(conn)
	if !ok {
		return nil, errMissing
	}

	if !strings.EqualFold(word, "basic") {
		return nil, s.unauthorized("Invalid authentication credentials")
	}

	raw, err := base64.StdEncoding.DecodeString(credentials)
	if err != nil {
		return nil, s.unauthorized("Invalid authentication credentials")
	}

	user, pass, found := strings.Cut(string(raw), ":")
	if !found {
		return nil, s.unauthorized("Invalid authentication credentials")
	}

	return &HTTPBasicCredentials{Username: user, Password: pass}, nil
}

func extractAuthorization(s *scheme, desc *openapi.SecurityScheme, conn *binder.Connection, _ []string) (*HTTPAuthorizationCredentials, error) {
	word, credentials, ok := authorization(conn)
	if !ok {
		return nil, errMissing
	}

	if !strings.EqualFold(word, desc.Scheme) || credentials == "" {
		return nil, s.unauthorized("Invalid authentication credentials")
	}

	return &HTTPAuthorizationCredentials{Scheme: word, Credentials: credentials}, nil
}
