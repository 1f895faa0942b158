package binder

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/vitalvas/xpresso/di"
)

// DefaultMaxMemory is the multipart memory limit used when none is set.
const DefaultMaxMemory = 32 << 20

// ConnectionDep resolves to the *Connection of the current request. The app
// binds it when the connection scope is entered.
var ConnectionDep = di.Bound[*Connection]("connection", di.ScopeConnection)

// Connection wraps one inbound request with the accessors binders read
// from. The body can be read once, either buffered or streamed.
type Connection struct {
	req        *http.Request
	pathParams map[string]string
	maxMemory  int64

	queryOnce sync.Once
	query     url.Values

	mu       sync.Mutex
	body     []byte
	buffered bool
	consumed bool
	closers  []func() error
}

// ConnectionOption configures a Connection.
type ConnectionOption func(*Connection)

// WithMaxMemory sets the number of multipart bytes kept in memory before
// file parts spill to disk.
func WithMaxMemory(n int64) ConnectionOption {
	return func(c *Connection) {
		if n > 0 {
			c.maxMemory = n
		}
	}
}

// NewConnection wraps r. pathParams holds the values matched by the route
// template.
func NewConnection(r *http.Request, pathParams map[string]string, opts ...ConnectionOption) *Connection {
	if pathParams == nil {
		pathParams = map[string]string{}
	}

	c := &Connection{
		req:        r,
		pathParams: pathParams,
		maxMemory:  DefaultMaxMemory,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Request returns the wrapped request.
func (c *Connection) Request() *http.Request { return c.req }

// Method returns the request method.
func (c *Connection) Method() string { return c.req.Method }

// Query returns the parsed query string. It is parsed once.
func (c *Connection) Query() url.Values {
	c.queryOnce.Do(func() {
		c.query = c.req.URL.Query()
	})

	return c.query
}

// PathParam returns a value matched by the route template.
func (c *Connection) PathParam(name string) (string, bool) {
	v, ok := c.pathParams[name]
	return v, ok
}

// PathParams returns all values matched by the route template.
func (c *Connection) PathParams() map[string]string { return c.pathParams }

// Header returns the request headers.
func (c *Connection) Header() http.Header { return c.req.Header }

// Cookie returns the value of the named cookie.
func (c *Connection) Cookie(name string) (string, bool) {
	ck, err := c.req.Cookie(name)
	if err != nil {
		return "", false
	}

	return ck.Value, true
}

// ContentType returns the raw Content-Type header.
func (c *Connection) ContentType() string {
	return c.req.Header.Get("Content-Type")
}

// MediaType returns the lowercased media type of the Content-Type header
// without parameters, or "" when the header is missing.
func (c *Connection) MediaType() string {
	ct := c.ContentType()
	if ct == "" {
		return ""
	}

	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		mt, _, _ = strings.Cut(ct, ";")
	}

	return strings.ToLower(strings.TrimSpace(mt))
}

// ContentLength returns the declared body length, -1 when unknown.
func (c *Connection) ContentLength() int64 { return c.req.ContentLength }

// MaxMemory returns the multipart memory limit.
func (c *Connection) MaxMemory() int64 { return c.maxMemory }

// Body reads the whole body. Later calls return the same bytes.
func (c *Connection) Body(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.buffered {
		return c.body, nil
	}

	if c.consumed {
		return nil, ErrBodyConsumed
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.consumed = true

	if c.req.Body == nil || c.req.Body == http.NoBody {
		c.buffered = true
		return nil, nil
	}

	data, err := io.ReadAll(c.req.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read request body")
	}

	c.body = data
	c.buffered = true

	return data, nil
}

// Stream returns the body for incremental reading. After Stream the body
// is consumed and Body fails unless it was buffered before.
func (c *Connection) Stream() (io.Reader, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.buffered {
		return bytes.NewReader(c.body), nil
	}

	if c.consumed {
		return nil, ErrBodyConsumed
	}

	c.consumed = true

	if c.req.Body == nil {
		return http.NoBody, nil
	}

	return c.req.Body, nil
}

// BodyConsumed reports whether the body was read or handed out as a stream.
func (c *Connection) BodyConsumed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.consumed
}

// OnClose registers fn to run when the connection is closed.
func (c *Connection) OnClose(fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closers = append(c.closers, fn)
}

// Close runs the functions registered with OnClose in reverse order.
func (c *Connection) Close() error {
	c.mu.Lock()
	closers := c.closers
	c.closers = nil
	c.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
