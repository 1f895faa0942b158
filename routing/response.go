package routing

import (
	"net/http"
	"sync"

	"github.com/vitalvas/xpresso/di"
)

// ResponseDep is the response metadata of the current call. The app binds a
// fresh value for every endpoint scope; dependencies and handlers change it
// explicitly.
var ResponseDep = di.Bound[*ResponseMeta]("response", di.ScopeEndpoint)

// ResponseMeta carries the status and headers to write. It is safe for use
// by concurrently resolved dependencies.
type ResponseMeta struct {
	mu     sync.Mutex
	status int
	header http.Header
}

// NewResponseMeta returns metadata with no status and no headers.
func NewResponseMeta() *ResponseMeta {
	return &ResponseMeta{header: http.Header{}}
}

// SetStatus overrides the success status code.
func (m *ResponseMeta) SetStatus(code int) {
	m.mu.Lock()
	m.status = code
	m.mu.Unlock()
}

// Status returns the status set with SetStatus, or zero.
func (m *ResponseMeta) Status() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.status
}

// SetHeader replaces a response header.
func (m *ResponseMeta) SetHeader(key, value string) {
	m.mu.Lock()
	m.header.Set(key, value)
	m.mu.Unlock()
}

// AddHeader appends a response header value.
func (m *ResponseMeta) AddHeader(key, value string) {
	m.mu.Lock()
	m.header.Add(key, value)
	m.mu.Unlock()
}

// Header returns a copy of the headers.
func (m *ResponseMeta) Header() http.Header {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.header.Clone()
}

// Apply copies the headers into h.
func (m *ResponseMeta) Apply(h http.Header) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k, vs := range m.header {
		h[k] = append([]string(nil), vs...)
	}
}
