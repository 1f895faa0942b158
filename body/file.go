package body

import (
	"bytes"
	"context"
	"io"
	"os"
	"reflect"

	"github.com/cockroachdb/errors"

	"github.com/vitalvas/xpresso/binder"
	"github.com/vitalvas/xpresso/di"
	"github.com/vitalvas/xpresso/openapi"
)

// Stream is a request body handed to the handler unread.
type Stream struct {
	r io.Reader
}

// Read implements io.Reader.
func (s Stream) Read(p []byte) (int, error) {
	if s.r == nil {
		return 0, io.EOF
	}

	return s.r.Read(p)
}

// SpooledFile keeps data in memory up to a limit and spills to a temporary
// file beyond it. Writes append; call Rewind before reading.
type SpooledFile struct {
	limit int64
	mem   []byte
	pos   int
	file  *os.File
	size  int64
}

// NewSpooledFile returns an empty SpooledFile that holds up to limit
// bytes in memory.
func NewSpooledFile(limit int64) *SpooledFile {
	return &SpooledFile{limit: limit}
}

// Write implements io.Writer.
func (s *SpooledFile) Write(p []byte) (int, error) {
	if s.file == nil && int64(len(s.mem)+len(p)) > s.limit {
		f, err := os.CreateTemp("", "xpresso-spool-*")
		if err != nil {
			return 0, errors.Wrap(err, "create spool file")
		}

		if _, err := f.Write(s.mem); err != nil {
			f.Close()
			os.Remove(f.Name())

			return 0, errors.Wrap(err, "spill to disk")
		}

		s.file = f
		s.mem = nil
	}

	var (
		n   int
		err error
	)

	if s.file != nil {
		n, err = s.file.Write(p)
	} else {
		s.mem = append(s.mem, p...)
		n = len(p)
	}

	s.size += int64(n)

	return n, err
}

// Read implements io.Reader.
func (s *SpooledFile) Read(p []byte) (int, error) {
	if s.file != nil {
		return s.file.Read(p)
	}

	if s.pos >= len(s.mem) {
		return 0, io.EOF
	}

	n := copy(p, s.mem[s.pos:])
	s.pos += n

	return n, nil
}

// Seek implements io.Seeker.
func (s *SpooledFile) Seek(offset int64, whence int) (int64, error) {
	if s.file != nil {
		return s.file.Seek(offset, whence)
	}

	var abs int64

	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(s.pos) + offset
	case io.SeekEnd:
		abs = int64(len(s.mem)) + offset
	default:
		return 0, errors.New("invalid whence")
	}

	if abs < 0 {
		return 0, errors.New("negative position")
	}

	s.pos = int(abs)

	return abs, nil
}

// Rewind moves the read position to the start.
func (s *SpooledFile) Rewind() error {
	_, err := s.Seek(0, io.SeekStart)
	return err
}

// Size returns the number of bytes written.
func (s *SpooledFile) Size() int64 { return s.size }

// InMemory reports whether the data has not spilled to disk.
func (s *SpooledFile) InMemory() bool { return s.file == nil }

// Close releases the temporary file, if any.
func (s *SpooledFile) Close() error {
	if s.file == nil {
		s.mem = nil
		return nil
	}

	name := s.file.Name()
	err := s.file.Close()
	s.file = nil

	if rmErr := os.Remove(name); rmErr != nil && !os.IsNotExist(rmErr) {
		return errors.CombineErrors(err, rmErr)
	}

	return err
}

// FileTarget lists the types a File binder can produce.
type FileTarget interface {
	[]byte | string | *SpooledFile | Stream
}

// FileBinder reads the raw body as bytes, a string, a SpooledFile or an
// unread Stream.
type FileBinder[T FileTarget] struct {
	base
	dep di.Dep[T]
}

// File declares a raw body. Any media type is accepted unless MediaTypes
// narrows it. With Consume the body is read incrementally instead of
// being buffered first. The body is required for every target, including
// *SpooledFile; use Required(false) to accept an absent body.
func File[T FileTarget](opts ...Option) *FileBinder[T] {
	cfg := newConfig("*/*", opts)
	if cfg.required == nil {
		required := true
		cfg.required = &required
	}
	b := &FileBinder[T]{}

	nodeOpts := []di.Option{di.WithName("body:file"), di.WithMeta(b)}

	base, err := newBase(reflect.TypeFor[T](), cfg)
	if err != nil {
		nodeOpts = append(nodeOpts, di.WithError(err))
	}

	b.base = base
	b.dep = di.Derive1(binder.ConnectionDep, func(ctx context.Context, conn *binder.Connection) (T, error) {
		v, err := b.Extract(ctx, conn)
		if err != nil {
			var zero T
			return zero, err
		}

		out, _ := v.(T)

		return out, nil
	}, nodeOpts...)

	return b
}

// Node implements di.Dependency.
func (b *FileBinder[T]) Node() *di.Node { return b.dep.Node() }

// From returns the body.
func (b *FileBinder[T]) From(v *di.Values) T { return b.dep.From(v) }

// Extract implements Binder.
func (b *FileBinder[T]) Extract(ctx context.Context, conn *binder.Connection) (any, error) {
	mediaType := conn.MediaType()

	var (
		r   io.Reader
		err error
	)

	if b.cfg.consume {
		if mediaType == "" && conn.ContentLength() == 0 {
			return b.absent()
		}

		r, err = conn.Stream()
	} else {
		var data []byte

		data, err = conn.Body(ctx)
		if err == nil && len(data) == 0 && mediaType == "" {
			return b.absent()
		}

		r = bytes.NewReader(data)
	}

	if err != nil {
		return nil, err
	}

	if err := b.checkMediaType(mediaType); err != nil {
		return nil, err
	}

	var zero T

	switch any(zero).(type) {
	case Stream:
		return Stream{r: r}, nil
	case *SpooledFile:
		sf := NewSpooledFile(conn.MaxMemory())
		if _, err := io.Copy(sf, contextReader{ctx: ctx, r: r}); err != nil {
			sf.Close()
			return nil, errors.Wrap(err, "spool request body")
		}

		if err := sf.Rewind(); err != nil {
			sf.Close()
			return nil, err
		}

		conn.OnClose(sf.Close)

		return sf, nil
	}

	data, err := io.ReadAll(contextReader{ctx: ctx, r: r})
	if err != nil {
		return nil, errors.Wrap(err, "read request body")
	}

	var out any = data
	if _, ok := any(zero).(string); ok {
		out = string(data)
	}

	if errs := b.field.Check(out, bodyLoc()); len(errs) > 0 {
		return nil, binder.Validation(errs)
	}

	return out, nil
}

func (b *FileBinder[T]) absent() (any, error) {
	v, errs := b.field.Absent(bodyLoc())
	if len(errs) > 0 {
		return nil, binder.Validation(errs)
	}

	return v, nil
}

// contextReader stops reading once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}

	return c.r.Read(p)
}

// Content implements Binder.
func (b *FileBinder[T]) Content(*openapi.SchemaGenerator) map[string]*openapi.MediaType {
	return map[string]*openapi.MediaType{
		b.documentedMediaType(): {
			Schema:  &openapi.Schema{Type: "string", Format: "binary"},
			Example: b.cfg.example,
		},
	}
}

// RequestBody implements binder.BodyBinder.
func (b *FileBinder[T]) RequestBody(gen *openapi.SchemaGenerator) *openapi.RequestBody {
	return b.requestBody(b.Content(gen))
}
