package body

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/vitalvas/xpresso/binder"
	"github.com/vitalvas/xpresso/di"
	"github.com/vitalvas/xpresso/field"
	"github.com/vitalvas/xpresso/openapi"
)

type item struct {
	Name  string   `json:"name" validate:"required"`
	Price float64  `json:"price" validate:"gte=0"`
	Tags  []string `json:"tags,omitempty"`
}

type priced struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

type basket struct {
	Lines []priced `json:"lines"`
	Note  *string  `json:"note"`
}

type meta struct {
	Level int `json:"level"`
}

type itemForm struct {
	Name   string        `form:"name"`
	Tags   []string      `form:"tags,style=pipeDelimited,omitempty"`
	Meta   meta          `form:"meta,json"`
	Avatar *UploadFile   `form:"avatar"`
	Extra  []*UploadFile `form:"extra,omitempty"`
	Note   *string       `form:"note"`
}

type signup struct {
	Name  string         `form:"name"`
	Age   int            `form:"age"`
	Langs []string       `form:"langs"`
	Attrs map[string]int `form:"attrs,style=deepObject"`
	Bio   string         `form:"bio,omitempty"`
}

// failingBinder accepts JSON and always fails with err.
type failingBinder struct {
	err error
}

func (f failingBinder) Node() *di.Node                { return di.NewNode(nil, nil) }
func (f failingBinder) IncludeInSchema() bool         { return true }
func (f failingBinder) Accepts(mediaType string) bool { return mediaType == "application/json" }
func (f failingBinder) Required() bool                { return true }

func (f failingBinder) Content(*openapi.SchemaGenerator) map[string]*openapi.MediaType {
	return nil
}

func (f failingBinder) RequestBody(*openapi.SchemaGenerator) *openapi.RequestBody {
	return &openapi.RequestBody{}
}

func (f failingBinder) Extract(context.Context, *binder.Connection) (any, error) {
	return nil, f.err
}

// execute resolves deps for one request and returns the connection so
// tests can close it.
func execute(t *testing.T, r *http.Request, opts []binder.ConnectionOption, deps ...di.Dependency) (*di.Values, *binder.Connection, error) {
	t.Helper()

	g, err := di.Solve(deps, nil)
	if err != nil {
		return nil, nil, err
	}

	app, err := di.Enter(di.ScopeApp, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	connState, err := di.Enter(di.ScopeConnection, app)
	require.NoError(t, err)

	conn := binder.NewConnection(r, nil, opts...)
	require.NoError(t, connState.Bind(binder.ConnectionDep, conn))

	ep, err := di.Enter(di.ScopeEndpoint, connState)
	require.NoError(t, err)

	vals, err := g.Execute(context.Background(), ep, nil)

	return vals, conn, err
}

func request(body, contentType string) *http.Request {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(http.MethodPost, "/", nil)
	} else {
		r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	}

	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}

	return r
}

func requireValidation(t *testing.T, err error) field.Errors {
	t.Helper()

	var verr *binder.ValidationError
	require.True(t, errors.As(err, &verr), "expected validation error, got %v", err)

	return verr.Errors
}

type multipartPart struct {
	name     string
	filename string
	content  string
}

func multipartRequest(t *testing.T, parts ...multipartPart) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, p := range parts {
		var (
			pw  io.Writer
			err error
		)

		if p.filename != "" {
			pw, err = w.CreateFormFile(p.name, p.filename)
		} else {
			pw, err = w.CreateFormField(p.name)
		}

		require.NoError(t, err)

		_, err = io.WriteString(pw, p.content)
		require.NoError(t, err)
	}

	require.NoError(t, w.Close())

	r := httptest.NewRequest(http.MethodPost, "/", &buf)
	r.Header.Set("Content-Type", w.FormDataContentType())

	return r
}

func TestJSON(t *testing.T) {
	t.Run("decodes and validates", func(t *testing.T) {
		b := JSON[item]()

		vals, _, err := execute(t, request(`{"name":"cup","price":2.5,"tags":["a"]}`, "application/json"), nil, b)
		require.NoError(t, err)

		assert.Equal(t, item{Name: "cup", Price: 2.5, Tags: []string{"a"}}, b.From(vals))
	})

	t.Run("media type parameters are ignored", func(t *testing.T) {
		b := JSON[item]()

		vals, _, err := execute(t, request(`{"name":"cup","price":1}`, "application/json; charset=utf-8"), nil, b)
		require.NoError(t, err)
		assert.Equal(t, "cup", b.From(vals).Name)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, _, err := execute(t, request(`{"name": x}`, "application/json"), nil, JSON[item]())

		errs := requireValidation(t, err)
		require.Len(t, errs, 1)
		assert.Equal(t, "body", errs[0].Loc[0])
		assert.Len(t, errs[0].Loc, 2)
		assert.Equal(t, field.TypeJSONDecode, errs[0].Type)
	})

	t.Run("wrong field type", func(t *testing.T) {
		_, _, err := execute(t, request(`{"name":"cup","price":"free"}`, "application/json"), nil, JSON[item]())

		errs := requireValidation(t, err)
		require.Len(t, errs, 1)
		assert.Equal(t, field.Loc{"body", "price"}, errs[0].Loc)
		assert.Equal(t, field.TypeFloat, errs[0].Type)
	})

	t.Run("validator tags", func(t *testing.T) {
		_, _, err := execute(t, request(`{"name":"","price":-1}`, "application/json"), nil, JSON[item]())

		errs := requireValidation(t, err)
		require.Len(t, errs, 2)
		assert.Equal(t, field.Loc{"body", "name"}, errs[0].Loc)
		assert.Equal(t, field.Loc{"body", "price"}, errs[1].Loc)
	})

	t.Run("missing required property", func(t *testing.T) {
		_, _, err := execute(t, request(`{"name":"x"}`, "application/json"), nil, JSON[priced]())

		errs := requireValidation(t, err)
		require.Len(t, errs, 1)
		assert.Equal(t, field.Loc{"body", "price"}, errs[0].Loc)
		assert.Equal(t, field.TypeMissing, errs[0].Type)
		assert.Equal(t, field.MsgMissing, errs[0].Msg)
	})

	t.Run("missing nested property", func(t *testing.T) {
		b := JSON[basket]()

		_, _, err := execute(t, request(`{"lines":[{"name":"a","price":1},{"name":"b"}]}`, "application/json"), nil, b)

		errs := requireValidation(t, err)
		require.Len(t, errs, 1)
		assert.Equal(t, field.Loc{"body", "lines", 1, "price"}, errs[0].Loc)

		vals, _, err := execute(t, request(`{"lines":[]}`, "application/json"), nil, b)
		require.NoError(t, err)
		assert.Nil(t, b.From(vals).Note)
	})

	t.Run("null body", func(t *testing.T) {
		_, _, err := execute(t, request(`null`, "application/json"), nil, JSON[priced]())

		errs := requireValidation(t, err)
		require.Len(t, errs, 1)
		assert.Equal(t, field.Loc{"body"}, errs[0].Loc)
		assert.Equal(t, field.TypeMissing, errs[0].Type)
	})

	t.Run("null optional body", func(t *testing.T) {
		b := JSON[*priced]()

		vals, _, err := execute(t, request(`null`, "application/json"), nil, b)
		require.NoError(t, err)
		assert.Nil(t, b.From(vals))
	})

	t.Run("trailing data", func(t *testing.T) {
		_, _, err := execute(t, request(`{"name":"cup"} {}`, "application/json"), nil, JSON[item]())

		errs := requireValidation(t, err)
		assert.Equal(t, field.Loc{"body"}, errs[0].Loc)
	})

	t.Run("missing body", func(t *testing.T) {
		_, _, err := execute(t, request("", ""), nil, JSON[item]())

		errs := requireValidation(t, err)
		require.Len(t, errs, 1)
		assert.Equal(t, field.Loc{"body"}, errs[0].Loc)
		assert.Equal(t, field.MsgMissing, errs[0].Msg)
		assert.Equal(t, field.TypeMissing, errs[0].Type)
	})

	t.Run("optional body", func(t *testing.T) {
		b := JSON[*item]()

		vals, _, err := execute(t, request("", ""), nil, b)
		require.NoError(t, err)
		assert.Nil(t, b.From(vals))
	})

	t.Run("required option", func(t *testing.T) {
		b := JSON[item](Required(false))

		vals, _, err := execute(t, request("", ""), nil, b)
		require.NoError(t, err)
		assert.Equal(t, item{}, b.From(vals))
	})

	t.Run("unsupported media type", func(t *testing.T) {
		_, _, err := execute(t, request(`name=cup`, "text/plain"), nil, JSON[item]())

		require.Error(t, err)
		assert.Equal(t, http.StatusUnsupportedMediaType, binder.StatusOf(err))
	})

	t.Run("media type enforcement disabled", func(t *testing.T) {
		b := JSON[item](EnforceMediaType(false))

		vals, _, err := execute(t, request(`{"name":"cup","price":1}`, "text/plain"), nil, b)
		require.NoError(t, err)
		assert.Equal(t, "cup", b.From(vals).Name)
	})

	t.Run("media type wildcard", func(t *testing.T) {
		b := JSON[item](MediaTypes("application/*+json", "application/json"))

		vals, _, err := execute(t, request(`{"name":"cup","price":1}`, "application/vnd.api+json"), nil, b)
		require.NoError(t, err)
		assert.Equal(t, "cup", b.From(vals).Name)
	})

	t.Run("unsupported type is a configuration error", func(t *testing.T) {
		_, err := di.Solve([]di.Dependency{JSON[func()]()}, nil)

		require.Error(t, err)
		assert.True(t, binder.IsConfigError(err))
	})
}

func TestDecoders(t *testing.T) {
	t.Run("yaml", func(t *testing.T) {
		b := JSON[item](MediaTypes("application/yaml"), WithDecoder(YAMLDecoder{}))

		vals, _, err := execute(t, request("name: cup\nprice: 3\n", "application/yaml"), nil, b)
		require.NoError(t, err)
		assert.Equal(t, item{Name: "cup", Price: 3}, b.From(vals))
	})

	t.Run("yaml type error keeps location", func(t *testing.T) {
		b := JSON[item](MediaTypes("application/yaml"), WithDecoder(YAMLDecoder{}))

		_, _, err := execute(t, request("name: cup\nprice: [1]\n", "application/yaml"), nil, b)

		errs := requireValidation(t, err)
		assert.Equal(t, field.Loc{"body", "price"}, errs[0].Loc)
	})

	t.Run("yaml missing property", func(t *testing.T) {
		b := JSON[priced](MediaTypes("application/yaml"), WithDecoder(YAMLDecoder{}))

		_, _, err := execute(t, request("name: cup\n", "application/yaml"), nil, b)

		errs := requireValidation(t, err)
		require.Len(t, errs, 1)
		assert.Equal(t, field.Loc{"body", "price"}, errs[0].Loc)
	})

	t.Run("msgpack missing property", func(t *testing.T) {
		data, err := msgpack.Marshal(map[string]any{"price": 1.5})
		require.NoError(t, err)

		b := JSON[priced](MediaTypes("application/msgpack"), WithDecoder(MsgPackDecoder{}))

		_, _, err = execute(t, request(string(data), "application/msgpack"), nil, b)

		errs := requireValidation(t, err)
		require.Len(t, errs, 1)
		assert.Equal(t, field.Loc{"body", "name"}, errs[0].Loc)
	})

	t.Run("toml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, toml.NewEncoder(&buf).Encode(map[string]any{"name": "cup", "price": 4.5}))

		b := JSON[item](MediaTypes("application/toml"), WithDecoder(TOMLDecoder{}))

		vals, _, err := execute(t, request(buf.String(), "application/toml"), nil, b)
		require.NoError(t, err)
		assert.Equal(t, item{Name: "cup", Price: 4.5}, b.From(vals))
	})

	t.Run("msgpack", func(t *testing.T) {
		data, err := msgpack.Marshal(map[string]any{"name": "cup", "price": 1.5})
		require.NoError(t, err)

		b := JSON[item](MediaTypes("application/msgpack"), WithDecoder(MsgPackDecoder{}))

		vals, _, err := execute(t, request(string(data), "application/msgpack"), nil, b)
		require.NoError(t, err)
		assert.Equal(t, item{Name: "cup", Price: 1.5}, b.From(vals))
	})

	t.Run("unknown fields", func(t *testing.T) {
		var v item
		err := JSONDecoder{DisallowUnknownFields: true}.Decode([]byte(`{"name":"cup","color":"red"}`), &v)
		assert.Error(t, err)

		require.NoError(t, JSONDecoder{}.Decode([]byte(`{"name":"cup","color":"red"}`), &v))
	})

	t.Run("decoder func", func(t *testing.T) {
		called := false
		d := DecoderFunc(func(_ []byte, _ any) error {
			called = true
			return nil
		})

		require.NoError(t, d.Decode(nil, nil))
		assert.True(t, called)
	})
}

func TestForm(t *testing.T) {
	t.Run("urlencoded", func(t *testing.T) {
		b := Form[signup]()

		vals, _, err := execute(t, request("name=ann&age=31&langs=go&langs=c&attrs[x]=1&attrs[y]=2", "application/x-www-form-urlencoded"), nil, b)
		require.NoError(t, err)

		assert.Equal(t, signup{
			Name:  "ann",
			Age:   31,
			Langs: []string{"go", "c"},
			Attrs: map[string]int{"x": 1, "y": 2},
		}, b.From(vals))
	})

	t.Run("errors are collected", func(t *testing.T) {
		_, _, err := execute(t, request("age=old", "application/x-www-form-urlencoded"), nil, Form[signup]())

		errs := requireValidation(t, err)

		var locs []string
		for _, e := range errs {
			locs = append(locs, e.Loc.String())
		}

		assert.ElementsMatch(t, []string{"body.name", "body.age", "body.langs", "body.attrs"}, locs)
	})

	t.Run("missing body", func(t *testing.T) {
		_, _, err := execute(t, request("", ""), nil, Form[signup]())

		errs := requireValidation(t, err)
		assert.Equal(t, field.Loc{"body"}, errs[0].Loc)
	})

	t.Run("wrong media type", func(t *testing.T) {
		_, _, err := execute(t, request(`{}`, "application/json"), nil, Form[signup]())
		assert.Equal(t, http.StatusUnsupportedMediaType, binder.StatusOf(err))
	})

	t.Run("configuration errors", func(t *testing.T) {
		type withFile struct {
			Doc *UploadFile `form:"doc"`
		}

		type badStyle struct {
			Tags []string `form:"tags,style=matrix"`
		}

		type badOption struct {
			Tags []string `form:"tags,bogus"`
		}

		type deepScalar struct {
			ID int `form:"id,style=deepObject"`
		}

		for name, dep := range map[string]di.Dependency{
			"not a struct":          Form[int](),
			"file in urlencoded":    Form[withFile](),
			"style":                 Form[badStyle](),
			"unknown option":        Form[badOption](),
			"deep object on scalar": Form[deepScalar](),
		} {
			t.Run(name, func(t *testing.T) {
				_, err := di.Solve([]di.Dependency{dep}, nil)

				require.Error(t, err)
				assert.True(t, binder.IsConfigError(err), "%v", err)
			})
		}
	})
}

func TestMultipart(t *testing.T) {
	t.Run("values files and json", func(t *testing.T) {
		b := Multipart[itemForm]()

		r := multipartRequest(t,
			multipartPart{name: "name", content: "cup"},
			multipartPart{name: "tags", content: "a|b"},
			multipartPart{name: "meta", content: `{"level":2}`},
			multipartPart{name: "avatar", filename: "a.png", content: "png-data"},
			multipartPart{name: "extra", filename: "1.txt", content: "one"},
			multipartPart{name: "extra", filename: "2.txt", content: "two"},
		)

		vals, conn, err := execute(t, r, nil, b)
		require.NoError(t, err)

		form := b.From(vals)
		assert.Equal(t, "cup", form.Name)
		assert.Equal(t, []string{"a", "b"}, form.Tags)
		assert.Equal(t, meta{Level: 2}, form.Meta)
		assert.Nil(t, form.Note)

		require.NotNil(t, form.Avatar)
		assert.Equal(t, "a.png", form.Avatar.Filename)

		data, err := form.Avatar.ReadAll()
		require.NoError(t, err)
		assert.Equal(t, "png-data", string(data))

		require.Len(t, form.Extra, 2)
		assert.Equal(t, "2.txt", form.Extra[1].Filename)

		require.NoError(t, conn.Close())
	})

	t.Run("file where json is expected", func(t *testing.T) {
		r := multipartRequest(t,
			multipartPart{name: "name", content: "cup"},
			multipartPart{name: "meta", filename: "meta.json", content: `{"level":2}`},
		)

		_, _, err := execute(t, r, nil, Multipart[itemForm]())

		errs := requireValidation(t, err)

		found := false
		for _, e := range errs {
			if e.Loc.String() == "body.meta" {
				found = true
				assert.Equal(t, field.TypeJSONDecode, e.Type)
			}
		}

		assert.True(t, found, "%v", errs)
	})

	t.Run("invalid json field", func(t *testing.T) {
		r := multipartRequest(t,
			multipartPart{name: "name", content: "cup"},
			multipartPart{name: "meta", content: `{"level":"high"}`},
		)

		_, _, err := execute(t, r, nil, Multipart[itemForm]())

		errs := requireValidation(t, err)
		require.Len(t, errs, 1)
		assert.Equal(t, field.Loc{"body", "meta", "level"}, errs[0].Loc)
	})

	t.Run("json field missing property", func(t *testing.T) {
		r := multipartRequest(t,
			multipartPart{name: "name", content: "cup"},
			multipartPart{name: "meta", content: `{}`},
		)

		_, _, err := execute(t, r, nil, Multipart[itemForm]())

		errs := requireValidation(t, err)
		require.Len(t, errs, 1)
		assert.Equal(t, field.Loc{"body", "meta", "level"}, errs[0].Loc)
		assert.Equal(t, field.TypeMissing, errs[0].Type)
	})

	t.Run("json field null", func(t *testing.T) {
		r := multipartRequest(t,
			multipartPart{name: "name", content: "cup"},
			multipartPart{name: "meta", content: `null`},
		)

		_, _, err := execute(t, r, nil, Multipart[itemForm]())

		errs := requireValidation(t, err)
		require.Len(t, errs, 1)
		assert.Equal(t, field.Loc{"body", "meta"}, errs[0].Loc)
	})

	t.Run("value where file is expected", func(t *testing.T) {
		r := multipartRequest(t,
			multipartPart{name: "name", content: "cup"},
			multipartPart{name: "meta", content: `{}`},
			multipartPart{name: "avatar", content: "not a file"},
		)

		_, _, err := execute(t, r, nil, Multipart[itemForm]())

		errs := requireValidation(t, err)
		require.Len(t, errs, 1)
		assert.Equal(t, field.Loc{"body", "avatar"}, errs[0].Loc)
		assert.Equal(t, field.TypeFile, errs[0].Type)
	})

	t.Run("spilled parts are removed on close", func(t *testing.T) {
		b := Multipart[itemForm]()

		r := multipartRequest(t,
			multipartPart{name: "name", content: "cup"},
			multipartPart{name: "meta", content: `{}`},
			multipartPart{name: "avatar", filename: "big.bin", content: strings.Repeat("x", 4096)},
		)

		vals, conn, err := execute(t, r, []binder.ConnectionOption{binder.WithMaxMemory(16)}, b)
		require.NoError(t, err)

		avatar := b.From(vals).Avatar
		require.NotNil(t, avatar)

		data, err := avatar.ReadAll()
		require.NoError(t, err)
		assert.Len(t, data, 4096)

		require.NoError(t, conn.Close())

		_, err = avatar.Open()
		assert.Error(t, err)
	})

	t.Run("missing boundary", func(t *testing.T) {
		_, _, err := execute(t, request("--x--", "multipart/form-data"), nil, Multipart[itemForm]())

		errs := requireValidation(t, err)
		assert.Equal(t, field.Loc{"body"}, errs[0].Loc)
	})
}

func TestFile(t *testing.T) {
	t.Run("bytes", func(t *testing.T) {
		b := File[[]byte]()

		vals, _, err := execute(t, request("raw", "application/octet-stream"), nil, b)
		require.NoError(t, err)
		assert.Equal(t, []byte("raw"), b.From(vals))
	})

	t.Run("string without content type", func(t *testing.T) {
		b := File[string]()

		vals, _, err := execute(t, request("text", ""), nil, b)
		require.NoError(t, err)
		assert.Equal(t, "text", b.From(vals))
	})

	t.Run("missing", func(t *testing.T) {
		_, _, err := execute(t, request("", ""), nil, File[[]byte]())

		errs := requireValidation(t, err)
		assert.Equal(t, field.Loc{"body"}, errs[0].Loc)
	})

	t.Run("spooled file is required by default", func(t *testing.T) {
		_, _, err := execute(t, request("", ""), nil, File[*SpooledFile]())

		errs := requireValidation(t, err)
		require.Len(t, errs, 1)
		assert.Equal(t, field.TypeMissing, errs[0].Type)

		assert.True(t, File[*SpooledFile]().Required())
		assert.True(t, File[*SpooledFile]().RequestBody(openapi.NewSchemaGenerator()).Required)
	})

	t.Run("optional spooled file", func(t *testing.T) {
		b := File[*SpooledFile](Required(false))

		vals, _, err := execute(t, request("", ""), nil, b)
		require.NoError(t, err)
		assert.Nil(t, b.From(vals))
		assert.False(t, b.RequestBody(openapi.NewSchemaGenerator()).Required)
	})

	t.Run("narrowed media types", func(t *testing.T) {
		b := File[[]byte](MediaTypes("image/*"))

		_, _, err := execute(t, request("raw", "text/plain"), nil, b)
		assert.Equal(t, http.StatusUnsupportedMediaType, binder.StatusOf(err))

		vals, _, err := execute(t, request("raw", "image/png"), nil, b)
		require.NoError(t, err)
		assert.Equal(t, []byte("raw"), b.From(vals))
	})

	t.Run("stream consumes", func(t *testing.T) {
		b := File[Stream](Consume(true))

		vals, conn, err := execute(t, request("streamed", "application/octet-stream"), nil, b)
		require.NoError(t, err)
		assert.True(t, conn.BodyConsumed())

		data, err := io.ReadAll(b.From(vals))
		require.NoError(t, err)
		assert.Equal(t, "streamed", string(data))

		_, err = conn.Body(context.Background())
		assert.ErrorIs(t, err, binder.ErrBodyConsumed)
	})

	t.Run("spooled file spills", func(t *testing.T) {
		b := File[*SpooledFile](Consume(true))

		payload := strings.Repeat("y", 64)

		vals, conn, err := execute(t, request(payload, "application/octet-stream"),
			[]binder.ConnectionOption{binder.WithMaxMemory(8)}, b)
		require.NoError(t, err)

		sf := b.From(vals)
		require.NotNil(t, sf)
		assert.False(t, sf.InMemory())
		assert.Equal(t, int64(64), sf.Size())

		name := sf.file.Name()

		data, err := io.ReadAll(sf)
		require.NoError(t, err)
		assert.Equal(t, payload, string(data))

		require.NoError(t, conn.Close())

		_, err = os.Stat(name)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("spooled file in memory", func(t *testing.T) {
		sf := NewSpooledFile(1024)

		_, err := sf.Write([]byte("hello "))
		require.NoError(t, err)
		_, err = sf.Write([]byte("world"))
		require.NoError(t, err)

		assert.True(t, sf.InMemory())
		require.NoError(t, sf.Rewind())

		pos, err := sf.Seek(6, io.SeekStart)
		require.NoError(t, err)
		assert.Equal(t, int64(6), pos)

		rest, err := io.ReadAll(sf)
		require.NoError(t, err)
		assert.Equal(t, "world", string(rest))

		_, err = sf.Seek(-1, io.SeekStart)
		assert.Error(t, err)

		require.NoError(t, sf.Close())
	})
}

func TestOneOf(t *testing.T) {
	newUnion := func() *OneOfBinder {
		return OneOf(JSON[item](), Multipart[itemForm]())
	}

	t.Run("json branch", func(t *testing.T) {
		b := newUnion()

		vals, _, err := execute(t, request(`{"name":"cup","price":1}`, "application/json"), nil, b)
		require.NoError(t, err)
		assert.Equal(t, item{Name: "cup", Price: 1}, b.From(vals))
	})

	t.Run("multipart branch", func(t *testing.T) {
		b := newUnion()

		r := multipartRequest(t,
			multipartPart{name: "name", content: "cup"},
			multipartPart{name: "meta", content: `{"level":1}`},
		)

		vals, _, err := execute(t, r, nil, b)
		require.NoError(t, err)

		form, ok := b.From(vals).(itemForm)
		require.True(t, ok)
		assert.Equal(t, "cup", form.Name)
	})

	t.Run("invalid json is a validation error", func(t *testing.T) {
		_, _, err := execute(t, request(`{"name":`, "application/json"), nil, newUnion())
		assert.Equal(t, http.StatusUnprocessableEntity, binder.StatusOf(err))
	})

	t.Run("unsupported media type", func(t *testing.T) {
		_, _, err := execute(t, request("x", "text/plain"), nil, newUnion())

		var httpErr *binder.HTTPError
		require.True(t, errors.As(err, &httpErr))
		assert.Equal(t, http.StatusUnsupportedMediaType, httpErr.Status)
		assert.Equal(t, "Media type text/plain is not supported", httpErr.Detail)
	})

	t.Run("missing content type", func(t *testing.T) {
		_, _, err := execute(t, request("x", ""), nil, newUnion())

		var httpErr *binder.HTTPError
		require.True(t, errors.As(err, &httpErr))
		assert.Equal(t, "Content-Type missing", httpErr.Detail)
	})

	t.Run("validation error is preferred", func(t *testing.T) {
		failing := failingBinder{err: binder.NewHTTPError(http.StatusBadRequest, nil)}

		for _, b := range []*OneOfBinder{
			OneOf(JSON[item](), failing),
			OneOf(failing, JSON[item]()),
		} {
			_, _, err := execute(t, request(`{"name":""}`, "application/json"), nil, b)
			assert.Equal(t, http.StatusUnprocessableEntity, binder.StatusOf(err))
		}
	})

	t.Run("last error without validation", func(t *testing.T) {
		b := OneOf(failingBinder{err: binder.NewHTTPError(http.StatusBadRequest, nil)})

		_, _, err := execute(t, request(`{}`, "application/json"), nil, b)
		assert.Equal(t, http.StatusBadRequest, binder.StatusOf(err))
	})

	t.Run("optional union", func(t *testing.T) {
		b := OneOf(JSON[*item](), File[*SpooledFile](Required(false)))

		vals, _, err := execute(t, request("", ""), nil, b)
		require.NoError(t, err)
		assert.Nil(t, b.From(vals))
	})

	t.Run("branch configuration error", func(t *testing.T) {
		_, err := di.Solve([]di.Dependency{OneOf(JSON[item](), Form[int]())}, nil)
		assert.True(t, binder.IsConfigError(err))

		_, err = di.Solve([]di.Dependency{OneOf()}, nil)
		assert.True(t, binder.IsConfigError(err))
	})

	t.Run("content is merged", func(t *testing.T) {
		gen := openapi.NewSchemaGenerator()
		rb := OneOf(JSON[item](Description("an item")), Multipart[itemForm]()).RequestBody(gen)

		assert.True(t, rb.Required)
		assert.Equal(t, "an item", rb.Description)
		assert.Contains(t, rb.Content, "application/json")
		assert.Contains(t, rb.Content, "multipart/form-data")
	})
}

func TestRequestBody(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		gen := openapi.NewSchemaGenerator()
		rb := JSON[item](Example(map[string]any{"name": "cup"})).RequestBody(gen)

		require.Contains(t, rb.Content, "application/json")
		mt := rb.Content["application/json"]
		assert.NotEmpty(t, mt.Schema.Ref)
		assert.Equal(t, map[string]any{"name": "cup"}, mt.Example)
		assert.True(t, rb.Required)
	})

	t.Run("optional json", func(t *testing.T) {
		rb := JSON[*item]().RequestBody(openapi.NewSchemaGenerator())
		assert.False(t, rb.Required)
	})

	t.Run("multipart", func(t *testing.T) {
		rb := Multipart[itemForm]().RequestBody(openapi.NewSchemaGenerator())

		mt := rb.Content["multipart/form-data"]
		require.NotNil(t, mt)

		schema := mt.Schema
		assert.Equal(t, "object", schema.Type)
		assert.Equal(t, &openapi.Schema{Type: "string", Format: "binary"}, schema.Properties["avatar"])
		assert.Equal(t, "array", schema.Properties["extra"].Type)
		assert.Equal(t, []string{"name", "meta"}, schema.Required)

		assert.Equal(t, "application/json", mt.Encoding["meta"].ContentType)
		assert.Equal(t, "pipeDelimited", mt.Encoding["tags"].Style)
		assert.NotContains(t, mt.Encoding, "name")
	})

	t.Run("file", func(t *testing.T) {
		rb := File[[]byte](MediaTypes("image/png")).RequestBody(openapi.NewSchemaGenerator())

		assert.Equal(t, &openapi.Schema{Type: "string", Format: "binary"}, rb.Content["image/png"].Schema)
	})

	t.Run("excluded", func(t *testing.T) {
		assert.False(t, JSON[item](ExcludeFromSchema()).IncludeInSchema())
		assert.True(t, File[string]().IncludeInSchema())
	})
}
