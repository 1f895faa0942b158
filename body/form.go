package body

import (
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net/textproto"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/vitalvas/xpresso/binder"
	"github.com/vitalvas/xpresso/di"
	"github.com/vitalvas/xpresso/field"
	"github.com/vitalvas/xpresso/openapi"
	"github.com/vitalvas/xpresso/params"
)

// UploadFile is a file part of a multipart body.
type UploadFile struct {
	Filename    string
	ContentType string
	Size        int64
	Header      textproto.MIMEHeader

	fh *multipart.FileHeader
}

// Open opens the uploaded content. Parts larger than the memory limit are
// read from a temporary file that lives until the connection ends.
func (f *UploadFile) Open() (multipart.File, error) {
	return f.fh.Open()
}

// ReadAll returns the uploaded content.
func (f *UploadFile) ReadAll() ([]byte, error) {
	r, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return io.ReadAll(r)
}

// OpenAPISchema implements openapi.SchemaProvider.
func (UploadFile) OpenAPISchema() *openapi.Schema {
	return &openapi.Schema{Type: "string", Format: "binary"}
}

func newUploadFile(fh *multipart.FileHeader) *UploadFile {
	return &UploadFile{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Header:      fh.Header,
		fh:          fh,
	}
}

type fieldKind int

const (
	kindValue fieldKind = iota
	kindJSON
	kindFile
)

var (
	uploadType    = reflect.TypeFor[UploadFile]()
	uploadPtrType = reflect.TypeFor[*UploadFile]()
)

// formField is one struct field of a form model.
type formField struct {
	name    string
	index   int
	kind    fieldKind
	style   binder.Style
	explode bool
	field   *field.Field
}

func (f formField) loc() field.Loc { return bodyLoc(f.name) }

// parseFormTag reads `form:"name,style=deepObject,explode=false,json,file,omitempty"`.
func parseFormTag(sf reflect.StructField) (formField, bool, bool, error) {
	ff := formField{style: binder.StyleForm, explode: true}
	omitempty := false

	tag, ok := sf.Tag.Lookup("form")
	if tag == "-" {
		return ff, false, true, nil
	}

	var opts []string
	if ok {
		ff.name, opts = splitTag(tag)
	}

	if ff.name == "" {
		name, rest, _ := strings.Cut(sf.Tag.Get("json"), ",")
		if name == "-" && !ok {
			return ff, false, true, nil
		}

		if name == "-" {
			name = ""
		}

		ff.name = name
		if strings.Contains(rest, "omitempty") {
			omitempty = true
		}
	}

	if ff.name == "" {
		ff.name = sf.Name
	}

	explodeSet := false

	for _, opt := range opts {
		key, value, _ := strings.Cut(opt, "=")

		switch key {
		case "style":
			ff.style = binder.Style(value)
		case "explode":
			v, err := strconv.ParseBool(value)
			if err != nil {
				return ff, false, false, binder.ConfigError("form field %q: invalid explode %q", ff.name, value)
			}

			ff.explode = v
			explodeSet = true
		case "json":
			ff.kind = kindJSON
		case "file":
			ff.kind = kindFile
		case "omitempty":
			omitempty = true
		default:
			return ff, false, false, binder.ConfigError("form field %q: unknown option %q", ff.name, opt)
		}
	}

	if !explodeSet && ff.style != binder.StyleForm {
		ff.explode = false
	}

	if ff.style == binder.StyleDeepObject && !explodeSet {
		ff.explode = true
	}

	return ff, omitempty, false, nil
}

func splitTag(tag string) (string, []string) {
	parts := strings.Split(tag, ",")
	return parts[0], parts[1:]
}

func isFileType(t reflect.Type) bool {
	switch t {
	case uploadType, uploadPtrType:
		return true
	}

	if t.Kind() == reflect.Slice {
		return t.Elem() == uploadType || t.Elem() == uploadPtrType
	}

	return false
}

func formFields(t reflect.Type, multipartForm bool) ([]formField, error) {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	if t.Kind() != reflect.Struct {
		return nil, binder.ConfigError("form body must be a struct, got %s", t)
	}

	var out []formField

	for i := range t.NumField() {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}

		ff, omitempty, skip, err := parseFormTag(sf)
		if err != nil {
			return nil, err
		}

		if skip {
			continue
		}

		ff.index = i

		if ff.kind == kindValue && isFileType(sf.Type) {
			ff.kind = kindFile
		}

		var fieldOpts []field.Option
		if omitempty {
			fieldOpts = append(fieldOpts, field.WithRequired(false))
		}

		f, err := field.New(ff.name, sf.Type, fieldOpts...)
		if err != nil {
			return nil, binder.ConfigError("form field %q: %v", ff.name, err)
		}

		ff.field = f

		switch ff.kind {
		case kindFile:
			if !multipartForm {
				return nil, binder.ConfigError("form field %q: files require a multipart body", ff.name)
			}

			if !isFileType(sf.Type) {
				return nil, binder.ConfigError("form field %q: file fields must be UploadFile, *UploadFile or a slice of them, got %s", ff.name, sf.Type)
			}
		case kindValue:
			if err := f.Coercible(); err != nil {
				return nil, binder.ConfigError("form field %q: %v", ff.name, err)
			}

			if err := checkFormStyle(ff); err != nil {
				return nil, err
			}
		}

		out = append(out, ff)
	}

	return out, nil
}

func checkFormStyle(ff formField) error {
	switch ff.style {
	case binder.StyleForm, binder.StyleSpaceDelimited, binder.StylePipeDelimited:
		return nil
	case binder.StyleDeepObject:
		if !ff.explode {
			return binder.ConfigError("form field %q: deepObject requires explode", ff.name)
		}

		if ff.field.Shape() != field.ShapeMapping {
			return binder.ConfigError("form field %q: deepObject requires an object type", ff.name)
		}

		return nil
	}

	return binder.ConfigError("form field %q: style %s is not allowed in a form", ff.name, ff.style)
}

// FormBinder decodes urlencoded or multipart bodies into the struct T.
// Fields are named by the form tag, falling back to the json tag:
//
//	type Signup struct {
//		Name   string            `form:"name"`
//		Tags   []string          `form:"tags,style=pipeDelimited"`
//		Meta   Meta              `form:"meta,json"`
//		Avatar *body.UploadFile  `form:"avatar"`
//	}
//
// Field errors are collected and reported together.
type FormBinder[T any] struct {
	base
	multipart bool
	fields    []formField
	dep       di.Dep[T]
}

// Form declares an application/x-www-form-urlencoded body.
func Form[T any](opts ...Option) *FormBinder[T] {
	return newForm[T]("application/x-www-form-urlencoded", false, opts)
}

// Multipart declares a multipart/form-data body.
func Multipart[T any](opts ...Option) *FormBinder[T] {
	return newForm[T]("multipart/form-data", true, opts)
}

func newForm[T any](mediaType string, multipartForm bool, opts []Option) *FormBinder[T] {
	cfg := newConfig(mediaType, opts)
	b := &FormBinder[T]{multipart: multipartForm}

	name := "body:form"
	if multipartForm {
		name = "body:multipart"
	}

	nodeOpts := []di.Option{di.WithName(name), di.WithMeta(b)}

	typ := reflect.TypeFor[T]()

	base, err := newBase(typ, cfg)
	if err == nil {
		b.fields, err = formFields(typ, multipartForm)
	}

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
func (b *FormBinder[T]) Node() *di.Node { return b.dep.Node() }

// From returns the decoded form.
func (b *FormBinder[T]) From(v *di.Values) T { return b.dep.From(v) }

// formData is a decoded form: plain values and, for multipart, files.
type formData struct {
	values url.Values
	files  map[string][]*multipart.FileHeader
}

// Extract implements Binder.
func (b *FormBinder[T]) Extract(ctx context.Context, conn *binder.Connection) (any, error) {
	mediaType := conn.MediaType()

	if mediaType == "" {
		data, err := conn.Body(ctx)
		if err != nil {
			return nil, err
		}

		if len(data) == 0 {
			v, errs := b.field.Absent(bodyLoc())
			if len(errs) > 0 {
				return nil, binder.Validation(errs)
			}

			return v, nil
		}
	}

	if err := b.checkMediaType(mediaType); err != nil {
		return nil, err
	}

	var (
		form *formData
		err  error
	)

	if b.multipart {
		form, err = readMultipart(conn)
	} else {
		form, err = readURLEncoded(ctx, conn)
	}

	if err != nil {
		return nil, err
	}

	return b.decode(form)
}

func readURLEncoded(ctx context.Context, conn *binder.Connection) (*formData, error) {
	data, err := conn.Body(ctx)
	if err != nil {
		return nil, err
	}

	values, err := url.ParseQuery(string(data))
	if err != nil {
		return nil, binder.Validation(field.Invalid(bodyLoc(), "Invalid form body: "+err.Error(), field.TypeValue))
	}

	return &formData{values: values}, nil
}

// readMultipart parses the body with the connection memory limit. Spilled
// parts are removed when the connection closes.
func readMultipart(conn *binder.Connection) (*formData, error) {
	_, mtParams, err := mime.ParseMediaType(conn.ContentType())
	if err != nil || mtParams["boundary"] == "" {
		return nil, binder.Validation(field.Invalid(bodyLoc(), "Invalid multipart body: missing boundary", field.TypeValue))
	}

	stream, err := conn.Stream()
	if err != nil {
		return nil, err
	}

	form, err := multipart.NewReader(stream, mtParams["boundary"]).ReadForm(conn.MaxMemory())
	if err != nil {
		return nil, binder.Validation(field.Invalid(bodyLoc(), "Invalid multipart body: "+err.Error(), field.TypeValue))
	}

	conn.OnClose(form.RemoveAll)

	return &formData{values: url.Values(form.Value), files: form.File}, nil
}

func (b *FormBinder[T]) decode(form *formData) (any, error) {
	typ := b.field.ElemType()
	out := reflect.New(typ).Elem()

	var errs field.Errors

	for _, ff := range b.fields {
		v, fieldErrs := b.decodeField(ff, form)
		if len(fieldErrs) > 0 {
			errs = append(errs, fieldErrs...)
			continue
		}

		if v.IsValid() {
			out.Field(ff.index).Set(v)
		}
	}

	if len(errs) > 0 {
		return nil, binder.Validation(errs)
	}

	if errs := b.field.Check(out.Interface(), bodyLoc()); len(errs) > 0 {
		return nil, binder.Validation(errs)
	}

	if b.field.Type().Kind() == reflect.Pointer {
		return out.Addr().Interface(), nil
	}

	return out.Interface(), nil
}

func (b *FormBinder[T]) decodeField(ff formField, form *formData) (reflect.Value, field.Errors) {
	switch ff.kind {
	case kindFile:
		return decodeFiles(ff, form)
	case kindJSON:
		return decodeJSONField(ff, form)
	}

	raw := params.CollectValues(form.values, ff.name, ff.style, ff.explode, ff.field)
	if raw == nil && len(form.files[ff.name]) > 0 {
		return reflect.Value{}, field.Invalid(ff.loc(), "expected a form value, got a file", field.TypeString)
	}

	var in any
	if raw != nil {
		in = raw.Value
	}

	v, errs := ff.field.Validate(in, ff.loc())
	if len(errs) > 0 {
		return reflect.Value{}, errs
	}

	return typedValue(v, ff.field.Type()), nil
}

func decodeJSONField(ff formField, form *formData) (reflect.Value, field.Errors) {
	vs, ok := form.values[ff.name]
	if !ok {
		if len(form.files[ff.name]) > 0 {
			return reflect.Value{}, field.Invalid(ff.loc(), "expected a JSON value, got a file", field.TypeJSONDecode)
		}

		v, errs := ff.field.Absent(ff.loc())
		if len(errs) > 0 {
			return reflect.Value{}, errs
		}

		return typedValue(v, ff.field.Type()), nil
	}

	ptr := reflect.New(ff.field.Type())
	if err := (JSONDecoder{}).Decode([]byte(vs[0]), ptr.Interface()); err != nil {
		var verr *binder.ValidationError
		if errors.As(decodeError(ff.loc(), err), &verr) {
			return reflect.Value{}, verr.Errors
		}

		return reflect.Value{}, field.Invalid(ff.loc(), err.Error(), field.TypeJSONDecode)
	}

	absent, errs := checkDocument(ff.field, JSONDecoder{}, []byte(vs[0]), ff.loc())
	if len(errs) > 0 {
		return reflect.Value{}, errs
	}

	if absent {
		v, _ := ff.field.Absent(ff.loc())
		return typedValue(v, ff.field.Type()), nil
	}

	if errs := ff.field.Check(ptr.Elem().Interface(), ff.loc()); len(errs) > 0 {
		return reflect.Value{}, errs
	}

	return ptr.Elem(), nil
}

func decodeFiles(ff formField, form *formData) (reflect.Value, field.Errors) {
	headers := form.files[ff.name]
	if len(headers) == 0 {
		if _, ok := form.values[ff.name]; ok {
			return reflect.Value{}, field.Invalid(ff.loc(), "expected an uploaded file", field.TypeFile)
		}

		v, errs := ff.field.Absent(ff.loc())
		if len(errs) > 0 {
			return reflect.Value{}, errs
		}

		return typedValue(v, ff.field.Type()), nil
	}

	t := ff.field.Type()

	switch t {
	case uploadType:
		return reflect.ValueOf(*newUploadFile(headers[0])), nil
	case uploadPtrType:
		return reflect.ValueOf(newUploadFile(headers[0])), nil
	}

	out := reflect.MakeSlice(t, 0, len(headers))
	for _, fh := range headers {
		if t.Elem() == uploadType {
			out = reflect.Append(out, reflect.ValueOf(*newUploadFile(fh)))
		} else {
			out = reflect.Append(out, reflect.ValueOf(newUploadFile(fh)))
		}
	}

	return out, nil
}

// typedValue turns an absent nil into the zero value of t.
func typedValue(v any, t reflect.Type) reflect.Value {
	if v == nil {
		return reflect.Zero(t)
	}

	return reflect.ValueOf(v)
}

// Content implements Binder. The form schema is inlined with the form
// field names; JSON fields get an encoding entry.
func (b *FormBinder[T]) Content(gen *openapi.SchemaGenerator) map[string]*openapi.MediaType {
	schema := &openapi.Schema{Type: "object", Properties: map[string]*openapi.Schema{}}
	encoding := map[string]*openapi.Encoding{}

	for _, ff := range b.fields {
		switch ff.kind {
		case kindFile:
			fileSchema := UploadFile{}.OpenAPISchema()
			if ff.field.Type().Kind() == reflect.Slice {
				fileSchema = &openapi.Schema{Type: "array", Items: fileSchema}
			}

			schema.Properties[ff.name] = fileSchema
		case kindJSON:
			schema.Properties[ff.name] = gen.GenerateType(ff.field.ElemType())
			encoding[ff.name] = &openapi.Encoding{ContentType: "application/json"}
		default:
			schema.Properties[ff.name] = gen.GenerateType(ff.field.ElemType())
			if ff.style != binder.StyleForm || !ff.explode {
				explode := ff.explode
				encoding[ff.name] = &openapi.Encoding{Style: string(ff.style), Explode: &explode}
			}
		}

		if ff.field.Required() {
			schema.Required = append(schema.Required, ff.name)
		}
	}

	mt := &openapi.MediaType{Schema: schema, Example: b.cfg.example}
	if len(encoding) > 0 {
		mt.Encoding = encoding
	}

	return map[string]*openapi.MediaType{b.documentedMediaType(): mt}
}

// RequestBody implements binder.BodyBinder.
func (b *FormBinder[T]) RequestBody(gen *openapi.SchemaGenerator) *openapi.RequestBody {
	return b.requestBody(b.Content(gen))
}
