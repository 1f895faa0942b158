package openapi

import (
	"encoding"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Exampler can be implemented by types to provide an example value for the
// generated component schema.
//
//	func (u User) OpenAPIExample() any {
//	    return User{ID: "550e8400-e29b-41d4-a716-446655440000", Name: "Alice"}
//	}
type Exampler interface {
	OpenAPIExample() any
}

// SchemaProvider can be implemented by types that need a hand-written
// schema, for example file uploads rendered as binary strings.
type SchemaProvider interface {
	OpenAPISchema() *Schema
}

var (
	timeType           = reflect.TypeFor[time.Time]()
	textMarshalerType  = reflect.TypeFor[encoding.TextMarshaler]()
	schemaProviderType = reflect.TypeFor[SchemaProvider]()
)

// SchemaGenerator converts Go types to schemas and collects named struct
// types into component schemas referenced by $ref. A type is generated
// once per generator; the same reflect.Type always maps to the same name.
//
// See: https://spec.openapis.org/oas/v3.0.3#schema-object
type SchemaGenerator struct {
	schemas   map[string]*Schema
	visited   map[reflect.Type]bool
	typeNames map[reflect.Type]string
	nameTypes map[string]reflect.Type
}

// NewSchemaGenerator creates a new schema generator.
func NewSchemaGenerator() *SchemaGenerator {
	return &SchemaGenerator{
		schemas:   make(map[string]*Schema),
		visited:   make(map[reflect.Type]bool),
		typeNames: make(map[reflect.Type]string),
		nameTypes: make(map[string]reflect.Type),
	}
}

// Schemas returns the collected component schemas.
func (g *SchemaGenerator) Schemas() map[string]*Schema {
	return g.schemas
}

// Define registers a hand-written component schema under name and returns a
// reference to it. An existing schema with the same name is kept.
func (g *SchemaGenerator) Define(name string, schema *Schema) *Schema {
	if _, ok := g.schemas[name]; !ok {
		g.schemas[name] = schema
	}

	return RefTo(name)
}

// Generate produces a schema for the given Go value.
func (g *SchemaGenerator) Generate(v any) *Schema {
	if v == nil {
		return nil
	}

	if s, ok := v.(*Schema); ok {
		return s
	}

	return g.GenerateType(reflect.TypeOf(v))
}

// GenerateType produces a schema for t. Named struct types are stored as
// components and referenced; everything else is inlined.
func (g *SchemaGenerator) GenerateType(t reflect.Type) *Schema {
	if t == nil {
		return &Schema{}
	}

	nullable := false
	if t.Kind() == reflect.Pointer {
		nullable = true
		t = t.Elem()
	}

	if s := providedSchema(t); s != nil {
		if nullable {
			s.Nullable = true
		}

		return s
	}

	if t.Kind() == reflect.Struct && t != timeType {
		if name := g.schemaName(t); name != "" {
			if !g.visited[t] {
				g.visited[t] = true
				schema := g.structSchema(t)

				if ex, ok := reflect.New(t).Interface().(Exampler); ok {
					schema.Example = ex.OpenAPIExample()
				}

				g.schemas[name] = schema
			}

			ref := RefTo(name)
			if nullable {
				return &Schema{AllOf: []*Schema{ref}, Nullable: true}
			}

			return ref
		}
	}

	schema := g.inlineType(t)
	if nullable && schema != nil && schema.Ref == "" {
		schema.Nullable = true
	}

	return schema
}

func providedSchema(t reflect.Type) *Schema {
	if t.Kind() == reflect.Interface {
		return nil
	}

	switch {
	case t.Implements(schemaProviderType):
		return reflect.Zero(t).Interface().(SchemaProvider).OpenAPISchema()
	case reflect.PointerTo(t).Implements(schemaProviderType):
		return reflect.New(t).Interface().(SchemaProvider).OpenAPISchema()
	}

	return nil
}

func (g *SchemaGenerator) inlineType(t reflect.Type) *Schema {
	if t == timeType {
		return &Schema{Type: "string", Format: "date-time"}
	}

	if t.Kind() != reflect.String && reflect.PointerTo(t).Implements(textMarshalerType) {
		s := &Schema{Type: "string"}
		if t.Name() == "UUID" {
			s.Format = "uuid"
		}

		return s
	}

	switch t.Kind() {
	case reflect.Bool:
		return &Schema{Type: "boolean"}

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &Schema{Type: "integer"}

	case reflect.Float32, reflect.Float64:
		return &Schema{Type: "number"}

	case reflect.String:
		return &Schema{Type: "string"}

	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return &Schema{Type: "string", Format: "byte"}
		}

		return &Schema{Type: "array", Items: g.GenerateType(t.Elem())}

	case reflect.Array:
		return &Schema{Type: "array", Items: g.GenerateType(t.Elem())}

	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return &Schema{Type: "object"}
		}

		return &Schema{Type: "object", AdditionalProperties: g.GenerateType(t.Elem())}

	case reflect.Struct:
		return g.structSchema(t)

	case reflect.Interface:
		return &Schema{}
	}

	return nil
}

func (g *SchemaGenerator) structSchema(t reflect.Type) *Schema {
	schema := &Schema{
		Type:       "object",
		Title:      t.Name(),
		Properties: make(map[string]*Schema),
	}

	g.collectFields(t, schema, false)

	if len(schema.Properties) == 0 {
		schema.Properties = nil
	}

	return schema
}

// collectFields adds struct fields to schema. allOptional is set for
// pointer-embedded structs, whose fields may all be absent.
func (g *SchemaGenerator) collectFields(t reflect.Type, schema *Schema, allOptional bool) {
	for i := range t.NumField() {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		if field.Anonymous {
			jsonName, _ := parseJSONTag(field.Tag.Get("json"))
			if jsonName == "" {
				ft := field.Type
				isPtr := ft.Kind() == reflect.Pointer
				if isPtr {
					ft = ft.Elem()
				}

				if ft.Kind() == reflect.Struct {
					g.collectFields(ft, schema, allOptional || isPtr)
					continue
				}
			}
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}

		name, opts := parseJSONTag(jsonTag)
		if name == "" {
			name = field.Name
		}

		fieldSchema := g.GenerateType(field.Type)
		if fieldSchema == nil {
			continue
		}

		if fieldSchema.Ref == "" {
			applyValidateTag(fieldSchema, field.Tag.Get("validate"))
			applyOpenAPITag(fieldSchema, field.Tag.Get("openapi"))
		}

		if opts.stringEncode && fieldSchema.Ref == "" && len(fieldSchema.AllOf) == 0 {
			fieldSchema.Type = "string"
		}

		schema.Properties[name] = fieldSchema

		if !opts.omitempty && !allOptional && field.Type.Kind() != reflect.Pointer {
			schema.Required = append(schema.Required, name)
		}
	}
}

type jsonTagOpts struct {
	omitempty    bool
	stringEncode bool
}

func parseJSONTag(tag string) (string, jsonTagOpts) {
	if tag == "" {
		return "", jsonTagOpts{}
	}

	name, rest, _ := strings.Cut(tag, ",")

	return name, jsonTagOpts{
		omitempty:    strings.Contains(rest, "omitempty") || strings.Contains(rest, "omitzero"),
		stringEncode: strings.Contains(rest, "string"),
	}
}

// applyValidateTag maps the go-playground/validator tags that have a schema
// equivalent. Unknown tags are ignored.
func applyValidateTag(schema *Schema, tag string) {
	if tag == "" {
		return
	}

	sized := schema.Type == "string" || schema.Type == "array" || schema.Type == "object"

	for part := range strings.SplitSeq(tag, ",") {
		key, value, _ := strings.Cut(strings.TrimSpace(part), "=")
		if key == "dive" {
			return
		}

		switch key {
		case "min", "gte":
			applyLowerBound(schema, value, sized, false)
		case "gt":
			applyLowerBound(schema, value, sized, true)
		case "max", "lte":
			applyUpperBound(schema, value, sized, false)
		case "lt":
			applyUpperBound(schema, value, sized, true)
		case "len":
			applyLowerBound(schema, value, sized, false)
			applyUpperBound(schema, value, sized, false)
		case "oneof":
			for _, v := range strings.Fields(value) {
				schema.Enum = append(schema.Enum, parseExampleValue(schema, v))
			}
		case "email":
			schema.Format = "email"
		case "url", "uri", "http_url":
			schema.Format = "uri"
		case "uuid", "uuid4":
			schema.Format = "uuid"
		}
	}
}

func applyLowerBound(schema *Schema, value string, sized, exclusive bool) {
	if sized {
		n, err := strconv.Atoi(value)
		if err != nil {
			return
		}

		if exclusive {
			n++
		}

		switch schema.Type {
		case "string":
			schema.MinLength = &n
		case "array":
			schema.MinItems = &n
		case "object":
			schema.MinProperties = &n
		}

		return
	}

	if f, err := strconv.ParseFloat(value, 64); err == nil {
		schema.Minimum = &f
		schema.ExclusiveMinimum = exclusive
	}
}

func applyUpperBound(schema *Schema, value string, sized, exclusive bool) {
	if sized {
		n, err := strconv.Atoi(value)
		if err != nil {
			return
		}

		if exclusive {
			n--
		}

		switch schema.Type {
		case "string":
			schema.MaxLength = &n
		case "array":
			schema.MaxItems = &n
		case "object":
			schema.MaxProperties = &n
		}

		return
	}

	if f, err := strconv.ParseFloat(value, 64); err == nil {
		schema.Maximum = &f
		schema.ExclusiveMaximum = exclusive
	}
}

// applyOpenAPITag parses the `openapi` struct tag and applies its keys to
// the schema.
func applyOpenAPITag(schema *Schema, tag string) {
	if tag == "" {
		return
	}

	for part := range strings.SplitSeq(tag, ",") {
		key, value, hasValue := strings.Cut(part, "=")
		key = strings.TrimSpace(key)
		if hasValue {
			value = strings.TrimSpace(value)
		}

		switch key {
		case "description":
			schema.Description = value
		case "example":
			schema.Example = parseExampleValue(schema, value)
		case "format":
			schema.Format = value
		case "minimum":
			if v, err := strconv.ParseFloat(value, 64); err == nil {
				schema.Minimum = &v
			}
		case "maximum":
			if v, err := strconv.ParseFloat(value, 64); err == nil {
				schema.Maximum = &v
			}
		case "exclusiveMinimum":
			schema.ExclusiveMinimum = true
		case "exclusiveMaximum":
			schema.ExclusiveMaximum = true
		case "minLength":
			if v, err := strconv.Atoi(value); err == nil {
				schema.MinLength = &v
			}
		case "maxLength":
			if v, err := strconv.Atoi(value); err == nil {
				schema.MaxLength = &v
			}
		case "pattern":
			schema.Pattern = value
		case "enum":
			values := strings.Split(value, "|")
			schema.Enum = make([]any, len(values))
			for i, v := range values {
				schema.Enum[i] = parseExampleValue(schema, v)
			}
		case "deprecated":
			schema.Deprecated = true
		case "readOnly":
			schema.ReadOnly = true
		case "writeOnly":
			schema.WriteOnly = true
		case "title":
			schema.Title = value
		case "multipleOf":
			if v, err := strconv.ParseFloat(value, 64); err == nil {
				schema.MultipleOf = &v
			}
		case "minItems":
			if v, err := strconv.Atoi(value); err == nil {
				schema.MinItems = &v
			}
		case "maxItems":
			if v, err := strconv.Atoi(value); err == nil {
				schema.MaxItems = &v
			}
		case "uniqueItems":
			schema.UniqueItems = true
		}
	}
}

// parseExampleValue converts a tag value to the Go type matching the
// schema type.
func parseExampleValue(schema *Schema, value string) any {
	switch schema.Type {
	case "integer":
		if v, err := strconv.ParseInt(value, 10, 64); err == nil {
			return v
		}
	case "number":
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			return v
		}
	case "boolean":
		if v, err := strconv.ParseBool(value); err == nil {
			return v
		}
	}

	return value
}

// schemaName returns a unique component name for t. When two types from
// different packages share a simple name, the later one is prefixed with its
// package name ("ApiUser"); a numeric suffix resolves remaining collisions.
func (g *SchemaGenerator) schemaName(t reflect.Type) string {
	simple := sanitizeSchemaName(t.Name())
	if simple == "" || t.PkgPath() == "" {
		return ""
	}

	if name, ok := g.typeNames[t]; ok {
		return name
	}

	name := simple
	if existing, ok := g.nameTypes[name]; ok && existing != t {
		name = pkgPrefix(t.PkgPath()) + simple
		if existing, ok := g.nameTypes[name]; ok && existing != t {
			base := name
			for i := 2; ; i++ {
				candidate := base + strconv.Itoa(i)
				if _, ok := g.nameTypes[candidate]; !ok {
					name = candidate
					break
				}
			}
		}
	}

	g.typeNames[t] = name
	g.nameTypes[name] = t

	return name
}

// pkgPrefix capitalizes the last segment of a package path ("net/http" -> "Http").
func pkgPrefix(pkgPath string) string {
	if idx := strings.LastIndexByte(pkgPath, '/'); idx >= 0 {
		pkgPath = pkgPath[idx+1:]
	}

	if len(pkgPath) == 0 {
		return ""
	}

	pkgPath = strings.ReplaceAll(pkgPath, "-", "_")
	pkgPath = strings.ReplaceAll(pkgPath, ".", "_")

	return strings.ToUpper(pkgPath[:1]) + pkgPath[1:]
}

// sanitizeSchemaName turns generic names like "Page[pkg.User]" into
// "PageUser" and "Page[[]pkg.User]" into "PageUserList".
func sanitizeSchemaName(name string) string {
	idx := strings.IndexByte(name, '[')
	if idx < 0 {
		return name
	}

	base := name[:idx]
	inner := name[idx+1 : len(name)-1]

	isList := strings.HasPrefix(inner, "[]")
	inner = strings.TrimPrefix(inner, "[]")

	if dot := strings.LastIndexByte(inner, '.'); dot >= 0 {
		inner = inner[dot+1:]
	}

	result := base + inner
	if isList {
		result += "List"
	}

	return result
}
