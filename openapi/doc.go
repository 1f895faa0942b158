// Package openapi models OpenAPI 3.0.3 documents and converts Go types to
// schemas.
//
// See: https://spec.openapis.org/oas/v3.0.3
//
// # Schema Generation
//
// SchemaGenerator maps Go types to Schema objects. Named struct types become
// component schemas and are referenced with $ref; everything else is inlined:
//
//	gen := openapi.NewSchemaGenerator()
//	ref := gen.Generate(User{})    // {"$ref": "#/components/schemas/User"}
//	components := gen.Schemas()    // {"User": {...}}
//
// Type mapping:
//
//	bool                      -> boolean
//	int*, uint*               -> integer
//	float32, float64          -> number
//	string                    -> string
//	[]byte                    -> string (format: byte)
//	time.Time                 -> string (format: date-time)
//	uuid.UUID                 -> string (format: uuid)
//	encoding.TextMarshaler    -> string
//	[]T, [N]T                 -> array
//	map[string]T              -> object (additionalProperties: T)
//	*T                        -> T with nullable: true
//	*Struct                   -> allOf: [$ref], nullable: true
//	any                       -> {} (any value)
//
// Pointer fields and fields tagged omitempty are optional; all other fields
// are listed in required.
//
// # Struct Tags
//
// The json tag controls property names. The validate tag used by
// go-playground/validator is mapped to schema constraints where one exists:
//
//	type CreateUser struct {
//	    Name  string `json:"name" validate:"min=1,max=64"`
//	    Email string `json:"email" validate:"email"`
//	    Role  string `json:"role" validate:"oneof=admin user"`
//	    Age   int    `json:"age,omitempty" validate:"gte=0,lt=150"`
//	}
//
// The openapi tag sets keywords directly. Enum values are pipe separated:
//
//	Status string `json:"status" openapi:"description=Item state,enum=active|archived,example=active"`
//
// Supported openapi tag keys: description, example, format, minimum,
// maximum, exclusiveMinimum, exclusiveMaximum, minLength, maxLength,
// pattern, enum, deprecated, readOnly, writeOnly, title, multipleOf,
// minItems, maxItems, uniqueItems.
//
// # Custom Schemas
//
// Types implementing SchemaProvider supply their own schema, and Exampler
// attaches an example to a component:
//
//	func (UploadFile) OpenAPISchema() *openapi.Schema {
//	    return &openapi.Schema{Type: "string", Format: "binary"}
//	}
//
// Define registers a hand-written component under a fixed name.
//
// # Schema Naming
//
// Component names come from the Go type name. Generic instantiations are
// flattened ("Page[User]" becomes "PageUser"). When two types share a simple
// name, the later one is prefixed with its package name ("HttpClient"), and a
// numeric suffix resolves any remaining collision.
//
// # Serving
//
// JSONHandler and YAMLHandler serve a document produced by a Source and build
// it once. DocsHandler serves Swagger UI, RapiDoc or Redoc pointed at the
// JSON endpoint.
package openapi
