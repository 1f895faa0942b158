package openapi

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDocumentJSON(t *testing.T) {
	t.Run("minimal document keeps paths", func(t *testing.T) {
		doc := Document{
			OpenAPI: Version,
			Info:    Info{Title: "Test API", Version: "1.0.0"},
			Paths:   map[string]*PathItem{},
		}

		data, err := json.Marshal(doc)
		require.NoError(t, err)
		assert.JSONEq(t, `{"openapi":"3.0.3","info":{"title":"Test API","version":"1.0.0"},"paths":{}}`, string(data))
	})

	t.Run("operation always has responses", func(t *testing.T) {
		data, err := json.Marshal(Operation{OperationID: "op"})
		require.NoError(t, err)
		assert.JSONEq(t, `{"operationId":"op","responses":null}`, string(data))
	})

	t.Run("components omitted when nil", func(t *testing.T) {
		data, err := json.Marshal(Document{OpenAPI: Version})
		require.NoError(t, err)
		assert.NotContains(t, string(data), "components")
	})
}

func TestSchemaJSON(t *testing.T) {
	ptr := func(v float64) *float64 { return &v }
	n := func(v int) *int { return &v }

	tests := []struct {
		name     string
		schema   Schema
		expected string
	}{
		{"ref", *RefTo("User"), `{"$ref":"#/components/schemas/User"}`},
		{"nullable", Schema{Type: "string", Nullable: true}, `{"type":"string","nullable":true}`},
		{
			"nullable ref",
			Schema{AllOf: []*Schema{RefTo("User")}, Nullable: true},
			`{"allOf":[{"$ref":"#/components/schemas/User"}],"nullable":true}`,
		},
		{
			"exclusive bounds are booleans",
			Schema{Type: "integer", Minimum: ptr(0), ExclusiveMinimum: true, Maximum: ptr(10)},
			`{"type":"integer","minimum":0,"exclusiveMinimum":true,"maximum":10}`,
		},
		{
			"array",
			Schema{Type: "array", Items: &Schema{Type: "integer"}, MinItems: n(1)},
			`{"type":"array","items":{"type":"integer"},"minItems":1}`,
		},
		{"empty schema", Schema{}, `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.schema)
			require.NoError(t, err)
			assert.JSONEq(t, tt.expected, string(data))
		})
	}
}

func TestSecurityJSON(t *testing.T) {
	t.Run("requirement without scopes", func(t *testing.T) {
		data, err := json.Marshal([]SecurityRequirement{{"APIKey": {}}})
		require.NoError(t, err)
		assert.JSONEq(t, `[{"APIKey":[]}]`, string(data))
	})

	t.Run("oauth2 flow always has scopes", func(t *testing.T) {
		scheme := SecurityScheme{
			Type: "oauth2",
			Flows: &OAuthFlows{
				Password: &OAuthFlow{TokenURL: "/token", Scopes: map[string]string{}},
			},
		}

		data, err := json.Marshal(scheme)
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"oauth2","flows":{"password":{"tokenUrl":"/token","scopes":{}}}}`, string(data))
	})

	t.Run("api key", func(t *testing.T) {
		data, err := json.Marshal(SecurityScheme{Type: "apiKey", Name: "key", In: "header"})
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"apiKey","name":"key","in":"header"}`, string(data))
	})
}

func TestParameterJSON(t *testing.T) {
	explode := false
	p := Parameter{
		Name:     "id",
		In:       "path",
		Required: true,
		Style:    "simple",
		Explode:  &explode,
		Schema:   &Schema{Type: "integer"},
	}

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"id","in":"path","required":true,"style":"simple","explode":false,"schema":{"type":"integer"}}`, string(data))
}

func TestMarshalJSON(t *testing.T) {
	doc := &Document{OpenAPI: Version, Info: Info{Title: "API", Version: "1"}, Paths: map[string]*PathItem{}}

	data, err := MarshalJSON(doc)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "{\n  \"openapi\""))
}

func TestMarshalYAML(t *testing.T) {
	doc := &Document{
		OpenAPI: Version,
		Info:    Info{Title: "API", Version: "1.0"},
		Paths: map[string]*PathItem{
			"/items/{id}": {
				Get: &Operation{
					OperationID: "get_item",
					Parameters: []*Parameter{
						{Name: "id", In: "path", Required: true, Schema: &Schema{Type: "integer"}},
					},
					Responses: map[string]*Response{
						"200": {Description: "Successful Response"},
					},
				},
			},
		},
	}

	data, err := MarshalYAML(doc)
	require.NoError(t, err)

	out := string(data)
	assert.True(t, strings.HasPrefix(out, "openapi: 3.0.3\n"))
	assert.Contains(t, out, "operationId: get_item")
	assert.NotContains(t, out, `"get_item"`)

	t.Run("ambiguous scalars stay strings", func(t *testing.T) {
		var parsed struct {
			Info struct {
				Version string `yaml:"version"`
			} `yaml:"info"`
			Paths map[string]map[string]struct {
				Responses map[string]any `yaml:"responses"`
			} `yaml:"paths"`
		}

		require.NoError(t, yaml.Unmarshal(data, &parsed))
		assert.Equal(t, "1.0", parsed.Info.Version)
		assert.Contains(t, parsed.Paths["/items/{id}"]["get"].Responses, "200")
	})

	t.Run("keys keep json order", func(t *testing.T) {
		assert.Less(t, strings.Index(out, "openapi:"), strings.Index(out, "info:"))
		assert.Less(t, strings.Index(out, "info:"), strings.Index(out, "paths:"))
	})
}
