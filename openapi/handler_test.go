package openapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func testSource(calls *int) Source {
	return func() (*Document, error) {
		*calls++

		return &Document{
			OpenAPI: Version,
			Info:    Info{Title: "Test API", Version: "1.0.0"},
			Paths: map[string]*PathItem{
				"/items": {Get: &Operation{Responses: map[string]*Response{"200": {Description: "OK"}}}},
			},
		}, nil
	}
}

func serve(h http.Handler) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	return w
}

func TestJSONHandler(t *testing.T) {
	t.Run("serves document", func(t *testing.T) {
		var calls int
		w := serve(JSONHandler(testSource(&calls)))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var doc Document
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
		assert.Equal(t, "3.0.3", doc.OpenAPI)
		assert.Equal(t, "Test API", doc.Info.Title)
		assert.Contains(t, doc.Paths, "/items")
	})

	t.Run("document is built once", func(t *testing.T) {
		var calls int
		h := JSONHandler(testSource(&calls))

		w1 := serve(h)
		w2 := serve(h)
		assert.Equal(t, w1.Body.String(), w2.Body.String())
		assert.Equal(t, 1, calls)
	})

	t.Run("source error returns 500", func(t *testing.T) {
		h := JSONHandler(func() (*Document, error) { return nil, errors.New("boom") })

		w := serve(h)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), "failed to build OpenAPI document")
	})

	t.Run("source panic returns 500", func(t *testing.T) {
		h := JSONHandler(func() (*Document, error) { panic("bad route") })

		w := serve(h)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("marshal error returns 500", func(t *testing.T) {
		h := JSONHandler(func() (*Document, error) {
			return &Document{
				OpenAPI:    Version,
				Components: &Components{Examples: map[string]*Example{"bad": {Value: func() {}}}},
			}, nil
		})

		w := serve(h)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestYAMLHandler(t *testing.T) {
	var calls int
	h := YAMLHandler(testSource(&calls))

	w := serve(h)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/x-yaml", w.Header().Get("Content-Type"))

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, "3.0.3", doc["openapi"])

	serve(h)
	assert.Equal(t, 1, calls)
}

func TestDocsHandler(t *testing.T) {
	tests := []struct {
		name   string
		cfg    DocsConfig
		marker string
	}{
		{"swagger ui", DocsConfig{Title: "API", SpecURL: "/openapi.json"}, "swagger-ui-bundle.js"},
		{"rapidoc", DocsConfig{UI: DocsRapiDoc, Title: "API", SpecURL: "/openapi.json"}, "<rapi-doc"},
		{"redoc", DocsConfig{UI: DocsRedoc, Title: "API", SpecURL: "/openapi.json"}, "<redoc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(DocsHandler(tt.cfg))

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))

			body := w.Body.String()
			assert.True(t, strings.HasPrefix(body, "<!DOCTYPE html>"))
			assert.Contains(t, body, "</html>")
			assert.Contains(t, body, tt.marker)
			assert.Contains(t, body, `"/openapi.json"`)
		})
	}

	t.Run("swagger ui config in key order", func(t *testing.T) {
		w := serve(DocsHandler(DocsConfig{
			SpecURL:         "/openapi.json",
			SwaggerUIConfig: map[string]any{"layout": "BaseLayout", "deepLinking": true},
		}))

		assert.Contains(t, w.Body.String(), `dom_id: "#swagger-ui", deepLinking: true, layout: "BaseLayout"`)
	})

	t.Run("title is escaped", func(t *testing.T) {
		w := serve(DocsHandler(DocsConfig{Title: "<script>alert(1)</script>", SpecURL: "/openapi.json"}))

		body := w.Body.String()
		assert.NotContains(t, body, "<script>alert(1)</script>")
		assert.Contains(t, body, "&lt;script&gt;")
	})
}
