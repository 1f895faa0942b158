package openapi

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// DocsUI selects which interactive documentation UI to serve.
type DocsUI int

const (
	DocsSwaggerUI DocsUI = iota
	DocsRapiDoc
	DocsRedoc
)

// Source returns the document to serve. It is called at most once per
// handler.
type Source func() (*Document, error)

// MarshalJSON renders doc as indented JSON.
func MarshalJSON(doc *Document) ([]byte, error) {
	return json.MarshalIndent(doc, "", "  ")
}

// MarshalYAML renders doc as YAML. Keys keep the JSON field names and
// order, so both encodings describe the same document.
func MarshalYAML(doc *Document) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}

	blockStyle(&node)

	return yaml.Marshal(&node)
}

// blockStyle clears the flow and quoting styles that JSON input produces.
func blockStyle(n *yaml.Node) {
	n.Style &^= yaml.FlowStyle | yaml.DoubleQuotedStyle
	for _, c := range n.Content {
		blockStyle(c)
	}
}

// JSONHandler serves the document as JSON.
func JSONHandler(src Source) http.Handler {
	return cachedHandler(src, "application/json", MarshalJSON)
}

// YAMLHandler serves the document as YAML.
func YAMLHandler(src Source) http.Handler {
	return cachedHandler(src, "application/x-yaml", MarshalYAML)
}

func cachedHandler(src Source, contentType string, marshal func(*Document) ([]byte, error)) http.Handler {
	var (
		once     sync.Once
		data     []byte
		buildErr error
	)

	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		once.Do(func() {
			defer func() {
				if rv := recover(); rv != nil {
					buildErr = fmt.Errorf("%v", rv)
				}
			}()

			doc, err := src()
			if err != nil {
				buildErr = err
				return
			}

			data, buildErr = marshal(doc)
		})

		if buildErr != nil {
			http.Error(w, "failed to build OpenAPI document", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	})
}

// DocsConfig configures DocsHandler.
type DocsConfig struct {
	// UI selects the interactive docs UI (default: DocsSwaggerUI).
	UI DocsUI

	// Title is the HTML page title.
	Title string

	// SpecURL is where the UI fetches the document from.
	SpecURL string

	// SwaggerUIConfig adds SwaggerUIBundle options, rendered in key order.
	SwaggerUIConfig map[string]any
}

// DocsHandler serves an HTML page rendering the document at cfg.SpecURL.
func DocsHandler(cfg DocsConfig) http.Handler {
	var page string

	switch cfg.UI {
	case DocsRapiDoc:
		page = rapidocTemplate(cfg.Title, cfg.SpecURL)
	case DocsRedoc:
		page = redocTemplate(cfg.Title, cfg.SpecURL)
	default:
		page = swaggerUITemplate(cfg.Title, cfg.SpecURL, cfg.SwaggerUIConfig)
	}

	data := []byte(page)

	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	})
}

func swaggerUITemplate(title, specPath string, config map[string]any) string {
	var extra string
	if len(config) > 0 {
		keys := make([]string, 0, len(config))
		for k := range config {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var buf strings.Builder
		for _, k := range keys {
			v, err := json.Marshal(config[k])
			if err != nil {
				continue
			}
			fmt.Fprintf(&buf, ", %s: %s", k, v)
		}
		extra = buf.String()
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>%s</title>
<link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist/swagger-ui.css">
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist/swagger-ui-bundle.js"></script>
<script>
SwaggerUIBundle({url: %q, dom_id: "#swagger-ui"%s});
</script>
</body>
</html>`, html.EscapeString(title), specPath, extra)
}

func rapidocTemplate(title, specPath string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>%s</title>
<script type="module" src="https://unpkg.com/rapidoc/dist/rapidoc-min.js"></script>
</head>
<body>
<rapi-doc spec-url=%q></rapi-doc>
</body>
</html>`, html.EscapeString(title), specPath)
}

func redocTemplate(title, specPath string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>%s</title>
</head>
<body>
<redoc spec-url=%q></redoc>
<script src="https://cdn.redoc.ly/redoc/latest/bundles/redoc.standalone.js"></script>
</body>
</html>`, html.EscapeString(title), specPath)
}
