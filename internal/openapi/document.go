// Package openapi parses upstream OpenAPI/Swagger documents into the minimal
// structure the gateway needs: the operation table (method + templated path)
// and the base URL calls are issued against. All other OpenAPI semantics are
// advisory and ignored.
package openapi

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Operation is one callable upstream operation.
type Operation struct {
	// Method is the canonical HTTP method from the document, lower-case.
	Method string
	// Path is the templated path, e.g. "/products/{id}/".
	Path string
}

// Document is a parsed service description.
type Document struct {
	// BaseURL is the absolute URL operations are resolved against.
	BaseURL string

	ops map[string]Operation
}

var httpMethods = map[string]struct{}{
	"get": {}, "put": {}, "post": {}, "delete": {},
	"options": {}, "head": {}, "patch": {}, "trace": {},
}

// Parse decodes an OpenAPI 3 or Swagger 2 JSON document. schemaURL is the
// URL the document was fetched from; it anchors relative server URLs and
// supplies the origin when the document declares none.
func Parse(data []byte, schemaURL string) (*Document, error) {
	var raw struct {
		Swagger  string `json:"swagger"`
		OpenAPI  string `json:"openapi"`
		Host     string `json:"host"`
		BasePath string `json:"basePath"`
		Schemes  []string
		Servers  []struct {
			URL string `json:"url"`
		} `json:"servers"`
		Paths map[string]map[string]json.RawMessage `json:"paths"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse OpenAPI document: %w", err)
	}
	if len(raw.Paths) == 0 {
		return nil, fmt.Errorf("parse OpenAPI document: no paths declared")
	}

	base, err := resolveBaseURL(schemaURL, raw.Servers, raw.Schemes, raw.Host, raw.BasePath)
	if err != nil {
		return nil, err
	}

	doc := &Document{BaseURL: base, ops: make(map[string]Operation)}
	for path, item := range raw.Paths {
		for method := range item {
			m := strings.ToLower(method)
			if _, ok := httpMethods[m]; !ok {
				// Path-item keys like "parameters" are not operations.
				continue
			}
			doc.ops[opKey(m, path)] = Operation{Method: m, Path: path}
		}
	}
	return doc, nil
}

// Operation looks up the operation registered for (method, templated path).
func (d *Document) Operation(method, path string) (Operation, bool) {
	op, ok := d.ops[opKey(strings.ToLower(method), path)]
	return op, ok
}

func opKey(method, path string) string {
	return method + " " + path
}

func resolveBaseURL(schemaURL string, servers []struct {
	URL string `json:"url"`
}, schemes []string, host, basePath string) (string, error) {
	origin, err := url.Parse(schemaURL)
	if err != nil {
		return "", fmt.Errorf("parse schema URL %q: %w", schemaURL, err)
	}

	// OpenAPI 3: first servers entry, resolved against the schema URL when
	// relative.
	if len(servers) > 0 && servers[0].URL != "" {
		ref, err := url.Parse(servers[0].URL)
		if err != nil {
			return "", fmt.Errorf("parse server URL %q: %w", servers[0].URL, err)
		}
		return origin.ResolveReference(ref).String(), nil
	}

	// Swagger 2: scheme + host + basePath.
	if host != "" {
		scheme := origin.Scheme
		if len(schemes) > 0 {
			scheme = schemes[0]
		}
		if scheme == "" {
			scheme = "https"
		}
		return scheme + "://" + host + basePath, nil
	}

	// Neither declared: the document's origin.
	return origin.Scheme + "://" + origin.Host + basePath, nil
}
