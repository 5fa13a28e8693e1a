package openapi

import (
	"testing"
)

const openapi3Doc = `{
	"openapi": "3.0.0",
	"servers": [{"url": "http://products.local/api"}],
	"paths": {
		"/products/": {
			"get": {}, "post": {},
			"parameters": [{"name": "page", "in": "query"}]
		},
		"/products/{id}/": {"get": {}, "put": {}, "delete": {}},
		"/orders/{uuid}/": {"get": {}}
	}
}`

const swagger2Doc = `{
	"swagger": "2.0",
	"host": "orders.local",
	"basePath": "/api",
	"schemes": ["https"],
	"paths": {"/orders/": {"get": {}}}
}`

func TestParse_OpenAPI3BaseURL(t *testing.T) {
	doc, err := Parse([]byte(openapi3Doc), "http://products.local/api/schema")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.BaseURL != "http://products.local/api" {
		t.Errorf("wrong base url: %s", doc.BaseURL)
	}
}

func TestParse_Swagger2BaseURL(t *testing.T) {
	doc, err := Parse([]byte(swagger2Doc), "http://orders.local/schema")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.BaseURL != "https://orders.local/api" {
		t.Errorf("wrong base url: %s", doc.BaseURL)
	}
}

func TestParse_FallbackToSchemaOrigin(t *testing.T) {
	doc, err := Parse([]byte(`{"paths": {"/things/": {"get": {}}}}`), "http://things.local/api/schema")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.BaseURL != "http://things.local" {
		t.Errorf("wrong base url: %s", doc.BaseURL)
	}
}

func TestParse_RelativeServerURL(t *testing.T) {
	doc, err := Parse([]byte(`{"servers": [{"url": "/api/v2"}], "paths": {"/x/": {"get": {}}}}`),
		"http://svc.local/schema")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.BaseURL != "http://svc.local/api/v2" {
		t.Errorf("wrong base url: %s", doc.BaseURL)
	}
}

func TestParse_Errors(t *testing.T) {
	if _, err := Parse([]byte(`not json`), "http://x.local/schema"); err == nil {
		t.Error("expected error for non-JSON document")
	}
	if _, err := Parse([]byte(`{"openapi": "3.0.0"}`), "http://x.local/schema"); err == nil {
		t.Error("expected error for document without paths")
	}
}

func TestParse_SkipsNonOperationKeys(t *testing.T) {
	doc, err := Parse([]byte(openapi3Doc), "http://products.local/api/schema")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := doc.Operation("parameters", "/products/"); ok {
		t.Error("path-item 'parameters' key must not register as an operation")
	}
}

func TestResolve(t *testing.T) {
	doc, err := Parse([]byte(openapi3Doc), "http://products.local/api/schema")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name     string
		method   string
		model    string
		pk       string
		wantPath string
		wantErr  bool
	}{
		{"list", "GET", "products", "", "/products/", false},
		{"detail by id", "GET", "products", "42", "/products/42/", false},
		{"detail by uuid", "GET", "orders", "a2b93dbe-2380-4c2e-87f1-0bd0bbd2acdc",
			"/orders/a2b93dbe-2380-4c2e-87f1-0bd0bbd2acdc/", false},
		{"uppercase model folded", "GET", "Products", "", "/products/", false},
		{"unknown model", "GET", "customers", "", "", true},
		{"method not declared", "PATCH", "products", "42", "", true},
		{"id on uuid-only endpoint", "GET", "orders", "42", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, err := doc.Resolve(tt.method, tt.model, tt.pk)
			if tt.wantErr {
				if !IsOperationNotFound(err) {
					t.Fatalf("expected OperationNotFoundError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if op.Path != tt.wantPath {
				t.Errorf("got path %q, want %q", op.Path, tt.wantPath)
			}
			if op.Method != "get" {
				t.Errorf("method not canonicalized: %q", op.Method)
			}
		})
	}
}

func TestIsCanonicalUUID(t *testing.T) {
	tests := []struct {
		s    string
		want bool
	}{
		{"a2b93dbe-2380-4c2e-87f1-0bd0bbd2acdc", true},
		{"A2B93DBE-2380-4C2E-87F1-0BD0BBD2ACDC", true},
		{"42", false},
		{"", false},
		{"a2b93dbe23804c2e87f10bd0bbd2acdc", false},
		{"urn:uuid:a2b93dbe-2380-4c2e-87f1-0bd0bbd2acdc", false},
		{"{a2b93dbe-2380-4c2e-87f1-0bd0bbd2acdc}", false},
		{"a2b93dbe-2380-4c2e-87f1-0bd0bbd2acdg", false},
	}
	for _, tt := range tests {
		if got := IsCanonicalUUID(tt.s); got != tt.want {
			t.Errorf("IsCanonicalUUID(%q) = %v, want %v", tt.s, got, tt.want)
		}
	}
}
