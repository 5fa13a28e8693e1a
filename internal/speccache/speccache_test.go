package speccache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

const specDoc = `{"servers": [{"url": "http://svc.local/api"}], "paths": {"/things/": {"get": {}}}}`

func TestGet_FetchesOnce(t *testing.T) {
	var fetches int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&fetches, 1)
		_, _ = w.Write([]byte(specDoc))
	}))
	defer srv.Close()

	c := New(srv.Client())

	for i := 0; i < 3; i++ {
		doc, err := c.Get(context.Background(), srv.URL)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if doc.BaseURL != "http://svc.local/api" {
			t.Errorf("wrong base url: %s", doc.BaseURL)
		}
	}
	if n := atomic.LoadInt32(&fetches); n != 1 {
		t.Errorf("expected 1 fetch, got %d", n)
	}
}

func TestGet_ConcurrentMissesCoalesce(t *testing.T) {
	var fetches int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&fetches, 1)
		_, _ = w.Write([]byte(specDoc))
	}))
	defer srv.Close()

	c := New(srv.Client())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Get(context.Background(), srv.URL); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := atomic.LoadInt32(&fetches); n != 1 {
		t.Errorf("expected 1 fetch under concurrency, got %d", n)
	}
}

func TestGet_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.Client())
	if _, err := c.Get(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error for non-200 spec response")
	}
}

func TestGet_UnreachableURLNamedInError(t *testing.T) {
	c := New(http.DefaultClient)
	url := "http://127.0.0.1:1/schema"
	_, err := c.Get(context.Background(), url)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), url) {
		t.Errorf("error should name the schema URL: %v", err)
	}
}

func TestGet_InvalidDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>not a spec</html>`))
	}))
	defer srv.Close()

	c := New(srv.Client())
	if _, err := c.Get(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error for non-JSON spec")
	}
}
