package main

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	meshgateway "github.com/ferro-labs/mesh-gateway"
	"github.com/ferro-labs/mesh-gateway/internal/logging"
	"github.com/ferro-labs/mesh-gateway/internal/upstream"
)

// maxUploadMemory bounds the in-memory portion of multipart parsing.
const maxUploadMemory = 32 << 20

// newRouter builds the HTTP router.
func newRouter(gw *meshgateway.Gateway, corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(logging.Middleware)
	r.Use(corsMiddleware(corsOrigins...))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Handle("/metrics", promhttp.Handler())

	forward := forwardHandler(gw)
	r.HandleFunc("/{service}/{model}/", forward)
	r.HandleFunc("/{service}/{model}/{pk}/", forward)

	return r
}

// forwardHandler adapts an HTTP request into a gateway Inbound and writes
// the gateway's response back.
func forwardHandler(gw *meshgateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, err := inboundFromHTTP(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		resp, err := gw.Perform(r.Context(), in)
		if err != nil {
			logging.FromContext(r.Context()).Error("request failed",
				"service", in.Service, "model", in.Model, "error", err.Error())
			resp = meshgateway.ErrorResponse(err)
		}
		writeResponse(w, resp)
	}
}

// inboundFromHTTP splits the request into the gateway's routing parts and
// captures the body in the representation the forwarding rules need.
func inboundFromHTTP(r *http.Request) (*meshgateway.Inbound, error) {
	in := &meshgateway.Inbound{
		Service:       chi.URLParam(r, "service"),
		Model:         chi.URLParam(r, "model"),
		PK:            chi.URLParam(r, "pk"),
		Method:        r.Method,
		Query:         r.URL.Query(),
		Authorization: r.Header.Get("Authorization"),
	}

	mediaType := r.Header.Get("Content-Type")
	if mediaType != "" {
		if mt, _, err := mime.ParseMediaType(mediaType); err == nil {
			mediaType = mt
		}
	}
	in.ContentType = mediaType

	switch mediaType {
	case "application/json":
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		in.JSONBody = body
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
			return nil, err
		}
		in.Form = url.Values(r.MultipartForm.Value)
		for field, headers := range r.MultipartForm.File {
			for _, fh := range headers {
				f, err := fh.Open()
				if err != nil {
					return nil, err
				}
				data, err := io.ReadAll(f)
				_ = f.Close()
				if err != nil {
					return nil, err
				}
				in.Files = append(in.Files, upstream.File{
					Field:       field,
					Name:        fh.Filename,
					ContentType: fh.Header.Get("Content-Type"),
					Data:        data,
				})
			}
		}
	default:
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
		in.Form = r.PostForm
	}
	return in, nil
}

func writeResponse(w http.ResponseWriter, resp *meshgateway.GatewayResponse) {
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
