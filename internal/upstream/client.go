// Package upstream issues HTTP calls to the services behind the gateway and
// normalizes their responses into status, headers, and a decoded payload.
package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ferro-labs/mesh-gateway/internal/metrics"
	"github.com/ferro-labs/mesh-gateway/payload"
)

// Query parameter keys private to the gateway, never forwarded upstream.
var privateParams = []string{"aggregate", "join"}

// File is one uploaded part forwarded to the upstream service.
type File struct {
	// Field is the multipart form field name.
	Field string
	// Name is the original filename.
	Name string
	// ContentType is the part's declared content type.
	ContentType string
	Data        []byte
}

// Request describes one outgoing upstream call.
type Request struct {
	Method string
	// URL is the fully resolved operation URL, pk already substituted.
	URL string
	// Authorization is propagated verbatim from the inbound request.
	Authorization string
	// ContentType is the inbound request's media type.
	ContentType string
	// Query is the inbound query; gateway-private keys are stripped before
	// forwarding.
	Query url.Values
	// JSONBody is the raw inbound body when ContentType is application/json.
	JSONBody []byte
	// Form is the inbound form body for non-JSON writes.
	Form url.Values
	// Files are uploaded parts attached to non-JSON writes.
	Files []File
}

// Result is a normalized upstream response. Non-2xx statuses are results,
// not errors; only transport-level failures surface as errors.
type Result struct {
	Payload payload.Value
	Body    []byte
	Status  int
	Header  http.Header
}

// Client issues upstream calls.
type Client struct {
	http *http.Client
}

// NewClient creates a client with the given per-call timeout. The inbound
// request deadline still applies through context.
func NewClient(timeout time.Duration) *Client {
	return &Client{http: &http.Client{Timeout: timeout}}
}

// NewClientWith uses a caller-supplied http.Client.
func NewClientWith(hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{http: hc}
}

// CleanQuery returns a copy of q with the gateway-private keys removed.
func CleanQuery(q url.Values) url.Values {
	cleaned := make(url.Values, len(q))
	for k, vs := range q {
		cleaned[k] = append([]string(nil), vs...)
	}
	for _, k := range privateParams {
		cleaned.Del(k)
	}
	return cleaned
}

// Do performs the call. Body encoding rules:
//
//   - application/json inbound: the raw JSON body is forwarded.
//   - other POST/PUT/PATCH: the union of cleaned query parameters and the
//     inbound form is form-encoded; uploaded files become multipart parts
//     with their original filename and content type.
//   - GET/DELETE: no body, parameters on the query string only.
func (c *Client) Do(ctx context.Context, r Request) (*Result, error) {
	method := strings.ToUpper(r.Method)
	cleaned := CleanQuery(r.Query)

	body, contentType, err := encodeBody(method, r, cleaned)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, r.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request for %s: %w", r.URL, err)
	}
	req.URL.RawQuery = cleaned.Encode()
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if r.Authorization != "" {
		req.Header.Set("Authorization", r.Authorization)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues(method, "error").Inc()
		return nil, fmt.Errorf(
			"an error occurred when redirecting the request to or receiving the response from the service (origin %T: %v)",
			err, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues(method, "error").Inc()
		return nil, fmt.Errorf(
			"an error occurred when redirecting the request to or receiving the response from the service (origin %T: %v)",
			err, err)
	}
	metrics.UpstreamRequests.WithLabelValues(method, statusClass(resp.StatusCode)).Inc()

	return &Result{
		Payload: payload.Decode(raw),
		Body:    raw,
		Status:  resp.StatusCode,
		Header:  resp.Header,
	}, nil
}

func encodeBody(method string, r Request, cleaned url.Values) (io.Reader, string, error) {
	if strings.HasPrefix(r.ContentType, "application/json") && len(r.JSONBody) > 0 {
		return bytes.NewReader(r.JSONBody), "application/json", nil
	}

	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		// GET and DELETE carry no body.
		return nil, "", nil
	}

	// Union of cleaned query parameters and the form body; form values win
	// on key collision.
	merged := make(url.Values, len(cleaned)+len(r.Form))
	for k, vs := range cleaned {
		merged[k] = append([]string(nil), vs...)
	}
	for k, vs := range r.Form {
		merged[k] = append([]string(nil), vs...)
	}

	if len(r.Files) == 0 {
		if len(merged) == 0 {
			return nil, "", nil
		}
		return strings.NewReader(merged.Encode()), "application/x-www-form-urlencoded", nil
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, vs := range merged {
		for _, v := range vs {
			if err := mw.WriteField(k, v); err != nil {
				return nil, "", fmt.Errorf("encode form field %q: %w", k, err)
			}
		}
	}
	for _, f := range r.Files {
		hdr := make(map[string][]string)
		hdr["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name=%q; filename=%q`, f.Field, f.Name)}
		if f.ContentType != "" {
			hdr["Content-Type"] = []string{f.ContentType}
		}
		part, err := mw.CreatePart(hdr)
		if err != nil {
			return nil, "", fmt.Errorf("encode file part %q: %w", f.Name, err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", fmt.Errorf("write file part %q: %w", f.Name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("finalize multipart body: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "other"
	}
}
