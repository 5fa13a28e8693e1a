package meshgateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ferro-labs/mesh-gateway/datamesh"
	"github.com/ferro-labs/mesh-gateway/internal/openapi"
	"github.com/ferro-labs/mesh-gateway/internal/upstream"
	"github.com/ferro-labs/mesh-gateway/registry"
)

// GatewayResponse is what the gateway hands back to its transport layer.
type GatewayResponse struct {
	Status int
	Header http.Header
	Body   []byte
}

// errorResponse builds the JSON error surface used for gateway-originated
// failures: {"detail": ...}.
func errorResponse(status int, detail string) *GatewayResponse {
	body, _ := json.Marshal(map[string]string{"detail": detail})
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	return &GatewayResponse{Status: status, Header: h, Body: body}
}

// ErrorResponse maps an error returned by Perform onto an HTTP response.
// Upstream application errors never reach this function; they come back as
// ordinary responses with the upstream status.
func ErrorResponse(err error) *GatewayResponse {
	switch {
	case registry.IsNotFound(err), openapi.IsOperationNotFound(err):
		return errorResponse(http.StatusNotFound, err.Error())
	case IsGatewayError(err):
		return errorResponse(http.StatusBadGateway, err.Error())
	default:
		var ce *datamesh.ConfigError
		if errors.As(err, &ce) {
			return errorResponse(http.StatusInternalServerError, ce.Error())
		}
		return errorResponse(http.StatusInternalServerError, err.Error())
	}
}

// assemble turns an upstream result into the outgoing response. Status and
// headers are always the primary upstream response's; a joined payload is
// re-serialised with the stable encoder, everything else passes through with
// the upstream body untouched.
func assemble(res *upstream.Result, joined bool) (*GatewayResponse, error) {
	h := forwardedHeader(res.Header)

	if !joined {
		return &GatewayResponse{Status: res.Status, Header: h, Body: res.Body}, nil
	}

	body, err := res.Payload.Encode()
	if err != nil {
		return nil, gatewayErrorf(err, "serialize joined response")
	}
	h.Set("Content-Type", "application/json")
	return &GatewayResponse{Status: res.Status, Header: h, Body: body}, nil
}

// Connection-level headers describe the upstream hop, not the response, and
// the body may be re-serialised, so length and framing headers cannot be
// trusted either.
var hopByHopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Te", "Trailer", "Transfer-Encoding", "Upgrade", "Content-Length",
}

// forwardedHeader clones the primary upstream headers minus the hop-by-hop
// set, so pagination links, counts, and Location headers reach the caller.
func forwardedHeader(src http.Header) http.Header {
	h := src.Clone()
	if h == nil {
		h = make(http.Header)
	}
	for _, k := range hopByHopHeaders {
		h.Del(k)
	}
	return h
}
