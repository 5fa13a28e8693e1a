package meshgateway

import (
	"errors"
	"fmt"
)

// GatewayError reports a failure of the gateway itself while talking to an
// upstream service: an unreachable or invalid OpenAPI document, or a
// transport-level failure on the forwarded call. Upstream application errors
// (4xx/5xx responses) are not GatewayErrors; they pass through as responses.
type GatewayError struct {
	Detail string
	Err    error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return e.Detail + ": " + e.Err.Error()
	}
	return e.Detail
}

func (e *GatewayError) Unwrap() error { return e.Err }

// IsGatewayError reports whether err is a GatewayError.
func IsGatewayError(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge)
}

func gatewayErrorf(err error, format string, args ...any) *GatewayError {
	return &GatewayError{Detail: fmt.Sprintf(format, args...), Err: err}
}
