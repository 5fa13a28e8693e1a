package openapi

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// OperationNotFoundError reports that a document declares no operation for
// the inbound method and path.
type OperationNotFoundError struct {
	Method string
	Path   string
}

func (e *OperationNotFoundError) Error() string {
	return fmt.Sprintf("endpoint not found: %s %s", strings.ToUpper(e.Method), e.Path)
}

// IsOperationNotFound reports whether err is an OperationNotFoundError.
func IsOperationNotFound(err error) bool {
	var nf *OperationNotFoundError
	return errors.As(err, &nf)
}

// ResolvedOp is an operation resolved for a concrete inbound request.
type ResolvedOp struct {
	// Method is the canonical method from the document, lower-case.
	Method string
	// Path is the operation path with the pk placeholder substituted.
	Path string
}

// Resolve maps an inbound (method, model, pk) onto an operation of the
// document. The inbound path template is:
//
//	/{model}/          when pk is empty
//	/{model}/{uuid}/   when pk is a canonical UUID
//	/{model}/{id}/     otherwise
func (d *Document) Resolve(method, model, pk string) (ResolvedOp, error) {
	model = strings.ToLower(model)

	path := "/" + model + "/"
	placeholder := ""
	if pk != "" {
		placeholder = "id"
		if IsCanonicalUUID(pk) {
			placeholder = "uuid"
		}
		path = "/" + model + "/{" + placeholder + "}/"
	}

	op, ok := d.Operation(method, path)
	if !ok {
		return ResolvedOp{}, &OperationNotFoundError{Method: method, Path: path}
	}

	concrete := op.Path
	if placeholder != "" {
		concrete = strings.Replace(concrete, "{"+placeholder+"}", pk, 1)
	}
	return ResolvedOp{Method: op.Method, Path: concrete}, nil
}

// IsCanonicalUUID reports whether s is a UUID in the canonical 8-4-4-4-12
// form. The length check keeps uuid.Parse from accepting the urn: and braced
// variants, and numeric identifiers that happen to be hex never reach 36
// characters with hyphens in the right places.
func IsCanonicalUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	if s[8] != '-' || s[13] != '-' || s[18] != '-' || s[23] != '-' {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
