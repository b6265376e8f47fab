package cart

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Domain-level error values returned by the cart service.
var (
	ErrAuthExpired          = errors.New("authentication expired")
	ErrCartUnavailable      = errors.New("cart unavailable")
	ErrInvalidProductID     = errors.New("invalid product id")
	ErrInvalidItemID        = errors.New("invalid item id")
	ErrInvalidQuantity      = errors.New("invalid quantity")
	ErrInvalidPrice         = errors.New("invalid price")
	ErrInvalidCartPayload   = errors.New("invalid cart payload")
	ErrInvalidServiceConfig = errors.New("invalid service config")
	ErrGuestStorageFailure  = errors.New("guest storage failure")
)

// HTTPError carries a non-2xx server response from the cart backend.
type HTTPError struct {
	StatusCode       int
	Message          string
	ValidationErrors map[string][]string
}

// Error returns the formatted error message.
func (httpError *HTTPError) Error() string {
	if httpError.Message == "" {
		return fmt.Sprintf("cart backend returned status %d", httpError.StatusCode)
	}
	return fmt.Sprintf("cart backend returned status %d: %s", httpError.StatusCode, httpError.Message)
}

// Unwrap maps authentication failures onto ErrAuthExpired so callers can use errors.Is.
func (httpError *HTTPError) Unwrap() error {
	if httpError.StatusCode == http.StatusUnauthorized {
		return ErrAuthExpired
	}
	return nil
}

// Phrases the backend uses to report an empty cart inside an error envelope.
var emptyCartMessages = []string{
	"cart is empty",
	"cart not found",
	"no cart",
	"no items in cart",
}

// IsAuthExpired reports whether an error represents an expired or rejected credential.
func IsAuthExpired(err error) bool {
	return errors.Is(err, ErrAuthExpired)
}

// IsEmptyCartSignal reports whether an error is the backend's way of saying the
// cart holds nothing. A 404 and the recognized empty-cart messages resolve to a
// valid empty snapshot rather than a failure.
func IsEmptyCartSignal(err error) bool {
	var httpError *HTTPError
	if !errors.As(err, &httpError) {
		return false
	}
	if httpError.StatusCode == http.StatusNotFound {
		return true
	}
	normalized := strings.ToLower(httpError.Message)
	for _, phrase := range emptyCartMessages {
		if strings.Contains(normalized, phrase) {
			return true
		}
	}
	return false
}

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
