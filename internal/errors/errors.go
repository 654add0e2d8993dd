// Package errors defines the domain error taxonomy shared by services and
// the HTTP layer.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind classifies a DomainError for propagation and status mapping.
type Kind string

const (
	KindValidation         Kind = "VALIDATION"
	KindUnauthenticated    Kind = "UNAUTHENTICATED"
	KindAuthorization      Kind = "AUTHORIZATION"
	KindForbidden          Kind = "FORBIDDEN"
	KindNotFound           Kind = "NOT_FOUND"
	KindConflict           Kind = "CONFLICT"
	KindInProgress         Kind = "IN_PROGRESS"
	KindConsistency        Kind = "CONSISTENCY"
	KindGateway            Kind = "GATEWAY"
	KindProvisioningFailed Kind = "PROVISIONING_FAILED"
	KindInternal           Kind = "INTERNAL"
)

// DomainError is an error with a stable code and a user-facing message.
type DomainError struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func New(kind Kind, code, message string) *DomainError {
	return &DomainError{Kind: kind, Code: code, Message: message}
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error { return e.Err }

// Is matches any DomainError carrying the same code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Wrap returns a copy of e with err attached as the cause.
func (e *DomainError) Wrap(err error) *DomainError {
	cp := *e
	cp.Err = err
	return &cp
}

// WithMessage returns a copy of e with a different message.
func (e *DomainError) WithMessage(format string, args ...interface{}) *DomainError {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

// Validation builds an ad-hoc VALIDATION error.
func Validation(message string) *DomainError {
	return New(KindValidation, "VALIDATION_FAILED", message)
}

// Gateway wraps a failure reported by an external provider.
func Gateway(provider, op string, err error) *DomainError {
	return &DomainError{
		Kind:    KindGateway,
		Code:    "GATEWAY_ERROR",
		Message: fmt.Sprintf("%s %s failed", provider, op),
		Err:     err,
	}
}

// As returns the DomainError in err's chain, if any.
func As(err error) (*DomainError, bool) {
	var de *DomainError
	if stderrors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// KindOf classifies err; anything that is not a DomainError is INTERNAL.
func KindOf(err error) Kind {
	if de, ok := As(err); ok {
		return de.Kind
	}
	return KindInternal
}

// Retryable reports whether the caller may retry the same request later.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindGateway, KindInternal, KindInProgress, KindConsistency, KindProvisioningFailed:
		return true
	}
	return false
}

// HTTPStatus maps err onto a response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusPaymentRequired
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindInProgress, KindConsistency:
		return http.StatusConflict
	case KindGateway, KindProvisioningFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the message safe to show to API clients.
func PublicMessage(err error) string {
	if de, ok := As(err); ok {
		return de.Message
	}
	return ErrInternal.Message
}
