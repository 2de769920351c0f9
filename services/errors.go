package services

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed set of business error kinds surfaced at the service
// boundary. A collaborator maps them to transport codes; the core never retries them.
type ErrorKind string

const (
	ErrUnbalanced               ErrorKind = "UNBALANCED"
	ErrEmptyEntry               ErrorKind = "EMPTY_ENTRY"
	ErrInactiveAccount          ErrorKind = "INACTIVE_ACCOUNT"
	ErrMissingParty             ErrorKind = "MISSING_PARTY"
	ErrPeriodFinalized          ErrorKind = "PERIOD_FINALIZED"
	ErrPeriodLocked             ErrorKind = "PERIOD_LOCKED"
	ErrPeriodState              ErrorKind = "PERIOD_STATE"
	ErrEntryState               ErrorKind = "ENTRY_STATE"
	ErrFinalizationPrerequisite ErrorKind = "FINALIZATION_PREREQUISITE"
	ErrIdempotentNoop           ErrorKind = "IDEMPOTENT_NOOP"
	ErrRaceCondition            ErrorKind = "RACE_CONDITION"
	ErrVatCodeUnknown           ErrorKind = "VAT_CODE_UNKNOWN"
	ErrCertificateInvalid       ErrorKind = "CERTIFICATE_INVALID"
	ErrRateLimit                ErrorKind = "RATE_LIMIT"
	ErrValidationFailed         ErrorKind = "VALIDATION_FAILED"
	ErrUnauthorizedTenant       ErrorKind = "UNAUTHORIZED_TENANT"
	ErrNotFound                 ErrorKind = "NOT_FOUND"
)

// Error is a typed business error. Details carries entity ids or issue lists for
// the caller; it is never required for equality checks.
type Error struct {
	Kind    ErrorKind
	Message string
	Details map[string]interface{}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches on kind so callers can use errors.Is with a bare kind error.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// NewError builds a typed business error.
func NewError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NewErrorWithDetails builds a typed business error carrying structured details.
func NewErrorWithDetails(kind ErrorKind, details map[string]interface{}, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Details: details}
}

// KindOf extracts the error kind, or empty string for infrastructure errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err is a business error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
