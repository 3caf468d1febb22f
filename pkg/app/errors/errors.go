// Package errors classifies failures into categories the transport layers
// map onto status codes.
package errors

import (
	"errors"
	"net/http"
)

// StatusClientClosedRequest is reported when the caller canceled the request.
const StatusClientClosedRequest = 499

// Category defines error category
type Category int

const (
	// CategoryNoError marks a successful outcome.
	CategoryNoError Category = iota
	// CategoryDataError the caller sent invalid input (bad amount, zero address, cap exceeded).
	CategoryDataError
	// CategoryUnauthorized the caller could not be identified.
	CategoryUnauthorized
	// CategoryForbidden the caller is identified but lacks the required role.
	CategoryForbidden
	// CategoryResourceNotFound the referenced resource does not exist.
	CategoryResourceNotFound
	// CategoryDataConflict the request conflicts with current state (reentrancy, insufficient balance).
	CategoryDataConflict
	// CategoryLocked the service is suspended.
	CategoryLocked
	// CategoryCanceled the caller gave up before the operation started.
	CategoryCanceled
	// CategoryDependencyFailure an oracle, chain or transfer dependency failed.
	CategoryDependencyFailure
	// CategoryGeneralError the service failed in an unexpected way.
	CategoryGeneralError
)

func (c Category) String() string {
	switch c {
	case CategoryNoError:
		return "CategoryNoError"
	case CategoryDataError:
		return "CategoryDataError"
	case CategoryUnauthorized:
		return "CategoryUnauthorized"
	case CategoryForbidden:
		return "CategoryForbidden"
	case CategoryResourceNotFound:
		return "CategoryResourceNotFound"
	case CategoryDataConflict:
		return "CategoryDataConflict"
	case CategoryLocked:
		return "CategoryLocked"
	case CategoryCanceled:
		return "CategoryCanceled"
	case CategoryDependencyFailure:
		return "CategoryDependencyFailure"
	default:
		return "CategoryGeneralError"
	}
}

// ServiceError is the error type returned across service boundaries.
// Message is safe to show to callers, Reason is a stable machine-readable
// code, Err is the underlying cause and is only logged.
type ServiceError struct {
	Category Category
	Reason   string
	Message  string
	Err      error
}

// Error method to comply with error interface
func (err ServiceError) Error() string {
	if err.Err != nil {
		return err.Err.Error()
	}
	return err.Message
}

// Unwrap returns the underlying error
func (err ServiceError) Unwrap() error {
	return err.Err
}

// Is reports whether target carries the same public message.
func (err ServiceError) Is(target error) bool {
	return target != nil && err.Message == target.Error()
}

// Is checks that provided error is a ServiceError with desired Category
func Is(err error, cat Category) bool {
	var svcErr *ServiceError
	return errors.As(err, &svcErr) && svcErr.Category == cat
}

// ReasonOf returns the reason code carried by err, or "" when err is not a ServiceError.
func ReasonOf(err error) string {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Reason
	}
	return ""
}

// IsInternalError reports whether err should be treated as a server-side failure.
func IsInternalError(err error) bool {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) && svcErr.Category < CategoryDependencyFailure {
		return false
	}
	return true
}

func newError(cat Category, err error, fallback, message string) *ServiceError {
	if err == nil {
		err = errors.New(fallback)
	}
	return &ServiceError{
		Category: cat,
		Message:  message,
		Err:      err,
	}
}

// WithReason attaches a reason code to err if it is a ServiceError and returns it.
func WithReason(err error, reason string) error {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		svcErr.Reason = reason
	}
	return err
}

// GeneralError returns a general service error.
// Callers see "Internal Server Error", err is only logged.
func GeneralError(err error) error {
	return newError(CategoryGeneralError, err, "internal server error", "Internal Server Error")
}

// ResourceNotFoundError returns an error with category ResourceNotFound.
func ResourceNotFoundError(err error, message string) error {
	return newError(CategoryResourceNotFound, err, "resource not found: "+message, message)
}

// BadRequestError returns an error with category DataError.
func BadRequestError(err error, message string) error {
	return newError(CategoryDataError, err, "bad request: "+message, message)
}

// ForbiddenError returns an error with category Forbidden.
func ForbiddenError(err error, message string) error {
	return newError(CategoryForbidden, err, "request forbidden", message)
}

// UnAuthorizedError returns an error with category Unauthorized.
func UnAuthorizedError(err error, message string) error {
	return newError(CategoryUnauthorized, err, "unauthorized", message)
}

// ConflictError returns an error with category DataConflict.
func ConflictError(err error, message string) error {
	return newError(CategoryDataConflict, err, "conflict", message)
}

// LockedError returns an error with category Locked.
func LockedError(err error, message string) error {
	return newError(CategoryLocked, err, "locked", message)
}

// CanceledError returns an error with category Canceled.
func CanceledError(err error, message string) error {
	return newError(CategoryCanceled, err, "canceled", message)
}

// DependencyError returns an error with category DependencyFailure.
func DependencyError(err error, message string) error {
	return newError(CategoryDependencyFailure, err, "dependency failure", message)
}

// StatusCode returns the HTTP status code for the error category
func (err ServiceError) StatusCode() int {
	switch err.Category {
	case CategoryDataError:
		return http.StatusBadRequest
	case CategoryUnauthorized:
		return http.StatusUnauthorized
	case CategoryForbidden:
		return http.StatusForbidden
	case CategoryResourceNotFound:
		return http.StatusNotFound
	case CategoryDataConflict:
		return http.StatusConflict
	case CategoryLocked:
		return http.StatusLocked
	case CategoryCanceled:
		return StatusClientClosedRequest
	case CategoryDependencyFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
