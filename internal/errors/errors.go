// Package errors provides error handling utilities.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Type identifies the category of error
type Type string

const (
	// TypeInput indicates an input validation error
	TypeInput Type = "INPUT_ERROR"

	// TypeParsing indicates a parsing error
	TypeParsing Type = "PARSING_ERROR"

	// TypeConfig indicates a configuration error
	TypeConfig Type = "CONFIG_ERROR"

	// TypeInternal indicates an internal error
	TypeInternal Type = "INTERNAL_ERROR"

	// TypeNotFound indicates a resource not found error
	TypeNotFound Type = "NOT_FOUND"

	// TypeInvalidQuantity indicates a non-positive or non-finite quantity was priced
	TypeInvalidQuantity Type = "INVALID_QUANTITY"

	// TypeInvalidAmount indicates a non-positive checkout charge
	TypeInvalidAmount Type = "INVALID_AMOUNT"

	// TypeValidationTransport indicates the coupon service could not be reached
	TypeValidationTransport Type = "VALIDATION_TRANSPORT"

	// TypeCouponInvalid indicates the coupon service rejected a code
	TypeCouponInvalid Type = "COUPON_INVALID"

	// TypeCheckoutService indicates a checkout session could not be created
	TypeCheckoutService Type = "CHECKOUT_SERVICE"

	// TypeStatusLookup indicates a payment status could not be read
	TypeStatusLookup Type = "STATUS_LOOKUP"
)

// Error represents a domain error with context
type Error struct {
	Type    Type                   `json:"type"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if the error is of a specific type
func (e *Error) Is(t Type) bool {
	return e.Type == t
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new error
func New(errType Type, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
	}
}

// Newf creates a new formatted error
func Newf(errType Type, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an error with context
func Wrap(errType Type, message string, cause error) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Cause:   cause,
	}
}

// Wrapf wraps an error with formatted context
func Wrapf(errType Type, cause error, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsType checks if an error, or anything it wraps, is of a specific type
func IsType(err error, t Type) bool {
	for err != nil {
		e, ok := As(err)
		if !ok {
			return false
		}
		if e.Type == t {
			return true
		}
		err = e.Cause
	}
	return false
}

// TypeOf returns the type of the outermost domain error, or TypeInternal.
func TypeOf(err error) Type {
	if e, ok := As(err); ok {
		return e.Type
	}
	return TypeInternal
}

// Input creates an input error
func Input(message string) *Error {
	return New(TypeInput, message)
}

// Parsing creates a parsing error
func Parsing(message string, cause error) *Error {
	return Wrap(TypeParsing, message, cause)
}

// Config creates a configuration error
func Config(message string, cause error) *Error {
	return Wrap(TypeConfig, message, cause)
}

// NotFound creates a not found error
func NotFound(resourceType, identifier string) *Error {
	return Newf(TypeNotFound, "%s not found: %s", resourceType, identifier)
}

// Internal creates an internal error
func Internal(message string, cause error) *Error {
	return Wrap(TypeInternal, message, cause)
}

// InvalidQuantity creates an invalid quantity error
func InvalidQuantity(quantity float64) *Error {
	return Newf(TypeInvalidQuantity, "quantity must be a positive finite number, got %v", quantity).
		WithContext("quantity", quantity)
}

// InvalidAmount creates an invalid amount error
func InvalidAmount(format string, args ...interface{}) *Error {
	return Newf(TypeInvalidAmount, format, args...)
}

// ValidationTransport wraps a failure to reach the coupon service
func ValidationTransport(cause error) *Error {
	return Wrap(TypeValidationTransport, "could not reach coupon service", cause)
}

// CouponInvalid creates an error for a code the coupon service rejected
func CouponInvalid(code string) *Error {
	return Newf(TypeCouponInvalid, "invalid or expired code: %s", code).WithContext("code", code)
}

// StatusLookup wraps a failed payment status read
func StatusLookup(sessionID string, cause error) *Error {
	return Wrap(TypeStatusLookup, "payment status unavailable", cause).WithContext("session_id", sessionID)
}

// CheckoutService wraps a failed checkout submission
func CheckoutService(message string, cause error) *Error {
	return Wrap(TypeCheckoutService, message, cause)
}
