// Package errors provides structured error handling for cartledger.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Validation errors
	CodeProductUnknown  Code = "PRODUCT_UNKNOWN"
	CodeQuantityInvalid Code = "QUANTITY_INVALID"
	CodePayloadInvalid  Code = "PAYLOAD_INVALID"

	// Cart lifecycle errors (decider rejections)
	CodeCartAlreadyOpened    Code = "CART_ALREADY_OPENED"
	CodeCartNotOpened        Code = "CART_NOT_OPENED"
	CodeCartClosed           Code = "CART_CLOSED"
	CodeCartEmpty            Code = "CART_EMPTY"
	CodeItemNotInCart        Code = "ITEM_NOT_IN_CART"
	CodeItemQuantityExceeded Code = "ITEM_QUANTITY_EXCEEDED"
	CodeCommandUnknown       Code = "COMMAND_UNKNOWN"

	// Storage errors
	CodeNotFound        Code = "NOT_FOUND"
	CodeVersionConflict Code = "VERSION_CONFLICT"
	CodeStorageFailure  Code = "STORAGE_FAILURE"
)

// HTTPStatus maps an error code to the HTTP status reported at the
// transport boundary. Decider rejections surface as 409 so callers can
// tell "pick a different command" apart from 412 "re-read and retry".
func (c Code) HTTPStatus() int {
	switch c {
	// Bad request - input cannot be resolved or parsed
	case CodeProductUnknown,
		CodeQuantityInvalid,
		CodePayloadInvalid,
		CodeCommandUnknown:
		return http.StatusBadRequest

	// Conflict - current state disallows the command
	case CodeCartAlreadyOpened,
		CodeCartNotOpened,
		CodeCartClosed,
		CodeCartEmpty,
		CodeItemNotInCart,
		CodeItemQuantityExceeded:
		return http.StatusConflict

	// Precondition failed - expected stream version did not match
	case CodeVersionConflict:
		return http.StatusPreconditionFailed

	case CodeNotFound:
		return http.StatusNotFound

	default:
		return http.StatusInternalServerError
	}
}

// IsRejection reports whether the code is a domain-level decider rejection,
// as opposed to a validation, concurrency, or storage failure.
func (c Code) IsRejection() bool {
	switch c {
	case CodeCartAlreadyOpened,
		CodeCartNotOpened,
		CodeCartClosed,
		CodeCartEmpty,
		CodeItemNotInCart,
		CodeItemQuantityExceeded,
		CodeCommandUnknown:
		return true
	default:
		return false
	}
}
