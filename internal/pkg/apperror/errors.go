package apperror

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Kind classifies an error by how the caller should react to it.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindUnavailable
	KindUnauthorized
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindUnavailable:
		return "unavailable"
	case KindUnauthorized:
		return "unauthorized"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Machine readable codes returned in error bodies.
const (
	CodeValidationFailed = "validation_failed"
	CodeInvalidPayload   = "invalid_payload"
	CodeInvalidSignature = "invalid_signature"
	CodeCustomerNotFound = "customer_not_found"
	CodeNotFound         = "not_found"
	CodeStoreUnavailable = "store_unavailable"
	CodeUnauthorized     = "unauthorized"
	CodeRunInProgress    = "run_in_progress"
	CodeInternal         = "internal_error"
)

// Error is a classified error carrying a machine readable code.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

func NotFound(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

func Unavailable(code, message string, err error) *Error {
	return &Error{Kind: KindUnavailable, Code: code, Message: message, Err: err}
}

func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Code: CodeUnauthorized, Message: message}
}

func Conflict(code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

// FromStore classifies a persistence error. A missing row becomes a
// resolution error; everything else means the store could not answer.
func FromStore(err error, notFoundCode, what string) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &Error{Kind: KindNotFound, Code: notFoundCode, Message: what + " not found", Err: err}
	}
	return &Error{Kind: KindUnavailable, Code: CodeStoreUnavailable, Message: "store unavailable", Err: err}
}

// KindOf returns the kind of err. Context expiry counts as a dependency failure.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindUnavailable
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// CodeOf returns the machine readable code for err.
func CodeOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	if KindOf(err) == KindUnavailable {
		return CodeStoreUnavailable
	}
	return CodeInternal
}

// HTTPStatus maps err to the response status for API callers.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return fiber.StatusBadRequest
	case KindNotFound:
		return fiber.StatusNotFound
	case KindUnauthorized:
		return fiber.StatusUnauthorized
	case KindConflict:
		return fiber.StatusConflict
	case KindUnavailable:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// Respond writes the structured error body. Internal details stay in logs.
func Respond(c *fiber.Ctx, err error) error {
	message := "internal error"
	var ae *Error
	if errors.As(err, &ae) {
		message = ae.Message
	} else if KindOf(err) == KindUnavailable {
		message = "dependency unavailable"
	}
	return c.Status(HTTPStatus(err)).JSON(fiber.Map{
		"error":   CodeOf(err),
		"message": message,
	})
}
