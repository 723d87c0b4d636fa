package hostfuncs

import (
	"errors"

	"github.com/reglet-dev/exthost/domain/entities"
	domainerrors "github.com/reglet-dev/exthost/domain/errors"
	"github.com/reglet-dev/exthost/wireformat"
)

// ErrorResponse is a structured error returned to extensions as the "err"
// side of a result envelope. Guests receive a parseable error instead of a trap.
type ErrorResponse struct {
	// Error is a machine-readable error identifier (e.g., "VALIDATION_ERROR", "CAPABILITY_DENIED").
	Error string `json:"error"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// Type categorizes the error (see entities.ErrorDetail).
	Type string `json:"type"`

	// Code is a numeric status code (e.g., 400, 403, 500).
	Code int `json:"code"`
}

// Detail converts the response into the envelope error shape.
func (e ErrorResponse) Detail() *entities.ErrorDetail {
	return &entities.ErrorDetail{
		Type:    e.Type,
		Code:    e.Error,
		Message: e.Message,
		Details: map[string]any{"status": e.Code},
	}
}

// ToJSON serializes the ErrorResponse as an err envelope.
func (e ErrorResponse) ToJSON() []byte {
	return wireformat.EncodeErr(e.Detail())
}

// NewValidationError creates an error response for bad input (e.g., malformed JSON).
func NewValidationError(message string) ErrorResponse {
	return ErrorResponse{
		Error:   "VALIDATION_ERROR",
		Type:    "validation",
		Message: message,
		Code:    400,
	}
}

// NewNotFoundError creates an error response for unknown handler names.
func NewNotFoundError(name string) ErrorResponse {
	return ErrorResponse{
		Error:   "NOT_FOUND",
		Type:    "validation",
		Message: "unknown host function: " + name,
		Code:    404,
	}
}

// NewInternalError creates an error response for unexpected failures.
func NewInternalError(message string) ErrorResponse {
	return ErrorResponse{
		Error:   "INTERNAL_ERROR",
		Type:    "internal",
		Message: message,
		Code:    500,
	}
}

// NewCapabilityDeniedError creates an error response for a failed capability check.
func NewCapabilityDeniedError(err error) ErrorResponse {
	return ErrorResponse{
		Error:   "CAPABILITY_DENIED",
		Type:    "capability",
		Message: err.Error(),
		Code:    403,
	}
}

// NewInvalidHandleError creates an error response for unknown or mistyped resource handles.
func NewInvalidHandleError(err error) ErrorResponse {
	return ErrorResponse{
		Error:   "INVALID_HANDLE",
		Type:    "validation",
		Message: err.Error(),
		Code:    400,
	}
}

// NewPanicError creates an error response for recovered panics.
func NewPanicError(panicValue any) ErrorResponse {
	var msg string
	if err, ok := panicValue.(error); ok {
		msg = err.Error()
	} else if s, ok := panicValue.(string); ok {
		msg = s
	} else {
		msg = "panic recovered"
	}
	return ErrorResponse{
		Error:   "INTERNAL_ERROR",
		Type:    "internal",
		Message: "panic: " + msg,
		Code:    500,
	}
}

// ErrorFrom maps a handler error onto the response a guest should see.
func ErrorFrom(err error) ErrorResponse {
	var capErr *domainerrors.CapabilityError
	if errors.As(err, &capErr) {
		return NewCapabilityDeniedError(capErr)
	}
	if errors.Is(err, domainerrors.ErrInvalidHandle) {
		return NewInvalidHandleError(err)
	}

	var resp responseError
	if errors.As(err, &resp) {
		return resp.ErrorResponse
	}

	detail := domainerrors.ToErrorDetail(err)
	code := 500
	if detail.Type == "validation" {
		code = 400
	}
	name := "INTERNAL_ERROR"
	if detail.Code != "" {
		name = detail.Code
	}
	return ErrorResponse{Error: name, Type: detail.Type, Message: detail.Message, Code: code}
}

// responseError carries an ErrorResponse through the error return of a HostFunc.
type responseError struct {
	ErrorResponse
}

func (e responseError) Error() string { return e.Message }

// Err wraps an ErrorResponse so a HostFunc can return it as its error.
func (e ErrorResponse) Err() error {
	return responseError{e}
}
