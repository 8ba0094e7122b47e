package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Reason identifies why a request was refused, beyond the HTTP status code.
type Reason string

const (
	ReasonInvalidCredentials Reason = "invalid_credentials"
	ReasonMissingToken       Reason = "missing_token"
	ReasonMalformedToken     Reason = "malformed_token"
	ReasonExpiredToken       Reason = "expired_token"
	ReasonInvalidSignature   Reason = "invalid_signature"
	ReasonRateLimited        Reason = "rate_limited"
	ReasonRouteCorrupt       Reason = "route_definition_corrupt"
)

// GatewayError represents an error that can be returned to clients
type GatewayError struct {
	Code       int    `json:"code"`
	Message    string `json:"message"`
	Reason     Reason `json:"reason,omitempty"`
	Details    string `json:"details,omitempty"`
	underlying error
}

func (e *GatewayError) Error() string {
	if e.underlying != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.underlying)
	}
	return e.Message
}

func (e *GatewayError) Unwrap() error {
	return e.underlying
}

// WriteJSON writes the error as JSON to the response.
func (e *GatewayError) WriteJSON(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Code)
	json.NewEncoder(w).Encode(e)
}

// WriteText writes the error as a plain-text response. The message body is
// exactly e.Message, matching the literal bodies the gateway contract fixes.
func (e *GatewayError) WriteText(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(e.Code)
	w.Write([]byte(e.Message))
}

// Common errors
var (
	ErrUnauthorized = &GatewayError{
		Code:    http.StatusUnauthorized,
		Message: "Unauthorized",
	}

	ErrInvalidCredentials = &GatewayError{
		Code:    http.StatusUnauthorized,
		Message: "Invalid credentials",
		Reason:  ReasonInvalidCredentials,
	}

	ErrTooManyRequests = &GatewayError{
		Code:    http.StatusTooManyRequests,
		Message: "Too Many Requests — Please slow down!",
		Reason:  ReasonRateLimited,
	}

	ErrBadRequest = &GatewayError{
		Code:    http.StatusBadRequest,
		Message: "Bad Request",
	}

	ErrNotFound = &GatewayError{
		Code:    http.StatusNotFound,
		Message: "Not Found",
	}

	ErrMethodNotAllowed = &GatewayError{
		Code:    http.StatusMethodNotAllowed,
		Message: "Method Not Allowed",
	}

	ErrRequestEntityTooLarge = &GatewayError{
		Code:    http.StatusRequestEntityTooLarge,
		Message: "Request Entity Too Large",
	}

	ErrInternalServer = &GatewayError{
		Code:    http.StatusInternalServerError,
		Message: "Internal Server Error",
	}

	ErrBadGateway = &GatewayError{
		Code:    http.StatusBadGateway,
		Message: "Bad Gateway",
	}
)

// New creates a new GatewayError
func New(code int, message string) *GatewayError {
	return &GatewayError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code int, message string) *GatewayError {
	return &GatewayError{
		Code:       code,
		Message:    message,
		underlying: err,
	}
}

// WithReason returns a copy of the error carrying a refusal reason.
func (e *GatewayError) WithReason(reason Reason) *GatewayError {
	return &GatewayError{
		Code:       e.Code,
		Message:    e.Message,
		Reason:     reason,
		Details:    e.Details,
		underlying: e.underlying,
	}
}

// WithDetails adds details to the error
func (e *GatewayError) WithDetails(details string) *GatewayError {
	return &GatewayError{
		Code:       e.Code,
		Message:    e.Message,
		Reason:     e.Reason,
		Details:    details,
		underlying: e.underlying,
	}
}

// IsGatewayError checks if an error is a GatewayError
func IsGatewayError(err error) (*GatewayError, bool) {
	if ge, ok := err.(*GatewayError); ok {
		return ge, true
	}
	return nil, false
}
