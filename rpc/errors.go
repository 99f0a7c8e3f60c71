package rpc

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrorCategory represents different categories of FreeIPA client errors.
type ErrorCategory string

const (
	ErrorCategoryConfiguration  ErrorCategory = "configuration"
	ErrorCategoryEncoding       ErrorCategory = "encoding"
	ErrorCategoryDecoding       ErrorCategory = "decoding"
	ErrorCategoryAuthentication ErrorCategory = "authentication"
	ErrorCategoryTransport      ErrorCategory = "transport"
	ErrorCategoryRPC            ErrorCategory = "rpc"
	ErrorCategoryNotFound       ErrorCategory = "not_found"
	ErrorCategoryUsage          ErrorCategory = "usage"
	ErrorCategoryUnknown        ErrorCategory = "unknown"
)

// NotFoundErrorName is the error name FreeIPA reports for missing entries.
const NotFoundErrorName = "NotFound"

// CategorizedError is implemented by every error type in this package.
type CategorizedError interface {
	error
	GetCategory() ErrorCategory
}

// ConfigurationError reports invalid or unusable client options.
type ConfigurationError struct {
	Field   string // Option that failed validation
	Message string // Human-readable message
	Cause   error  // Underlying error
}

func (e *ConfigurationError) Error() string {
	msg := "invalid configuration"
	if e.Field != "" {
		msg = fmt.Sprintf("invalid configuration for %s", e.Field)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}

func (e *ConfigurationError) GetCategory() ErrorCategory {
	return ErrorCategoryConfiguration
}

// EncodingError reports a value that could not be serialized to JSON.
type EncodingError struct {
	Cause error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("Unable to encode json. Error was: %q.", causeText(e.Cause))
}

func (e *EncodingError) Unwrap() error {
	return e.Cause
}

func (e *EncodingError) GetCategory() ErrorCategory {
	return ErrorCategoryEncoding
}

// DecodingError reports text that is not valid JSON or lacks the expected shape.
type DecodingError struct {
	Cause error
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("Unable to decode json. Error was: %q.", causeText(e.Cause))
}

func (e *DecodingError) Unwrap() error {
	return e.Cause
}

func (e *DecodingError) GetCategory() ErrorCategory {
	return ErrorCategoryDecoding
}

// AuthenticationError reports a rejected login attempt.
type AuthenticationError struct {
	StatusCode int    // HTTP status returned by the login endpoint
	Message    string // Message extracted from the error page title
	Detail     string // Description paragraph of the error page, if any
	Reason     string // Value of the X-IPA-Rejection-Reason header, if any
}

func (e *AuthenticationError) Error() string {
	parts := []string{fmt.Sprintf("authentication failed (HTTP %d)", e.StatusCode)}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.Reason != "" {
		parts = append(parts, fmt.Sprintf("reason: %s", e.Reason))
	}
	return strings.Join(parts, " - ")
}

func (e *AuthenticationError) GetCategory() ErrorCategory {
	return ErrorCategoryAuthentication
}

var kerberosClientNotFound = regexp.MustCompile(`(?i)Client (.*?) not found in Kerberos database while getting initial credentials`)

// Hint returns a message suitable for showing to an end user.
func (e *AuthenticationError) Hint() string {
	if e.StatusCode != 401 {
		msg := fmt.Sprintf("The response returned the HTTP code \"%d\" that is not acceptable.", e.StatusCode)
		if e.Detail != "" {
			msg += fmt.Sprintf(" The server returned %q.", e.Detail)
		}
		return msg
	}

	switch {
	case e.Detail == "kinit: Preauthentication failed while getting initial credentials":
		return "User or password are wrong."
	case kerberosClientNotFound.MatchString(e.Detail):
		return "Unable to find user in the server."
	case e.Detail != "":
		return fmt.Sprintf("Generic error in authentication. The server returned %q.", e.Detail)
	default:
		return "Generic error in authentication."
	}
}

// NotAuthenticatedError is returned when an RPC is attempted before login.
type NotAuthenticatedError struct{}

func (e *NotAuthenticatedError) Error() string {
	return "not authenticated: login must succeed before sending requests"
}

func (e *NotAuthenticatedError) GetCategory() ErrorCategory {
	return ErrorCategoryAuthentication
}

// ErrNotAuthenticated is the sentinel NotAuthenticatedError.
var ErrNotAuthenticated error = &NotAuthenticatedError{}

// TransportError reports a network failure or an unexpected HTTP status.
type TransportError struct {
	Operation  string // Endpoint or RPC method being called
	StatusCode int    // HTTP status, zero when no response was received
	Cause      error  // Underlying error
}

func (e *TransportError) Error() string {
	var parts []string
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("%s failed with HTTP status %d", e.Operation, e.StatusCode))
	} else {
		parts = append(parts, fmt.Sprintf("%s failed", e.Operation))
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " - ")
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

func (e *TransportError) GetCategory() ErrorCategory {
	return ErrorCategoryTransport
}

// RPCError carries an error reported by the server inside a JSON-RPC response.
type RPCError struct {
	Method  string // RPC method that failed
	Name    string // FreeIPA error class, e.g. NotFound
	Code    int    // FreeIPA error code
	Message string // Human-readable message
}

func (e *RPCError) Error() string {
	var parts []string
	if e.Code > 0 {
		parts = append(parts, fmt.Sprintf("FreeIPA %s failed (code %d)", e.methodName(), e.Code))
	} else {
		parts = append(parts, fmt.Sprintf("FreeIPA %s failed", e.methodName()))
	}
	if e.Name != "" {
		parts = append(parts, e.Name)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	return strings.Join(parts, " - ")
}

func (e *RPCError) methodName() string {
	if e.Method == "" {
		return "request"
	}
	return e.Method
}

// IsNotFound reports whether the server classified the error as NotFound.
func (e *RPCError) IsNotFound() bool {
	return strings.EqualFold(e.Name, NotFoundErrorName)
}

func (e *RPCError) GetCategory() ErrorCategory {
	if e.IsNotFound() {
		return ErrorCategoryNotFound
	}
	return ErrorCategoryRPC
}

// NewRPCError builds an RPCError from a response error payload.
func NewRPCError(method string, payload *ErrorPayload) *RPCError {
	if payload == nil {
		return nil
	}
	return &RPCError{
		Method:  method,
		Name:    payload.Name,
		Code:    payload.Code,
		Message: payload.Message,
	}
}

// GetErrorCategory returns the category of an error.
func GetErrorCategory(err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryUnknown
	}

	var categorized CategorizedError
	if errors.As(err, &categorized) {
		return categorized.GetCategory()
	}

	return ErrorCategoryUnknown
}

// IsNotFoundError checks if an error indicates a "not found" condition.
func IsNotFoundError(err error) bool {
	return GetErrorCategory(err) == ErrorCategoryNotFound
}

// IsAuthenticationError checks if an error comes from login or a missing session.
func IsAuthenticationError(err error) bool {
	return GetErrorCategory(err) == ErrorCategoryAuthentication
}

// IsTransportError checks if an error is a network or HTTP status failure.
func IsTransportError(err error) bool {
	return GetErrorCategory(err) == ErrorCategoryTransport
}

// IsRPCError checks if an error was reported by the server in a response body.
func IsRPCError(err error) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr)
}

func causeText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
