package errors

import "fmt"

// Common error creators for frequent use cases

// NewSessionDisconnectedError signals that a stored session was explicitly
// disconnected and requires a reconnect before it can be started again.
func NewSessionDisconnectedError(clientID string) *AppError {
	return New(ErrCodeSessionDisconnected, "session is DISCONNECTED, reconnect to generate a new QR").
		WithContext("client_id", clientID).
		WithUserMessage("Session is DISCONNECTED. Use reconnect to generate QR.")
}

// NewTransportInitError wraps a session initialization failure.
func NewTransportInitError(clientID string, err error) *AppError {
	return Wrap(err, ErrCodeTransportInit, "session transport initialization failed").
		WithContext("client_id", clientID)
}

// NewSendFailureError wraps a per-attempt delivery error. It is retryable by
// construction; the worker decides when the attempts budget is exhausted.
func NewSendFailureError(clientID, to string, err error) *AppError {
	return WrapRetryable(err, ErrCodeSendFailure, "message delivery attempt failed").
		WithContext("client_id", clientID).
		WithContext("to", to)
}

// NewValidationError creates a validation error with field context
func NewValidationError(field, value, message string) *AppError {
	return New(ErrCodeValidationFailed, message).
		WithContext("field", field).
		WithContext("value", value).
		WithUserMessage(fmt.Sprintf("Invalid %s: %s", field, message))
}

// NewDatabaseError creates a database error with operation context
func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseQuery, fmt.Sprintf("database %s failed", operation)).
		WithContext("operation", operation).
		WithUserMessage("Database operation failed")
}

// NewNotFoundError creates a not found error with resource context
func NewNotFoundError(resource, identifier string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource)).
		WithContext("resource", resource).
		WithContext("identifier", identifier).
		WithUserMessage(fmt.Sprintf("%s not found", resource))
}

// NewAuthError creates an authentication/authorization error
func NewAuthError(reason string) *AppError {
	return New(ErrCodeAuthentication, "authentication failed").
		WithContext("reason", reason).
		WithUserMessage("Authentication failed")
}
