package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Authentication & Authorization
	ErrCodeUnauthorized      ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden         ErrorCode = "FORBIDDEN"
	ErrCodeInvalidToken      ErrorCode = "INVALID_TOKEN"
	ErrCodeInvalidSignature  ErrorCode = "INVALID_SIGNATURE"
	ErrCodeNotSessionOwner   ErrorCode = "NOT_SESSION_OWNER"
	ErrCodeInvalidCredential ErrorCode = "INVALID_CREDENTIAL"

	// Validation
	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED"

	// Resource
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	ErrCodeConflict ErrorCode = "CONFLICT"

	// Device session
	ErrCodeDeviceBusy         ErrorCode = "DEVICE_BUSY"
	ErrCodeInvalidStep        ErrorCode = "INVALID_STEP"
	ErrCodeSessionTimeout     ErrorCode = "SESSION_TIMEOUT"
	ErrCodeVerificationFailed ErrorCode = "VERIFICATION_FAILED"
	ErrCodeRFIDNotPaired      ErrorCode = "RFID_NOT_PAIRED"

	// RFID credentials
	ErrCodeDuplicateRfidNumber ErrorCode = "DUPLICATE_RFID_NUMBER"
	ErrCodeDuplicateRfid       ErrorCode = "DUPLICATE_RFID"

	// Rate Limiting
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Internal
	ErrCodeInternal         ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase         ErrorCode = "DATABASE_ERROR"
	ErrCodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
)

// AppError is a structured error that can be returned to clients
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

func Unauthorized(message string) *AppError {
	return New(ErrCodeUnauthorized, message)
}

func Forbidden(message string) *AppError {
	return New(ErrCodeForbidden, message)
}

func InvalidToken(message string) *AppError {
	return New(ErrCodeInvalidToken, message)
}

func InvalidSignature() *AppError {
	return New(ErrCodeInvalidSignature, "Invalid device signature")
}

func InvalidCredential() *AppError {
	return New(ErrCodeInvalidCredential, "Password confirmation failed")
}

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func Conflict(message string) *AppError {
	return New(ErrCodeConflict, message)
}

func ValidationError(message string) *AppError {
	return New(ErrCodeValidation, message)
}

func InvalidInput(field string, reason string) *AppError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("Invalid %s: %s", field, reason))
}

func MissingRequired(field string) *AppError {
	return New(ErrCodeMissingRequired, fmt.Sprintf("%s is required", field))
}

// DeviceBusy is returned when another owner holds a live session. The
// details carry the owner's display name and the session type so clients
// can render the occupied indicator.
func DeviceBusy(ownerName, sessionType string) *AppError {
	return New(ErrCodeDeviceBusy, fmt.Sprintf("Device is in use by %s", ownerName)).
		WithDetails(map[string]string{"ownerName": ownerName, "sessionType": sessionType})
}

func NotSessionOwner() *AppError {
	return New(ErrCodeNotSessionOwner, "Session is owned by another user")
}

func InvalidStep(current, expected string) *AppError {
	return New(ErrCodeInvalidStep, fmt.Sprintf("Session is at step %s, expected %s", current, expected)).
		WithDetails(map[string]string{"current": current, "expected": expected})
}

func SessionTimeout() *AppError {
	return New(ErrCodeSessionTimeout, "Session timed out")
}

func VerificationFailed() *AppError {
	return New(ErrCodeVerificationFailed, "RFID card does not match the registered card")
}

func RFIDNotPaired() *AppError {
	return New(ErrCodeRFIDNotPaired, "User has no paired RFID card")
}

// DuplicateRfidNumber names the user already holding the number.
func DuplicateRfidNumber(number, holder string) *AppError {
	return New(ErrCodeDuplicateRfidNumber, fmt.Sprintf("Nomor urut %s sudah digunakan oleh %s", number, holder)).
		WithDetails(map[string]string{"rfidNumber": number, "holder": holder})
}

func DuplicateRfid(holder string) *AppError {
	return New(ErrCodeDuplicateRfid, fmt.Sprintf("Kartu RFID sudah digunakan oleh %s", holder)).
		WithDetails(map[string]string{"holder": holder})
}

func RateLimitExceeded() *AppError {
	return New(ErrCodeRateLimitExceeded, "Rate limit exceeded")
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func Database(cause error) *AppError {
	return Wrap(ErrCodeDatabase, "Database error", cause)
}

func StoreUnavailable(cause error) *AppError {
	return Wrap(ErrCodeStoreUnavailable, "Device state store unavailable", cause)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode returns the error code if the error is an AppError, otherwise returns ErrCodeInternal
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

// Is reports whether err is an AppError carrying code.
func Is(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}
