package errors

import (
	"errors"
	"net/http"
)

// Code identifies the kind of failure independently of the message shown to the client.
type Code string

const (
	CodeDuplicateEmail          Code = "duplicate_email"
	CodeInvalidCredentials      Code = "invalid_credentials"
	CodeEmailNotConfirmed       Code = "email_not_confirmed"
	CodeEmailDeliveryFailed     Code = "email_delivery_failed"
	CodeMalformedToken          Code = "malformed_token"
	CodeSignatureInvalid        Code = "signature_invalid"
	CodeExpired                 Code = "expired"
	CodePurposeMismatch         Code = "purpose_mismatch"
	CodeInvalidOrExpiredToken   Code = "invalid_or_expired_token"
	CodeValidation              Code = "validation_error"
	CodeInvalidCredentialPolicy Code = "invalid_credential_policy"
	CodeNotFound                Code = "not_found"
)

// default error is internal service error at handler level
// if error has different status code use ErrorWithStatusCode
type ErrorWithStatusCode struct {
	Message    string
	StatusCode int
	Code       Code
}

func (e *ErrorWithStatusCode) Error() string {
	return e.Message
}

// Is matches by Code so sentinels below match errors carrying a custom message.
func (e *ErrorWithStatusCode) Is(target error) bool {
	t, ok := target.(*ErrorWithStatusCode)
	if !ok || t.Code == "" {
		return false
	}
	return e.Code == t.Code
}

func New(code Code, statusCode int, message string) *ErrorWithStatusCode {
	return &ErrorWithStatusCode{Message: message, StatusCode: statusCode, Code: code}
}

var (
	ErrDuplicateEmail          = New(CodeDuplicateEmail, http.StatusBadRequest, "An existing account is using this email address. Please try with another email address")
	ErrInvalidCredentials      = New(CodeInvalidCredentials, http.StatusUnauthorized, "Invalid username or password")
	ErrEmailNotConfirmed       = New(CodeEmailNotConfirmed, http.StatusUnauthorized, "Please confirm your email.")
	ErrEmailDeliveryFailed     = New(CodeEmailDeliveryFailed, http.StatusBadRequest, "Failed to send email. Please contact admin")
	ErrMalformedToken          = New(CodeMalformedToken, http.StatusUnauthorized, "Malformed token")
	ErrSignatureInvalid        = New(CodeSignatureInvalid, http.StatusUnauthorized, "Invalid token signature")
	ErrExpired                 = New(CodeExpired, http.StatusUnauthorized, "Token expired")
	ErrPurposeMismatch         = New(CodePurposeMismatch, http.StatusUnauthorized, "Token cannot be used for this purpose")
	ErrInvalidOrExpiredToken   = New(CodeInvalidOrExpiredToken, http.StatusBadRequest, "Invalid token. Please try again")
	ErrValidation              = New(CodeValidation, http.StatusBadRequest, "Required fields missing")
	ErrInvalidCredentialPolicy = New(CodeInvalidCredentialPolicy, http.StatusBadRequest, "Password does not satisfy the password policy")
	ErrNotFound                = New(CodeNotFound, http.StatusNotFound, "Not found")
)

// WithMessage returns a copy of a sentinel carrying a request specific message.
func WithMessage(sentinel *ErrorWithStatusCode, message string) *ErrorWithStatusCode {
	return &ErrorWithStatusCode{Message: message, StatusCode: sentinel.StatusCode, Code: sentinel.Code}
}

// WithStatus returns a copy of a sentinel carrying a different HTTP status.
func WithStatus(sentinel *ErrorWithStatusCode, statusCode int) *ErrorWithStatusCode {
	return &ErrorWithStatusCode{Message: sentinel.Message, StatusCode: statusCode, Code: sentinel.Code}
}

func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var e *ErrorWithStatusCode
	return errors.As(err, &e) && e.StatusCode == http.StatusNotFound
}

// StatusCode returns the HTTP status carried by err or 500.
func StatusCode(err error) int {
	var e *ErrorWithStatusCode
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return http.StatusInternalServerError
}
