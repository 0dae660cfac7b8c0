// Package apperror defines the business error taxonomy shared by every service.
// Infrastructure failures are never wrapped in an AppError; they propagate as plain errors.
package apperror

import (
	"errors"
	"fmt"
)

// Code classifies a business error.
type Code string

const (
	CodeNotFound         Code = "not_found"
	CodeValidation       Code = "validation_error"
	CodePasswordRequired Code = "password_required"
	CodeInvalidPassword  Code = "invalid_password"
	CodeShareExpired     Code = "share_expired"
)

// AppError is a descriptive, non-retryable failure returned to the immediate caller.
type AppError struct {
	Code    Code
	Message string
	Meta    map[string]string
}

func (e *AppError) Error() string {
	if len(e.Meta) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Meta)
}

func NotFound(msg string) error   { return &AppError{Code: CodeNotFound, Message: msg} }
func Validation(msg string) error { return &AppError{Code: CodeValidation, Message: msg} }
func ValidationMeta(msg string, meta map[string]string) error {
	return &AppError{Code: CodeValidation, Message: msg, Meta: meta}
}
func PasswordRequired() error { return &AppError{Code: CodePasswordRequired, Message: "Password required"} }
func InvalidPassword() error  { return &AppError{Code: CodeInvalidPassword, Message: "Invalid password"} }
func ShareExpired() error     { return &AppError{Code: CodeShareExpired, Message: "Share link expired"} }

// CodeOf returns the code of an AppError anywhere in err's chain, or "" for infra errors.
func CodeOf(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

func IsNotFound(err error) bool   { return CodeOf(err) == CodeNotFound }
func IsValidation(err error) bool { return CodeOf(err) == CodeValidation }

// IsAuthorizationGate reports whether err is one of the public share access signals.
func IsAuthorizationGate(err error) bool {
	switch CodeOf(err) {
	case CodePasswordRequired, CodeInvalidPassword, CodeShareExpired:
		return true
	}
	return false
}
