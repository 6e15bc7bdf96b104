package sentinel

import (
	"database/sql"
	"errors"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

const (
	TextCodeValidation         = "VALIDATION_ERROR"
	TextCodeNotFound           = "NOT_FOUND"
	TextCodeRecordNotFound     = "RECORD_NOT_FOUND"
	TextCodeAuthentication     = "AUTHENTICATION_ERROR"
	TextCodeConfiguration      = "CONFIGURATION_ERROR"
	TextCodeUserSuspended      = "USER_SUSPENDED"
	TextCodeUserBanned         = "USER_BANNED"
	TextCodeNotActivated       = "NOT_ACTIVATED"
	TextCodeSignupDisabled     = "SIGNUP_DISABLED"
	TextCodeDuplicateLogin     = "DUPLICATE_LOGIN"
	TextCodeAlreadyActivated   = "ALREADY_ACTIVATED"
	TextCodeInvalidCode        = "INVALID_ACTIVATION_CODE"
	TextCodeInvalidTransition  = "INVALID_THROTTLE_TRANSITION"
	TextCodeEmptyPassword      = "EMPTY_PASSWORD"
	TextCodeUnknownFieldRule   = "UNKNOWN_FIELD_RULE"
	TextCodeMissingDefaultRole = "MISSING_DEFAULT_GROUP"
)

// ErrorKind classifies a failed Result.
type ErrorKind string

const (
	KindNone           ErrorKind = ""
	KindValidation     ErrorKind = "validation"
	KindNotFound       ErrorKind = "not_found"
	KindAuthentication ErrorKind = "authentication"
	KindConfiguration  ErrorKind = "configuration"
	KindSuspended      ErrorKind = "suspended"
	KindBanned         ErrorKind = "banned"
	KindNotActivated   ErrorKind = "not_activated"
	KindSignupDisabled ErrorKind = "signup_disabled"
	KindInternal       ErrorKind = "internal"
)

// ErrValidation is returned for malformed, missing or duplicate input.
var ErrValidation = goerrors.New("the data provided is invalid", goerrors.CategoryValidation).
	WithTextCode(TextCodeValidation).
	WithCode(goerrors.CodeBadRequest)

// ErrUserNotFound is returned when an id, email or username does not resolve.
var ErrUserNotFound = goerrors.New("user not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrRecordNotFound is what a CredentialStore returns for empty lookups.
var ErrRecordNotFound = goerrors.New("record not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeRecordNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrInvalidCredentials is returned when a password does not verify.
var ErrInvalidCredentials = goerrors.New("the credentials provided are invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeAuthentication).
	WithCode(goerrors.CodeUnauthorized)

// ErrMissingDefaultGroup is returned when a configured default group does not exist.
var ErrMissingDefaultGroup = goerrors.New("default user group does not exist", goerrors.CategoryInternal).
	WithTextCode(TextCodeMissingDefaultRole).
	WithCode(goerrors.CodeInternal)

// ErrUnknownFieldRule is returned when an additional field declares a rule we can not compile.
var ErrUnknownFieldRule = goerrors.New("unknown additional field rule", goerrors.CategoryInternal).
	WithTextCode(TextCodeUnknownFieldRule).
	WithCode(goerrors.CodeInternal)

// ErrUserSuspended is returned by credential checks against a suspended throttle.
var ErrUserSuspended = goerrors.New("user has been suspended", goerrors.CategoryAuth).
	WithTextCode(TextCodeUserSuspended).
	WithCode(goerrors.CodeForbidden)

// ErrUserBanned is returned by credential checks against a banned throttle.
var ErrUserBanned = goerrors.New("user has been banned", goerrors.CategoryAuth).
	WithTextCode(TextCodeUserBanned).
	WithCode(goerrors.CodeForbidden)

// ErrUserNotActivated is returned by credential checks when activation is required.
var ErrUserNotActivated = goerrors.New("user has not been activated", goerrors.CategoryAuth).
	WithTextCode(TextCodeNotActivated).
	WithCode(goerrors.CodeForbidden)

// ErrSignupDisabled is returned when registration is turned off by a feature gate.
var ErrSignupDisabled = goerrors.New("user registration is disabled", goerrors.CategoryAuthz).
	WithTextCode(TextCodeSignupDisabled).
	WithCode(goerrors.CodeForbidden)

// ErrDuplicateLogin is returned by stores when an email or username is taken.
var ErrDuplicateLogin = goerrors.New("login is already in use", goerrors.CategoryConflict).
	WithTextCode(TextCodeDuplicateLogin).
	WithCode(goerrors.CodeConflict)

// ErrAlreadyActivated is returned when activating an active user.
var ErrAlreadyActivated = goerrors.New("user is already activated", goerrors.CategoryValidation).
	WithTextCode(TextCodeAlreadyActivated).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidActivationCode is returned when the activation code does not match.
var ErrInvalidActivationCode = goerrors.New("activation code is invalid", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidCode).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidTransition is returned when a throttle change is not allowed from its current state.
var ErrInvalidTransition = goerrors.New("invalid throttle transition", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// ErrNoEmptyString is returned when hashing an empty password.
var ErrNoEmptyString = goerrors.New("password can not be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(goerrors.CodeBadRequest)

// KindOf classifies err. Errors that are not rich errors are internal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return KindInternal
	}

	switch richErr.TextCode {
	case TextCodeUserSuspended:
		return KindSuspended
	case TextCodeUserBanned:
		return KindBanned
	case TextCodeNotActivated:
		return KindNotActivated
	case TextCodeSignupDisabled:
		return KindSignupDisabled
	case TextCodeDuplicateLogin:
		return KindValidation
	case TextCodeMissingDefaultRole, TextCodeUnknownFieldRule, TextCodeConfiguration:
		return KindConfiguration
	}

	switch richErr.Category {
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return KindValidation
	case goerrors.CategoryNotFound:
		return KindNotFound
	case goerrors.CategoryAuth:
		return KindAuthentication
	default:
		return KindInternal
	}
}

// HasTextCode reports whether err is a rich error carrying code.
func HasTextCode(err error, code string) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == code
}

// IsRecordNotFound reports whether err means a store lookup found nothing.
func IsRecordNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err) {
		return true
	}
	return HasTextCode(err, TextCodeRecordNotFound)
}

// IsDuplicateLogin reports whether err signals an email or username clash.
func IsDuplicateLogin(err error) bool {
	return HasTextCode(err, TextCodeDuplicateLogin)
}

func withMeta(base *goerrors.Error, meta map[string]any) *goerrors.Error {
	clone := base.Clone()
	if len(meta) == 0 {
		return clone
	}
	return clone.WithMetadata(meta)
}

func validationFailed(message string, fields map[string]string) *goerrors.Error {
	err := ErrValidation.Clone()
	if message != "" {
		err.Message = message
	}
	if len(fields) == 0 {
		return err
	}
	return err.WithMetadata(map[string]any{"fields": fields})
}

func storeFailure(err error, message string) error {
	if err == nil {
		return nil
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, message)
}
