package account

import (
	goerrors "github.com/goliatone/go-errors"
)

// Stable text codes surfaced to clients. The HTTP controller lowercases
// these into the payload `code` field.
const (
	TextCodeUnauthenticated        = "UNAUTHENTICATED"
	TextCodeInvalidCredentials     = "INVALID_CREDENTIALS"
	TextCodeNotVerified            = "NOT_VERIFIED"
	TextCodeInvalidPassword        = "INVALID_PASSWORD"
	TextCodeInvalidToken           = "INVALID_TOKEN"
	TextCodeExpiredToken           = "EXPIRED_TOKEN"
	TextCodeAlreadyVerified        = "ALREADY_VERIFIED"
	TextCodeEmailInUse             = "EMAIL_IN_USE"
	TextCodePasswordAlreadySet     = "PASSWORD_ALREADY_SET"
	TextCodeSecondaryEmailRequired = "SECONDARY_EMAIL_REQUIRED"
	TextCodeEmailFail              = "EMAIL_FAIL"
	TextCodeActivationEmailFailed  = "SEND_ACTIVATION_EMAIL_FAILED"
	TextCodeInvalidRegistration    = "INVALID_REGISTRATION_DATA"
	TextCodeWrongUsage             = "WRONG_USAGE"
)

// ErrUnauthenticated is returned when an operation requires a logged in user.
var ErrUnauthenticated = goerrors.New("unauthenticated", goerrors.CategoryAuth).
	WithTextCode(TextCodeUnauthenticated).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidCredentials is the uniform login failure. It covers unknown
// identifiers and wrong passwords so the two cases are indistinguishable.
var ErrInvalidCredentials = goerrors.New("please enter valid credentials", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrNotVerified is returned when the account exists, the password checks
// out, but the account has not completed activation.
var ErrNotVerified = goerrors.New("please verify your account", goerrors.CategoryAuth).
	WithTextCode(TextCodeNotVerified).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidPassword is the password confirmation failure on guarded
// mutations. Field scoped: metadata carries the offending field name.
var ErrInvalidPassword = goerrors.New("invalid password", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidPassword).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidToken covers tampered tokens and action scope mismatches. Both
// report identically so a probe cannot learn which actions exist.
var ErrInvalidToken = goerrors.New("invalid token", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidToken).
	WithCode(goerrors.CodeBadRequest)

// ErrExpiredToken is returned for a well signed token past its action window.
var ErrExpiredToken = goerrors.New("expired token", goerrors.CategoryValidation).
	WithTextCode(TextCodeExpiredToken).
	WithCode(goerrors.CodeBadRequest)

// ErrAlreadyVerified is returned when redeeming an activation token for an
// account that already completed activation.
var ErrAlreadyVerified = goerrors.New("account already verified", goerrors.CategoryConflict).
	WithTextCode(TextCodeAlreadyVerified).
	WithCode(goerrors.CodeConflict)

// ErrEmailInUse enforces global email uniqueness across the primary and
// secondary address space.
var ErrEmailInUse = goerrors.New("a user with that email already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodeEmailInUse).
	WithCode(goerrors.CodeConflict)

// ErrPasswordAlreadySet is returned when a password set token is redeemed
// against an account that already has a usable password.
var ErrPasswordAlreadySet = goerrors.New("password already set for account", goerrors.CategoryConflict).
	WithTextCode(TextCodePasswordAlreadySet).
	WithCode(goerrors.CodeConflict)

// ErrSecondaryEmailRequired gates swap and remove operations.
var ErrSecondaryEmailRequired = goerrors.New("you need to setup a secondary email to proceed", goerrors.CategoryValidation).
	WithTextCode(TextCodeSecondaryEmailRequired).
	WithCode(goerrors.CodeBadRequest)

// ErrEmailFail reports a delivery failure. State committed before the send
// attempt is never rolled back because of it.
var ErrEmailFail = goerrors.New("failed to send email", goerrors.CategoryInternal).
	WithTextCode(TextCodeEmailFail).
	WithCode(goerrors.CodeInternal)

// ErrActivationEmailFailed distinguishes "account created, delivery failed"
// from an outright rejection.
var ErrActivationEmailFailed = goerrors.New("user account created but could not send activation email", goerrors.CategoryInternal).
	WithTextCode(TextCodeActivationEmailFailed).
	WithCode(goerrors.CodeInternal)

// ErrWrongUsage flags programmer misuse, e.g. logging in with zero or more
// than one identity field. Not an authentication failure.
var ErrWrongUsage = goerrors.New("wrong usage, check your code", goerrors.CategoryBadInput).
	WithTextCode(TextCodeWrongUsage).
	WithCode(goerrors.CodeBadRequest)

// sentinelWithMetadata copies a shared sentinel and attaches per request
// metadata to the copy. Calling WithMetadata on the sentinel itself writes
// into the shared value, leaking one request's details into every later one.
func sentinelWithMetadata(sentinel *goerrors.Error, metadata map[string]any) *goerrors.Error {
	clone := *sentinel
	clone.Metadata = metadata
	return &clone
}

// HasTextCode checks a rich error for a stable code.
func HasTextCode(err error, textCode string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == textCode
}

// IsTokenExpiredError checks for the expired action or session token code.
func IsTokenExpiredError(err error) bool {
	return HasTextCode(err, TextCodeExpiredToken)
}

// IsInvalidTokenError checks for tampered or scope mismatched tokens.
func IsInvalidTokenError(err error) bool {
	return HasTextCode(err, TextCodeInvalidToken)
}
