package accounts

import (
	stderrors "errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = stderrors.New("identity not found")

// ErrUnableToFindSession is the error when our request has no cookie
var ErrUnableToFindSession = stderrors.New("unable to find session")

// ErrUnableToDecodeSession unable to decode JWT from session cookie
var ErrUnableToDecodeSession = stderrors.New("unable to decode session")

// ErrNoEmptyString rejects empty credentials before they reach bcrypt
var ErrNoEmptyString = stderrors.New("value should not be an empty string")

// ErrMismatchedHashAndPassword is returned for both unknown emails and wrong
// passwords so callers cannot probe which addresses are registered.
var ErrMismatchedHashAndPassword = errors.New("invalid credentials", errors.CategoryAuth).
	WithTextCode("INVALID_CREDENTIALS").
	WithCode(errors.CodeUnauthorized)

// ErrAccountBlocked is deliberately distinguishable from invalid credentials:
// the account is real but locked.
var ErrAccountBlocked = errors.New("account is blocked", errors.CategoryAuth).
	WithTextCode("ACCOUNT_BLOCKED").
	WithCode(errors.CodeForbidden)

// ErrAccountGone is raised by the gatekeeper when the session points at an
// account that no longer exists.
var ErrAccountGone = errors.New("account no longer exists", errors.CategoryAuth).
	WithTextCode("ACCOUNT_GONE").
	WithCode(errors.CodeUnauthorized)

// ErrEmailTaken is the domain-level translation of the storage uniqueness
// constraint on email.
var ErrEmailTaken = errors.New("email already registered", errors.CategoryConflict).
	WithTextCode("EMAIL_TAKEN").
	WithCode(errors.CodeConflict)

// ErrInvalidConfirmation covers unknown and already consumed confirmation
// tokens. No distinction is made, to avoid token enumeration leakage.
var ErrInvalidConfirmation = errors.New("invalid or expired confirmation link", errors.CategoryNotFound).
	WithTextCode("INVALID_CONFIRMATION").
	WithCode(errors.CodeNotFound)

// ErrEmptySelection is returned when a bulk roster operation receives no ids.
var ErrEmptySelection = errors.New("no accounts selected", errors.CategoryValidation).
	WithTextCode("EMPTY_SELECTION").
	WithCode(errors.CodeBadRequest)

// ErrTokenExpired is returned when a session token is past its expiration.
var ErrTokenExpired = errors.New("session token is expired", errors.CategoryAuth).
	WithTextCode("TOKEN_EXPIRED").
	WithCode(errors.CodeUnauthorized)

// ErrTokenMalformed is returned when a session token cannot be parsed.
var ErrTokenMalformed = errors.New("session token is malformed", errors.CategoryAuth).
	WithTextCode("TOKEN_MALFORMED").
	WithCode(errors.CodeUnauthorized)

// IsTokenExpiredError will check for expired tokens. Classification is
// structural (jwt sentinel or text code) so it survives message changes in
// the underlying libraries; the message match remains as a last resort for
// errors that arrive as plain strings.
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, jwt.ErrTokenExpired) {
		return true
	}

	var rich *errors.Error
	if stderrors.As(err, &rich) && rich.TextCode == ErrTokenExpired.TextCode {
		return true
	}

	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for unparseable tokens, same layering as
// IsTokenExpiredError.
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, jwt.ErrTokenMalformed) {
		return true
	}

	var rich *errors.Error
	if stderrors.As(err, &rich) && rich.TextCode == ErrTokenMalformed.TextCode {
		return true
	}

	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}

// IsUniqueViolation pattern matches the storage layer's uniqueness constraint
// signal. SQLite and Postgres phrase it differently; neither driver exposes a
// portable error type through bun.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "SQLSTATE 23505")
}

// FormatValidationErrorToMap flattens an ozzo validation error into a
// field -> message map suitable for rendering next to form fields.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	var verrs validation.Errors
	if stderrors.As(err, &verrs) {
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}

	out["form"] = err.Error()
	return out
}
