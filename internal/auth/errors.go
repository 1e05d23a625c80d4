package auth

import "errors"

var (
	// ErrInvalidCredentials is returned by login for an unknown user or wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTokenExpired is returned when a token's exp claim is in the past.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalidSignature is returned when a token was not signed with our secret.
	ErrTokenInvalidSignature = errors.New("token signature invalid")
	// ErrTokenMalformed covers unparseable tokens, wrong algorithms and missing claims.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrSigningKeyTooShort is a startup error for a secret under MinSecretLength bytes.
	ErrSigningKeyTooShort = errors.New("signing secret too short")

	// ErrUnauthenticated means no valid principal is present.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrForbidden means the principal lacks the required role.
	ErrForbidden = errors.New("forbidden")
)
