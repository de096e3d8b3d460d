package auth

import "errors"

var (
	// ErrTokenInvalid indicates a malformed token or a bad signature.
	ErrTokenInvalid = errors.New("auth: invalid token")
	// ErrTokenExpired indicates a structurally valid token past its expiry.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenPurposeMismatch indicates a token presented for a purpose it was
	// not issued for, e.g. a password-reset token replayed as an access token.
	ErrTokenPurposeMismatch = errors.New("auth: token purpose mismatch")

	// ErrUnauthorized indicates the caller has no usable identity.
	ErrUnauthorized = errors.New("auth: unauthorized")
	// ErrForbidden indicates a resolved identity lacking the required
	// permission, role or module access.
	ErrForbidden = errors.New("auth: forbidden")

	ErrNotFound   = errors.New("auth: not found")
	ErrBadRequest = errors.New("auth: bad request")
)
