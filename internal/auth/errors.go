package auth

import "errors"

var (
	// ErrInvalidCredentials covers both unknown email and wrong password so
	// callers cannot probe which accounts exist.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrAccountDeactivated rejects logins for disabled accounts.
	ErrAccountDeactivated = errors.New("auth: account deactivated")
	// ErrRateLimited rejects logins once the per-IP window is exhausted.
	ErrRateLimited = errors.New("auth: too many login attempts")

	// ErrTokenExpired indicates a structurally valid token past its expiry.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenMalformed covers bad structure and bad signatures.
	ErrTokenMalformed = errors.New("auth: token malformed")
	// ErrTokenRevoked indicates use of a revoked refresh token, which is
	// treated as a replay signal.
	ErrTokenRevoked = errors.New("auth: token revoked")

	// ErrUnauthenticated means no usable session was presented.
	ErrUnauthenticated = errors.New("auth: unauthenticated")
	// ErrForbidden means the session is valid but lacks the required role.
	ErrForbidden = errors.New("auth: forbidden")
	// ErrSelfAction blocks admins from deleting or demoting their own
	// currently-authenticated account.
	ErrSelfAction = errors.New("auth: action targets your own account")

	// ErrUnavailable surfaces credential/token store failures and timeouts.
	ErrUnavailable = errors.New("auth: service unavailable")

	// ErrWeakPassword carries enumerated strength violations alongside it.
	ErrWeakPassword = errors.New("auth: password too weak")
	// ErrResetTokenInvalid covers unknown, expired, and already-used reset tokens.
	ErrResetTokenInvalid = errors.New("auth: reset token invalid")
	// ErrVerificationTokenInvalid covers unknown and expired verification tokens.
	ErrVerificationTokenInvalid = errors.New("auth: verification token invalid")

	ErrNotFound      = errors.New("auth: not found")
	ErrAlreadyExists = errors.New("auth: already exists")
	ErrInvalidInput  = errors.New("auth: invalid input")
	// ErrHasContent blocks deletion of accounts that still own published articles.
	ErrHasContent = errors.New("auth: account has authored content")
)
