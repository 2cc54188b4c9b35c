package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	Users(ctx context.Context) UserStore
	RefreshTokens(ctx context.Context) RefreshTokenStore
	ResetTokens(ctx context.Context) ActionTokenStore
	VerificationTokens(ctx context.Context) ActionTokenStore
}

// UserStore manages user records.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	// UpdatePassword stores a new hash and increments token_version in the
	// same statement, so every outstanding access token dies with the old
	// password.
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	UpdateRole(ctx context.Context, userID string, role Role) error
	SetActive(ctx context.Context, userID string, active bool) error
	MarkVerified(ctx context.Context, userID string) error
	SetWriterStatus(ctx context.Context, userID string, status WriterStatus) error
	// Delete removes the account; it fails with ErrHasContent while the
	// account still owns published articles.
	Delete(ctx context.Context, userID string) error
	// EnsureAdmin inserts the default admin account if no account with the
	// email exists. The unique email index makes it safe to run from every
	// instance at startup.
	EnsureAdmin(ctx context.Context, u *User) error
}

// RefreshTokenStore manages the refresh token lifecycle.
type RefreshTokenStore interface {
	Create(ctx context.Context, tok *RefreshToken) error
	Find(ctx context.Context, id string) (*RefreshToken, error)
	// Rotate atomically revokes the token identified by (id, tokenHash) and
	// inserts its successor. The conditional update on the revoked flag
	// guarantees exactly one winner under concurrent rotation; the loser
	// gets ErrTokenRevoked. ErrTokenExpired and ErrNotFound classify the
	// other failure modes.
	Rotate(ctx context.Context, id, tokenHash string, successor *RefreshToken, now time.Time) (*RefreshToken, error)
	// Revoke marks a token revoked. Revoking an absent or already-revoked
	// token is not an error.
	Revoke(ctx context.Context, id string) error
	RevokeAllForUser(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context, now time.Time) error
}

// ActionTokenStore manages single-use tokens (password reset, email
// verification).
type ActionTokenStore interface {
	Create(ctx context.Context, tok *ActionToken) error
	// Consume marks the token used and returns its owner. The conditional
	// update on used_at makes each token single-use even under concurrent
	// presentation: exactly one caller gets the user id, everyone else gets
	// ErrNotFound.
	Consume(ctx context.Context, tokenHash string, now time.Time) (userID string, err error)
	DeleteExpired(ctx context.Context, now time.Time) error
}
