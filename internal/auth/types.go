package auth

import "time"

// User is an account on the platform. PasswordHash never leaves the auth
// package; handlers serialize SafeUser instead.
type User struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	Role         Role
	IsActive     bool
	IsVerified   bool
	WriterStatus WriterStatus
	// TokenVersion invalidates every previously issued access token when
	// incremented (password change, forced logout).
	TokenVersion int
	// Language is the reader's preferred interface language (en or ar).
	Language  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SafeUser is the wire representation of an account.
type SafeUser struct {
	ID           string       `json:"id"`
	Email        string       `json:"email"`
	Username     string       `json:"username"`
	Role         Role         `json:"role"`
	IsVerified   bool         `json:"is_verified"`
	WriterStatus WriterStatus `json:"writer_status"`
	Language     string       `json:"language"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Safe strips credential material from the record.
func (u *User) Safe() SafeUser {
	return SafeUser{
		ID:           u.ID,
		Email:        u.Email,
		Username:     u.Username,
		Role:         u.Role,
		IsVerified:   u.IsVerified,
		WriterStatus: u.WriterStatus,
		Language:     u.Language,
		CreatedAt:    u.CreatedAt,
	}
}

// RefreshToken is a persisted long-lived session credential. Only the
// SHA-256 of the client secret is stored.
type RefreshToken struct {
	ID         string
	UserID     string
	TokenHash  string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	Revoked    bool
	ReplacedBy string
	IP         string
	UserAgent  string
}

// ActionToken is a single-use token backing password reset and email
// verification flows.
type ActionToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// TokenPair bundles the access/refresh credentials minted for one session.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// ClientMeta is recorded with refresh tokens for audit.
type ClientMeta struct {
	IP        string
	UserAgent string
}
