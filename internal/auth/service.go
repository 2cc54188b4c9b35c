package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	defaultAccessTTL       = 15 * time.Minute
	defaultRefreshTTL      = 30 * 24 * time.Hour
	defaultResetTTL        = time.Hour
	defaultVerificationTTL = 24 * time.Hour
	defaultStoreTimeout    = 5 * time.Second
	defaultLanguage        = "en"
)

// Mailer delivers transactional auth email. Delivery mechanics live outside
// this subsystem; the default implementation only logs.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, token string) error
	SendVerification(ctx context.Context, email, token string) error
}

// WeakPasswordError carries the enumerated strength violations.
type WeakPasswordError struct {
	Reasons []string
}

func (e *WeakPasswordError) Error() string {
	return fmt.Sprintf("auth: password too weak: %s", strings.Join(e.Reasons, "; "))
}

func (e *WeakPasswordError) Unwrap() error { return ErrWeakPassword }

// Service orchestrates credential verification, token issuance, session
// rotation, and account lifecycle operations.
type Service struct {
	store   Store
	signer  *TokenSigner
	limiter *LoginLimiter
	mailer  Mailer

	refreshTTL      time.Duration
	resetTTL        time.Duration
	verificationTTL time.Duration
	storeTimeout    time.Duration

	now func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithResetTTL configures password reset token lifetime.
func WithResetTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.resetTTL = ttl
		}
	}
}

// WithVerificationTTL configures email verification token lifetime.
func WithVerificationTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.verificationTTL = ttl
		}
	}
}

// WithStoreTimeout bounds every store round-trip. A deadline hit fails
// closed as ErrUnavailable, never as an authenticated result.
func WithStoreTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.storeTimeout = d
		}
	}
}

// WithLoginLimiter replaces the default per-IP login limiter.
func WithLoginLimiter(l *LoginLimiter) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.limiter = l
		}
	}
}

// WithMailer replaces the log-only default mailer.
func WithMailer(m Mailer) ServiceOption {
	return func(s *Service) {
		if m != nil {
			s.mailer = m
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
			s.signer.WithClock(fn)
		}
	}
}

// NewService constructs the authentication service.
func NewService(store Store, signer *TokenSigner, opts ...ServiceOption) *Service {
	s := &Service{
		store:           store,
		signer:          signer,
		limiter:         NewLoginLimiter(5, 15*time.Minute),
		mailer:          noopMailer{},
		refreshTTL:      defaultRefreshTTL,
		resetTTL:        defaultResetTTL,
		verificationTTL: defaultVerificationTTL,
		storeTimeout:    defaultStoreTimeout,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AccessTTL exposes the access token lifetime for cookie max-age.
func (s *Service) AccessTTL() time.Duration { return s.signer.TTL() }

// RefreshTTL exposes the refresh token lifetime for cookie max-age.
func (s *Service) RefreshTTL() time.Duration { return s.refreshTTL }

// Login verifies credentials and mints a fresh session. The rate limiter is
// consulted before any store access; a successful login clears the caller's
// attempt budget.
func (s *Service) Login(ctx context.Context, email, password string, meta ClientMeta) (TokenPair, *User, error) {
	if !s.limiter.Allow(meta.IP) {
		return TokenPair{}, nil, ErrRateLimited
	}

	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return TokenPair{}, nil, ErrInvalidCredentials
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, nil, ErrInvalidCredentials
		}
		return TokenPair{}, nil, s.storeErr(err)
	}
	if !user.IsActive {
		return TokenPair{}, nil, ErrAccountDeactivated
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return TokenPair{}, nil, ErrInvalidCredentials
	}

	s.limiter.Reset(meta.IP)

	pair, err := s.mintPair(ctx, user, meta)
	if err != nil {
		return TokenPair{}, nil, err
	}
	return pair, user, nil
}

// Refresh rotates the presented refresh token and issues a new pair.
// Presenting an already-revoked token is treated as a replay signal: the
// whole lineage owner's refresh tokens are revoked and the call fails with
// ErrTokenRevoked.
func (s *Service) Refresh(ctx context.Context, rawRefresh string, meta ClientMeta) (TokenPair, *User, error) {
	tokenID, secret, err := SplitRefreshToken(rawRefresh)
	if err != nil {
		return TokenPair{}, nil, ErrTokenMalformed
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := s.now().UTC()
	nextSecret, err := NewOpaqueToken()
	if err != nil {
		return TokenPair{}, nil, s.storeErr(err)
	}
	successor := &RefreshToken{
		TokenHash: HashToken(nextSecret),
		ExpiresAt: now.Add(s.refreshTTL),
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
	}

	tokens := s.store.RefreshTokens(ctx)
	rotated, err := tokens.Rotate(ctx, tokenID, HashToken(secret), successor, now)
	if err != nil {
		switch {
		case errors.Is(err, ErrTokenRevoked):
			s.cascadeRevoke(ctx, tokenID)
			return TokenPair{}, nil, ErrTokenRevoked
		case errors.Is(err, ErrTokenExpired):
			return TokenPair{}, nil, ErrTokenExpired
		case errors.Is(err, ErrNotFound):
			return TokenPair{}, nil, ErrTokenMalformed
		default:
			return TokenPair{}, nil, s.storeErr(err)
		}
	}

	user, err := s.store.Users(ctx).Find(ctx, rotated.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_ = tokens.Revoke(ctx, rotated.ID)
			return TokenPair{}, nil, ErrUnauthenticated
		}
		return TokenPair{}, nil, s.storeErr(err)
	}
	if !user.IsActive {
		_ = tokens.Revoke(ctx, rotated.ID)
		return TokenPair{}, nil, ErrAccountDeactivated
	}

	access, accessExp, err := s.signer.Issue(user)
	if err != nil {
		return TokenPair{}, nil, s.storeErr(err)
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     JoinRefreshToken(rotated.ID, nextSecret),
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: rotated.ExpiresAt,
	}, user, nil
}

// cascadeRevoke revokes every refresh token of the user owning the replayed
// token. Best effort: the reuse itself already failed closed.
func (s *Service) cascadeRevoke(ctx context.Context, tokenID string) {
	tokens := s.store.RefreshTokens(ctx)
	rec, err := tokens.Find(ctx, tokenID)
	if err != nil {
		return
	}
	_ = tokens.RevokeAllForUser(ctx, rec.UserID)
}

// Logout revokes the presented refresh token. It is idempotent: a missing,
// malformed, or already-revoked token is not an error.
func (s *Service) Logout(ctx context.Context, rawRefresh string) error {
	tokenID, _, err := SplitRefreshToken(rawRefresh)
	if err != nil {
		return nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.store.RefreshTokens(ctx).Revoke(ctx, tokenID); err != nil {
		return s.storeErr(err)
	}
	return nil
}

// RefreshTokenOwner resolves a refresh token record to its owning user.
func (s *Service) RefreshTokenOwner(ctx context.Context, tokenID string) (string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	rec, err := s.store.RefreshTokens(ctx).Find(ctx, tokenID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrNotFound
		}
		return "", s.storeErr(err)
	}
	return rec.UserID, nil
}

// LogoutAll revokes every refresh token belonging to the user.
func (s *Service) LogoutAll(ctx context.Context, userID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.store.RefreshTokens(ctx).RevokeAllForUser(ctx, userID); err != nil {
		return s.storeErr(err)
	}
	return nil
}

// Register creates a reader account and issues an email verification token.
// The verification email goes out only after the token is persisted.
func (s *Service) Register(ctx context.Context, email, username, password, language string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	username = strings.TrimSpace(username)
	if email == "" || username == "" {
		return nil, ErrInvalidInput
	}
	if reasons := ValidatePasswordStrength(password); len(reasons) > 0 {
		return nil, &WeakPasswordError{Reasons: reasons}
	}
	if language != "ar" {
		language = defaultLanguage
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, s.storeErr(err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	user := &User{
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		Role:         RoleUser,
		IsActive:     true,
		WriterStatus: WriterStatusNone,
		Language:     language,
	}
	if err := s.store.Users(ctx).Create(ctx, user); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, ErrAlreadyExists
		}
		return nil, s.storeErr(err)
	}

	if err := s.issueVerification(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) issueVerification(ctx context.Context, user *User) error {
	secret, err := NewOpaqueToken()
	if err != nil {
		return s.storeErr(err)
	}
	tok := &ActionToken{
		UserID:    user.ID,
		TokenHash: HashToken(secret),
		ExpiresAt: s.now().UTC().Add(s.verificationTTL),
	}
	if err := s.store.VerificationTokens(ctx).Create(ctx, tok); err != nil {
		return s.storeErr(err)
	}
	if err := s.mailer.SendVerification(ctx, user.Email, secret); err != nil {
		return s.storeErr(err)
	}
	return nil
}

// ForgotPassword issues a single-use reset token. It never reveals whether
// the email belongs to an account: unknown and inactive accounts succeed
// silently.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return s.storeErr(err)
	}
	if !user.IsActive {
		return nil
	}

	secret, err := NewOpaqueToken()
	if err != nil {
		return s.storeErr(err)
	}
	tok := &ActionToken{
		UserID:    user.ID,
		TokenHash: HashToken(secret),
		ExpiresAt: s.now().UTC().Add(s.resetTTL),
	}
	if err := s.store.ResetTokens(ctx).Create(ctx, tok); err != nil {
		return s.storeErr(err)
	}
	if err := s.mailer.SendPasswordReset(ctx, user.Email, secret); err != nil {
		return s.storeErr(err)
	}
	return nil
}

// ResetPassword consumes the reset token and applies the new password. The
// token is consumed first, so a crash between the two steps can only leave
// a dead token behind, never a usable token for an already-applied change.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if reasons := ValidatePasswordStrength(newPassword); len(reasons) > 0 {
		return &WeakPasswordError{Reasons: reasons}
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := s.now().UTC()
	userID, err := s.store.ResetTokens(ctx).Consume(ctx, HashToken(token), now)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrResetTokenInvalid
		}
		return s.storeErr(err)
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return s.storeErr(err)
	}
	if err := s.store.Users(ctx).UpdatePassword(ctx, userID, hash); err != nil {
		return s.storeErr(err)
	}
	// The token_version bump already killed outstanding access tokens;
	// refresh tokens die here.
	if err := s.store.RefreshTokens(ctx).RevokeAllForUser(ctx, userID); err != nil {
		return s.storeErr(err)
	}
	return nil
}

// VerifyEmail consumes the verification token and marks the account
// verified. Verifying an already-verified account succeeds without further
// mutation.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := s.now().UTC()
	userID, err := s.store.VerificationTokens(ctx).Consume(ctx, HashToken(token), now)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrVerificationTokenInvalid
		}
		return s.storeErr(err)
	}
	if err := s.store.Users(ctx).MarkVerified(ctx, userID); err != nil {
		return s.storeErr(err)
	}
	return nil
}

// ChangePassword verifies the current password before applying the new one.
// All sessions of the user are ended.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	if reasons := ValidatePasswordStrength(next); len(reasons) > 0 {
		return &WeakPasswordError{Reasons: reasons}
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return s.storeErr(err)
	}
	if err := VerifyPassword(user.PasswordHash, current); err != nil {
		return ErrInvalidCredentials
	}

	hash, err := HashPassword(next)
	if err != nil {
		return s.storeErr(err)
	}
	if err := s.store.Users(ctx).UpdatePassword(ctx, userID, hash); err != nil {
		return s.storeErr(err)
	}
	if err := s.store.RefreshTokens(ctx).RevokeAllForUser(ctx, userID); err != nil {
		return s.storeErr(err)
	}
	return nil
}

// VerifyAccess is the gate-side check: stateless token verification plus a
// live re-read of the user record so revocation propagates immediately.
func (s *Service) VerifyAccess(ctx context.Context, rawAccess string) (Identity, error) {
	claims, err := s.signer.Verify(rawAccess)
	if err != nil {
		return Identity{}, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	user, err := s.store.Users(ctx).Find(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Identity{}, ErrUnauthenticated
		}
		return Identity{}, s.storeErr(err)
	}
	if user.TokenVersion != claims.TokenVersion {
		return Identity{}, ErrUnauthenticated
	}
	if !user.IsActive {
		return Identity{}, ErrForbidden
	}
	return Identity{User: user, Claims: claims}, nil
}

// ListUsers returns every account, for the admin back-office.
func (s *Service) ListUsers(ctx context.Context) ([]*User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	users, err := s.store.Users(ctx).List(ctx)
	if err != nil {
		return nil, s.storeErr(err)
	}
	return users, nil
}

// GetUser loads a single account.
func (s *Service) GetUser(ctx context.Context, userID string) (*User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, s.storeErr(err)
	}
	return user, nil
}

// UpdateUserRole changes an account's role. Admins cannot demote their own
// currently-authenticated account.
func (s *Service) UpdateUserRole(ctx context.Context, actorID, targetID string, role Role) error {
	if !role.Valid() {
		return ErrInvalidInput
	}
	if actorID == targetID && role != RoleAdmin {
		return ErrSelfAction
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.store.Users(ctx).UpdateRole(ctx, targetID, role); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return s.storeErr(err)
	}
	return nil
}

// SetUserActive activates or deactivates an account. Deactivation ends the
// target's sessions; admins cannot deactivate themselves.
func (s *Service) SetUserActive(ctx context.Context, actorID, targetID string, active bool) error {
	if actorID == targetID && !active {
		return ErrSelfAction
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.store.Users(ctx).SetActive(ctx, targetID, active); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return s.storeErr(err)
	}
	if !active {
		if err := s.store.RefreshTokens(ctx).RevokeAllForUser(ctx, targetID); err != nil {
			return s.storeErr(err)
		}
	}
	return nil
}

// DeleteUser removes an account. Deletion is blocked while the account owns
// authored content, and admins cannot delete themselves.
func (s *Service) DeleteUser(ctx context.Context, actorID, targetID string) error {
	if actorID == targetID {
		return ErrSelfAction
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.store.RefreshTokens(ctx).RevokeAllForUser(ctx, targetID); err != nil {
		return s.storeErr(err)
	}
	if err := s.store.Users(ctx).Delete(ctx, targetID); err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrHasContent) {
			return err
		}
		return s.storeErr(err)
	}
	return nil
}

// ApplyForWriter records a reader's application for the writer role.
func (s *Service) ApplyForWriter(ctx context.Context, userID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return s.storeErr(err)
	}
	if user.WriterStatus == WriterStatusPending || user.WriterStatus == WriterStatusApproved {
		return ErrAlreadyExists
	}
	if err := s.store.Users(ctx).SetWriterStatus(ctx, userID, WriterStatusPending); err != nil {
		return s.storeErr(err)
	}
	return nil
}

// ReviewWriterApplication approves or rejects a pending application.
// Approval also grants the writer role.
func (s *Service) ReviewWriterApplication(ctx context.Context, targetID string, approve bool) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	user, err := s.store.Users(ctx).Find(ctx, targetID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return s.storeErr(err)
	}
	if user.WriterStatus != WriterStatusPending {
		return ErrInvalidInput
	}
	users := s.store.Users(ctx)
	if approve {
		if err := users.SetWriterStatus(ctx, targetID, WriterStatusApproved); err != nil {
			return s.storeErr(err)
		}
		if err := users.UpdateRole(ctx, targetID, RoleWriter); err != nil {
			return s.storeErr(err)
		}
		return nil
	}
	if err := users.SetWriterStatus(ctx, targetID, WriterStatusRejected); err != nil {
		return s.storeErr(err)
	}
	return nil
}

// EnsureDefaultAdmin runs once at process start. The insert is guarded by
// the unique email index, so every instance of the service can execute it
// concurrently without a coordination flag.
func (s *Service) EnsureDefaultAdmin(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil
	}
	hash, err := HashPassword(password)
	if err != nil {
		return s.storeErr(err)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	admin := &User{
		Email:        email,
		Username:     "admin",
		PasswordHash: hash,
		Language:     defaultLanguage,
	}
	if err := s.store.Users(ctx).EnsureAdmin(ctx, admin); err != nil {
		return s.storeErr(err)
	}
	return nil
}

// PurgeExpiredTokens removes expired refresh/reset/verification rows.
// Intended for a periodic janitor.
func (s *Service) PurgeExpiredTokens(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	now := s.now().UTC()
	if err := s.store.RefreshTokens(ctx).DeleteExpired(ctx, now); err != nil {
		return s.storeErr(err)
	}
	if err := s.store.ResetTokens(ctx).DeleteExpired(ctx, now); err != nil {
		return s.storeErr(err)
	}
	if err := s.store.VerificationTokens(ctx).DeleteExpired(ctx, now); err != nil {
		return s.storeErr(err)
	}
	return nil
}

func (s *Service) mintPair(ctx context.Context, user *User, meta ClientMeta) (TokenPair, error) {
	access, accessExp, err := s.signer.Issue(user)
	if err != nil {
		return TokenPair{}, s.storeErr(err)
	}
	secret, err := NewOpaqueToken()
	if err != nil {
		return TokenPair{}, s.storeErr(err)
	}
	now := s.now().UTC()
	rec := &RefreshToken{
		UserID:    user.ID,
		TokenHash: HashToken(secret),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.refreshTTL),
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
	}
	if err := s.store.RefreshTokens(ctx).Create(ctx, rec); err != nil {
		return TokenPair{}, s.storeErr(err)
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     JoinRefreshToken(rec.ID, secret),
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: rec.ExpiresAt,
	}, nil
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storeTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.storeTimeout)
}

// storeErr collapses infrastructure failures (store unreachable, timeout,
// crypto failure) into ErrUnavailable while letting domain sentinels pass.
func (s *Service) storeErr(err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{
		ErrNotFound, ErrAlreadyExists, ErrHasContent,
		ErrTokenRevoked, ErrTokenExpired, ErrSelfAction,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

type noopMailer struct{}

func (noopMailer) SendPasswordReset(context.Context, string, string) error { return nil }
func (noopMailer) SendVerification(context.Context, string, string) error  { return nil }
