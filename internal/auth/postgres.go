package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"nashra.news/internal/ids"
)

var _ Store = (*PGStore)(nil)

const pgUniqueViolation = "23505"

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Users(context.Context) UserStore { return &userStore{db: s.db} }
func (s *PGStore) RefreshTokens(context.Context) RefreshTokenStore {
	return &refreshTokenStore{db: s.db}
}
func (s *PGStore) ResetTokens(context.Context) ActionTokenStore {
	return &actionTokenStore{db: s.db, table: "password_reset_tokens"}
}
func (s *PGStore) VerificationTokens(context.Context) ActionTokenStore {
	return &actionTokenStore{db: s.db, table: "email_verification_tokens"}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// User store ---------------------------------------------------------------

type userStore struct{ db *sql.DB }

const userColumns = `id, email, username, password_hash, role, is_active, is_verified, writer_status, token_version, language, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Role,
		&u.IsActive, &u.IsVerified, &u.WriterStatus, &u.TokenVersion,
		&u.Language, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *userStore) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, email, username, password_hash, role, is_active, is_verified, writer_status, token_version, language)
		 values($1, lower($2), $3, $4, $5, $6, $7, $8, $9, $10)`,
		u.ID, u.Email, u.Username, u.PasswordHash, u.Role,
		u.IsActive, u.IsVerified, u.WriterStatus, u.TokenVersion, u.Language,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

func (s *userStore) Find(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id)
	return scanUser(row)
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email=lower($1)`, email)
	return scanUser(row)
}

func (s *userStore) List(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+userColumns+` from users order by created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *userStore) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	return s.exec(ctx,
		`update users set password_hash=$2, token_version=token_version+1, updated_at=now() where id=$1`,
		userID, passwordHash)
}

func (s *userStore) UpdateRole(ctx context.Context, userID string, role Role) error {
	return s.exec(ctx,
		`update users set role=$2, updated_at=now() where id=$1`, userID, role)
}

func (s *userStore) SetActive(ctx context.Context, userID string, active bool) error {
	return s.exec(ctx,
		`update users set is_active=$2, updated_at=now() where id=$1`, userID, active)
}

func (s *userStore) MarkVerified(ctx context.Context, userID string) error {
	return s.exec(ctx,
		`update users set is_verified=true, updated_at=now() where id=$1`, userID)
}

func (s *userStore) SetWriterStatus(ctx context.Context, userID string, status WriterStatus) error {
	return s.exec(ctx,
		`update users set writer_status=$2, updated_at=now() where id=$1`, userID, status)
}

func (s *userStore) Delete(ctx context.Context, userID string) error {
	var hasContent bool
	err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from articles where author_id=$1)`, userID).Scan(&hasContent)
	if err != nil {
		return err
	}
	if hasContent {
		return ErrHasContent
	}
	return s.exec(ctx, `delete from users where id=$1`, userID)
}

func (s *userStore) EnsureAdmin(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, email, username, password_hash, role, is_active, is_verified, writer_status, token_version, language)
		 values($1, lower($2), $3, $4, $5, true, true, $6, 0, $7)
		 on conflict (email) do nothing`,
		u.ID, u.Email, u.Username, u.PasswordHash, RoleAdmin, WriterStatusNone, u.Language,
	)
	return err
}

func (s *userStore) exec(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Refresh token store ------------------------------------------------------

type refreshTokenStore struct{ db *sql.DB }

func (s *refreshTokenStore) Create(ctx context.Context, tok *RefreshToken) error {
	if tok.ID == "" {
		tok.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into refresh_tokens(id, user_id, token_hash, issued_at, expires_at, revoked, ip, user_agent)
		 values($1,$2,$3,$4,$5,false,$6,$7)`,
		tok.ID, tok.UserID, tok.TokenHash, tok.IssuedAt, tok.ExpiresAt, tok.IP, tok.UserAgent,
	)
	return err
}

func (s *refreshTokenStore) Find(ctx context.Context, id string) (*RefreshToken, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, user_id, token_hash, issued_at, expires_at, revoked, coalesce(replaced_by, ''), ip, user_agent
		 from refresh_tokens where id=$1`, id)
	var tok RefreshToken
	err := row.Scan(&tok.ID, &tok.UserID, &tok.TokenHash, &tok.IssuedAt, &tok.ExpiresAt,
		&tok.Revoked, &tok.ReplacedBy, &tok.IP, &tok.UserAgent)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &tok, nil
}

// Rotate revokes the presented token and inserts its successor inside one
// transaction. The update predicates on revoked=false, so two concurrent
// rotations of the same token produce exactly one winner; the loser is
// classified by re-reading the row.
func (s *refreshTokenStore) Rotate(ctx context.Context, id, tokenHash string, successor *RefreshToken, now time.Time) (*RefreshToken, error) {
	if successor.ID == "" {
		successor.ID = ids.New()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var userID string
	err = tx.QueryRowContext(ctx,
		`update refresh_tokens
		 set revoked=true, replaced_by=$3
		 where id=$1 and token_hash=$2 and revoked=false and expires_at > $4
		 returning user_id`,
		id, tokenHash, successor.ID, now,
	).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.classifyRotateFailure(ctx, id, tokenHash, now)
		}
		return nil, err
	}

	successor.UserID = userID
	successor.IssuedAt = now
	_, err = tx.ExecContext(ctx,
		`insert into refresh_tokens(id, user_id, token_hash, issued_at, expires_at, revoked, ip, user_agent)
		 values($1,$2,$3,$4,$5,false,$6,$7)`,
		successor.ID, successor.UserID, successor.TokenHash, successor.IssuedAt,
		successor.ExpiresAt, successor.IP, successor.UserAgent,
	)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return successor, nil
}

func (s *refreshTokenStore) classifyRotateFailure(ctx context.Context, id, tokenHash string, now time.Time) error {
	row := s.db.QueryRowContext(ctx,
		`select token_hash, revoked, expires_at from refresh_tokens where id=$1`, id)
	var (
		storedHash string
		revoked    bool
		expiresAt  time.Time
	)
	if err := row.Scan(&storedHash, &revoked, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if storedHash != tokenHash {
		return ErrNotFound
	}
	if revoked {
		return ErrTokenRevoked
	}
	if !expiresAt.After(now) {
		return ErrTokenExpired
	}
	return ErrNotFound
}

func (s *refreshTokenStore) Revoke(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked=true where id=$1 and revoked=false`, id)
	return err
}

func (s *refreshTokenStore) RevokeAllForUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked=true where user_id=$1 and revoked=false`, userID)
	return err
}

func (s *refreshTokenStore) DeleteExpired(ctx context.Context, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`delete from refresh_tokens where expires_at <= $1`, now)
	return err
}

// Action token store -------------------------------------------------------

type actionTokenStore struct {
	db    *sql.DB
	table string
}

func (s *actionTokenStore) Create(ctx context.Context, tok *ActionToken) error {
	if tok.ID == "" {
		tok.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into `+s.table+`(id, user_id, token_hash, expires_at) values($1,$2,$3,$4)`,
		tok.ID, tok.UserID, tok.TokenHash, tok.ExpiresAt,
	)
	return err
}

// Consume flips used_at exactly once. A token that is unknown, expired, or
// already used yields ErrNotFound; the caller maps that to the flow-specific
// error without leaking which case it was.
func (s *actionTokenStore) Consume(ctx context.Context, tokenHash string, now time.Time) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx,
		`update `+s.table+`
		 set used_at=$2
		 where token_hash=$1 and used_at is null and expires_at > $2
		 returning user_id`,
		tokenHash, now,
	).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return userID, nil
}

func (s *actionTokenStore) DeleteExpired(ctx context.Context, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`delete from `+s.table+` where expires_at <= $1`, now)
	return err
}
