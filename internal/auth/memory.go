package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"nashra.news/internal/ids"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory Store used for local development without a
// database and for exercising the service in tests. All operations take the
// same lock, so the conditional rotation and consumption semantics match the
// SQL implementation.
type MemoryStore struct {
	mu            sync.Mutex
	users         map[string]*User
	refresh       map[string]*RefreshToken
	resets        map[string]*ActionToken
	verifications map[string]*ActionToken
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]*User),
		refresh:       make(map[string]*RefreshToken),
		resets:        make(map[string]*ActionToken),
		verifications: make(map[string]*ActionToken),
	}
}

func (m *MemoryStore) Users(context.Context) UserStore { return (*memUsers)(m) }
func (m *MemoryStore) RefreshTokens(context.Context) RefreshTokenStore {
	return (*memRefresh)(m)
}
func (m *MemoryStore) ResetTokens(context.Context) ActionTokenStore {
	return &memActions{store: m, tokens: func() map[string]*ActionToken { return m.resets }}
}
func (m *MemoryStore) VerificationTokens(context.Context) ActionTokenStore {
	return &memActions{store: m, tokens: func() map[string]*ActionToken { return m.verifications }}
}

// Users -------------------------------------------------------------------

type memUsers MemoryStore

func (m *memUsers) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	email := strings.ToLower(u.Email)
	for _, existing := range m.users {
		if existing.Email == email {
			return ErrAlreadyExists
		}
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	u.Email = email
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memUsers) Find(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = strings.ToLower(email)
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memUsers) List(_ context.Context) ([]*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*User, 0, len(m.users))
	for _, u := range m.users {
		cp := *u
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memUsers) UpdatePassword(_ context.Context, id, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.TokenVersion++
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memUsers) UpdateRole(_ context.Context, id string, role Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Role = role
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memUsers) SetActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.IsActive = active
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memUsers) MarkVerified(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.IsVerified = true
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memUsers) SetWriterStatus(_ context.Context, id string, status WriterStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.WriterStatus = status
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memUsers) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}
	delete(m.users, id)
	for tid, tok := range m.refresh {
		if tok.UserID == id {
			delete(m.refresh, tid)
		}
	}
	return nil
}

func (m *memUsers) EnsureAdmin(_ context.Context, admin *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	email := strings.ToLower(admin.Email)
	for _, u := range m.users {
		if u.Email == email {
			return nil
		}
	}
	if admin.ID == "" {
		admin.ID = ids.New()
	}
	now := time.Now().UTC()
	cp := *admin
	cp.Email = email
	cp.Role = RoleAdmin
	cp.IsActive = true
	cp.IsVerified = true
	cp.CreatedAt = now
	cp.UpdatedAt = now
	m.users[cp.ID] = &cp
	return nil
}

// Refresh tokens ----------------------------------------------------------

type memRefresh MemoryStore

func (m *memRefresh) Create(_ context.Context, tok *RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tok.ID == "" {
		tok.ID = ids.New()
	}
	cp := *tok
	m.refresh[tok.ID] = &cp
	return nil
}

func (m *memRefresh) Find(_ context.Context, id string) (*RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.refresh[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *tok
	return &cp, nil
}

func (m *memRefresh) Rotate(_ context.Context, id, tokenHash string, successor *RefreshToken, now time.Time) (*RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.refresh[id]
	if !ok {
		return nil, ErrNotFound
	}
	if tok.TokenHash != tokenHash {
		return nil, ErrNotFound
	}
	if tok.Revoked {
		return nil, ErrTokenRevoked
	}
	if !now.Before(tok.ExpiresAt) {
		return nil, ErrTokenExpired
	}
	if successor.ID == "" {
		successor.ID = ids.New()
	}
	tok.Revoked = true
	tok.ReplacedBy = successor.ID
	successor.UserID = tok.UserID
	successor.IssuedAt = now
	cp := *successor
	m.refresh[successor.ID] = &cp
	return successor, nil
}

func (m *memRefresh) Revoke(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tok, ok := m.refresh[id]; ok {
		tok.Revoked = true
	}
	return nil
}

func (m *memRefresh) RevokeAllForUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tok := range m.refresh {
		if tok.UserID == userID {
			tok.Revoked = true
		}
	}
	return nil
}

func (m *memRefresh) DeleteExpired(_ context.Context, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, tok := range m.refresh {
		if !now.Before(tok.ExpiresAt) {
			delete(m.refresh, id)
		}
	}
	return nil
}

// Action tokens -----------------------------------------------------------

type memActions struct {
	store  *MemoryStore
	tokens func() map[string]*ActionToken
}

func (m *memActions) Create(_ context.Context, tok *ActionToken) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if tok.ID == "" {
		tok.ID = ids.New()
	}
	tok.CreatedAt = time.Now().UTC()
	cp := *tok
	m.tokens()[tok.ID] = &cp
	return nil
}

func (m *memActions) Consume(_ context.Context, tokenHash string, now time.Time) (string, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	for _, tok := range m.tokens() {
		if tok.TokenHash != tokenHash {
			continue
		}
		if tok.UsedAt != nil || !now.Before(tok.ExpiresAt) {
			return "", ErrNotFound
		}
		used := now
		tok.UsedAt = &used
		return tok.UserID, nil
	}
	return "", ErrNotFound
}

func (m *memActions) DeleteExpired(_ context.Context, now time.Time) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	tokens := m.tokens()
	for id, tok := range tokens {
		if !now.Before(tok.ExpiresAt) {
			delete(tokens, id)
		}
	}
	return nil
}
