package users

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryBackend keeps users in process memory. It is used for local
// development and tests.
type MemoryBackend struct {
	mu    sync.RWMutex
	byID  map[uuid.UUID]*User
	email map[string]uuid.UUID
}

// NewMemoryBackend constructs an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		byID:  make(map[uuid.UUID]*User),
		email: make(map[string]uuid.UUID),
	}
}

func (m *MemoryBackend) Insert(ctx context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.email[u.Email]; taken {
		return ErrDuplicateEmail
	}
	m.byID[u.ID] = u.Clone()
	m.email[u.Email] = u.ID
	return nil
}

func (m *MemoryBackend) Update(ctx context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.byID[u.ID]
	if !ok {
		return ErrNotFound
	}
	if existing.Email != u.Email {
		if _, taken := m.email[u.Email]; taken {
			return ErrDuplicateEmail
		}
		delete(m.email, existing.Email)
		m.email[u.Email] = u.ID
	}
	m.byID[u.ID] = u.Clone()
	return nil
}

func (m *MemoryBackend) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return u.Clone(), nil
}

func (m *MemoryBackend) FindByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.email[email]
	if !ok {
		return nil, ErrNotFound
	}
	return m.byID[id].Clone(), nil
}

func (m *MemoryBackend) FindByResetToken(ctx context.Context, tokenHash string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.byID {
		if u.ResetTokenHash != nil && *u.ResetTokenHash == tokenHash {
			return u.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryBackend) SetResetToken(ctx context.Context, id uuid.UUID, tokenHash string, expiresAt, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	u.ResetTokenHash = &tokenHash
	u.ResetTokenExpiresAt = &expiresAt
	u.UpdatedAt = updatedAt
	return nil
}

func (m *MemoryBackend) ClearResetToken(ctx context.Context, id uuid.UUID, tokenHash string, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok || u.ResetTokenHash == nil || *u.ResetTokenHash != tokenHash {
		return nil
	}
	u.ClearResetToken()
	u.UpdatedAt = updatedAt
	return nil
}

func (m *MemoryBackend) ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time, cred Credential) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.ResetTokenHash == nil || *u.ResetTokenHash != tokenHash {
			continue
		}
		if !u.ResetTokenValid(now) {
			return nil, ErrNotFound
		}
		changedAt := cred.ChangedAt
		u.PasswordHash = cred.Hash
		u.PasswordChangedAt = &changedAt
		u.ClearResetToken()
		u.UpdatedAt = changedAt
		return u.Clone(), nil
	}
	return nil, ErrNotFound
}

func (m *MemoryBackend) List(ctx context.Context) ([]User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]User, 0, len(m.byID))
	for _, u := range m.byID {
		out = append(out, *u.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

var _ Backend = (*MemoryBackend)(nil)
