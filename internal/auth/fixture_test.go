package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tourbook/tourbook/internal/users"
)

var testSecret = []byte("test-secret-at-least-32-bytes-long!!")

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordedEvent struct{ event, outcome string }

type eventLog struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (l *eventLog) AuthEvent(event, outcome string) {
	l.mu.Lock()
	l.events = append(l.events, recordedEvent{event, outcome})
	l.mu.Unlock()
}

func (l *eventLog) has(event, outcome string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e.event == event && e.outcome == outcome {
			return true
		}
	}
	return false
}

type fixture struct {
	clock  *clock
	store  *users.Store
	tokens *TokenService
	events *eventLog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c := newClock()
	tokens, err := NewTokenService(TokenConfig{Secret: testSecret, TTL: time.Hour, Now: c.Now})
	require.NoError(t, err)
	return &fixture{
		clock:  c,
		store:  users.NewStore(users.NewMemoryBackend(), users.WithBcryptCost(bcrypt.MinCost), users.WithClock(c.Now)),
		tokens: tokens,
		events: &eventLog{},
	}
}

func (f *fixture) createUser(t *testing.T, email, password string, role users.Role) *users.User {
	t.Helper()
	u, err := f.store.Create(context.Background(), users.NewUser{
		Name:            "Test User",
		Email:           email,
		Role:            string(role),
		Password:        password,
		PasswordConfirm: password,
	})
	require.NoError(t, err)
	return u
}
