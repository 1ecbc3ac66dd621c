// Package session tracks who is logged in for one storefront profile.
//
// Login is slow on purpose (it stands in for a network round trip) and may
// overlap with other logins or a logout. Every call takes a token; only the
// most recently issued call may change the state.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSuperseded         = errors.New("superseded by a newer request")
)

// Directory looks users up by email.
type Directory interface {
	FindByEmail(ctx context.Context, email string) (domain.User, error)
}

type Session struct {
	dir   Directory
	delay time.Duration

	mu     sync.Mutex
	user   *domain.User
	latest uint64
}

func New(dir Directory, delay time.Duration) *Session {
	return &Session{dir: dir, delay: delay}
}

// Login authenticates by exact email match. Unknown emails leave the session
// untouched and return ErrInvalidCredentials. If another Login or a Logout
// was issued while this one was in flight its result is dropped and
// ErrSuperseded is returned.
func (s *Session) Login(ctx context.Context, email string) (domain.User, error) {
	token := s.issue()

	if err := wait(ctx, s.delay); err != nil {
		return domain.User{}, err
	}

	user, err := s.dir.FindByEmail(ctx, email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if token != s.latest {
		return domain.User{}, ErrSuperseded
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}

	s.user = &user
	return user, nil
}

// Logout clears the user and invalidates any login still in flight.
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest++
	s.user = nil
}

func (s *Session) Current() (domain.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return domain.User{}, false
	}
	return *s.user, true
}

// Restore sets the user recovered from persisted state at startup.
func (s *Session) Restore(user domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = &user
}

func (s *Session) issue() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest++
	return s.latest
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
