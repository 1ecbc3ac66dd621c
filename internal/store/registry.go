package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"
)

const DefaultProfile = "default"

var (
	ErrInvalidProfile = errors.New("invalid profile id")
	ErrClosed         = errors.New("registry closed")
)

var profilePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Registry hands out one initialized Store per profile. Stores are created on
// first use and share the collaborators in Deps.
type Registry struct {
	deps Deps
	sfg  singleflight.Group

	mu     sync.RWMutex
	stores map[string]*Store
	closed bool
}

func NewRegistry(deps Deps) *Registry {
	return &Registry{deps: deps, stores: make(map[string]*Store)}
}

// Get returns the store for profile, creating and initializing it if needed.
// A store whose initialization failed is not kept, so the next call retries.
func (r *Registry) Get(ctx context.Context, profile string) (*Store, error) {
	if profile == "" {
		profile = DefaultProfile
	}
	if !profilePattern.MatchString(profile) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProfile, profile)
	}

	r.mu.RLock()
	s, ok := r.stores[profile]
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	if ok {
		return s, nil
	}

	v, err, _ := r.sfg.Do(profile, func() (interface{}, error) {
		r.mu.RLock()
		existing, ok := r.stores[profile]
		r.mu.RUnlock()
		if ok {
			return existing, nil
		}

		s := New(profile, r.deps)
		if err := s.Init(ctx); err != nil {
			return nil, err
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed {
			return nil, ErrClosed
		}
		r.stores[profile] = s
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Store), nil
}

func (r *Registry) Profiles() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.stores))
	for p := range r.stores {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Close drops every store. Later calls to Get fail with ErrClosed.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.stores = make(map[string]*Store)
}
