// Package memory is an in-process otpAuth.AccountStore. Data does not survive
// a restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MrEthical07/otpAuth"
)

// Store is safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	byID       map[string]otpAuth.Account
	byEmail    map[string]string
	byUsername map[string]string
	now        func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		byID:       make(map[string]otpAuth.Account),
		byEmail:    make(map[string]string),
		byUsername: make(map[string]string),
		now:        time.Now,
	}
}

func (s *Store) get(id string) (*otpAuth.Account, error) {
	a, ok := s.byID[id]
	if !ok {
		return nil, otpAuth.ErrStoreNotFound
	}
	return &a, nil
}

func (s *Store) FindByIdentifier(ctx context.Context, identifier string) (*otpAuth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.byEmail[identifier]; ok {
		return s.get(id)
	}
	if id, ok := s.byUsername[identifier]; ok {
		return s.get(id)
	}
	return nil, otpAuth.ErrStoreNotFound
}

func (s *Store) FindByID(ctx context.Context, id string) (*otpAuth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(id)
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*otpAuth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return nil, otpAuth.ErrStoreNotFound
	}
	return s.get(id)
}

func (s *Store) Exists(ctx context.Context, email, username string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.byEmail[email]; ok && email != "" {
		return true, nil
	}
	if _, ok := s.byUsername[username]; ok && username != "" {
		return true, nil
	}
	return false, nil
}

// Create rejects a duplicate id, email or username with otpAuth.ErrStoreConflict.
func (s *Store) Create(ctx context.Context, account *otpAuth.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[account.ID]; ok {
		return otpAuth.ErrStoreConflict
	}
	if _, ok := s.byEmail[account.Email]; ok {
		return otpAuth.ErrStoreConflict
	}
	if _, ok := s.byUsername[account.Username]; ok {
		return otpAuth.ErrStoreConflict
	}

	a := *account
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now().UTC()
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = a.CreatedAt
	}
	s.byID[a.ID] = a
	s.byEmail[a.Email] = a.ID
	s.byUsername[a.Username] = a.ID
	return nil
}

func (s *Store) update(id string, fn func(*otpAuth.Account) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return otpAuth.ErrStoreNotFound
	}
	if err := fn(&a); err != nil {
		return err
	}
	a.UpdatedAt = s.now().UTC()
	s.byID[id] = a
	return nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return s.update(id, func(a *otpAuth.Account) error {
		a.PasswordHash = hash
		return nil
	})
}

func (s *Store) UpdateUsername(ctx context.Context, id, username string) error {
	return s.update(id, func(a *otpAuth.Account) error {
		if owner, ok := s.byUsername[username]; ok && owner != id {
			return otpAuth.ErrStoreConflict
		}
		delete(s.byUsername, a.Username)
		s.byUsername[username] = id
		a.Username = username
		return nil
	})
}

func (s *Store) UpdateRole(ctx context.Context, id string, role otpAuth.Role) error {
	return s.update(id, func(a *otpAuth.Account) error {
		a.Role = role
		return nil
	})
}

func (s *Store) SetEmailVerified(ctx context.Context, id string, verified bool) error {
	return s.update(id, func(a *otpAuth.Account) error {
		a.EmailVerified = verified
		return nil
	})
}

// List returns every account ordered by creation time.
func (s *Store) List(ctx context.Context) ([]otpAuth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]otpAuth.Account, 0, len(s.byID))
	for _, a := range s.byID {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

var _ otpAuth.AccountStore = (*Store)(nil)
