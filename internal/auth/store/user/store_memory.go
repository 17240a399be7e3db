package user

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"accman/internal/auth/models"
	id "accman/pkg/domain"
	"accman/pkg/platform/sentinel"
)

// InMemoryUserStore keeps users in a map guarded by a RWMutex. Usernames are
// unique as given; emails are unique case-insensitively.
type InMemoryUserStore struct {
	mu    sync.RWMutex
	users map[id.UserID]*models.User
}

func New() *InMemoryUserStore {
	return &InMemoryUserStore{users: make(map[id.UserID]*models.User)}
}

func (s *InMemoryUserStore) Create(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.ID == user.ID || existing.Username == user.Username {
			return fmt.Errorf("username %q: %w", user.Username, sentinel.ErrConflict)
		}
		if user.Email != "" && strings.EqualFold(existing.Email, user.Email) {
			return fmt.Errorf("email %q: %w", user.Email, sentinel.ErrConflict)
		}
	}
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *InMemoryUserStore) FindByID(_ context.Context, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[userID]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryUserStore) FindByUsername(_ context.Context, username string) (*models.User, error) {
	return s.find(func(u *models.User) bool { return u.Username == username })
}

func (s *InMemoryUserStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	if email == "" {
		return nil, sentinel.ErrNotFound
	}
	return s.find(func(u *models.User) bool { return strings.EqualFold(u.Email, email) })
}

// FindByLogin matches login against the username first, then the email.
func (s *InMemoryUserStore) FindByLogin(ctx context.Context, login string) (*models.User, error) {
	u, err := s.FindByUsername(ctx, login)
	if err == nil {
		return u, nil
	}
	return s.FindByEmail(ctx, login)
}

func (s *InMemoryUserStore) SetActive(_ context.Context, userID id.UserID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return sentinel.ErrNotFound
	}
	u.IsActive = active
	return nil
}

func (s *InMemoryUserStore) find(match func(*models.User) bool) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}
