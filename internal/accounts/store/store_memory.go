package store

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"accman/internal/accounts/models"
	id "accman/pkg/domain"
	"accman/pkg/platform/sentinel"
)

// InMemoryStore keeps accounts in a map. Stored values are copied on the way
// in and out so callers never share a *models.Account with the store.
type InMemoryStore struct {
	mu       sync.RWMutex
	accounts map[id.AccountID]*models.Account
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{accounts: make(map[id.AccountID]*models.Account)}
}

func clone(a *models.Account) *models.Account {
	cp := *a
	cp.Data = a.Data.Clone()
	return &cp
}

func (s *InMemoryStore) Create(_ context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[account.ID]; ok {
		return sentinel.ErrConflict
	}
	s.accounts[account.ID] = clone(account)
	return nil
}

// CreateMany inserts all accounts or none.
func (s *InMemoryStore) CreateMany(_ context.Context, accounts []*models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range accounts {
		if _, ok := s.accounts[a.ID]; ok {
			return sentinel.ErrConflict
		}
	}
	for _, a := range accounts {
		s.accounts[a.ID] = clone(a)
	}
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.accounts[account.ID]
	if !ok || existing.UserID != account.UserID {
		return sentinel.ErrNotFound
	}
	s.accounts[account.ID] = clone(account)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, userID id.UserID, accountID id.AccountID) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[accountID]
	if !ok || a.UserID != userID {
		return nil, sentinel.ErrNotFound
	}
	return clone(a), nil
}

// Search returns one page of the user's matching accounts ordered by name.
func (s *InMemoryStore) Search(_ context.Context, userID id.UserID, query models.SearchQuery, page models.Page) ([]*models.Account, error) {
	s.mu.RLock()
	var matched []*models.Account
	for _, a := range s.accounts {
		if a.UserID == userID && query.Matches(a) {
			matched = append(matched, clone(a))
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(matched, func(a, b *models.Account) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})

	if page.Size <= 0 {
		return matched, nil
	}
	start := page.Offset()
	if start >= len(matched) {
		return nil, nil
	}
	end := min(start+page.Size, len(matched))
	return matched[start:end], nil
}

// FindByIDs returns the user's active accounts among ids, ordered by name.
func (s *InMemoryStore) FindByIDs(ctx context.Context, userID id.UserID, ids []id.AccountID) ([]*models.Account, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.Search(ctx, userID, models.SearchQuery{AccountIDs: ids}, models.Page{})
}

func (s *InMemoryStore) SoftDelete(_ context.Context, userID id.UserID, ids []id.AccountID, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, accountID := range ids {
		a, ok := s.accounts[accountID]
		if !ok || a.UserID != userID || !a.IsActive() {
			continue
		}
		a.MarkDeleted(now)
		n++
	}
	return n, nil
}

func (s *InMemoryStore) HardDelete(_ context.Context, userID id.UserID, ids []id.AccountID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, accountID := range ids {
		a, ok := s.accounts[accountID]
		if !ok || a.UserID != userID {
			continue
		}
		delete(s.accounts, accountID)
		n++
	}
	return n, nil
}
