package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/RaifayoussefDev/Backend-DabApp-sub000/internal/model"
	"github.com/RaifayoussefDev/Backend-DabApp-sub000/internal/repository"
)

// memStore — потокобезопасная реализация repository.Store в памяти для тестов.
type memStore struct {
	mu       sync.Mutex
	nextUser int64
	users    map[int64]*model.User
	listings map[string]*model.Listing
	sooms    map[string]*model.Soom
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[int64]*model.User),
		listings: make(map[string]*model.Listing),
		sooms:    make(map[string]*model.Soom),
	}
}

func (m *memStore) InTx(ctx context.Context, fn func(repository.Store) error) error {
	return fn(m)
}

func (m *memStore) Close() error { return nil }

func (m *memStore) addUser(login string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextUser++
	m.users[m.nextUser] = &model.User{
		ID:        m.nextUser,
		Login:     login,
		CreatedAt: time.Now().UTC(),
	}
	return m.nextUser
}

func (m *memStore) addListing(sellerID int64, allow bool, floorCents *int64) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	m.listings[id] = &model.Listing{
		ID:              id,
		SellerID:        sellerID,
		Title:           fmt.Sprintf("listing %s", id[:8]),
		AllowSubmission: allow,
		MinimumBid:      floorCents,
		CreatedAt:       time.Now().UTC(),
	}
	return id
}

func (m *memStore) CreateUser(ctx context.Context, login string, passwordHash []byte) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Login == login {
			return 0, repository.ErrUserExists
		}
	}
	m.nextUser++
	m.users[m.nextUser] = &model.User{
		ID:           m.nextUser,
		Login:        login,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	return m.nextUser, nil
}

func (m *memStore) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Login == login {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *memStore) GetListing(ctx context.Context, id string) (*model.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[id]
	if !ok {
		return nil, repository.ErrListingNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *memStore) LockListing(ctx context.Context, id string) (*model.Listing, error) {
	return m.GetListing(ctx, id)
}

func (m *memStore) HighestAmount(ctx context.Context, listingID, excludeSoomID string) (*int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var highest *int64
	for _, s := range m.sooms {
		if s.ListingID != listingID || s.ID == excludeSoomID {
			continue
		}
		if highest == nil || s.Amount > *highest {
			v := s.Amount
			highest = &v
		}
	}
	return highest, nil
}

func (m *memStore) PendingByUser(ctx context.Context, listingID string, userID int64) (*model.Soom, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sooms {
		if s.ListingID == listingID && s.UserID == userID && s.Status == model.SoomStatusPending {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) InsertSoom(ctx context.Context, soom *model.Soom) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sooms {
		if s.ListingID == soom.ListingID && s.UserID == soom.UserID && s.Status == model.SoomStatusPending {
			return repository.ErrDuplicatePending
		}
	}
	cp := *soom
	m.sooms[soom.ID] = &cp
	return nil
}

func (m *memStore) GetSoom(ctx context.Context, id string) (*model.Soom, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sooms[id]
	if !ok {
		return nil, repository.ErrSoomNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) UpdateSoomStatus(ctx context.Context, id string, status model.SoomStatus, reason *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sooms[id]
	if !ok {
		return repository.ErrSoomNotFound
	}
	s.Status = status
	s.RejectionReason = reason
	return nil
}

func (m *memStore) RejectPendingExcept(ctx context.Context, listingID, soomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sooms {
		if s.ListingID == listingID && s.ID != soomID && s.Status == model.SoomStatusPending {
			s.Status = model.SoomStatusRejected
		}
	}
	return nil
}

func (m *memStore) UpdateSoomAmount(ctx context.Context, id string, amount, minSoom int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sooms[id]
	if !ok {
		return repository.ErrSoomNotFound
	}
	s.Amount = amount
	s.MinSoom = minSoom
	s.SubmissionDate = at
	return nil
}

func (m *memStore) DeleteSoom(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sooms[id]; !ok {
		return repository.ErrSoomNotFound
	}
	delete(m.sooms, id)
	return nil
}

func (m *memStore) ListByListing(ctx context.Context, listingID string) ([]model.ListingSoom, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []model.ListingSoom
	for _, s := range m.sooms {
		if s.ListingID != listingID {
			continue
		}
		login := ""
		if u, ok := m.users[s.UserID]; ok {
			login = u.Login
		}
		res = append(res, model.ListingSoom{Soom: *s, BidderLogin: login})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Amount > res[j].Amount })
	return res, nil
}

func (m *memStore) LastByListing(ctx context.Context, listingID string) (*model.Soom, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var last *model.Soom
	var total int64
	for _, s := range m.sooms {
		if s.ListingID != listingID {
			continue
		}
		total++
		if last == nil || s.SubmissionDate.After(last.SubmissionDate) {
			last = s
		}
	}
	if last == nil {
		return nil, 0, nil
	}
	cp := *last
	return &cp, total, nil
}

func (m *memStore) ListBySeller(ctx context.Context, sellerID int64) ([]model.BoxSoom, model.SoomStats, error) {
	return m.listBox(func(s *model.Soom, l *model.Listing) bool { return l.SellerID == sellerID })
}

func (m *memStore) ListByBidder(ctx context.Context, userID int64) ([]model.BoxSoom, model.SoomStats, error) {
	return m.listBox(func(s *model.Soom, l *model.Listing) bool { return s.UserID == userID })
}

func (m *memStore) listBox(match func(*model.Soom, *model.Listing) bool) ([]model.BoxSoom, model.SoomStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []model.BoxSoom
	var stats model.SoomStats
	for _, s := range m.sooms {
		l, ok := m.listings[s.ListingID]
		if !ok || !match(s, l) {
			continue
		}
		switch s.Status {
		case model.SoomStatusPending:
			stats.Pending++
		case model.SoomStatusAccepted:
			stats.Accepted++
		case model.SoomStatusRejected:
			stats.Rejected++
		}
		res = append(res, model.BoxSoom{Soom: *s, ListingTitle: l.Title, SellerID: l.SellerID})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].SubmissionDate.After(res[j].SubmissionDate) })
	return res, stats, nil
}
