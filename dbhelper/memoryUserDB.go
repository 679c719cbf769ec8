package dbhelper

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Setouprincely/automated-results-system-sub005/models"
)

// MemoryUserStore is the single-instance stand-in used when no DATABASE_DSN
// is configured, and by tests.
type MemoryUserStore struct {
	mu      sync.RWMutex
	byID    map[string]*models.User
	byEmail map[string]string
	now     func() time.Time
}

func NewMemoryUserStore(now func() time.Time) *MemoryUserStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryUserStore{
		byID:    make(map[string]*models.User),
		byEmail: make(map[string]string),
		now:     now,
	}
}

func (s *MemoryUserStore) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := models.NormalizeEmail(user.Email)
	if _, ok := s.byEmail[email]; ok {
		return models.ErrEmailTaken
	}
	now := s.now()
	user.Email = email
	user.CreatedAt, user.UpdatedAt = now, now
	if user.Status == "" {
		user.Status = models.StatusPending
	}
	cp := *user
	s.byID[user.ID] = &cp
	s.byEmail[email] = user.ID
	return nil
}

func (s *MemoryUserStore) FindByID(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryUserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	id, ok := s.byEmail[models.NormalizeEmail(email)]
	s.mu.RUnlock()
	if !ok {
		return nil, models.ErrUserNotFound
	}
	return s.FindByID(ctx, id)
}

func (s *MemoryUserStore) UpdateUser(_ context.Context, id string, update models.UserUpdate) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	update.Apply(u)
	u.UpdatedAt = s.now()
	cp := *u
	return &cp, nil
}

func (s *MemoryUserStore) SetPassword(_ context.Context, id, passwordHash string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	u.TokenVersion++
	u.UpdatedAt = s.now()
	cp := *u
	return &cp, nil
}

func (s *MemoryUserStore) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return models.ErrUserNotFound
	}
	delete(s.byEmail, u.Email)
	delete(s.byID, id)
	return nil
}

func (s *MemoryUserStore) ListUsers(_ context.Context, role models.Role) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]models.User, 0, len(s.byID))
	for _, u := range s.byID {
		if role == "" || u.Role == role {
			users = append(users, *u)
		}
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].Email < users[j].Email
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}
