package repository

import (
	"context"
	"sync"
	"time"

	apperrors "ctrlauth/internal/errors"
	"ctrlauth/internal/model"
)

// MemoryRepository keeps users in process memory. Used for development and tests.
type MemoryRepository struct {
	mu    sync.RWMutex
	users map[string]model.User
}

// NewMemoryRepository creates an empty in-memory store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{users: make(map[string]model.User)}
}

func (r *MemoryRepository) Get(ctx context.Context, username string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[username]
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	return &user, nil
}

func (r *MemoryRepository) Insert(ctx context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.Username]; ok {
		return apperrors.ErrUserAlreadyExists
	}
	user.EnsureID()
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now
	r.users[user.Username] = *user
	return nil
}

func (r *MemoryRepository) Update(ctx context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.Username]; !ok {
		return apperrors.ErrUserNotFound
	}
	user.UpdatedAt = time.Now().UTC()
	r.users[user.Username] = *user
	return nil
}

func (r *MemoryRepository) Delete(ctx context.Context, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[username]; !ok {
		return apperrors.ErrUserNotFound
	}
	delete(r.users, username)
	return nil
}

func (r *MemoryRepository) List(ctx context.Context) ([]model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]model.User, 0, len(r.users))
	for _, user := range r.users {
		users = append(users, user)
	}
	return users, nil
}

func (r *MemoryRepository) Close() error {
	return nil
}

var _ UserRepository = (*MemoryRepository)(nil)
