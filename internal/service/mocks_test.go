package service

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"ctrlauth/internal/auth"
	"ctrlauth/internal/model"
	"ctrlauth/internal/password"
)

// MockUserRepository is a mock implementation of repository.UserRepository.
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Get(ctx context.Context, username string) (*model.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) Insert(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) Update(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) Delete(ctx context.Context, username string) error {
	args := m.Called(ctx, username)
	return args.Error(0)
}

func (m *MockUserRepository) List(ctx context.Context) ([]model.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.User), args.Error(1)
}

func (m *MockUserRepository) Close() error {
	return nil
}

// MockTokenService is a mock implementation of TokenService.
type MockTokenService struct {
	mock.Mock
}

func (m *MockTokenService) Issue(subject string, ttl time.Duration) (auth.Token, error) {
	args := m.Called(subject, ttl)
	return args.Get(0).(auth.Token), args.Error(1)
}

func (m *MockTokenService) Validate(token string) (string, error) {
	args := m.Called(token)
	return args.String(0), args.Error(1)
}

func testHasher() password.Hasher {
	return password.NewArgon2Hasher(&password.Argon2Config{
		Memory:      1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
}

func mustDigest(plaintext string) string {
	digest, err := testHasher().Hash(plaintext)
	if err != nil {
		panic(err)
	}
	return digest
}

func mustUser(username, plaintext string) *model.User {
	return &model.User{Username: username, PasswordDigest: mustDigest(plaintext)}
}
