package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"ctrlauth/internal/cache"
	apperrors "ctrlauth/internal/errors"
	"ctrlauth/internal/metrics"
	"ctrlauth/internal/model"
	"ctrlauth/internal/password"
	"ctrlauth/internal/repository"
)

func TestUserService_CreateUser(t *testing.T) {
	tests := []struct {
		name          string
		input         CreateUserInput
		setupMock     func(*MockUserRepository)
		expectedError error
	}{
		{
			name:  "successful creation",
			input: CreateUserInput{Username: "alice", Password: "pw", Email: "a@x.io"},
			setupMock: func(m *MockUserRepository) {
				m.On("Insert", mock.Anything, mock.AnythingOfType("*model.User")).Return(nil)
			},
		},
		{
			name:  "username taken",
			input: CreateUserInput{Username: "alice", Password: "pw"},
			setupMock: func(m *MockUserRepository) {
				m.On("Insert", mock.Anything, mock.AnythingOfType("*model.User")).Return(apperrors.ErrUserAlreadyExists)
			},
			expectedError: apperrors.ErrUserAlreadyExists,
		},
		{
			name:          "missing password",
			input:         CreateUserInput{Username: "alice"},
			setupMock:     func(m *MockUserRepository) {},
			expectedError: apperrors.ErrInvalidPayload,
		},
		{
			name:          "invalid username",
			input:         CreateUserInput{Username: "../etc", Password: "pw"},
			setupMock:     func(m *MockUserRepository) {},
			expectedError: apperrors.ErrInvalidPayload,
		},
		{
			name:  "store failure",
			input: CreateUserInput{Username: "alice", Password: "pw"},
			setupMock: func(m *MockUserRepository) {
				m.On("Insert", mock.Anything, mock.AnythingOfType("*model.User")).Return(fmt.Errorf("%w: timeout", apperrors.ErrStoreUnavailable))
			},
			expectedError: apperrors.ErrStoreUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockUserRepository)
			tt.setupMock(mockRepo)

			svc := NewUserService(mockRepo, testHasher(), nil, nil, nil)
			user, err := svc.CreateUser(context.Background(), tt.input)

			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
				assert.Nil(t, user)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.input.Username, user.Username)
				assert.Equal(t, tt.input.Email, user.Email)
				assert.NotEmpty(t, user.PasswordDigest)
				assert.NotEqual(t, tt.input.Password, user.PasswordDigest)
				assert.False(t, user.IsSuperuser)
			}

			mockRepo.AssertExpectations(t)
		})
	}
}

func TestUserService_Authenticate(t *testing.T) {
	digest := mustDigest("password123")

	tests := []struct {
		name          string
		password      string
		setupMock     func(*MockUserRepository)
		expectedError error
	}{
		{
			name:     "valid credentials",
			password: "password123",
			setupMock: func(m *MockUserRepository) {
				m.On("Get", mock.Anything, "alice").Return(&model.User{Username: "alice", PasswordDigest: digest}, nil)
			},
		},
		{
			name:     "wrong password",
			password: "wrong",
			setupMock: func(m *MockUserRepository) {
				m.On("Get", mock.Anything, "alice").Return(&model.User{Username: "alice", PasswordDigest: digest}, nil)
			},
			expectedError: apperrors.ErrInvalidCredentials,
		},
		{
			name:     "unknown user",
			password: "password123",
			setupMock: func(m *MockUserRepository) {
				m.On("Get", mock.Anything, "alice").Return(nil, apperrors.ErrUserNotFound)
			},
			expectedError: apperrors.ErrInvalidCredentials,
		},
		{
			name:     "corrupt digest",
			password: "password123",
			setupMock: func(m *MockUserRepository) {
				m.On("Get", mock.Anything, "alice").Return(&model.User{Username: "alice", PasswordDigest: "garbage"}, nil)
			},
			expectedError: apperrors.ErrInvalidCredentials,
		},
		{
			name:     "store failure is not a credential error",
			password: "password123",
			setupMock: func(m *MockUserRepository) {
				m.On("Get", mock.Anything, "alice").Return(nil, fmt.Errorf("%w: down", apperrors.ErrStoreUnavailable))
			},
			expectedError: apperrors.ErrStoreUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockUserRepository)
			tt.setupMock(mockRepo)

			svc := NewUserService(mockRepo, testHasher(), nil, nil, nil)
			user, err := svc.Authenticate(context.Background(), "alice", tt.password)

			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
				assert.Nil(t, user)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "alice", user.Username)
			}
			mockRepo.AssertExpectations(t)
		})
	}
}

func TestUserService_AuthenticateSameErrorForUnknownAndWrong(t *testing.T) {
	svc := NewUserService(repository.NewMemoryRepository(), testHasher(), nil, nil, nil)
	ctx := context.Background()
	_, err := svc.CreateUser(ctx, CreateUserInput{Username: "alice", Password: "pw"})
	require.NoError(t, err)

	_, unknown := svc.Authenticate(ctx, "nobody", "pw")
	_, wrong := svc.Authenticate(ctx, "alice", "nope")

	assert.Equal(t, unknown, wrong)
}

func TestUserService_UpdateOnlyChangesEmail(t *testing.T) {
	svc := NewUserService(repository.NewMemoryRepository(), testHasher(), nil, nil, nil)
	ctx := context.Background()

	created, err := svc.CreateUser(ctx, CreateUserInput{Username: "alice", Password: "pw", Email: "a@x.io", IsSuperuser: true})
	require.NoError(t, err)

	email := "new@x.io"
	updated, err := svc.UpdateUser(ctx, "alice", UpdateUserInput{Email: &email})
	require.NoError(t, err)

	assert.Equal(t, "new@x.io", updated.Email)
	assert.Equal(t, created.Username, updated.Username)
	assert.Equal(t, created.PasswordDigest, updated.PasswordDigest)
	assert.Equal(t, created.IsSuperuser, updated.IsSuperuser)
	assert.Equal(t, created.ID, updated.ID)

	_, err = svc.Authenticate(ctx, "alice", "pw")
	assert.NoError(t, err)
}

func TestUserService_UpdateWithoutFieldsLeavesRecord(t *testing.T) {
	svc := NewUserService(repository.NewMemoryRepository(), testHasher(), nil, nil, nil)
	ctx := context.Background()
	_, err := svc.CreateUser(ctx, CreateUserInput{Username: "alice", Password: "pw", Email: "a@x.io"})
	require.NoError(t, err)

	updated, err := svc.UpdateUser(ctx, "alice", UpdateUserInput{})
	require.NoError(t, err)
	assert.Equal(t, "a@x.io", updated.Email)
}

func TestUserService_MissingUser(t *testing.T) {
	svc := NewUserService(repository.NewMemoryRepository(), testHasher(), nil, nil, nil)
	ctx := context.Background()
	email := "x@x.io"

	_, err := svc.GetUser(ctx, "ghost")
	assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
	_, err = svc.UpdateUser(ctx, "ghost", UpdateUserInput{Email: &email})
	assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
	assert.ErrorIs(t, svc.DeleteUser(ctx, "ghost"), apperrors.ErrUserNotFound)
}

func TestUserService_DeleteThenGet(t *testing.T) {
	svc := NewUserService(repository.NewMemoryRepository(), testHasher(), nil, nil, nil)
	ctx := context.Background()
	_, err := svc.CreateUser(ctx, CreateUserInput{Username: "alice", Password: "pw"})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteUser(ctx, "alice"))

	_, err = svc.GetUser(ctx, "alice")
	assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
}

func TestUserService_CreatedUsersAuthenticate(t *testing.T) {
	svc := NewUserService(repository.NewMemoryRepository(), testHasher(), nil, nil, nil)
	ctx := context.Background()

	pairs := map[string]string{"alice": "pw", "bob": "b0b!", "carol": "correct horse battery staple"}
	for username, pw := range pairs {
		_, err := svc.CreateUser(ctx, CreateUserInput{Username: username, Password: pw})
		require.NoError(t, err)
	}

	for username, pw := range pairs {
		user, err := svc.Authenticate(ctx, username, pw)
		require.NoError(t, err, username)
		assert.Equal(t, username, user.Username)

		_, err = svc.Authenticate(ctx, username, pw+"x")
		assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials, username)
	}
}

func TestUserService_ConcurrentCreateSameUsername(t *testing.T) {
	svc := NewUserService(repository.NewMemoryRepository(), testHasher(), nil, nil, nil)
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateUser(ctx, CreateUserInput{Username: "alice", Password: "pw"})
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, apperrors.ErrUserAlreadyExists):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(1), conflicts.Load())
}

func TestUserService_CacheInvalidatedOnWrites(t *testing.T) {
	mr := miniredis.RunT(t)
	c := cache.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	m := metrics.New()
	svc := NewUserService(repository.NewMemoryRepository(), testHasher(), c, nil, m)
	ctx := context.Background()
	key := "ctrlauth:cache:user:alice"

	_, err := svc.CreateUser(ctx, CreateUserInput{Username: "alice", Password: "pw", Email: "a@x.io"})
	require.NoError(t, err)

	// a freshly written key is not cached until its marker expires
	_, err = svc.GetUser(ctx, "alice")
	require.NoError(t, err)
	cached, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, string(cacheTombstone), cached)

	mr.FastForward(2 * userCacheTTL)
	_, err = svc.GetUser(ctx, "alice")
	require.NoError(t, err)
	cached, err = mr.Get(key)
	require.NoError(t, err)
	assert.Contains(t, cached, `"email":"a@x.io"`)

	email := "b@x.io"
	_, err = svc.UpdateUser(ctx, "alice", UpdateUserInput{Email: &email})
	require.NoError(t, err)

	got, err := svc.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "b@x.io", got.Email)

	require.NoError(t, svc.DeleteUser(ctx, "alice"))
	_, err = svc.GetUser(ctx, "alice")
	assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
	_, err = svc.Authenticate(ctx, "alice", "pw")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

// pausingRepository holds the first Get after it has read from the store,
// until release is closed.
type pausingRepository struct {
	repository.UserRepository
	paused  atomic.Bool
	read    chan struct{}
	release chan struct{}
}

func newPausingRepository(inner repository.UserRepository) *pausingRepository {
	return &pausingRepository{
		UserRepository: inner,
		read:           make(chan struct{}),
		release:        make(chan struct{}),
	}
}

func (r *pausingRepository) Get(ctx context.Context, username string) (*model.User, error) {
	user, err := r.UserRepository.Get(ctx, username)
	if r.paused.CompareAndSwap(false, true) {
		close(r.read)
		<-r.release
	}
	return user, err
}

func TestUserService_DeleteDuringCachedReadStaysDeleted(t *testing.T) {
	mr := miniredis.RunT(t)
	c := cache.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	repo := newPausingRepository(repository.NewMemoryRepository())
	svc := NewUserService(repo, testHasher(), c, nil, nil)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, CreateUserInput{Username: "alice", Password: "pw"})
	require.NoError(t, err)
	mr.FastForward(2 * userCacheTTL)

	done := make(chan error, 1)
	go func() {
		_, err := svc.GetUser(ctx, "alice")
		done <- err
	}()

	<-repo.read
	require.NoError(t, svc.DeleteUser(ctx, "alice"))
	close(repo.release)
	require.NoError(t, <-done)

	_, err = svc.GetUser(ctx, "alice")
	assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
	_, err = svc.Authenticate(ctx, "alice", "pw")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestUserService_UpdateDuringCachedReadServesNewValue(t *testing.T) {
	mr := miniredis.RunT(t)
	c := cache.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	repo := newPausingRepository(repository.NewMemoryRepository())
	svc := NewUserService(repo, testHasher(), c, nil, nil)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, CreateUserInput{Username: "alice", Password: "pw", Email: "old@x.io"})
	require.NoError(t, err)
	mr.FastForward(2 * userCacheTTL)

	done := make(chan error, 1)
	go func() {
		_, err := svc.GetUser(ctx, "alice")
		done <- err
	}()

	<-repo.read
	email := "new@x.io"
	_, err = svc.UpdateUser(ctx, "alice", UpdateUserInput{Email: &email})
	require.NoError(t, err)
	close(repo.release)
	require.NoError(t, <-done)

	got, err := svc.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "new@x.io", got.Email)
}

func TestUserService_AuthenticateBypassesCache(t *testing.T) {
	mr := miniredis.RunT(t)
	c := cache.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	mockRepo := new(MockUserRepository)
	mockRepo.On("Get", mock.Anything, "alice").Return(mustUser("alice", "pw"), nil).Times(3)

	svc := NewUserService(mockRepo, testHasher(), c, nil, nil)
	ctx := context.Background()

	_, err := svc.GetUser(ctx, "alice")
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err := svc.Authenticate(ctx, "alice", "pw")
		require.NoError(t, err)
	}
	mockRepo.AssertExpectations(t)
}

func TestUserService_CacheHitSkipsStore(t *testing.T) {
	mr := miniredis.RunT(t)
	c := cache.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	mockRepo := new(MockUserRepository)
	mockRepo.On("Get", mock.Anything, "alice").
		Return(&model.User{Username: "alice", Email: "a@x.io", CreatedAt: time.Now()}, nil).Once()

	svc := NewUserService(mockRepo, testHasher(), c, nil, nil)
	for i := 0; i < 3; i++ {
		user, err := svc.GetUser(context.Background(), "alice")
		require.NoError(t, err)
		assert.Equal(t, "a@x.io", user.Email)
	}
	mockRepo.AssertExpectations(t)
}

func TestUserService_CreateUserOverlongBcryptPassword(t *testing.T) {
	cost := bcrypt.MinCost
	svc := NewUserService(repository.NewMemoryRepository(), password.NewBcryptHasher(&cost), nil, nil, nil)

	_, err := svc.CreateUser(context.Background(), CreateUserInput{Username: "alice", Password: strings.Repeat("p", 73)})
	assert.ErrorIs(t, err, apperrors.ErrInvalidPayload)

	_, err = svc.GetUser(context.Background(), "alice")
	assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
}
