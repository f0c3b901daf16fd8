package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"ctrlauth/internal/cache"
	apperrors "ctrlauth/internal/errors"
	"ctrlauth/internal/logging"
	"ctrlauth/internal/metrics"
	"ctrlauth/internal/model"
	"ctrlauth/internal/password"
	"ctrlauth/internal/repository"
)

const userCacheTTL = time.Minute

// cacheTombstone marks a key written since the last store read. Readers never
// overwrite it, so a read that raced a write cannot cache the old record.
var cacheTombstone = []byte("\x00stale")

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.@+-]{0,149}$`)

// CreateUserInput carries the fields accepted when creating a user.
type CreateUserInput struct {
	Username    string
	Password    string
	Email       string
	IsSuperuser bool
}

// UpdateUserInput lists the mutable fields. Nil fields are left unchanged.
type UpdateUserInput struct {
	Email *string
}

// UserService exposes user management operations.
type UserService interface {
	CreateUser(ctx context.Context, input CreateUserInput) (*model.User, error)
	GetUser(ctx context.Context, username string) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	UpdateUser(ctx context.Context, username string, input UpdateUserInput) (*model.User, error)
	DeleteUser(ctx context.Context, username string) error
	Authenticate(ctx context.Context, username, password string) (*model.User, error)
}

type userService struct {
	repo    repository.UserRepository
	hasher  password.Hasher
	cache   *cache.Client
	logger  logging.Logger
	metrics *metrics.Metrics

	dummyOnce   sync.Once
	dummyDigest string
}

// NewUserService builds a UserService. cache and m may be nil.
func NewUserService(repo repository.UserRepository, hasher password.Hasher, cache *cache.Client, logger logging.Logger, m *metrics.Metrics) UserService {
	if logger == nil {
		logger = logging.Nop()
	}
	return &userService{
		repo:    repo,
		hasher:  hasher,
		cache:   cache,
		logger:  logger.With("component", "users"),
		metrics: m,
	}
}

func (s *userService) cacheKey(username string) string {
	return fmt.Sprintf("user:%s", username)
}

func (s *userService) invalidate(ctx context.Context, username string) {
	_ = s.cache.Set(ctx, s.cacheKey(username), cacheTombstone, userCacheTTL)
}

// CreateUser stores a new user with a hashed password. The store decides
// atomically whether the username is free.
func (s *userService) CreateUser(ctx context.Context, input CreateUserInput) (*model.User, error) {
	user, err := s.createUser(ctx, input)
	s.metrics.RecordUserOperation("create", err)
	return user, err
}

func (s *userService) createUser(ctx context.Context, input CreateUserInput) (*model.User, error) {
	if !usernamePattern.MatchString(input.Username) {
		return nil, fmt.Errorf("%w: invalid username", apperrors.ErrInvalidPayload)
	}
	if input.Password == "" {
		return nil, fmt.Errorf("%w: password is required", apperrors.ErrInvalidPayload)
	}

	digest, err := s.hasher.Hash(input.Password)
	if errors.Is(err, password.ErrPasswordTooLong) {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidPayload, err)
	}
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		Username:       input.Username,
		Email:          input.Email,
		PasswordDigest: digest,
		IsSuperuser:    input.IsSuperuser,
	}
	if err := s.repo.Insert(ctx, user); err != nil {
		if errors.Is(err, apperrors.ErrUserAlreadyExists) {
			s.logger.Info(ctx, "user already exists", "username", input.Username)
			return nil, err
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.invalidate(ctx, user.Username)
	s.logger.Info(ctx, "user created", "username", user.Username, "superuser", user.IsSuperuser)
	return user, nil
}

func (s *userService) GetUser(ctx context.Context, username string) (*model.User, error) {
	user, err := s.getUser(ctx, username)
	s.metrics.RecordUserOperation("get", err)
	return user, err
}

func (s *userService) getUser(ctx context.Context, username string) (*model.User, error) {
	data, _ := s.cache.Get(ctx, s.cacheKey(username))
	if data != nil && !bytes.Equal(data, cacheTombstone) {
		var cached model.User
		if err := json.Unmarshal(data, &cached); err == nil {
			return &cached, nil
		}
	}

	user, err := s.repo.Get(ctx, username)
	if err != nil {
		return nil, err
	}

	if data == nil {
		if payload, err := json.Marshal(user); err == nil {
			s.cache.SetNX(ctx, s.cacheKey(username), payload, userCacheTTL)
		}
	}
	return user, nil
}

func (s *userService) ListUsers(ctx context.Context) ([]model.User, error) {
	users, err := s.repo.List(ctx)
	s.metrics.RecordUserOperation("list", err)
	return users, err
}

// UpdateUser applies the non-nil fields of input. Username, digest and the
// superuser flag are never touched here.
func (s *userService) UpdateUser(ctx context.Context, username string, input UpdateUserInput) (*model.User, error) {
	user, err := s.updateUser(ctx, username, input)
	s.metrics.RecordUserOperation("update", err)
	return user, err
}

func (s *userService) updateUser(ctx context.Context, username string, input UpdateUserInput) (*model.User, error) {
	user, err := s.repo.Get(ctx, username)
	if err != nil {
		return nil, err
	}

	if input.Email != nil {
		user.Email = *input.Email
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}
	s.invalidate(ctx, username)
	s.logger.Info(ctx, "user updated", "username", username)
	return user, nil
}

func (s *userService) DeleteUser(ctx context.Context, username string) error {
	err := s.repo.Delete(ctx, username)
	s.metrics.RecordUserOperation("delete", err)
	if err != nil {
		return err
	}
	s.invalidate(ctx, username)
	s.logger.Info(ctx, "user deleted", "username", username)
	return nil
}

// Authenticate checks a username/password pair. Unknown users and wrong
// passwords yield the same ErrInvalidCredentials, and both paths run one
// hash verification so response time does not tell them apart.
// Credentials are always checked against the store, never the cache.
func (s *userService) Authenticate(ctx context.Context, username, plaintext string) (*model.User, error) {
	user, err := s.repo.Get(ctx, username)
	if err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			_, _ = s.hasher.Verify(plaintext, s.dummy())
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("authenticate: %w", err)
	}

	ok, err := s.hasher.Verify(plaintext, user.PasswordDigest)
	if err != nil {
		s.logger.Warn(ctx, "stored password digest unreadable", "username", username, "error", err)
		return nil, apperrors.ErrInvalidCredentials
	}
	if !ok {
		return nil, apperrors.ErrInvalidCredentials
	}
	return user, nil
}

func (s *userService) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyDigest, _ = s.hasher.Hash("not-a-real-password")
	})
	return s.dummyDigest
}
