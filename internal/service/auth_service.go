package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ctrlauth/internal/auth"
	apperrors "ctrlauth/internal/errors"
	"ctrlauth/internal/logging"
	"ctrlauth/internal/metrics"
)

// TokenService issues and validates bearer tokens.
type TokenService interface {
	Issue(subject string, ttl time.Duration) (auth.Token, error)
	Validate(token string) (string, error)
}

var _ TokenService = (*auth.JWTService)(nil)

// AuthService handles authentication operations.
type AuthService interface {
	// Login checks credentials and issues a token for the user.
	Login(ctx context.Context, username, password string) (auth.Token, error)
	// Authorize validates a bearer token and returns the authenticated username.
	Authorize(ctx context.Context, token string) (string, error)
}

type authService struct {
	users    UserService
	tokens   TokenService
	tokenTTL time.Duration
	logger   logging.Logger
	metrics  *metrics.Metrics
}

// NewAuthService creates a new authentication service.
func NewAuthService(users UserService, tokens TokenService, tokenTTL time.Duration, logger logging.Logger, m *metrics.Metrics) AuthService {
	if logger == nil {
		logger = logging.Nop()
	}
	if tokenTTL <= 0 {
		tokenTTL = auth.DefaultTokenTTL
	}
	return &authService{
		users:    users,
		tokens:   tokens,
		tokenTTL: tokenTTL,
		logger:   logger.With("component", "auth"),
		metrics:  m,
	}
}

func (s *authService) Login(ctx context.Context, username, password string) (auth.Token, error) {
	user, err := s.users.Authenticate(ctx, username, password)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidCredentials) {
			s.metrics.RecordLogin("failure")
			s.logger.Info(ctx, "login rejected", "username", username)
			return auth.Token{}, err
		}
		s.metrics.RecordLogin("error")
		return auth.Token{}, err
	}

	token, err := s.tokens.Issue(user.Username, s.tokenTTL)
	if err != nil {
		s.metrics.RecordLogin("error")
		return auth.Token{}, fmt.Errorf("issue token: %w", err)
	}

	s.metrics.RecordLogin("success")
	s.logger.Info(ctx, "login succeeded", "username", user.Username, "expires_at", token.ExpiresAt)
	return token, nil
}

func (s *authService) Authorize(ctx context.Context, token string) (string, error) {
	if token == "" {
		s.metrics.RecordTokenRejection("missing")
		return "", apperrors.ErrUnauthorized
	}

	subject, err := s.tokens.Validate(token)
	switch {
	case err == nil:
		return subject, nil
	case errors.Is(err, apperrors.ErrTokenExpired):
		s.metrics.RecordTokenRejection("expired")
		s.logger.Info(ctx, "expired token presented")
	default:
		s.metrics.RecordTokenRejection("invalid")
		s.logger.Warn(ctx, "invalid token presented", "error", err)
	}
	return "", err
}
