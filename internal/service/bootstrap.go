package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	apperrors "ctrlauth/internal/errors"
	"ctrlauth/internal/logging"
)

// SuperuserConfig describes the account created when no superuser exists yet.
// An empty Password makes EnsureSuperuser generate one.
type SuperuserConfig struct {
	Username string
	Password string
	Email    string
}

// BootstrapResult reports what EnsureSuperuser did.
type BootstrapResult struct {
	Created  bool
	Username string
	// GeneratedPassword is set only when a password had to be generated.
	GeneratedPassword string
}

// EnsureSuperuser creates the configured superuser when the store holds none.
// Safe to run on every start and from several processes at once: the
// store's insert-if-absent decides which process creates the record.
func EnsureSuperuser(ctx context.Context, users UserService, cfg SuperuserConfig, logger logging.Logger) (BootstrapResult, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	existing, err := users.ListUsers(ctx)
	if err != nil {
		return BootstrapResult{}, fmt.Errorf("list users: %w", err)
	}
	for _, u := range existing {
		if u.IsSuperuser {
			logger.Debug(ctx, "superuser present, skipping bootstrap", "username", u.Username)
			return BootstrapResult{Username: u.Username}, nil
		}
	}

	result := BootstrapResult{Username: cfg.Username}
	plaintext := cfg.Password
	if plaintext == "" {
		plaintext, err = GeneratePassword()
		if err != nil {
			return BootstrapResult{}, err
		}
		result.GeneratedPassword = plaintext
	}

	_, err = users.CreateUser(ctx, CreateUserInput{
		Username:    cfg.Username,
		Password:    plaintext,
		Email:       cfg.Email,
		IsSuperuser: true,
	})
	if errors.Is(err, apperrors.ErrUserAlreadyExists) {
		u, getErr := users.GetUser(ctx, cfg.Username)
		if getErr != nil {
			return BootstrapResult{}, fmt.Errorf("inspect existing user: %w", getErr)
		}
		if !u.IsSuperuser {
			return BootstrapResult{}, fmt.Errorf("bootstrap username %q is taken by a regular user", cfg.Username)
		}
		return BootstrapResult{Username: u.Username}, nil
	}
	if err != nil {
		return BootstrapResult{}, fmt.Errorf("create superuser: %w", err)
	}

	result.Created = true
	logger.Info(ctx, "superuser created", "username", cfg.Username)
	return result, nil
}

// GeneratePassword returns a random URL-safe password.
func GeneratePassword() (string, error) {
	buf := make([]byte, 18)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate password: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
