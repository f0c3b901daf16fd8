package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"ctrlauth/internal/config"
	apperrors "ctrlauth/internal/errors"
	"ctrlauth/internal/logging"
	"ctrlauth/internal/password"
	"ctrlauth/internal/repository"
	"ctrlauth/internal/service"
)

func main() {
	username := flag.String("username", "", "create this superuser instead of the configured bootstrap account")
	plaintext := flag.String("password", "", "password for -username (generated when empty)")
	email := flag.String("email", "", "email for -username")
	flag.Parse()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, os.Stderr)
	ctx := context.Background()

	if err := run(ctx, cfg, logger, *username, *plaintext, *email); err != nil {
		logger.Error(ctx, "createsuperuser failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger logging.Logger, username, plaintext, email string) error {
	hasher, err := password.New(cfg.PasswordHasher)
	if err != nil {
		return err
	}

	repo, err := repository.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	users := service.NewUserService(repo, hasher, nil, logger, nil)

	if username == "" {
		result, err := service.EnsureSuperuser(ctx, users, service.SuperuserConfig{
			Username: cfg.SuperuserName,
			Password: cfg.SuperuserPassword,
			Email:    cfg.SuperuserEmail,
		}, logger)
		if err != nil {
			return err
		}
		if !result.Created {
			fmt.Printf("superuser %q already present, nothing to do\n", result.Username)
			return nil
		}
		report(result.Username, result.GeneratedPassword)
		return nil
	}

	generated := ""
	if plaintext == "" {
		if plaintext, err = service.GeneratePassword(); err != nil {
			return err
		}
		generated = plaintext
	}

	_, err = users.CreateUser(ctx, service.CreateUserInput{
		Username:    username,
		Password:    plaintext,
		Email:       email,
		IsSuperuser: true,
	})
	if errors.Is(err, apperrors.ErrUserAlreadyExists) {
		return fmt.Errorf("user %q already exists", username)
	}
	if err != nil {
		return err
	}
	report(username, generated)
	return nil
}

func report(username, generated string) {
	fmt.Printf("superuser %q created\n", username)
	if generated != "" {
		fmt.Printf("password: %s\n", generated)
	}
}
