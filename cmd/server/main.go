package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "ctrlauth/docs" // swagger docs

	"github.com/labstack/echo/v4"

	"ctrlauth/internal/auth"
	"ctrlauth/internal/cache"
	"ctrlauth/internal/config"
	"ctrlauth/internal/handler"
	"ctrlauth/internal/logging"
	"ctrlauth/internal/metrics"
	"ctrlauth/internal/password"
	"ctrlauth/internal/repository"
	"ctrlauth/internal/router"
	"ctrlauth/internal/service"
)

// @title Controller Auth API
// @version 1.0
// @description Token authentication and user management for the controller's REST API.
// @host localhost:8181
// @BasePath /api/kytos/core
// @schemes http
// @securityDefinitions.basic BasicAuth
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error(context.Background(), "server stopped", "error", err)
		os.Exit(1)
	}
}

// run serves until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, logger *logging.SlogLogger) error {
	hasher, err := password.New(cfg.PasswordHasher)
	if err != nil {
		return err
	}

	repo, err := repository.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer repo.Close()
	logger.Info(ctx, "credential store ready", "backend", cfg.StoreBackend)

	var cacheClient *cache.Client
	if cfg.UserCache {
		cacheClient = cache.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		defer cacheClient.Close()
	}

	if cfg.JWTSecret == "" {
		logger.Warn(ctx, "JWT_SECRET not set, tokens will not survive a restart")
	}
	key, err := auth.LoadSigningKey(cfg.JWTSecret)
	if err != nil {
		return err
	}
	jwtService := auth.NewJWTService(key)
	m := metrics.New()

	// Initialize services
	userService := service.NewUserService(repo, hasher, cacheClient, logger, m)
	authService := service.NewAuthService(userService, jwtService, cfg.TokenTTL, logger, m)

	result, err := service.EnsureSuperuser(ctx, userService, service.SuperuserConfig{
		Username: cfg.SuperuserName,
		Password: cfg.SuperuserPassword,
		Email:    cfg.SuperuserEmail,
	}, logger)
	if err != nil {
		return err
	}
	if result.GeneratedPassword != "" {
		logger.Warn(ctx, "generated superuser password printed to stderr", "username", result.Username)
		reportGeneratedPassword(os.Stderr, result.Username, result.GeneratedPassword)
	}

	e := echo.New()
	e.HideBanner = true
	e.Logger.SetLevel(logging.EchoLevel(cfg.LogLevel))

	// Initialize handlers
	authHandler := handler.NewAuthHandler(authService)
	userHandler := handler.NewUserHandler(userService)

	// Register routes
	router.Register(e, cfg, authHandler, userHandler, authService, m, logger)

	addr := ":" + cfg.ServerPort
	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "listening", "addr", addr, "prefix", cfg.APIPrefix)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info(shutdownCtx, "shutting down")
	return e.Shutdown(shutdownCtx)
}

// reportGeneratedPassword writes the one-time superuser password outside the log stream.
func reportGeneratedPassword(w io.Writer, username, plaintext string) {
	fmt.Fprintf(w, "superuser %q created with generated password: %s\n", username, plaintext)
	fmt.Fprintln(w, "change it after first login")
}
