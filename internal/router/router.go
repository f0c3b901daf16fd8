package router

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	echoSwagger "github.com/swaggo/echo-swagger"

	"ctrlauth/docs"
	"ctrlauth/internal/config"
	apperrors "ctrlauth/internal/errors"
	"ctrlauth/internal/handler"
	"ctrlauth/internal/logging"
	"ctrlauth/internal/metrics"
	"ctrlauth/internal/service"
)

// ContextKeyUser is where the authenticated username is stored on the echo context.
const ContextKeyUser = "user"

// Register wires routes and middleware.
func Register(
	e *echo.Echo,
	cfg *config.Config,
	authHandler *handler.AuthHandler,
	userHandler *handler.UserHandler,
	authService service.AuthService,
	m *metrics.Metrics,
	logger logging.Logger,
) {
	if logger == nil {
		logger = logging.Nop()
	}

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.RequestID())
	e.Use(logging.RequestLogger(logger))
	e.Use(middleware.Recover())

	// Add validator
	e.Validator = &CustomValidator{validator: validator.New()}

	docs.SwaggerInfo.BasePath = cfg.APIPrefix
	if cfg.SwaggerHost != "" {
		docs.SwaggerInfo.Host = cfg.SwaggerHost
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	if m != nil {
		e.GET("/metrics", echo.WrapHandler(m.Handler()))
	}
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	api := e.Group(cfg.APIPrefix)

	// Public routes
	api.GET("/auth/login", authHandler.Login)

	// Secured routes (require a bearer token)
	secured := api.Group("", echojwt.WithConfig(JWTConfig(authService, m)))

	secured.GET("/auth/users", userHandler.ListUsers)
	secured.POST("/auth/users", userHandler.CreateUser)
	secured.GET("/auth/users/:username", userHandler.GetUser)
	secured.PATCH("/auth/users/:username", userHandler.UpdateUser)
	secured.DELETE("/auth/users/:username", userHandler.DeleteUser)
}

// JWTConfig builds the echo-jwt configuration that delegates token checks to
// authService. Every rejection becomes the same 401 response.
func JWTConfig(authService service.AuthService, m *metrics.Metrics) echojwt.Config {
	return echojwt.Config{
		ContextKey:  ContextKeyUser,
		TokenLookup: "header:" + echo.HeaderAuthorization + ":Bearer ",
		ParseTokenFunc: func(c echo.Context, token string) (interface{}, error) {
			return authService.Authorize(c.Request().Context(), token)
		},
		ErrorHandler: func(c echo.Context, err error) error {
			var extractErr *echojwt.TokenExtractionError
			if errors.As(err, &extractErr) {
				m.RecordTokenRejection("missing")
			}
			httpErr := apperrors.MapErrorToHTTP(apperrors.ErrUnauthorized)
			return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
		},
	}
}

// CustomValidator wraps validator for Echo.
type CustomValidator struct {
	validator *validator.Validate
}

// Validate implements echo.Validator interface.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}
