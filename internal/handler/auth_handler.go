package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"ctrlauth/internal/errors"
	"ctrlauth/internal/service"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	authService service.AuthService
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(authService service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// TokenResponse represents a successful login.
type TokenResponse struct {
	Token string `json:"token"`
}

// Login godoc
// @Summary Exchange basic credentials for a bearer token
// @Tags auth
// @Produce json
// @Security BasicAuth
// @Success 200 {object} TokenResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /auth/login [get]
func (h *AuthHandler) Login(c echo.Context) error {
	username, password, ok := c.Request().BasicAuth()
	if !ok {
		c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Basic realm="ctrlauth"`)
		return echo.NewHTTPError(http.StatusUnauthorized, errors.ErrorResponse{
			Error: "basic credentials required",
			Code:  "INVALID_CREDENTIALS",
		})
	}

	token, err := h.authService.Login(c.Request().Context(), username, password)
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}

	return c.JSON(http.StatusOK, TokenResponse{Token: token.Value})
}
