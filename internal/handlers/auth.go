package handlers

import (
	"net/http"

	"github.com/anonto42/lovesignal/backend/internal/identity"
	"github.com/anonto42/lovesignal/backend/internal/models"
	"github.com/anonto42/lovesignal/backend/internal/services"
	"github.com/labstack/echo/v4"
)

// AuthHandler handles registration and sign-in
type AuthHandler struct {
	accounts *services.AccountService
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(accounts *services.AccountService) *AuthHandler {
	return &AuthHandler{accounts: accounts}
}

// RegisterAuthRoutes registers the unauthenticated routes
func (h *AuthHandler) RegisterAuthRoutes(g *echo.Group) {
	g.POST("/register", h.Register)
	g.POST("/signin", h.SignIn)
	g.POST("/anonymous", h.SignInAnonymously)
}

// RegisterSessionRoutes registers the routes that need a signed-in identity
func (h *AuthHandler) RegisterSessionRoutes(g *echo.Group) {
	g.POST("/auth/signout", h.SignOut)
	g.GET("/profile", h.GetProfile)
}

// Register creates an identity and claims a username for it
func (h *AuthHandler) Register(c echo.Context) error {
	var req models.RegisterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	profile, creds, err := h.accounts.Register(c.Request().Context(), req.Email, req.Password, req.Username)
	if err != nil {
		return httpError(err)
	}
	return ok(c, http.StatusCreated, authResponse(creds, profile))
}

// SignIn authenticates with email and password
func (h *AuthHandler) SignIn(c echo.Context) error {
	var req models.SignInRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	creds, profile, err := h.accounts.SignIn(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return httpError(err)
	}
	return ok(c, http.StatusOK, authResponse(creds, profile))
}

// SignInAnonymously issues an identity without credentials
func (h *AuthHandler) SignInAnonymously(c echo.Context) error {
	creds, err := h.accounts.SignInAnonymously(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return ok(c, http.StatusCreated, authResponse(creds, nil))
}

// SignOut revokes the caller's tokens
func (h *AuthHandler) SignOut(c echo.Context) error {
	identityID, err := currentIdentity(c)
	if err != nil {
		return err
	}
	if err := h.accounts.SignOut(c.Request().Context(), identityID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// GetProfile returns the caller's profile; anonymous identities have none
func (h *AuthHandler) GetProfile(c echo.Context) error {
	identityID, err := currentIdentity(c)
	if err != nil {
		return err
	}
	profile, err := h.accounts.CurrentProfile(c.Request().Context(), identityID)
	if err != nil {
		return httpError(err)
	}
	if profile == nil {
		return echo.NewHTTPError(http.StatusNotFound, "User profile not found")
	}
	return ok(c, http.StatusOK, profile)
}

func authResponse(creds identity.Credentials, profile *models.Profile) models.AuthResponse {
	return models.AuthResponse{
		IdentityID: creds.IdentityID,
		Token:      creds.Token,
		Anonymous:  creds.Anonymous,
		Profile:    profile,
	}
}
