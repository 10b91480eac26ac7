package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/anonto42/lovesignal/backend/internal/store"
	"github.com/labstack/echo/v4"
)

// HealthHandler reports liveness and whether the document store answers.
type HealthHandler struct {
	store   store.Store
	backend string
}

func NewHealthHandler(s store.Store, backend string) *HealthHandler {
	return &HealthHandler{store: s, backend: backend}
}

func (h *HealthHandler) HealthCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status, code := "healthy", http.StatusOK
	if _, err := h.store.Query(ctx, store.CollectionUsernames, store.Query{}.Where("_probe", true)); err != nil {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	return c.JSON(code, map[string]string{
		"status":  status,
		"service": "lovesignal-api",
		"store":   h.backend,
	})
}
