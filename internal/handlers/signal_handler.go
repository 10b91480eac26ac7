package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/anonto42/lovesignal/backend/internal/models"
	"github.com/anonto42/lovesignal/backend/internal/repositories"
	"github.com/anonto42/lovesignal/backend/internal/services"
	"github.com/labstack/echo/v4"
)

// SignalHandler handles HTTP requests related to the signal ledger
type SignalHandler struct {
	ledger   *services.SignalLedger
	profiles repositories.ProfileRepository
	// logTimeout bounds how long GetLogs waits for the first view.
	logTimeout time.Duration
}

// NewSignalHandler creates a new SignalHandler
func NewSignalHandler(ledger *services.SignalLedger, profiles repositories.ProfileRepository) *SignalHandler {
	return &SignalHandler{ledger: ledger, profiles: profiles, logTimeout: 10 * time.Second}
}

// RegisterSignalRoutes registers signal-related routes
func (h *SignalHandler) RegisterSignalRoutes(g *echo.Group) {
	g.GET("/signals/categories", h.GetCategories)
	g.POST("/signals", h.SendSignal)
	g.PATCH("/signals/:id", h.EditSignal)
	g.DELETE("/signals/:id", h.DeleteSignal)
	g.GET("/signals/logs", h.GetLogs)
	g.GET("/signals/summary", h.GetSummary)
	g.GET("/signals/report", h.GetReport)
}

// GetCategories returns the configured signal types and ledger settings
func (h *SignalHandler) GetCategories(c echo.Context) error {
	return ok(c, http.StatusOK, echo.Map{
		"categories": h.ledger.Categories(),
		"policy":     h.ledger.Policy().Name(),
		"mode":       h.ledger.Mode(),
	})
}

// SendSignal records a signal from the caller
func (h *SignalHandler) SendSignal(c echo.Context) error {
	identityID, err := currentIdentity(c)
	if err != nil {
		return err
	}

	var req models.SendSignalRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	target := services.RecipientTarget{Kind: req.Target, Value: req.Recipient}
	id, err := h.ledger.SendSignal(sessionContext(c, h.profiles), identityID, target, req.Message, req.Type)
	if err != nil {
		return httpError(err)
	}
	return ok(c, http.StatusCreated, echo.Map{"id": id})
}

// EditSignal changes a signal the caller sent
func (h *SignalHandler) EditSignal(c echo.Context) error {
	identityID, err := currentIdentity(c)
	if err != nil {
		return err
	}

	var req models.EditSignalRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	patch := models.SignalPatch{Message: req.Message, Type: req.Type, RecipientID: req.RecipientID}
	signal, err := h.ledger.EditSignal(c.Request().Context(), c.Param("id"), identityID, patch)
	if err != nil {
		return httpError(err)
	}
	return ok(c, http.StatusOK, signal)
}

// DeleteSignal removes a signal the caller sent
func (h *SignalHandler) DeleteSignal(c echo.Context) error {
	identityID, err := currentIdentity(c)
	if err != nil {
		return err
	}
	if err := h.ledger.DeleteSignal(c.Request().Context(), c.Param("id"), identityID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// GetLogs returns the current merged log. Clients that want updates use the stream.
func (h *SignalHandler) GetLogs(c echo.Context) error {
	identityID, err := currentIdentity(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(sessionContext(c, h.profiles), h.logTimeout)
	defer cancel()

	views := make(chan models.LogView, 1)
	sub, err := h.ledger.StreamLogs(ctx, identityID, func(v models.LogView) {
		select {
		case views <- v:
		default:
		}
	})
	if err != nil {
		return httpError(err)
	}
	defer sub.Unsubscribe()

	select {
	case view := <-views:
		return ok(c, http.StatusOK, view)
	case <-ctx.Done():
		return echo.NewHTTPError(http.StatusServiceUnavailable, "The service is temporarily unavailable, please try again.")
	}
}

// GetSummary returns sent and received counts with the love index
func (h *SignalHandler) GetSummary(c echo.Context) error {
	identityID, err := currentIdentity(c)
	if err != nil {
		return err
	}
	summary, err := h.ledger.Summary(c.Request().Context(), identityID)
	if err != nil {
		return httpError(err)
	}
	return ok(c, http.StatusOK, summary)
}

// GetReport returns per-category counts
func (h *SignalHandler) GetReport(c echo.Context) error {
	identityID, err := currentIdentity(c)
	if err != nil {
		return err
	}
	rows, err := h.ledger.ComputeReportBreakdown(c.Request().Context(), identityID)
	if err != nil {
		return httpError(err)
	}
	return ok(c, http.StatusOK, rows)
}
