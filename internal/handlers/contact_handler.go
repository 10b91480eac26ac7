package handlers

import (
	"net/http"

	"github.com/anonto42/lovesignal/backend/internal/models"
	"github.com/anonto42/lovesignal/backend/internal/repositories"
	"github.com/anonto42/lovesignal/backend/internal/services"
	"github.com/labstack/echo/v4"
)

// ContactHandler handles HTTP requests related to contacts
type ContactHandler struct {
	contacts *services.ContactManager
	profiles repositories.ProfileRepository
}

// NewContactHandler creates a new ContactHandler
func NewContactHandler(contacts *services.ContactManager, profiles repositories.ProfileRepository) *ContactHandler {
	return &ContactHandler{contacts: contacts, profiles: profiles}
}

// RegisterContactRoutes registers contact-related routes
func (h *ContactHandler) RegisterContactRoutes(g *echo.Group) {
	g.POST("/contacts/requests", h.RequestContact)
	g.GET("/contacts/requests/incoming", h.GetIncomingRequests)
	g.GET("/contacts/requests/outgoing", h.GetOutgoingRequests)
	g.POST("/contacts/requests/:id/accept", h.AcceptRequest)
	g.POST("/contacts/requests/:id/decline", h.DeclineRequest)
	g.GET("/contacts", h.GetContacts)
	g.DELETE("/contacts/:id", h.RemoveContact)
}

// RequestContact sends a contact request to a username
func (h *ContactHandler) RequestContact(c echo.Context) error {
	identityID, err := currentIdentity(c)
	if err != nil {
		return err
	}

	var req models.CreateContactRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	res, err := h.contacts.RequestContact(sessionContext(c, h.profiles), identityID, req.Username)
	if err != nil {
		return httpError(err)
	}
	status := http.StatusCreated
	if !res.Created {
		status = http.StatusOK
	}
	return ok(c, status, res)
}

// GetIncomingRequests lists pending requests addressed to the caller
func (h *ContactHandler) GetIncomingRequests(c echo.Context) error {
	identityID, err := currentIdentity(c)
	if err != nil {
		return err
	}
	requests, err := h.contacts.ListIncomingRequests(sessionContext(c, h.profiles), identityID)
	if err != nil {
		return httpError(err)
	}
	return ok(c, http.StatusOK, requests)
}

// GetOutgoingRequests lists pending requests the caller sent
func (h *ContactHandler) GetOutgoingRequests(c echo.Context) error {
	identityID, err := currentIdentity(c)
	if err != nil {
		return err
	}
	requests, err := h.contacts.ListOutgoingRequests(sessionContext(c, h.profiles), identityID)
	if err != nil {
		return httpError(err)
	}
	return ok(c, http.StatusOK, requests)
}

// AcceptRequest accepts a pending request addressed to the caller
func (h *ContactHandler) AcceptRequest(c echo.Context) error {
	identityID, err := currentIdentity(c)
	if err != nil {
		return err
	}
	contact, err := h.contacts.AcceptRequest(sessionContext(c, h.profiles), c.Param("id"), identityID)
	if err != nil {
		return httpError(err)
	}
	return ok(c, http.StatusOK, contact)
}

// DeclineRequest declines a pending request addressed to the caller
func (h *ContactHandler) DeclineRequest(c echo.Context) error {
	identityID, err := currentIdentity(c)
	if err != nil {
		return err
	}
	if err := h.contacts.DeclineRequest(c.Request().Context(), c.Param("id"), identityID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// GetContacts lists the caller's accepted contacts
func (h *ContactHandler) GetContacts(c echo.Context) error {
	identityID, err := currentIdentity(c)
	if err != nil {
		return err
	}
	contacts, err := h.contacts.ListContacts(sessionContext(c, h.profiles), identityID)
	if err != nil {
		return httpError(err)
	}
	return ok(c, http.StatusOK, contacts)
}

// RemoveContact deletes an accepted contact
func (h *ContactHandler) RemoveContact(c echo.Context) error {
	identityID, err := currentIdentity(c)
	if err != nil {
		return err
	}
	if err := h.contacts.RemoveContact(sessionContext(c, h.profiles), c.Param("id"), identityID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
