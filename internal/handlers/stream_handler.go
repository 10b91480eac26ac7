package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/anonto42/lovesignal/backend/internal/apperrors"
	"github.com/anonto42/lovesignal/backend/internal/models"
	"github.com/anonto42/lovesignal/backend/internal/repositories"
	"github.com/anonto42/lovesignal/backend/internal/services"
	"github.com/anonto42/lovesignal/backend/internal/store"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// StreamMessage is one frame pushed over a stream socket.
type StreamMessage struct {
	Stream string `json:"stream"`
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

// StreamHandler serves the live log and contact views over websockets. Each connection is
// one session with its own profile cache.
type StreamHandler struct {
	ledger   *services.SignalLedger
	contacts *services.ContactManager
	profiles repositories.ProfileRepository
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewStreamHandler(ledger *services.SignalLedger, contacts *services.ContactManager, profiles repositories.ProfileRepository, logger *zap.Logger) *StreamHandler {
	return &StreamHandler{
		ledger:   ledger,
		contacts: contacts,
		profiles: profiles,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origins are already governed by the CORS middleware and bearer tokens.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger.Named("stream"),
	}
}

// RegisterStreamRoutes registers the websocket routes
func (h *StreamHandler) RegisterStreamRoutes(g *echo.Group) {
	g.GET("/signals/stream", h.StreamLogs)
	g.GET("/contacts/stream", h.StreamContacts)
}

// StreamLogs pushes a LogView after every change to the caller's ledger
func (h *StreamHandler) StreamLogs(c echo.Context) error {
	return h.serve(c, "logs", func(ctx context.Context, identityID string, push func(any)) (store.Subscription, error) {
		return h.ledger.StreamLogs(ctx, identityID, func(v models.LogView) { push(v) })
	})
}

// StreamContacts pushes the caller's contact lists after every change
func (h *StreamHandler) StreamContacts(c echo.Context) error {
	return h.serve(c, "contacts", func(ctx context.Context, identityID string, push func(any)) (store.Subscription, error) {
		return h.contacts.WatchContacts(ctx, identityID, func(l models.ContactLists) { push(l) })
	})
}

type subscribeFunc func(ctx context.Context, identityID string, push func(any)) (store.Subscription, error)

func (h *StreamHandler) serve(c echo.Context, stream string, subscribe subscribeFunc) error {
	identityID, err := currentIdentity(c)
	if err != nil {
		return err
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return nil
	}

	ctx, cancel := context.WithCancel(h.sessionContext(c.Request().Context(), identityID))
	defer cancel()

	// Only the newest view matters; a slow client skips intermediate ones.
	updates := make(chan any, 1)
	push := func(v any) {
		for {
			select {
			case updates <- v:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	}

	sub, err := subscribe(ctx, identityID, push)
	if err != nil {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteJSON(StreamMessage{Stream: stream, Error: apperrors.UserMessage(err)})
		_ = conn.Close()
		return nil
	}
	defer sub.Unsubscribe()

	h.logger.Debug("stream opened", zap.String("stream", stream), zap.String("identity", identityID))
	readerDone := make(chan struct{})
	go h.readLoop(conn, cancel, readerDone)

	h.writeLoop(ctx, conn, stream, updates)
	_ = conn.Close()
	<-readerDone
	h.logger.Debug("stream closed", zap.String("stream", stream), zap.String("identity", identityID))
	return nil
}

// readLoop discards client frames and cancels the stream when the socket goes away.
func (h *StreamHandler) readLoop(conn *websocket.Conn, cancel context.CancelFunc, done chan<- struct{}) {
	defer close(done)
	defer cancel()
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *StreamHandler) writeLoop(ctx context.Context, conn *websocket.Conn, stream string, updates <-chan any) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case v := <-updates:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(StreamMessage{Stream: stream, Data: v}); err != nil {
				h.logger.Debug("stream write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// sessionContext seeds the connection's profile cache with the caller's own profile.
func (h *StreamHandler) sessionContext(ctx context.Context, identityID string) context.Context {
	var self *models.Profile
	if p, err := h.profiles.GetProfile(ctx, identityID); err == nil {
		self = p
	}
	return services.WithProfileCache(ctx, services.NewProfileCache(h.profiles, self))
}
