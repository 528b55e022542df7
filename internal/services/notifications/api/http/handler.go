// Package httpapi exposes the notifications service over HTTP, including
// the live websocket feed.
package httpapi

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/net/websocket"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	apperrors "github.com/veravid/veravid/internal/platform/errors"
	"github.com/veravid/veravid/internal/platform/httpjson"
	"github.com/veravid/veravid/internal/platform/requestctx"
	"github.com/veravid/veravid/internal/services/notifications/domain"
	"github.com/veravid/veravid/internal/services/notifications/registry"
	"github.com/veravid/veravid/internal/services/notifications/render"
)

// Handler serves inbox and live-feed endpoints.
type Handler struct {
	notifications *domain.Service
	registry      registry.Registry
	ticket        TicketConfig
	printer       render.Localizer
	logger        *log.Logger
	clock         func() time.Time
}

// NewHandler builds the notifications HTTP handler.
func NewHandler(notifications *domain.Service, reg registry.Registry, ticket TicketConfig, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		notifications: notifications,
		registry:      reg,
		ticket:        ticket,
		printer:       message.NewPrinter(language.English),
		logger:        logger,
		clock:         time.Now,
	}
}

// WithClock overrides the handler clock, for tests.
func (h *Handler) WithClock(clock func() time.Time) *Handler {
	if clock != nil {
		h.clock = clock
	}
	return h
}

// RegisterRoutes mounts notification endpoints on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc(http.MethodGet+" /notifications", h.handleInbox)
	mux.HandleFunc(http.MethodPost+" /notifications/{id}/read", h.handleMarkRead)
	mux.HandleFunc(http.MethodPost+" /notifications/ws-ticket", h.handleWSTicket)
	mux.Handle(http.MethodGet+" /notifications/ws", h.wsHandler())
}

func callerUserID(r *http.Request) (string, error) {
	caller, ok := requestctx.CallerFromContext(r.Context())
	if !ok {
		return "", apperrors.E(apperrors.KindUnauthorized, "authentication required")
	}
	return caller.UserID, nil
}

type notificationResponse struct {
	ID        string     `json:"id"`
	Topic     string     `json:"topic"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	CreatedAt time.Time  `json:"created_at"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
}

func (h *Handler) toNotificationResponse(notification domain.Notification) notificationResponse {
	copy := render.Render(h.printer, render.Input{
		Topic:       notification.Topic,
		PayloadJSON: notification.PayloadJSON,
	})
	return notificationResponse{
		ID:        notification.ID,
		Topic:     notification.Topic,
		Title:     copy.Title,
		Body:      copy.Body,
		CreatedAt: notification.CreatedAt,
		ReadAt:    notification.ReadAt,
	}
}

func (h *Handler) handleInbox(w http.ResponseWriter, r *http.Request) {
	userID, err := callerUserID(r)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}

	pageSize := 0
	if raw := r.URL.Query().Get("page_size"); raw != "" {
		pageSize, err = strconv.Atoi(raw)
		if err != nil {
			httpjson.WriteError(w, apperrors.E(apperrors.KindInvalidInput, "page_size must be an integer"))
			return
		}
	}

	page, err := h.notifications.ListInbox(r.Context(), domain.ListInboxInput{
		RecipientUserID: userID,
		PageSize:        pageSize,
		PageToken:       r.URL.Query().Get("page_token"),
	})
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}

	responses := make([]notificationResponse, 0, len(page.Notifications))
	for _, notification := range page.Notifications {
		responses = append(responses, h.toNotificationResponse(notification))
	}
	httpjson.Write(w, http.StatusOK, map[string]any{
		"notifications":   responses,
		"next_page_token": page.NextPageToken,
	})
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	userID, err := callerUserID(r)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}

	notification, err := h.notifications.MarkRead(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, h.toNotificationResponse(notification))
}

func (h *Handler) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	userID, err := callerUserID(r)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}

	ticket, err := mintTicket(h.ticket, userID, h.clock().UTC())
	if err != nil {
		h.logger.Printf("notifications: mint ticket: %v", err)
		httpjson.WriteError(w, apperrors.E(apperrors.KindUnknown, "could not mint ticket"))
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(h.ticket.TTL.Seconds()),
	})
}

// wsHandler upgrades the live feed connection. Identity comes from the
// ticket query parameter rather than the cookie, so non-browser clients
// can connect the same way.
func (h *Handler) wsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := parseTicket(h.ticket, r.URL.Query().Get("ticket"), h.clock)
		if err != nil {
			httpjson.WriteError(w, err)
			return
		}

		websocket.Handler(func(conn *websocket.Conn) {
			defer conn.Close()

			events, cancel := h.registry.Subscribe(userID)
			defer cancel()

			done := r.Context().Done()
			for {
				select {
				case event, ok := <-events:
					if !ok {
						return
					}
					if err := websocket.JSON.Send(conn, event); err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}).ServeHTTP(w, r)
	})
}
