// Package wsevents streams a device's progress events over WebSocket.
package wsevents

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"nhooyr.io/websocket"

	"github.com/playperu/storyline/internal/events"
)

// Authenticator checks a device key.
type Authenticator interface {
	Authenticate(ctx context.Context, device, key string) error
}

type Handler struct {
	broker *events.Broker
	auth   Authenticator
	logger *slog.Logger
}

func NewHandler(logger *slog.Logger, broker *events.Broker, auth Authenticator) *Handler {
	return &Handler{broker: broker, auth: auth, logger: logger.With("component", "wsevents")}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{device}/events", h.stream)
	return r
}

// stream authenticates the device with the key query parameter.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	device := chi.URLParam(r, "device")
	if err := h.auth.Authenticate(r.Context(), device, r.URL.Query().Get("key")); err != nil {
		http.Error(w, "not authenticated", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Error("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ch := h.broker.Subscribe(device)
	defer h.broker.Unsubscribe(device, ch)

	// Clients only listen; CloseRead handles their control frames and
	// cancels ctx once they go away.
	ctx := conn.CloseRead(r.Context())

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("websocket closed", "device", device, "error", ctx.Err())
			return
		case msg := <-ch:
			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(wctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				h.logger.Debug("websocket write failed", "device", device, "error", err)
				return
			}
		case <-ping.C:
			if err := conn.Ping(ctx); err != nil {
				return
			}
		}
	}
}
