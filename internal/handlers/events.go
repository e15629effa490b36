package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwebster45206/closed-ai/internal/game"
	"github.com/jwebster45206/closed-ai/internal/services/events"
)

const keepaliveInterval = 30 * time.Second

// RoomSubscriber follows the emissions of a room.
type RoomSubscriber interface {
	Subscribe(ctx context.Context, room string) (*events.Subscription, error)
}

// EventsHandler relays a game's room emissions as Server-Sent Events, for
// clients that do not speak socket.io.
type EventsHandler struct {
	games      *GamesHandler
	subscriber RoomSubscriber
	keepalive  time.Duration
	logger     *slog.Logger
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(games *GamesHandler, subscriber RoomSubscriber, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		games:      games,
		subscriber: subscriber,
		keepalive:  keepaliveInterval,
		logger:     logger,
	}
}

func (h *EventsHandler) Register(r gin.IRouter) {
	r.GET("/:id/events", h.Stream)
}

// Stream handles GET /api/games/:id/events.
func (h *EventsHandler) Stream(c *gin.Context) {
	g, ok := h.games.memberGame(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	sub, err := h.subscriber.Subscribe(ctx, game.GameRoom(g.ID()))
	if err != nil {
		h.logger.Error("Failed to subscribe to game events", "error", err, "game_id", g.ID())
		respondWithError(c, http.StatusInternalServerError, msgUnknown)
		return
	}
	defer func() {
		if err := sub.Close(); err != nil {
			h.logger.Error("Failed to close subscription", "error", err)
		}
	}()

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	h.logger.Info("SSE connection established", "game_id", g.ID(), "remote_addr", c.Request.RemoteAddr)

	keepaliveTicker := time.NewTicker(h.keepalive)
	defer keepaliveTicker.Stop()

	if !h.sendSSE(w, "connected", gin.H{"gameId": g.ID(), "blocked": g.Blocked()}) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("SSE client disconnected", "game_id", g.ID())
			return

		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			var data any = json.RawMessage("null")
			if len(event.Data) > 0 {
				data = event.Data
			}
			if !h.sendSSE(w, event.Event, data) {
				return
			}

		case <-keepaliveTicker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				h.logger.Debug("Failed to write keepalive", "error", err)
				return
			}
			w.Flush()
		}
	}
}

// sendSSE writes one event and reports whether the client is still there.
func (h *EventsHandler) sendSSE(w gin.ResponseWriter, eventType string, data any) bool {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("Failed to marshal SSE data", "error", err)
		return true
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, dataJSON); err != nil {
		h.logger.Debug("Failed to write event", "error", err)
		return false
	}
	w.Flush()
	return true
}
