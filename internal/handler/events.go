package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"eventsync/internal/auth"
	"eventsync/internal/models"
	"eventsync/internal/repository"
	"eventsync/internal/service"
)

// EventService is the part of service.EventStore the HTTP layer uses.
type EventService interface {
	Load(ctx context.Context) (service.Snapshot, error)
	Sync(ctx context.Context) (service.Snapshot, error)
	ClearCache(ctx context.Context) error
	HasEvents() bool
	Last() (service.Snapshot, bool)
	Subscribe(buf int) (<-chan service.Snapshot, func())
	SyncStates(ctx context.Context, params repository.ListSyncStatesParams) ([]models.SyncState, error)
}

var _ EventService = (*service.EventStore)(nil)

type EventsHandler struct {
	Store  EventService
	Auth   auth.JWT
	Logger *zap.Logger
	// OriginPatterns are the hosts allowed to open the stream from a browser.
	OriginPatterns []string
}

func (h *EventsHandler) Register(r *gin.Engine) {
	group := r.Group("/api/events")
	group.GET("", h.load)
	group.GET("/sync-state", h.syncState)
	group.GET("/stream", h.stream)

	write := group.Group("", auth.RequireBearer(h.Auth))
	write.POST("/sync", h.sync)
	write.DELETE("/cache", h.clearCache)
}

// @Summary Load events
// @Description Reads the current events from the source, syncing when it is empty and falling back to the local cache on failure.
// @Tags events
// @Produce json
// @Success 200 {object} apiResponse
// @Failure 502 {object} apiResponse
// @Failure 503 {object} apiResponse
// @Router /api/events [get]
func (h *EventsHandler) load(c *gin.Context) {
	if h.Store == nil {
		Error(c, http.StatusInternalServerError, "event store unavailable", nil)
		return
	}
	snap, err := h.Store.Load(c.Request.Context())
	if err != nil {
		h.fail(c, "load events failed", err)
		return
	}
	Ok(c, snap.Events, h.snapshotMeta(snap))
}

// @Summary Sync events
// @Description Submits the refresh transaction, waits for consensus (appealing once on rejection) and returns the refreshed events.
// @Tags events
// @Produce json
// @Security BearerAuth
// @Success 200 {object} apiResponse
// @Failure 401 {object} apiResponse
// @Failure 502 {object} apiResponse
// @Failure 503 {object} apiResponse
// @Failure 504 {object} apiResponse
// @Router /api/events/sync [post]
func (h *EventsHandler) sync(c *gin.Context) {
	if h.Store == nil {
		Error(c, http.StatusInternalServerError, "event store unavailable", nil)
		return
	}
	snap, err := h.Store.Sync(c.Request.Context())
	if err != nil {
		h.fail(c, "sync events failed", err)
		return
	}
	Ok(c, snap.Events, h.snapshotMeta(snap))
}

// @Summary Clear event cache
// @Tags events
// @Produce json
// @Security BearerAuth
// @Success 200 {object} apiResponse
// @Failure 401 {object} apiResponse
// @Router /api/events/cache [delete]
func (h *EventsHandler) clearCache(c *gin.Context) {
	if h.Store == nil {
		Error(c, http.StatusInternalServerError, "event store unavailable", nil)
		return
	}
	if err := h.Store.ClearCache(c.Request.Context()); err != nil {
		h.fail(c, "clear cache failed", err)
		return
	}
	Ok(c, gin.H{"cleared": true}, map[string]any{"has_events": false})
}

// @Summary Sync state
// @Description Last sync attempt per dataset scope.
// @Tags events
// @Produce json
// @Param limit query int false "limit"
// @Param offset query int false "offset"
// @Param source query string false "source name"
// @Success 200 {object} apiResponse
// @Router /api/events/sync-state [get]
func (h *EventsHandler) syncState(c *gin.Context) {
	if h.Store == nil {
		Error(c, http.StatusInternalServerError, "event store unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	var src *string
	if v := strings.TrimSpace(c.Query("source")); v != "" {
		src = &v
	}
	items, err := h.Store.SyncStates(c.Request.Context(), repository.ListSyncStatesParams{Limit: limit, Offset: offset, Source: src})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, int64(len(items))))
}

// streamMessage is one websocket frame.
type streamMessage struct {
	Events []models.Event `json:"events"`
	Meta   map[string]any `json:"meta"`
}

// @Summary Event stream
// @Description Websocket. Sends the latest snapshot on connect, then one message per update.
// @Tags events
// @Router /api/events/stream [get]
func (h *EventsHandler) stream(c *gin.Context) {
	if h.Store == nil {
		Error(c, http.StatusInternalServerError, "event store unavailable", nil)
		return
	}
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{OriginPatterns: h.OriginPatterns})
	if err != nil {
		h.logger().Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	updates, cancel := h.Store.Subscribe(8)
	defer cancel()

	ctx := conn.CloseRead(c.Request.Context())
	if snap, ok := h.Store.Last(); ok {
		if err := h.writeSnapshot(ctx, conn, snap); err != nil {
			return
		}
	}
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case snap, ok := <-updates:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "store closed")
				return
			}
			if err := h.writeSnapshot(ctx, conn, snap); err != nil {
				h.logger().Debug("websocket write failed", zap.Error(err))
				return
			}
		}
	}
}

func (h *EventsHandler) writeSnapshot(ctx context.Context, conn *websocket.Conn, snap service.Snapshot) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	events := snap.Events
	if events == nil {
		events = []models.Event{}
	}
	return wsjson.Write(ctx, conn, streamMessage{Events: events, Meta: h.snapshotMeta(snap)})
}

func (h *EventsHandler) snapshotMeta(snap service.Snapshot) map[string]any {
	meta := map[string]any{
		"has_events": len(snap.Events) > 0,
		"from_cache": snap.FromCache,
		"count":      len(snap.Events),
	}
	if snap.LastSyncedAt != nil {
		meta["last_synced_at"] = snap.LastSyncedAt.UTC().Format(time.RFC3339)
	}
	if snap.Warning != "" {
		meta["warning"] = snap.Warning
	}
	return meta
}

func (h *EventsHandler) fail(c *gin.Context, msg string, err error) {
	status := Fail(c, err, map[string]any{"has_events": h.Store.HasEvents()})
	h.logger().Warn(msg, zap.Int("status", status), zap.Error(err))
}

func (h *EventsHandler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}
