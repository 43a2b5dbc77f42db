package events

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/squadron-ops/eventbot/internal/models"
	"github.com/squadron-ops/eventbot/pkg/response"
)

// Operations is the service surface the handler drives.
type Operations interface {
	Publish(ctx context.Context, eventID uuid.UUID) Result
	SchedulePublish(ctx context.Context, eventID uuid.UUID, at time.Time) Result
	Edit(ctx context.Context, eventID uuid.UUID, req EditRequest) Result
	Delete(ctx context.Context, eventID uuid.UUID) Result
	SendManualReminder(ctx context.Context, eventID uuid.UUID, req ManualReminder) Result
}

// Reader loads events for GET.
type Reader interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Event, error)
}

// ArchiveLinker returns a download link for a finalized event's snapshot.
type ArchiveLinker interface {
	ArchiveURL(ctx context.Context, eventID string) (string, error)
}

// Handler handles event admin HTTP endpoints.
type Handler struct {
	ops     Operations
	reader  Reader
	archive ArchiveLinker // optional
	logger  *zap.Logger
}

// NewHandler creates an events handler.
func NewHandler(ops Operations, reader Reader, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{ops: ops, reader: reader, logger: logger}
}

// SetArchiveLinker enables GET /events/:id/archive.
func (h *Handler) SetArchiveLinker(a ArchiveLinker) { h.archive = a }

// Register mounts the event routes on r.
func (h *Handler) Register(r gin.IRouter) {
	g := r.Group("/events")
	g.GET("/:id", h.Get)
	g.PATCH("/:id", h.Edit)
	g.DELETE("/:id", h.Delete)
	g.POST("/:id/publish", h.Publish)
	g.POST("/:id/remind", h.Remind)
	g.GET("/:id/archive", h.Archive)
}

func eventID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) reply(c *gin.Context, res Result) {
	if res.Success {
		response.OK(c, res)
		return
	}
	if res.NotFound {
		response.Fail(c, http.StatusNotFound, res, res.Error)
		return
	}
	response.Unprocessable(c, res, res.Error)
}

// Get handles GET /events/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	ev, err := h.reader.Get(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get event failed", zap.String("event_id", id.String()), zap.Error(err))
		response.Internal(c, "failed to load event")
		return
	}
	if ev == nil {
		response.NotFound(c, ErrNotFound.Error())
		return
	}
	response.OK(c, ev)
}

// PublishRequest optionally defers the announcement.
type PublishRequest struct {
	PublishAt *time.Time `json:"publish_at"`
}

// Publish handles POST /events/:id/publish. An empty body publishes now.
func (h *Handler) Publish(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	var req PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(c, "invalid body: "+err.Error())
		return
	}
	if req.PublishAt != nil {
		h.reply(c, h.ops.SchedulePublish(c.Request.Context(), id, *req.PublishAt))
		return
	}
	h.reply(c, h.ops.Publish(c.Request.Context(), id))
}

// Edit handles PATCH /events/:id.
func (h *Handler) Edit(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	var req EditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid body: "+err.Error())
		return
	}
	h.reply(c, h.ops.Edit(c.Request.Context(), id, req))
}

// Delete handles DELETE /events/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	h.reply(c, h.ops.Delete(c.Request.Context(), id))
}

// Remind handles POST /events/:id/remind.
func (h *Handler) Remind(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	var req ManualReminder
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid body: "+err.Error())
		return
	}
	h.reply(c, h.ops.SendManualReminder(c.Request.Context(), id, req))
}

// Archive handles GET /events/:id/archive and returns a pre-signed link to the snapshot.
func (h *Handler) Archive(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	if h.archive == nil {
		response.ServiceUnavailable(c, "archive storage not configured")
		return
	}
	ev, err := h.reader.Get(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "failed to load event")
		return
	}
	if ev == nil {
		response.NotFound(c, ErrNotFound.Error())
		return
	}
	if ev.FinalizedAt == nil {
		response.Conflict(c, "event has not been finalized")
		return
	}
	url, err := h.archive.ArchiveURL(c.Request.Context(), id.String())
	if err != nil {
		h.logger.Error("presign archive failed", zap.String("event_id", id.String()), zap.Error(err))
		response.Internal(c, "failed to generate archive link")
		return
	}
	response.OK(c, gin.H{"url": url})
}
