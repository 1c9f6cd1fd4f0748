package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mr1hm/go-hazard-tasks/internal/broadcast"
	"github.com/mr1hm/go-hazard-tasks/internal/logging"
	"github.com/mr1hm/go-hazard-tasks/internal/models"
	"github.com/mr1hm/go-hazard-tasks/internal/orchestrator"
	"github.com/mr1hm/go-hazard-tasks/internal/repository"
)

const (
	defaultLimit = 20
	maxLimit     = 500

	streamHeartbeat = 30 * time.Second
)

// TaskService is the orchestrator as seen by the HTTP layer.
type TaskService interface {
	ResolveOrCreate(ctx context.Context, req orchestrator.ResolveRequest) (*orchestrator.Result, error)
	UpdateStatus(ctx context.Context, taskID string, status models.TaskStatus, reason string) (*models.Task, error)
	Regenerate(ctx context.Context, taskID string, force bool) (*models.Task, error)
	Get(ctx context.Context, id string) (*models.Task, error)
	List(ctx context.Context, filter repository.Filter) ([]models.Task, error)
	Delete(ctx context.Context, eventID string) (int64, error)
}

type Handler struct {
	tasks       TaskService
	broadcaster *broadcast.Broadcaster
	log         *slog.Logger
}

// NewHandler builds the HTTP handler. broadcaster may be nil, which disables
// the task stream.
func NewHandler(tasks TaskService, broadcaster *broadcast.Broadcaster) *Handler {
	return &Handler{
		tasks:       tasks,
		broadcaster: broadcaster,
		log:         logging.Component("api"),
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/api/tasks", h.createTask)
	r.GET("/api/tasks", h.listTasks)
	r.GET("/api/tasks/stream", h.streamTasks)
	r.GET("/api/tasks/:id", h.getTask)
	r.GET("/api/tasks/:id/aoi", h.getTaskAOI)
	r.PATCH("/api/tasks/:id/status", h.updateStatus)
	r.POST("/api/tasks/:id/regenerate", h.regenerate)
	r.DELETE("/api/events/:eventId/tasks", h.deleteEventTasks)
	r.GET("/health", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

type createTaskRequest struct {
	EventID   string     `json:"event_id" binding:"required"`
	EventType string     `json:"event_type" binding:"required"`
	Analysis  string     `json:"analysis" binding:"required"`
	Asset     string     `json:"asset"`
	UserID    string     `json:"user_id"`
	Latitude  *float64   `json:"latitude"`
	Longitude *float64   `json:"longitude"`
	Magnitude *float64   `json:"magnitude"`
	Time      *time.Time `json:"time"`
	Location  string     `json:"location"`
	Country   string     `json:"country"`
}

func (h *Handler) createTask(c *gin.Context) {
	var body createTaskRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.tasks.ResolveOrCreate(c.Request.Context(), orchestrator.ResolveRequest{
		EventID:   body.EventID,
		EventType: models.EventType(body.EventType),
		Analysis:  models.AnalysisType(body.Analysis),
		Asset:     body.Asset,
		UserID:    body.UserID,
		Latitude:  body.Latitude,
		Longitude: body.Longitude,
		Magnitude: body.Magnitude,
		Time:      body.Time,
		Location:  body.Location,
		Country:   body.Country,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	code := http.StatusCreated
	if res.Existing {
		code = http.StatusOK
	}
	c.JSON(code, gin.H{
		"task_id":  res.Task.ID,
		"filename": res.Task.Filename,
		"status":   res.Task.Status,
		"existing": res.Existing,
	})
}

func (h *Handler) listTasks(c *gin.Context) {
	filter := repository.Filter{
		Limit:   defaultLimit,
		EventID: c.Query("event_id"),
		UserID:  c.Query("user_id"),
	}

	if t := c.Query("event_type"); t != "" {
		if et, ok := models.ParseEventType(t); ok {
			filter.EventType = &et
		}
	}
	if a := c.Query("analysis"); a != "" {
		if at, ok := models.ParseAnalysisType(a); ok {
			filter.Analysis = &at
		}
	}
	if s := c.Query("status"); s != "" {
		if st, ok := models.ParseTaskStatus(s); ok {
			filter.Status = &st
		}
	}
	if s := c.Query("since"); s != "" {
		if t, err := time.Parse("2006-01-02", s); err == nil {
			filter.Since = &t
		}
	}
	if l := c.Query("limit"); l != "" {
		if lim, err := strconv.Atoi(l); err == nil && lim > 0 && lim <= maxLimit {
			filter.Limit = lim
		}
	}
	if o := c.Query("offset"); o != "" {
		if off, err := strconv.Atoi(o); err == nil && off >= 0 {
			filter.Offset = off
		}
	}

	tasks, err := h.tasks.List(c.Request.Context(), filter)
	if err != nil {
		h.log.Error("error listing tasks", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch tasks"})
		return
	}

	if c.Query("format") == "geojson" {
		c.Header("Content-Type", "application/geo+json")
		c.JSON(http.StatusOK, toGeoJSON(tasks))
		return
	}

	views := make([]taskView, 0, len(tasks))
	for i := range tasks {
		views = append(views, newTaskView(&tasks[i]))
	}
	c.JSON(http.StatusOK, gin.H{"tasks": views})
}

func (h *Handler) getTask(c *gin.Context) {
	task, err := h.tasks.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newTaskView(task))
}

func (h *Handler) getTaskAOI(c *gin.Context) {
	task, err := h.tasks.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	f, err := aoiFeature(task)
	if err != nil {
		h.log.Error("stored AOI is not a polygon", "task_id", task.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "invalid stored area of interest"})
		return
	}

	c.Header("Content-Type", "application/geo+json")
	c.JSON(http.StatusOK, f)
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Error  string `json:"error"`
}

func (h *Handler) updateStatus(c *gin.Context) {
	var body updateStatusRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status, ok := models.ParseTaskStatus(body.Status)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status " + body.Status})
		return
	}
	if !status.IsTerminal() {
		c.JSON(http.StatusConflict, gin.H{"error": "status " + body.Status + " is set by POST /api/tasks/:id/regenerate"})
		return
	}

	task, err := h.tasks.UpdateStatus(c.Request.Context(), c.Param("id"), status, body.Error)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newTaskView(task))
}

func (h *Handler) regenerate(c *gin.Context) {
	force, _ := strconv.ParseBool(c.DefaultQuery("force", "false"))

	task, err := h.tasks.Regenerate(c.Request.Context(), c.Param("id"), force)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, newTaskView(task))
}

func (h *Handler) deleteEventTasks(c *gin.Context) {
	n, err := h.tasks.Delete(c.Request.Context(), c.Param("eventId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

// streamTasks sends task status events as server-sent events until the
// client disconnects. event_id narrows the stream to one event.
func (h *Handler) streamTasks(c *gin.Context) {
	if h.broadcaster == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "task stream disabled"})
		return
	}

	eventID := c.Query("event_id")
	id, events := h.broadcaster.Subscribe(eventID)
	defer h.broadcaster.Unsubscribe(id)

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	h.log.Debug("stream client connected", "subscriber", id, "event_id", eventID)

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case <-heartbeat.C:
			c.SSEvent("ping", time.Now().UTC())
			return true
		case e, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("task", e)
			return true
		}
	})

	h.log.Debug("stream client disconnected", "subscriber", id)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	code := statusCode(err)
	if code >= http.StatusInternalServerError {
		h.log.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, models.ErrTaskNotFound), errors.Is(err, models.ErrEventNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrIllegalTransition):
		return http.StatusConflict
	case errors.Is(err, models.ErrMissingInput), errors.Is(err, models.ErrNoMatchingAcquisitions):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrCatalogUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type taskView struct {
	ID             string              `json:"id"`
	EventID        string              `json:"event_id"`
	EventType      models.EventType    `json:"event_type"`
	Analysis       models.AnalysisType `json:"analysis"`
	Asset          string              `json:"asset,omitempty"`
	Location       string              `json:"location"`
	Country        string              `json:"country"`
	Latitude       float64             `json:"latitude"`
	Longitude      float64             `json:"longitude"`
	Magnitude      *float64            `json:"magnitude,omitempty"`
	EventDate      time.Time           `json:"event_date"`
	StartDate      time.Time           `json:"start_date"`
	EndDate        time.Time           `json:"end_date"`
	AreaOfInterest string              `json:"area_of_interest"`
	Filename       string              `json:"filename"`
	Status         models.TaskStatus   `json:"status"`
	UserID         string              `json:"user_id,omitempty"`
	LastError      string              `json:"last_error,omitempty"`
	Resolution     *models.Resolution  `json:"resolution,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

func newTaskView(t *models.Task) taskView {
	return taskView{
		ID:             t.ID,
		EventID:        t.EventID,
		EventType:      t.EventType,
		Analysis:       t.Analysis,
		Asset:          t.Asset,
		Location:       t.Location,
		Country:        t.Country,
		Latitude:       t.Latitude,
		Longitude:      t.Longitude,
		Magnitude:      t.Magnitude,
		EventDate:      t.EventDate,
		StartDate:      t.StartDate,
		EndDate:        t.EndDate,
		AreaOfInterest: t.AreaOfInterest,
		Filename:       t.Filename,
		Status:         t.Status,
		UserID:         t.UserID,
		LastError:      t.LastError,
		Resolution:     t.Resolution,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}
