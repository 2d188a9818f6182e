package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/response"
)

// Pinger is anything with a health check, such as *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SystemHandler reports process health and worker queue depth.
type SystemHandler struct {
	db        Pinger
	rdb       *redis.Client
	startTime time.Time
	log       zerolog.Logger
}

// NewSystemHandler creates a new SystemHandler.
func NewSystemHandler(db Pinger, rdb *redis.Client, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		db:        db,
		rdb:       rdb,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

type systemStatus struct {
	Status     string `json:"status"`
	Uptime     string `json:"uptime"`
	Database   string `json:"database"`
	Redis      string `json:"redis"`
	Goroutines int    `json:"goroutines"`
	GoVersion  string `json:"go_version"`

	// Worker Queues
	QueueEvents        int64 `json:"queue_events"`
	QueueNotifications int64 `json:"queue_notifications"`
}

// Health godoc
// GET /health
// Liveness only; it never touches dependencies.
func (h *SystemHandler) Health(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{"status": "ok"})
}

// Status godoc
// GET /api/v1/admin/system/status
// Pings Postgres and Redis and reports the persistence queue lengths.
func (h *SystemHandler) Status(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	s := systemStatus{
		Status:     "ok",
		Uptime:     time.Since(h.startTime).Truncate(time.Second).String(),
		Database:   "ok",
		Redis:      "ok",
		Goroutines: runtime.NumGoroutine(),
		GoVersion:  runtime.Version(),
	}

	if err := h.db.Ping(ctx); err != nil {
		h.log.Warn().Err(err).Msg("Database ping failed")
		s.Database = "down"
		s.Status = "degraded"
	}

	// ── Worker Queues (pipelined LLEN) ──
	pipe := h.rdb.Pipeline()
	eventsCmd := pipe.LLen(ctx, config.WorkerKey.PersistEventsQueue)
	notificationsCmd := pipe.LLen(ctx, config.WorkerKey.PersistNotificationsQueue)
	if _, err := pipe.Exec(ctx); err != nil {
		h.log.Warn().Err(err).Msg("Redis status check failed")
		s.Redis = "down"
		s.Status = "degraded"
	} else {
		s.QueueEvents, _ = eventsCmd.Result()
		s.QueueNotifications, _ = notificationsCmd.Result()
	}

	status := http.StatusOK
	if s.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	response.Success(c, status, s)
}
