package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-quiz/internal/clock"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/response"
	"github.com/stemsi/exstem-quiz/internal/service"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second
)

// QuizMonitor reports live progress of a quiz.
type QuizMonitor interface {
	GetQuizProgress(ctx context.Context, quizID uuid.UUID, now int64) (*service.QuizProgressSnapshot, error)
}

var _ QuizMonitor = (*service.MonitorService)(nil)

// MonitorHandler serves the live quiz monitor for users with quiz:manage.
type MonitorHandler struct {
	rdb     *redis.Client
	monitor QuizMonitor
	clock   clock.Clock
	log     zerolog.Logger
}

// NewMonitorHandler creates a new MonitorHandler. rdb may be nil, in which
// case the stream only sends periodic refreshes.
func NewMonitorHandler(rdb *redis.Client, monitor QuizMonitor, clk clock.Clock, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		rdb:     rdb,
		monitor: monitor,
		clock:   clk,
		log:     log.With().Str("component", "monitor_handler").Logger(),
	}
}

// Snapshot godoc
// GET /api/v1/admin/quizzes/:quiz_id/monitor
func (h *MonitorHandler) Snapshot(c *gin.Context) {
	quizID, ok := uuidParam(c, "quiz_id")
	if !ok {
		return
	}
	snap, err := h.monitor.GetQuizProgress(c.Request.Context(), quizID, h.clock.Unix())
	if err != nil {
		failFromError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, snap)
}

// Stream godoc
// GET /api/v1/admin/quizzes/:quiz_id/monitor/stream
// Server-sent events: a snapshot, then raw attempt events as they happen and
// a refresh every refreshInterval.
func (h *MonitorHandler) Stream(c *gin.Context) {
	quizID, ok := uuidParam(c, "quiz_id")
	if !ok {
		return
	}
	reqCtx := c.Request.Context()

	snap, err := h.fetch(reqCtx, quizID)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.SSEvent("snapshot", snap)
	c.Writer.Flush()

	var events <-chan *redis.Message
	if h.rdb != nil {
		sub := h.rdb.Subscribe(reqCtx, config.CacheKey.QuizEventsChannel(quizID.String()))
		defer sub.Close()
		events = sub.Channel()
	}

	refresh := time.NewTicker(refreshInterval)
	defer refresh.Stop()
	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	h.log.Info().Str("quiz_id", quizID.String()).Msg("Admin attached to quiz monitor")

	// Skip refreshes until something has happened since the last one.
	dirty := false
	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("quiz_id", quizID.String()).Msg("Admin detached from quiz monitor")
			return

		case msg, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			c.Writer.Write([]byte("event: attempt\ndata: "))
			c.Writer.Write([]byte(msg.Payload))
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
			dirty = true

		case <-refresh.C:
			if !dirty && h.rdb != nil {
				continue
			}
			snap, err := h.fetch(reqCtx, quizID)
			if err != nil {
				h.log.Warn().Err(err).Str("quiz_id", quizID.String()).Msg("Failed to refresh quiz monitor")
				continue
			}
			c.SSEvent("refresh", snap)
			c.Writer.Flush()
			dirty = false

		case <-keepAlive.C:
			c.SSEvent("ping", gin.H{"time": h.clock.Unix()})
			c.Writer.Flush()
		}
	}
}

func (h *MonitorHandler) fetch(ctx context.Context, quizID uuid.UUID) (*service.QuizProgressSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()
	return h.monitor.GetQuizProgress(ctx, quizID, h.clock.Unix())
}
