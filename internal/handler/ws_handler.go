package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-quiz/internal/clock"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/questionusage"
	"github.com/stemsi/exstem-quiz/internal/service"
	ws "github.com/stemsi/exstem-quiz/internal/websocket"
)

// DefaultTimerInterval is how often the countdown is pushed to the client.
const DefaultTimerInterval = 15 * time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams an attempt: autosave and submit from the client, the
// countdown and state changes from the server.
type WSHandler struct {
	attempts Attempts
	rdb      *redis.Client
	clock    clock.Clock
	log      zerolog.Logger
	upgrader websocket.Upgrader
	interval time.Duration
}

// NewWSHandler creates a new WSHandler. rdb may be nil, in which case state
// changes made elsewhere (another tab, the sweep) are only noticed when the
// countdown runs out.
func NewWSHandler(attempts Attempts, rdb *redis.Client, clk clock.Clock, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attempts: attempts,
		rdb:      rdb,
		clock:    clk,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
		interval: DefaultTimerInterval,
	}
}

// AttemptStream godoc
// WS /ws/v1/attempts/:attempt_id/stream
// Upgrades to WebSocket for autosave, submission and the live countdown.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	attemptID, ok := uuidParam(c, "attempt_id")
	if !ok {
		return
	}

	// Ownership, access rules and the deadline are checked before upgrading
	// so failures get a normal HTTP error.
	view, err := h.attempts.View(c.Request.Context(), attemptID, actor, service.CurrentPage)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.Wrap(raw)
	defer conn.Close()

	wsLog := h.log.With().
		Int("user_id", actor.UserID).
		Str("attempt_id", attemptID.String()).
		Logger()
	wsLog.Info().Msg("User connected")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = conn.WriteTyped(stateOf(view))
	if view.Attempt.IsFinished() {
		_ = conn.WriteTyped(ws.SignalResponse{Event: ws.EventFinished})
		return
	}

	go h.pushTimer(ctx, conn, wsLog, attemptID, actor, view)
	if h.rdb != nil {
		go h.forwardEvents(ctx, conn, wsLog, view.Attempt.QuizID, attemptID, actor)
	}

	for {
		var msg ws.RequestEnvelope
		if err := conn.Read(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		switch msg.Action {
		case ws.ActionAutosave:
			h.handleAutosave(ctx, conn, attemptID, actor, &msg)
		case ws.ActionSubmit:
			if h.handleSubmit(ctx, conn, wsLog, attemptID, actor, &msg) {
				return
			}
		case ws.ActionPing:
			_ = conn.WriteTyped(ws.SignalResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			_ = conn.WriteError("unknown action: " + string(msg.Action))
		}
	}
}

func (h *WSHandler) handleAutosave(ctx context.Context, conn *ws.Conn, attemptID uuid.UUID, actor service.Actor, msg *ws.RequestEnvelope) {
	if msg.Slot < 1 {
		_ = conn.WriteError("slot is required")
		return
	}
	actions := []questionusage.Action{{Slot: msg.Slot, Response: msg.Response}}
	if err := h.attempts.Autosave(ctx, attemptID, actor, actions); err != nil {
		_ = conn.WriteError(errorText(err))
		return
	}
	_ = conn.WriteTyped(ws.SavedResponse{Event: ws.EventSaved, Slot: msg.Slot})
}

// handleSubmit processes a submission and reports whether the attempt closed.
func (h *WSHandler) handleSubmit(ctx context.Context, conn *ws.Conn, wsLog zerolog.Logger, attemptID uuid.UUID, actor service.Actor, msg *ws.RequestEnvelope) bool {
	view, err := h.attempts.Process(ctx, attemptID, actor, service.ProcessRequest{
		Actions: msg.Actions,
		Finish:  msg.Finish,
		TimeUp:  msg.TimeUp,
	})
	if err != nil {
		_ = conn.WriteError(errorText(err))
		return false
	}
	_ = conn.WriteTyped(stateOf(view))
	if view.Attempt.IsFinished() {
		wsLog.Info().Str("state", string(view.Attempt.State)).Msg("Attempt closed over WebSocket")
		_ = conn.WriteTyped(ws.SignalResponse{Event: ws.EventFinished})
		return true
	}
	return false
}

// pushTimer sends the countdown and, when it runs out, asks the service to
// apply the deadline so the client learns the outcome without reloading.
func (h *WSHandler) pushTimer(ctx context.Context, conn *ws.Conn, wsLog zerolog.Logger, attemptID uuid.UUID, actor service.Actor, view *service.AttemptView) {
	if view.TimeLeft == nil {
		return
	}
	deadline := h.clock.Unix() + *view.TimeLeft

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		left := deadline - h.clock.Unix()
		if left <= 0 {
			next, err := h.attempts.View(ctx, attemptID, actor, service.CurrentPage)
			if err != nil {
				if ctx.Err() == nil {
					wsLog.Warn().Err(err).Msg("Deadline check failed")
				}
				return
			}
			_ = conn.WriteTyped(stateOf(next))
			if next.Attempt.IsFinished() || next.TimeLeft == nil || *next.TimeLeft <= 0 {
				if next.Attempt.IsFinished() {
					_ = conn.WriteTyped(ws.SignalResponse{Event: ws.EventFinished})
				}
				return
			}
			deadline = h.clock.Unix() + *next.TimeLeft
			left = *next.TimeLeft
		}
		if err := conn.WriteTyped(ws.TimerResponse{Event: ws.EventTimer, TimeLeft: left}); err != nil {
			return
		}

		wait := h.interval
		if d := time.Duration(left) * time.Second; d < wait {
			wait = d
		}
		ticker.Reset(wait)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// forwardEvents relays state changes of this attempt made elsewhere.
func (h *WSHandler) forwardEvents(ctx context.Context, conn *ws.Conn, wsLog zerolog.Logger, quizID, attemptID uuid.UUID, actor service.Actor) {
	sub := h.rdb.Subscribe(ctx, config.CacheKey.QuizEventsChannel(quizID.String()))
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			var e model.Event
			if err := json.Unmarshal([]byte(m.Payload), &e); err != nil || e.AttemptID != attemptID {
				continue
			}
			switch e.Name {
			case model.EventAttemptSubmitted, model.EventAttemptAbandoned, model.EventAttemptBecameOverdue:
			default:
				continue
			}
			wsLog.Debug().Str("event", e.Name).Msg("Forwarding attempt event")
			_ = conn.WriteTyped(ws.StateResponse{Event: ws.EventState, State: stateName(e.Name)})
		}
	}
}

func stateOf(view *service.AttemptView) ws.StateResponse {
	return ws.StateResponse{
		Event:     ws.EventState,
		State:     string(view.Attempt.State),
		SumGrades: view.Attempt.SumGrades,
		TimeLeft:  view.TimeLeft,
	}
}

func stateName(event string) string {
	switch event {
	case model.EventAttemptSubmitted:
		return string(model.StateFinished)
	case model.EventAttemptAbandoned:
		return string(model.StateAbandoned)
	default:
		return string(model.StateOverdue)
	}
}
