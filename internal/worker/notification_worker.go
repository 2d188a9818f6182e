package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-quiz/internal/model"
)

// NotificationWriter persists notifications.
type NotificationWriter interface {
	InsertNotification(ctx context.Context, n model.Notification) error
}

// NotificationWorker consumes the notification queue one item at a time.
type NotificationWorker struct {
	store        NotificationWriter
	queue        Queue
	log          zerolog.Logger
	requeueDelay time.Duration
}

// NewNotificationWorker creates a new NotificationWorker.
func NewNotificationWorker(store NotificationWriter, queue Queue, log zerolog.Logger) *NotificationWorker {
	return &NotificationWorker{
		store:        store,
		queue:        queue,
		log:          log.With().Str("component", "notification_worker").Logger(),
		requeueDelay: RequeueDelay,
	}
}

// Start begins the worker loop. Call in a goroutine. Items not yet popped
// stay queued across restarts.
func (w *NotificationWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *NotificationWorker) processNext(ctx context.Context) {
	data, err := w.queue.Pop(ctx, PollTimeout)
	if err != nil {
		if !errors.Is(err, ErrQueueEmpty) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("Queue pop error")
			sleep(ctx, time.Second)
		}
		return
	}

	var n model.Notification
	if err := json.Unmarshal(data, &n); err != nil {
		w.log.Error().Err(err).Str("data", string(data)).Msg("Discarding malformed notification")
		return
	}

	// A popped item must not be lost to a cancelled request context.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := w.store.InsertNotification(writeCtx, n); err != nil {
		w.log.Error().Err(err).Int("user_id", n.UserID).Msg("Insert failed, requeueing")
		if perr := w.queue.Push(writeCtx, data); perr != nil {
			w.log.Error().Err(perr).Msg("CRITICAL: Failed to requeue notification. Data loss occurred.")
			return
		}
		sleep(ctx, w.requeueDelay)
		return
	}
	w.log.Debug().Str("notification_id", n.ID.String()).Int("user_id", n.UserID).Msg("Notification stored")
}
