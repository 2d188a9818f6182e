package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-quiz/internal/model"
)

// EventWriter persists attempt events.
type EventWriter interface {
	CopyEvents(ctx context.Context, events []model.Event) (int64, error)
	InsertEvent(ctx context.Context, e model.Event) error
}

// EventWorker drains the event queue into attempt_events in batches.
type EventWorker struct {
	store        EventWriter
	queue        Queue
	log          zerolog.Logger
	requeueDelay time.Duration
}

// NewEventWorker creates a new EventWorker.
func NewEventWorker(store EventWriter, queue Queue, log zerolog.Logger) *EventWorker {
	return &EventWorker{
		store:        store,
		queue:        queue,
		log:          log.With().Str("component", "event_worker").Logger(),
		requeueDelay: RequeueDelay,
	}
}

// Start runs until ctx is cancelled, then flushes what it holds. Call in a goroutine.
func (w *EventWorker) Start(ctx context.Context) {
	w.log.Info().Msg("EventWorker started")

	buffer := make([]model.Event, 0, BatchSize)
	lastFlushTime := time.Now()

	for {
		if len(buffer) > 0 {
			if len(buffer) >= BatchSize || time.Since(lastFlushTime) >= BatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
				lastFlushTime = time.Now()
			}
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		data, err := w.queue.Pop(ctx, PollTimeout)
		if err != nil {
			if errors.Is(err, ErrQueueEmpty) {
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			sleep(ctx, 3*time.Second)
			continue
		}

		var e model.Event
		if err := json.Unmarshal(data, &e); err != nil {
			// Malformed payloads can never succeed.
			w.log.Error().Err(err).Str("data", string(data)).Msg("Discarding malformed event")
			continue
		}
		buffer = append(buffer, e)
	}
}

// flushSafe tries a bulk COPY, then row-by-row inserts, then requeues.
func (w *EventWorker) flushSafe(ctx context.Context, batch []model.Event) {
	if _, err := w.store.CopyEvents(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
	}
}

func (w *EventWorker) fallbackInsert(ctx context.Context, batch []model.Event) {
	var requeue [][]byte
	for _, e := range batch {
		if err := w.store.InsertEvent(ctx, e); err != nil {
			w.log.Error().Err(err).Str("event_id", e.ID.String()).Str("name", e.Name).Msg("Insert failed, requeueing")
			data, _ := json.Marshal(e)
			requeue = append(requeue, data)
		}
	}
	if len(requeue) == 0 {
		return
	}
	if err := w.queue.Push(ctx, requeue...); err != nil {
		w.log.Error().Err(err).Int("count", len(requeue)).Msg("CRITICAL: Failed to requeue events. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(requeue)).Msg("Requeued failed events")
	// Back off so a database outage does not spin the queue.
	sleep(ctx, w.requeueDelay)
}

func (w *EventWorker) shutdown(buffer []model.Event) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
