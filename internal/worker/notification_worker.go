package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/triage-portal/internal/events"
)

// EventHandler consumes an event off the queue.
type EventHandler interface {
	Handle(ctx context.Context, event events.Event) error
}

// NotificationWorker drains published events in the background so that slow sinks
// never hold up a ticket submission.
type NotificationWorker struct {
	queue   chan events.Event
	handler EventHandler
	logger  *zap.Logger
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
}

// StartNotificationWorker subscribes to every event type and starts the drain loop.
func StartNotificationWorker(dispatcher events.Dispatcher, handler EventHandler, logger *zap.Logger, buffer int) *NotificationWorker {
	if buffer <= 0 {
		buffer = 256
	}
	w := &NotificationWorker{
		queue:   make(chan events.Event, buffer),
		handler: handler,
		logger:  logger,
	}
	events.SubscribeAll(dispatcher, w.enqueue)

	w.wg.Add(1)
	go w.run()
	return w
}

func (w *NotificationWorker) enqueue(_ context.Context, event events.Event) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return nil
	}
	select {
	case w.queue <- event:
	default:
		w.logger.Warn("notification queue full; dropping event",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID))
	}
	return nil
}

func (w *NotificationWorker) run() {
	defer w.wg.Done()
	for event := range w.queue {
		if err := w.handler.Handle(context.Background(), event); err != nil {
			w.logger.Warn("notification handler failed", zap.Error(err))
		}
	}
}

// Stop refuses new events and waits for the queue to drain or ctx to end.
func (w *NotificationWorker) Stop(ctx context.Context) {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("notification worker stopped before draining", zap.Int("pending", len(w.queue)))
	}
}
