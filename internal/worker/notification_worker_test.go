package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/triage-portal/internal/events"
)

type recordingHandler struct {
	mu   sync.Mutex
	seen []events.EventType
}

func (r *recordingHandler) Handle(_ context.Context, event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, event.Type)
	return nil
}

func TestNotificationWorkerDrainsOnStop(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	handler := &recordingHandler{}
	w := StartNotificationWorker(dispatcher, handler, zap.NewNop(), 8)

	_ = dispatcher.Publish(context.Background(), events.Event{Type: events.EventTicketCreated, TicketID: "t1"})
	_ = dispatcher.Publish(context.Background(), events.Event{Type: events.EventTicketEscalated, TicketID: "t1"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	w.Stop(ctx)

	handler.mu.Lock()
	defer handler.mu.Unlock()
	if len(handler.seen) != 2 || handler.seen[0] != events.EventTicketCreated || handler.seen[1] != events.EventTicketEscalated {
		t.Fatalf("unexpected deliveries: %v", handler.seen)
	}

	// Publishing after Stop must not panic on the closed queue.
	_ = dispatcher.Publish(context.Background(), events.Event{Type: events.EventTicketUpdated})
}
