package workers

import (
	"context"
	"log/slog"
	"time"

	"quiz-lab/contract"
	"quiz-lab/domain/event"
)

// EventFanout hands every event to each of its sinks in turn.
//
// Delivery is best effort: a sink that fails or exceeds the timeout is logged
// and skipped, and the next one still gets the event.
type EventFanout struct {
	log         *slog.Logger
	sinks       []contract.EventSink
	sinkTimeout time.Duration
}

func NewEventFanout(log *slog.Logger, sinkTimeout time.Duration, sinks ...contract.EventSink) *EventFanout {
	return &EventFanout{log: log, sinks: sinks, sinkTimeout: sinkTimeout}
}

func (f *EventFanout) Consume(ctx context.Context, e event.DomainEvent) error {
	for _, sink := range f.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, f.sinkTimeout)
		err := sink.Consume(sinkCtx, e)
		cancel()
		if err != nil {
			f.log.Warn("Sink dropped event", "event", e.Name(), "error", err)
		}
	}
	return nil
}
