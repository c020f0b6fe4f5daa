package workers

import (
	"context"
	"log/slog"

	"quiz-lab/contract"
	"quiz-lab/domain/event"
)

type DirectorySource interface {
	ListRooms(ctx context.Context, onRefresh func(event.RoomsRefreshed)) error
}

// DirectoryWatcher keeps the lobby listing fresh. Each refresh also sweeps
// idle rooms, so a node watching the directory takes part in reclamation.
type DirectoryWatcher struct {
	log    *slog.Logger
	source DirectorySource
	sink   contract.EventSink
}

func NewDirectoryWatcher(log *slog.Logger, source DirectorySource, sink contract.EventSink) DirectoryWatcher {
	return DirectoryWatcher{log: log, source: source, sink: sink}
}

func (w DirectoryWatcher) GetName() contract.WorkerName { return "directory-watcher" }

func (w DirectoryWatcher) Run(ctx context.Context) error {
	w.log.Info("Starting directory watcher")
	return w.source.ListRooms(ctx, func(e event.RoomsRefreshed) {
		if err := w.sink.Consume(ctx, e); err != nil {
			w.log.Warn("Directory refresh dropped", "error", err)
		}
	})
}
