package workers

import (
	"context"
	"fmt"
	"log/slog"

	"quiz-lab/contract"
	"quiz-lab/domain"
)

type RoomSource interface {
	WatchRoom(ctx context.Context, id domain.RoomID, sink contract.EventSink) error
}

// RoomWatcher streams one room's committed states to a sink for as long as
// the participant is looking at it. It finishes on its own once the room is
// gone.
type RoomWatcher struct {
	log    *slog.Logger
	name   contract.WorkerName
	source RoomSource
	roomID domain.RoomID
	sink   contract.EventSink
}

func NewRoomWatcher(log *slog.Logger, source RoomSource, roomID domain.RoomID, sink contract.EventSink) RoomWatcher {
	return RoomWatcher{
		log:    log,
		name:   contract.WorkerName(fmt.Sprintf("room-watcher-%s", roomID)),
		source: source,
		roomID: roomID,
		sink:   sink,
	}
}

func (w RoomWatcher) GetName() contract.WorkerName { return w.name }

func (w RoomWatcher) Run(ctx context.Context) error {
	w.log.Debug("Watching room", "room", w.roomID)
	if err := w.source.WatchRoom(ctx, w.roomID, w.sink); err != nil {
		return fmt.Errorf("watch of room %s failed: %w", w.roomID, err)
	}
	return nil
}
