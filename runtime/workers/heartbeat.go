package workers

import (
	"context"
	"fmt"
	"log/slog"

	"quiz-lab/contract"
	"quiz-lab/domain"
)

type ActivitySource interface {
	Heartbeat(ctx context.Context, id domain.RoomID, player string) error
}

// HeartbeatWorker keeps a joined room alive on behalf of one player.
// Cancel its context when the player leaves.
type HeartbeatWorker struct {
	log    *slog.Logger
	name   contract.WorkerName
	source ActivitySource
	roomID domain.RoomID
	player string
}

func NewHeartbeatWorker(log *slog.Logger, source ActivitySource, roomID domain.RoomID, player string) HeartbeatWorker {
	return HeartbeatWorker{
		log:    log,
		name:   contract.WorkerName(fmt.Sprintf("heartbeat-%s-%s", roomID, player)),
		source: source,
		roomID: roomID,
		player: player,
	}
}

func (w HeartbeatWorker) GetName() contract.WorkerName { return w.name }

func (w HeartbeatWorker) Run(ctx context.Context) error {
	return w.source.Heartbeat(ctx, w.roomID, w.player)
}
