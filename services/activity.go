package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"quiz-lab/domain"
	"quiz-lab/errors"
	"quiz-lab/repositories"
)

// ActivityMonitor keeps the rooms a participant is sitting in from being
// swept as idle.
type ActivityMonitor struct {
	log      *slog.Logger
	rooms    repositories.IRoomRepository
	interval time.Duration
}

func NewActivityMonitor(log *slog.Logger, rooms repositories.IRoomRepository, interval time.Duration) ActivityMonitor {
	return ActivityMonitor{log: log, rooms: rooms, interval: interval}
}

// Beat refreshes lastActivity on behalf of player. It fails with
// ErrStaleState once the room is gone or the player is no longer in it.
func (a ActivityMonitor) Beat(ctx context.Context, roomID, player string) error {
	req, err := newPlayerRequest(roomID, player)
	if err != nil {
		return err
	}
	_, err = a.rooms.Mutate(ctx, domain.RoomID(req.RoomID), func(room *domain.Room) (bool, error) {
		if !room.IsMember(req.Player) {
			return false, fmt.Errorf("%w: %q left room %s", errors.ErrStaleState, req.Player, room.ID)
		}
		return true, nil
	})
	if errors.Is(err, errors.ErrNotFound) {
		return fmt.Errorf("%w: room %s was removed", errors.ErrStaleState, req.RoomID)
	}
	return err
}

// Run beats every interval until ctx is done or the membership it keeps
// alive has ended. Store failures are logged and the next tick tries again.
func (a ActivityMonitor) Run(ctx context.Context, roomID, player string) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.log.Debug("Heartbeat started", "room", roomID, "player", player, "interval", a.interval)
	for {
		select {
		case <-ctx.Done():
			a.log.Debug("Heartbeat stopped", "room", roomID, "player", player)
			return nil
		case <-ticker.C:
			err := a.Beat(ctx, roomID, player)
			switch {
			case err == nil:
			case ctx.Err() != nil:
				return nil
			case errors.Is(err, errors.ErrStaleState):
				a.log.Info("Heartbeat ended", "room", roomID, "player", player, "reason", err)
				return nil
			case errors.Is(err, errors.ErrValidation):
				return err
			default:
				a.log.Warn("Heartbeat failed", "room", roomID, "player", player, "error", err)
			}
		}
	}
}
