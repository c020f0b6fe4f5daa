package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"quiz-lab/domain"
	"quiz-lab/domain/event"
	"quiz-lab/errors"
	"quiz-lab/repositories"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// DirectoryService creates rooms and keeps the lobby listing fresh.
// Idle rooms are swept by whoever is looking at the directory.
type DirectoryService struct {
	log         *slog.Logger
	rooms       repositories.IRoomRepository
	idleTimeout time.Duration
	newID       func() domain.RoomID
}

func NewDirectoryService(log *slog.Logger, rooms repositories.IRoomRepository, idleTimeout time.Duration) DirectoryService {
	return DirectoryService{
		log:         log,
		rooms:       rooms,
		idleTimeout: idleTimeout,
		newID:       func() domain.RoomID { return domain.RoomID(uuid.NewString()) },
	}
}

func (d DirectoryService) Create(ctx context.Context, name, host string) (domain.RoomID, error) {
	req := CreateRoomRequest{Name: strings.TrimSpace(name), Host: strings.TrimSpace(host)}
	if err := validateRequest(req); err != nil {
		return "", err
	}
	room, err := d.rooms.Create(ctx, domain.NewRoom(d.newID(), req.Name, req.Host))
	if err != nil {
		return "", fmt.Errorf("failed to create room %q: %w", req.Name, err)
	}
	d.log.Info("Room created", "room", room.ID, "name", room.Name, "host", room.Host)
	return room.ID, nil
}

func (d DirectoryService) List(ctx context.Context) ([]domain.Room, error) {
	return d.rooms.List(ctx)
}

// Watch streams the directory until ctx is done. Every refresh sweeps idle
// rooms first, and the evicted ones are left out of the listing handed to
// onRefresh.
func (d DirectoryService) Watch(ctx context.Context, onRefresh func(event.RoomsRefreshed)) error {
	return d.rooms.WatchAll(ctx, func(rooms []domain.Room) {
		evicted, err := d.SweepIdle(ctx, rooms)
		if err != nil {
			d.log.Warn("Idle sweep incomplete", "error", err)
		}
		gone := lo.SliceToMap(evicted, func(id domain.RoomID) (domain.RoomID, bool) { return id, true })
		live := lo.Reject(rooms, func(r domain.Room, _ int) bool { return gone[r.ID] })
		onRefresh(event.RoomsRefreshed{Rooms: live, Evicted: evicted, At: time.Now()})
	})
}

// SweepIdle deletes the rooms that have been idle longer than the timeout.
// Several clients may sweep the same room at once; only one delete lands and
// the others see nothing to do.
func (d DirectoryService) SweepIdle(ctx context.Context, rooms []domain.Room) ([]domain.RoomID, error) {
	now := d.rooms.Now()
	cutoff := now - d.idleTimeout.Milliseconds()

	var evicted []domain.RoomID
	var errs []error
	for _, room := range rooms {
		if !room.IsIdle(now, d.idleTimeout) {
			continue
		}
		deleted, err := d.rooms.DeleteIfIdle(ctx, room.ID, cutoff)
		if err != nil {
			errs = append(errs, fmt.Errorf("room %s: %w", room.ID, err))
			continue
		}
		if deleted {
			d.log.Info("Idle room evicted", "room", room.ID, "last_activity", room.LastActivity)
			evicted = append(evicted, room.ID)
		}
	}
	return evicted, errors.Join(errs...)
}
