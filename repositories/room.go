//go:generate go run go.uber.org/mock/mockgen -source=room.go -destination=../mocks/mock_room_repository.go -package=mocks
package repositories

import (
	"context"
	"fmt"
	"log/slog"

	"quiz-lab/contract"
	"quiz-lab/domain"
	"quiz-lab/errors"
)

// RoomMutation edits a room inside a store transaction. It reports whether
// anything changed; an unchanged room is not written back. It may be called
// more than once if a concurrent commit wins the race.
type RoomMutation func(room *domain.Room) (bool, error)

type IRoomRepository interface {
	Create(ctx context.Context, room domain.Room) (domain.Room, error)
	Get(ctx context.Context, id domain.RoomID) (domain.Room, error)
	List(ctx context.Context) ([]domain.Room, error)
	Mutate(ctx context.Context, id domain.RoomID, fn RoomMutation) (domain.Room, error)
	DeleteIfIdle(ctx context.Context, id domain.RoomID, cutoff int64) (bool, error)
	Watch(ctx context.Context, id domain.RoomID, onChange func(room domain.Room, exists bool)) error
	WatchAll(ctx context.Context, onChange func(rooms []domain.Room)) error
	Now() int64
}

type RoomRepository struct {
	store contract.SharedStore
	log   *slog.Logger
}

func NewRoomRepository(store contract.SharedStore, log *slog.Logger) RoomRepository {
	return RoomRepository{store: store, log: log}
}

var errUnchanged = fmt.Errorf("room unchanged")

func (r RoomRepository) Now() int64 {
	return r.store.Now()
}

// Create writes a brand-new room. The id must not be taken.
func (r RoomRepository) Create(ctx context.Context, room domain.Room) (domain.Room, error) {
	if err := room.Check(); err != nil {
		return domain.Room{}, err
	}
	committed, err := r.store.Transaction(ctx, roomPath(room.ID), func(current any) (any, error) {
		if current != nil {
			return nil, fmt.Errorf("%w: room %s already exists", errors.ErrConflict, room.ID)
		}
		return toRoomDocument(room, r.store.ServerTimestamp()), nil
	})
	if err != nil {
		return domain.Room{}, err
	}
	return fromRoomDocument(room.ID, committed)
}

func (r RoomRepository) Get(ctx context.Context, id domain.RoomID) (domain.Room, error) {
	value, err := r.store.Get(ctx, roomPath(id))
	if err != nil {
		return domain.Room{}, err
	}
	if value == nil {
		return domain.Room{}, fmt.Errorf("%w: room %s", errors.ErrNotFound, id)
	}
	return fromRoomDocument(id, value)
}

func (r RoomRepository) List(ctx context.Context) ([]domain.Room, error) {
	value, err := r.store.Get(ctx, roomsCollection)
	if err != nil {
		return nil, err
	}
	return r.decodeRooms(value), nil
}

// Mutate applies fn to the committed room and writes the whole record back in
// one commit, stamping lastActivity. A room left without players is deleted
// in that same commit; the returned room then has no players.
// Invariants are checked before anything is written.
func (r RoomRepository) Mutate(ctx context.Context, id domain.RoomID, fn RoomMutation) (domain.Room, error) {
	var result domain.Room
	committed, err := r.store.Transaction(ctx, roomPath(id), func(current any) (any, error) {
		if current == nil {
			return nil, fmt.Errorf("%w: room %s", errors.ErrNotFound, id)
		}
		room, err := fromRoomDocument(id, current)
		if err != nil {
			return nil, err
		}
		changed, err := fn(&room)
		if err != nil {
			return nil, err
		}
		result = room
		if !changed {
			return nil, errUnchanged
		}
		if room.IsEmpty() {
			return nil, nil
		}
		if err = room.Check(); err != nil {
			return nil, err
		}
		return toRoomDocument(room, r.store.ServerTimestamp()), nil
	})
	switch {
	case errors.Is(err, errUnchanged):
		return result, nil
	case err != nil:
		return domain.Room{}, err
	case committed == nil:
		r.log.Info("Room deleted, no player left", "room", id)
		return result, nil
	}
	return fromRoomDocument(id, committed)
}

// DeleteIfIdle removes the room only if it is still idle at commit time, so a
// heartbeat landing during the sweep keeps the room alive. Rooms already gone
// are not an error.
func (r RoomRepository) DeleteIfIdle(ctx context.Context, id domain.RoomID, cutoff int64) (bool, error) {
	deleted := false
	_, err := r.store.Transaction(ctx, roomPath(id), func(current any) (any, error) {
		deleted = false
		if current == nil {
			return nil, errUnchanged
		}
		room, err := fromRoomDocument(id, current)
		if err != nil {
			return nil, err
		}
		if room.LastActivity >= cutoff {
			return nil, errUnchanged
		}
		deleted = true
		return nil, nil
	})
	if err != nil && !errors.Is(err, errUnchanged) {
		return false, err
	}
	return deleted, nil
}

// Watch follows one room until ctx is done. exists is false once the room is gone.
func (r RoomRepository) Watch(ctx context.Context, id domain.RoomID, onChange func(room domain.Room, exists bool)) error {
	return r.store.Subscribe(ctx, roomPath(id), func(value any) {
		if value == nil {
			onChange(domain.Room{ID: id}, false)
			return
		}
		room, err := fromRoomDocument(id, value)
		if err != nil {
			r.log.Warn("Skipping malformed room snapshot", "room", id, "error", err)
			return
		}
		onChange(room, true)
	})
}

// WatchAll follows the whole directory until ctx is done.
func (r RoomRepository) WatchAll(ctx context.Context, onChange func(rooms []domain.Room)) error {
	return r.store.Subscribe(ctx, roomsCollection, func(value any) {
		onChange(r.decodeRooms(value))
	})
}

func (r RoomRepository) decodeRooms(value any) []domain.Room {
	docs := asMap(value)
	rooms := make([]domain.Room, 0, len(docs))
	for id, doc := range docs {
		room, err := fromRoomDocument(domain.RoomID(id), doc)
		if err != nil {
			r.log.Warn("Skipping malformed room", "room", id, "error", err)
			continue
		}
		rooms = append(rooms, room)
	}
	sortRooms(rooms)
	return rooms
}
