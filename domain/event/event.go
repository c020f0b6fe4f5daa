package event

import (
	"time"

	"quiz-lab/domain"
)

// DomainEvent is what watchers hand to sinks after a store echo.
type DomainEvent interface {
	Name() string
	OccurredAt() time.Time
}

// RoomChanged carries the committed state of a room as echoed by the store.
type RoomChanged struct {
	Room domain.Room
	At   time.Time
}

func (e RoomChanged) Name() string          { return "RoomChanged" }
func (e RoomChanged) OccurredAt() time.Time { return e.At }

// RoomGone is emitted once the store no longer holds the room,
// whether the last player left or the room was reclaimed as idle.
type RoomGone struct {
	Room domain.RoomID
	At   time.Time
}

func (e RoomGone) Name() string          { return "RoomGone" }
func (e RoomGone) OccurredAt() time.Time { return e.At }

// RoomsRefreshed is one directory snapshot, after the opportunistic idle sweep.
type RoomsRefreshed struct {
	Rooms   []domain.Room
	Evicted []domain.RoomID
	At      time.Time
}

func (e RoomsRefreshed) Name() string          { return "RoomsRefreshed" }
func (e RoomsRefreshed) OccurredAt() time.Time { return e.At }
