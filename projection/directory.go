package projection

import (
	"context"
	"sync"

	"quiz-lab/domain"
	"quiz-lab/domain/event"
)

// Directory is the lobby listing as of the last refresh.
type Directory struct {
	mu      sync.RWMutex
	rooms   []domain.Room
	evicted int
	synced  bool
}

func NewDirectory() *Directory {
	return &Directory{}
}

func (d *Directory) Consume(_ context.Context, e event.DomainEvent) error {
	evt, ok := e.(event.RoomsRefreshed)
	if !ok {
		return nil
	}
	rooms := make([]domain.Room, len(evt.Rooms))
	for i, r := range evt.Rooms {
		rooms[i] = r.Clone()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rooms = rooms
	d.evicted += len(evt.Evicted)
	d.synced = true
	return nil
}

func (d *Directory) Rooms() []domain.Room {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]domain.Room, len(d.rooms))
	copy(out, d.rooms)
	return out
}

// Evicted counts idle rooms swept since the view was created.
func (d *Directory) Evicted() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.evicted
}

func (d *Directory) Synced() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.synced
}
