// Package projection builds local views of rooms from store echoes.
// Views hold provisional local edits until the store confirms or refutes them.
// They never write to the store.
package projection

import (
	"context"
	"fmt"
	"sync"

	"quiz-lab/domain"
	"quiz-lab/domain/event"
	"quiz-lab/errors"
)

// Change is a local, provisional edit of a room.
type Change func(room *domain.Room)

type Token uint64

// RoomView is one participant's picture of a room: the last committed state
// echoed by the store, with pending optimistic changes layered on top.
type RoomView struct {
	mu        sync.RWMutex
	id        domain.RoomID
	committed *domain.Room
	pending   map[Token]Change
	order     []Token
	next      Token
	gone      bool
}

func NewRoomView(id domain.RoomID) *RoomView {
	return &RoomView{id: id, pending: make(map[Token]Change)}
}

// Apply layers change over the committed room until Confirm or Rollback.
func (v *RoomView) Apply(change Change) (Token, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.usable(); err != nil {
		return 0, err
	}
	v.next++
	v.pending[v.next] = change
	v.order = append(v.order, v.next)
	return v.next, nil
}

// Rollback drops a change the store rejected.
func (v *RoomView) Rollback(token Token) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.drop(token)
}

// Confirm drops a change the store accepted, adopting the committed room
// returned by the write unless a newer echo already arrived.
func (v *RoomView) Confirm(token Token, committed domain.Room) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.drop(token)
	v.reconcile(committed)
}

// Reconcile adopts a committed room obtained outside the echo stream, such as
// the result of a write.
func (v *RoomView) Reconcile(room domain.Room) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.reconcile(room)
}

// Snapshot returns the committed room with pending changes applied.
func (v *RoomView) Snapshot() (domain.Room, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if err := v.usable(); err != nil {
		return domain.Room{}, err
	}
	room := v.committed.Clone()
	for _, token := range v.order {
		v.pending[token](&room)
	}
	return room, nil
}

// Pending reports how many local changes await the store.
func (v *RoomView) Pending() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.order)
}

func (v *RoomView) Consume(_ context.Context, e event.DomainEvent) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	switch evt := e.(type) {
	case event.RoomChanged:
		if evt.Room.ID == v.id {
			v.reconcile(evt.Room)
		}
	case event.RoomGone:
		if evt.Room == v.id {
			v.gone = true
			v.committed = nil
			v.pending = make(map[Token]Change)
			v.order = nil
		}
	}
	return nil
}

// reconcile adopts room if it is at least as recent as what the view holds.
// Every commit stamps lastActivity, so it orders echoes of the same room.
func (v *RoomView) reconcile(room domain.Room) {
	if v.gone || room.ID != v.id || room.IsEmpty() {
		return
	}
	if v.committed != nil && room.LastActivity < v.committed.LastActivity {
		return
	}
	c := room.Clone()
	v.committed = &c
}

func (v *RoomView) drop(token Token) {
	if _, ok := v.pending[token]; !ok {
		return
	}
	delete(v.pending, token)
	for i, t := range v.order {
		if t == token {
			v.order = append(v.order[:i], v.order[i+1:]...)
			break
		}
	}
}

func (v *RoomView) usable() error {
	switch {
	case v.gone:
		return fmt.Errorf("%w: room %s is gone", errors.ErrStaleState, v.id)
	case v.committed == nil:
		return fmt.Errorf("%w: room %s not synced yet", errors.ErrNotFound, v.id)
	}
	return nil
}
