package projection

import (
	"context"
	"testing"
	"time"

	"quiz-lab/domain"
	"quiz-lab/domain/event"
	"quiz-lab/errors"

	"github.com/stretchr/testify/require"
)

func committedRoom(lastActivity int64) domain.Room {
	room := domain.NewRoom("r1", "Quiz", "Alice")
	room.Players["Bob"] = domain.PlayerState{JoinedAt: 2}
	room.Status = domain.Playing
	room.LastActivity = lastActivity
	return room
}

func TestRoomView_SnapshotBeforeSync(t *testing.T) {
	view := NewRoomView("r1")
	_, err := view.Snapshot()
	require.ErrorIs(t, err, errors.ErrNotFound)
	_, err = view.Apply(func(*domain.Room) {})
	require.ErrorIs(t, err, errors.ErrNotFound)
}

func TestRoomView_OptimisticBuzzRolledBack(t *testing.T) {
	req := require.New(t)
	view := NewRoomView("r1")
	ctx := context.Background()
	req.NoError(view.Consume(ctx, event.RoomChanged{Room: committedRoom(10), At: time.Now()}))

	token, err := view.Apply(func(r *domain.Room) { r.CurrentPlayer = "Bob" })
	req.NoError(err)
	snapshot, err := view.Snapshot()
	req.NoError(err)
	req.Equal("Bob", snapshot.CurrentPlayer)

	// Someone else won the race
	winner := committedRoom(11)
	winner.CurrentPlayer = "Alice"
	req.NoError(view.Consume(ctx, event.RoomChanged{Room: winner, At: time.Now()}))
	view.Rollback(token)

	snapshot, err = view.Snapshot()
	req.NoError(err)
	req.Equal("Alice", snapshot.CurrentPlayer)
	req.Zero(view.Pending())
}

func TestRoomView_ConfirmKeepsNewestEcho(t *testing.T) {
	req := require.New(t)
	view := NewRoomView("r1")
	ctx := context.Background()
	req.NoError(view.Consume(ctx, event.RoomChanged{Room: committedRoom(10), At: time.Now()}))

	token, err := view.Apply(func(r *domain.Room) { r.CurrentPlayer = "Bob" })
	req.NoError(err)

	newer := committedRoom(12)
	newer.Players["Bob"] = domain.PlayerState{Score: 1, JoinedAt: 2}
	req.NoError(view.Consume(ctx, event.RoomChanged{Room: newer, At: time.Now()}))

	written := committedRoom(11)
	written.CurrentPlayer = "Bob"
	view.Confirm(token, written)

	snapshot, err := view.Snapshot()
	req.NoError(err)
	req.Equal(int64(12), snapshot.LastActivity)
	req.Equal(1, snapshot.Players["Bob"].Score)
}

func TestRoomView_IgnoresOtherRooms(t *testing.T) {
	req := require.New(t)
	view := NewRoomView("r1")
	ctx := context.Background()
	req.NoError(view.Consume(ctx, event.RoomChanged{Room: committedRoom(10), At: time.Now()}))

	other := domain.NewRoom("r2", "Other", "Zed")
	other.LastActivity = 99
	req.NoError(view.Consume(ctx, event.RoomChanged{Room: other, At: time.Now()}))
	req.NoError(view.Consume(ctx, event.RoomGone{Room: "r2", At: time.Now()}))

	snapshot, err := view.Snapshot()
	req.NoError(err)
	req.Equal("Quiz", snapshot.Name)
}

func TestRoomView_GoneIsStale(t *testing.T) {
	req := require.New(t)
	view := NewRoomView("r1")
	ctx := context.Background()
	req.NoError(view.Consume(ctx, event.RoomChanged{Room: committedRoom(10), At: time.Now()}))
	_, err := view.Apply(func(r *domain.Room) { r.CurrentPlayer = "Bob" })
	req.NoError(err)

	req.NoError(view.Consume(ctx, event.RoomGone{Room: "r1", At: time.Now()}))

	_, err = view.Snapshot()
	req.ErrorIs(err, errors.ErrStaleState)
	_, err = view.Apply(func(*domain.Room) {})
	req.ErrorIs(err, errors.ErrStaleState)
	req.Zero(view.Pending())

	// A late echo does not resurrect the room
	req.NoError(view.Consume(ctx, event.RoomChanged{Room: committedRoom(20), At: time.Now()}))
	_, err = view.Snapshot()
	req.ErrorIs(err, errors.ErrStaleState)
}

func TestDirectory_Consume(t *testing.T) {
	req := require.New(t)
	dir := NewDirectory()
	ctx := context.Background()
	req.False(dir.Synced())

	req.NoError(dir.Consume(ctx, event.RoomsRefreshed{
		Rooms:   []domain.Room{domain.NewRoom("a", "A", "Alice"), domain.NewRoom("b", "B", "Bob")},
		Evicted: []domain.RoomID{"old"},
		At:      time.Now(),
	}))
	req.NoError(dir.Consume(ctx, event.RoomGone{Room: "a", At: time.Now()}))

	req.True(dir.Synced())
	req.Len(dir.Rooms(), 2)
	req.Equal(1, dir.Evicted())
}
