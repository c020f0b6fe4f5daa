package repositories

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"quiz-lab/domain"
	"quiz-lab/errors"
	"quiz-lab/infrastructure/storage"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRepositories(t *testing.T) (RoomRepository, QuestionRepository, *fakeClock) {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	clock := &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
	log := logs.GetLoggerFromLevel(slog.LevelError)
	store := storage.NewBadgerStore(db, log, storage.WithClock(clock.Now))
	return NewRoomRepository(store, log), NewQuestionRepository(store, log), clock
}

func TestRoomRepository_Create_WritesWireShape(t *testing.T) {
	req := require.New(t)
	rooms, _, clock := newTestRepositories(t)
	ctx := context.Background()

	created, err := rooms.Create(ctx, domain.NewRoom("r1", "Quiz A", "Alice"))
	req.NoError(err)

	now := clock.Now().UnixMilli()
	req.Equal("Quiz A", created.Name)
	req.Equal("Alice", created.Host)
	req.Equal(domain.Waiting, created.Status)
	req.Equal(map[string]domain.PlayerState{"Alice": {Score: 0, JoinedAt: now}}, created.Players)
	req.Equal(now, created.CreatedAt)
	req.Equal(now, created.LastActivity)

	fetched, err := rooms.Get(ctx, "r1")
	req.NoError(err)
	req.Equal(created, fetched)
}

func TestRoomRepository_Create_RejectsTakenID(t *testing.T) {
	rooms, _, _ := newTestRepositories(t)
	ctx := context.Background()
	_, err := rooms.Create(ctx, domain.NewRoom("r1", "Quiz A", "Alice"))
	require.NoError(t, err)

	_, err = rooms.Create(ctx, domain.NewRoom("r1", "Quiz B", "Bob"))
	require.ErrorIs(t, err, errors.ErrConflict)
}

func TestRoomRepository_Get_Missing(t *testing.T) {
	rooms, _, _ := newTestRepositories(t)
	_, err := rooms.Get(context.Background(), "missing")
	require.ErrorIs(t, err, errors.ErrNotFound)
}

func TestRoomRepository_Mutate_RoundTripsQuestionState(t *testing.T) {
	req := require.New(t)
	rooms, _, _ := newTestRepositories(t)
	ctx := context.Background()
	_, err := rooms.Create(ctx, domain.NewRoom("r1", "Quiz A", "Alice"))
	req.NoError(err)

	question := domain.Question{ID: "q1", Text: "2+2?", Options: []string{"3", "4"}, CorrectAnswer: 1}
	updated, err := rooms.Mutate(ctx, "r1", func(room *domain.Room) (bool, error) {
		room.Status = domain.Playing
		room.CurrentQuestion = &question
		room.UsedQuestions["q1"] = true
		room.CurrentPlayer = "Alice"
		return true, nil
	})
	req.NoError(err)

	req.Equal(domain.Playing, updated.Status)
	req.Equal(&question, updated.CurrentQuestion)
	req.Equal(map[string]bool{"q1": true}, updated.UsedQuestions)
	req.Equal("Alice", updated.CurrentPlayer)
}

func TestRoomRepository_Mutate_InvariantViolationWritesNothing(t *testing.T) {
	req := require.New(t)
	rooms, _, _ := newTestRepositories(t)
	ctx := context.Background()
	_, err := rooms.Create(ctx, domain.NewRoom("r1", "Quiz A", "Alice"))
	req.NoError(err)

	_, err = rooms.Mutate(ctx, "r1", func(room *domain.Room) (bool, error) {
		room.Host = "Nobody"
		return true, nil
	})
	req.ErrorIs(err, errors.ErrState)

	room, err := rooms.Get(ctx, "r1")
	req.NoError(err)
	req.Equal("Alice", room.Host)
}

func TestRoomRepository_Mutate_UnchangedDoesNotTouchActivity(t *testing.T) {
	req := require.New(t)
	rooms, _, clock := newTestRepositories(t)
	ctx := context.Background()
	created, err := rooms.Create(ctx, domain.NewRoom("r1", "Quiz A", "Alice"))
	req.NoError(err)

	clock.Advance(time.Minute)
	room, err := rooms.Mutate(ctx, "r1", func(room *domain.Room) (bool, error) {
		return false, nil
	})
	req.NoError(err)
	req.Equal(created.LastActivity, room.LastActivity)
}

func TestRoomRepository_Mutate_EmptyRoomIsDeleted(t *testing.T) {
	req := require.New(t)
	rooms, _, _ := newTestRepositories(t)
	ctx := context.Background()
	_, err := rooms.Create(ctx, domain.NewRoom("r1", "Quiz A", "Alice"))
	req.NoError(err)

	room, err := rooms.Mutate(ctx, "r1", func(room *domain.Room) (bool, error) {
		delete(room.Players, "Alice")
		return true, nil
	})
	req.NoError(err)
	req.True(room.IsEmpty())

	_, err = rooms.Get(ctx, "r1")
	req.ErrorIs(err, errors.ErrNotFound)
}

func TestRoomRepository_DeleteIfIdle(t *testing.T) {
	req := require.New(t)
	rooms, _, clock := newTestRepositories(t)
	ctx := context.Background()
	created, err := rooms.Create(ctx, domain.NewRoom("r1", "Quiz A", "Alice"))
	req.NoError(err)

	// Given a cutoff older than the last activity, the room stays
	deleted, err := rooms.DeleteIfIdle(ctx, "r1", created.LastActivity)
	req.NoError(err)
	req.False(deleted)

	// When the cutoff has passed the last activity, the room goes
	clock.Advance(domain.IdleTimeout + time.Second)
	deleted, err = rooms.DeleteIfIdle(ctx, "r1", created.LastActivity+1)
	req.NoError(err)
	req.True(deleted)

	// A second sweeper finds nothing to do
	deleted, err = rooms.DeleteIfIdle(ctx, "r1", created.LastActivity+1)
	req.NoError(err)
	req.False(deleted)
}

func TestRoomRepository_List_OrderedByCreation(t *testing.T) {
	req := require.New(t)
	rooms, _, clock := newTestRepositories(t)
	ctx := context.Background()

	for _, id := range []domain.RoomID{"zeta", "alpha", "mid"} {
		_, err := rooms.Create(ctx, domain.NewRoom(id, "Room "+string(id), "Alice"))
		req.NoError(err)
		clock.Advance(time.Second)
	}

	list, err := rooms.List(ctx)
	req.NoError(err)
	req.Len(list, 3)
	req.Equal([]domain.RoomID{"zeta", "alpha", "mid"}, []domain.RoomID{list[0].ID, list[1].ID, list[2].ID})
}

func TestRoomRepository_Watch_ReportsDeletion(t *testing.T) {
	req := require.New(t)
	rooms, _, _ := newTestRepositories(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := rooms.Create(ctx, domain.NewRoom("r1", "Quiz A", "Alice"))
	req.NoError(err)

	states := make(chan bool, 16)
	go func() {
		_ = rooms.Watch(ctx, "r1", func(room domain.Room, exists bool) { states <- exists })
	}()
	req.True(<-states)

	_, err = rooms.Mutate(ctx, "r1", func(room *domain.Room) (bool, error) {
		delete(room.Players, "Alice")
		return true, nil
	})
	req.NoError(err)

	req.Eventually(func() bool {
		select {
		case exists := <-states:
			return !exists
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestQuestionRepository_SeedOnlyOnce(t *testing.T) {
	req := require.New(t)
	_, questions, _ := newTestRepositories(t)
	ctx := context.Background()
	bank := []domain.Question{
		{ID: "q2", Text: "Capital of France?", Options: []string{"Paris", "Rome"}, CorrectAnswer: 0},
		{ID: "q1", Text: "2+2?", Options: []string{"3", "4"}, CorrectAnswer: 1},
	}

	n, err := questions.Seed(ctx, bank)
	req.NoError(err)
	req.Equal(2, n)

	n, err = questions.Seed(ctx, bank[:1])
	req.NoError(err)
	req.Zero(n)

	all, err := questions.All(ctx)
	req.NoError(err)
	req.Equal([]domain.Question{bank[1], bank[0]}, all)
}
