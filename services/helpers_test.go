package services

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"quiz-lab/domain"
	"quiz-lab/infrastructure/storage"
	"quiz-lab/repositories"

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

func (c *fakeClock) Set(ms int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = time.UnixMilli(ms)
}

var testQuestions = []domain.Question{
	{ID: "q1", Text: "2+2?", Options: []string{"3", "4", "5"}, CorrectAnswer: 1},
	{ID: "q2", Text: "Capital of France?", Options: []string{"Paris", "Rome"}, CorrectAnswer: 0},
	{ID: "q3", Text: "Largest planet?", Options: []string{"Mars", "Jupiter", "Venus"}, CorrectAnswer: 1},
}

type testEnv struct {
	engine *Engine
	rooms  repositories.RoomRepository
	clock  *fakeClock
}

// newTestEnv wires an engine onto a fresh badger store seeded with
// testQuestions. Questions are always drawn first-unused for determinism.
func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	clock := &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
	log := logs.GetLoggerFromLevel(slog.LevelError)
	store := storage.NewBadgerStore(db, log, storage.WithClock(clock.Now), storage.WithMaxAttempts(64))
	rooms := repositories.NewRoomRepository(store, log)
	questions := repositories.NewQuestionRepository(store, log)
	_, err = questions.Seed(context.Background(), testQuestions)
	require.NoError(t, err)

	engine := NewEngine(log, rooms, questions, EngineConfig{
		IdleTimeout:       domain.IdleTimeout,
		HeartbeatInterval: 10 * time.Millisecond,
	})
	engine.Feed.intn = func(int) int { return 0 }
	return testEnv{engine: engine, rooms: rooms, clock: clock}
}

// newRoom creates a room hosted by host and joins the other players in order.
func (e testEnv) newRoom(t *testing.T, host string, players ...string) domain.RoomID {
	t.Helper()
	ctx := context.Background()
	id, err := e.engine.CreateRoom(ctx, "Quiz", host)
	require.NoError(t, err)
	for _, p := range players {
		_, err = e.engine.JoinRoom(ctx, id, p)
		require.NoError(t, err)
	}
	return id
}

func (e testEnv) setScore(t *testing.T, id domain.RoomID, player string, score int) {
	t.Helper()
	_, err := e.rooms.Mutate(context.Background(), id, func(room *domain.Room) (bool, error) {
		p := room.Players[player]
		p.Score = score
		room.Players[player] = p
		return true, nil
	})
	require.NoError(t, err)
}
