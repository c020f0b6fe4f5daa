package storage

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"quiz-lab/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, opts ...Option) (*BadgerStore, *badger.DB) {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewBadgerStore(db, logs.GetLoggerFromLevel(slog.LevelError), opts...), db
}

func TestBadgerStore_SetAndGet_Document(t *testing.T) {
	req := require.New(t)
	store, _ := newTestStore(t)
	ctx := context.Background()

	err := store.Set(ctx, "rooms/r1", map[string]any{
		"name":    "Quiz A",
		"players": map[string]any{"Alice": map[string]any{"score": 0}},
		"options": []string{"a", "b"},
	})
	req.NoError(err)

	name, err := store.Get(ctx, "rooms/r1/name")
	req.NoError(err)
	req.Equal("Quiz A", name)

	score, err := store.Get(ctx, "rooms/r1/players/Alice/score")
	req.NoError(err)
	req.Equal(float64(0), score)

	options, err := store.Get(ctx, "rooms/r1/options")
	req.NoError(err)
	req.Equal([]any{"a", "b"}, options)
}

func TestBadgerStore_Get_AbsentIsNil(t *testing.T) {
	req := require.New(t)
	store, _ := newTestStore(t)

	value, err := store.Get(context.Background(), "rooms/missing/name")
	req.NoError(err)
	req.Nil(value)

	value, err = store.Get(context.Background(), "rooms")
	req.NoError(err)
	req.Nil(value)
}

func TestBadgerStore_Get_Collection(t *testing.T) {
	req := require.New(t)
	store, _ := newTestStore(t)
	ctx := context.Background()

	req.NoError(store.Set(ctx, "rooms/r1", map[string]any{"name": "A"}))
	req.NoError(store.Set(ctx, "rooms/r2", map[string]any{"name": "B"}))
	req.NoError(store.Set(ctx, "questions/q1", map[string]any{"text": "?"}))

	value, err := store.Get(ctx, "rooms")
	req.NoError(err)
	req.Equal(map[string]any{
		"r1": map[string]any{"name": "A"},
		"r2": map[string]any{"name": "B"},
	}, value)
}

func TestBadgerStore_Update_IsAtomicAcrossPaths(t *testing.T) {
	req := require.New(t)
	store, _ := newTestStore(t)
	ctx := context.Background()
	req.NoError(store.Set(ctx, "rooms/r1", map[string]any{"name": "A", "host": "Alice"}))

	// Given an update where the last path carries a value the store rejects
	err := store.Update(ctx, map[string]any{
		"rooms/r1/host":   "Bob",
		"rooms/r1/winner": struct{}{},
	})

	// Then nothing has been written
	req.ErrorIs(err, errors.ErrUnsupportedValue)
	host, err := store.Get(ctx, "rooms/r1/host")
	req.NoError(err)
	req.Equal("Alice", host)
}

func TestBadgerStore_Update_NilDeletesAndPrunes(t *testing.T) {
	req := require.New(t)
	store, _ := newTestStore(t)
	ctx := context.Background()
	req.NoError(store.Set(ctx, "rooms/r1", map[string]any{
		"name":    "A",
		"players": map[string]any{"Alice": map[string]any{"score": 3}},
	}))

	req.NoError(store.Update(ctx, map[string]any{"rooms/r1/players/Alice": nil}))

	doc, err := store.Get(ctx, "rooms/r1")
	req.NoError(err)
	req.Equal(map[string]any{"name": "A"}, doc)

	// Removing the last field removes the document itself
	req.NoError(store.Update(ctx, map[string]any{"rooms/r1/name": nil}))
	doc, err = store.Get(ctx, "rooms/r1")
	req.NoError(err)
	req.Nil(doc)
}

func TestBadgerStore_Remove_IsIdempotent(t *testing.T) {
	req := require.New(t)
	store, _ := newTestStore(t)
	ctx := context.Background()
	req.NoError(store.Set(ctx, "rooms/r1", map[string]any{"name": "A"}))

	req.NoError(store.Remove(ctx, "rooms/r1"))
	req.NoError(store.Remove(ctx, "rooms/r1"))
	req.NoError(store.Remove(ctx, "rooms/never-existed/players/Bob"))

	doc, err := store.Get(ctx, "rooms/r1")
	req.NoError(err)
	req.Nil(doc)
}

func TestBadgerStore_InvalidPaths(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	for _, path := range []string{"", "/", "rooms//x", "rooms/a.b", "_probe/x"} {
		t.Run(path, func(t *testing.T) {
			_, err := store.Get(ctx, path)
			require.ErrorIs(t, err, errors.ErrInvalidPath)
		})
	}
}

func TestBadgerStore_Set_DocumentMustBeObject(t *testing.T) {
	store, _ := newTestStore(t)
	err := store.Set(context.Background(), "rooms/r1", "not an object")
	require.ErrorIs(t, err, errors.ErrUnsupportedValue)
}

func TestBadgerStore_ServerTimestamp_IsResolvedAndMonotonic(t *testing.T) {
	req := require.New(t)
	fixed := time.UnixMilli(1_700_000_000_000)
	store, _ := newTestStore(t, WithClock(func() time.Time { return fixed }))
	ctx := context.Background()

	req.NoError(store.Set(ctx, "rooms/r1", map[string]any{"createdAt": store.ServerTimestamp()}))
	req.NoError(store.Set(ctx, "rooms/r1/lastActivity", store.ServerTimestamp()))

	createdAt, err := store.Get(ctx, "rooms/r1/createdAt")
	req.NoError(err)
	lastActivity, err := store.Get(ctx, "rooms/r1/lastActivity")
	req.NoError(err)

	// The wall clock did not move but stamps still strictly increase
	req.Equal(float64(fixed.UnixMilli()), createdAt)
	req.Greater(lastActivity.(float64), createdAt.(float64))
}

func TestBadgerStore_Transaction_AbortLeavesValueUnchanged(t *testing.T) {
	req := require.New(t)
	store, _ := newTestStore(t)
	ctx := context.Background()
	req.NoError(store.Set(ctx, "rooms/r1", map[string]any{"currentPlayer": "Alice"}))

	_, err := store.Transaction(ctx, "rooms/r1/currentPlayer", func(current any) (any, error) {
		if current != nil {
			return nil, errors.ErrAlreadyAnswering
		}
		return "Bob", nil
	})

	req.ErrorIs(err, errors.ErrAlreadyAnswering)
	holder, err := store.Get(ctx, "rooms/r1/currentPlayer")
	req.NoError(err)
	req.Equal("Alice", holder)
}

func TestBadgerStore_Transaction_RejectsCollection(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Transaction(context.Background(), "rooms", func(current any) (any, error) {
		return current, nil
	})
	require.ErrorIs(t, err, errors.ErrInvalidPath)
}

func TestBadgerStore_Transaction_ExactlyOneTestAndSetWins(t *testing.T) {
	req := require.New(t)
	store, _ := newTestStore(t)
	ctx := context.Background()
	req.NoError(store.Set(ctx, "rooms/r1", map[string]any{"name": "A"}))

	const contenders = 8
	var wins, losses atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := store.Transaction(ctx, "rooms/r1/currentPlayer", func(current any) (any, error) {
				if current != nil {
					return nil, errors.ErrAlreadyAnswering
				}
				return string(rune('A' + i)), nil
			})
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, errors.ErrAlreadyAnswering):
				losses.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	req.Equal(int32(1), wins.Load())
	req.Equal(int32(contenders-1), losses.Load())
}

func TestBadgerStore_Transaction_CounterHasNoLostUpdate(t *testing.T) {
	req := require.New(t)
	store, _ := newTestStore(t, WithMaxAttempts(100))
	ctx := context.Background()

	const increments = 20
	var wg sync.WaitGroup
	for i := 0; i < increments; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Transaction(ctx, "rooms/r1/players/Alice/score", func(current any) (any, error) {
				score, _ := current.(float64)
				return score + 1, nil
			})
			if err != nil {
				t.Errorf("increment failed: %v", err)
			}
		}()
	}
	wg.Wait()

	score, err := store.Get(ctx, "rooms/r1/players/Alice/score")
	req.NoError(err)
	req.Equal(float64(increments), score)
}

func TestBadgerStore_Subscribe_InitialSnapshotThenChanges(t *testing.T) {
	req := require.New(t)
	store, _ := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req.NoError(store.Set(ctx, "rooms/r1", map[string]any{"name": "A"}))

	snapshots := make(chan any, 16)
	done := make(chan error, 1)
	go func() {
		done <- store.Subscribe(ctx, "rooms", func(value any) { snapshots <- value })
	}()

	// Given the initial snapshot
	first := <-snapshots
	req.Equal(map[string]any{"r1": map[string]any{"name": "A"}}, first)

	// When another document is written
	req.NoError(store.Set(ctx, "rooms/r2", map[string]any{"name": "B"}))

	// Then a snapshot containing both rooms eventually arrives
	req.Eventually(func() bool {
		select {
		case v := <-snapshots:
			rooms, ok := v.(map[string]any)
			return ok && len(rooms) == 2
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	// Cancelling stops the subscription cleanly
	cancel()
	select {
	case err := <-done:
		req.NoError(err)
	case <-time.After(2 * time.Second):
		req.Fail("subscription did not stop after cancel")
	}
}

func TestBadgerStore_Subscribe_IgnoresOtherDocuments(t *testing.T) {
	req := require.New(t)
	store, _ := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req.NoError(store.Set(ctx, "rooms/r1", map[string]any{"name": "A"}))

	var calls atomic.Int32
	go func() {
		_ = store.Subscribe(ctx, "rooms/r1", func(value any) { calls.Add(1) })
	}()
	req.Eventually(func() bool { return calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	// rooms/r10 shares the badger prefix of rooms/r1 but is another document
	req.NoError(store.Set(ctx, "rooms/r10", map[string]any{"name": "B"}))
	req.NoError(store.Set(ctx, "rooms/r1/name", "A2"))

	req.Eventually(func() bool { return calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	req.Equal(int32(2), calls.Load())
}

func TestBadgerStore_Subscribe_SeesDeletion(t *testing.T) {
	req := require.New(t)
	store, _ := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req.NoError(store.Set(ctx, "rooms/r1", map[string]any{"name": "A"}))

	var mu sync.Mutex
	var last any = "unset"
	go func() {
		_ = store.Subscribe(ctx, "rooms/r1", func(value any) {
			mu.Lock()
			last = value
			mu.Unlock()
		})
	}()
	req.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return last != "unset"
	}, 2*time.Second, 5*time.Millisecond)

	req.NoError(store.Remove(ctx, "rooms/r1"))

	req.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return last == nil
	}, 2*time.Second, 5*time.Millisecond)
}

func TestBadgerStore_ClosedDatabaseIsRetryable(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	store := NewBadgerStore(db, slog.Default())
	req.NoError(db.Close())

	err = store.Set(context.Background(), "rooms/r1", map[string]any{"name": "A"})
	req.Error(err)
	req.True(errors.IsRetryable(err))
}
