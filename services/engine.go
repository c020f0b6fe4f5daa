package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"quiz-lab/contract"
	"quiz-lab/domain"
	"quiz-lab/domain/event"
	"quiz-lab/errors"
	"quiz-lab/repositories"
)

type EngineConfig struct {
	IdleTimeout       time.Duration
	HeartbeatInterval time.Duration
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{IdleTimeout: domain.IdleTimeout, HeartbeatInterval: domain.HeartbeatInterval}
}

// Engine is the in-process surface the console and any other front end drive.
// Every call is independent: correctness comes from the store, not from
// anything the engine holds in memory.
type Engine struct {
	log        *slog.Logger
	rooms      repositories.IRoomRepository
	Directory  DirectoryService
	Membership MembershipService
	Buzz       BuzzService
	Scores     ScoreEngine
	Feed       *QuestionFeed
	Activity   ActivityMonitor
}

func NewEngine(log *slog.Logger, rooms repositories.IRoomRepository, questions repositories.IQuestionRepository, config EngineConfig) *Engine {
	feed := NewQuestionFeed(log, questions, rooms)
	scores := NewScoreEngine(log, rooms)
	return &Engine{
		log:        log,
		rooms:      rooms,
		Directory:  NewDirectoryService(log, rooms, config.IdleTimeout),
		Membership: NewMembershipService(log, rooms, feed),
		Buzz:       NewBuzzService(log, rooms, feed, scores),
		Scores:     scores,
		Feed:       feed,
		Activity:   NewActivityMonitor(log, rooms, config.HeartbeatInterval),
	}
}

func (e *Engine) CreateRoom(ctx context.Context, name, host string) (domain.RoomID, error) {
	return e.Directory.Create(ctx, name, host)
}

// ListRooms streams the directory until ctx is cancelled.
func (e *Engine) ListRooms(ctx context.Context, onRefresh func(event.RoomsRefreshed)) error {
	return e.Directory.Watch(ctx, onRefresh)
}

func (e *Engine) JoinRoom(ctx context.Context, id domain.RoomID, player string) (domain.Room, error) {
	return e.Membership.Join(ctx, string(id), player)
}

func (e *Engine) LeaveRoom(ctx context.Context, id domain.RoomID, player string) (domain.Room, error) {
	return e.Membership.Leave(ctx, string(id), player)
}

func (e *Engine) StartGame(ctx context.Context, id domain.RoomID, requester string) (domain.Room, error) {
	return e.Membership.StartGame(ctx, string(id), requester)
}

func (e *Engine) BuzzIn(ctx context.Context, id domain.RoomID, player string) (domain.Room, error) {
	return e.Buzz.BuzzIn(ctx, string(id), player)
}

func (e *Engine) ResolveAnswer(ctx context.Context, id domain.RoomID, selected int) (Resolution, error) {
	return e.Buzz.ResolveAnswer(ctx, string(id), selected)
}

// Heartbeat blocks, refreshing the room's activity, until ctx is cancelled
// or the player is no longer in the room.
func (e *Engine) Heartbeat(ctx context.Context, id domain.RoomID, player string) error {
	return e.Activity.Run(ctx, string(id), player)
}

func (e *Engine) GetRoom(ctx context.Context, id domain.RoomID) (domain.Room, error) {
	return e.rooms.Get(ctx, id)
}

// WatchRoom feeds every committed state of the room to sink, then a RoomGone
// once the room has been deleted, and returns.
func (e *Engine) WatchRoom(ctx context.Context, id domain.RoomID, sink contract.EventSink) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var sinkErr error
	err := e.rooms.Watch(ctx, id, func(room domain.Room, exists bool) {
		if sinkErr != nil {
			return
		}
		var evt event.DomainEvent = event.RoomChanged{Room: room, At: time.Now()}
		if !exists {
			evt = event.RoomGone{Room: id, At: time.Now()}
			defer cancel()
		}
		if err := sink.Consume(ctx, evt); err != nil && !errors.Is(err, context.Canceled) {
			sinkErr = fmt.Errorf("sink rejected %s for room %s: %w", evt.Name(), id, err)
			cancel()
		}
	})
	if sinkErr != nil {
		return sinkErr
	}
	return err
}
