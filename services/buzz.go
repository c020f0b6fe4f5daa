package services

import (
	"context"
	"fmt"
	"log/slog"

	"quiz-lab/domain"
	"quiz-lab/errors"
	"quiz-lab/repositories"
)

// Resolution describes how an answer was settled.
type Resolution struct {
	Player   string
	Correct  bool
	Score    CommitResult
	Question *domain.Question
	Room     domain.Room
}

// BuzzService arbitrates who may answer the current question.
//
// A buzz is a test-and-set on currentPlayer: the store rejects the commit of
// every contender whose read of an empty lock has been overtaken, and the
// retry then finds the lock taken.
type BuzzService struct {
	log    *slog.Logger
	rooms  repositories.IRoomRepository
	feed   *QuestionFeed
	scores ScoreEngine
}

func NewBuzzService(log *slog.Logger, rooms repositories.IRoomRepository, feed *QuestionFeed, scores ScoreEngine) BuzzService {
	return BuzzService{log: log, rooms: rooms, feed: feed, scores: scores}
}

func (b BuzzService) BuzzIn(ctx context.Context, roomID, player string) (domain.Room, error) {
	req, err := newPlayerRequest(roomID, player)
	if err != nil {
		return domain.Room{}, err
	}
	room, err := b.rooms.Mutate(ctx, domain.RoomID(req.RoomID), func(room *domain.Room) (bool, error) {
		if !room.IsMember(req.Player) {
			return false, fmt.Errorf("%w: player %q in room %s", errors.ErrNotFound, req.Player, room.ID)
		}
		if room.Status != domain.Playing {
			return false, fmt.Errorf("%w: room %s is %s", errors.ErrState, room.ID, room.Status)
		}
		if buzz := room.Buzz(); buzz.Locked {
			return false, fmt.Errorf("%w: held by %s", errors.ErrAlreadyAnswering, buzz.Holder)
		}
		room.CurrentPlayer = req.Player
		return true, nil
	})
	if err != nil {
		return domain.Room{}, err
	}
	b.log.Debug("Buzz accepted", "room", room.ID, "player", req.Player)
	return room, nil
}

// ResolveAnswer settles the held buzz. A correct answer scores and, unless it
// won the game, moves on to the next question, all in one commit. A wrong
// answer only reopens the buzz on the same question.
func (b BuzzService) ResolveAnswer(ctx context.Context, roomID string, selected int) (Resolution, error) {
	id := domain.RoomID(roomID)
	pool, err := b.feed.Pool(ctx)
	if err != nil {
		return Resolution{}, err
	}

	var res Resolution
	room, err := b.rooms.Mutate(ctx, id, func(room *domain.Room) (bool, error) {
		res = Resolution{}
		buzz := room.Buzz()
		if room.Status != domain.Playing || !buzz.Locked || room.CurrentQuestion == nil {
			return false, fmt.Errorf("%w: no buzz held in room %s", errors.ErrState, id)
		}
		question := room.CurrentQuestion
		if !question.ValidOption(selected) {
			return false, fmt.Errorf("%w: option %d out of %d", errors.ErrValidation, selected, len(question.Options))
		}

		res.Player = buzz.Holder
		room.CurrentPlayer = ""
		if !question.IsCorrect(selected) {
			return true, nil
		}

		res.Correct = true
		score, err := b.scores.Apply(room, buzz.Holder)
		if err != nil {
			return false, err
		}
		res.Score = score
		if score.Finished {
			return true, nil
		}
		next, err := b.feed.Assign(room, pool)
		if err != nil {
			return false, err
		}
		res.Question = &next
		return true, nil
	})
	if err != nil {
		return Resolution{}, err
	}
	res.Room = room

	switch {
	case res.Score.Finished:
		b.log.Info("Room finished", "room", id, "winner", res.Score.Winner, "score", res.Score.Score)
	case res.Correct:
		b.log.Debug("Correct answer", "room", id, "player", res.Player, "score", res.Score.Score)
	default:
		b.log.Debug("Wrong answer", "room", id, "player", res.Player)
	}
	return res, nil
}
