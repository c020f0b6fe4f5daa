package services

import (
	"context"
	"fmt"
	"log/slog"

	"quiz-lab/domain"
	"quiz-lab/errors"
	"quiz-lab/repositories"
)

type CommitResult struct {
	Player   string
	Score    int
	Finished bool
	Winner   string
}

// ScoreEngine awards points and detects the win.
type ScoreEngine struct {
	log       *slog.Logger
	rooms     repositories.IRoomRepository
	threshold int
}

func NewScoreEngine(log *slog.Logger, rooms repositories.IRoomRepository) ScoreEngine {
	return ScoreEngine{log: log, rooms: rooms, threshold: domain.WinThreshold}
}

// Apply computes the player's new absolute score from the committed one.
// Reaching the threshold finishes the room in the same change: status,
// winner, and the cleared buzz and question all travel with the score.
func (s ScoreEngine) Apply(room *domain.Room, player string) (CommitResult, error) {
	state, ok := room.Players[player]
	if !ok {
		return CommitResult{}, fmt.Errorf("%w: player %q in room %s", errors.ErrNotFound, player, room.ID)
	}
	if room.Status != domain.Playing {
		return CommitResult{}, fmt.Errorf("%w: room %s is %s", errors.ErrState, room.ID, room.Status)
	}

	state.Score++
	room.Players[player] = state
	result := CommitResult{Player: player, Score: state.Score}

	if state.Score >= s.threshold {
		room.Status = domain.Finished
		room.Winner = player
		room.CurrentPlayer = ""
		room.CurrentQuestion = nil
		result.Finished = true
		result.Winner = player
	}
	return result, nil
}

// Increment awards one point in its own commit.
func (s ScoreEngine) Increment(ctx context.Context, id domain.RoomID, player string) (CommitResult, error) {
	var result CommitResult
	_, err := s.rooms.Mutate(ctx, id, func(room *domain.Room) (bool, error) {
		var err error
		result, err = s.Apply(room, player)
		return err == nil, err
	})
	if err != nil {
		return CommitResult{}, err
	}
	if result.Finished {
		s.log.Info("Room finished", "room", id, "winner", result.Winner, "score", result.Score)
	}
	return result, nil
}
