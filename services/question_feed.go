package services

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"quiz-lab/domain"
	"quiz-lab/errors"
	"quiz-lab/repositories"

	"github.com/samber/lo"
)

// QuestionFeed hands each room the next question it has not seen yet.
//
// Once a room has used the whole pool, the pool is reshuffled: usedQuestions
// is cleared and drawing starts over, skipping the question just played when
// another one is available.
type QuestionFeed struct {
	log       *slog.Logger
	questions repositories.IQuestionRepository
	rooms     repositories.IRoomRepository
	intn      func(n int) int
}

func NewQuestionFeed(log *slog.Logger, questions repositories.IQuestionRepository, rooms repositories.IRoomRepository) *QuestionFeed {
	return &QuestionFeed{log: log, questions: questions, rooms: rooms, intn: rand.IntN}
}

func (f *QuestionFeed) Pool(ctx context.Context) ([]domain.Question, error) {
	pool, err := f.questions.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load question pool: %w", err)
	}
	return pool, nil
}

// Assign draws a question into room.CurrentQuestion and records it in
// usedQuestions. Both land in whatever commit carries the room.
func (f *QuestionFeed) Assign(room *domain.Room, pool []domain.Question) (domain.Question, error) {
	if len(pool) == 0 {
		return domain.Question{}, fmt.Errorf("%w: question pool is empty", errors.ErrState)
	}
	if room.UsedQuestions == nil {
		room.UsedQuestions = make(map[string]bool)
	}

	unused := lo.Filter(pool, func(q domain.Question, _ int) bool {
		return !room.UsedQuestions[string(q.ID)]
	})
	if len(unused) == 0 {
		f.log.Info("Question pool exhausted, reshuffling", "room", room.ID, "size", len(pool))
		room.UsedQuestions = make(map[string]bool)
		unused = lo.Filter(pool, func(q domain.Question, _ int) bool {
			return room.CurrentQuestion == nil || q.ID != room.CurrentQuestion.ID
		})
		if len(unused) == 0 {
			unused = pool
		}
	}

	next := unused[f.intn(len(unused))].Clone()
	room.UsedQuestions[string(next.ID)] = true
	room.CurrentQuestion = &next
	return next, nil
}

// Next moves a playing room on to a fresh question. Nobody may be holding
// the buzz: that would pull the question from under them.
func (f *QuestionFeed) Next(ctx context.Context, id domain.RoomID) (domain.Question, error) {
	pool, err := f.Pool(ctx)
	if err != nil {
		return domain.Question{}, err
	}
	var next domain.Question
	_, err = f.rooms.Mutate(ctx, id, func(room *domain.Room) (bool, error) {
		if room.Status != domain.Playing {
			return false, fmt.Errorf("%w: room %s is %s", errors.ErrState, id, room.Status)
		}
		if room.CurrentPlayer != "" {
			return false, fmt.Errorf("%w: %s is answering", errors.ErrState, room.CurrentPlayer)
		}
		next, err = f.Assign(room, pool)
		return err == nil, err
	})
	if err != nil {
		return domain.Question{}, err
	}
	return next, nil
}
