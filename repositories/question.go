//go:generate go run go.uber.org/mock/mockgen -source=question.go -destination=../mocks/mock_question_repository.go -package=mocks
package repositories

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"quiz-lab/contract"
	"quiz-lab/domain"
)

type IQuestionRepository interface {
	All(ctx context.Context) ([]domain.Question, error)
	Seed(ctx context.Context, questions []domain.Question) (int, error)
}

// QuestionRepository reads the shared question pool stored under questions/{id}.
type QuestionRepository struct {
	store contract.SharedStore
	log   *slog.Logger
}

func NewQuestionRepository(store contract.SharedStore, log *slog.Logger) QuestionRepository {
	return QuestionRepository{store: store, log: log}
}

// All returns the pool ordered by id.
func (q QuestionRepository) All(ctx context.Context) ([]domain.Question, error) {
	value, err := q.store.Get(ctx, questionsCollection)
	if err != nil {
		return nil, err
	}
	docs := asMap(value)
	questions := make([]domain.Question, 0, len(docs))
	for id, doc := range docs {
		questions = append(questions, fromQuestionDocument(domain.QuestionID(id), asMap(doc)))
	}
	sort.Slice(questions, func(i, j int) bool {
		return questions[i].ID < questions[j].ID
	})
	return questions, nil
}

// Seed writes the given questions in a single commit when the pool is empty.
// Two nodes seeding at once write identical documents, so the race is harmless.
func (q QuestionRepository) Seed(ctx context.Context, questions []domain.Question) (int, error) {
	existing, err := q.store.Get(ctx, questionsCollection)
	if err != nil {
		return 0, err
	}
	if len(asMap(existing)) > 0 {
		q.log.Debug("Question pool already seeded", "size", len(asMap(existing)))
		return 0, nil
	}

	values := make(map[string]any, len(questions))
	for _, question := range questions {
		values[questionPath(question.ID)] = toQuestionDocument(question)
	}
	if err = q.store.Update(ctx, values); err != nil {
		return 0, fmt.Errorf("failed to seed questions: %w", err)
	}
	q.log.Info("Question pool seeded", "size", len(questions))
	return len(questions), nil
}
