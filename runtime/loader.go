// Package runtime handles the infrastructure-level tasks like loading the
// embedded question bank.
package runtime

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"quiz-lab/domain"
	"quiz-lab/errors"

	"github.com/go-playground/validator/v10"
)

//go:embed questions/*.json
var questionBank embed.FS

const QuestionBankDir = "questions"

var validate = validator.New()

// questionFile is the on-disk shape of one bank entry.
type questionFile struct {
	ID            string   `json:"id" validate:"required,excludesall=/.#$[]"`
	Text          string   `json:"text" validate:"required"`
	Options       []string `json:"options" validate:"min=2,dive,required"`
	CorrectAnswer int      `json:"correctAnswer" validate:"gte=0"`
}

// QuestionLoader reads question banks from an embedded filesystem.
type QuestionLoader struct {
	fs fs.FS
}

func NewQuestionLoader(f fs.FS) *QuestionLoader {
	return &QuestionLoader{fs: f}
}

// NewDefaultQuestionLoader reads the bank compiled into the binary.
func NewDefaultQuestionLoader() *QuestionLoader {
	return NewQuestionLoader(questionBank)
}

// LoadAll parses every .json file under dir, each holding an array of
// questions. Ids must be unique across files. The result is ordered by id.
func (l *QuestionLoader) LoadAll(dir string) ([]domain.Question, error) {
	entries, err := fs.ReadDir(l.fs, dir)
	if err != nil {
		return nil, err
	}

	seen := make(map[domain.QuestionID]string)
	var questions []domain.Question
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		name := path.Join(dir, entry.Name())
		data, err := fs.ReadFile(l.fs, name)
		if err != nil {
			return nil, err
		}

		var files []questionFile
		if err = json.Unmarshal(data, &files); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", errors.ErrValidation, name, err)
		}
		for i, f := range files {
			q, err := f.toQuestion()
			if err != nil {
				return nil, fmt.Errorf("%s entry %d: %w", name, i, err)
			}
			if other, dup := seen[q.ID]; dup {
				return nil, fmt.Errorf("%w: question %s defined in %s and %s", errors.ErrValidation, q.ID, other, name)
			}
			seen[q.ID] = name
			questions = append(questions, q)
		}
	}

	if len(questions) == 0 {
		return nil, errors.ErrEmptyBank
	}
	sort.Slice(questions, func(i, j int) bool { return questions[i].ID < questions[j].ID })
	return questions, nil
}

func (f questionFile) toQuestion() (domain.Question, error) {
	if err := validate.Struct(f); err != nil {
		return domain.Question{}, fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}
	q := domain.Question{
		ID:            domain.QuestionID(f.ID),
		Text:          f.Text,
		Options:       f.Options,
		CorrectAnswer: f.CorrectAnswer,
	}
	if !q.ValidOption(q.CorrectAnswer) {
		return domain.Question{}, fmt.Errorf("%w: correct answer %d out of %d options", errors.ErrValidation, f.CorrectAnswer, len(f.Options))
	}
	return q, nil
}
