package domain

type QuestionID string

type Question struct {
	ID            QuestionID
	Text          string
	Options       []string
	CorrectAnswer int
}

func (q Question) IsCorrect(index int) bool {
	return index == q.CorrectAnswer
}

func (q Question) ValidOption(index int) bool {
	return index >= 0 && index < len(q.Options)
}

func (q Question) Clone() Question {
	c := q
	c.Options = append([]string(nil), q.Options...)
	return c
}
