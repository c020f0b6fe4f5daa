package repositories

import (
	"fmt"
	"sort"

	"quiz-lab/domain"
	"quiz-lab/errors"

	"github.com/samber/lo"
)

const (
	roomsCollection     = "rooms"
	questionsCollection = "questions"
)

// Field names of the rooms/{id} record.
const (
	fieldName            = "name"
	fieldHost            = "host"
	fieldStatus          = "status"
	fieldPlayers         = "players"
	fieldScore           = "score"
	fieldJoinedAt        = "joinedAt"
	fieldCurrentQuestion = "currentQuestion"
	fieldCurrentPlayer   = "currentPlayer"
	fieldUsedQuestions   = "usedQuestions"
	fieldWinner          = "winner"
	fieldLastActivity    = "lastActivity"
	fieldCreatedAt       = "createdAt"

	fieldID            = "id"
	fieldText          = "text"
	fieldOptions       = "options"
	fieldCorrectAnswer = "correctAnswer"
)

func roomPath(id domain.RoomID) string {
	return roomsCollection + "/" + string(id)
}

func questionPath(id domain.QuestionID) string {
	return questionsCollection + "/" + string(id)
}

// toRoomDocument builds the wire shape of a room. stamp is the store's
// server timestamp placeholder: lastActivity always takes it, createdAt and
// joinedAt only when they have not been assigned yet.
func toRoomDocument(r domain.Room, stamp any) map[string]any {
	players := make(map[string]any, len(r.Players))
	for name, p := range r.Players {
		var joinedAt any = p.JoinedAt
		if p.JoinedAt == 0 {
			joinedAt = stamp
		}
		players[name] = map[string]any{fieldScore: p.Score, fieldJoinedAt: joinedAt}
	}

	var createdAt any = r.CreatedAt
	if r.CreatedAt == 0 {
		createdAt = stamp
	}

	doc := map[string]any{
		fieldName:         r.Name,
		fieldHost:         r.Host,
		fieldStatus:       string(r.Status),
		fieldPlayers:      players,
		fieldLastActivity: stamp,
		fieldCreatedAt:    createdAt,
	}
	if r.CurrentQuestion != nil {
		q := toQuestionDocument(*r.CurrentQuestion)
		q[fieldID] = string(r.CurrentQuestion.ID)
		doc[fieldCurrentQuestion] = q
	}
	if r.CurrentPlayer != "" {
		doc[fieldCurrentPlayer] = r.CurrentPlayer
	}
	if len(r.UsedQuestions) > 0 {
		doc[fieldUsedQuestions] = lo.MapValues(r.UsedQuestions, func(v bool, _ string) any { return v })
	}
	if r.Winner != "" {
		doc[fieldWinner] = r.Winner
	}
	return doc
}

func fromRoomDocument(id domain.RoomID, value any) (domain.Room, error) {
	doc, ok := value.(map[string]any)
	if !ok {
		return domain.Room{}, fmt.Errorf("%w: room %s is not an object", errors.ErrState, id)
	}

	room := domain.Room{
		ID:            id,
		Name:          asString(doc[fieldName]),
		Host:          asString(doc[fieldHost]),
		Status:        domain.RoomStatus(asString(doc[fieldStatus])),
		Players:       make(map[string]domain.PlayerState),
		CurrentPlayer: asString(doc[fieldCurrentPlayer]),
		UsedQuestions: make(map[string]bool),
		Winner:        asString(doc[fieldWinner]),
		LastActivity:  asInt64(doc[fieldLastActivity]),
		CreatedAt:     asInt64(doc[fieldCreatedAt]),
	}
	for name, v := range asMap(doc[fieldPlayers]) {
		p := asMap(v)
		room.Players[name] = domain.PlayerState{
			Score:    int(asInt64(p[fieldScore])),
			JoinedAt: asInt64(p[fieldJoinedAt]),
		}
	}
	for qid, used := range asMap(doc[fieldUsedQuestions]) {
		if b, _ := used.(bool); b {
			room.UsedQuestions[qid] = true
		}
	}
	if q := asMap(doc[fieldCurrentQuestion]); len(q) > 0 {
		question := fromQuestionDocument(domain.QuestionID(asString(q[fieldID])), q)
		room.CurrentQuestion = &question
	}
	if !room.Status.Valid() {
		return domain.Room{}, fmt.Errorf("%w: room %s has unknown status %q", errors.ErrState, id, room.Status)
	}
	return room, nil
}

func toQuestionDocument(q domain.Question) map[string]any {
	return map[string]any{
		fieldText:          q.Text,
		fieldOptions:       lo.Map(q.Options, func(o string, _ int) any { return o }),
		fieldCorrectAnswer: q.CorrectAnswer,
	}
}

func fromQuestionDocument(id domain.QuestionID, doc map[string]any) domain.Question {
	options, _ := doc[fieldOptions].([]any)
	return domain.Question{
		ID:            id,
		Text:          asString(doc[fieldText]),
		Options:       lo.Map(options, func(o any, _ int) string { return asString(o) }),
		CorrectAnswer: int(asInt64(doc[fieldCorrectAnswer])),
	}
}

// sortRooms orders a directory listing by creation time, then id.
func sortRooms(rooms []domain.Room) {
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].CreatedAt != rooms[j].CreatedAt {
			return rooms[i].CreatedAt < rooms[j].CreatedAt
		}
		return rooms[i].ID < rooms[j].ID
	})
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// asInt64 reads a stored number. The store hands numbers back as float64.
func asInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int:
		return int64(n)
	case int64:
		return n
	default:
		return 0
	}
}
