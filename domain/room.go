// Package domain contains the core concepts of a quiz match.
// A Room is the aggregate root: every component reads and writes whole rooms,
// never individual players or questions in isolation.
// No runtime, storage, or UI logic should be added here.
package domain

import (
	"fmt"
	"sort"
	"time"

	"quiz-lab/errors"
)

const (
	MaxPlayers        = 4
	WinThreshold      = 20
	IdleTimeout       = 180 * time.Second
	HeartbeatInterval = 60 * time.Second
)

type RoomID string

func (id RoomID) String() string {
	return string(id)
}

type RoomStatus string

const (
	Waiting  RoomStatus = "waiting"
	Playing  RoomStatus = "playing"
	Finished RoomStatus = "finished"
)

func (s RoomStatus) Valid() bool {
	switch s {
	case Waiting, Playing, Finished:
		return true
	default:
		return false
	}
}

// PlayerState is a member's per-room state. JoinedAt is the store timestamp
// of the join and drives host succession.
type PlayerState struct {
	Score    int
	JoinedAt int64
}

type Room struct {
	ID              RoomID
	Name            string
	Host            string
	Status          RoomStatus
	Players         map[string]PlayerState
	CurrentQuestion *Question
	CurrentPlayer   string
	UsedQuestions   map[string]bool
	Winner          string
	LastActivity    int64
	CreatedAt       int64
}

func NewRoom(id RoomID, name, host string) Room {
	return Room{
		ID:            id,
		Name:          name,
		Host:          host,
		Status:        Waiting,
		Players:       map[string]PlayerState{host: {}},
		UsedQuestions: make(map[string]bool),
	}
}

func (r Room) IsMember(name string) bool {
	_, ok := r.Players[name]
	return ok
}

func (r Room) IsFull() bool {
	return len(r.Players) >= MaxPlayers
}

func (r Room) IsEmpty() bool {
	return len(r.Players) == 0
}

// IsIdle reports whether the room has not been touched for longer than timeout.
// now and LastActivity are store timestamps in milliseconds.
func (r Room) IsIdle(now int64, timeout time.Duration) bool {
	return now-r.LastActivity > timeout.Milliseconds()
}

// PlayerNames returns members in join order, ties broken by name.
func (r Room) PlayerNames() []string {
	names := make([]string, 0, len(r.Players))
	for name := range r.Players {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := r.Players[names[i]], r.Players[names[j]]
		if a.JoinedAt != b.JoinedAt {
			return a.JoinedAt < b.JoinedAt
		}
		return names[i] < names[j]
	})
	return names
}

// NextHost picks the successor of the current host: the earliest-joined
// remaining member other than the host itself.
func (r Room) NextHost() (string, bool) {
	for _, name := range r.PlayerNames() {
		if name != r.Host {
			return name, true
		}
	}
	return "", false
}

func (r Room) Buzz() BuzzState {
	if r.CurrentPlayer == "" {
		return BuzzState{}
	}
	return BuzzState{Locked: true, Holder: r.CurrentPlayer}
}

// Check verifies the aggregate invariants that must hold after every commit.
func (r Room) Check() error {
	switch {
	case r.Name == "":
		return fmt.Errorf("%w: room %s has no name", errors.ErrState, r.ID)
	case !r.Status.Valid():
		return fmt.Errorf("%w: room %s has unknown status %q", errors.ErrState, r.ID, r.Status)
	case len(r.Players) == 0:
		return fmt.Errorf("%w: room %s has no players", errors.ErrState, r.ID)
	case len(r.Players) > MaxPlayers:
		return fmt.Errorf("%w: room %s has %d players", errors.ErrState, r.ID, len(r.Players))
	case !r.IsMember(r.Host):
		return fmt.Errorf("%w: host %q is not a member of room %s", errors.ErrState, r.Host, r.ID)
	}
	for name, p := range r.Players {
		if p.Score < 0 {
			return fmt.Errorf("%w: player %q has a negative score", errors.ErrState, name)
		}
	}
	if r.Winner != "" {
		p, ok := r.Players[r.Winner]
		if r.Status != Finished || !ok || p.Score < WinThreshold {
			return fmt.Errorf("%w: winner %q does not satisfy the win condition", errors.ErrState, r.Winner)
		}
	}
	if r.Status == Finished && r.Winner == "" {
		return fmt.Errorf("%w: finished room %s has no winner", errors.ErrState, r.ID)
	}
	if r.CurrentPlayer != "" && (r.Status != Playing || !r.IsMember(r.CurrentPlayer)) {
		return fmt.Errorf("%w: buzz held by %q outside of play", errors.ErrState, r.CurrentPlayer)
	}
	if (r.CurrentQuestion != nil) != (r.Status == Playing) {
		return fmt.Errorf("%w: room %s question does not match status %s", errors.ErrState, r.ID, r.Status)
	}
	return nil
}

// Clone returns a deep copy so projections never share maps with the store echo.
func (r Room) Clone() Room {
	c := r
	c.Players = make(map[string]PlayerState, len(r.Players))
	for k, v := range r.Players {
		c.Players[k] = v
	}
	c.UsedQuestions = make(map[string]bool, len(r.UsedQuestions))
	for k, v := range r.UsedQuestions {
		c.UsedQuestions[k] = v
	}
	if r.CurrentQuestion != nil {
		q := r.CurrentQuestion.Clone()
		c.CurrentQuestion = &q
	}
	return c
}

// BuzzState is the arbitration state nested inside Playing.
type BuzzState struct {
	Locked bool
	Holder string
}
