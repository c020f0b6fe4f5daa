package services

import (
	"context"
	"fmt"
	"log/slog"

	"quiz-lab/domain"
	"quiz-lab/errors"
	"quiz-lab/repositories"

	"github.com/samber/lo"
)

type MembershipService struct {
	log   *slog.Logger
	rooms repositories.IRoomRepository
	feed  *QuestionFeed
}

func NewMembershipService(log *slog.Logger, rooms repositories.IRoomRepository, feed *QuestionFeed) MembershipService {
	return MembershipService{log: log, rooms: rooms, feed: feed}
}

// Join adds the player to the room. Joining a room one already belongs to
// returns the room unchanged so a reconnecting client can resume.
func (m MembershipService) Join(ctx context.Context, roomID, player string) (domain.Room, error) {
	req, err := newPlayerRequest(roomID, player)
	if err != nil {
		return domain.Room{}, err
	}
	room, err := m.rooms.Mutate(ctx, domain.RoomID(req.RoomID), func(room *domain.Room) (bool, error) {
		if room.IsMember(req.Player) {
			return false, nil
		}
		if room.IsFull() {
			return false, fmt.Errorf("%w: room %s has %d players", errors.ErrCapacity, room.ID, len(room.Players))
		}
		room.Players[req.Player] = domain.PlayerState{}
		return true, nil
	})
	if err != nil {
		return domain.Room{}, err
	}
	m.log.Debug("Player joined", "room", room.ID, "player", req.Player, "players", len(room.Players))
	return room, nil
}

// Leave removes the player. The last one out deletes the room; a departing
// host hands over to the earliest-joined member left. Leaving a room one is
// not in is a no-op.
func (m MembershipService) Leave(ctx context.Context, roomID, player string) (domain.Room, error) {
	req, err := newPlayerRequest(roomID, player)
	if err != nil {
		return domain.Room{}, err
	}
	room, err := m.rooms.Mutate(ctx, domain.RoomID(req.RoomID), func(room *domain.Room) (bool, error) {
		if !room.IsMember(req.Player) {
			return false, nil
		}
		if room.Host == req.Player {
			next, _ := room.NextHost()
			room.Host = next
		}
		delete(room.Players, req.Player)

		if room.CurrentPlayer == req.Player {
			room.CurrentPlayer = ""
		}
		if room.Winner == req.Player {
			room.Status = domain.Waiting
			room.Winner = ""
		}
		return true, nil
	})
	if err != nil {
		return domain.Room{}, err
	}
	if room.IsEmpty() {
		m.log.Info("Last player left, room deleted", "room", room.ID, "player", req.Player)
	} else {
		m.log.Debug("Player left", "room", room.ID, "player", req.Player, "host", room.Host)
	}
	return room, nil
}

// StartGame puts the room in play with a fresh question. Starting a finished
// room begins a rematch from zero.
func (m MembershipService) StartGame(ctx context.Context, roomID, requester string) (domain.Room, error) {
	req, err := newPlayerRequest(roomID, requester)
	if err != nil {
		return domain.Room{}, err
	}
	pool, err := m.feed.Pool(ctx)
	if err != nil {
		return domain.Room{}, err
	}
	room, err := m.rooms.Mutate(ctx, domain.RoomID(req.RoomID), func(room *domain.Room) (bool, error) {
		if room.Host != req.Player {
			return false, fmt.Errorf("%w: %q is not the host of room %s", errors.ErrAuthorization, req.Player, room.ID)
		}
		if len(room.Players) < 1 {
			return false, fmt.Errorf("%w: room %s has no players", errors.ErrValidation, room.ID)
		}
		if room.Status == domain.Playing {
			return false, fmt.Errorf("%w: room %s is already playing", errors.ErrState, room.ID)
		}
		// Every game, rematches included, starts from zero.
		room.Players = lo.MapValues(room.Players, func(p domain.PlayerState, _ string) domain.PlayerState {
			return domain.PlayerState{JoinedAt: p.JoinedAt}
		})
		room.Winner = ""
		room.UsedQuestions = make(map[string]bool)
		room.Status = domain.Playing
		room.CurrentPlayer = ""
		if _, err := m.feed.Assign(room, pool); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return domain.Room{}, err
	}
	m.log.Info("Game started", "room", room.ID, "host", room.Host, "question", room.CurrentQuestion.ID)
	return room, nil
}
