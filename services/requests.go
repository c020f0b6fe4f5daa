package services

import (
	"fmt"
	"strings"

	"quiz-lab/errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Names end up as store path segments, hence the excluded characters.
type CreateRoomRequest struct {
	Name string `validate:"required,max=64"`
	Host string `validate:"required,max=32,excludesall=/.#$[]"`
}

type PlayerRequest struct {
	RoomID string `validate:"required,max=64,excludesall=/.#$[]"`
	Player string `validate:"required,max=32,excludesall=/.#$[]"`
}

func validateRequest(req any) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}
	return nil
}

func newPlayerRequest(roomID, player string) (PlayerRequest, error) {
	req := PlayerRequest{
		RoomID: strings.TrimSpace(roomID),
		Player: strings.TrimSpace(player),
	}
	return req, validateRequest(req)
}
