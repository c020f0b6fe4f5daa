package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"store unavailable", fmt.Errorf("%w: db closed", ErrStoreUnavailable), true},
		{"stale write", fmt.Errorf("%w: too many attempts", ErrConflict), true},
		{"lost buzz race", ErrAlreadyAnswering, false},
		{"room full", ErrCapacity, false},
		{"validation", ErrInvalidPath, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestAlreadyAnswering_IsConflict(t *testing.T) {
	req := require.New(t)
	req.True(Is(ErrAlreadyAnswering, ErrConflict))
	req.Contains(ErrAlreadyAnswering.Error(), "AlreadyAnswering")
	req.True(Is(ErrUnsupportedValue, ErrValidation))
}
