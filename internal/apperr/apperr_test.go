package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"invalid input", InvalidInput("missing %s", "body"), KindInvalidInput},
		{"wrapped not found", fmt.Errorf("submit: %w", NotFound("room %s", "user_1")), KindNotFound},
		{"batch", &BatchError{Targets: 3, Err: errors.New("boom")}, KindPartialBatch},
		{"plain error", errors.New("boom"), KindPersistence},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestErrorsIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("resolve: %w", DuplicateRoom(42, errors.New("23505")))

	assert.True(t, errors.Is(err, ErrDuplicateRoom))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(&BatchError{}, ErrPartialBatch))
}

func TestPublicHidesPersistenceCause(t *testing.T) {
	msg, details := Public(Persistence("insert message", errors.New("connection refused")))
	assert.Equal(t, GenericMessage, msg)
	assert.Empty(t, details)

	msg, _ = Public(NotFound("room user_9 not found"))
	assert.Equal(t, "room user_9 not found", msg)

	msg, details = Public(&BatchError{Targets: 4, Inserted: 0, Err: errors.New("tx aborted")})
	assert.Equal(t, "notification batch failed", msg)
	assert.Equal(t, "0 of 4 persisted", details)
}

func TestFromStore(t *testing.T) {
	assert.NoError(t, FromStore("list rooms", nil))

	nf := NotFound("room user_1 not found or closed")
	assert.Same(t, nf, FromStore("submit", nf))

	err := FromStore("submit", errors.New("tx aborted"))
	assert.Equal(t, KindPersistence, KindOf(err))
	assert.ErrorContains(t, err, "submit")
}
