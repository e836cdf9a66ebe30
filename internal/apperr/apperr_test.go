package apperr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/autolog/autoanalysis/internal/apperr"
)

func TestPersistenceWrapsOnce(t *testing.T) {
	t.Parallel()

	base := errors.New("connection reset")
	err := apperr.Persistence("save matches", base)
	assert.ErrorIs(t, err, apperr.ErrPersistence)
	assert.Contains(t, err.Error(), "save matches")

	again := apperr.Persistence("outer", err)
	assert.Equal(t, err, again)
}

func TestPersistenceKeepsNotFound(t *testing.T) {
	t.Parallel()

	err := apperr.Persistence("get launch", apperr.NotFound("launch", 7))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.NotErrorIs(t, err, apperr.ErrPersistence)
	assert.NoError(t, apperr.Persistence("noop", nil))
}

func TestMessageForUnavailable(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("start: %w", apperr.Unavailable("no analyzer supports clustering"))
	assert.Contains(t, apperr.Message(err), "no analyzer services deployed")
	assert.Equal(t, "plain", apperr.Message(errors.New("plain")))
}
