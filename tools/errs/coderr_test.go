package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSurvivesWithDetail(t *testing.T) {
	err := ErrNotFound.WithDetail("tweet")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrConflict)

	// 包装一层也成立
	wrapped := fmt.Errorf("store: %w", err)
	assert.ErrorIs(t, wrapped, ErrNotFound)
}

func TestWithDetailIsCopy(t *testing.T) {
	a := ErrValidation.WithDetail("one")
	b := ErrValidation.WithDetail("two")
	assert.Equal(t, "", ErrValidation.Detail) // 原值不被污染
	assert.NotEqual(t, a.Detail, b.Detail)

	chained := a.WithDetail("more")
	assert.Equal(t, "one, more", chained.Detail)
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[*CodeError]int{
		ErrValidation:       http.StatusBadRequest,
		ErrInvalidOperation: http.StatusBadRequest,
		ErrUnauthorized:     http.StatusUnauthorized,
		ErrForbidden:        http.StatusForbidden,
		ErrNotFound:         http.StatusNotFound,
		ErrConflict:         http.StatusConflict,
		ErrRateLimited:      http.StatusTooManyRequests,
		ErrUnavailable:      http.StatusServiceUnavailable,
	}
	for e, want := range cases {
		assert.Equal(t, want, e.HTTPStatus(), e.Msg)
	}
}

func TestPayloadHidesInternalErrors(t *testing.T) {
	assert.Equal(t, ErrUnavailable, Payload(errors.New("pgx: broken pipe")))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatusOf(errors.New("boom")))

	ce := ErrConflict.WithDetail("handle taken")
	assert.Equal(t, ce, Payload(ce))
	assert.Equal(t, http.StatusConflict, HTTPStatusOf(ce))
}
