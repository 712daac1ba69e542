package fault

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfWrappedError(t *testing.T) {
	err := fmt.Errorf("create loan: %w", Denied(CodeBorrowLimitReached, "member holds 5 open loans"))

	assert.Equal(t, KindDenied, KindOf(err))
	assert.Equal(t, CodeBorrowLimitReached, CodeOf(err))
	assert.True(t, IsKind(err, KindDenied))
}

func TestNotFoundCode(t *testing.T) {
	err := NotFound("member", "42")

	assert.Equal(t, KindNotFound, err.Kind)
	assert.Equal(t, "member_not_found", err.Code)
	assert.Contains(t, err.Error(), "42")
}

func TestUnavailableUnwraps(t *testing.T) {
	cause := errors.New("connection reset")
	err := Unavailable("begin transaction", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindUnavailable, KindOf(err))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
	assert.Equal(t, "", CodeOf(errors.New("boom")))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, HTTPStatus(NotFound("loan", "BR001")))
	assert.Equal(t, http.StatusConflict, HTTPStatus(Conflict(CodeItemUnavailable, "on loan")))
	assert.Equal(t, http.StatusUnprocessableEntity, HTTPStatus(Denied(CodeHasOverdueItems, "overdue")))
	assert.Equal(t, http.StatusTooManyRequests, HTTPStatus(Denied(CodeRateLimited, "slow down")))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(Unavailable("commit", errors.New("x"))))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(Invariant("counter went negative")))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
}
