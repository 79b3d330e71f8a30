package ierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError(t *testing.T) {
	t.Run("wraps cause", func(t *testing.T) {
		cause := errors.New("task not found")
		err := New(ErrorCodeNotFound, cause)

		assert.Equal(t, "NotFound: task not found", err.Error())
		assert.Equal(t, "task not found", err.Message)
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, http.StatusNotFound, err.HTTPStatus())
	})

	t.Run("code of wrapped error", func(t *testing.T) {
		err := fmt.Errorf("loading task: %w", Newf(ErrorCodePermissionDenied, "access denied"))

		assert.Equal(t, ErrorCodePermissionDenied, CodeOf(err))
		assert.Equal(t, ErrorCodeInternal, CodeOf(errors.New("boom")))
	})

	t.Run("http status", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, HTTPStatus(ErrorCodeInvalidArgument))
		assert.Equal(t, http.StatusConflict, HTTPStatus(ErrorCodeAlreadyExists))
		assert.Equal(t, http.StatusUnauthorized, HTTPStatus(ErrorCodeUnauthenticated))
		assert.Equal(t, http.StatusForbidden, HTTPStatus(ErrorCodePermissionDenied))
		assert.Equal(t, http.StatusInternalServerError, HTTPStatus(ErrorCodeInternal))
	})
}
