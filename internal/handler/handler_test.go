package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"restaurant-backend/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	cases := map[apperror.Kind]int{
		apperror.KindNotFound:             http.StatusNotFound,
		apperror.KindUnauthorized:         http.StatusForbidden,
		apperror.KindForbidden:            http.StatusForbidden,
		apperror.KindConflict:             http.StatusConflict,
		apperror.KindInvalidState:         http.StatusConflict,
		apperror.KindInsufficientStock:    http.StatusUnprocessableEntity,
		apperror.KindAmountExceedsBalance: http.StatusUnprocessableEntity,
		apperror.KindInvalidTransition:    http.StatusUnprocessableEntity,
		apperror.KindInvalid:              http.StatusBadRequest,
		apperror.KindInternal:             http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, StatusFor(kind), kind.String())
	}
}

func runError(t *testing.T, err error) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	respondError(c, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestRespondError(t *testing.T) {
	t.Run("conflict carries dependents", func(t *testing.T) {
		w, body := runError(t, apperror.ConflictWithDependents(3, "invoice INV-1 has 3 payments"))
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "conflict", body["code"])
		assert.Equal(t, "invoice INV-1 has 3 payments", body["error"])
		assert.Equal(t, map[string]interface{}{"dependents": float64(3)}, body["details"])
	})

	t.Run("wrapped kind survives", func(t *testing.T) {
		err := fmt.Errorf("record payment: %w", apperror.NotFound("invoice %s not found", "x"))
		w, body := runError(t, err)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "invoice x not found", body["error"])
		assert.NotContains(t, body, "details")
	})

	t.Run("internal detail hidden", func(t *testing.T) {
		w, body := runError(t, errors.New("pq: connection refused"))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "internal server error", body["error"])
		assert.Equal(t, "internal", body["code"])
	})
}

func TestQueryParsers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	newCtx := func(url string) (*gin.Context, *httptest.ResponseRecorder) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, url, nil)
		return c, w
	}

	c, _ := newCtx("/?from=2024-03-01&to=2024-03-31T23:59:59Z")
	from, valid := queryTime(c, "from")
	require.True(t, valid)
	require.NotNil(t, from)
	assert.Equal(t, 2024, from.Year())
	to, valid := queryTime(c, "to")
	require.True(t, valid)
	assert.Equal(t, 23, to.Hour())
	missing, valid := queryTime(c, "until")
	assert.True(t, valid)
	assert.Nil(t, missing)

	c, w := newCtx("/?restaurant_id=nope")
	_, valid = queryUUID(c, "restaurant_id")
	assert.False(t, valid)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
