package day

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/pocket/pocket/pkg/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(handler *Handler, method string, target string) *httptest.ResponseRecorder {
	router := mux.NewRouter()
	router.HandleFunc("/api/day/{date}", handler.Get).Methods("GET")
	router.HandleFunc("/api/day/{date}/lock", handler.Lock).Methods("PUT")
	req := httptest.NewRequest(method, target, nil)
	req = req.WithContext(user.WithUser(req.Context(), user.User{Id: userId}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestHandler(t *testing.T) {
	t.Run("should return the day rollup", func(t *testing.T) {
		f := setup(t)
		f.expense(t, "12.5", monday)

		rr := serve(NewHandler(f.reconciler), http.MethodGet, "/api/day/2025-03-10")

		require.Equal(t, http.StatusOK, rr.Code)
		var dto DayDTO
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&dto))
		assert.Equal(t, "2025-03-10", dto.Date)
		assert.True(t, dto.Expenses.Equal(d("12.5")))
		assert.True(t, dto.FinalPocket.Equal(d("-12.5")))
		assert.False(t, dto.Locked)
	})

	t.Run("should lock the day", func(t *testing.T) {
		f := setup(t)

		rr := serve(NewHandler(f.reconciler), http.MethodPut, "/api/day/2025-03-10/lock")

		require.Equal(t, http.StatusOK, rr.Code)
		var dto DayDTO
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&dto))
		assert.True(t, dto.Locked)
	})

	t.Run("should reject malformed dates", func(t *testing.T) {
		f := setup(t)

		rr := serve(NewHandler(f.reconciler), http.MethodGet, "/api/day/10-03-2025")

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}
