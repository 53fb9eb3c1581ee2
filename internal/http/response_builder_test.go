package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expensetracker/internal/core"
)

func TestResponseBuilder(t *testing.T) {
	t.Run("json body", func(t *testing.T) {
		rr := httptest.NewRecorder()
		NewJSONResponse().
			Status(http.StatusCreated).
			Header("Location", "/api/transactions/a").
			JSON(map[string]string{"id": "a"}).
			Write(rr)

		assert.Equal(t, http.StatusCreated, rr.Code)
		assert.Equal(t, "/api/transactions/a", rr.Header().Get("Location"))
		assert.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))
		assert.JSONEq(t, `{"id":"a"}`, rr.Body.String())
	})

	t.Run("no body", func(t *testing.T) {
		rr := httptest.NewRecorder()
		NewJSONResponse().Status(http.StatusNoContent).Write(rr)

		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Empty(t, rr.Header().Get("Content-Type"))
		assert.Zero(t, rr.Body.Len())
	})
}

func TestServiceError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		status     int
		message    string
		retryAfter string
	}{
		{
			name:    "not found",
			err:     fmt.Errorf("transaction %q: %w", "a", core.ErrNotFound),
			status:  http.StatusNotFound,
			message: `transaction "a": not found`,
		},
		{
			name:    "invalid input echoes the message",
			err:     core.ErrAmountTooLarge,
			status:  http.StatusBadRequest,
			message: core.ErrAmountTooLarge.Error(),
		},
		{
			name:       "storage unavailable asks the client to retry",
			err:        fmt.Errorf("query: %w", core.ErrStorageUnavailable),
			status:     http.StatusServiceUnavailable,
			message:    "storage unavailable",
			retryAfter: "5",
		},
		{
			name:    "deadline",
			err:     fmt.Errorf("list: %w", context.DeadlineExceeded),
			status:  http.StatusGatewayTimeout,
			message: "request timed out",
		},
		{
			name:    "unexpected errors are not echoed",
			err:     errors.New("disk I/O error at /var/lib/expenses.db"),
			status:  http.StatusInternalServerError,
			message: "internal server error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, statusFor(tt.err))

			rr := httptest.NewRecorder()
			ServiceError(tt.err).Write(rr)

			require.Equal(t, tt.status, rr.Code)
			assert.Equal(t, tt.retryAfter, rr.Header().Get("Retry-After"))
			assert.Equal(t, tt.message, decode[map[string]string](t, rr)["error"])
		})
	}
}
