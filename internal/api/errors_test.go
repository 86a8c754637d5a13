// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIError_Error(t *testing.T) {
	err := &APIError{Code: "VIDEO_NOT_FOUND", Message: "Video not found"}
	assert.Equal(t, "Video not found", err.Error())
}

func TestRespondError(t *testing.T) {
	tests := []struct {
		name       string
		apiErr     *APIError
		statusCode int
		details    []any
	}{
		{name: "video not found", apiErr: ErrVideoNotFound, statusCode: 404},
		{name: "tool not found", apiErr: ErrToolNotFound, statusCode: 404},
		{name: "breaker open", apiErr: ErrBreakerOpen, statusCode: 503},
		{name: "invalid input with details", apiErr: ErrInvalidInput, statusCode: 400, details: []any{map[string]string{"field": "video_id"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			w := httptest.NewRecorder()

			RespondError(w, req, tt.statusCode, tt.apiErr, tt.details...)

			assert.Equal(t, tt.statusCode, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var result APIError
			err := json.NewDecoder(w.Body).Decode(&result)
			require.NoError(t, err)
			assert.Equal(t, tt.apiErr.Code, result.Code)
			assert.Equal(t, tt.apiErr.Message, result.Message)
			if len(tt.details) > 0 {
				assert.NotNil(t, result.Details)
			}
		})
	}
}

func TestRespondError_DoesNotMutateShared(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()

	RespondError(w, req, 404, ErrVideoNotFound, "extra context")

	assert.Empty(t, ErrVideoNotFound.RequestID)
	assert.Nil(t, ErrVideoNotFound.Details)
}
