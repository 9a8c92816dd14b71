package common

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteErrorResponse(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	WriteErrorResponse(rr, "course not found", http.StatusNotFound)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "course not found", body.Error)
}

func TestDecodeJSONBody(t *testing.T) {
	t.Parallel()

	type payload struct {
		CRN string `json:"crn"`
	}

	tests := []struct {
		name       string
		body       string
		allowEmpty bool
		want       string
		wantErr    string
	}{
		{name: "valid", body: `{"crn":"123"}`, want: "123"},
		{name: "empty allowed", body: "", allowEmpty: true},
		{name: "empty rejected", body: "", wantErr: "request body is required"},
		{name: "unknown field", body: `{"crn":"1","x":2}`, wantErr: "invalid request body"},
		{name: "malformed", body: `{"crn":`, wantErr: "invalid request body"},
		{name: "too large", body: `{"crn":"` + strings.Repeat("a", maxBodyBytes) + `"}`, wantErr: "exceeds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var got payload
			err := DecodeJSONBody(httptest.NewRecorder(), req, &got, tt.allowEmpty)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.CRN)
		})
	}
}

func TestPathParam(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		value   string
		want    string
		wantErr string
	}{
		{name: "plain", value: "CRN123-2024-Fall", want: "CRN123-2024-Fall"},
		{name: "encoded", value: "CRN%2F1-2024-Fall", want: "CRN/1-2024-Fall"},
		{name: "empty", value: "", wantErr: "cannot be empty"},
		{name: "whitespace", value: "a%20b", wantErr: "cannot contain whitespace"},
		{name: "bad encoding", value: "%zz", wantErr: "invalid URL encoding"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("courseID", tt.value)
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

			got, err := PathParam(req, "courseID")
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
