package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ternarybob/custodia/internal/common"
)

func TestWriteServiceErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{common.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("catalog x: %w", common.ErrNotFound), http.StatusNotFound},
		{common.ErrOverloaded, http.StatusServiceUnavailable},
		{common.ErrRateLimited, http.StatusTooManyRequests},
		{common.ErrKindNotAllowed, http.StatusForbidden},
		{common.ErrStatusConflict, http.StatusConflict},
		{common.ErrJobTerminal, http.StatusConflict},
		{fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		WriteServiceError(rec, tc.err)
		assert.Equal(t, tc.code, rec.Code, tc.err.Error())
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	}
}

func TestClientIPPrefersForwardedHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, "10.0.0.1:1234", clientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.9")
	assert.Equal(t, "203.0.113.9", clientIP(r))
}
