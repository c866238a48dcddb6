package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestUnknownRouteReturnsNotFoundEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := newEngine()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/no/such/route", nil))

	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), "40400")
	require.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
