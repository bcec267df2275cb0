package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/valentinpelus/linkbrief/internal/handler"
	"github.com/valentinpelus/linkbrief/internal/middleware"
)

func TestRoutes(t *testing.T) {
	dispatcher := handler.NewDispatcher(handler.Options{}, nil, nil, nil, nil)
	s := New("0", "s3cret", dispatcher, func() map[string]int { return map[string]int{"entries": 0} }, nil)
	routes := s.Routes()

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")

	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader("{}")))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader("{}"))
	req.Header.Set(middleware.SecretTokenHeader, "s3cret")
	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	dispatcher.Wait()
}
