package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alanyoungcy/termarb/internal/server/handler"
	"github.com/alanyoungcy/termarb/internal/service"
)

func TestRoutes(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.NewOpportunityService(nil, nil, service.OpportunityConfig{}, logger)
	h := Handlers{
		Health:        handler.NewHealthHandler(nil),
		Status:        handler.NewStatusHandler(handler.StatusInfo{Mode: "scan"}, svc, nil, logger),
		Opportunities: handler.NewOpportunityHandler(svc),
	}
	routes := Routes(Config{APIKey: "k"}, h, nil, nil, logger)

	tests := []struct {
		path string
		key  string
		want int
	}{
		{"/api/health", "", http.StatusOK},
		{"/api/status", "", http.StatusUnauthorized},
		{"/api/status", "k", http.StatusOK},
		{"/api/opportunities", "k", http.StatusOK},
		{"/api/executions", "k", http.StatusNotFound},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		if tt.key != "" {
			req.Header.Set("X-API-Key", tt.key)
		}
		rec := httptest.NewRecorder()
		routes.ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.path, rec.Code, tt.want)
		}
	}
}
