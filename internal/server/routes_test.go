package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xpanvictor/voxcap/internal/config"
	"github.com/xpanvictor/voxcap/internal/domains/transcript"
	"github.com/xpanvictor/voxcap/internal/handlers"
	"github.com/xpanvictor/voxcap/internal/metrics"
	"github.com/xpanvictor/voxcap/pkg/Logger"
	"github.com/xpanvictor/voxcap/pkg/assistant"
	memoryregistry "github.com/xpanvictor/voxcap/pkg/io/registry/memoryRegistry"
	"github.com/xpanvictor/voxcap/pkg/io/stt"
)

type emptyTranscripts struct{}

func (emptyTranscripts) Apply(ctx context.Context, id uuid.UUID, ev stt.Event) error { return nil }
func (emptyTranscripts) Lines(ctx context.Context, id uuid.UUID) ([]transcript.Line, error) {
	return nil, nil
}
func (emptyTranscripts) Cleanup(ctx context.Context, id uuid.UUID) ([]transcript.Line, error) {
	return nil, transcript.ErrSessionNotFound
}
func (emptyTranscripts) Summarize(ctx context.Context, id uuid.UUID, fn assistant.StreamFunc) (*transcript.Summary, error) {
	return nil, transcript.ErrSessionNotFound
}
func (emptyTranscripts) Summary(ctx context.Context, id uuid.UUID) (*transcript.Summary, error) {
	return nil, transcript.ErrSummaryNotFound
}
func (emptyTranscripts) Subscribe(id uuid.UUID, fn func(transcript.Line)) (func(), error) {
	return func() {}, nil
}

func newTestEngine(t *testing.T, auth *handlers.TokenValidator, checks map[string]handlers.HealthCheck) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	r := gin.New()
	ws := InitializeRoutes(r, Dependencies{
		Configs:     &config.Settings{},
		Logger:      Logger.NewNop(),
		Registry:    memoryregistry.New(1),
		Transcripts: emptyTranscripts{},
		Auth:        auth,
		Metrics:     metrics.New(reg),
		Gatherer:    reg,
		Checks:      checks,
	})
	t.Cleanup(func() { _ = ws.Close() })
	return r
}

func get(r http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthReportsChecks(t *testing.T) {
	r := newTestEngine(t, nil, map[string]handlers.HealthCheck{
		"database": func() error { return nil },
		"redis":    func() error { return errors.New("connection refused") },
	})

	w := get(r, "/health", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("code = %d, want 503", w.Code)
	}
	if !strings.Contains(w.Body.String(), "connection refused") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestMetricsExposed(t *testing.T) {
	r := newTestEngine(t, nil, nil)

	w := get(r, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "voxcap_active_sessions") {
		t.Errorf("metrics body misses the session gauge")
	}
}

func TestAPIRequiresToken(t *testing.T) {
	auth := handlers.NewTokenValidator("s3cret")
	r := newTestEngine(t, auth, nil)
	token, _ := auth.Issue("alice", time.Hour)
	id := uuid.New()

	tests := []struct {
		name  string
		path  string
		token string
		code  int
	}{
		{"sessions without token", "/api/v1/sessions", "", http.StatusUnauthorized},
		{"sessions", "/api/v1/sessions", token, http.StatusOK},
		{"lines", "/api/v1/sessions/" + id.String() + "/lines", token, http.StatusOK},
		{"missing summary", "/api/v1/sessions/" + id.String() + "/summary", token, http.StatusNotFound},
		{"bad id", "/api/v1/sessions/nope/lines", token, http.StatusBadRequest},
		{"health stays public", "/health", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := get(r, tt.path, tt.token); w.Code != tt.code {
				t.Errorf("code = %d, want %d", w.Code, tt.code)
			}
		})
	}
}
