package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	handlers "compengine/internal/handlers/admin"
	"compengine/internal/middleware"
	"compengine/internal/repositories/memory"
	"compengine/internal/scheduler"
	"compengine/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret = "test-secret"
	testAdmin  = "admin"
)

type noJobs struct{}

func (noJobs) RunJob(ctx context.Context, name string) (*scheduler.Run, error) {
	return nil, scheduler.ErrUnknownJob
}
func (noJobs) LastRun(name string) (*scheduler.Run, bool) { return nil, false }
func (noJobs) JobNames() []string                         { return []string{"roi"} }

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var engine services.CompensationEngine
	h := handlers.NewCompensationHandler(engine, memory.New(), noJobs{}, nil, nil)

	r := gin.New()
	SetupCompensationRoutes(r.Group("/api/v1"), h, nil, testSecret, testAdmin)
	return r
}

func token(t *testing.T, secret, role string, method jwt.SigningMethod) string {
	t.Helper()
	claims := middleware.JWTClaims{
		UserID: "u-1",
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestCompensationRoutes_Auth(t *testing.T) {
	r := newRouter(t)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"bad signature", "Bearer " + token(t, "other", testAdmin, jwt.SigningMethodHS256), http.StatusUnauthorized},
		{"wrong algorithm", "Bearer " + token(t, testSecret, testAdmin, jwt.SigningMethodHS384), http.StatusUnauthorized},
		{"not admin", "Bearer " + token(t, testSecret, "member", jwt.SigningMethodHS256), http.StatusForbidden},
		{"admin", "Bearer " + token(t, testSecret, testAdmin, jwt.SigningMethodHS256), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/compensation/jobs", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestCompensationRoutes_EventsDisabled(t *testing.T) {
	r := newRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/compensation/events", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, testSecret, testAdmin, jwt.SigningMethodHS256))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	// no route is registered without the live feed
	assert.Equal(t, http.StatusNotFound, w.Code)
}
