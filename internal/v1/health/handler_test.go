package health

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fakeRoomCounter struct{ count int }

func (f fakeRoomCounter) RoomCount() int { return f.count }

func TestLivenessAlwaysReturnsOK(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(fakeRoomCounter{}, nil)
	r.GET("/health/live", h.Liveness)

	req, _ := http.NewRequest(http.MethodGet, "/health/live", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
}

func TestReadinessIsHealthyWithRegistryAndNoRedis(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(fakeRoomCounter{count: 3}, nil)
	r.GET("/health/ready", h.Readiness)

	req, _ := http.NewRequest(http.MethodGet, "/health/ready", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
}

func TestReadinessIsUnavailableWhenRegistryMissing(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(nil, nil)
	r.GET("/health/ready", h.Readiness)

	req, _ := http.NewRequest(http.MethodGet, "/health/ready", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

func TestReadinessIsUnavailableWhenRedisUnreachable(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// Point at a port nothing listens on so the ping fails without a live server.
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 0})
	h := NewHandler(fakeRoomCounter{}, client)
	r.GET("/health/ready", h.Readiness)

	req, _ := http.NewRequest(http.MethodGet, "/health/ready", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusServiceUnavailable, resp.Code)
}
