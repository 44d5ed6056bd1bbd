// Package health exposes liveness/readiness probes, grounded on the
// teacher's health/handler.go response shapes. Readiness here checks the
// room registry (always present) and, if configured, the rate-limiter's
// Redis store — the dependency surface this hub actually has, in place of
// the teacher's Redis-pub/sub and Rust-SFU gRPC checks.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/vrnetsync/hub/internal/v1/logging"
	"go.uber.org/zap"
)

// RoomCounter reports how many rooms the registry currently tracks.
type RoomCounter interface {
	RoomCount() int
}

// Handler manages health check endpoints.
type Handler struct {
	registry    RoomCounter
	redisClient *redis.Client // nil when the rate limiter runs in-memory only
}

// NewHandler builds a Handler. redisClient may be nil.
func NewHandler(registry RoomCounter, redisClient *redis.Client) *Handler {
	return &Handler{registry: registry, redisClient: redisClient}
}

// LivenessResponse is the liveness probe body.
type LivenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse is the readiness probe body.
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Liveness returns 200 if the process is alive, with no dependency checks.
// GET /health/live
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness returns 200 only if every configured dependency is healthy.
// GET /health/ready
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{"registry": "healthy"}
	allHealthy := true
	if h.registry == nil {
		checks["registry"] = "unavailable"
		allHealthy = false
	}

	if h.redisClient != nil {
		checks["ratelimit_redis"] = h.checkRedis(ctx)
		if checks["ratelimit_redis"] != "healthy" {
			allHealthy = false
		}
	}

	status := "ready"
	code := http.StatusOK
	if !allHealthy {
		status = "unavailable"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, ReadinessResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) checkRedis(ctx context.Context) string {
	if err := h.redisClient.Ping(ctx).Err(); err != nil {
		logging.Error(ctx, "ratelimit redis health check failed", zap.Error(err))
		return "unhealthy"
	}
	return "healthy"
}
