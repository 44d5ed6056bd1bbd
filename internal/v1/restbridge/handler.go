package restbridge

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/vrnetsync/hub/internal/v1/auth"
	"github.com/vrnetsync/hub/internal/v1/types"
)

const (
	maxVarName  = 64
	maxVarValue = 1024
)

// Handler exposes the preseed endpoint over HTTP.
type Handler struct {
	bridge    *Bridge
	validator *auth.Validator
}

// NewHandler builds a Handler. validator gates every write with a bearer
// token carrying the preseed:write scope.
func NewHandler(bridge *Bridge, validator *auth.Validator) *Handler {
	return &Handler{bridge: bridge, validator: validator}
}

type upsertBody struct {
	Vars map[string]string `json:"vars"`
}

type varResult struct {
	State string `json:"state"`
}

// RequireBearer gates a route group with the admin bearer check.
func (h *Handler) RequireBearer() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		if _, err := h.validator.ValidateToken(token); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid bearer token"})
			return
		}
		c.Next()
	}
}

// Upsert handles POST /v1/rooms/:roomId/devices/:deviceId/client-variables.
func (h *Handler) Upsert(c *gin.Context) {
	roomID := types.RoomID(c.Param("roomId"))
	deviceID := types.DeviceID(c.Param("deviceId"))

	var body upsertBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if len(body.Vars) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "vars must not be empty"})
		return
	}
	for name, value := range body.Vars {
		if len(name) == 0 || len(name) > maxVarName {
			c.JSON(http.StatusBadRequest, gin.H{"error": "variable name must be 1-64 bytes"})
			return
		}
		if len(value) > maxVarValue {
			c.JSON(http.StatusBadRequest, gin.H{"error": "variable value must be at most 1024 bytes"})
			return
		}
	}

	statuses, err := h.bridge.ApplyOrQueue(roomID, deviceID, body.Vars)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	result := make(map[string]varResult, len(statuses))
	for name, status := range statuses {
		result[name] = varResult{State: string(status)}
	}

	c.JSON(http.StatusOK, gin.H{
		"roomId":   string(roomID),
		"deviceId": string(deviceID),
		"result":   result,
	})
}
