package transport

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/vrnetsync/hub/internal/v1/logging"
	"github.com/vrnetsync/hub/internal/v1/metrics"
	"github.com/vrnetsync/hub/internal/v1/types"
	"go.uber.org/zap"
)

// Server exposes the Hub over HTTP/WebSocket, grounded on the teacher's
// Hub.ServeWs/upgradeWebSocket split between the Gin bridge and the
// connection-handling orchestration.
type Server struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewServer wraps a Hub with the gin+gorilla upgrade glue.
func NewServer(hub *Hub) *Server {
	return &Server{
		hub: hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // topic/appId gate happens at Hello, not at origin
			WriteBufferPool: &sync.Pool{
				New: func() any { return make([]byte, 4096) },
			},
		},
	}
}

// ServeWs upgrades the request and hands the connection to the Hub. roomId
// comes from the route path, mirroring the teacher's c.Param("roomId").
func (s *Server) ServeWs(c *gin.Context) {
	roomID := types.RoomID(c.Param("roomId"))
	if roomID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "roomId is required"})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Error(c.Request.Context(), "websocket upgrade failed", zap.Error(err))
		return
	}

	metrics.IncConnection()
	defer metrics.DecConnection()

	s.hub.HandleConnection(context.Background(), conn, roomID)
}
