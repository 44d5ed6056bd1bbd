package restbridge

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"github.com/vrnetsync/hub/internal/v1/auth"
)

const testSecret = "handler-test-secret"

func signToken(t *testing.T, scope string) string {
	t.Helper()
	claims := auth.AdminClaims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	reg := newFakeRegistry()
	handler := NewHandler(NewBridge(reg, NewStore()), auth.NewValidator(testSecret))

	r := gin.New()
	group := r.Group("/v1/rooms")
	group.Use(handler.RequireBearer())
	group.POST("/:roomId/devices/:deviceId/client-variables", handler.Upsert)
	return r
}

func doUpsert(t *testing.T, r *gin.Engine, token string, body map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(upsertBody{Vars: body})
	require.NoError(t, err)

	req, _ := http.NewRequest(http.MethodPost, "/v1/rooms/room-1/devices/dev-1/client-variables", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestUpsertRejectsMissingBearerToken(t *testing.T) {
	r := newTestRouter(t)
	resp := doUpsert(t, r, "", map[string]string{"color": "red"})
	require.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestUpsertRejectsTokenMissingScope(t *testing.T) {
	r := newTestRouter(t)
	token := signToken(t, "some:other:scope")
	resp := doUpsert(t, r, token, map[string]string{"color": "red"})
	require.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestUpsertAcceptsValidTokenAndQueuesVars(t *testing.T) {
	r := newTestRouter(t)
	token := signToken(t, "preseed:write")
	resp := doUpsert(t, r, token, map[string]string{"color": "red"})
	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		RoomID string                      `json:"roomId"`
		Result map[string]struct{ State string } `json:"result"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Equal(t, "room-1", body.RoomID)
	require.Equal(t, "queued", body.Result["color"].State)
}

func TestUpsertRejectsEmptyVars(t *testing.T) {
	r := newTestRouter(t)
	token := signToken(t, "preseed:write")
	resp := doUpsert(t, r, token, map[string]string{})
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestUpsertRejectsOversizedVarName(t *testing.T) {
	r := newTestRouter(t)
	token := signToken(t, "preseed:write")
	longName := make([]byte, maxVarName+1)
	for i := range longName {
		longName[i] = 'a'
	}
	resp := doUpsert(t, r, token, map[string]string{string(longName): "v"})
	require.Equal(t, http.StatusBadRequest, resp.Code)
}
