package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arnabghosh/blazingmq-session/internal/api/dto"
	"github.com/arnabghosh/blazingmq-session/internal/domain"
	"github.com/arnabghosh/blazingmq-session/internal/storage/inmemory"
)

const routerTestQueue = "bmq://bmq.test.mem.priority/orders"

func newTestRouter(t *testing.T) (*Router, *inmemory.AckRepository) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := inmemory.NewAckRepository()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewRouter(repo, logger), repo
}

func serve(r *Router, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	r.Engine().ServeHTTP(w, req)
	return w
}

func TestNewRouter(t *testing.T) {
	router, _ := newTestRouter(t)

	assert.NotNil(t, router)
	assert.NotNil(t, router.engine)
	assert.NotNil(t, router.ackHandler)
	assert.Equal(t, router.engine, router.Engine())
}

func TestNewRouter_NilLogger(t *testing.T) {
	router := NewRouter(inmemory.NewAckRepository(), nil)
	assert.NotNil(t, router.logger)
}

func TestRouter_HealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	w := serve(router, "/health")

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "healthy", response["status"])
}

func TestRouter_GetAckEndpoint(t *testing.T) {
	router, repo := newTestRouter(t)
	now := time.Now().UTC()
	require.NoError(t, repo.Store(&domain.AckRecord{
		GUID:     "G1",
		QueueURI: routerTestQueue,
		Status:   domain.AckSuccess,
		PostedAt: now.Add(-20 * time.Millisecond),
		AckedAt:  now,
	}))

	w := serve(router, "/api/v1/acks/G1")

	require.Equal(t, http.StatusOK, w.Code)
	var response dto.AckRecordResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "G1", response.GUID)
	assert.Equal(t, int64(20), response.LatencyMS)
}

func TestRouter_GetAckNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	w := serve(router, "/api/v1/acks/nonexistent")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_ListQueueAcksEndpoint(t *testing.T) {
	router, repo := newTestRouter(t)
	base := time.Date(2026, 1, 18, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.BulkStore([]*domain.AckRecord{
		{GUID: "G1", QueueURI: routerTestQueue, Status: domain.AckSuccess, AckedAt: base},
		{GUID: "G2", QueueURI: routerTestQueue, Status: domain.AckLimitMessages, AckedAt: base.Add(time.Second)},
		{GUID: "G3", QueueURI: "bmq://other/queue", Status: domain.AckSuccess, AckedAt: base},
	}))

	w := serve(router, "/api/v1/acks?queue_uri="+routerTestQueue)
	require.Equal(t, http.StatusOK, w.Code)
	var all dto.AckListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &all))
	assert.Equal(t, 2, all.Total)
	assert.Equal(t, "G1", all.Acks[0].GUID)

	w = serve(router, "/api/v1/acks?failed_only=true&queue_uri="+routerTestQueue)
	require.Equal(t, http.StatusOK, w.Code)
	var failed dto.AckListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &failed))
	require.Equal(t, 1, failed.Total)
	assert.Equal(t, "G2", failed.Acks[0].GUID)
	assert.Equal(t, "LIMIT_MESSAGES", failed.Acks[0].StatusName)
}

func TestRouter_NotFoundRoute(t *testing.T) {
	router, _ := newTestRouter(t)

	w := serve(router, "/nonexistent")

	assert.Equal(t, http.StatusNotFound, w.Code)
}
