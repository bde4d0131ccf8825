package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentdash/internal/metrics"
)

func TestHealthz(t *testing.T) {
	mux := NewMux(Options{
		Version: "1.2.3",
		Checks: map[string]HealthCheck{
			"redis": func(context.Context) error { return nil },
		},
	})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "1.2.3", body.Version)
	assert.Equal(t, "ok", body.Checks["redis"])
}

func TestHealthz_Degraded(t *testing.T) {
	mux := NewMux(Options{
		Checks: map[string]HealthCheck{
			"database": func(context.Context) error { return errors.New("connection refused") },
		},
	})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestMetricsEndpointAndInstrumentation(t *testing.T) {
	collector := metrics.NewCollector("server_handlers_test", zap.NewNop())
	mux := NewMux(Options{Gatherer: prometheus.DefaultGatherer, Metrics: collector})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `server_handlers_test_http_requests_total{method="GET",path="/missing",status="4xx"} 1`)
}

func TestEventHub_StreamsToWebsocket(t *testing.T) {
	hub := NewEventHub(8, zap.NewNop())
	srv := httptest.NewServer(NewMux(Options{Hub: hub}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/events", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)

	hub.Publish(map[string]string{"type": "agent_completed", "agent_id": "abc"})

	typ, data, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageText, typ)
	assert.JSONEq(t, `{"type":"agent_completed","agent_id":"abc"}`, string(data))

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestEventHub_DropsForSlowClient(t *testing.T) {
	hub := NewEventHub(1, nil)
	c := hub.add()
	defer hub.remove(c)

	hub.Publish("a")
	hub.Publish("b")
	assert.EqualValues(t, 1, hub.Dropped())
	assert.Len(t, c.send, 1)
}
