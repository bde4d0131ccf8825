package server

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentdash/config"
)

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "127.0.0.1:8787", cfg.Addr)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 120*time.Second, cfg.IdleTimeout)
	assert.Equal(t, 1<<20, cfg.MaxHeaderBytes)
	assert.Equal(t, 64, cfg.MaxConnections)
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.ServerConfig{Addr: ":1234", MaxConnections: 3, ShutdownTimeout: time.Second})
	assert.Equal(t, ":1234", cfg.Addr)
	assert.Equal(t, 3, cfg.MaxConnections)
	assert.Equal(t, time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 1<<20, cfg.MaxHeaderBytes)
}

func testManager(t *testing.T, handler http.Handler) *Manager {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	return NewManager(handler, cfg, zap.NewNop())
}

func TestManager_StartAndShutdown(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	m := testManager(t, handler)

	require.NoError(t, m.Start())
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	resp, err := http.Get("http://" + m.Addr() + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	require.NoError(t, m.Shutdown(context.Background()))
	assert.False(t, m.IsRunning())
}

func TestManager_DoubleStart(t *testing.T) {
	m := testManager(t, http.NewServeMux())
	require.NoError(t, m.Start())
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	assert.ErrorIs(t, m.Start(), ErrAlreadyStarted)
}

func TestManager_StartAfterShutdown(t *testing.T) {
	m := testManager(t, http.NewServeMux())
	require.NoError(t, m.Start())
	require.NoError(t, m.Shutdown(context.Background()))
	require.NoError(t, m.Shutdown(context.Background()))

	assert.ErrorIs(t, m.Start(), ErrServerClosed)
}

func TestManager_StartTLS_MissingCert(t *testing.T) {
	m := testManager(t, http.NewServeMux())
	assert.Error(t, m.StartTLS("missing.crt", "missing.key"))
	// A failed TLS start leaves the manager startable.
	require.NoError(t, m.Start())
	_ = m.Shutdown(context.Background())
}

func TestManager_ErrorsEmpty(t *testing.T) {
	m := testManager(t, http.NewServeMux())
	select {
	case <-m.Errors():
		t.Fatal("should not have received an error")
	default:
	}
}

func TestManager_AddrBeforeStart(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = ":9999"
	m := NewManager(http.NewServeMux(), cfg, nil)
	assert.Equal(t, ":9999", m.Addr())
}
