package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T) string {
	t.Helper()

	srv := httptest.NewServer(MetricsHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetricsHandlerExposesRelayMetrics(t *testing.T) {
	SetActiveSessions(2)
	RecordSessionOpened()
	RecordAnswer("done", 3, time.Second)
	RecordFrameSent("chunk")
	RecordBackendCall("gpt", "substituted", 20*time.Millisecond)

	body := scrape(t)
	assert.Contains(t, body, "oracle_active_sessions 2")
	assert.Contains(t, body, `oracle_answers_total{status="done"}`)
	assert.Contains(t, body, `oracle_chunks_sent_total{type="chunk"}`)
	assert.Contains(t, body, `oracle_backend_calls_total{backend="gpt",status="substituted"}`)
	assert.Contains(t, body, "oracle_backend_call_duration_seconds_bucket")
}

func TestPermitGaugeReturnsToBaseline(t *testing.T) {
	SetActiveSessions(0)
	RecordPermitAcquired(time.Millisecond)
	RecordPermitAcquired(time.Millisecond)
	RecordPermitReleased()
	RecordPermitReleased()

	assert.Contains(t, scrape(t), "oracle_backend_permits_in_use 0")
}

func TestConnectionGauge(t *testing.T) {
	ConnectionOpened()
	ConnectionClosed()

	assert.Contains(t, scrape(t), "oracle_websocket_connections 0")
}
