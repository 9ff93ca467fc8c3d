package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Values(t *testing.T) {
	r := NewRecorder()

	r.SetActivePositions(2)
	r.IncOrderRetry()
	r.IncOrderRetry()
	r.SetUnrealizedPnL(-1.25)
	r.SetDrawdown(0.1)
	r.ObserveOrderLatency(150 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.activeOrders))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.orderRetries))
	assert.Equal(t, -1.25, testutil.ToFloat64(r.currentPnL))
	assert.Equal(t, 0.1, testutil.ToFloat64(r.drawdown))
	assert.Equal(t, 1, testutil.CollectAndCount(r.orderLatency))
}

func TestRecorder_Handler(t *testing.T) {
	r := NewRecorder()
	r.SetActivePositions(1)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	for _, name := range []string{"active_orders 1", "order_latency_seconds", "order_retry_total", "current_pnl", "current_drawdown"} {
		assert.Contains(t, string(body), name)
	}
}
