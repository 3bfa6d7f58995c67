package metrics_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PageDAO/DAO-Tools/internal/metrics"
)

func TestPush_DisabledWithoutURL(t *testing.T) {
	assert.NoError(t, metrics.Push(context.Background(), "", "job"))
}

func TestPush_SendsRegistry(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		path   string
		body   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		method, path, body = r.Method, r.URL.Path, string(data)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	metrics.SinkErrors.WithLabelValues("search").Inc()
	require.NoError(t, metrics.Push(context.Background(), srv.URL, ""))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/metrics/job/daoledger", path)
	assert.NotEmpty(t, body)
}

func TestPush_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := metrics.Push(context.Background(), srv.URL, "ledger")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "push metrics")
}

func TestSinkErrorsCounter(t *testing.T) {
	before := testutil.ToFloat64(metrics.SinkErrors.WithLabelValues("nats"))
	metrics.SinkErrors.WithLabelValues("nats").Inc()
	assert.InDelta(t, before+1, testutil.ToFloat64(metrics.SinkErrors.WithLabelValues("nats")), 1e-9)
}
